package types

import "time"

// Exemplar represents one stored style example, the durable row shared by
// ranking, feedback, and deduplication.
type Exemplar struct {
	ID           int64     `json:"id"`
	Content      string    `json:"content"`
	SenderID     string    `json:"sender_id,omitempty"`
	GroupID      string    `json:"group_id"`
	Embedding    []float32 `json:"-"`
	Weight       float64   `json:"weight"`
	Dimensions   int       `json:"dimensions"`
	HelpfulCount int       `json:"helpful_count"`
	HarmfulCount int       `json:"harmful_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasEmbedding reports whether the row carries a vector.
func (e *Exemplar) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// NewExemplar is the input type for creating exemplars (without generated fields).
type NewExemplar struct {
	Content  string `json:"content"`
	GroupID  string `json:"group_id"`
	SenderID string `json:"sender_id,omitempty"`
}

// UpdateFields describes a partial row update. Nil pointers leave the column
// untouched; SetEmbedding distinguishes "replace embedding" from "no change"
// because a nil slice is a meaningful value for neither.
type UpdateFields struct {
	Content      *string
	Weight       *float64
	HelpfulCount *int
	HarmfulCount *int
	Embedding    []float32
	SetEmbedding bool
	Dimensions   *int
}

// IsZero reports whether the update would touch no columns.
func (u UpdateFields) IsZero() bool {
	return u.Content == nil && u.Weight == nil && u.HelpfulCount == nil &&
		u.HarmfulCount == nil && !u.SetEmbedding && u.Dimensions == nil
}

// FewShotExample pairs an exemplar id with its content for callers that need
// to report feedback on what they were given.
type FewShotExample struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// FeedbackAggregate holds the merged feedback mass of a set of rows.
type FeedbackAggregate struct {
	TotalHelpful int     `json:"total_helpful"`
	TotalHarmful int     `json:"total_harmful"`
	MaxWeight    float64 `json:"max_weight"`
}

// GroupStats holds aggregate statistics for one group.
type GroupStats struct {
	Total          int     `json:"total"`
	AvgWeight      float64 `json:"avg_weight"`
	WithEmbeddings int     `json:"with_embeddings"`
	TotalHelpful   int     `json:"total_helpful"`
	TotalHarmful   int     `json:"total_harmful"`
}

// Cluster is a set of exemplars whose pairwise similarity crossed the
// deduplication threshold. Members are ordered by weight descending; the
// first member is the merge primary.
type Cluster struct {
	PrimaryID int64   `json:"primary_id"`
	MemberIDs []int64 `json:"member_ids"`
}

// DeduplicationResult reports the outcome of one deduplication pass.
type DeduplicationResult struct {
	RunID         string    `json:"run_id"`
	GroupID       string    `json:"group_id"`
	OriginalCount int       `json:"original_count"`
	MergedCount   int       `json:"merged_count"`
	FinalCount    int       `json:"final_count"`
	Clusters      []Cluster `json:"clusters"`
}

// AddExemplarRequest is the payload for storing a new exemplar.
type AddExemplarRequest struct {
	Content  string `json:"content"`
	GroupID  string `json:"group_id"`
	SenderID string `json:"sender_id,omitempty"`
}

// AddExemplarResponse returns the assigned id of a stored exemplar.
type AddExemplarResponse struct {
	ID int64 `json:"id"`
}

// SearchRequest asks for the top-k exemplars matching a query.
type SearchRequest struct {
	Query   string `json:"query"`
	GroupID string `json:"group_id"`
	Limit   int    `json:"limit"`
}

// SearchResponse carries the ranked few-shot examples.
type SearchResponse struct {
	Examples []FewShotExample `json:"examples"`
}

// FeedbackRequest applies helpful or harmful feedback to a set of exemplars.
type FeedbackRequest struct {
	IDs     []int64 `json:"ids"`
	Helpful bool    `json:"helpful"`
}

// FeedbackResponse reports how many rows the feedback reached.
type FeedbackResponse struct {
	Updated int64 `json:"updated"`
}

// WeightRequest adjusts an exemplar's quality weight by delta.
type WeightRequest struct {
	Delta float64 `json:"delta"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	EmbeddingModel string `json:"embedding_model"`
	ExemplarCount  int64  `json:"exemplar_count"`
}
