package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hyperengineering/exemplar/internal/exemplar"
	"github.com/hyperengineering/exemplar/internal/store"
	"github.com/hyperengineering/exemplar/internal/types"
	"github.com/hyperengineering/exemplar/internal/validation"
)

// DefaultSearchLimit applies when a search request omits the limit.
const DefaultSearchLimit = 5

// MaxContentLength bounds accepted exemplar content in runes.
const MaxContentLength = 10000

// MaxGroupIDLength bounds accepted group identifiers in runes.
const MaxGroupIDLength = 256

// Handler implements the API handlers
type Handler struct {
	engine    *exemplar.Engine
	store     store.Store
	apiKey    string
	version   string
	modelName string
}

// NewHandler creates a new Handler around the exemplar engine. modelName is
// empty when no embedding capability is configured.
func NewHandler(engine *exemplar.Engine, st store.Store, apiKey, version, modelName string) *Handler {
	return &Handler{
		engine:    engine,
		store:     st,
		apiKey:    apiKey,
		version:   version,
		modelName: modelName,
	}
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.TotalCount(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	resp := types.HealthResponse{
		Status:         "healthy",
		Version:        h.version,
		EmbeddingModel: h.modelName,
		ExemplarCount:  count,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// AddExemplar handles POST /api/v1/exemplars
func (h *Handler) AddExemplar(w http.ResponseWriter, r *http.Request) {
	var req types.AddExemplarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	var c validation.Collector
	c.Add(validation.ValidateRequired("content", req.Content))
	c.Add(validation.ValidateUTF8("content", req.Content))
	c.Add(validation.ValidateNoNullBytes("content", req.Content))
	c.Add(validation.ValidateMinLength("content", req.Content, store.MinContentLength))
	c.Add(validation.ValidateMaxLength("content", req.Content, MaxContentLength))
	c.Add(validation.ValidateRequired("group_id", req.GroupID))
	c.Add(validation.ValidateMaxLength("group_id", req.GroupID, MaxGroupIDLength))
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", c.Errors())
		return
	}

	id, ok := h.engine.AddExemplar(r.Context(), req.Content, req.GroupID, req.SenderID)
	if !ok {
		WriteProblem(w, r, http.StatusInternalServerError, "Failed to store exemplar")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(types.AddExemplarResponse{ID: id})
}

// Search handles POST /api/v1/exemplars/search
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var req types.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	var c validation.Collector
	c.Add(validation.ValidateRequired("group_id", req.GroupID))
	c.Add(validation.ValidateUTF8("query", req.Query))
	if c.HasErrors() {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", c.Errors())
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	examples := h.engine.GetFewShotExamplesWithIDs(r.Context(), req.Query, req.GroupID, limit)
	if examples == nil {
		examples = []types.FewShotExample{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(types.SearchResponse{Examples: examples})
}

// Feedback handles POST /api/v1/exemplars/feedback
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req types.FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	if len(req.IDs) == 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{
			{Field: "ids", Message: "is required"},
		})
		return
	}

	updated := h.engine.RecordFeedbackBatch(r.Context(), req.IDs, req.Helpful)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(types.FeedbackResponse{Updated: updated})
}

// AdjustWeight handles POST /api/v1/exemplars/{id}/weight
func (h *Handler) AdjustWeight(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid exemplar id")
		return
	}

	var req types.WeightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	if !h.engine.AdjustWeight(r.Context(), id, req.Delta) {
		WriteProblem(w, r, http.StatusNotFound, "Exemplar not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteExemplar handles DELETE /api/v1/exemplars/{id}
func (h *Handler) DeleteExemplar(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "Invalid exemplar id")
		return
	}

	if !h.engine.DeleteExemplar(r.Context(), id) {
		WriteProblem(w, r, http.StatusNotFound, "Exemplar not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GroupStats handles GET /api/v1/groups/{groupID}/stats
func (h *Handler) GroupStats(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	stats := h.engine.GetGroupStats(r.Context(), groupID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// Deduplicate handles POST /api/v1/groups/{groupID}/dedup. An optional
// threshold query parameter overrides the configured similarity threshold.
func (h *Handler) Deduplicate(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var threshold float64
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 || parsed > 1 {
			WriteProblem(w, r, http.StatusBadRequest, "threshold must be a number in (0, 1]")
			return
		}
		threshold = parsed
	}

	result := h.engine.Deduplicate(r.Context(), groupID, threshold)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
