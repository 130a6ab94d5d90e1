package exemplar

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/hyperengineering/exemplar/internal/types"
)

// GetFewShotExamples returns the top-k exemplar contents for the query.
// Empty groups and store failures yield an empty slice, never an error.
func (e *Engine) GetFewShotExamples(ctx context.Context, query, groupID string, k int) []string {
	examples := e.GetFewShotExamplesWithIDs(ctx, query, groupID, k)
	contents := make([]string, len(examples))
	for i, ex := range examples {
		contents[i] = ex.Content
	}
	return contents
}

// GetFewShotExamplesWithIDs is GetFewShotExamples with row ids attached, for
// callers that report feedback on what they were shown.
func (e *Engine) GetFewShotExamplesWithIDs(ctx context.Context, query, groupID string, k int) []types.FewShotExample {
	if k <= 0 {
		return []types.FewShotExample{}
	}

	if e.embedder == nil {
		return e.weightBasedSearch(ctx, groupID, k)
	}

	queryVec, err := e.queryEmbedding(ctx, query)
	if err != nil {
		slog.Warn("query embedding failed, falling back to weight-based search",
			"component", "exemplar",
			"group_id", groupID,
			"error", err,
		)
		return e.weightBasedSearch(ctx, groupID, k)
	}

	candidates := e.candidates(ctx, groupID)
	if len(candidates) == 0 {
		return e.weightBasedSearch(ctx, groupID, k)
	}

	vectors := make([][]float32, len(candidates))
	for i := range candidates {
		vectors[i] = candidates[i].Embedding
	}

	similarities := e.scorer.Scores(queryVec, vectors)

	type scored struct {
		index int
		score float64
	}
	ranked := make([]scored, len(candidates))
	for i := range candidates {
		blended := similarities[i]*e.params.SimilarityBlend +
			e.effectiveWeight(&candidates[i])*e.params.WeightBlend
		ranked[i] = scored{index: i, score: blended}
	}

	// Stable sort keeps candidate (weight desc) order on score ties.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if k > len(ranked) {
		k = len(ranked)
	}

	result := make([]types.FewShotExample, k)
	for i := 0; i < k; i++ {
		c := &candidates[ranked[i].index]
		result[i] = types.FewShotExample{ID: c.ID, Content: c.Content}
	}
	return result
}

// effectiveWeight blends the base weight with the Laplace-smoothed empirical
// helpfulness ratio. With zero feedback the ratio is 0.5, so unproven rows
// rank below proven-helpful rows of equal base weight.
func (e *Engine) effectiveWeight(ex *types.Exemplar) float64 {
	prior := e.params.LaplacePrior
	helpful := float64(ex.HelpfulCount)
	harmful := float64(ex.HarmfulCount)
	return ex.Weight * (helpful + prior) / (helpful + harmful + 2*prior)
}

// weightBasedSearch is the non-vector fallback: top-k by (weight desc,
// created_at desc) straight from the store.
func (e *Engine) weightBasedSearch(ctx context.Context, groupID string, k int) []types.FewShotExample {
	rows, err := e.store.SelectTopByWeight(ctx, groupID, k)
	if err != nil {
		slog.Error("weight-based search failed",
			"component", "exemplar",
			"group_id", groupID,
			"error", err,
		)
		return []types.FewShotExample{}
	}

	result := make([]types.FewShotExample, len(rows))
	for i, row := range rows {
		result[i] = types.FewShotExample{ID: row.ID, Content: row.Content}
	}
	return result
}

// queryEmbedding returns the query vector, reusing cached vectors for queries
// sharing the same prefix. Repeated or near-identical queries skip the
// embedding call entirely.
func (e *Engine) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	key := queryPrefix(query, e.params.QueryPrefixLength)

	e.mu.Lock()
	vec, ok := e.queryCache[key]
	e.mu.Unlock()
	if ok {
		return vec, nil
	}

	vec, err := e.embedText(ctx, query)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.queryCache[key] = vec
	e.mu.Unlock()
	return vec, nil
}

// queryPrefix truncates on rune boundaries so multi-byte queries never split
// a character.
func queryPrefix(query string, limit int) string {
	runes := []rune(query)
	if len(runes) <= limit {
		return query
	}
	return string(runes[:limit])
}

// candidates returns the group's embedded rows, served from the TTL cache
// when fresh. Store failures degrade to an empty candidate set.
func (e *Engine) candidates(ctx context.Context, groupID string) []types.Exemplar {
	e.mu.Lock()
	cached, ok := e.vectorCache[groupID]
	if ok && time.Since(cached.loadedAt) < e.params.VectorCacheTTL {
		exemplars := cached.exemplars
		e.mu.Unlock()
		return exemplars
	}
	e.mu.Unlock()

	rows, err := e.store.SelectWithEmbeddings(ctx, groupID, e.params.SearchLimit)
	if err != nil {
		slog.Error("candidate load failed",
			"component", "exemplar",
			"group_id", groupID,
			"error", err,
		)
		return nil
	}

	e.mu.Lock()
	e.vectorCache[groupID] = &groupCache{loadedAt: time.Now(), exemplars: rows}
	e.mu.Unlock()
	return rows
}
