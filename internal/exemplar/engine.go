// Package exemplar implements the per-group style exemplar library: semantic
// few-shot retrieval, feedback-adjusted ranking, capacity-bounded eviction,
// and semantic deduplication. The Engine is an optimization layer, not a
// system of record: every public operation degrades instead of failing the
// caller, so store and capability errors surface as empty results and logs.
package exemplar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hyperengineering/exemplar/internal/config"
	"github.com/hyperengineering/exemplar/internal/embedding"
	"github.com/hyperengineering/exemplar/internal/merge"
	"github.com/hyperengineering/exemplar/internal/similarity"
	"github.com/hyperengineering/exemplar/internal/store"
	"github.com/hyperengineering/exemplar/internal/types"
)

// Params holds the tuning knobs for the engine. The blend split and the
// Laplace prior are heuristic, so they are parameters rather than constants.
type Params struct {
	SimilarityBlend   float64
	WeightBlend       float64
	LaplacePrior      float64
	SearchLimit       int
	VectorCacheTTL    time.Duration
	QueryPrefixLength int
	MaxPerGroup       int
	DedupThreshold    float64
	DedupBatchLimit   int
	DedupMinGroupSize int
	EmbedTimeout      time.Duration
	MergeTimeout      time.Duration
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		SimilarityBlend:   0.8,
		WeightBlend:       0.2,
		LaplacePrior:      1.0,
		SearchLimit:       100,
		VectorCacheTTL:    120 * time.Second,
		QueryPrefixLength: 80,
		MaxPerGroup:       500,
		DedupThreshold:    0.85,
		DedupBatchLimit:   200,
		DedupMinGroupSize: 10,
		EmbedTimeout:      30 * time.Second,
		MergeTimeout:      60 * time.Second,
	}
}

// ParamsFromConfig maps the loaded configuration onto engine parameters.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		SimilarityBlend:   cfg.Ranking.SimilarityBlend,
		WeightBlend:       cfg.Ranking.WeightBlend,
		LaplacePrior:      cfg.Ranking.LaplacePrior,
		SearchLimit:       cfg.Ranking.SearchLimit,
		VectorCacheTTL:    time.Duration(cfg.Ranking.VectorCacheTTL),
		QueryPrefixLength: cfg.Ranking.QueryPrefixLength,
		MaxPerGroup:       cfg.Capacity.MaxPerGroup,
		DedupThreshold:    cfg.Deduplication.SimilarityThreshold,
		DedupBatchLimit:   cfg.Deduplication.BatchLimit,
		DedupMinGroupSize: cfg.Deduplication.MinGroupSize,
		EmbedTimeout:      time.Duration(cfg.Embedding.Timeout),
		MergeTimeout:      time.Duration(cfg.Merge.Timeout),
	}
}

// Engine is the exemplar library facade. A nil embedder disables the vector
// pipeline (retrieval falls back to weight ordering, deduplication becomes a
// no-op); a nil merger makes every cluster fall back to its longest member.
type Engine struct {
	store    store.Store
	embedder embedding.Embedder
	merger   merge.Merger
	scorer   similarity.Scorer
	params   Params

	mu          sync.Mutex
	vectorCache map[string]*groupCache
	queryCache  map[string][]float32
}

// groupCache holds one group's loaded candidate set.
type groupCache struct {
	loadedAt  time.Time
	exemplars []types.Exemplar
}

// New creates an Engine. embedder and merger may be nil.
func New(st store.Store, embedder embedding.Embedder, merger merge.Merger, params Params) *Engine {
	return &Engine{
		store:       st,
		embedder:    embedder,
		merger:      merger,
		scorer:      similarity.Default(),
		params:      params,
		vectorCache: make(map[string]*groupCache),
		queryCache:  make(map[string][]float32),
	}
}

// AddExemplar stores a new exemplar and returns its id. Content shorter than
// the store's minimum length yields (0, false) with no I/O. The embedding is
// generated lazily if the capability fails here; the row is still stored and
// backfilled later.
func (e *Engine) AddExemplar(ctx context.Context, content, groupID, senderID string) (int64, bool) {
	if utf8.RuneCountInString(strings.TrimSpace(content)) < store.MinContentLength {
		return 0, false
	}

	ex := types.Exemplar{
		Content:  content,
		GroupID:  groupID,
		SenderID: senderID,
		Weight:   1.0,
	}

	if e.embedder != nil {
		vec, err := e.embedText(ctx, content)
		if err != nil {
			slog.Warn("embedding failed on insert, storing without vector",
				"component", "exemplar",
				"group_id", groupID,
				"error", err,
			)
		} else {
			ex.Embedding = vec
		}
	}

	id, err := e.store.Insert(ctx, ex)
	if err != nil {
		slog.Error("insert failed",
			"component", "exemplar",
			"group_id", groupID,
			"error", err,
		)
		return 0, false
	}

	e.invalidateGroup(groupID)
	e.evictExcess(ctx, groupID)

	return id, true
}

// DeleteExemplar removes a single exemplar and drops its group's candidate
// cache. Returns false when the row does not exist or the store fails.
func (e *Engine) DeleteExemplar(ctx context.Context, id int64) bool {
	groupID, err := e.store.DeleteOne(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("delete failed",
				"component", "exemplar",
				"exemplar_id", id,
				"error", err,
			)
		}
		return false
	}

	e.invalidateGroup(groupID)
	return true
}

// GetGroupStats returns aggregate statistics for the group. Store failures
// yield zero stats.
func (e *Engine) GetGroupStats(ctx context.Context, groupID string) types.GroupStats {
	stats, err := e.store.GroupStats(ctx, groupID)
	if err != nil {
		slog.Error("group stats failed",
			"component", "exemplar",
			"group_id", groupID,
			"error", err,
		)
		return types.GroupStats{}
	}
	return *stats
}

// evictExcess trims the group back to MaxPerGroup after an insert. Eviction
// is best-effort: failure must not fail the insert that triggered it.
func (e *Engine) evictExcess(ctx context.Context, groupID string) {
	count, err := e.store.Count(ctx, groupID)
	if err != nil {
		slog.Warn("eviction count failed",
			"component", "exemplar",
			"group_id", groupID,
			"error", err,
		)
		return
	}

	excess := count - e.params.MaxPerGroup
	if excess <= 0 {
		return
	}

	evicted, err := e.store.EvictLowestRanked(ctx, groupID, excess)
	if err != nil {
		slog.Warn("eviction failed",
			"component", "exemplar",
			"group_id", groupID,
			"excess", excess,
			"error", err,
		)
		return
	}

	slog.Info("evicted excess exemplars",
		"component", "exemplar",
		"group_id", groupID,
		"evicted", evicted,
	)
	e.invalidateGroup(groupID)
}

// embedText generates an embedding with the engine's timeout bound. Vectors
// that do not match the capability's fixed dimensionality are rejected so a
// misconfigured deployment cannot mix widths in one group.
func (e *Engine) embedText(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.params.EmbedTimeout)
	defer cancel()

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.checkDimensions(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// checkDimensions verifies a vector against the embedder's declared width.
// A zero declaration means the width is not pinned.
func (e *Engine) checkDimensions(vec []float32) error {
	if want := e.embedder.Dimensions(); want > 0 && len(vec) != want {
		return fmt.Errorf("embedding has %d dimensions, expected %d", len(vec), want)
	}
	return nil
}

// invalidateGroup drops the cached candidate set for a group.
func (e *Engine) invalidateGroup(groupID string) {
	e.mu.Lock()
	delete(e.vectorCache, groupID)
	e.mu.Unlock()
}
