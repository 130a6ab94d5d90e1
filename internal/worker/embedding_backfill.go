// Package worker contains the background loops: embedding backfill for rows
// stored while the capability was down, and periodic deduplication sweeps.
// Workers log and continue on failure; they never stop the server.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/exemplar/internal/types"
)

// BackfillStore defines the store operations needed by the backfill worker.
type BackfillStore interface {
	SelectMissingEmbeddings(ctx context.Context, limit int) ([]types.Exemplar, error)
	UpdateFields(ctx context.Context, id int64, fields types.UpdateFields) (bool, error)
}

// BatchEmbedder defines the embedding operations needed by the worker.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, contents []string) ([][]float32, error)
}

// EmbeddingBackfillWorker embeds exemplars that were stored without a vector.
type EmbeddingBackfillWorker struct {
	store       BackfillStore
	embedder    BatchEmbedder
	interval    time.Duration
	maxAttempts int
	batchSize   int
	attempts    map[int64]int // per-row attempt counter
	abandoned   map[int64]bool
}

// NewEmbeddingBackfillWorker creates a new backfill worker.
func NewEmbeddingBackfillWorker(
	s BackfillStore,
	e BatchEmbedder,
	interval time.Duration,
	maxAttempts int,
	batchSize int,
) *EmbeddingBackfillWorker {
	return &EmbeddingBackfillWorker{
		store:       s,
		embedder:    e,
		interval:    interval,
		maxAttempts: maxAttempts,
		batchSize:   batchSize,
		attempts:    make(map[int64]int),
		abandoned:   make(map[int64]bool),
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
func (w *EmbeddingBackfillWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Process immediately on start, then on each tick
	w.processMissing(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processMissing(ctx)
		}
	}
}

func (w *EmbeddingBackfillWorker) processMissing(ctx context.Context) {
	rows, err := w.store.SelectMissingEmbeddings(ctx, w.batchSize)
	if err != nil {
		slog.Error("failed to select rows for backfill",
			"error", err,
			"component", "worker",
		)
		return
	}

	// Filter out rows that have exhausted their attempts. Abandoned rows stay
	// vectorless and are served through the weight-based path only.
	var toProcess []types.Exemplar
	for _, row := range rows {
		if w.abandoned[row.ID] {
			continue
		}
		if w.attempts[row.ID] >= w.maxAttempts {
			w.abandon(row.ID)
			continue
		}
		toProcess = append(toProcess, row)
	}

	if len(toProcess) == 0 {
		return
	}

	contents := make([]string, len(toProcess))
	for i, row := range toProcess {
		contents[i] = row.Content
	}

	vectors, err := w.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		slog.Warn("backfill batch failed, will retry",
			"error", err,
			"count", len(toProcess),
			"component", "worker",
		)
		for _, row := range toProcess {
			w.attempts[row.ID]++
		}
		return
	}

	var succeeded int
	for i, row := range toProcess {
		ok, err := w.store.UpdateFields(ctx, row.ID, types.UpdateFields{
			Embedding:    vectors[i],
			SetEmbedding: true,
		})
		if err != nil {
			slog.Error("failed to persist backfilled embedding",
				"exemplar_id", row.ID,
				"error", err,
				"component", "worker",
			)
			w.attempts[row.ID]++
			continue
		}
		delete(w.attempts, row.ID)
		if ok {
			succeeded++
		}
	}

	if succeeded > 0 {
		slog.Info("backfilled embeddings",
			"action", "embedding_backfill",
			"count", succeeded,
			"component", "worker",
		)
	}
}

func (w *EmbeddingBackfillWorker) abandon(id int64) {
	slog.Error("embedding backfill permanently failed",
		"action", "embedding_backfill",
		"exemplar_id", id,
		"attempts", w.attempts[id],
		"component", "worker",
	)
	w.abandoned[id] = true
	delete(w.attempts, id)
}
