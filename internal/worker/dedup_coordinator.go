package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyperengineering/exemplar/internal/types"
)

// GroupLister exposes the set of groups eligible for deduplication sweeps.
type GroupLister interface {
	ListGroups(ctx context.Context) ([]string, error)
}

// Deduplicator defines the engine operations needed by the coordinator.
type Deduplicator interface {
	ShouldDeduplicate(ctx context.Context, groupID string) bool
	Deduplicate(ctx context.Context, groupID string, threshold float64) types.DeduplicationResult
}

// DedupCoordinator sweeps all groups periodically and runs deduplication on
// the ones that qualify.
type DedupCoordinator struct {
	lister GroupLister
	engine Deduplicator

	interval time.Duration
}

// NewDedupCoordinator creates a coordinator for periodic deduplication.
func NewDedupCoordinator(lister GroupLister, engine Deduplicator, interval time.Duration) *DedupCoordinator {
	return &DedupCoordinator{
		lister:   lister,
		engine:   engine,
		interval: interval,
	}
}

// Run starts the coordinator loop. It blocks until ctx is cancelled.
//
// Unlike EmbeddingBackfillWorker, which runs immediately on start, this
// coordinator waits for the first ticker interval. Deduplication embeds and
// may call an LLM per cluster, and running that during server startup would
// compete with the first wave of requests.
func (c *DedupCoordinator) Run(ctx context.Context) {
	slog.Info("dedup coordinator started",
		"component", "worker",
		"worker", "dedup-coordinator",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("dedup coordinator stopped",
				"component", "worker",
				"worker", "dedup-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// Sweep runs one pass over every group, continuing on individual failures.
// Exposed for one-shot invocation outside the loop.
func (c *DedupCoordinator) Sweep(ctx context.Context) []types.DeduplicationResult {
	return c.sweep(ctx)
}

func (c *DedupCoordinator) sweep(ctx context.Context) []types.DeduplicationResult {
	start := time.Now()

	groups, err := c.lister.ListGroups(ctx)
	if err != nil {
		slog.Error("failed to list groups for dedup sweep",
			"component", "worker",
			"worker", "dedup-coordinator",
			"error", err,
		)
		return nil
	}

	var results []types.DeduplicationResult
	var skipped, merged int
	for _, groupID := range groups {
		if ctx.Err() != nil {
			return results // Graceful shutdown
		}
		if !c.engine.ShouldDeduplicate(ctx, groupID) {
			skipped++
			continue
		}

		result := c.engine.Deduplicate(ctx, groupID, 0)
		merged += result.MergedCount
		results = append(results, result)
	}

	if len(results) > 0 || skipped > 0 {
		slog.Info("dedup sweep completed",
			"component", "worker",
			"worker", "dedup-coordinator",
			"groups_total", len(groups),
			"groups_swept", len(results),
			"groups_skipped", skipped,
			"exemplars_merged", merged,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return results
}
