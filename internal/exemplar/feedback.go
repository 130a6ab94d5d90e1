package exemplar

import (
	"context"
	"log/slog"
)

// RecordHelpful increments the helpful counter on one exemplar.
func (e *Engine) RecordHelpful(ctx context.Context, id int64) bool {
	return e.recordFeedback(ctx, []int64{id}, true) == 1
}

// RecordHarmful increments the harmful counter on one exemplar.
func (e *Engine) RecordHarmful(ctx context.Context, id int64) bool {
	return e.recordFeedback(ctx, []int64{id}, false) == 1
}

// RecordFeedbackBatch applies the same increment to a set of ids in one pass
// and returns the number of rows updated.
func (e *Engine) RecordFeedbackBatch(ctx context.Context, ids []int64, helpful bool) int64 {
	if len(ids) == 0 {
		return 0
	}
	return e.recordFeedback(ctx, ids, helpful)
}

func (e *Engine) recordFeedback(ctx context.Context, ids []int64, helpful bool) int64 {
	affected, err := e.store.IncrementFeedback(ctx, ids, helpful)
	if err != nil {
		slog.Error("feedback update failed",
			"component", "exemplar",
			"ids", len(ids),
			"helpful", helpful,
			"error", err,
		)
		return 0
	}
	return affected
}

// AdjustWeight adds delta to the exemplar's quality weight, clamped at zero.
func (e *Engine) AdjustWeight(ctx context.Context, id int64, delta float64) bool {
	ok, err := e.store.AdjustWeight(ctx, id, delta)
	if err != nil {
		slog.Error("weight adjustment failed",
			"component", "exemplar",
			"exemplar_id", id,
			"delta", delta,
			"error", err,
		)
		return false
	}
	return ok
}
