package store

import (
	"context"

	"github.com/hyperengineering/exemplar/internal/types"
)

// Store defines the interface contract for exemplar persistence. All
// operations are scoped by group_id unless they take explicit ids.
type Store interface {
	// Insert persists a new exemplar and returns its assigned id. Content
	// shorter than the minimum length (after trimming) is rejected with
	// ErrContentTooShort before any write.
	Insert(ctx context.Context, ex types.Exemplar) (int64, error)

	// UpdateFields applies a partial update. Returns false when no row matched.
	UpdateFields(ctx context.Context, id int64, fields types.UpdateFields) (bool, error)

	// DeleteMany removes the given rows and returns the number deleted.
	DeleteMany(ctx context.Context, ids []int64) (int64, error)

	// DeleteOne removes a single row and returns its group id. Returns
	// ErrNotFound when no row matched.
	DeleteOne(ctx context.Context, id int64) (string, error)

	// SelectTopByWeight returns up to limit rows ordered by weight desc,
	// created_at desc.
	SelectTopByWeight(ctx context.Context, groupID string, limit int) ([]types.Exemplar, error)

	// SelectWithEmbeddings returns up to limit rows with non-null embeddings,
	// same ordering as SelectTopByWeight.
	SelectWithEmbeddings(ctx context.Context, groupID string, limit int) ([]types.Exemplar, error)

	// Count returns the number of rows in the group.
	Count(ctx context.Context, groupID string) (int, error)

	// AggregateFeedback sums helpful/harmful counters and takes the maximum
	// weight over the given rows.
	AggregateFeedback(ctx context.Context, ids []int64) (*types.FeedbackAggregate, error)

	// IncrementFeedback bumps the helpful or harmful counter by one on every
	// given row in a single statement. Returns rows affected.
	IncrementFeedback(ctx context.Context, ids []int64, helpful bool) (int64, error)

	// AdjustWeight adds delta to the row's weight, clamping at zero.
	AdjustWeight(ctx context.Context, id int64, delta float64) (bool, error)

	// EvictLowestRanked deletes the excess rows with the smallest
	// (weight, created_at) tuples from the group.
	EvictLowestRanked(ctx context.Context, groupID string, excess int) (int64, error)

	// GroupStats returns aggregate statistics for one group.
	GroupStats(ctx context.Context, groupID string) (*types.GroupStats, error)

	// ListGroups returns the distinct group ids currently stored.
	ListGroups(ctx context.Context) ([]string, error)

	// SelectMissingEmbeddings returns rows without a vector across all groups,
	// oldest first, for background backfill.
	SelectMissingEmbeddings(ctx context.Context, limit int) ([]types.Exemplar, error)

	// TotalCount returns the number of rows across all groups.
	TotalCount(ctx context.Context) (int64, error)

	Close() error
}
