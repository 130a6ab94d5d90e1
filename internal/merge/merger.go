// Package merge wraps the LLM merge capability used by deduplication to fuse
// large duplicate clusters into a single text. A nil Merger means the
// capability is unavailable and clusters fall back to the longest member.
package merge

import "context"

// Merger fuses several near-duplicate texts into one representative text.
type Merger interface {
	Merge(ctx context.Context, contents []string) (string, error)
}

// MinResultLength is the shortest merge output accepted as usable, in
// characters. It matches the store's content minimum so an accepted merge is
// always storable; anything shorter is treated as a failed merge and the
// caller falls back.
const MinResultLength = 10
