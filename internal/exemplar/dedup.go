package exemplar

import (
	"context"
	"log/slog"

	"github.com/hyperengineering/exemplar/internal/types"
	"github.com/oklog/ulid/v2"
)

// ShouldDeduplicate reports whether a deduplication pass is worth running:
// the group must hold at least DedupMinGroupSize exemplars and an embedding
// capability must be configured. Schedulers call this before Deduplicate.
func (e *Engine) ShouldDeduplicate(ctx context.Context, groupID string) bool {
	if e.embedder == nil {
		return false
	}

	count, err := e.store.Count(ctx, groupID)
	if err != nil {
		slog.Warn("dedup gating count failed",
			"component", "exemplar",
			"group_id", groupID,
			"error", err,
		)
		return false
	}

	return count >= e.params.DedupMinGroupSize
}

// Deduplicate collapses semantic near-duplicates in one group. Rows whose
// pairwise cosine similarity reaches threshold are clustered with Union-Find;
// each cluster is merged into its highest-weight member with feedback
// counters aggregated, and the redundant rows are deleted. A merge never
// loses feedback mass and never increases the row count.
//
// threshold <= 0 selects the configured default.
func (e *Engine) Deduplicate(ctx context.Context, groupID string, threshold float64) types.DeduplicationResult {
	if threshold <= 0 {
		threshold = e.params.DedupThreshold
	}

	result := types.DeduplicationResult{
		RunID:    ulid.Make().String(),
		GroupID:  groupID,
		Clusters: []types.Cluster{},
	}

	// No embedding capability: success with zero merges.
	if e.embedder == nil {
		return result
	}

	rows, err := e.store.SelectTopByWeight(ctx, groupID, e.params.DedupBatchLimit)
	if err != nil {
		slog.Error("dedup load failed",
			"component", "exemplar",
			"group_id", groupID,
			"run_id", result.RunID,
			"error", err,
		)
		return result
	}

	result.OriginalCount = len(rows)
	result.FinalCount = len(rows)
	if len(rows) < 2 {
		return result
	}

	rows = e.backfillEmbeddings(ctx, groupID, rows)
	if len(rows) < 2 {
		return result
	}

	vectors := make([][]float32, len(rows))
	for i := range rows {
		vectors[i] = rows[i].Embedding
	}
	matrix := e.scorer.Matrix(vectors)

	uf := newUnionFind(len(rows))
	for i := 0; i < len(rows); i++ {
		for j := i + 1; j < len(rows); j++ {
			if matrix[i][j] >= threshold {
				uf.union(i, j)
			}
		}
	}

	for _, set := range uf.sets() {
		if len(set) < 2 {
			continue
		}

		cluster := make([]types.Exemplar, len(set))
		for i, idx := range set {
			cluster[i] = rows[idx]
		}

		merged := e.mergeCluster(ctx, groupID, cluster)
		if merged == nil {
			continue
		}

		result.MergedCount += len(cluster) - 1
		result.Clusters = append(result.Clusters, *merged)
	}

	result.FinalCount = result.OriginalCount - result.MergedCount

	if result.MergedCount > 0 {
		e.invalidateGroup(groupID)
		slog.Info("deduplication pass completed",
			"component", "exemplar",
			"group_id", groupID,
			"run_id", result.RunID,
			"original", result.OriginalCount,
			"merged", result.MergedCount,
			"final", result.FinalCount,
		)
	}

	return result
}

// backfillEmbeddings ensures every row has a vector, batch-embedding the ones
// that lack one and persisting the new vectors immediately so future passes
// skip the work. Rows that still lack a vector after a failed batch are
// dropped from the pass.
func (e *Engine) backfillEmbeddings(ctx context.Context, groupID string, rows []types.Exemplar) []types.Exemplar {
	var missing []int
	for i := range rows {
		if !rows[i].HasEmbedding() {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return rows
	}

	contents := make([]string, len(missing))
	for i, idx := range missing {
		contents[i] = rows[idx].Content
	}

	embedCtx, cancel := context.WithTimeout(ctx, e.params.EmbedTimeout)
	vectors, err := e.embedder.EmbedBatch(embedCtx, contents)
	cancel()
	if err != nil {
		slog.Warn("dedup embedding backfill failed, continuing with embedded rows",
			"component", "exemplar",
			"group_id", groupID,
			"missing", len(missing),
			"error", err,
		)
		kept := rows[:0]
		for i := range rows {
			if rows[i].HasEmbedding() {
				kept = append(kept, rows[i])
			}
		}
		return kept
	}

	for i, idx := range missing {
		if err := e.checkDimensions(vectors[i]); err != nil {
			slog.Warn("backfilled vector rejected",
				"component", "exemplar",
				"group_id", groupID,
				"exemplar_id", rows[idx].ID,
				"error", err,
			)
			continue
		}
		rows[idx].Embedding = vectors[i]

		// Persist, log on failure, continue: a lost write only means the next
		// pass re-embeds this row.
		ok, err := e.store.UpdateFields(ctx, rows[idx].ID, types.UpdateFields{
			Embedding:    vectors[i],
			SetEmbedding: true,
		})
		if err != nil || !ok {
			slog.Warn("embedding write-back failed",
				"component", "exemplar",
				"group_id", groupID,
				"exemplar_id", rows[idx].ID,
				"error", err,
			)
		}
	}

	kept := rows[:0]
	for i := range rows {
		if rows[i].HasEmbedding() {
			kept = append(kept, rows[i])
		}
	}
	return kept
}

// mergeCluster fuses one cluster into its highest-weight member. Returns nil
// when persistence fails; in that case nothing is deleted so no feedback mass
// can be lost.
func (e *Engine) mergeCluster(ctx context.Context, groupID string, cluster []types.Exemplar) *types.Cluster {
	ids := make([]int64, len(cluster))
	contents := make([]string, len(cluster))
	for i := range cluster {
		ids[i] = cluster[i].ID
		contents[i] = cluster[i].Content
	}

	content := e.representativeContent(ctx, groupID, contents)

	agg, err := e.store.AggregateFeedback(ctx, ids)
	if err != nil {
		slog.Error("cluster aggregation failed, skipping cluster",
			"component", "exemplar",
			"group_id", groupID,
			"cluster_size", len(cluster),
			"error", err,
		)
		return nil
	}

	fields := types.UpdateFields{
		Content:      &content,
		Weight:       &agg.MaxWeight,
		HelpfulCount: &agg.TotalHelpful,
		HarmfulCount: &agg.TotalHarmful,
	}

	// Re-embed the merged text; absence is tolerated and backfilled later.
	if vec, err := e.embedText(ctx, content); err != nil {
		slog.Warn("merged text embedding failed",
			"component", "exemplar",
			"group_id", groupID,
			"exemplar_id", ids[0],
			"error", err,
		)
		fields.SetEmbedding = true // clear the stale vector
	} else {
		fields.Embedding = vec
		fields.SetEmbedding = true
	}

	primary := ids[0]
	ok, err := e.store.UpdateFields(ctx, primary, fields)
	if err != nil || !ok {
		slog.Error("cluster merge write failed, skipping cluster",
			"component", "exemplar",
			"group_id", groupID,
			"exemplar_id", primary,
			"error", err,
		)
		return nil
	}

	redundant := ids[1:]
	if _, err := e.store.DeleteMany(ctx, redundant); err != nil {
		slog.Error("redundant row deletion failed",
			"component", "exemplar",
			"group_id", groupID,
			"exemplar_id", primary,
			"error", err,
		)
		return nil
	}

	return &types.Cluster{PrimaryID: primary, MemberIDs: ids}
}

// representativeContent picks the merged text for a cluster. Pairs stay free
// of LLM cost: the longest member wins. Clusters of three or more go through
// the merge capability when one is configured, falling back to the longest
// member on failure.
func (e *Engine) representativeContent(ctx context.Context, groupID string, contents []string) string {
	if len(contents) >= 3 && e.merger != nil {
		mergeCtx, cancel := context.WithTimeout(ctx, e.params.MergeTimeout)
		merged, err := e.merger.Merge(mergeCtx, contents)
		cancel()
		if err == nil {
			return merged
		}
		slog.Warn("LLM merge failed, using longest member",
			"component", "exemplar",
			"group_id", groupID,
			"cluster_size", len(contents),
			"error", err,
		)
	}

	longest := contents[0]
	for _, c := range contents[1:] {
		if len(c) > len(longest) {
			longest = c
		}
	}
	return longest
}
