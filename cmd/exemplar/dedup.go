package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/hyperengineering/exemplar/internal/config"
	"github.com/hyperengineering/exemplar/internal/exemplar"
	"github.com/hyperengineering/exemplar/internal/store"
	"github.com/hyperengineering/exemplar/internal/types"
	"github.com/spf13/cobra"
)

var (
	dedupGroupID   string
	dedupThreshold float64
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Run a deduplication pass without starting the server",
	Long:  "Run one deduplication pass over a single group, or sweep every eligible group, and print the results as JSON.",
	Args:  cobra.NoArgs,
	RunE:  runDedup,
}

func init() {
	dedupCmd.Flags().StringVar(&dedupGroupID, "group", "",
		"Group to deduplicate (default: sweep all eligible groups)")
	dedupCmd.Flags().Float64Var(&dedupThreshold, "threshold", 0,
		"Similarity threshold override in (0, 1]")

	rootCmd.AddCommand(dedupCmd)
}

func runDedup(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// One-shot runs log to stderr so stdout stays parseable JSON.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	})))

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	embedder, merger, _ := buildCapabilities(cfg)
	if embedder == nil {
		return fmt.Errorf("deduplication requires an embedding API key")
	}

	eng := exemplar.New(db, embedder, merger, exemplar.ParamsFromConfig(cfg))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if dedupGroupID != "" {
		return enc.Encode(eng.Deduplicate(ctx, dedupGroupID, dedupThreshold))
	}

	groups, err := db.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}

	results := []types.DeduplicationResult{}
	for _, groupID := range groups {
		if !eng.ShouldDeduplicate(ctx, groupID) {
			continue
		}
		results = append(results, eng.Deduplicate(ctx, groupID, dedupThreshold))
	}
	return enc.Encode(results)
}
