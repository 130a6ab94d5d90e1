package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hyperengineering/exemplar/internal/api"
	"github.com/hyperengineering/exemplar/internal/config"
	"github.com/hyperengineering/exemplar/internal/embedding"
	"github.com/hyperengineering/exemplar/internal/exemplar"
	"github.com/hyperengineering/exemplar/internal/merge"
	"github.com/hyperengineering/exemplar/internal/store"
	"github.com/hyperengineering/exemplar/internal/worker"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "exemplar",
	Short: "Exemplar - Style Exemplar Service",
	RunE:  run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	initLogger(cfg)
	slog.Info("configuration loaded")

	// 4. Initialize store (migrations, WAL mode)
	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// 5. Initialize capabilities. Without an API key the service runs in
	// degraded mode: weight-based retrieval only, no deduplication.
	embedder, merger, modelName := buildCapabilities(cfg)

	// 6. Initialize the engine
	eng := exemplar.New(db, embedder, merger, exemplar.ParamsFromConfig(cfg))
	slog.Info("engine initialized", "embedding_model", modelName)

	// 7. Initialize HTTP router
	handler := api.NewHandler(eng, db, cfg.Auth.APIKey, Version, modelName)
	router := api.NewRouter(handler)

	// 8. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 9. Start background workers
	var wg sync.WaitGroup
	if embedder != nil {
		backfill := worker.NewEmbeddingBackfillWorker(
			db,
			embedder,
			time.Duration(cfg.Worker.EmbeddingRetryInterval),
			cfg.Worker.EmbeddingRetryMaxAttempts,
			cfg.Worker.EmbeddingRetryBatchSize,
		)
		startWorker(ctx, &wg, "embedding-backfill", backfill.Run)

		dedup := worker.NewDedupCoordinator(db, eng, time.Duration(cfg.Worker.DedupInterval))
		startWorker(ctx, &wg, "dedup-coordinator", dedup.Run)
	}

	// 10. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called
		// gracefully. Anything else is a real failure.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 11. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 12. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 12a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 12b. Wait for workers to complete
	wg.Wait()

	// 12c. Close store
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// buildCapabilities wires the OpenAI-backed embedder and merger when an API
// key is configured. Both are nil in degraded mode.
func buildCapabilities(cfg *config.Config) (embedding.Embedder, merge.Merger, string) {
	if cfg.Embedding.APIKey == "" {
		slog.Warn("no embedding API key configured, running in degraded mode")
		return nil, nil, ""
	}

	embedder := embedding.NewOpenAI(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)

	var merger merge.Merger
	if cfg.Merge.Enabled {
		merger = merge.NewOpenAI(cfg.Embedding.APIKey, cfg.Merge.Model)
	}

	return embedder, merger, embedder.ModelName()
}

func initLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}

	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context
// cancellation. Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
