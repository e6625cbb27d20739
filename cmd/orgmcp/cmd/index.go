package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/orgmcp/internal/config"
	"github.com/Aman-CERP/orgmcp/internal/embed"
	"github.com/Aman-CERP/orgmcp/internal/logging"
	"github.com/Aman-CERP/orgmcp/internal/service"
	"github.com/Aman-CERP/orgmcp/internal/store"
	"github.com/Aman-CERP/orgmcp/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var (
		noTUI bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "index [corpus-dir]",
		Short: "Load the corpus and rebuild the search index",
		Long: `Load corpus records, rebuild both search indexes, and persist the
artifacts so the next 'orgmcp serve' starts instantly.

Records already in the source database are indexed first, then the corpus
directory (from the argument, or corpus.dir in config) is loaded on top.
Records whose files disappeared since the last load are retired.

Use --force to discard the persisted artifacts first; required after
changing the embedding dimension.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl+C must cancel embedding batches mid-flight
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dir := ""
			if len(args) > 0 {
				dir = args[0]
			}
			return runIndex(ctx, cmd, dir, noTUI, force)
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&force, "force", false, "Discard persisted index artifacts and rebuild from scratch")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, corpusDir string, noTUI, force bool) error {
	// File-only logging so user-facing progress output stays clean
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	root := findRoot()
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if corpusDir == "" {
		corpusDir = cfg.Corpus.Dir
	}
	if corpusDir != "" && !filepath.IsAbs(corpusDir) {
		corpusDir = filepath.Join(root, corpusDir)
	}

	if force {
		if err := clearArtifacts(cfg.IndexDir(root)); err != nil {
			return fmt.Errorf("failed to clear index artifacts: %w", err)
		}
		slog.Info("index artifacts cleared", slog.String("dir", cfg.IndexDir(root)))
	}

	uiCfg := ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(noTUI), ui.WithCorpusDir(corpusDir))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	start := time.Now()
	var timings ui.StageTimings

	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageLoading,
		Message: "Opening knowledge service",
	})
	svc, err := service.Open(ctx, cfg, root)
	if err != nil {
		return fmt.Errorf("failed to open knowledge service: %w", err)
	}
	defer func() { _ = svc.Close() }()

	// Index what the database already holds, then layer the corpus on top.
	// Embedding happens inside both steps, so the load span covers it.
	loadStart := time.Now()
	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageLoading,
		Message: "Syncing records from store",
	})
	records, err := svc.SyncFromStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to index stored records: %w", err)
	}

	warnings := 0
	if corpusDir != "" {
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageEmbedding,
			Message: fmt.Sprintf("Loading corpus from %s", corpusDir),
		})
		load, err := svc.LoadCorpusDir(ctx, corpusDir)
		if err != nil {
			renderer.AddError(ui.ErrorEvent{Source: corpusDir, Err: err})
			return fmt.Errorf("failed to load corpus: %w", err)
		}
		for _, fe := range load.FileErrors {
			renderer.AddError(ui.ErrorEvent{Source: fe.Path, Err: fe.Err, IsWarn: true})
			warnings++
		}
		records = load.Indexed
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageEmbedding,
			Current: load.Indexed,
			Total:   load.Indexed,
			Message: "Corpus embedded",
		})
	}
	timings.Load = time.Since(loadStart)
	timings.Embed = timings.Load

	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageIndexing,
		Message: "Rebuilding keyword and vector indexes",
	})
	indexStart := time.Now()
	if err := svc.Rebuild(ctx); err != nil {
		return fmt.Errorf("failed to rebuild indexes: %w", err)
	}
	timings.Index = time.Since(indexStart)

	renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StagePersisting,
		Message: "Saving index artifacts",
	})
	persistStart := time.Now()
	if err := svc.Persist(ctx); err != nil {
		return fmt.Errorf("failed to persist indexes: %w", err)
	}
	timings.Persist = time.Since(persistStart)

	stats, err := svc.Statistics(ctx)
	if err != nil {
		return fmt.Errorf("failed to collect statistics: %w", err)
	}

	renderer.Complete(ui.CompletionStats{
		Records:   records,
		Documents: stats.Lifecycle.Documents,
		Duration:  time.Since(start),
		Warnings:  warnings,
		Stages:    timings,
		Embedder:  embedderInfo(cfg),
	})

	slog.Info("index complete",
		slog.Int("records", records),
		slog.Int("documents", stats.Lifecycle.Documents),
		slog.Duration("elapsed", time.Since(start)))

	return nil
}

// clearArtifacts removes the persisted index files. The source database is
// kept; a rebuild regenerates the artifacts from it.
func clearArtifacts(indexDir string) error {
	for _, name := range []string{store.VectorIndexFile, store.KeywordIndexFile} {
		path := filepath.Join(indexDir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// embedderInfo describes the configured embedding provider for completion
// output.
func embedderInfo(cfg *config.Config) ui.EmbedderInfo {
	info := ui.EmbedderInfo{
		Backend:    cfg.Embeddings.Provider,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimension,
	}
	if cfg.Embeddings.Provider == "hash" {
		info.Model = embed.HashModelID
	}
	return info
}
