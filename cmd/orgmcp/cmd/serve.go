package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/orgmcp/internal/config"
	"github.com/Aman-CERP/orgmcp/internal/logging"
	mcpserver "github.com/Aman-CERP/orgmcp/internal/mcp"
	"github.com/Aman-CERP/orgmcp/internal/service"
	"github.com/Aman-CERP/orgmcp/internal/watcher"
)

// serveOptions holds CLI flags for serve.
type serveOptions struct {
	corpusDir string
	watch     bool
	logLevel  string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start the MCP server, speaking JSON-RPC over stdin/stdout.

The server restores persisted index artifacts when present and rebuilds
from the source store otherwise, so it always comes up searchable. When a
corpus directory is configured (or given with --corpus) it is loaded
before the server accepts requests.

With --watch, corpus files are watched and re-indexed as they change.

All logs go to a file (~/.orgmcp/logs/server.log by default) because
stdout carries the MCP protocol. Use 'orgmcp-logs -f' to follow them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.corpusDir, "corpus", "", "Corpus directory to load (overrides config)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Re-index when corpus files change")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Server log level (debug|info|warn|error)")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	// Stdout is reserved for JSON-RPC; logs must go to a file only.
	var (
		cleanup func()
		err     error
	)
	if opts.logLevel != "" {
		cleanup, err = logging.SetupMCPModeWithLevel(opts.logLevel)
	} else {
		cleanup, err = logging.SetupMCPMode()
	}
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	root := findRoot()
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	svc, err := service.Open(ctx, cfg, root)
	if err != nil {
		return fmt.Errorf("failed to open knowledge service: %w", err)
	}
	defer func() { _ = svc.Close() }()

	restored, err := svc.Restore(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore indexes: %w", err)
	}
	slog.Info("indexes ready", slog.Bool("from_artifacts", restored))

	corpusDir := resolveCorpusDir(cfg, root, opts.corpusDir)
	if corpusDir != "" {
		if err := loadCorpus(ctx, svc, corpusDir); err != nil {
			return err
		}
	}

	srv, err := mcpserver.NewServer(svc)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	srv.RegisterDocumentResources()

	if (opts.watch || cfg.Corpus.Watch) && corpusDir != "" {
		stopWatch, err := watchCorpus(ctx, svc, cfg, corpusDir)
		if err != nil {
			// A missing watcher degrades to manual re-indexing, not a fatal error
			slog.Warn("corpus watcher unavailable", slog.String("error", err.Error()))
		} else {
			defer stopWatch()
		}
	}

	slog.Info("mcp server starting", slog.String("root", root))
	serveErr := srv.Serve(ctx)

	// Persist with a fresh context; ctx is usually cancelled by the time
	// the transport returns.
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.Persist(persistCtx); err != nil {
		slog.Warn("failed to persist indexes on shutdown", slog.String("error", err.Error()))
	} else {
		slog.Info("indexes persisted")
	}

	return serveErr
}

// resolveCorpusDir picks the corpus directory from the flag or config and
// anchors relative paths at the project root. Empty means no corpus.
func resolveCorpusDir(cfg *config.Config, root, override string) string {
	dir := override
	if dir == "" {
		dir = cfg.Corpus.Dir
	}
	if dir == "" {
		return ""
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	return dir
}

// loadCorpus loads the corpus directory, logging per-file parse failures
// as warnings rather than aborting.
func loadCorpus(ctx context.Context, svc *service.KnowledgeService, dir string) error {
	load, err := svc.LoadCorpusDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to load corpus %s: %w", dir, err)
	}
	for _, fe := range load.FileErrors {
		slog.Warn("corpus file skipped",
			slog.String("file", fe.Path),
			slog.String("error", fe.Err.Error()))
	}
	slog.Info("corpus loaded",
		slog.String("dir", dir),
		slog.Int("indexed", load.Indexed),
		slog.Int("removed", load.Removed),
		slog.Int("file_errors", len(load.FileErrors)))
	return nil
}

// watchCorpus starts a file watcher over the corpus directory and reloads
// the whole directory whenever a debounced batch of changes arrives. The
// returned function stops the watcher.
func watchCorpus(ctx context.Context, svc *service.KnowledgeService, cfg *config.Config, dir string) (func(), error) {
	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: time.Duration(cfg.Corpus.DebounceMS) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx, dir); err != nil {
		return nil, err
	}
	slog.Info("corpus watcher started",
		slog.String("dir", dir),
		slog.String("type", w.WatcherType()))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-w.Events():
				if !ok {
					return
				}
				slog.Debug("corpus change detected", slog.Int("events", len(batch)))
				// Reload the whole directory: the loader retires records
				// whose files disappeared, so a full pass handles deletes.
				if err := loadCorpus(ctx, svc, dir); err != nil {
					slog.Warn("corpus reload failed", slog.String("error", err.Error()))
				}
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				slog.Warn("corpus watcher error", slog.String("error", err.Error()))
			}
		}
	}()

	return func() { _ = w.Stop() }, nil
}
