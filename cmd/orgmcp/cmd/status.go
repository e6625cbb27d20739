package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/orgmcp/internal/config"
	"github.com/Aman-CERP/orgmcp/internal/embed"
	"github.com/Aman-CERP/orgmcp/internal/store"
	"github.com/Aman-CERP/orgmcp/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and status",
		Long: `Display information about the current index including:
  - Number of indexed profiles and knowledge entries
  - When the index artifacts were last written
  - Storage sizes (database, vector index, keyword index)
  - Embedding provider configuration`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	root := findRoot()
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbPath := cfg.DatabasePath(root)
	if !fileExists(dbPath) {
		return fmt.Errorf("no index found in %s\nRun 'orgmcp index' to create one", root)
	}

	info, err := collectStatus(ctx, cfg, root)
	if err != nil {
		return fmt.Errorf("failed to collect status: %w", err)
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

// collectStatus reads counts from the source database and sizes from the
// artifact files. It deliberately avoids opening the full service so status
// works even when the embedding provider is misconfigured.
func collectStatus(ctx context.Context, cfg *config.Config, root string) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		Name: filepath.Base(root),
	}

	dbPath := cfg.DatabasePath(root)
	sources, err := store.NewSourceStore(dbPath)
	if err != nil {
		return info, fmt.Errorf("open source store: %w", err)
	}
	defer func() { _ = sources.Close() }()

	if info.Profiles, err = sources.CountProfiles(ctx); err != nil {
		return info, fmt.Errorf("count profiles: %w", err)
	}
	if info.Knowledge, err = sources.CountKnowledge(ctx); err != nil {
		return info, fmt.Errorf("count knowledge entries: %w", err)
	}
	info.Documents = info.Profiles + info.Knowledge

	indexDir := cfg.IndexDir(root)
	vectorPath := filepath.Join(indexDir, store.VectorIndexFile)
	keywordPath := filepath.Join(indexDir, store.KeywordIndexFile)

	info.DatabaseSize = getFileSize(dbPath)
	info.VectorIndexSize = getFileSize(vectorPath)
	info.KeywordIndexSize = getFileSize(keywordPath)
	info.TotalSize = info.DatabaseSize + info.VectorIndexSize + info.KeywordIndexSize

	// The artifact mtime is when the index was last persisted
	if st, err := os.Stat(vectorPath); err == nil {
		info.LastRebuilt = st.ModTime()
	}

	info.EmbedderType = cfg.Embeddings.Provider
	info.EmbedderStatus = "ready"
	info.EmbedderModel = cfg.Embeddings.Model
	if cfg.Embeddings.Provider == "hash" {
		info.EmbedderModel = embed.HashModelID
	} else if os.Getenv(cfg.Embeddings.APIKeyEnv) == "" {
		info.EmbedderStatus = "offline"
	}

	if cfg.Corpus.Watch {
		info.WatcherStatus = "enabled (serve --watch)"
	} else {
		info.WatcherStatus = "n/a"
	}

	return info, nil
}

// getFileSize returns the size of a file in bytes, 0 when absent.
func getFileSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return st.Size()
}
