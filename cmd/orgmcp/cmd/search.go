package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/orgmcp/internal/config"
	"github.com/Aman-CERP/orgmcp/internal/logging"
	"github.com/Aman-CERP/orgmcp/internal/output"
	"github.com/Aman-CERP/orgmcp/internal/search"
	"github.com/Aman-CERP/orgmcp/internal/service"
	"github.com/Aman-CERP/orgmcp/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	mode     string
	limit    int
	minScore float64
	types    []string // "profile", "knowledge", "other"
	format   string   // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed profiles and knowledge",
		Long: `Search the indexed corpus using hybrid retrieval.

Combines keyword (TF-IDF) and semantic (embedding cosine) channels with
weighted score fusion. Use --mode to run a single channel.

Examples:
  orgmcp search "who knows kubernetes"
  orgmcp search "vpn setup" --type knowledge --limit 5
  orgmcp search "dana reyes" --mode keyword
  orgmcp search "onboarding" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Search mode: hybrid (default), vector, keyword")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Drop results scoring below this")
	cmd.Flags().StringSliceVarP(&opts.types, "type", "t", nil, "Filter by content type (repeatable): profile, knowledge, other")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	// File-only logging so results stay clean on stdout
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if _, cleanup, err := logging.Setup(logCfg); err == nil {
		defer cleanup()
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))
	out := output.New(cmd.OutOrStdout())

	mode, err := search.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	types, err := parseContentTypes(opts.types)
	if err != nil {
		return err
	}

	root := findRoot()
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if !fileExists(cfg.DatabasePath(root)) {
		return fmt.Errorf("no index found in %s\nRun 'orgmcp index' to create one", root)
	}

	svc, err := service.Open(ctx, cfg, root)
	if err != nil {
		return fmt.Errorf("failed to open knowledge service: %w", err)
	}
	defer func() { _ = svc.Close() }()

	if _, err := svc.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore indexes: %w", err)
	}

	results, err := svc.Search(ctx, query, search.Options{
		Mode:         mode,
		TopK:         opts.limit,
		MinScore:     opts.minScore,
		ContentTypes: types,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	slog.Info("search_complete", slog.String("mode", string(mode)), slog.Int("results", len(results)))

	if len(results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}

	switch opts.format {
	case "json":
		return formatJSON(cmd, results)
	default:
		return formatText(out, query, results)
	}
}

// parseContentTypes converts the repeatable --type flag values.
func parseContentTypes(names []string) ([]store.ContentType, error) {
	var types []store.ContentType
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
			continue
		case "profile", "people", "person":
			types = append(types, store.ContentTypeProfile)
		case "knowledge":
			types = append(types, store.ContentTypeKnowledge)
		case "other":
			types = append(types, store.ContentTypeOther)
		default:
			return nil, fmt.Errorf("unknown content type %q (valid: profile, knowledge, other)", name)
		}
	}
	return types, nil
}

// formatText outputs results in human-readable format.
func formatText(out *output.Writer, query string, results []*search.Result) error {
	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()

	for i, r := range results {
		out.Statusf("", "%d. %s [%s] (score: %.2f)", i+1, r.Title, r.ContentType, r.Score)
		if r.Snippet != "" {
			out.Status("", "   "+r.Snippet)
		}
		if len(r.MatchedTerms) > 0 {
			out.Status("", "   matched: "+strings.Join(r.MatchedTerms, ", "))
		}
		out.Newline()
	}

	return nil
}

// formatJSON outputs results in JSON format.
func formatJSON(cmd *cobra.Command, results []*search.Result) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
