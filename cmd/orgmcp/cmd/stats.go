package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/orgmcp/internal/config"
	"github.com/Aman-CERP/orgmcp/internal/store"
	"github.com/Aman-CERP/orgmcp/internal/telemetry"
	"github.com/Aman-CERP/orgmcp/internal/ui"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show statistics and telemetry",
		Long:  `Display statistics about query patterns, performance, and usage.`,
	}

	cmd.AddCommand(newStatsQueriesCmd())
	return cmd
}

func newStatsQueriesCmd() *cobra.Command {
	var (
		jsonOutput bool
		days       int
	)

	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Show query pattern statistics",
		Long: `Display query pattern telemetry including:
  - Search mode distribution (vector/keyword/hybrid)
  - Query kind distribution (person/topic/general)
  - Top query terms
  - Zero-result queries
  - Latency distribution`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatsQueries(cmd.Context(), cmd, jsonOutput, days)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")

	return cmd
}

// StatsQueriesOutput is the JSON output format for query stats.
type StatsQueriesOutput struct {
	Summary             StatsQueriesSummary `json:"summary"`
	ModeCounts          map[string]int64    `json:"mode_counts"`
	KindCounts          map[string]int64    `json:"kind_counts"`
	TopTerms            []StatsTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// StatsQueriesSummary provides overview statistics.
type StatsQueriesSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	ZeroResultPct float64 `json:"zero_result_pct"`
	Days          int     `json:"days"`
}

// StatsTermCount represents a term and its frequency.
type StatsTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

func runStatsQueries(ctx context.Context, cmd *cobra.Command, jsonOutput bool, days int) error {
	root := findRoot()
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbPath := cfg.DatabasePath(root)
	if !fileExists(dbPath) {
		return fmt.Errorf("no index found in %s\nRun 'orgmcp index' to create one", root)
	}

	sources, err := store.NewSourceStore(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open source store: %w", err)
	}
	defer func() { _ = sources.Close() }()

	// The telemetry tables live in the same database; share the handle
	metrics, err := telemetry.NewSQLiteMetricsStore(sources.DB())
	if err != nil {
		return fmt.Errorf("failed to open metrics store: %w", err)
	}

	output, err := getQueryStats(metrics, days)
	if err != nil {
		return fmt.Errorf("failed to get query stats: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(output)
	}

	return printStatsFormatted(cmd, output)
}

func getQueryStats(metrics *telemetry.SQLiteMetricsStore, days int) (*StatsQueriesOutput, error) {
	if days < 1 {
		days = 1
	}
	now := time.Now()
	from := now.AddDate(0, 0, -(days - 1)).Format("2006-01-02")
	to := now.Format("2006-01-02")

	modeCounts, err := metrics.GetModeCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("get mode counts: %w", err)
	}
	kindCounts, err := metrics.GetKindCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("get kind counts: %w", err)
	}
	topTerms, err := metrics.GetTopTerms(10)
	if err != nil {
		return nil, fmt.Errorf("get top terms: %w", err)
	}
	zeroResults, err := metrics.GetZeroResultQueries(10)
	if err != nil {
		return nil, fmt.Errorf("get zero-result queries: %w", err)
	}
	latency, err := metrics.GetLatencyCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("get latency counts: %w", err)
	}

	output := &StatsQueriesOutput{
		Summary:             StatsQueriesSummary{Days: days},
		ModeCounts:          make(map[string]int64, len(modeCounts)),
		KindCounts:          make(map[string]int64, len(kindCounts)),
		TopTerms:            make([]StatsTermCount, 0, len(topTerms)),
		ZeroResultQueries:   zeroResults,
		LatencyDistribution: make(map[string]int64, len(latency)),
	}

	for mode, count := range modeCounts {
		output.ModeCounts[string(mode)] = count
		output.Summary.TotalQueries += count
	}
	for kind, count := range kindCounts {
		output.KindCounts[string(kind)] = count
	}
	for bucket, count := range latency {
		output.LatencyDistribution[string(bucket)] = count
	}
	for _, tc := range topTerms {
		output.TopTerms = append(output.TopTerms, StatsTermCount{Term: tc.Term, Count: tc.Count})
	}
	if output.Summary.TotalQueries > 0 {
		output.Summary.ZeroResultPct =
			float64(len(zeroResults)) / float64(output.Summary.TotalQueries) * 100
	}

	return output, nil
}

func printStatsFormatted(cmd *cobra.Command, output *StatsQueriesOutput) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "Query Statistics")
	fmt.Fprintln(w, "================")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Total Queries: %d (last %d days)\n", output.Summary.TotalQueries, output.Summary.Days)
	fmt.Fprintln(w)

	if len(output.ModeCounts) > 0 {
		fmt.Fprintln(w, "Search Mode Distribution:")
		for _, mode := range []string{"hybrid", "vector", "keyword"} {
			if count, ok := output.ModeCounts[mode]; ok {
				fmt.Fprintf(w, "  %s: %d\n", mode, count)
			}
		}
		fmt.Fprintln(w)
	}

	if len(output.KindCounts) > 0 {
		fmt.Fprintln(w, "Query Kind Distribution:")
		for _, kind := range []string{"person", "topic", "general"} {
			if count, ok := output.KindCounts[kind]; ok {
				fmt.Fprintf(w, "  %s: %d\n", kind, count)
			}
		}
		fmt.Fprintln(w)
	}

	if len(output.TopTerms) > 0 {
		fmt.Fprintln(w, "Top Query Terms:")
		for i, tc := range output.TopTerms {
			fmt.Fprintf(w, "  %d. %s (%d)\n", i+1, tc.Term, tc.Count)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "Top Query Terms: (none recorded yet)")
		fmt.Fprintln(w)
	}

	if len(output.ZeroResultQueries) > 0 {
		fmt.Fprintln(w, "Recent Zero-Result Queries:")
		for _, q := range output.ZeroResultQueries {
			fmt.Fprintf(w, "  - %q\n", q)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "Recent Zero-Result Queries: (none)")
		fmt.Fprintln(w)
	}

	if len(output.LatencyDistribution) > 0 {
		fmt.Fprintln(w, "Latency Distribution:")
		buckets := []string{"lt10ms", "lt50ms", "lt100ms", "lt500ms", "lt1s", "gt1s"}
		labels := map[string]string{
			"lt10ms":  "<10ms",
			"lt50ms":  "10-50ms",
			"lt100ms": "50-100ms",
			"lt500ms": "100-500ms",
			"lt1s":    "500ms-1s",
			"gt1s":    ">1s",
		}
		spark := ui.NewSparkline(len(buckets))
		for _, b := range buckets {
			spark.Add(float64(output.LatencyDistribution[b]))
			if count, ok := output.LatencyDistribution[b]; ok {
				fmt.Fprintf(w, "  %s: %d\n", labels[b], count)
			}
		}
		fmt.Fprintf(w, "  %s  (%s to %s)\n", spark.Render(), labels[buckets[0]], labels[buckets[len(buckets)-1]])
	}

	return nil
}
