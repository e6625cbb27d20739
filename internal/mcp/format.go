package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Aman-CERP/orgmcp/internal/search"
	"github.com/Aman-CERP/orgmcp/internal/store"
)

// FormatSearchResults formats ranked results as markdown.
func FormatSearchResults(query string, results []*search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

// FormatPeopleResults formats profile results with role and contact lines.
func FormatPeopleResults(query string, results []*search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No people found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## People matching \"%s\"\n\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "### %d. %s (score: %.2f)\n\n", i+1, r.Title, r.Score)
		if role := r.Metadata["role"]; role != "" {
			dept := r.Metadata["department"]
			if dept != "" {
				fmt.Fprintf(&sb, "**%s**, %s\n\n", role, dept)
			} else {
				fmt.Fprintf(&sb, "**%s**\n\n", role)
			}
		}
		if r.Snippet != "" {
			sb.WriteString(r.Snippet)
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

// formatResult formats a single generic result: title, type, scores, snippet.
func formatResult(sb *strings.Builder, num int, r *search.Result) {
	fmt.Fprintf(sb, "### %d. %s (score: %.2f)\n\n", num, r.Title, r.Score)

	label := string(r.ContentType)
	if r.ContentType == store.ContentTypeProfile {
		if role := r.Metadata["role"]; role != "" {
			label = fmt.Sprintf("%s — %s", label, role)
		}
	} else if cat := r.Metadata["category"]; cat != "" {
		label = fmt.Sprintf("%s — %s", label, cat)
	}
	fmt.Fprintf(sb, "*%s*", label)

	if len(r.MatchedTerms) > 0 {
		terms := r.MatchedTerms
		if len(terms) > 5 {
			terms = terms[:5]
		}
		fmt.Fprintf(sb, " · matched: %s", strings.Join(terms, ", "))
	}
	sb.WriteString("\n\n")

	if r.Snippet != "" {
		sb.WriteString(r.Snippet)
		sb.WriteString("\n\n")
	}
}

// FormatIndexStatus formats the index_status output as markdown.
func FormatIndexStatus(out *IndexStatusOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Index Status: %s\n\n", out.State)
	fmt.Fprintf(&sb, "- Documents: %d (%d profiles, %d knowledge)\n", out.Documents, out.Profiles, out.Knowledge)
	fmt.Fprintf(&sb, "- Vectors: %d (dimension %d)\n", out.Engine.VectorCount, out.Engine.Dimension)
	fmt.Fprintf(&sb, "- Keyword terms: %d over %d documents\n", out.Engine.VocabularySize, out.Engine.KeywordCount)
	fmt.Fprintf(&sb, "- Mutations since rebuild: %d of %d\n", out.Mutations, out.RebuildThreshold)
	if out.RebuildCount > 0 {
		fmt.Fprintf(&sb, "- Rebuilds: %d (last at %s)\n", out.RebuildCount, out.LastRebuildAt)
	}
	if out.Rebuild.Error != "" {
		fmt.Fprintf(&sb, "- Last rebuild error: %s\n", out.Rebuild.Error)
	}
	return sb.String()
}

// formatMetadata renders metadata as sorted key: value lines.
func formatMetadata(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %s\n", k, meta[k])
	}
	return sb.String()
}

// clampLimit bounds a requested result count, falling back to defaultVal
// when unset.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
