package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/orgmcp/internal/index"
	"github.com/Aman-CERP/orgmcp/internal/search"
	"github.com/Aman-CERP/orgmcp/internal/store"
)

func TestFormatSearchResults_Empty(t *testing.T) {
	out := FormatSearchResults("obscure query", nil)
	assert.Contains(t, out, "No results found")
	assert.Contains(t, out, "obscure query")
}

func TestFormatSearchResults_Singular(t *testing.T) {
	out := FormatSearchResults("vpn", sampleResults()[:1])
	assert.Contains(t, out, "Found 1 result\n")
	assert.NotContains(t, out, "Found 1 results")
}

func TestFormatSearchResults_Full(t *testing.T) {
	out := FormatSearchResults("vpn", sampleResults())

	assert.Contains(t, out, `## Search Results for "vpn"`)
	assert.Contains(t, out, "Found 2 results")
	assert.Contains(t, out, "### 1. Dana Reyes (score: 0.91)")
	assert.Contains(t, out, "profile — Engineering Manager")
	assert.Contains(t, out, "### 2. VPN Setup (score: 0.64)")
	assert.Contains(t, out, "knowledge — it")
	assert.Contains(t, out, "matched: vpn, setup")
	assert.Contains(t, out, "Install the client")
}

func TestFormatSearchResults_CapsMatchedTerms(t *testing.T) {
	r := &search.Result{
		Title:        "Many Terms",
		Score:        0.5,
		ContentType:  store.ContentTypeKnowledge,
		MatchedTerms: []string{"a", "b", "c", "d", "e", "f", "g"},
	}
	out := FormatSearchResults("q", []*search.Result{r})
	assert.Contains(t, out, "matched: a, b, c, d, e")
	assert.NotContains(t, out, "f, g")
}

func TestFormatPeopleResults(t *testing.T) {
	out := FormatPeopleResults("dana", sampleResults()[:1])

	assert.Contains(t, out, `## People matching "dana"`)
	assert.Contains(t, out, "Dana Reyes")
	assert.Contains(t, out, "**Engineering Manager**, Platform")
	assert.Contains(t, out, "Leads the platform team.")
}

func TestFormatPeopleResults_Empty(t *testing.T) {
	out := FormatPeopleResults("nobody", nil)
	assert.Contains(t, out, "No people found")
}

func TestFormatIndexStatus(t *testing.T) {
	out := FormatIndexStatus(&IndexStatusOutput{
		State:            string(index.StateReady),
		Documents:        8,
		Profiles:         3,
		Knowledge:        5,
		Mutations:        12,
		RebuildThreshold: 100,
		RebuildCount:     2,
		LastRebuildAt:    "2026-08-27T10:00:00Z",
		Engine:           search.Stats{VectorCount: 8, Dimension: 64, VocabularySize: 120, KeywordCount: 8},
	})

	assert.Contains(t, out, "## Index Status: ready")
	assert.Contains(t, out, "Documents: 8 (3 profiles, 5 knowledge)")
	assert.Contains(t, out, "Vectors: 8 (dimension 64)")
	assert.Contains(t, out, "Mutations since rebuild: 12 of 100")
	assert.Contains(t, out, "Rebuilds: 2 (last at 2026-08-27T10:00:00Z)")
}

func TestFormatIndexStatus_RebuildError(t *testing.T) {
	out := FormatIndexStatus(&IndexStatusOutput{
		State:   string(index.StateError),
		Rebuild: index.RebuildSnapshot{State: index.StateError, Error: "provider unavailable"},
	})
	assert.Contains(t, out, "Last rebuild error: provider unavailable")
}

func TestFormatMetadata_SortedAndEmpty(t *testing.T) {
	assert.Empty(t, formatMetadata(nil))

	out := formatMetadata(map[string]string{"zeta": "1", "alpha": "2"})
	assert.Equal(t, "alpha: 2\nzeta: 1\n", out)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10, 1, 50))
	assert.Equal(t, 10, clampLimit(-5, 10, 1, 50))
	assert.Equal(t, 7, clampLimit(7, 10, 1, 50))
	assert.Equal(t, 50, clampLimit(200, 10, 1, 50))
}
