package mcp

import (
	"github.com/Aman-CERP/orgmcp/internal/index"
	"github.com/Aman-CERP/orgmcp/internal/search"
)

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query    string  `json:"query" jsonschema:"the search query to execute"`
	Mode     string  `json:"mode,omitempty" jsonschema:"search mode: vector, keyword, or hybrid (default)"`
	Limit    int     `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum relevance score, default 0.1"`
}

// SearchPeopleInput defines the input schema for the search_people tool.
type SearchPeopleInput struct {
	Query string `json:"query" jsonschema:"name, role, or expertise to look for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
}

// SearchKnowledgeInput defines the input schema for the search_knowledge tool.
type SearchKnowledgeInput struct {
	Query string `json:"query" jsonschema:"topic, policy, or question to look for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// SearchOutput defines the structured output for the search tools.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked search results"`
}

// SearchResultOutput is one search hit with its per-channel scores, so
// clients can see whether a match was semantic, lexical, or both.
type SearchResultOutput struct {
	ContentID    string            `json:"content_id" jsonschema:"stable document id"`
	Title        string            `json:"title" jsonschema:"document title"`
	Snippet      string            `json:"snippet,omitempty" jsonschema:"short excerpt of the matched document"`
	Score        float64           `json:"score" jsonschema:"fused relevance score"`
	ContentType  string            `json:"content_type" jsonschema:"profile, knowledge, or other"`
	VectorScore  float64           `json:"vector_score,omitempty" jsonschema:"semantic channel score"`
	KeywordScore float64           `json:"keyword_score,omitempty" jsonschema:"keyword channel score"`
	MatchedTerms []string          `json:"matched_terms,omitempty" jsonschema:"query terms that matched"`
	Metadata     map[string]string `json:"metadata,omitempty" jsonschema:"document metadata"`
}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	State            string                `json:"state" jsonschema:"ready, indexing, or error"`
	Documents        int                   `json:"documents"`
	Profiles         int                   `json:"profiles"`
	Knowledge        int                   `json:"knowledge"`
	Mutations        int                   `json:"mutations"`
	RebuildThreshold int                   `json:"rebuild_threshold"`
	RebuildCount     int                   `json:"rebuild_count"`
	LastRebuildAt    string                `json:"last_rebuild_at,omitempty"`
	Engine           search.Stats          `json:"engine"`
	Rebuild          index.RebuildSnapshot `json:"rebuild"`
}

// ToSearchResultOutput converts an engine result to the tool output shape.
func ToSearchResultOutput(r *search.Result) SearchResultOutput {
	if r == nil {
		return SearchResultOutput{}
	}
	return SearchResultOutput{
		ContentID:    r.ContentID,
		Title:        r.Title,
		Snippet:      r.Snippet,
		Score:        r.Score,
		ContentType:  string(r.ContentType),
		VectorScore:  r.VectorScore,
		KeywordScore: r.KeywordScore,
		MatchedTerms: r.MatchedTerms,
		Metadata:     r.Metadata,
	}
}
