// Package search provides hybrid retrieval over indexed documents, combining
// semantic (vector cosine) and lexical (TF-IDF) channels. Channel scores are
// fused with a weighted sum; ties always break by ascending content ID so
// rankings are fully deterministic.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/orgmcp/internal/store"
)

// Mode selects which retrieval channels a query runs through.
type Mode string

const (
	// ModeVector searches the embedding index only.
	ModeVector Mode = "vector"

	// ModeKeyword searches the TF-IDF index only.
	ModeKeyword Mode = "keyword"

	// ModeHybrid runs both channels and fuses their scores. This is the
	// default when no mode is given.
	ModeHybrid Mode = "hybrid"
)

// ParseMode normalizes a user-supplied mode string. An empty string means
// hybrid; anything unrecognized is rejected with the list of valid modes.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeHybrid:
		return ModeHybrid, nil
	case ModeVector:
		return ModeVector, nil
	case ModeKeyword:
		return ModeKeyword, nil
	default:
		return "", fmt.Errorf("unknown search mode %q (valid: vector, keyword, hybrid)", s)
	}
}

// Default limits applied when options or configuration leave them unset.
const (
	DefaultLimit         = 10
	MaxLimit             = 100
	DefaultSnippetLength = 200
)

// Options configures a single search call.
type Options struct {
	// Mode selects the retrieval channels (default: hybrid).
	Mode Mode

	// TopK is the maximum number of results to return
	// (default: Config.DefaultLimit, capped at Config.MaxLimit).
	TopK int

	// MinScore discards channel hits scoring below it. It is applied as
	// given; callers that want a floor must set one.
	MinScore float64

	// QueryVector is an optional pre-computed query embedding. When empty,
	// vector and hybrid searches embed the query text through the engine's
	// producer.
	QueryVector []float32

	// ContentTypes restricts results to the given types after fusion.
	// Empty means no restriction.
	ContentTypes []store.ContentType
}

// Result is one ranked search hit, hydrated with document fields so callers
// never need to reach back into the indexer.
type Result struct {
	ContentID    string            `json:"content_id"`
	Title        string            `json:"title"`
	Snippet      string            `json:"snippet,omitempty"`
	Score        float64           `json:"score"`
	ContentType  store.ContentType `json:"content_type"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	VectorScore  float64           `json:"vector_score"`
	KeywordScore float64           `json:"keyword_score"`
	MatchedTerms []string          `json:"matched_terms,omitempty"`
}

// Stats reports the engine's current index state.
type Stats struct {
	VectorCount    int     `json:"vector_count"`
	KeywordCount   int     `json:"keyword_count"`
	VocabularySize int     `json:"vocabulary_size"`
	Dimension      int     `json:"dimension"`
	VectorWeight   float64 `json:"vector_weight"`
	KeywordWeight  float64 `json:"keyword_weight"`
}

// Config holds engine-level tuning. Zero values fall back to the package
// defaults, so Config{} is a usable configuration.
type Config struct {
	// VectorWeight and KeywordWeight scale the channel scores in hybrid
	// fusion. When both are zero the 0.6/0.4 defaults apply.
	VectorWeight  float64
	KeywordWeight float64

	// DefaultLimit is the page size used when Options.TopK is unset.
	DefaultLimit int

	// MaxLimit caps Options.TopK.
	MaxLimit int

	// SnippetLength is the target snippet size in characters; snippets are
	// cut on a word boundary at or before it.
	SnippetLength int
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.VectorWeight == 0 && c.KeywordWeight == 0 {
		c.VectorWeight = DefaultVectorWeight
		c.KeywordWeight = DefaultKeywordWeight
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = DefaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = MaxLimit
	}
	if c.SnippetLength <= 0 {
		c.SnippetLength = DefaultSnippetLength
	}
	return c
}

// DocumentProvider supplies the stored documents behind index hits. The
// content indexer implements it. IDs the provider does not know are simply
// absent from the reply, which hides index entries that outlived their
// source record.
type DocumentProvider interface {
	Documents(ids []string) []*store.Document
}

// SearchEngine is the retrieval surface the service layer consumes.
type SearchEngine interface {
	// Search executes a query and returns ranked, hydrated results.
	Search(ctx context.Context, query string, opts Options) ([]*Result, error)

	// IndexContent feeds both sub-indexes from the same document set.
	IndexContent(ctx context.Context, docs []*store.Document) error

	// SaveIndexes persists both index artifacts under dir.
	SaveIndexes(dir string) error

	// LoadIndexes restores both index artifacts from dir. State is
	// unchanged when either artifact fails validation.
	LoadIndexes(dir string) error

	// Stats returns current index counts and fusion weights.
	Stats() Stats

	// Close releases both indexes.
	Close() error
}
