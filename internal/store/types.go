// Package store provides vector storage (flat cosine index), keyword search
// (TF-IDF), and source-record persistence (SQLite).
// This is the persistence layer for all indexed data.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ContentType represents the kind of source record behind an indexed document.
type ContentType string

const (
	ContentTypeProfile   ContentType = "profile"
	ContentTypeKnowledge ContentType = "knowledge"
	// ContentTypeOther labels ad-hoc records that are neither a person nor a
	// knowledge entry. They are indexed with the knowledge shape.
	ContentTypeOther ContentType = "other"
)

// Index artifact file names. Both live under the configured index directory
// and are always saved and loaded together.
const (
	VectorIndexFile  = "vectors.idx"
	KeywordIndexFile = "keywords.idx"
)

// On-disk format versions. Bumped whenever the gob layout changes so stale
// artifacts are rejected on load instead of being misread.
const (
	VectorFormatVersion  = 1
	KeywordFormatVersion = 1
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

// Profile represents a person record loaded from the corpus or added at runtime.
type Profile struct {
	ID         string // UUID
	Name       string
	Role       string
	Department string
	Bio        string
	Contact    map[string]string // email, slack, phone, ...
	SourceURL  string            // Dedupe key for re-imports; empty when unknown
	Metadata   map[string]string // Custom metadata
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Knowledge represents an organizational knowledge entry (policy, how-to, FAQ).
type Knowledge struct {
	ID        string // UUID
	Title     string
	Body      string
	Category  string
	SourceURL string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// QueryLogEntry is one recorded search query.
type QueryLogEntry struct {
	ID          string // UUID
	Query       string
	Mode        string // vector, keyword, hybrid
	Kind        string // person, topic, general
	ResultCount int
	TopScore    float64
	LatencyMS   int64
	CreatedAt   time.Time
}

// Document represents an indexed unit of content as produced by the indexer.
// BodyText is the searchable text; Keywords augment it for keyword search.
type Document struct {
	ID          string // profile_<uuid> or knowledge_<uuid>
	ContentType ContentType
	Title       string
	BodyText    string
	Keywords    []string
	Metadata    map[string]string
	Embedding   []float32
	IndexedAt   time.Time
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID    string            // Document ID
	Score float64           // Cosine similarity (~1 is most similar)
	Meta  map[string]string // Metadata stored alongside the vector
}

// KeywordResult represents a single keyword search result.
type KeywordResult struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about the keyword index.
type IndexStats struct {
	DocumentCount  int
	VocabularySize int
}

// VectorizerConfig configures TF-IDF tokenization and vocabulary selection.
type VectorizerConfig struct {
	// MaxVocabulary caps the vocabulary at the N most frequent terms (default: 1000)
	MaxVocabulary int

	// MinTokenLength is minimum token length to index (default: 2)
	MinTokenLength int

	// NGramMin and NGramMax select the word n-gram range (default: 1..2,
	// i.e. unigrams and bigrams)
	NGramMin int
	NGramMax int

	// StopWords is a list of words to filter out during tokenization
	StopWords []string
}

// DefaultVectorizerConfig returns default TF-IDF configuration.
func DefaultVectorizerConfig() VectorizerConfig {
	return VectorizerConfig{
		MaxVocabulary:  1000,
		MinTokenLength: 2,
		NGramMin:       1,
		NGramMax:       2,
		StopWords:      DefaultEnglishStopWords,
	}
}

// DefaultEnglishStopWords contains common English function words to filter
// out of keyword indexing. Biographical text is dominated by these.
var DefaultEnglishStopWords = []string{
	"a", "about", "above", "after", "again", "all", "also", "am", "an", "and",
	"any", "are", "as", "at", "be", "because", "been", "before", "being",
	"below", "between", "both", "but", "by", "can", "could", "did", "do",
	"does", "doing", "down", "during", "each", "few", "for", "from",
	"further", "had", "has", "have", "having", "he", "her", "here", "hers",
	"him", "his", "how", "if", "in", "into", "is", "it", "its", "itself",
	"just", "me", "more", "most", "my", "no", "nor", "not", "now", "of",
	"off", "on", "once", "only", "or", "other", "our", "ours", "out", "over",
	"own", "same", "she", "should", "so", "some", "such", "than", "that",
	"the", "their", "theirs", "them", "then", "there", "these", "they",
	"this", "those", "through", "to", "too", "under", "until", "up", "very",
	"was", "we", "were", "what", "when", "where", "which", "while", "who",
	"whom", "why", "will", "with", "would", "you", "your", "yours",
}

// VectorIndex provides semantic search over embedding vectors.
type VectorIndex interface {
	// Add inserts a vector with its ID and metadata. If the ID exists, it is
	// replaced. The index is unchanged when the vector has the wrong dimension.
	Add(ctx context.Context, id string, vector []float32, meta map[string]string) error

	// AddBatch inserts vectors for ids[i] = vectors[i]. All dimensions are
	// validated before any insert, so a failed batch leaves the index unchanged.
	// meta may be nil or shorter than ids.
	AddBatch(ctx context.Context, ids []string, vectors [][]float32, meta []map[string]string) error

	// Search finds the topK most similar vectors with score >= minScore.
	Search(ctx context.Context, query []float32, topK int, minScore float64) ([]*VectorResult, error)

	// Remove deletes a vector by ID, reporting whether it was present.
	Remove(ctx context.Context, id string) bool

	// Contains checks if ID exists.
	Contains(id string) bool

	// Count returns number of vectors.
	Count() int

	// Dimension returns the configured vector dimension.
	Dimension() int

	// AllIDs returns all vector IDs in ascending order (for consistency checks).
	AllIDs() []string

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// KeywordIndex provides lexical search using TF-IDF.
// IDF is global, so Index building is always a full rebuild.
type KeywordIndex interface {
	// Build replaces the entire index contents from docs. On failure the
	// previous contents remain in place.
	Build(ctx context.Context, docs []*Document) error

	// Search returns documents matching query, scored by TF-IDF cosine.
	Search(ctx context.Context, query string, topK int, minScore float64) ([]*KeywordResult, error)

	// AllIDs returns all document IDs in ascending order (for consistency checks).
	AllIDs() []string

	// Count returns the number of indexed documents.
	Count() int

	// VocabularySize returns the number of fitted terms.
	VocabularySize() int

	// Config returns the vectorizer configuration the index was created with.
	Config() VectorizerConfig

	// Stats returns index statistics.
	Stats() *IndexStats

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// SourceStore persists the source records this engine indexes.
// Only the service layer touches it; the retrieval core never does.
type SourceStore interface {
	// Profile operations
	SaveProfile(ctx context.Context, profile *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	GetProfileBySourceURL(ctx context.Context, url string) (*Profile, error)
	ListProfiles(ctx context.Context) ([]*Profile, error)
	DeleteProfile(ctx context.Context, id string) (bool, error)
	CountProfiles(ctx context.Context) (int, error)

	// Knowledge operations
	SaveKnowledge(ctx context.Context, entry *Knowledge) error
	GetKnowledge(ctx context.Context, id string) (*Knowledge, error)
	GetKnowledgeBySourceURL(ctx context.Context, url string) (*Knowledge, error)
	ListKnowledge(ctx context.Context) ([]*Knowledge, error)
	DeleteKnowledge(ctx context.Context, id string) (bool, error)
	CountKnowledge(ctx context.Context) (int, error)

	// Query log operations
	RecordQuery(ctx context.Context, entry *QueryLogEntry) error
	RecentQueries(ctx context.Context, limit int) ([]*QueryLogEntry, error)

	// DB exposes the underlying handle for subsystems sharing the database
	// (telemetry aggregates live in the same file).
	DB() *sql.DB

	// Lifecycle
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'orgmcp index --force')", e.Expected, e.Got)
}

// ErrVersionMismatch indicates a persisted index artifact that is
// incompatible with the current configuration and must be rebuilt.
type ErrVersionMismatch struct {
	Path   string
	Reason string
}

func (e ErrVersionMismatch) Error() string {
	return fmt.Sprintf("incompatible index file %s: %s (run 'orgmcp index --force')", e.Path, e.Reason)
}
