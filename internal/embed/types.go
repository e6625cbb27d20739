// Package embed turns text into fixed-dimension embedding vectors.
//
// Two producers implement the contract: HashProducer derives vectors from an
// MD5 digest of the normalized text (offline, deterministic, no external
// service), and OpenAIProducer calls a remote embeddings API. Either can be
// wrapped in CachedProducer for LRU reuse of previously computed vectors.
package embed

import (
	"context"
	"math"
	"regexp"
	"strings"
)

// Common embedding constants
const (
	// DefaultDimension is the embedding dimension used when none is configured.
	// 384 matches the small remote embedding models so artifacts stay
	// interchangeable between providers.
	DefaultDimension = 384

	// MinBatchSize is the minimum allowed batch size
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests
	DefaultBatchSize = 32
)

// Producer generates vector embeddings for text.
type Producer interface {
	// Generate produces the embedding for a single text.
	// Blank input yields a zero vector of full dimension, never an error.
	Generate(ctx context.Context, text string) ([]float32, error)

	// GenerateBatch produces embeddings for multiple texts.
	// Row i of the result always corresponds to texts[i].
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension
	Dimension() int

	// ModelID returns the model identifier
	ModelID() string

	// Available checks if the producer is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

var (
	// Anything outside word characters, whitespace, and light punctuation is
	// noise for short biographical text and gets stripped before hashing.
	noisePattern = regexp.MustCompile(`[^\w\s.,!?-]`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

// PreprocessText normalizes raw text before vectorization: noise characters
// are stripped, whitespace runs collapse to single spaces, and the result is
// trimmed and lowercased. Inputs differing only in case or spacing therefore
// map to the same vector.
func PreprocessText(text string) string {
	cleaned := noisePattern.ReplaceAllString(text, "")
	cleaned = whitespacePattern.ReplaceAllString(cleaned, " ")
	return strings.ToLower(strings.TrimSpace(cleaned))
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
