package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache configuration constants.
const (
	// DefaultCacheSize is the default number of embeddings to cache.
	// At 384 dimensions * 4 bytes * 1024 entries that is roughly 1.5MB.
	DefaultCacheSize = 1024
)

// CachedProducer wraps a Producer with LRU caching so repeated texts are
// vectorized once. Query embedding is the hot path: the same search query
// typically arrives many times in a session.
type CachedProducer struct {
	inner Producer
	cache *lru.Cache[string, []float32]
}

// Verify interface implementation at compile time
var _ Producer = (*CachedProducer)(nil)

// NewCachedProducer creates a caching decorator around the given producer.
// Cache size is the number of unique text embeddings kept in memory.
func NewCachedProducer(inner Producer, cacheSize int) *CachedProducer {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &CachedProducer{
		inner: inner,
		cache: cache,
	}
}

// cacheKey derives the cache key from text and model identity.
// The model id is part of the key so a cache never serves vectors computed
// by a different model.
func (c *CachedProducer) cacheKey(text string) string {
	combined := text + "\x00" + c.inner.ModelID()
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Generate returns the cached embedding if present, otherwise computes and
// caches it.
func (c *CachedProducer) Generate(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Generate(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, vec)
	return vec, nil
}

// GenerateBatch produces embeddings for multiple texts, serving cache hits
// first and generating only the misses. Row order follows the input order.
func (c *CachedProducer) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	missIndices := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	// First pass: serve what the cache already has
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			results[i] = vec
		} else {
			missIndices = append(missIndices, i)
			missTexts = append(missTexts, text)
		}
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	// Second pass: generate the misses in one batch and cache them
	generated, err := c.inner.GenerateBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIndices {
		results[idx] = generated[j]
		c.cache.Add(c.cacheKey(texts[idx]), generated[j])
	}

	return results, nil
}

// Dimension returns the embedding dimension (passthrough to inner).
func (c *CachedProducer) Dimension() int {
	return c.inner.Dimension()
}

// ModelID returns the model identifier (passthrough to inner).
func (c *CachedProducer) ModelID() string {
	return c.inner.ModelID()
}

// Available checks if the producer is ready (passthrough to inner).
func (c *CachedProducer) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close releases resources and closes the inner producer.
func (c *CachedProducer) Close() error {
	return c.inner.Close()
}

// Inner returns the wrapped producer. Callers use this to reach
// producer-specific features that are not part of the Producer interface.
func (c *CachedProducer) Inner() Producer {
	return c.inner
}

// Len reports the number of cached embeddings.
func (c *CachedProducer) Len() int {
	return c.cache.Len()
}
