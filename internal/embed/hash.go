package embed

import (
	"context"
	"crypto/md5" //nolint:gosec // not used for security, only as a deterministic text fingerprint
	"fmt"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// HashModelID is the model identifier reported by HashProducer.
const HashModelID = "hash-md5"

// HashProducer generates embeddings from an MD5 digest of the normalized
// text. It needs no model files and no network: identical input text always
// produces the identical vector, which makes it the offline placeholder until
// a real embedding model is wired in. The vectors carry no semantic meaning;
// ranking quality comes from the keyword channel when this producer is active.
type HashProducer struct {
	mu        sync.RWMutex
	dimension int
	pool      *ants.Pool
	closed    bool
}

// Verify interface implementation at compile time
var _ Producer = (*HashProducer)(nil)

// NewHashProducer creates a hash-based producer with the given dimension.
// Batch generation runs on a worker pool sized to the machine's CPU count.
func NewHashProducer(dimension int) (*HashProducer, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}

	pool, err := ants.NewPool(runtime.NumCPU())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding worker pool: %w", err)
	}

	return &HashProducer{
		dimension: dimension,
		pool:      pool,
	}, nil
}

// Generate produces the embedding for a single text.
// Input that is blank after preprocessing yields a zero vector, not an error.
func (p *HashProducer) Generate(ctx context.Context, text string) ([]float32, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return p.vectorFor(text), nil
}

// GenerateBatch produces embeddings for multiple texts on the worker pool.
// Each worker writes its own result index, so row i always corresponds to
// texts[i] regardless of completion order.
func (p *HashProducer) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var wg sync.WaitGroup

	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}

		wg.Add(1)
		idx, input := i, text
		if err := p.pool.Submit(func() {
			defer wg.Done()
			results[idx] = p.vectorFor(input)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("failed to schedule embedding %d: %w", i, err)
		}
	}

	wg.Wait()
	return results, nil
}

// vectorFor maps normalized text onto the digest-derived vector.
// Blank input gets the zero fallback vector.
func (p *HashProducer) vectorFor(text string) []float32 {
	processed := PreprocessText(text)
	if processed == "" {
		return make([]float32, p.dimension)
	}
	return hashVector(processed, p.dimension)
}

// hashVector builds a vector from the MD5 digest of the text. Each digest
// byte (one pair of hex digits) maps linearly onto [-1, 1], and the 16-byte
// pattern repeats until the dimension is filled.
func hashVector(text string, dimension int) []float32 {
	digest := md5.Sum([]byte(text)) //nolint:gosec // deterministic fingerprint, not a security boundary

	vec := make([]float32, dimension)
	for i := range vec {
		v := digest[i%len(digest)]
		vec[i] = float32(v)/255.0*2.0 - 1.0
	}
	return vec
}

// Dimension returns the embedding dimension
func (p *HashProducer) Dimension() int {
	return p.dimension
}

// ModelID returns the model identifier
func (p *HashProducer) ModelID() string {
	return HashModelID
}

// Available checks if the producer is ready.
// Hash embeddings have no external dependency, so availability only reflects
// whether Close has been called.
func (p *HashProducer) Available(_ context.Context) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}

// Close releases the worker pool. Safe to call multiple times.
func (p *HashProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.pool.Release()
	return nil
}
