package embed

import (
	"context"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Aman-CERP/orgmcp/internal/errors"
)

const (
	// DefaultOpenAIModel is the embedding model used when none is configured.
	DefaultOpenAIModel = "text-embedding-3-small"

	// MaxRequestInputs caps the number of inputs sent per embeddings API call.
	MaxRequestInputs = 64

	// openAIHealthCheckTimeout bounds the availability probe at construction.
	openAIHealthCheckTimeout = 10 * time.Second
)

// OpenAIConfig configures the remote embedding producer.
type OpenAIConfig struct {
	// APIKey authenticates against the embeddings API. Required.
	APIKey string

	// Model is the embedding model name. Default: text-embedding-3-small.
	Model string

	// Dimension is the requested embedding dimension. The API is asked for
	// exactly this many dimensions and responses are checked against it.
	Dimension int

	// BatchSize is the number of inputs per API call, capped at MaxRequestInputs.
	BatchSize int

	// BaseURL overrides the API endpoint, for proxies and compatible servers.
	BaseURL string

	// Retry overrides the backoff policy for transient failures.
	// Zero value uses DefaultOpenAIRetryConfig.
	Retry errors.RetryConfig

	// SkipHealthCheck skips the availability probe at construction.
	SkipHealthCheck bool
}

// DefaultOpenAIRetryConfig returns the backoff policy for embeddings calls.
// Jitter spreads retries from concurrent batch workers.
func DefaultOpenAIRetryConfig() errors.RetryConfig {
	return errors.RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// OpenAIProducer generates embeddings through the OpenAI embeddings API.
// Requests are batched, retried with exponential backoff on transient
// failures, and guarded by a circuit breaker so a dead endpoint fails fast
// instead of stalling every indexing batch.
type OpenAIProducer struct {
	client  *openai.Client
	config  OpenAIConfig
	breaker *errors.CircuitBreaker

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var _ Producer = (*OpenAIProducer)(nil)

// NewOpenAIProducer creates a remote embedding producer.
// Unless SkipHealthCheck is set, it probes the API once so a bad key or
// unreachable endpoint surfaces at startup rather than mid-index.
func NewOpenAIProducer(ctx context.Context, cfg OpenAIConfig) (*OpenAIProducer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	// Apply defaults
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.Dimension < 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxRequestInputs {
		cfg.BatchSize = MaxRequestInputs
	}
	if cfg.Retry == (errors.RetryConfig{}) {
		cfg.Retry = DefaultOpenAIRetryConfig()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	p := &OpenAIProducer{
		client:  openai.NewClientWithConfig(clientCfg),
		config:  cfg,
		breaker: errors.NewCircuitBreaker("openai-embeddings"),
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, openAIHealthCheckTimeout)
		defer cancel()

		if _, err := p.client.ListModels(checkCtx); err != nil {
			return nil, fmt.Errorf("openai unavailable: %w\n\nTo fix:\n  1. Verify the API key and network access\n  2. Or use the offline producer: orgmcp index --provider=hash", err)
		}
	}

	return p, nil
}

// Generate produces the embedding for a single text.
// Input that is blank after preprocessing yields a zero vector without an API call.
func (p *OpenAIProducer) Generate(ctx context.Context, text string) ([]float32, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	processed := PreprocessText(text)
	if processed == "" {
		return make([]float32, p.config.Dimension), nil
	}

	embeddings, err := p.requestEmbeddings(ctx, []string{processed})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// GenerateBatch produces embeddings for multiple texts, splitting the work
// into API calls of at most BatchSize inputs. Blank texts get zero vectors at
// their positions without being sent to the API.
func (p *OpenAIProducer) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	// Track which positions need API calls vs fallback vectors
	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		processed := PreprocessText(text)
		if processed == "" {
			results[i] = make([]float32, p.config.Dimension)
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, processed})
		}
	}

	if len(nonEmpty) == 0 {
		return results, nil
	}

	for start := 0; start < len(nonEmpty); start += p.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + p.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		batch := nonEmpty[start:end]
		inputs := make([]string, len(batch))
		for i, it := range batch {
			inputs[i] = it.text
		}

		embeddings, err := p.requestEmbeddings(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch starting at %d: %w", batch[0].idx, err)
		}

		for i, emb := range embeddings {
			results[batch[i].idx] = emb
		}
	}

	return results, nil
}

// requestEmbeddings performs one embeddings API call through the circuit
// breaker with retry. When the circuit is open the fallback returns a
// non-retryable error so the retry loop stops immediately.
func (p *OpenAIProducer) requestEmbeddings(ctx context.Context, inputs []string) ([][]float32, error) {
	return errors.RetryWithResult(ctx, p.config.Retry, func() ([][]float32, error) {
		return errors.CircuitExecuteWithResult(p.breaker,
			func() ([][]float32, error) {
				return p.callAPI(ctx, inputs)
			},
			func() ([][]float32, error) {
				return nil, errors.New(errors.ErrCodeEmbeddingFailed,
					"embedding service circuit open", errors.ErrCircuitOpen).
					WithSuggestion("wait for the breaker to reset or switch to --provider=hash")
			})
	})
}

// callAPI issues the embeddings request and validates the response shape.
func (p *OpenAIProducer) callAPI(ctx context.Context, inputs []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      inputs,
		Model:      openai.EmbeddingModel(p.config.Model),
		Dimensions: p.config.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}

	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(resp.Data))
	}

	out := make([][]float32, len(inputs))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		if len(d.Embedding) != p.config.Dimension {
			return nil, fmt.Errorf("model returned %d dimensions, expected %d", len(d.Embedding), p.config.Dimension)
		}
		out[d.Index] = normalizeVector(d.Embedding)
	}

	for i, vec := range out {
		if vec == nil {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
	}

	return out, nil
}

// Dimension returns the embedding dimension
func (p *OpenAIProducer) Dimension() int {
	return p.config.Dimension
}

// ModelID returns the model identifier
func (p *OpenAIProducer) ModelID() string {
	return p.config.Model
}

// Available checks if the API answers with the configured credentials.
func (p *OpenAIProducer) Available(ctx context.Context) bool {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return false
	}
	p.mu.RUnlock()

	_, err := p.client.ListModels(ctx)
	return err == nil
}

// Close marks the producer as closed. The underlying HTTP client keeps no
// persistent resources worth tearing down.
func (p *OpenAIProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
