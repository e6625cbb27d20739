package embed

import (
	"context"
	"fmt"
	"strings"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderHash uses digest-based embeddings (default: offline, deterministic)
	ProviderHash ProviderType = "hash"

	// ProviderOpenAI uses the OpenAI embeddings API (remote model)
	ProviderOpenAI ProviderType = "openai"
)

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ProducerConfig carries the resolved embedding settings for the factory.
// The config layer owns file and environment merging; by the time a value
// reaches here it is final.
type ProducerConfig struct {
	// Provider selects the backend: "hash", "openai", or empty for the default.
	Provider string

	// Model is the remote model name, used by the openai provider.
	Model string

	// Dimension is the embedding dimension. 0 uses DefaultDimension.
	Dimension int

	// CacheSize enables the LRU decorator when positive.
	CacheSize int

	// APIKey authenticates remote providers.
	APIKey string

	// BaseURL overrides the remote endpoint, for proxies and compatible servers.
	BaseURL string
}

// NewProducer creates a producer for the configured provider and wraps it in
// the LRU cache when a cache size is set.
func NewProducer(ctx context.Context, cfg ProducerConfig) (Producer, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	dimension := cfg.Dimension
	if dimension == 0 {
		dimension = DefaultDimension
	}
	if dimension < 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimension)
	}

	var producer Producer
	switch provider {
	case ProviderOpenAI:
		producer, err = NewOpenAIProducer(ctx, OpenAIConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			Dimension: dimension,
			BaseURL:   cfg.BaseURL,
		})
	default: // ProviderHash
		producer, err = NewHashProducer(dimension)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		return NewCachedProducer(producer, cfg.CacheSize), nil
	}
	return producer, nil
}

// ParseProvider converts a string to ProviderType.
// The empty string selects the default (hash); anything unrecognized is an error.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hash":
		return ProviderHash, nil
	case "openai":
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (valid: %s)", s, strings.Join(ValidProviders(), ", "))
	}
}

// ValidProviders returns all valid provider names
func ValidProviders() []string {
	return []string{
		string(ProviderHash),
		string(ProviderOpenAI),
	}
}

// ProducerInfo contains information about a producer
type ProducerInfo struct {
	Provider  ProviderType
	Model     string
	Dimension int
	Available bool
}

// Describe returns information about a producer, looking through the cache
// decorator to identify the underlying provider.
func Describe(ctx context.Context, p Producer) ProducerInfo {
	info := ProducerInfo{
		Model:     p.ModelID(),
		Dimension: p.Dimension(),
		Available: p.Available(ctx),
	}

	inner := p
	if cached, ok := p.(*CachedProducer); ok {
		inner = cached.Inner()
	}

	switch inner.(type) {
	case *OpenAIProducer:
		info.Provider = ProviderOpenAI
	default:
		info.Provider = ProviderHash
	}

	return info
}
