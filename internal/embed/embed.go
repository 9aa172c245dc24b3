// Package embed turns memory text into fixed-dimension unit vectors.
//
// Three providers are supported: openai talks to the hosted embeddings
// API, ollama talks to a local Ollama server over HTTP, and local is an
// in-process feature-hash embedder that needs no service at all. The
// "auto" provider resolves to the first usable one in that order. Every
// provider normalizes its output to unit length, so cosine similarity
// downstream reduces to a dot product.
package embed

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/errors"
)

// Common embedding constants.
const (
	// DefaultBatchSize is the number of texts sent per provider request.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single provider call when the config does
	// not set embedding.timeout_seconds.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of retries after a failed provider
	// call, on top of the initial attempt.
	DefaultMaxRetries = 3
)

// Embedder generates vector embeddings for text.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier recorded in index state.
	ModelName() string

	// Available reports whether the provider can currently serve requests.
	Available(ctx context.Context) bool

	// Close releases provider resources.
	Close() error
}

// providerDefaults fills model and dimension when the config leaves them
// unset. The local provider names itself, so it only carries a dimension.
var providerDefaults = map[string]struct {
	model     string
	dimension int
}{
	config.ProviderOpenAI: {model: "text-embedding-3-small", dimension: 1536},
	config.ProviderOllama: {model: "nomic-embed-text", dimension: 768},
	config.ProviderLocal:  {model: "", dimension: StaticDimensions},
}

// New builds the embedder selected by the config, wrapped in an LRU
// cache. Provider "auto" resolves via Detect.
func New(ctx context.Context, cfg *config.Config) (Embedder, error) {
	provider := cfg.Embedding.Provider
	if provider == "" || provider == config.ProviderAuto {
		provider = Detect(ctx, cfg)
	}

	inner, err := newProvider(cfg, provider)
	if err != nil {
		return nil, err
	}
	// Remote providers get a circuit breaker so a dead endpoint degrades
	// retrieval instantly instead of on every request's timeout.
	if provider != config.ProviderLocal {
		inner = NewBreakerEmbedder(inner)
	}
	return NewCachedEmbedder(inner, DefaultCacheSize), nil
}

// Detect resolves the "auto" provider: openai when an API key is
// configured, ollama when a server answers on the configured host, and
// the in-process static embedder otherwise.
func Detect(ctx context.Context, cfg *config.Config) string {
	if cfg.Embedding.APIKey != "" {
		return config.ProviderOpenAI
	}
	if ollamaReachable(ctx, ollamaHost(cfg)) {
		return config.ProviderOllama
	}
	return config.ProviderLocal
}

// newProvider constructs the concrete provider. Each constructor applies
// its own model and dimension defaults.
func newProvider(cfg *config.Config, provider string) (Embedder, error) {
	timeout := time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second

	switch provider {
	case config.ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimension,
			Timeout:    timeout,
		})
	case config.ProviderOllama:
		return NewOllamaEmbedder(OllamaConfig{
			Host:       ollamaHost(cfg),
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimension,
			Timeout:    timeout,
		}), nil
	case config.ProviderLocal:
		return NewStaticWithDimensions(cfg.Embedding.Dimension), nil
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unknown embedding provider %q", provider), nil)
	}
}

// ollamaHost returns the base URL for the Ollama server.
func ollamaHost(cfg *config.Config) string {
	if cfg.Embedding.BaseURL != "" {
		return cfg.Embedding.BaseURL
	}
	return DefaultOllamaHost
}

// retryConfig bounds provider retries. Memory writes sit on an
// interactive path, so the backoff stays short.
func retryConfig(maxRetries int) errors.RetryConfig {
	return errors.RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// normalizeVector scales a vector to unit length. Zero vectors are
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
