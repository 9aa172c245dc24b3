package embed

import (
	"context"
	"time"

	"github.com/openclaw/openclaw-memory/internal/errors"
)

// breakerMaxFailures and breakerResetTimeout tune the provider circuit.
// Remote providers that keep timing out would otherwise stall every
// search for the full request timeout; the breaker fails them fast so
// retrieval degrades to full-text immediately.
const (
	breakerMaxFailures  = 3
	breakerResetTimeout = 20 * time.Second
)

// BreakerEmbedder wraps a remote provider in a circuit breaker.
type BreakerEmbedder struct {
	inner Embedder
	cb    *errors.CircuitBreaker
}

// NewBreakerEmbedder wraps inner. The local static embedder never fails
// and does not need one.
func NewBreakerEmbedder(inner Embedder) *BreakerEmbedder {
	return &BreakerEmbedder{
		inner: inner,
		cb: errors.NewCircuitBreaker(inner.ModelName(),
			errors.WithMaxFailures(breakerMaxFailures),
			errors.WithResetTimeout(breakerResetTimeout)),
	}
}

func (b *BreakerEmbedder) openError() error {
	return errors.EmbeddingUnavailable("embedding provider circuit open", errors.ErrCircuitOpen)
}

// Embed generates an embedding, failing fast while the circuit is open.
func (b *BreakerEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return errors.CircuitExecuteWithResult(b.cb,
		func() ([]float32, error) { return b.inner.Embed(ctx, text) },
		func() ([]float32, error) { return nil, b.openError() })
}

// EmbedBatch generates embeddings, failing fast while the circuit is open.
func (b *BreakerEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return errors.CircuitExecuteWithResult(b.cb,
		func() ([][]float32, error) { return b.inner.EmbedBatch(ctx, texts) },
		func() ([][]float32, error) { return nil, b.openError() })
}

// Dimensions returns the embedding dimension of the inner embedder.
func (b *BreakerEmbedder) Dimensions() int { return b.inner.Dimensions() }

// ModelName returns the model identifier of the inner embedder.
func (b *BreakerEmbedder) ModelName() string { return b.inner.ModelName() }

// Available reports the provider state without tripping the breaker, but
// an open circuit counts as unavailable.
func (b *BreakerEmbedder) Available(ctx context.Context) bool {
	if !b.cb.Allow() {
		return false
	}
	return b.inner.Available(ctx)
}

// Close releases provider resources.
func (b *BreakerEmbedder) Close() error { return b.inner.Close() }
