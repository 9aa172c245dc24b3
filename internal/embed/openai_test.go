package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw-memory/internal/errors"
)

// fakeOpenAI answers the /embeddings route the client library calls.
// Vectors come back index-tagged, deliberately out of order, to verify
// the embedder restores input order from the index field.
type fakeOpenAI struct {
	server *httptest.Server

	mu        sync.Mutex
	calls     int
	lastModel string
	failWith  int
}

func newFakeOpenAI(t *testing.T) *fakeOpenAI {
	t.Helper()
	f := &fakeOpenAI{}

	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		f.calls++
		f.lastModel = req.Model
		fail := f.failWith
		f.mu.Unlock()

		if fail != 0 {
			http.Error(w, `{"error":{"message":"quota exceeded"}}`, fail)
			return
		}

		type datum struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		var data []datum
		// Reverse order on purpose.
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, datum{
				Object:    "embedding",
				Index:     i,
				Embedding: []float64{float64(i), 4},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
		})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeOpenAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeOpenAI) model() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastModel
}

func (f *fakeOpenAI) setFailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = status
}

func (f *fakeOpenAI) embedder(t *testing.T) *OpenAIEmbedder {
	t.Helper()
	e, err := NewOpenAIEmbedder(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    f.server.URL,
		Dimensions: 2,
		MaxRetries: 1,
	})
	require.NoError(t, err)
	return e
}

func TestOpenAIEmbedderRequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestOpenAIEmbedderDefaults(t *testing.T) {
	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "test-key"})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", e.ModelName())
	assert.Equal(t, 1536, e.Dimensions())
}

func TestOpenAIEmbedderEmbed(t *testing.T) {
	fake := newFakeOpenAI(t)
	e := fake.embedder(t)
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "remember the deploy steps")
	require.NoError(t, err)
	require.Len(t, vec, 2)

	// Index 0 means the raw vector is [0 4], normalized to [0 1].
	assert.InDelta(t, 0.0, float64(vec[0]), 1e-6)
	assert.InDelta(t, 1.0, float64(vec[1]), 1e-6)
	assert.Equal(t, "text-embedding-3-small", fake.model())
}

func TestOpenAIEmbedderBatchOrder(t *testing.T) {
	fake := newFakeOpenAI(t)
	e := fake.embedder(t)

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second", "third"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// The fake responds in reverse; index mapping must restore order.
	// Raw vectors are [i 4] for input i.
	for i, vec := range vecs {
		raw := []float32{float32(i), 4}
		assert.InDelta(t, float64(normalizeVector(raw)[0]), float64(vec[0]), 1e-6, "vector %d", i)
	}
	assert.Equal(t, 1, fake.callCount())
}

func TestOpenAIEmbedderBlankTextsSkipAPI(t *testing.T) {
	fake := newFakeOpenAI(t)
	e := fake.embedder(t)

	vecs, err := e.EmbedBatch(context.Background(), []string{"", "  \n"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0, 0}, vecs[0])
	assert.Zero(t, fake.callCount())
}

func TestOpenAIEmbedderServerError(t *testing.T) {
	fake := newFakeOpenAI(t)
	fake.setFailWith(http.StatusTooManyRequests)
	e := fake.embedder(t)

	_, err := e.Embed(context.Background(), "boom")
	require.Error(t, err)
	assert.True(t, errors.IsEmbeddingUnavailable(err))
	// Initial attempt plus one retry.
	assert.Equal(t, 2, fake.callCount())
}

func TestOpenAIEmbedderClosed(t *testing.T) {
	fake := newFakeOpenAI(t)
	e := fake.embedder(t)
	ctx := context.Background()

	assert.True(t, e.Available(ctx))
	require.NoError(t, e.Close())
	assert.False(t, e.Available(ctx))

	_, err := e.Embed(ctx, "after close")
	assert.Error(t, err)
}
