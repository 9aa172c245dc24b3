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

// fakeOllama serves the two endpoints the embedder uses. Each /api/embed
// input produces a fixed [3 4] vector, so normalization is easy to check.
// The mutex keeps handler goroutines and test assertions race-clean.
type fakeOllama struct {
	server *httptest.Server
	models []string

	mu         sync.Mutex
	embedCalls int
	lastInputs []string
	failWith   int // when non-zero, /api/embed answers with this status
}

func newFakeOllama(t *testing.T, models ...string) *fakeOllama {
	t.Helper()
	f := &fakeOllama{models: models}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		type model struct {
			Name string `json:"name"`
		}
		resp := struct {
			Models []model `json:"models"`
		}{}
		for _, name := range f.models {
			resp.Models = append(resp.Models, model{Name: name})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
			Input any    `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var inputs []string
		switch in := req.Input.(type) {
		case string:
			inputs = []string{in}
		case []any:
			for _, v := range in {
				inputs = append(inputs, v.(string))
			}
		}

		f.mu.Lock()
		f.embedCalls++
		f.lastInputs = inputs
		fail := f.failWith
		f.mu.Unlock()

		if fail != 0 {
			http.Error(w, "model exploded", fail)
			return
		}

		embeddings := make([][]float64, len(inputs))
		for i := range embeddings {
			embeddings[i] = []float64{3, 4}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      req.Model,
			"embeddings": embeddings,
		})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeOllama) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls
}

func (f *fakeOllama) inputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lastInputs...)
}

func (f *fakeOllama) setFailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = status
}

func (f *fakeOllama) embedder(model string) *OllamaEmbedder {
	return NewOllamaEmbedder(OllamaConfig{
		Host:       f.server.URL,
		Model:      model,
		Dimensions: 2,
		MaxRetries: 1,
	})
}

func TestOllamaEmbedderEmbed(t *testing.T) {
	fake := newFakeOllama(t, "nomic-embed-text:latest")
	e := fake.embedder("nomic-embed-text")
	defer func() { _ = e.Close() }()

	vec, err := e.Embed(context.Background(), "hello memory")
	require.NoError(t, err)
	require.Len(t, vec, 2)

	// [3 4] normalized.
	assert.InDelta(t, 0.6, float64(vec[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(vec[1]), 1e-6)
	assert.Equal(t, []string{"hello memory"}, fake.inputs())
}

func TestOllamaEmbedderBatchSkipsBlanks(t *testing.T) {
	fake := newFakeOllama(t, "nomic-embed-text:latest")
	e := fake.embedder("nomic-embed-text")
	defer func() { _ = e.Close() }()

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "   ", "third"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// The blank entry never reaches the server and comes back zeroed.
	assert.Equal(t, []string{"first", "third"}, fake.inputs())
	assert.Equal(t, []float32{0, 0}, vecs[1])
	assert.InDelta(t, 0.6, float64(vecs[0][0]), 1e-6)
	assert.InDelta(t, 0.6, float64(vecs[2][0]), 1e-6)
}

func TestOllamaEmbedderAllBlankBatch(t *testing.T) {
	fake := newFakeOllama(t, "nomic-embed-text:latest")
	e := fake.embedder("nomic-embed-text")

	vecs, err := e.EmbedBatch(context.Background(), []string{"", "  "})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Zero(t, fake.calls())
}

func TestOllamaEmbedderAvailable(t *testing.T) {
	fake := newFakeOllama(t, "nomic-embed-text:latest", "llama3:8b")
	ctx := context.Background()

	// Exact and tag-stripped matches count.
	assert.True(t, fake.embedder("nomic-embed-text").Available(ctx))
	assert.True(t, fake.embedder("nomic-embed-text:latest").Available(ctx))
	assert.False(t, fake.embedder("mxbai-embed-large").Available(ctx))

	// Dead host.
	dead := NewOllamaEmbedder(OllamaConfig{Host: "http://127.0.0.1:1", Dimensions: 2})
	assert.False(t, dead.Available(ctx))
}

func TestOllamaEmbedderServerError(t *testing.T) {
	fake := newFakeOllama(t, "nomic-embed-text:latest")
	fake.setFailWith(http.StatusInternalServerError)
	e := fake.embedder("nomic-embed-text")

	_, err := e.EmbedBatch(context.Background(), []string{"boom"})
	require.Error(t, err)
	assert.True(t, errors.IsEmbeddingUnavailable(err))
	// Initial attempt plus one retry.
	assert.Equal(t, 2, fake.calls())
}

func TestOllamaEmbedderCountMismatch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      "m",
			"embeddings": [][]float64{{1, 0}},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: server.URL, Dimensions: 2, MaxRetries: 1})
	_, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
	require.Error(t, err)
	assert.True(t, errors.IsEmbeddingUnavailable(err))
}

func TestOllamaEmbedderClosed(t *testing.T) {
	fake := newFakeOllama(t, "nomic-embed-text:latest")
	e := fake.embedder("nomic-embed-text")
	ctx := context.Background()

	require.NoError(t, e.Close())
	assert.False(t, e.Available(ctx))

	_, err := e.Embed(ctx, "after close")
	assert.Error(t, err)

	assert.NoError(t, e.Close())
}

func TestOllamaEmbedderDefaults(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{})
	assert.Equal(t, "nomic-embed-text", e.ModelName())
	assert.Equal(t, 768, e.Dimensions())
	assert.Equal(t, DefaultOllamaHost, e.host)
}

func TestOllamaReachable(t *testing.T) {
	fake := newFakeOllama(t, "nomic-embed-text:latest")
	ctx := context.Background()

	assert.True(t, ollamaReachable(ctx, fake.server.URL))
	assert.True(t, ollamaReachable(ctx, fake.server.URL+"/"))
	assert.False(t, ollamaReachable(ctx, "http://127.0.0.1:1"))
}
