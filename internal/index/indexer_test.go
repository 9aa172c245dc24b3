package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw-memory/internal/async"
	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/embed"
	"github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/scanner"
	"github.com/openclaw/openclaw-memory/internal/store"
)

const testDims = 32

func newTestIndexer(t *testing.T, root string) (*Indexer, *store.Store) {
	t.Helper()
	scope := config.Scope{Kind: config.ScopeProject, Root: root}
	st, err := store.Open(context.Background(), scope, testDims)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	em := embed.NewStaticWithDimensions(testDims)
	return New(scope, st, em, scanner.New(root)), st
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIndexFileCreatesChunks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "agent/decisions.md",
		"---\ntype: decision\nimportance: 5\n---\n\n## Storage\n\n- use sqlite for the index\n\n## Transport\n\n- stdio first\n")
	ix, st := newTestIndexer(t, root)

	n, err := ix.IndexFile(context.Background(), "agent/decisions.md")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	chunks, err := st.GetByURI(context.Background(), "agent/decisions.md")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Equal(t, "decision", c.Type)
		assert.Equal(t, 5, c.Importance)
		assert.Equal(t, "agent", c.ParentDir)
		assert.Positive(t, c.TokenCount)
		assert.False(t, c.CreatedAt.IsZero())
	}

	hits, err := st.FTSSearch(context.Background(), "sqlite", 10, "")
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "agent/decisions.md", hits[0].URI)
}

func TestIndexFileDefaultsFromURI(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "user/preferences.md", "## Style\n\n- prefers tabs\n")
	ix, st := newTestIndexer(t, root)

	_, err := ix.IndexFile(context.Background(), "user/preferences.md")
	require.NoError(t, err)

	chunks, err := st.GetByURI(context.Background(), "user/preferences.md")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "preference", chunks[0].Type, "type inferred from the file name")
	assert.Equal(t, 1, chunks[0].Importance, "importance floors at 1")
}

func TestIndexFileMissingDeletes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "user/entities.md", "- Alice leads infra\n")
	ix, st := newTestIndexer(t, root)

	_, err := ix.IndexFile(context.Background(), "user/entities.md")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "user", "entities.md")))
	n, err := ix.IndexFile(context.Background(), "user/entities.md")
	require.NoError(t, err)
	assert.Zero(t, n)

	chunks, err := st.GetByURI(context.Background(), "user/entities.md")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIndexFileUnchangedIsStable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "agent/patterns.md", "## Caching\n\n- invalidate on write\n")
	ix, st := newTestIndexer(t, root)
	ctx := context.Background()

	_, err := ix.IndexFile(ctx, "agent/patterns.md")
	require.NoError(t, err)
	before, err := st.GetByURI(ctx, "agent/patterns.md")
	require.NoError(t, err)
	require.Len(t, before, 1)

	time.Sleep(20 * time.Millisecond)
	_, err = ix.IndexFile(ctx, "agent/patterns.md")
	require.NoError(t, err)

	after, err := st.GetByURI(ctx, "agent/patterns.md")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.True(t, before[0].UpdatedAt.Equal(after[0].UpdatedAt), "unchanged chunk must not be re-stamped")
	assert.True(t, before[0].CreatedAt.Equal(after[0].CreatedAt))
}

func TestIndexFileMovedContentKeepsCounters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "agent/patterns.md", "## Retries\n\n- exponential backoff with jitter\n")
	ix, st := newTestIndexer(t, root)
	ctx := context.Background()

	_, err := ix.IndexFile(ctx, "agent/patterns.md")
	require.NoError(t, err)
	orig, err := st.GetByURI(ctx, "agent/patterns.md")
	require.NoError(t, err)
	require.Len(t, orig, 1)

	_, err = st.IncrementReinforcement(ctx, orig[0].ID)
	require.NoError(t, err)

	// A new section above moves the old one down: same content, new
	// position, therefore a new chunk id.
	writeFile(t, root, "agent/patterns.md",
		"## Logging\n\n- structured only\n\n## Retries\n\n- exponential backoff with jitter\n")
	_, err = ix.IndexFile(ctx, "agent/patterns.md")
	require.NoError(t, err)

	chunks, err := st.GetByURI(ctx, "agent/patterns.md")
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	moved := -1
	for i, c := range chunks {
		if c.ContentHash == orig[0].ContentHash {
			moved = i
			break
		}
	}
	require.GreaterOrEqual(t, moved, 0, "moved section should still be indexed")
	got := chunks[moved]
	assert.NotEqual(t, orig[0].ID, got.ID, "position is part of the id")
	assert.Equal(t, 1, got.Reinforcement, "counters follow the content")
	assert.True(t, got.CreatedAt.Equal(orig[0].CreatedAt))

	old, err := st.GetByID(ctx, orig[0].ID)
	require.NoError(t, err)
	assert.Nil(t, old, "stale id must be deleted")
}

func TestIndexFileRemovedSectionDeleted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "agent/decisions.md",
		"## Keep\n\n- stays around\n\n## Drop\n\n- obsolete choice\n")
	ix, st := newTestIndexer(t, root)
	ctx := context.Background()

	_, err := ix.IndexFile(ctx, "agent/decisions.md")
	require.NoError(t, err)

	writeFile(t, root, "agent/decisions.md", "## Keep\n\n- stays around\n")
	_, err = ix.IndexFile(ctx, "agent/decisions.md")
	require.NoError(t, err)

	chunks, err := st.GetByURI(ctx, "agent/decisions.md")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Content, "stays around")

	hits, err := st.FTSSearch(ctx, "obsolete", 10, "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndexFileEmptiedFileDeletesAll(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "user/notes.md", "## Things\n\n- a note\n")
	ix, st := newTestIndexer(t, root)
	ctx := context.Background()

	_, err := ix.IndexFile(ctx, "user/notes.md")
	require.NoError(t, err)

	writeFile(t, root, "user/notes.md", "")
	n, err := ix.IndexFile(ctx, "user/notes.md")
	require.NoError(t, err)
	assert.Zero(t, n)

	chunks, err := st.GetByURI(ctx, "user/notes.md")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestRemove(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "user/entities.md", "- Bob maintains the proxy\n")
	ix, st := newTestIndexer(t, root)
	ctx := context.Background()

	_, err := ix.IndexFile(ctx, "user/entities.md")
	require.NoError(t, err)

	removed, err := ix.Remove(ctx, "user/entities.md")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	chunks, err := st.GetByURI(ctx, "user/entities.md")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIndexAll(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "drafts/\n")
	writeFile(t, root, "user/preferences.md", "- prefers dark theme\n")
	writeFile(t, root, "agent/decisions.md", "- chose sqlite\n")
	writeFile(t, root, "journal/2026-08-20.md", "## Session 10:00\n\n- worked on indexing\n")
	writeFile(t, root, "PRIMER.md", "derived, never indexed\n")
	writeFile(t, root, "TASKS.md", "- [ ] derived too\n")
	writeFile(t, root, "drafts/wip.md", "- ignored by gitignore\n")
	ix, st := newTestIndexer(t, root)
	ctx := context.Background()

	progress := async.NewIndexProgress()
	require.NoError(t, ix.IndexAll(ctx, progress))

	uris, err := st.AllURIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"agent/decisions.md",
		"journal/2026-08-20.md",
		"user/preferences.md",
	}, uris)

	snap := progress.Snapshot()
	assert.Equal(t, string(async.StageIndexing), snap.Stage)
	assert.Equal(t, 3, snap.FilesProcessed)
	assert.Equal(t, 3, snap.ChunksTotal)
	assert.Equal(t, 3, snap.ChunksIndexed)

	journal, err := st.GetByURI(ctx, "journal/2026-08-20.md")
	require.NoError(t, err)
	require.Len(t, journal, 1)
	assert.Equal(t, "journal", journal[0].Type)
}

func TestIndexAllPrunesDeletedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "user/preferences.md", "- prefers dark theme\n")
	writeFile(t, root, "user/entities.md", "- Alice leads infra\n")
	ix, st := newTestIndexer(t, root)
	ctx := context.Background()

	require.NoError(t, ix.IndexAll(ctx, nil))

	require.NoError(t, os.Remove(filepath.Join(root, "user", "entities.md")))
	require.NoError(t, ix.IndexAll(ctx, nil))

	uris, err := st.AllURIs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user/preferences.md"}, uris)
}

func TestIndexAllCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "user/preferences.md", "- prefers dark theme\n")
	ix, _ := newTestIndexer(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ix.IndexAll(ctx, nil)
	require.Error(t, err)
}

type failingEmbedder struct {
	embed.Embedder
}

func (f *failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.EmbeddingUnavailable("provider down", nil)
}

func TestIndexAllEmbedFailureAborts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "user/preferences.md", "- prefers dark theme\n")
	scope := config.Scope{Kind: config.ScopeProject, Root: root}
	st, err := store.Open(context.Background(), scope, testDims)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	em := &failingEmbedder{Embedder: embed.NewStaticWithDimensions(testDims)}
	ix := New(scope, st, em, scanner.New(root))

	err = ix.IndexAll(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsEmbeddingUnavailable(err))
}

func TestTypeFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{uri: "user/preferences.md", want: "preference"},
		{uri: "user/instructions.md", want: "instruction"},
		{uri: "user/entities.md", want: "entity"},
		{uri: "agent/decisions.md", want: "decision"},
		{uri: "agent/patterns.md", want: "pattern"},
		{uri: "journal/2026-08-24.md", want: "journal"},
		{uri: "notes/random.md", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			assert.Equal(t, tt.want, TypeFromURI(tt.uri))
		})
	}
}
