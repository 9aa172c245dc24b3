package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanFindsMarkdownSorted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "user/preferences.md", "- tabs\n")
	writeFile(t, root, "agent/decisions.md", "- sqlite\n")
	writeFile(t, root, "journal/2026-08-20.md", "## Session 10:00\n")
	writeFile(t, root, "user/entities.md", "- Alice leads infra\n")

	uris, err := New(root).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"agent/decisions.md",
		"journal/2026-08-20.md",
		"user/entities.md",
		"user/preferences.md",
	}, uris)
}

func TestScanSkipsDerivedArtifacts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "PRIMER.md", "generated\n")
	writeFile(t, root, "TASKS.md", "- [ ] task\n")
	writeFile(t, root, "agent/patterns.md", "- a pattern\n")

	uris, err := New(root).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"agent/patterns.md"}, uris)
}

func TestScanSkipsNonMarkdownAndDotfiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.db", "binary")
	writeFile(t, root, "state.json", "{}")
	writeFile(t, root, ".gitignore", "")
	writeFile(t, root, ".hidden/secret.md", "- hidden\n")
	writeFile(t, root, "user/.draft.md", "- draft\n")
	writeFile(t, root, "user/preferences.md", "- tabs\n")

	uris, err := New(root).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"user/preferences.md"}, uris)
}

func TestScanHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "archive/\nscratch*.md\n")
	writeFile(t, root, "archive/old.md", "- stale\n")
	writeFile(t, root, "user/scratch-notes.md", "- wip\n")
	writeFile(t, root, "user/preferences.md", "- tabs\n")

	uris, err := New(root).Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"user/preferences.md"}, uris)
}

func TestScanMissingRoot(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope"))

	_, err := s.Scan(context.Background())
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err) || strings.Contains(err.Error(), "stat"))
}

func TestScanCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "user/preferences.md", "- tabs\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(root).Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndexable(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "drafts/\n")
	s := New(root)

	tests := []struct {
		name string
		rel  string
		want bool
	}{
		{name: "memory file", rel: "user/preferences.md", want: true},
		{name: "journal file", rel: "journal/2026-08-24.md", want: true},
		{name: "primer", rel: "PRIMER.md", want: false},
		{name: "tasks", rel: "TASKS.md", want: false},
		{name: "non markdown", rel: "index.db", want: false},
		{name: "uppercase extension", rel: "user/NOTES.MD", want: false},
		{name: "dotfile", rel: ".gitignore", want: false},
		{name: "under dot dir", rel: ".hidden/notes.md", want: false},
		{name: "gitignored", rel: "drafts/wip.md", want: false},
		{name: "empty", rel: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Indexable(tt.rel))
		})
	}
}

func TestReloadPicksUpGitignoreChanges(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	require.True(t, s.Indexable("user/old.md"))

	writeFile(t, root, ".gitignore", "user/old.md\n")
	assert.True(t, s.Indexable("user/old.md"), "matcher is stale until Reload")

	s.Reload()
	assert.False(t, s.Indexable("user/old.md"))
}
