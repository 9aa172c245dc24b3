package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGlobalRoot_EnvOverride(t *testing.T) {
	t.Setenv("OPENCLAW_GLOBAL_ROOT", "/custom/memory/root")
	assert.Equal(t, "/custom/memory/root", DefaultGlobalRoot())
}

func TestDefaultGlobalRoot_UnderHome(t *testing.T) {
	t.Setenv("OPENCLAW_GLOBAL_ROOT", "")
	os.Unsetenv("OPENCLAW_GLOBAL_ROOT")
	home := t.TempDir()
	t.Setenv("HOME", home)

	assert.Equal(t, filepath.Join(home, StoreDirName), DefaultGlobalRoot())
}

// =============================================================================
// Project root detection
// =============================================================================

func TestFindProjectRoot_TomlMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName), []byte(""), 0o644))
	nested := filepath.Join(root, "src", "deep")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Equal(t, root, FindProjectRoot(nested))
}

func TestFindProjectRoot_StoreDirToml(t *testing.T) {
	root := t.TempDir()
	storeDir := filepath.Join(root, StoreDirName)
	require.NoError(t, os.MkdirAll(storeDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(storeDir, ProjectConfigName), []byte(""), 0o644))

	assert.Equal(t, root, FindProjectRoot(root))
}

func TestFindProjectRoot_GitMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "pkg")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Equal(t, root, FindProjectRoot(nested))
}

func TestFindProjectRoot_GitWorktreeFile(t *testing.T) {
	// Worktrees carry .git as a file pointing at the real repository.
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git"),
		[]byte("gitdir: /somewhere/else\n"), 0o644))

	assert.Equal(t, root, FindProjectRoot(root))
}

func TestFindProjectRoot_NoMarker(t *testing.T) {
	assert.Empty(t, FindProjectRoot(t.TempDir()))
}

func TestFindProjectRoot_NearestMarkerWins(t *testing.T) {
	outer := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(outer, ".git"), 0o755))
	inner := filepath.Join(outer, "vendor", "lib")
	require.NoError(t, os.MkdirAll(filepath.Join(inner, ".git"), 0o755))

	assert.Equal(t, inner, FindProjectRoot(inner))
}

// =============================================================================
// Scope paths and layout
// =============================================================================

func TestScope_Paths(t *testing.T) {
	s := Scope{Kind: ScopeProject, Root: "/work/app/.openclaw_memory"}

	assert.Equal(t, "/work/app/.openclaw_memory/index.db", s.IndexPath())
	assert.Equal(t, "/work/app/.openclaw_memory/index.hnsw", s.VectorPath())
	assert.Equal(t, "/work/app/.openclaw_memory/state.json", s.StatePath())
	assert.Equal(t, "/work/app/.openclaw_memory/index.lock", s.LockPath())
	assert.Equal(t, "/work/app/.openclaw_memory/PRIMER.md", s.PrimerPath())
	assert.Equal(t, "/work/app/.openclaw_memory/TASKS.md", s.TasksPath())
	assert.Equal(t, "/work/app/.openclaw_memory/journal", s.JournalDir())
	assert.Equal(t, "/work/app/.openclaw_memory/agent", s.AgentDir())
	assert.Equal(t, "project", s.String())
}

func TestScope_RelAbs(t *testing.T) {
	root := t.TempDir()
	s := Scope{Kind: ScopeProject, Root: root}

	abs := filepath.Join(root, "journal", "2026-02-14.md")
	assert.Equal(t, "journal/2026-02-14.md", s.Rel(abs))
	assert.Equal(t, abs, s.Abs("journal/2026-02-14.md"))

	// Paths outside the root pass through unchanged.
	outside := "/elsewhere/notes.md"
	assert.Equal(t, outside, s.Rel(outside))
}

func TestScope_EnsureLayout_Global(t *testing.T) {
	root := filepath.Join(t.TempDir(), StoreDirName)
	s := Scope{Kind: ScopeGlobal, Root: root}

	require.NoError(t, s.EnsureLayout())

	assert.DirExists(t, s.UserDir())
	assert.DirExists(t, filepath.Join(root, "logs"))
	assert.NoFileExists(t, filepath.Join(root, ".gitignore"),
		"global root is never under version control")
}

func TestScope_EnsureLayout_Project(t *testing.T) {
	root := filepath.Join(t.TempDir(), StoreDirName)
	s := Scope{Kind: ScopeProject, Root: root}

	require.NoError(t, s.EnsureLayout())

	assert.DirExists(t, s.JournalDir())
	assert.DirExists(t, s.AgentDir())

	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	for _, artifact := range []string{IndexDBName, VectorIndexName, LockName, StateName} {
		assert.True(t, strings.Contains(string(data), artifact), "gitignore should cover %s", artifact)
	}

	// Idempotent, and a user-edited .gitignore survives.
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("custom\n"), 0o644))
	require.NoError(t, s.EnsureLayout())
	data, err = os.ReadFile(filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "custom\n", string(data))
}

func TestConfig_Scopes(t *testing.T) {
	cfg := NewConfig()
	cfg.GlobalRoot = "/home/dev/.openclaw_memory"

	scopes := cfg.Scopes()
	require.Len(t, scopes, 1)
	assert.Equal(t, ScopeGlobal, scopes[0].Kind)

	cfg.ProjectRoot = "/work/app"
	scopes = cfg.Scopes()
	require.Len(t, scopes, 2)
	assert.Equal(t, ScopeProject, scopes[1].Kind)
	assert.Equal(t, filepath.Join("/work/app", StoreDirName), scopes[1].Root)

	_, ok := cfg.ProjectScope()
	assert.True(t, ok)
	cfg.ProjectRoot = ""
	_, ok = cfg.ProjectScope()
	assert.False(t, ok)
}

func TestConfig_LogPath(t *testing.T) {
	cfg := NewConfig()
	cfg.GlobalRoot = "/home/dev/.openclaw_memory"
	assert.Equal(t, "/home/dev/.openclaw_memory/logs/server.log", cfg.LogPath())

	cfg.Log.File = "/var/log/memory.log"
	assert.Equal(t, "/var/log/memory.log", cfg.LogPath())
}
