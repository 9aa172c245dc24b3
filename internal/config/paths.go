package config

import (
	"os"
	"path/filepath"
	"time"
)

// Well-known file and directory names.
const (
	// StoreDirName is the per-project memory directory.
	StoreDirName = ".openclaw_memory"

	// ProjectConfigName is the project-level config file.
	ProjectConfigName = ".openclaw_memory.toml"

	// GlobalConfigName is the config file under the global root.
	GlobalConfigName = "config.toml"

	// IndexDBName is the derived SQLite index. It is regenerable from the
	// Markdown files and never committed.
	IndexDBName = "index.db"

	// VectorIndexName is the persisted HNSW vector index.
	VectorIndexName = "index.hnsw"

	// StateName holds per-scope telemetry and session counters.
	StateName = "state.json"

	// LockName is the cross-process file lock guarding a scope.
	LockName = "index.lock"

	// PrimerName and TasksName are maintained artifacts, never indexed.
	PrimerName = "PRIMER.md"
	TasksName  = "TASKS.md"
)

// Canonical memory file URIs, relative to their scope root. The router
// writes to these and the retriever's fast path reads them back.
const (
	PreferencesURI  = "user/preferences.md"
	InstructionsURI = "user/instructions.md"
	EntitiesURI     = "user/entities.md"
	DecisionsURI    = "agent/decisions.md"
	PatternsURI     = "agent/patterns.md"
)

// JournalURI returns the journal day-file URI for t, e.g.
// "journal/2026-08-24.md".
func JournalURI(t time.Time) string {
	return "journal/" + t.Format("2006-01-02") + ".md"
}

// DefaultGlobalRoot returns the global memory root: $OPENCLAW_GLOBAL_ROOT if
// set, else ~/.openclaw_memory, else a temp-dir fallback for environments
// without a home directory.
func DefaultGlobalRoot() string {
	if root := os.Getenv("OPENCLAW_GLOBAL_ROOT"); root != "" {
		return root
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), StoreDirName)
	}
	return filepath.Join(home, StoreDirName)
}

// FindProjectRoot walks upward from startDir looking for a project marker:
// a .openclaw_memory.toml file (directly or inside .openclaw_memory/), or a
// .git entry. Returns "" when no marker is found, which puts the service in
// global-only mode.
func FindProjectRoot(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		if fileExists(filepath.Join(dir, ProjectConfigName)) {
			return dir
		}
		if fileExists(filepath.Join(dir, StoreDirName, ProjectConfigName)) {
			return dir
		}
		// .git may be a directory or, in worktrees, a file.
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ScopeKind distinguishes the two memory scopes.
type ScopeKind string

const (
	ScopeGlobal  ScopeKind = "global"
	ScopeProject ScopeKind = "project"
)

// Scope identifies one memory root: the directory that holds the Markdown
// files and the derived index artifacts for either the global or the project
// store.
type Scope struct {
	Kind ScopeKind
	Root string
}

func (s Scope) String() string { return string(s.Kind) }

// IndexPath returns the scope's SQLite index file.
func (s Scope) IndexPath() string { return filepath.Join(s.Root, IndexDBName) }

// VectorPath returns the scope's persisted HNSW index file.
func (s Scope) VectorPath() string { return filepath.Join(s.Root, VectorIndexName) }

// StatePath returns the scope's telemetry state file.
func (s Scope) StatePath() string { return filepath.Join(s.Root, StateName) }

// LockPath returns the scope's cross-process lock file.
func (s Scope) LockPath() string { return filepath.Join(s.Root, LockName) }

// PrimerPath and TasksPath are only meaningful for project scopes but are
// defined for both so callers need not branch.
func (s Scope) PrimerPath() string { return filepath.Join(s.Root, PrimerName) }
func (s Scope) TasksPath() string  { return filepath.Join(s.Root, TasksName) }

// JournalDir returns the scope's journal directory.
func (s Scope) JournalDir() string { return filepath.Join(s.Root, "journal") }

// AgentDir returns the scope's agent memory directory.
func (s Scope) AgentDir() string { return filepath.Join(s.Root, "agent") }

// UserDir returns the global scope's user memory directory.
func (s Scope) UserDir() string { return filepath.Join(s.Root, "user") }

// Rel converts an absolute path under the scope root to the slash-separated
// relative form used as a memory URI. Paths outside the root come back
// unchanged.
func (s Scope) Rel(path string) string {
	rel, err := filepath.Rel(s.Root, path)
	if err != nil || rel == "." || len(rel) >= 2 && rel[:2] == ".." {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Abs converts a memory URI back to an absolute path under the scope root.
func (s Scope) Abs(uri string) string {
	return filepath.Join(s.Root, filepath.FromSlash(uri))
}

// gitignoreContent keeps the Markdown under version control while excluding
// every derived artifact.
const gitignoreContent = `# OpenClaw Memory (keep markdown, ignore index)
index.db
index.db-wal
index.db-shm
index.hnsw
index.lock
state.json
`

// EnsureLayout creates the scope's directory skeleton. Project scopes also
// get a .gitignore covering the derived index artifacts. Existing files are
// left alone.
func (s Scope) EnsureLayout() error {
	dirs := []string{s.Root}
	switch s.Kind {
	case ScopeGlobal:
		dirs = append(dirs, s.UserDir(), filepath.Join(s.Root, "logs"))
	case ScopeProject:
		dirs = append(dirs, s.JournalDir(), s.AgentDir())
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if s.Kind == ScopeProject {
		path := filepath.Join(s.Root, ".gitignore")
		if !fileExists(path) {
			if err := os.WriteFile(path, []byte(gitignoreContent), 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

// GlobalConfigPath returns the global config file for this configuration.
func (c *Config) GlobalConfigPath() string {
	return filepath.Join(c.GlobalRoot, GlobalConfigName)
}

// ProjectConfigPath returns the project config file location, preferring
// one that already exists. Empty in global-only mode.
func (c *Config) ProjectConfigPath() string {
	if c.ProjectRoot == "" {
		return ""
	}
	nested := filepath.Join(c.ProjectRoot, StoreDirName, ProjectConfigName)
	if fileExists(nested) {
		return nested
	}
	return filepath.Join(c.ProjectRoot, ProjectConfigName)
}

// GlobalScope returns the global memory scope.
func (c *Config) GlobalScope() Scope {
	return Scope{Kind: ScopeGlobal, Root: c.GlobalRoot}
}

// ProjectScope returns the project memory scope, or ok=false in global-only
// mode.
func (c *Config) ProjectScope() (Scope, bool) {
	if c.ProjectRoot == "" {
		return Scope{}, false
	}
	return Scope{Kind: ScopeProject, Root: filepath.Join(c.ProjectRoot, StoreDirName)}, true
}

// Scopes returns all active scopes, global first.
func (c *Config) Scopes() []Scope {
	scopes := []Scope{c.GlobalScope()}
	if project, ok := c.ProjectScope(); ok {
		scopes = append(scopes, project)
	}
	return scopes
}

// LogPath resolves the log file: log.file if set, else logs/server.log under
// the global root.
func (c *Config) LogPath() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(c.GlobalRoot, "logs", "server.log")
}
