// Package scanner discovers the Markdown memory files of a scope root.
//
// A scope's corpus is every *.md file under its root except the derived
// artifacts (PRIMER.md, TASKS.md), dotfiles, and anything the root
// .gitignore matches. Scan returns relative URIs in sorted order so that
// full reindexes process files deterministically; the watcher reuses the
// same filter through Indexable.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/gitignore"
)

// maxFileSize guards the chunker against pathological inputs. Memory
// files are bullets and session notes; anything this big is not one.
const maxFileSize = 10 << 20

// Scanner filters one scope root. Safe for concurrent use; Reload swaps
// the gitignore matcher when the root .gitignore changes.
type Scanner struct {
	root string

	mu     sync.RWMutex
	ignore *gitignore.Matcher
}

// New builds a scanner for root, loading the root .gitignore if present.
func New(root string) *Scanner {
	s := &Scanner{root: root}
	s.Reload()
	return s
}

// Reload re-reads the root .gitignore. An unreadable file logs a warning
// and leaves everything unignored rather than hiding the corpus.
func (s *Scanner) Reload() {
	m, err := gitignore.Load(s.root)
	if err != nil {
		slog.Warn("unreadable .gitignore",
			slog.String("root", s.root),
			slog.String("error", err.Error()))
		m = &gitignore.Matcher{}
	}
	s.mu.Lock()
	s.ignore = m
	s.mu.Unlock()
}

// Root returns the scope root this scanner walks.
func (s *Scanner) Root() string { return s.root }

// Scan walks the scope root and returns the relative URIs of every
// indexable memory file, sorted lexicographically.
func (s *Scanner) Scan(ctx context.Context) ([]string, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("stat scope root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scope root is not a directory: %s", s.root)
	}

	var uris []string
	err = filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || s.ignored(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !s.Indexable(rel) {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxFileSize {
			return nil
		}

		uris = append(uris, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(uris)
	return uris, nil
}

// Indexable reports whether the relative path names a memory file the
// indexer should touch: Markdown, not a derived artifact, no dotfile
// component, not gitignored.
func (s *Scanner) Indexable(rel string) bool {
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." {
		return false
	}
	if path.Ext(rel) != ".md" {
		return false
	}

	base := path.Base(rel)
	if base == config.PrimerName || base == config.TasksName {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}

	return !s.ignored(rel, false)
}

// IndexableDir reports whether a directory may hold corpus files: no
// dotfile component and not gitignored. The watcher uses it to decide
// which directories to follow.
func (s *Scanner) IndexableDir(rel string) bool {
	rel = filepath.ToSlash(rel)
	if rel == "" || rel == "." {
		return true
	}
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return !s.ignored(rel, true)
}

func (s *Scanner) ignored(rel string, isDir bool) bool {
	s.mu.RLock()
	m := s.ignore
	s.mu.RUnlock()
	return m.Match(rel, isDir)
}
