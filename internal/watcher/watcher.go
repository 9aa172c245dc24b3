package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/scanner"
)

// Reindexer is the slice of the indexer the watcher dispatches to.
type Reindexer interface {
	IndexFile(ctx context.Context, uri string) (int, error)
	Remove(ctx context.Context, uri string) (int, error)
}

// Watcher follows one scope root and keeps its index converged with
// off-band edits. One instance per scope.
type Watcher struct {
	scope   config.Scope
	scanner *scanner.Scanner
	indexer Reindexer
	deb     *Debouncer

	fw *fsnotify.Watcher

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// New builds a watcher over the scope whose corpus filter and indexer are
// given. window <= 0 uses DefaultDebounceWindow.
func New(scope config.Scope, sc *scanner.Scanner, ix Reindexer, window time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		scope:   scope,
		scanner: sc,
		indexer: ix,
		deb:     NewDebouncer(window),
		fw:      fw,
	}, nil
}

// Start registers the scope's directories and begins dispatching events in
// the background. It returns once the watches are in place.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.scope.Root); err != nil {
		_ = w.fw.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.collect(ctx)
	go w.dispatch(ctx)

	slog.Info("watcher started",
		slog.String("scope", w.scope.String()),
		slog.String("root", w.scope.Root))
	return nil
}

// Stop halts both loops and releases the fsnotify handles. Events already
// debounced may still be dispatched before Stop returns.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	_ = w.fw.Close()
	w.deb.Stop()
	if done != nil {
		<-done
	}
	slog.Info("watcher stopped", slog.String("scope", w.scope.String()))
}

// addRecursive watches root and every subdirectory the scanner does not
// exclude. New directories are picked up from their create events.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		rel := w.scope.Rel(path)
		if rel != "." && !w.scanner.IndexableDir(rel) {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
}

// collect drains raw fsnotify events into the debouncer.
func (w *Watcher) collect(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error",
				slog.String("scope", w.scope.String()),
				slog.String("error", err.Error()))
		}
	}
}

// handle filters and translates one raw event.
func (w *Watcher) handle(ev fsnotify.Event) {
	rel := w.scope.Rel(ev.Name)
	if rel == "" || rel == "." {
		return
	}

	// An edited ignore file changes what counts as corpus; reload the
	// matcher so subsequent events are filtered by the new rules.
	if filepath.Base(ev.Name) == ".gitignore" {
		if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) != 0 {
			w.scanner.Reload()
		}
		return
	}

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.scanner.IndexableDir(rel) {
				_ = w.addRecursive(ev.Name)
			}
			return
		}
	}

	if !w.scanner.Indexable(rel) {
		return
	}

	var op Op
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A rename leaves nothing at the old name; the new name shows up
		// as its own create event.
		op = OpDelete
	default:
		return // chmod and friends
	}

	w.deb.Add(Event{URI: rel, Op: op, Time: time.Now()})
}

// dispatch applies debounced events to the indexer. Failures are logged
// and left for the file's next event; the loop never exits on them.
func (w *Watcher) dispatch(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.deb.Events():
			w.apply(ctx, ev)
		}
	}
}

func (w *Watcher) apply(ctx context.Context, ev Event) {
	var err error
	var n int
	switch ev.Op {
	case OpDelete:
		n, err = w.indexer.Remove(ctx, ev.URI)
	default:
		n, err = w.indexer.IndexFile(ctx, ev.URI)
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("watcher reindex failed",
			slog.String("scope", w.scope.String()),
			slog.String("uri", ev.URI),
			slog.String("op", ev.Op.String()),
			slog.String("error", err.Error()))
		return
	}
	slog.Debug("watcher reindexed",
		slog.String("scope", w.scope.String()),
		slog.String("uri", ev.URI),
		slog.String("op", ev.Op.String()),
		slog.Int("chunks", n))
}
