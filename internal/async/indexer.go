package async

import (
	"context"
	"sync"
)

// IndexFunc is the reindex body the runner drives. It reports progress
// into the supplied tracker.
type IndexFunc func(ctx context.Context, progress *IndexProgress) error

// BackgroundIndexer runs one reindex in a background goroutine while the
// caller keeps rendering progress; Wait gives it a blocking mode. The
// index command drives its full-corpus rebuild through one. Cross-process
// exclusion comes from the store's file lock, not from the runner.
type BackgroundIndexer struct {
	progress *IndexProgress
	indexFn  IndexFunc

	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	running bool
	err     error
}

// NewBackgroundIndexer wraps fn for one background run.
func NewBackgroundIndexer(fn IndexFunc) *BackgroundIndexer {
	return &BackgroundIndexer{
		progress: NewIndexProgress(),
		indexFn:  fn,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Progress returns the run's progress tracker.
func (b *BackgroundIndexer) Progress() *IndexProgress {
	return b.progress
}

// IsRunning reports whether the reindex goroutine is active.
func (b *BackgroundIndexer) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start launches the reindex and returns immediately. Subsequent calls
// are no-ops; a runner is single-shot.
func (b *BackgroundIndexer) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.running = true
	b.mu.Unlock()

	go b.run(ctx)
}

func (b *BackgroundIndexer) run(ctx context.Context) {
	defer close(b.doneCh)
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := b.indexFn(ctx, b.progress); err != nil {
		b.progress.SetError(err.Error())
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
		return
	}
	b.progress.SetReady()
}

// Stop cancels a running reindex and waits for the goroutine to exit.
func (b *BackgroundIndexer) Stop() {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return
	}
	if !b.stopped {
		b.stopped = true
		close(b.stopCh)
	}
	b.mu.Unlock()

	<-b.doneCh
}

// Wait blocks until the reindex finishes and returns its error.
func (b *BackgroundIndexer) Wait() error {
	<-b.doneCh
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}
