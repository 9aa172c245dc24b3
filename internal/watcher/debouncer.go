package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces rapid events per path so a burst of saves costs one
// reindex. Each path has its own quiescence timer; a new event for the
// path restarts it, and the path's coalesced event fires only after the
// window passes with no further activity.
//
// Overlapping operations on one path merge by these rules:
//
//	create + modify = create   (the file is still new to the index)
//	create + delete = nothing  (it came and went unseen)
//	modify + delete = delete
//	delete + create = modify   (the file was replaced in place)
type Debouncer struct {
	window time.Duration
	out    chan Event

	mu      sync.Mutex
	pending map[string]*pendingEvent
	stopped bool
}

type pendingEvent struct {
	event   Event
	firstOp Op
	timer   *time.Timer
}

// NewDebouncer builds a debouncer emitting on a channel sized for a
// directory's worth of simultaneous edits. window <= 0 uses the default.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{
		window:  window,
		out:     make(chan Event, 64),
		pending: make(map[string]*pendingEvent),
	}
}

// Add records one raw event, restarting its path's quiescence timer.
func (d *Debouncer) Add(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if p, ok := d.pending[ev.URI]; ok {
		merged, keep := coalesce(p.firstOp, ev)
		if !keep {
			p.timer.Stop()
			delete(d.pending, ev.URI)
			return
		}
		p.event = merged
		p.timer.Reset(d.window)
		return
	}

	p := &pendingEvent{event: ev, firstOp: ev.Op}
	p.timer = time.AfterFunc(d.window, func() { d.fire(ev.URI) })
	d.pending[ev.URI] = p
}

// coalesce merges a follow-up event into the operation the pending entry
// started with. keep is false when the pair cancels out.
func coalesce(first Op, next Event) (Event, bool) {
	switch {
	case first == OpCreate && next.Op == OpModify:
		next.Op = OpCreate
	case first == OpCreate && next.Op == OpDelete:
		return Event{}, false
	case first == OpDelete && next.Op == OpCreate:
		next.Op = OpModify
	}
	return next, true
}

// fire emits the path's coalesced event once its window lapsed.
func (d *Debouncer) fire(uri string) {
	d.mu.Lock()
	p, ok := d.pending[uri]
	if ok {
		delete(d.pending, uri)
	}
	stopped := d.stopped
	d.mu.Unlock()

	if !ok || stopped {
		return
	}
	// Block rather than drop: losing an event here would leave the index
	// stale until the next edit of the same file.
	d.out <- p.event
}

// Events is the channel of debounced events. The channel is never closed;
// consumers select against their own done signal.
func (d *Debouncer) Events() <-chan Event {
	return d.out
}

// Stop cancels pending timers and stops accepting events. Safe to call
// more than once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	for uri, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, uri)
	}
}
