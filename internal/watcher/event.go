// Package watcher keeps a scope's index converged with off-band edits to
// its Markdown files.
//
// Filesystem events are debounced per path with a quiescence window, so a
// burst of writes to one file costs one reindex. Create and modify events
// reindex the file; delete events drop its chunks. PRIMER.md, TASKS.md,
// and everything else the scanner excludes never reach the indexer.
// Indexing failures are logged and heal on the next event for the same
// file; they never stop the watcher.
package watcher

import (
	"time"
)

// DefaultDebounceWindow is the per-path quiescence window. An event fires
// only after its path has been quiet this long; the last event wins.
const DefaultDebounceWindow = 1500 * time.Millisecond

// Op is the kind of filesystem change, after coalescing.
type Op int

const (
	// OpCreate is a new file.
	OpCreate Op = iota
	// OpModify is a change to an existing file.
	OpModify
	// OpDelete is a removed file. Renames away from a watched name count
	// as deletes; the new name arrives as its own create.
	OpDelete
)

// String returns the operation name for logs.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is one debounced file change. URI is relative to the scope root,
// slash-separated, the same form the store keys chunks by.
type Event struct {
	URI  string
	Op   Op
	Time time.Time
}
