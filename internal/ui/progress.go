package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/openclaw/openclaw-memory/internal/async"
)

const progressBarWidth = 30

// ProgressRenderer prints reindex progress. On a terminal it redraws a
// single line in place; on a pipe it emits one line per stage change so
// CI logs stay readable.
type ProgressRenderer struct {
	mu        sync.Mutex
	out       io.Writer
	styles    Styles
	tty       bool
	lastStage string
	active    bool
}

// NewProgressRenderer builds a renderer for w, choosing interactive or
// line mode from the writer itself.
func NewProgressRenderer(w io.Writer) *ProgressRenderer {
	return &ProgressRenderer{
		out:    w,
		styles: GetStyles(!ColorEnabled(w)),
		tty:    IsTTY(w),
	}
}

// Render draws the snapshot. Safe to call from a polling loop.
func (r *ProgressRenderer) Render(snap async.IndexProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.Status == string(async.StatusError) {
		r.endLine()
		_, _ = fmt.Fprintf(r.out, "%s %s\n", r.styles.Error.Render("indexing failed:"), snap.ErrorMessage)
		return
	}

	if r.tty {
		bar := renderBar(snap.ProgressPct, progressBarWidth)
		line := fmt.Sprintf("\r%s [%s] %3.0f%% (%d/%d files)",
			r.styles.Label.Render(snap.Stage),
			r.styles.Progress.Render(bar),
			snap.ProgressPct, snap.FilesProcessed, snap.FilesTotal)
		_, _ = fmt.Fprint(r.out, line+"\x1b[K")
		r.active = true
		return
	}

	// Line mode: only speak when the stage changes.
	if snap.Stage != r.lastStage {
		r.lastStage = snap.Stage
		_, _ = fmt.Fprintf(r.out, "%s: %d files\n", snap.Stage, snap.FilesTotal)
	}
}

// Done closes the progress line and prints the summary.
func (r *ProgressRenderer) Done(files, chunks int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.endLine()
	summary := fmt.Sprintf("Indexed %d files (%d chunks) in %s",
		files, chunks, elapsed.Round(100*time.Millisecond))
	_, _ = fmt.Fprintln(r.out, r.styles.Success.Render(summary))
}

// endLine terminates an in-place progress line, if one is pending.
func (r *ProgressRenderer) endLine() {
	if r.active {
		_, _ = fmt.Fprintln(r.out)
		r.active = false
	}
}

// renderBar draws a fixed-width block bar for pct in [0,100].
func renderBar(pct float64, width int) string {
	filled := int(pct / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
