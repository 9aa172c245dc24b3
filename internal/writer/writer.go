// Package writer turns agent notes into durable memory-file mutations.
//
// A note travels quality gate → privacy filter → router → similarity
// branch. A note nearly identical to an existing memory reinforces it
// instead of duplicating; one that overlaps but diverges replaces the old
// bullet in place; everything else appends under its kind's canonical
// section. The mutated file is re-indexed before Write returns, so a
// search issued right after a successful write observes the new memory.
package writer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/openclaw/openclaw-memory/internal/chunk"
	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/embed"
	"github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/index"
	"github.com/openclaw/openclaw-memory/internal/memfile"
	"github.com/openclaw/openclaw-memory/internal/privacy"
	"github.com/openclaw/openclaw-memory/internal/store"
)

// Similarity thresholds for the dedup branch. At or above reinforce the
// note is a restatement; between the two it contradicts or supersedes.
const (
	ReinforceThreshold = 0.92
	ConflictThreshold  = 0.85
)

// Backend is the per-scope machinery a write can land in.
type Backend struct {
	Scope   config.Scope
	Store   *store.Store
	Indexer *index.Indexer

	// mu serializes the similarity branch and the file mutation that
	// follows it. Without it two writes to the same file interleave
	// load-edit-save cycles and one bullet silently overwrites the other.
	mu sync.Mutex
}

// Action names the durable effect a write had.
type Action string

const (
	ActionAppended   Action = "appended"
	ActionReinforced Action = "reinforced"
	ActionUpdated    Action = "updated"
)

// Outcome reports the one durable effect of a successful write.
type Outcome struct {
	Action Action
	Path   string // mutated file, relative to its scope root
	Scope  config.ScopeKind
	Type   string
	Score  float64 // best-candidate similarity for reinforce/update
}

// Writer implements the smart write pipeline for both scopes.
type Writer struct {
	global   *Backend
	project  *Backend // nil in global-only mode
	embedder embed.Embedder
	filter   *privacy.Filter

	reinforceThreshold float64
	conflictThreshold  float64

	now func() time.Time
}

// New builds a Writer. project may be nil, in which case notes routed to
// project files are rejected. Callers serialize writes per scope.
func New(global, project *Backend, embedder embed.Embedder, filter *privacy.Filter) *Writer {
	return &Writer{
		global:             global,
		project:            project,
		embedder:           embedder,
		filter:             filter,
		reinforceThreshold: ReinforceThreshold,
		conflictThreshold:  ConflictThreshold,
		now:                time.Now,
	}
}

// SetThresholds overrides the similarity thresholds. Values outside (0, 1]
// keep the defaults.
func (w *Writer) SetThresholds(reinforce, conflict float64) {
	if reinforce > 0 && reinforce <= 1 {
		w.reinforceThreshold = reinforce
	}
	if conflict > 0 && conflict <= 1 {
		w.conflictThreshold = conflict
	}
}

// Write runs content through the pipeline. typeHint, when it names a known
// memory kind, overrides keyword routing.
func (w *Writer) Write(ctx context.Context, content, typeHint string) (*Outcome, error) {
	text := flatten(strings.TrimSpace(content))
	if reason := gateReason(text); reason != "" {
		slog.Debug("memory write rejected", "reason", reason)
		return nil, errors.QualityRejected(reason)
	}
	if w.filter.Sensitive(text) {
		slog.Debug("memory write rejected", "reason", "privacy")
		return nil, errors.PrivacyRejected()
	}

	route := w.route(text, typeHint)
	backend, err := w.backendFor(route.Scope)
	if err != nil {
		return nil, err
	}
	slog.Debug("memory write routed",
		"kind", route.Kind, "file", route.File, "preview", w.filter.Redact(preview(text)))

	vec, err := w.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.EmbeddingUnavailable("embed memory content", err)
	}

	// Held from find-similar through the re-index so a concurrent write
	// cannot change the file between the branch decision and the save.
	// Embedding stays outside: it is the slow remote call and reads nothing.
	backend.mu.Lock()
	defer backend.mu.Unlock()

	cands, err := backend.Store.FindSimilar(ctx, vec, w.conflictThreshold, chunk.ParentDir(route.File))
	if err != nil {
		return nil, err
	}

	if best, ok := bestCandidate(cands); ok {
		if best.Score >= w.reinforceThreshold {
			return w.reinforce(ctx, backend, best)
		}
		out, done, err := w.replaceConflict(ctx, backend, best, text)
		if err != nil {
			return nil, err
		}
		if done {
			return out, nil
		}
		// The conflicting bullet drifted or vanished; append instead.
	}
	return w.append(ctx, backend, route, text)
}

// route resolves the destination, honoring a recognized type hint.
func (w *Writer) route(text, typeHint string) Route {
	if typeHint != "" {
		if route, ok := routeForKind(typeHint, w.now()); ok {
			return route
		}
	}
	return routeContent(text, w.now())
}

func (w *Writer) backendFor(kind config.ScopeKind) (*Backend, error) {
	if kind == config.ScopeGlobal {
		return w.global, nil
	}
	if w.project == nil {
		return nil, errors.New(errors.ErrCodeNoProject, "no project", nil)
	}
	return w.project, nil
}

// reinforce bumps the matched chunk's counter and mirrors the new value
// into its file's frontmatter. A file deleted under us only loses the
// mirror; the store already holds the count.
func (w *Writer) reinforce(ctx context.Context, b *Backend, best store.ScoredChunk) (*Outcome, error) {
	val, err := b.Store.IncrementReinforcement(ctx, best.ID)
	if err != nil {
		return nil, err
	}

	mf, err := memfile.Load(b.Scope.Abs(best.URI))
	switch {
	case os.IsNotExist(err):
		slog.Warn("reinforced memory's file is gone", "uri", best.URI, "scope", b.Scope.Kind)
	case err != nil:
		return nil, errors.New(errors.ErrCodeFileIO, fmt.Sprintf("open %s", best.URI), err)
	default:
		mf.SetField("reinforcement", val)
		mf.Touch(w.now())
		if err := mf.Save(); err != nil {
			return nil, errors.New(errors.ErrCodeFileIO, fmt.Sprintf("write %s", best.URI), err)
		}
		if _, err := b.Indexer.IndexFile(ctx, best.URI); err != nil {
			return nil, err
		}
	}

	slog.Info("memory reinforced", "uri", best.URI, "score", best.Score, "reinforcement", val)
	return &Outcome{
		Action: ActionReinforced,
		Path:   best.URI,
		Scope:  b.Scope.Kind,
		Type:   best.Type,
		Score:  best.Score,
	}, nil
}

// replaceConflict substitutes the superseded bullet in the candidate's
// file. done is false when the bullet cannot be located anymore, which
// sends the caller down the append path.
func (w *Writer) replaceConflict(ctx context.Context, b *Backend, best store.ScoredChunk, text string) (*Outcome, bool, error) {
	mf, err := memfile.Load(b.Scope.Abs(best.URI))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.New(errors.ErrCodeFileIO, fmt.Sprintf("open %s", best.URI), err)
	}
	if !mf.ReplaceBullet(conflictTarget(best.Content), text) {
		return nil, false, nil
	}

	mf.Touch(w.now())
	if err := mf.Save(); err != nil {
		return nil, false, errors.New(errors.ErrCodeFileIO, fmt.Sprintf("write %s", best.URI), err)
	}
	if _, err := b.Indexer.IndexFile(ctx, best.URI); err != nil {
		return nil, false, err
	}

	slog.Info("conflicting memory updated", "uri", best.URI, "score", best.Score)
	return &Outcome{
		Action: ActionUpdated,
		Path:   best.URI,
		Scope:  b.Scope.Kind,
		Type:   best.Type,
		Score:  best.Score,
	}, true, nil
}

// append writes the note as a new bullet in the routed file, creating the
// file with canonical frontmatter when needed.
func (w *Writer) append(ctx context.Context, b *Backend, route Route, text string) (*Outcome, error) {
	path := b.Scope.Abs(route.File)
	var mf *memfile.File
	if memfile.Exists(path) {
		var err error
		mf, err = memfile.Load(path)
		if err != nil {
			return nil, errors.New(errors.ErrCodeFileIO, fmt.Sprintf("open %s", route.File), err)
		}
	} else {
		mf = memfile.Create(path, route.Kind, route.Importance, w.now())
	}

	mf.AppendBullet(route.Section, text)
	mf.Touch(w.now())
	if err := mf.Save(); err != nil {
		return nil, errors.New(errors.ErrCodeFileIO, fmt.Sprintf("write %s", route.File), err)
	}
	if _, err := b.Indexer.IndexFile(ctx, route.File); err != nil {
		return nil, err
	}

	slog.Info("memory appended", "uri", route.File, "kind", route.Kind, "scope", b.Scope.Kind)
	return &Outcome{
		Action: ActionAppended,
		Path:   route.File,
		Scope:  b.Scope.Kind,
		Type:   route.Kind,
	}, nil
}

// bestCandidate picks the strongest hit: highest score, most recently
// updated among ties.
func bestCandidate(cands []store.ScoredChunk) (store.ScoredChunk, bool) {
	if len(cands) == 0 {
		return store.ScoredChunk{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Score > best.Score || (c.Score == best.Score && c.UpdatedAt.After(best.UpdatedAt)) {
			best = c
		}
	}
	return best, true
}

// conflictTarget extracts the bullet text a replace should aim at. A chunk
// holding list items is identified by its first bullet; bare chunks match
// on their raw content.
func conflictTarget(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if t, ok := strings.CutPrefix(trimmed, "- "); ok {
			return strings.TrimSpace(t)
		}
	}
	return strings.TrimSpace(content)
}

var newlineRun = regexp.MustCompile(`\s*\n\s*`)

// flatten folds a multi-line note into one bullet-safe line.
func flatten(text string) string {
	return newlineRun.ReplaceAllString(text, " ")
}

// preview truncates text for log lines.
func preview(text string) string {
	const limit = 80
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
