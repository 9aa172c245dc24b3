// Package memory assembles the engine: both scope stores, the shared
// embedder, the write and retrieval pipelines, the primer builder, and
// the file watchers, behind one Service the MCP layer and the CLI call.
//
// The Service starts lazily: the first verb opens the stores, reconciles
// the indices against the Markdown corpus, and spawns the watchers. A
// changed embedder is detected from the index metadata and triggers a
// full rebuild, since stored vectors from another model are garbage.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/openclaw/openclaw-memory/internal/async"
	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/embed"
	"github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/index"
	"github.com/openclaw/openclaw-memory/internal/primer"
	"github.com/openclaw/openclaw-memory/internal/privacy"
	"github.com/openclaw/openclaw-memory/internal/scanner"
	"github.com/openclaw/openclaw-memory/internal/search"
	"github.com/openclaw/openclaw-memory/internal/store"
	"github.com/openclaw/openclaw-memory/internal/telemetry"
	"github.com/openclaw/openclaw-memory/internal/watcher"
	"github.com/openclaw/openclaw-memory/internal/writer"
)

// scopeSet is one scope's opened machinery.
type scopeSet struct {
	scope   config.Scope
	store   *store.Store
	scanner *scanner.Scanner
	indexer *index.Indexer
}

// Service is the engine facade. All verb methods are safe for concurrent
// use; per-scope write serialization happens inside the store.
type Service struct {
	cfg *config.Config

	mu      sync.Mutex
	started bool
	closed  bool

	embedder  embed.Embedder
	global    *scopeSet
	project   *scopeSet // nil in global-only mode
	writer    *writer.Writer
	retriever *search.Retriever
	builder   *primer.Builder
	metrics   *telemetry.Metrics
	watchers  []*watcher.Watcher
}

// New builds an unstarted Service. No I/O happens until the first verb.
func New(cfg *config.Config) *Service {
	return &Service{cfg: cfg}
}

// Start opens everything eagerly. Verbs call it implicitly; the CLI calls
// it up front so startup failures surface before the transport binds.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Service) ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) error {
	if s.closed {
		return errors.StorageError("service is closed", nil)
	}
	if s.started {
		return nil
	}

	em, err := embed.New(ctx, s.cfg)
	if err != nil {
		return err
	}
	s.embedder = em

	global, err := s.openScope(ctx, s.cfg.GlobalScope())
	if err != nil {
		s.teardown()
		return err
	}
	s.global = global

	if projScope, ok := s.cfg.ProjectScope(); ok {
		proj, err := s.openScope(ctx, projScope)
		if err != nil {
			s.teardown()
			return err
		}
		s.project = proj
	}

	patterns := s.cfg.Privacy.Patterns
	if len(patterns) == 0 {
		patterns = config.DefaultPrivacyPatterns()
	}
	filter, err := privacy.New(s.cfg.Privacy.Enabled, patterns)
	if err != nil {
		s.teardown()
		return errors.ConfigError("compile privacy patterns", err)
	}

	s.writer = writer.New(s.writerBackend(s.global), s.writerBackend(s.project), em, filter)
	s.writer.SetThresholds(s.cfg.Writer.ReinforceThreshold, s.cfg.Writer.ConflictThreshold)

	s.retriever = search.New(s.searchBackend(s.global), s.searchBackend(s.project), em, s.cfg.Search)

	// Telemetry is best effort; the engine works fine without it.
	statePath := s.global.scope.StatePath()
	if s.project != nil {
		statePath = s.project.scope.StatePath()
	}
	if metrics, err := telemetry.Open(statePath); err == nil {
		s.metrics = metrics
		s.retriever.SetRecorder(metrics)
	} else {
		slog.Warn("query telemetry disabled", slog.String("error", err.Error()))
	}

	var projScopePtr *config.Scope
	var projIndexer primer.Reindexer
	if s.project != nil {
		sc := s.project.scope
		projScopePtr = &sc
		projIndexer = s.project.indexer
	}
	s.builder = primer.New(s.global.scope, projScopePtr,
		s.cfg.Project.Name, s.cfg.Project.Description, s.writer, projIndexer)

	for _, set := range s.scopes() {
		w, err := watcher.New(set.scope, set.scanner, set.indexer, 0)
		if err != nil {
			slog.Warn("watcher unavailable",
				slog.String("scope", set.scope.String()),
				slog.String("error", err.Error()))
			continue
		}
		// The watcher outlives the verb that triggered the start.
		if err := w.Start(context.Background()); err != nil {
			slog.Warn("watcher failed to start",
				slog.String("scope", set.scope.String()),
				slog.String("error", err.Error()))
			continue
		}
		s.watchers = append(s.watchers, w)
	}

	s.started = true
	slog.Info("memory service started",
		slog.String("embedder", s.embedder.ModelName()),
		slog.Int("dimensions", s.embedder.Dimensions()),
		slog.Bool("project", s.project != nil))
	return nil
}

// openScope opens one scope's store and reconciles its index, rebuilding
// from scratch when the recorded embedder disagrees with the active one.
func (s *Service) openScope(ctx context.Context, scope config.Scope) (*scopeSet, error) {
	if err := scope.EnsureLayout(); err != nil {
		return nil, errors.StorageError(fmt.Sprintf("create %s scope layout", scope.Kind), err)
	}

	st, err := store.Open(ctx, scope, s.embedder.Dimensions())
	if err != nil {
		return nil, err
	}

	if err := s.syncEmbedderMeta(ctx, st, scope); err != nil {
		_ = st.Close()
		return nil, err
	}

	sc := scanner.New(scope.Root)
	ix := index.New(scope, st, s.embedder, sc)
	if err := ix.IndexAll(ctx, nil); err != nil {
		_ = st.Close()
		return nil, err
	}

	return &scopeSet{scope: scope, store: st, scanner: sc, indexer: ix}, nil
}

func (s *Service) syncEmbedderMeta(ctx context.Context, st *store.Store, scope config.Scope) error {
	model, err := st.Meta(ctx, store.MetaEmbedderModel)
	if err != nil {
		return err
	}
	dims, err := st.Meta(ctx, store.MetaEmbedderDimensions)
	if err != nil {
		return err
	}

	wantModel := s.embedder.ModelName()
	wantDims := strconv.Itoa(s.embedder.Dimensions())
	if model != "" && (model != wantModel || dims != wantDims) {
		slog.Warn("embedder changed, rebuilding index",
			slog.String("scope", scope.String()),
			slog.String("from", model+"/"+dims),
			slog.String("to", wantModel+"/"+wantDims))
		if err := st.Reset(ctx); err != nil {
			return err
		}
	}
	if err := st.SetMeta(ctx, store.MetaEmbedderModel, wantModel); err != nil {
		return err
	}
	return st.SetMeta(ctx, store.MetaEmbedderDimensions, wantDims)
}

func (s *Service) writerBackend(set *scopeSet) *writer.Backend {
	if set == nil {
		return nil
	}
	return &writer.Backend{Scope: set.scope, Store: set.store, Indexer: set.indexer}
}

func (s *Service) searchBackend(set *scopeSet) *search.Backend {
	if set == nil {
		return nil
	}
	return &search.Backend{Scope: set.scope, Store: set.store}
}

func (s *Service) scopes() []*scopeSet {
	out := []*scopeSet{s.global}
	if s.project != nil {
		out = append(out, s.project)
	}
	return out
}

// Primer renders the cold-start context blob.
func (s *Service) Primer(ctx context.Context) (string, error) {
	if err := s.ensure(ctx); err != nil {
		return "", err
	}
	return s.builder.Build(ctx)
}

// Search answers one query through the staged retrieval pipeline.
func (s *Service) Search(ctx context.Context, query string, opts search.Options) (*search.Response, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	return s.retriever.Search(ctx, query, opts)
}

// Log writes one note through the smart write pipeline.
func (s *Service) Log(ctx context.Context, content, typeHint string) (*writer.Outcome, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	return s.writer.Write(ctx, content, typeHint)
}

// SessionEnd records a session summary and refreshes the derived files.
// Returns the journal URI the summary landed in.
func (s *Service) SessionEnd(ctx context.Context, summary primer.Summary) (string, error) {
	if err := s.ensure(ctx); err != nil {
		return "", err
	}
	return s.builder.WriteSession(ctx, summary)
}

// UpdateTasks rewrites the task list and refreshes the primer.
func (s *Service) UpdateTasks(ctx context.Context, tasks []primer.Task) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}
	return s.builder.WriteTasks(ctx, tasks)
}

// Observe records one structured coding action in today's journal.
func (s *Service) Observe(ctx context.Context, obs primer.Observation) (*primer.ObserveOutcome, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	return s.builder.Observe(ctx, obs)
}

// Read returns one memory file's full content, frontmatter included.
// The path is scope-relative; project files win over global ones when
// both exist.
func (s *Service) Read(ctx context.Context, relPath string) (string, error) {
	if err := s.ensure(ctx); err != nil {
		return "", err
	}

	cleaned := path.Clean(strings.TrimSpace(relPath))
	if cleaned == "." || cleaned == "" || path.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("invalid memory path %q", relPath), nil)
	}

	var scopes []config.Scope
	if s.project != nil {
		scopes = append(scopes, s.project.scope)
	}
	scopes = append(scopes, s.global.scope)

	for _, scope := range scopes {
		raw, err := os.ReadFile(scope.Abs(cleaned))
		if err == nil {
			return string(raw), nil
		}
		if !os.IsNotExist(err) {
			return "", errors.StorageError(fmt.Sprintf("read %s", cleaned), err)
		}
	}
	return "", errors.NotFound(cleaned)
}

// ScopeStats pairs a scope with its index summary.
type ScopeStats struct {
	Scope config.Scope
	Stats *store.Stats
}

// Stats summarizes every open scope's index.
func (s *Service) Stats(ctx context.Context) ([]ScopeStats, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}

	var out []ScopeStats
	for _, set := range s.scopes() {
		st, err := set.store.Stats(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, ScopeStats{Scope: set.scope, Stats: st})
	}
	return out, nil
}

// ScopeStatus is one scope's line in the status report.
type ScopeStatus struct {
	Kind   config.ScopeKind
	Root   string
	Files  int
	Chunks int
	Tokens int
}

// Status is the service health summary for the status command and tool.
type Status struct {
	EmbedderModel     string
	EmbedderDims      int
	EmbedderAvailable bool
	Watching          bool
	Scopes            []ScopeStatus
}

// Status reports the embedder, both scopes, and whether watchers run.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}

	out := &Status{
		EmbedderModel:     s.embedder.ModelName(),
		EmbedderDims:      s.embedder.Dimensions(),
		EmbedderAvailable: s.embedder.Available(ctx),
		Watching:          len(s.watchers) > 0,
	}
	for _, st := range stats {
		out.Scopes = append(out.Scopes, ScopeStatus{
			Kind:   st.Scope.Kind,
			Root:   st.Scope.Root,
			Files:  st.Stats.TotalFiles,
			Chunks: st.Stats.TotalChunks,
			Tokens: st.Stats.TotalTokens,
		})
	}
	return out, nil
}

// Telemetry returns a copy of the query telemetry state. ok is false when
// telemetry is disabled or the service has not started.
func (s *Service) Telemetry() (telemetry.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics == nil {
		return telemetry.State{}, false
	}
	return s.metrics.Snapshot(), true
}

// Reindex reconciles every scope against its corpus. force drops the
// indices first, re-embedding everything.
func (s *Service) Reindex(ctx context.Context, progress *async.IndexProgress, force bool) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}

	for _, set := range s.scopes() {
		if force {
			if err := set.store.Reset(ctx); err != nil {
				return err
			}
			if err := s.syncEmbedderMeta(ctx, set.store, set.scope); err != nil {
				return err
			}
		}
		if err := set.indexer.IndexAll(ctx, progress); err != nil {
			progress.SetError(err.Error())
			return err
		}
	}
	progress.SetReady()
	return nil
}

// teardown releases whatever startLocked managed to open, in reverse
// order. Callers hold s.mu.
func (s *Service) teardown() {
	for _, w := range s.watchers {
		w.Stop()
	}
	s.watchers = nil
	if s.metrics != nil {
		_ = s.metrics.Close()
		s.metrics = nil
	}
	for _, set := range []*scopeSet{s.project, s.global} {
		if set != nil {
			if err := set.store.Close(); err != nil {
				slog.Warn("store close failed",
					slog.String("scope", set.scope.String()),
					slog.String("error", err.Error()))
			}
		}
	}
	s.project = nil
	s.global = nil
	if s.embedder != nil {
		_ = s.embedder.Close()
		s.embedder = nil
	}
}

// Close stops the watchers, flushes telemetry, persists both indices, and
// releases the scope locks. Closing twice is a no-op.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !s.started {
		return nil
	}
	s.teardown()
	s.started = false
	slog.Info("memory service stopped")
	return nil
}
