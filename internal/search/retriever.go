package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openclaw/openclaw-memory/internal/chunk"
	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/embed"
	"github.com/openclaw/openclaw-memory/internal/errors"
	"github.com/openclaw/openclaw-memory/internal/store"
)

// Backend is one scope's index as the retriever sees it.
type Backend struct {
	Scope config.Scope
	Store *store.Store
}

// Retriever answers queries over one or both scopes.
type Retriever struct {
	global   *Backend
	project  *Backend // nil in global-only mode
	embedder embed.Embedder
	cfg      config.SearchConfig
	recorder Recorder
	now      func() time.Time
}

// New builds a retriever. project may be nil; project-scoped filters then
// return empty responses instead of failing.
func New(global, project *Backend, em embed.Embedder, cfg config.SearchConfig) *Retriever {
	return &Retriever{
		global:   global,
		project:  project,
		embedder: em,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetRecorder attaches a telemetry sink. Pass nil to detach.
func (r *Retriever) SetRecorder(rec Recorder) { r.recorder = rec }

// Search runs the staged pipeline for one query.
func (r *Retriever) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "query is empty", nil)
	}
	if err := validFilter(opts.Scope); err != nil {
		return nil, err
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = r.cfg.DefaultMaxTokens
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = r.cfg.DefaultTopK
	}

	start := r.now()
	resp, err := r.search(ctx, query, opts.Scope, maxTokens, topK)
	if err != nil {
		return nil, err
	}
	if r.recorder != nil {
		r.recorder.Record(query, string(resp.Stage), r.now().Sub(start), len(resp.Results))
	}
	return resp, nil
}

func (r *Retriever) search(ctx context.Context, query, filter string, maxTokens, topK int) (*Response, error) {
	if filter != FilterJournal {
		if resp, ok := r.fastPath(query, filter, maxTokens); ok {
			return resp, nil
		}
	}
	if filter == FilterJournal || wantsTimeline(query) {
		return r.timeline(ctx, maxTokens)
	}
	return r.hybrid(ctx, query, filter, maxTokens, topK)
}

func validFilter(filter string) error {
	switch filter {
	case "", FilterGlobal, FilterProject, FilterJournal, FilterAgent, FilterUser:
		return nil
	}
	return errors.New(errors.ErrCodeInvalidInput,
		fmt.Sprintf("unknown scope filter %q", filter), nil)
}

// fastPath answers queries that name a canonical file with that file's
// whole contents, index untouched. No access counters are bumped.
func (r *Retriever) fastPath(query, filter string, maxTokens int) (*Response, bool) {
	route, ok := matchFastRoute(query)
	if !ok || !filterAllows(filter, route.scope) {
		return nil, false
	}
	backend := r.backendFor(route.scope)
	if backend == nil {
		return nil, false
	}

	raw, err := os.ReadFile(backend.Scope.Abs(route.uri))
	if err != nil {
		// Nothing saved there yet; let the later stages try the index.
		return nil, false
	}

	content := string(raw)
	tokens := chunk.CountTokens(content)
	result := Result{
		URI:        route.uri,
		Content:    content,
		Salience:   1.0,
		Type:       typeForURI(route.uri),
		TokenCount: tokens,
		Scope:      route.scope,
	}
	return &Response{
		Results:         []Result{result},
		TotalTokens:     tokens,
		BudgetRemaining: maxTokens - tokens,
		Stage:           StageFast,
	}, true
}

// filterAllows reports whether a scope filter is compatible with results
// from the given scope.
func filterAllows(filter string, scope config.ScopeKind) bool {
	switch filter {
	case "":
		return true
	case FilterGlobal, FilterUser:
		return scope == config.ScopeGlobal
	case FilterProject, FilterAgent:
		return scope == config.ScopeProject
	}
	return false
}

func (r *Retriever) backendFor(kind config.ScopeKind) *Backend {
	if kind == config.ScopeGlobal {
		return r.global
	}
	return r.project
}

var journalName = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.md$`)

// timeline answers temporal queries from the journal day files, newest
// first, accumulating whole files under the budget.
func (r *Retriever) timeline(ctx context.Context, maxTokens int) (*Response, error) {
	resp := &Response{Stage: StageTimeline, BudgetRemaining: maxTokens}
	if r.project == nil {
		return resp, nil
	}

	entries, err := os.ReadDir(r.project.Scope.JournalDir())
	if os.IsNotExist(err) {
		return resp, nil
	}
	if err != nil {
		return nil, errors.StorageError("list journal", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && journalName.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	lambda := math.Ln2 / r.cfg.RecencyHalfLifeDays
	now := r.now()
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, errors.Cancelled(err)
		}
		uri := "journal/" + name
		raw, err := os.ReadFile(filepath.Join(r.project.Scope.JournalDir(), name))
		if err != nil {
			slog.Warn("unreadable journal file", slog.String("uri", uri), slog.String("error", err.Error()))
			continue
		}
		content := string(raw)
		tokens := chunk.CountTokens(content)
		if resp.TotalTokens+tokens > maxTokens {
			break
		}

		salience := 1.0
		if day, err := time.Parse("2006-01-02", strings.TrimSuffix(name, ".md")); err == nil {
			age := now.Sub(day).Hours() / 24
			if age > 0 {
				salience = math.Exp(-lambda * age)
			}
		}
		resp.Results = append(resp.Results, Result{
			URI:        uri,
			Content:    content,
			Salience:   salience,
			Type:       "journal",
			TokenCount: tokens,
			Scope:      config.ScopeProject,
		})
		resp.TotalTokens += tokens
		resp.BudgetRemaining = maxTokens - resp.TotalTokens
	}
	return resp, nil
}

// probe is one index query target: a backend and an optional top-level
// folder restriction.
type probe struct {
	backend   *Backend
	parentDir string
}

func (r *Retriever) probes(filter string) []probe {
	var out []probe
	add := func(b *Backend, dir string) {
		if b != nil {
			out = append(out, probe{backend: b, parentDir: dir})
		}
	}
	switch filter {
	case "":
		add(r.global, "")
		add(r.project, "")
	case FilterGlobal:
		add(r.global, "")
	case FilterProject:
		add(r.project, "")
	case FilterUser:
		add(r.global, "user")
	case FilterAgent:
		add(r.project, "agent")
	}
	return out
}

// hybrid is the full pipeline: embed, probe both indices at 2·topK, fuse
// by reciprocal rank, rescore by salience, budget, then bump access
// counters for what was returned. Embedding failure degrades to
// full-text only and marks the response partial.
func (r *Retriever) hybrid(ctx context.Context, query, filter string, maxTokens, topK int) (*Response, error) {
	probes := r.probes(filter)
	resp := &Response{Stage: StageHybrid, BudgetRemaining: maxTokens}
	if len(probes) == 0 {
		return resp, nil
	}

	fetch := 2 * topK

	var vec []float32
	qv, err := r.embedder.Embed(ctx, query)
	switch {
	case err == nil:
		vec = qv
	case ctx.Err() != nil:
		return nil, errors.Cancelled(ctx.Err())
	default:
		slog.Warn("query embedding failed, degrading to full-text",
			slog.String("error", err.Error()))
		resp.Partial = true
	}

	// The vector and full-text legs are independent reads; run them
	// concurrently across probes.
	vlists := make([][]rankedHit, len(probes))
	flists := make([][]rankedHit, len(probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range probes {
		if vec != nil {
			g.Go(func() error {
				hits, err := p.backend.Store.VectorSearch(gctx, vec, fetch, p.parentDir)
				if err != nil {
					return err
				}
				vlists[i] = tagHits(hits, p.backend.Scope.Kind)
				return nil
			})
		}
		g.Go(func() error {
			hits, err := p.backend.Store.FTSSearch(gctx, query, fetch, p.parentDir)
			if err != nil {
				return err
			}
			flists[i] = tagHits(hits, p.backend.Scope.Kind)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cands := fuse(mergeScopes(vlists, fetch), mergeScopes(flists, fetch))
	if len(cands) == 0 {
		return resp, nil
	}

	ranked := rankBySalience(cands, r.cfg.RecencyHalfLifeDays, r.now())

	accepted := make(map[config.ScopeKind][]string)
	for _, s := range ranked {
		if resp.TotalTokens+s.TokenCount > maxTokens {
			break
		}
		resp.Results = append(resp.Results, Result{
			ID:            s.ID,
			URI:           s.URI,
			Content:       s.Content,
			Salience:      s.salience,
			Type:          s.Type,
			Section:       s.Section,
			Reinforcement: s.Reinforcement,
			TokenCount:    s.TokenCount,
			Scope:         s.scope,
		})
		resp.TotalTokens += s.TokenCount
		resp.BudgetRemaining = maxTokens - resp.TotalTokens
		accepted[s.scope] = append(accepted[s.scope], s.ID)
	}

	// Access bumps are telemetry, not truth: a failure here must not fail
	// the query.
	for kind, ids := range accepted {
		if b := r.backendFor(kind); b != nil {
			if err := b.Store.IncrementAccessCounts(ctx, ids); err != nil {
				slog.Warn("access count bump failed",
					slog.String("scope", string(kind)),
					slog.String("error", err.Error()))
			}
		}
	}
	return resp, nil
}

// typeForURI mirrors the indexer's kind inference for fast-path results
// that never touch the index.
func typeForURI(uri string) string {
	switch uri {
	case config.PreferencesURI:
		return "preference"
	case config.InstructionsURI:
		return "instruction"
	case config.EntitiesURI:
		return "entity"
	case config.DecisionsURI:
		return "decision"
	case config.PatternsURI:
		return "pattern"
	}
	return ""
}
