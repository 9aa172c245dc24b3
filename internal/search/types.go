// Package search answers natural-language queries over the memory corpus.
//
// Three stages, cheapest first. The fast path maps queries that name a
// canonical file ("my preferences", "决策") to that file's full contents,
// skipping the index entirely. The timeline path answers temporal queries
// from the journal day files, newest first. Everything else runs the
// hybrid stage: vector and full-text search fused by reciprocal rank,
// rescored by salience, and cut to the caller's token budget.
package search

import (
	"time"

	"github.com/openclaw/openclaw-memory/internal/config"
)

// Stage names which path answered a query.
type Stage string

const (
	StageFast     Stage = "fast"
	StageTimeline Stage = "timeline"
	StageHybrid   Stage = "hybrid"
)

// Scope filter values accepted by Options.Scope. Empty means both scopes.
const (
	FilterGlobal  = "global"
	FilterProject = "project"
	FilterJournal = "journal"
	FilterAgent   = "agent"
	FilterUser    = "user"
)

// Options tunes one query. Zero values fall back to the configured
// defaults.
type Options struct {
	// Scope restricts the query to one scope or one top-level folder.
	Scope string

	// MaxTokens is the result budget. 0 uses search.default_max_tokens.
	MaxTokens int

	// TopK bounds each index probe. 0 uses search.default_top_k.
	TopK int
}

// Result is one returned snippet.
type Result struct {
	ID            string
	URI           string
	Content       string
	Salience      float64
	Type          string
	Section       string
	Reinforcement int
	TokenCount    int
	Scope         config.ScopeKind
}

// Response is a ranked, budgeted answer plus budget telemetry.
type Response struct {
	Results         []Result
	TotalTokens     int
	BudgetRemaining int

	// Stage is the path that produced the results.
	Stage Stage

	// Partial is true when the hybrid stage ran without its vector half
	// because the embedder was unavailable.
	Partial bool
}

// Recorder receives per-query telemetry. Implementations must be safe for
// concurrent use; a nil Recorder disables recording.
type Recorder interface {
	Record(query, stage string, duration time.Duration, results int)
}
