// Package async carries the background side of indexing: a thread-safe
// progress tracker the reindex pipeline feeds, and a runner that drives
// one reindex per scope without blocking the caller.
package async

import (
	"sync"
	"time"
)

// IndexingStatus is the overall state of a reindex.
type IndexingStatus string

const (
	// StatusIndexing means a reindex is in progress.
	StatusIndexing IndexingStatus = "indexing"
	// StatusReady means the index is complete and searchable.
	StatusReady IndexingStatus = "ready"
	// StatusError means the reindex failed.
	StatusError IndexingStatus = "error"
)

// IndexingStage names the pipeline phase a reindex is in.
type IndexingStage string

const (
	// StageScanning is corpus discovery.
	StageScanning IndexingStage = "scanning"
	// StageChunking is Markdown chunking.
	StageChunking IndexingStage = "chunking"
	// StageEmbedding is the corpus-wide embedding batch.
	StageEmbedding IndexingStage = "embedding"
	// StageIndexing is the per-file store reconcile.
	StageIndexing IndexingStage = "indexing"
)

// IndexProgressSnapshot is an immutable view of reindex progress, shaped
// for the status command and the MCP status payload.
type IndexProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage"`
	FilesTotal     int     `json:"files_total"`
	FilesProcessed int     `json:"files_processed"`
	ChunksTotal    int     `json:"chunks_total"`
	ChunksIndexed  int     `json:"chunks_indexed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// IndexProgress tracks one reindex. All methods are safe on a nil
// receiver so callers that do not care about progress can pass nil.
type IndexProgress struct {
	mu sync.RWMutex

	status         IndexingStatus
	stage          IndexingStage
	filesTotal     int
	filesProcessed int
	chunksTotal    int
	chunksIndexed  int
	startTime      time.Time
	errorMessage   string
}

// NewIndexProgress returns a tracker in the scanning stage.
func NewIndexProgress() *IndexProgress {
	return &IndexProgress{
		status:    StatusIndexing,
		stage:     StageScanning,
		startTime: time.Now(),
	}
}

// SetStage moves to the next pipeline stage. total is the stage's file
// count; the per-stage processed counter restarts from zero.
func (p *IndexProgress) SetStage(stage IndexingStage, total int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.filesTotal = total
	p.filesProcessed = 0
}

// UpdateFiles records how many of the stage's files are done.
func (p *IndexProgress) UpdateFiles(processed int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesProcessed = processed
}

// SetChunksTotal records the corpus chunk count once chunking finishes.
func (p *IndexProgress) SetChunksTotal(total int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.chunksTotal = total
}

// UpdateChunks records how many chunks have been reconciled.
func (p *IndexProgress) UpdateChunks(indexed int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.chunksIndexed = indexed
}

// SetError marks the reindex failed.
func (p *IndexProgress) SetError(message string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetReady marks the reindex complete.
func (p *IndexProgress) SetReady() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
}

// IsIndexing reports whether the reindex is still running.
func (p *IndexProgress) IsIndexing() bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusIndexing
}

// Snapshot returns a copy of the current state.
func (p *IndexProgress) Snapshot() IndexProgressSnapshot {
	if p == nil {
		return IndexProgressSnapshot{Status: string(StatusReady)}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	var pct float64
	if p.filesTotal > 0 {
		pct = float64(p.filesProcessed) / float64(p.filesTotal) * 100.0
	}

	return IndexProgressSnapshot{
		Status:         string(p.status),
		Stage:          string(p.stage),
		FilesTotal:     p.filesTotal,
		FilesProcessed: p.filesProcessed,
		ChunksTotal:    p.chunksTotal,
		ChunksIndexed:  p.chunksIndexed,
		ProgressPct:    pct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
