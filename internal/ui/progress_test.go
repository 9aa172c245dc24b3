package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw-memory/internal/async"
)

func TestProgressRendererLineModePrintsStageChanges(t *testing.T) {
	var buf bytes.Buffer
	r := NewProgressRenderer(&buf)
	require.False(t, r.tty)

	r.Render(async.IndexProgressSnapshot{Status: "indexing", Stage: "scanning", FilesTotal: 4})
	r.Render(async.IndexProgressSnapshot{Status: "indexing", Stage: "scanning", FilesTotal: 4, FilesProcessed: 2})
	r.Render(async.IndexProgressSnapshot{Status: "indexing", Stage: "embedding", FilesTotal: 4})

	out := buf.String()
	assert.Contains(t, out, "scanning: 4 files")
	assert.Contains(t, out, "embedding: 4 files")
	// Repeated snapshots within a stage stay quiet.
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestProgressRendererReportsFailure(t *testing.T) {
	var buf bytes.Buffer
	r := NewProgressRenderer(&buf)

	r.Render(async.IndexProgressSnapshot{Status: "error", ErrorMessage: "disk full"})

	assert.Contains(t, buf.String(), "indexing failed:")
	assert.Contains(t, buf.String(), "disk full")
}

func TestProgressRendererDonePrintsSummary(t *testing.T) {
	var buf bytes.Buffer
	r := NewProgressRenderer(&buf)

	r.Done(12, 48, 2350*time.Millisecond)

	assert.Contains(t, buf.String(), "Indexed 12 files (48 chunks) in 2.4s")
}

func TestRenderBarClampsRange(t *testing.T) {
	assert.Equal(t, 10, len([]rune(renderBar(-5, 10))))
	assert.Equal(t, 10, len([]rune(renderBar(250, 10))))
	assert.NotContains(t, renderBar(0, 10), "█")
	assert.NotContains(t, renderBar(100, 10), "░")
}
