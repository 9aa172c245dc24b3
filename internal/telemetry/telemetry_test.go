package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*Metrics, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	m, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, path
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{3 * time.Millisecond, BucketUnder10ms},
		{10 * time.Millisecond, BucketUnder50ms},
		{80 * time.Millisecond, BucketUnder100ms},
		{200 * time.Millisecond, BucketUnder500ms},
		{2 * time.Second, BucketSlow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, bucketFor(tt.d))
	}
}

func TestRecordCountsStagesAndLatency(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.Record("postgres tuning", "hybrid", 20*time.Millisecond, 3)
	m.Record("my preferences", "fast", 2*time.Millisecond, 1)
	m.Record("nothing matches this", "hybrid", 30*time.Millisecond, 0)

	st := m.Snapshot()
	assert.Equal(t, int64(3), st.TotalQueries)
	assert.Equal(t, int64(1), st.ZeroResults)
	assert.Equal(t, int64(2), st.StageCounts["hybrid"])
	assert.Equal(t, int64(1), st.StageCounts["fast"])
	assert.Equal(t, int64(2), st.Latency[BucketUnder50ms])
	assert.Equal(t, int64(1), st.Latency[BucketUnder10ms])
}

func TestRecordDetectsRepeats(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.Record("postgres tuning", "hybrid", time.Millisecond, 1)
	m.Record("  Postgres Tuning ", "hybrid", time.Millisecond, 1)
	m.Record("different query", "hybrid", time.Millisecond, 1)

	st := m.Snapshot()
	// Normalization makes the second query an exact repeat of the first.
	assert.Equal(t, int64(1), st.RepeatCount)
}

func TestFlushWritesStateFile(t *testing.T) {
	m, path := newTestMetrics(t)
	m.Record("postgres", "hybrid", time.Millisecond, 1)
	require.NoError(t, m.Flush())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var st State
	require.NoError(t, json.Unmarshal(raw, &st))
	assert.Equal(t, int64(1), st.TotalQueries)
	assert.False(t, st.UpdatedAt.IsZero())
}

func TestFlushSkipsWhenClean(t *testing.T) {
	m, path := newTestMetrics(t)
	require.NoError(t, m.Flush())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReopenRestoresCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	m, err := Open(path)
	require.NoError(t, err)
	m.Record("postgres", "hybrid", time.Millisecond, 1)
	require.NoError(t, m.Close())

	m2, err := Open(path)
	require.NoError(t, err)
	defer m2.Close()

	m2.Record("redis", "fast", time.Millisecond, 1)
	st := m2.Snapshot()
	assert.Equal(t, int64(2), st.TotalQueries)
	assert.Equal(t, int64(1), st.StageCounts["hybrid"])
	assert.Equal(t, int64(1), st.StageCounts["fast"])
}

func TestCorruptStateFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	m, err := Open(path)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, int64(0), m.Snapshot().TotalQueries)
}

func TestCloseTwice(t *testing.T) {
	m, _ := newTestMetrics(t)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	// Records after close are dropped.
	m.Record("postgres", "hybrid", time.Millisecond, 1)
	assert.Equal(t, int64(0), m.Snapshot().TotalQueries)
}
