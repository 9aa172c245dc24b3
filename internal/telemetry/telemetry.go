// Package telemetry keeps local per-scope query metrics: which retrieval
// stage answered, how fast, and how often queries repeat. Everything stays
// in the scope's state.json; nothing is ever transmitted.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// defaultFlushInterval is how often dirty metrics reach disk.
	defaultFlushInterval = 60 * time.Second

	// recentQueriesCapacity bounds the repeat-detection LRU.
	recentQueriesCapacity = 500
)

// Latency histogram bucket labels, by upper bound.
const (
	BucketUnder10ms  = "lt10ms"
	BucketUnder50ms  = "lt50ms"
	BucketUnder100ms = "lt100ms"
	BucketUnder500ms = "lt500ms"
	BucketSlow       = "gte500ms"
)

// bucketFor maps a query duration to its histogram bucket.
func bucketFor(d time.Duration) string {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketUnder10ms
	case ms < 50:
		return BucketUnder50ms
	case ms < 100:
		return BucketUnder100ms
	case ms < 500:
		return BucketUnder500ms
	}
	return BucketSlow
}

// State is the persisted shape of the metrics, one object inside the
// scope's state.json.
type State struct {
	TotalQueries int64            `json:"total_queries"`
	ZeroResults  int64            `json:"zero_results"`
	RepeatCount  int64            `json:"repeat_count"`
	StageCounts  map[string]int64 `json:"stage_counts"`
	Latency      map[string]int64 `json:"latency_buckets"`
	Since        time.Time        `json:"since"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Metrics collects query telemetry and flushes it to a state file. Safe
// for concurrent use. Implements the retriever's Recorder interface.
type Metrics struct {
	path string

	mu     sync.Mutex
	state  State
	recent *lru.Cache[string, struct{}]
	dirty  bool
	closed bool

	ticker *time.Ticker
	stop   chan struct{}
}

// Open loads the state file if present and starts the background flush.
// A missing or corrupt file starts the counters fresh.
func Open(path string) (*Metrics, error) {
	recent, err := lru.New[string, struct{}](recentQueriesCapacity)
	if err != nil {
		return nil, err
	}

	m := &Metrics{
		path:   path,
		recent: recent,
		stop:   make(chan struct{}),
		state: State{
			StageCounts: make(map[string]int64),
			Latency:     make(map[string]int64),
			Since:       time.Now().UTC(),
		},
	}
	m.load()

	m.ticker = time.NewTicker(defaultFlushInterval)
	go m.flushLoop()
	return m, nil
}

func (m *Metrics) load() {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return
	}
	var st State
	if json.Unmarshal(raw, &st) != nil {
		return
	}
	if st.StageCounts == nil {
		st.StageCounts = make(map[string]int64)
	}
	if st.Latency == nil {
		st.Latency = make(map[string]int64)
	}
	if st.Since.IsZero() {
		st.Since = time.Now().UTC()
	}
	m.state = st
}

func (m *Metrics) flushLoop() {
	for {
		select {
		case <-m.ticker.C:
			_ = m.Flush()
		case <-m.stop:
			return
		}
	}
}

// Record counts one query. Repeats are detected by a normalized hash over
// the query text held in a bounded LRU, so the raw text never persists.
func (m *Metrics) Record(query, stage string, duration time.Duration, results int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.state.TotalQueries++
	m.state.StageCounts[stage]++
	m.state.Latency[bucketFor(duration)]++
	if results == 0 {
		m.state.ZeroResults++
	}

	key := hashQuery(query)
	if _, seen := m.recent.Get(key); seen {
		m.state.RepeatCount++
	}
	m.recent.Add(key, struct{}{})

	m.dirty = true
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns a copy of the current counters.
func (m *Metrics) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.state
	out.StageCounts = make(map[string]int64, len(m.state.StageCounts))
	for k, v := range m.state.StageCounts {
		out.StageCounts[k] = v
	}
	out.Latency = make(map[string]int64, len(m.state.Latency))
	for k, v := range m.state.Latency {
		out.Latency[k] = v
	}
	return out
}

// Flush writes the counters to the state file when they changed since the
// last flush. The write goes through a temp file and rename so a crash
// never leaves a torn state file.
func (m *Metrics) Flush() error {
	m.mu.Lock()
	if !m.dirty {
		m.mu.Unlock()
		return nil
	}
	m.state.UpdatedAt = time.Now().UTC()
	raw, err := json.MarshalIndent(m.state, "", "  ")
	m.dirty = false
	m.mu.Unlock()
	if err != nil {
		return err
	}

	tmp := m.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}

// Close stops the flush loop and writes any pending counters. Closing
// twice is a no-op.
func (m *Metrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.ticker.Stop()
	close(m.stop)
	return m.Flush()
}
