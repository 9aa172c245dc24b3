package search

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw-memory/internal/chunk"
)

func cand(id string, sem float64, reinforcement, access int, updated time.Time) *candidate {
	return &candidate{
		Chunk: chunk.Chunk{
			ID:            id,
			Reinforcement: reinforcement,
			AccessCount:   access,
			UpdatedAt:     updated,
			TokenCount:    10,
		},
		sem: sem,
	}
}

func TestSalienceFreshMaxCandidate(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	// The set's maximum candidate, updated now: every component but the
	// counter normalizations is at its ceiling.
	c := cand("a", 1.0, 5, 9, now)
	ranked := rankBySalience([]*candidate{c}, 30, now)
	require.Len(t, ranked, 1)

	want := 0.50*1.0 +
		0.20*(math.Log(6)/math.Log(7)) +
		0.20*1.0 +
		0.10*(math.Log(10)/math.Log(11))
	assert.InDelta(t, want, ranked[0].salience, 1e-9)
}

func TestSalienceRecencyDecaysByHalfLife(t *testing.T) {
	now := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	fresh := cand("fresh", 0, 0, 0, now)
	stale := cand("stale", 0, 0, 0, now.AddDate(0, 0, -30))
	ranked := rankBySalience([]*candidate{fresh, stale}, 30, now)

	// Both have zero sem and counters; only recency differs, and one
	// half-life halves the recency contribution.
	require.Equal(t, "fresh", ranked[0].ID)
	assert.InDelta(t, 0.20, ranked[0].salience, 1e-9)
	assert.InDelta(t, 0.10, ranked[1].salience, 1e-9)
}

func TestSalienceReinforcementNormalizedToSet(t *testing.T) {
	now := time.Now().UTC()
	strong := cand("strong", 0.5, 8, 0, now)
	weak := cand("weak", 0.5, 1, 0, now)

	ranked := rankBySalience([]*candidate{strong, weak}, 30, now)
	require.Equal(t, "strong", ranked[0].ID)

	// R_max = 8, so strong scores log(9)/log(10) on that component.
	gap := ranked[0].salience - ranked[1].salience
	want := 0.20 * (math.Log(9) - math.Log(2)) / math.Log(10)
	assert.InDelta(t, want, gap, 1e-9)
}

func TestSalienceSemanticDominates(t *testing.T) {
	now := time.Now().UTC()
	similar := cand("similar", 0.95, 0, 0, now.AddDate(0, 0, -10))
	popular := cand("popular", 0.30, 5, 20, now)

	ranked := rankBySalience([]*candidate{similar, popular}, 30, now)
	assert.Equal(t, "similar", ranked[0].ID)
}

func TestSalienceTiesBreakByID(t *testing.T) {
	now := time.Now().UTC()
	a := cand("aa", 0.5, 0, 0, now)
	b := cand("bb", 0.5, 0, 0, now)

	ranked := rankBySalience([]*candidate{b, a}, 30, now)
	assert.Equal(t, "aa", ranked[0].ID)
	assert.Equal(t, "bb", ranked[1].ID)
}

func TestSalienceFutureTimestampClamped(t *testing.T) {
	now := time.Now().UTC()
	// A file hand-edited with tomorrow's date must not score above 1.
	c := cand("a", 0, 0, 0, now.AddDate(0, 0, 1))
	ranked := rankBySalience([]*candidate{c}, 30, now)
	assert.InDelta(t, 0.20, ranked[0].salience, 1e-9)
}
