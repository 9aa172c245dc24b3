package search

import (
	"math"
	"sort"
	"time"
)

// Salience weights. Semantic similarity dominates; reinforcement and
// recency pull established and fresh memories up; access frequency is a
// weak popularity signal.
const (
	weightSemantic  = 0.50
	weightReinforce = 0.20
	weightRecency   = 0.20
	weightAccess    = 0.10
)

// salienceScorer rescores fused candidates. Counter normalization is
// relative to the result set: the strongest candidate anchors the scale,
// so scores stay comparable within one response without a corpus scan.
type salienceScorer struct {
	logRMax float64 // log(R_max + 2)
	logAMax float64 // log(A_max + 2)
	lambda  float64 // ln 2 / half-life
	now     time.Time
}

func newSalienceScorer(cands []*candidate, halfLifeDays float64, now time.Time) salienceScorer {
	rMax, aMax := 0, 0
	for _, c := range cands {
		if c.Reinforcement > rMax {
			rMax = c.Reinforcement
		}
		if c.AccessCount > aMax {
			aMax = c.AccessCount
		}
	}
	return salienceScorer{
		logRMax: math.Log(float64(rMax) + 2),
		logAMax: math.Log(float64(aMax) + 2),
		lambda:  math.Ln2 / halfLifeDays,
		now:     now,
	}
}

func (s salienceScorer) score(c *candidate) float64 {
	reinforce := math.Log(float64(c.Reinforcement)+1) / s.logRMax
	access := math.Log(float64(c.AccessCount)+1) / s.logAMax

	days := s.now.Sub(c.UpdatedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	recency := math.Exp(-s.lambda * days)

	return weightSemantic*c.sem +
		weightReinforce*reinforce +
		weightRecency*recency +
		weightAccess*access
}

// rankBySalience scores every candidate and orders them best first, ties
// broken by chunk ID so equal scores stay deterministic.
func rankBySalience(cands []*candidate, halfLifeDays float64, now time.Time) []scored {
	scorer := newSalienceScorer(cands, halfLifeDays, now)
	out := make([]scored, len(cands))
	for i, c := range cands {
		out[i] = scored{candidate: c, salience: scorer.score(c)}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].salience != out[j].salience {
			return out[i].salience > out[j].salience
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type scored struct {
	*candidate
	salience float64
}
