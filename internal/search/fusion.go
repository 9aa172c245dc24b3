package search

import (
	"sort"

	"github.com/openclaw/openclaw-memory/internal/chunk"
	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/store"
)

// rrfK is the reciprocal-rank smoothing constant. 60 is the standard
// value; at that size the fusion cares about order, not score magnitude.
const rrfK = 60

// rankedHit is one entry of a ranked list entering the fusion, tagged
// with the scope its chunk came from.
type rankedHit struct {
	store.ScoredChunk
	scope config.ScopeKind
}

// candidate is one chunk surviving the RRF merge, carrying everything the
// salience scorer needs.
type candidate struct {
	chunk.Chunk
	scope config.ScopeKind

	rrf float64
	// sem is the cosine similarity from the vector list, 0 when the chunk
	// only surfaced through full-text search.
	sem float64
}

// fuse merges the vector and full-text lists by reciprocal rank: each
// chunk scores Σ 1/(k + rank + 1) over the lists it appears in, rank
// zero-based. The vector list also contributes its cosine similarity,
// kept apart from the RRF score for the salience stage. Output is
// ordered by descending RRF score, ties by chunk ID.
func fuse(vector, fulltext []rankedHit) []*candidate {
	byID := make(map[string]*candidate)

	add := func(list []rankedHit, isVector bool) {
		for rank, hit := range list {
			c, ok := byID[hit.ID]
			if !ok {
				c = &candidate{Chunk: hit.Chunk, scope: hit.scope}
				byID[hit.ID] = c
			}
			c.rrf += 1.0 / float64(rrfK+rank+1)
			if isVector && hit.Score > c.sem {
				c.sem = hit.Score
			}
		}
	}
	add(vector, true)
	add(fulltext, false)

	out := make([]*candidate, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].rrf != out[j].rrf {
			return out[i].rrf > out[j].rrf
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// mergeScopes folds per-scope hit lists into one ranked list, so results
// from both scopes compete on raw score before rank fusion, then trims
// to the fetch limit.
func mergeScopes(lists [][]rankedHit, limit int) []rankedHit {
	if len(lists) == 1 {
		if len(lists[0]) > limit {
			return lists[0][:limit]
		}
		return lists[0]
	}

	var all []rankedHit
	for _, list := range lists {
		all = append(all, list...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].ID < all[j].ID
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// tagHits attaches the owning scope to a store result list.
func tagHits(hits []store.ScoredChunk, scope config.ScopeKind) []rankedHit {
	out := make([]rankedHit, len(hits))
	for i, h := range hits {
		out[i] = rankedHit{ScoredChunk: h, scope: scope}
	}
	return out
}
