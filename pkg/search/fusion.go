package search

import (
	"sort"
	"strings"

	"github.com/harun/synmem/pkg/memory"
)

// candidate is one memory during fusion. A nil component means the signal
// did not return the memory.
type candidate struct {
	mem    memory.Memory
	fts    *float64
	vector *float64
	score  float64
}

func (c *candidate) source() memory.SourceTag {
	switch {
	case c.fts != nil && c.vector != nil:
		return memory.SourceHybrid
	case c.vector != nil:
		return memory.SourceVector
	default:
		return memory.SourceFTS
	}
}

// normalize min-max scales raw scores into [0,1], keyed by memory id. A
// batch of one, or a batch of equal scores, maps to 1. An id returned twice
// keeps its higher score.
func normalize(hits []memory.ScoredMemory) (map[string]float64, map[string]memory.Memory) {
	scores := make(map[string]float64, len(hits))
	mems := make(map[string]memory.Memory, len(hits))
	if len(hits) == 0 {
		return scores, mems
	}

	lo, hi := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		lo = min(lo, h.Score)
		hi = max(hi, h.Score)
	}
	span := hi - lo

	for _, h := range hits {
		n := 1.0
		if span > 0 {
			n = (h.Score - lo) / span
		}
		id := h.Memory.ID
		if prev, ok := scores[id]; ok && prev >= n {
			continue
		}
		scores[id] = n
		mems[id] = h.Memory
	}
	return scores, mems
}

// fuse merges the normalized lists. An id in both lists gets the weighted
// sum; an id in one list gets that list's weight times its score.
func fuse(fts, vector []memory.ScoredMemory, ftsWeight, vectorWeight float64) []*candidate {
	ftsScores, ftsMems := normalize(fts)
	vecScores, vecMems := normalize(vector)

	byID := make(map[string]*candidate, len(ftsScores)+len(vecScores))
	for id, s := range ftsScores {
		s := s
		byID[id] = &candidate{mem: ftsMems[id], fts: &s}
	}
	for id, s := range vecScores {
		s := s
		if c, ok := byID[id]; ok {
			c.vector = &s
			continue
		}
		byID[id] = &candidate{mem: vecMems[id], vector: &s}
	}

	out := make([]*candidate, 0, len(byID))
	for _, c := range byID {
		if c.fts != nil {
			c.score += ftsWeight * *c.fts
		}
		if c.vector != nil {
			c.score += vectorWeight * *c.vector
		}
		out = append(out, c)
	}
	return out
}

// single turns one normalized list into candidates scored by that list alone.
func single(hits []memory.ScoredMemory, tag memory.SourceTag) []*candidate {
	scores, mems := normalize(hits)
	out := make([]*candidate, 0, len(scores))
	for id, s := range scores {
		s := s
		c := &candidate{mem: mems[id], score: s}
		if tag == memory.SourceVector {
			c.vector = &s
		} else {
			c.fts = &s
		}
		out = append(out, c)
	}
	return out
}

// rank orders by score, then most recently updated, then id.
func rank(cands []*candidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.mem.UpdatedAt.Equal(b.mem.UpdatedAt) {
			return a.mem.UpdatedAt.After(b.mem.UpdatedAt)
		}
		return a.mem.ID < b.mem.ID
	})
}

// Filter restricts results after fusion. Empty fields match everything.
type Filter struct {
	// ContentTypes keeps memories whose content type is listed.
	ContentTypes []string
	// Tags keeps memories that carry every listed tag.
	Tags []string
}

func (f Filter) empty() bool {
	return len(f.ContentTypes) == 0 && len(f.Tags) == 0
}

func (f Filter) match(m *memory.Memory) bool {
	if len(f.ContentTypes) > 0 {
		ok := false
		for _, ct := range f.ContentTypes {
			if strings.EqualFold(ct, m.ContentType) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, tag := range f.Tags {
		if !m.HasTag(tag) {
			return false
		}
	}
	return true
}

func applyFilter(cands []*candidate, f Filter) []*candidate {
	if f.empty() {
		return cands
	}
	out := cands[:0]
	for _, c := range cands {
		if f.match(&c.mem) {
			out = append(out, c)
		}
	}
	return out
}

// dedupNear drops candidates whose word set is at least threshold-similar
// (Jaccard) to a higher-ranked kept candidate. cands must be ranked.
func dedupNear(cands []*candidate, threshold float64) []*candidate {
	if threshold <= 0 || len(cands) < 2 {
		return cands
	}
	kept := make([]*candidate, 0, len(cands))
	sets := make([]map[string]struct{}, 0, len(cands))
	for _, c := range cands {
		set := wordSet(c.mem.Content)
		dup := false
		for _, other := range sets {
			if jaccard(set, other) >= threshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		kept = append(kept, c)
		sets = append(sets, set)
	}
	return kept
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range memory.Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}
