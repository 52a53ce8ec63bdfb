package memstore

import (
	"math"
	"sort"
	"strings"

	"github.com/harun/synmem/pkg/memory"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type textDoc struct {
	terms  map[string]int
	length int
}

// textIndex is an inverted index scored with Okapi BM25. It is not safe for
// concurrent use; the store serializes access.
type textIndex struct {
	postings map[string]map[string]int
	docs     map[string]*textDoc
	totalLen int
}

type textHit struct {
	id    string
	score float64
}

func newTextIndex() *textIndex {
	return &textIndex{
		postings: make(map[string]map[string]int),
		docs:     make(map[string]*textDoc),
	}
}

func indexedText(m *memory.Memory) string {
	return strings.Join([]string{m.Title, m.Content, strings.Join(m.Tags, " ")}, " ")
}

// put indexes text under id and returns the entry it replaced, if any.
func (ix *textIndex) put(id, text string) *textDoc {
	prev := ix.remove(id)

	tokens := memory.Tokenize(text)
	doc := &textDoc{terms: make(map[string]int), length: len(tokens)}
	for _, tok := range tokens {
		doc.terms[tok]++
	}
	ix.insert(id, doc)
	return prev
}

// restore puts back an entry returned by put or remove. A nil doc means the
// id was absent.
func (ix *textIndex) restore(id string, doc *textDoc) {
	ix.remove(id)
	if doc != nil {
		ix.insert(id, doc)
	}
}

func (ix *textIndex) insert(id string, doc *textDoc) {
	ix.docs[id] = doc
	ix.totalLen += doc.length
	for term, tf := range doc.terms {
		p, ok := ix.postings[term]
		if !ok {
			p = make(map[string]int)
			ix.postings[term] = p
		}
		p[id] = tf
	}
}

func (ix *textIndex) remove(id string) *textDoc {
	doc, ok := ix.docs[id]
	if !ok {
		return nil
	}
	delete(ix.docs, id)
	ix.totalLen -= doc.length
	for term := range doc.terms {
		p := ix.postings[term]
		delete(p, id)
		if len(p) == 0 {
			delete(ix.postings, term)
		}
	}
	return doc
}

func (ix *textIndex) search(query string, limit int) []textHit {
	n := len(ix.docs)
	if n == 0 || limit <= 0 {
		return nil
	}
	avgLen := float64(ix.totalLen) / float64(n)
	if avgLen == 0 {
		avgLen = 1
	}

	scores := make(map[string]float64)
	seen := make(map[string]bool)
	for _, term := range memory.Tokenize(query) {
		if seen[term] {
			continue
		}
		seen[term] = true

		p := ix.postings[term]
		if len(p) == 0 {
			continue
		}
		df := float64(len(p))
		idf := math.Log(1 + (float64(n)-df+0.5)/(df+0.5))
		for id, tf := range p {
			dl := float64(ix.docs[id].length)
			f := float64(tf)
			scores[id] += idf * f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*dl/avgLen))
		}
	}

	hits := make([]textHit, 0, len(scores))
	for id, score := range scores {
		hits = append(hits, textHit{id: id, score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}
