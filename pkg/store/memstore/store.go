// Package memstore is an in-process memory.Store engine: a BM25 inverted
// index for text and a chromem-go collection for vectors. Nothing is
// persisted; it serves tests, ephemeral agents and benchmarks.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/synmem/pkg/memory"
	"github.com/rs/zerolog"
)

// EngineName is reported in Stats.
const EngineName = "memory"

// Config configures the engine.
type Config struct {
	Dimension int
	Model     string
	Logger    zerolog.Logger
}

type record struct {
	mem *memory.Memory
	seq uint64
}

// Store implements memory.Store in process memory. A single RWMutex guards
// the commit of both indices; searches take the read lock so they never see
// one index ahead of the other.
type Store struct {
	mu        sync.RWMutex
	records   map[string]*record
	text      *textIndex
	vectors   vectorIndex
	seq       uint64
	dimension int
	model     string
	closed    bool
	logger    zerolog.Logger
}

var _ memory.Store = (*Store)(nil)

// New creates an empty store.
func New(cfg Config) (*Store, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}
	vectors, err := newChromemIndex("memories")
	if err != nil {
		return nil, err
	}
	return &Store{
		records:   make(map[string]*record),
		text:      newTextIndex(),
		vectors:   vectors,
		dimension: cfg.Dimension,
		model:     cfg.Model,
		logger:    cfg.Logger.With().Str("component", "memstore").Logger(),
	}, nil
}

func (s *Store) Dimension() int { return s.dimension }

// StoreMemory stages the text entry, then the vector. A failed vector write
// restores the previous text entry.
func (s *Store) StoreMemory(ctx context.Context, m *memory.Memory, embedding []float32) error {
	if err := memory.CheckDimension(s.dimension, embedding); err != nil {
		return err
	}
	stored, err := m.Prepared(time.Now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return memory.ErrClosed
	}

	if prev, ok := s.records[stored.ID]; ok {
		stored.CreatedAt = prev.mem.CreatedAt
	}

	prevText := s.text.put(stored.ID, indexedText(stored))
	if err := s.vectors.Add(ctx, stored.ID, embedding); err != nil {
		s.text.restore(stored.ID, prevText)
		s.logger.Warn().Err(err).Str("memory_id", stored.ID).Msg("Vector write failed, text index restored")
		return fmt.Errorf("%w: write vector index: %w", memory.ErrInconsistent, err)
	}

	s.seq++
	s.records[stored.ID] = &record{mem: stored, seq: s.seq}
	m.Adopt(stored)
	return nil
}

// DeleteMemory removes the text entry, then the vector. A failed vector
// delete puts the text entry back.
func (s *Store) DeleteMemory(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, memory.ErrClosed
	}
	if _, ok := s.records[id]; !ok {
		return false, nil
	}

	prevText := s.text.remove(id)
	if err := s.vectors.Delete(ctx, id); err != nil {
		s.text.restore(id, prevText)
		return false, fmt.Errorf("%w: delete from vector index: %w", memory.ErrInconsistent, err)
	}
	delete(s.records, id)
	return true, nil
}

func (s *Store) GetMemory(_ context.Context, id string) (*memory.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, memory.ErrClosed
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}
	return rec.mem.Clone(), nil
}

func (s *Store) GetRecent(_ context.Context, limit int) ([]memory.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, memory.ErrClosed
	}
	if limit <= 0 {
		return []memory.Memory{}, nil
	}

	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })
	if len(recs) > limit {
		recs = recs[:limit]
	}

	out := make([]memory.Memory, len(recs))
	for i, rec := range recs {
		out[i] = *rec.mem.Clone()
	}
	return out, nil
}

func (s *Store) FullTextSearch(_ context.Context, query string, limit int) ([]memory.ScoredMemory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", memory.ErrInvalidQuery)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, memory.ErrClosed
	}

	hits := s.text.search(query, limit)
	out := make([]memory.ScoredMemory, 0, len(hits))
	for _, h := range hits {
		rec, ok := s.records[h.id]
		if !ok {
			continue
		}
		out = append(out, memory.ScoredMemory{Memory: *rec.mem.Clone(), Score: h.score})
	}
	return out, nil
}

func (s *Store) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]memory.ScoredMemory, error) {
	if err := memory.CheckDimension(s.dimension, embedding); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, memory.ErrClosed
	}
	if limit <= 0 {
		return []memory.ScoredMemory{}, nil
	}

	hits, err := s.vectors.Query(ctx, embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	out := make([]memory.ScoredMemory, 0, len(hits))
	for _, h := range hits {
		rec, ok := s.records[h.id]
		if !ok {
			continue
		}
		out = append(out, memory.ScoredMemory{Memory: *rec.mem.Clone(), Score: h.similarity})
	}
	return out, nil
}

func (s *Store) Stats(_ context.Context) (memory.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := memory.Stats{Engine: EngineName, Count: len(s.records), Dimension: s.dimension, Model: s.model}
	if s.closed {
		return stats, memory.ErrClosed
	}
	return stats, nil
}

// Compact is a no-op; the indices never fragment.
func (s *Store) Compact(context.Context) error { return nil }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
