package memory

import "context"

// Store is the capability set of a storage engine. Every engine keeps a
// text index and a vector index in lockstep, keyed by memory id.
type Store interface {
	// StoreMemory writes m and its embedding to both indices as one unit.
	// m is updated in place with its assigned id and timestamps.
	StoreMemory(ctx context.Context, m *Memory, embedding []float32) error

	// GetMemory returns ErrNotFound for unknown ids.
	GetMemory(ctx context.Context, id string) (*Memory, error)

	// GetRecent lists memories by last store, most recent first.
	GetRecent(ctx context.Context, limit int) ([]Memory, error)

	// DeleteMemory removes id from both indices and reports whether it existed.
	DeleteMemory(ctx context.Context, id string) (bool, error)

	// FullTextSearch returns up to limit hits with raw relevance scores,
	// higher is better.
	FullTextSearch(ctx context.Context, query string, limit int) ([]ScoredMemory, error)

	// VectorSearch returns up to limit hits scored by cosine similarity.
	VectorSearch(ctx context.Context, embedding []float32, limit int) ([]ScoredMemory, error)

	Dimension() int
	Stats(ctx context.Context) (Stats, error)

	// Compact runs engine maintenance (index optimize, vacuum).
	Compact(ctx context.Context) error

	Close() error
}
