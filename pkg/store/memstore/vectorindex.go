package memstore

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// vectorIndex is the subset of a vector collection the store needs.
type vectorIndex interface {
	Add(ctx context.Context, id string, embedding []float32) error
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, embedding []float32, n int) ([]vectorHit, error)
	Count() int
}

type vectorHit struct {
	id         string
	similarity float64
}

// chromemIndex stores vectors in a chromem-go collection. Embeddings are
// always supplied by the caller, so the collection has no embedding func.
type chromemIndex struct {
	col *chromem.Collection
}

func newChromemIndex(name string) (*chromemIndex, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create vector collection: %w", err)
	}
	return &chromemIndex{col: col}, nil
}

func (c *chromemIndex) Add(ctx context.Context, id string, embedding []float32) error {
	vec := append([]float32(nil), embedding...)
	return c.col.AddDocument(ctx, chromem.Document{ID: id, Embedding: vec})
}

func (c *chromemIndex) Delete(ctx context.Context, id string) error {
	return c.col.Delete(ctx, nil, nil, id)
}

func (c *chromemIndex) Query(ctx context.Context, embedding []float32, n int) ([]vectorHit, error) {
	if count := c.col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}
	results, err := c.col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, err
	}
	hits := make([]vectorHit, len(results))
	for i, r := range results {
		hits[i] = vectorHit{id: r.ID, similarity: float64(r.Similarity)}
	}
	return hits, nil
}

func (c *chromemIndex) Count() int {
	return c.col.Count()
}
