package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/dgraph-io/ristretto"
	"github.com/harun/synmem/internal/observability"
)

// CachedProvider memoizes embeddings of another provider, keyed by model
// and content hash. Cached vectors are shared; callers must not modify them.
type CachedProvider struct {
	inner  Provider
	cache  *ristretto.Cache
	maxLen int
}

// NewCachedProvider wraps inner with a cache holding up to maxEntries vectors.
func NewCachedProvider(inner Provider, maxEntries int64, maxInputLength int) (*CachedProvider, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedProvider{inner: inner, cache: cache, maxLen: maxInputLength}, nil
}

func (p *CachedProvider) Dimension() int { return p.inner.Dimension() }

func (p *CachedProvider) Model() string { return p.inner.Model() }

func (p *CachedProvider) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := Validate(text, p.maxLen); err != nil {
		return nil, err
	}
	key := p.key(text)
	if v, ok := p.cache.Get(key); ok {
		observability.RecordEmbeddingCache(true)
		return v.([]float32), nil
	}
	observability.RecordEmbeddingCache(false)

	vec, err := p.inner.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.Set(key, vec, 1)
	return vec, nil
}

func (p *CachedProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateAll(texts, p.maxLen); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := p.cache.Get(p.key(text)); ok {
			observability.RecordEmbeddingCache(true)
			out[i] = v.([]float32)
			continue
		}
		observability.RecordEmbeddingCache(false)
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := p.inner.GenerateEmbeddings(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, vec := range vecs {
		out[missingIdx[j]] = vec
		p.cache.Set(p.key(missing[j]), vec, 1)
	}
	return out, nil
}

// Wait blocks until pending cache writes are visible.
func (p *CachedProvider) Wait() {
	p.cache.Wait()
}

// Close releases the cache goroutines.
func (p *CachedProvider) Close() {
	p.cache.Close()
}

func (p *CachedProvider) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return p.inner.Model() + ":" + hex.EncodeToString(sum[:])
}
