package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/harun/synmem/pkg/memory"
	"github.com/harun/synmem/pkg/store"
	"github.com/harun/synmem/pkg/store/storetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T, dimension int) memory.Store {
	t.Helper()
	s, err := New(Config{Dimension: dimension, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, createTestStore)
}

func TestStoreConformance_WithRetry(t *testing.T) {
	storetest.Run(t, func(t *testing.T, dimension int) memory.Store {
		return store.WithRetry(createTestStore(t, dimension), store.DefaultRetryConfig())
	})
}

func TestNew_InvalidDimension(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

// failingVectors fails writes or deletes on demand.
type failingVectors struct {
	vectorIndex
	failAdd    bool
	failDelete bool
}

func (f *failingVectors) Add(ctx context.Context, id string, embedding []float32) error {
	if f.failAdd {
		return errors.New("vector index full")
	}
	return f.vectorIndex.Add(ctx, id, embedding)
}

func (f *failingVectors) Delete(ctx context.Context, id string) error {
	if f.failDelete {
		return errors.New("vector index locked")
	}
	return f.vectorIndex.Delete(ctx, id)
}

func newFailingStore(t *testing.T) (*Store, *failingVectors) {
	t.Helper()
	s, err := New(Config{Dimension: 3, Logger: zerolog.Nop()})
	require.NoError(t, err)
	fv := &failingVectors{vectorIndex: s.vectors}
	s.vectors = fv
	return s, fv
}

func TestStoreMemory_VectorFailureRestoresText(t *testing.T) {
	ctx := context.Background()
	s, fv := newFailingStore(t)

	require.NoError(t, s.StoreMemory(ctx, &memory.Memory{ID: "a", Content: "original lighthouse", Source: "s"}, storetest.VecAlpha))

	fv.failAdd = true
	err := s.StoreMemory(ctx, &memory.Memory{ID: "a", Content: "replacement windmill", Source: "s"}, storetest.VecBeta)
	assert.ErrorIs(t, err, memory.ErrInconsistent)

	fresh := &memory.Memory{Content: "brand new windmill", Source: "s"}
	err = s.StoreMemory(ctx, fresh, storetest.VecBeta)
	assert.ErrorIs(t, err, memory.ErrInconsistent)
	assert.Empty(t, fresh.ID, "a failed store leaves the caller's memory untouched")
	assert.True(t, fresh.UpdatedAt.IsZero())

	got, err := s.GetMemory(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "original lighthouse", got.Content)

	hits, err := s.FullTextSearch(ctx, "windmill", 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "failed writes must not leave text entries")

	hits, err = s.FullTextSearch(ctx, "lighthouse", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, storetest.IDs(hits))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
}

func TestDeleteMemory_VectorFailureRestoresText(t *testing.T) {
	ctx := context.Background()
	s, fv := newFailingStore(t)
	require.NoError(t, s.StoreMemory(ctx, &memory.Memory{ID: "a", Content: "sticky note", Source: "s"}, storetest.VecAlpha))

	fv.failDelete = true
	existed, err := s.DeleteMemory(ctx, "a")
	assert.False(t, existed)
	assert.ErrorIs(t, err, memory.ErrInconsistent)

	hits, err := s.FullTextSearch(ctx, "sticky", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, storetest.IDs(hits))

	vecHits, err := s.VectorSearch(ctx, storetest.VecAlpha, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, storetest.IDs(vecHits))
}

func TestStore_ReturnedMemoriesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, 3)
	m := &memory.Memory{ID: "a", Content: "alpha", Source: "s", Metadata: map[string]string{"k": "v"}}
	require.NoError(t, s.StoreMemory(ctx, m, storetest.VecAlpha))

	m.Metadata["k"] = "mutated by caller"
	got, err := s.GetMemory(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Metadata["k"])

	got.Metadata["k"] = "mutated by reader"
	again, err := s.GetMemory(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Metadata["k"])
}

func TestStore_Closed(t *testing.T) {
	s := createTestStore(t, 3)
	require.NoError(t, s.Close())

	_, err := s.GetRecent(context.Background(), 1)
	assert.ErrorIs(t, err, memory.ErrClosed)
	err = s.StoreMemory(context.Background(), &memory.Memory{Content: "x", Source: "s"}, storetest.VecAlpha)
	assert.ErrorIs(t, err, memory.ErrClosed)
}
