// Package storetest holds the behavioural suite every memory.Store engine
// must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/harun/synmem/pkg/embedding"
	"github.com/harun/synmem/pkg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store with the given embedding dimension.
// The factory registers its own cleanup.
type Factory func(t *testing.T, dimension int) memory.Store

// Scenario vectors: A and B point the same way, C is orthogonal.
var (
	VecAlpha = []float32{1, 0.1, 0}
	VecBeta  = []float32{0.9, 0.3, 0}
	VecGamma = []float32{0, 0, 1}
	// VecQueryAlpha is the query vector for "alpha".
	VecQueryAlpha = []float32{1, 0, 0}
)

// Run executes the full suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(t, newStore) })
	t.Run("UpdateNotDuplicate", func(t *testing.T) { testUpdateNotDuplicate(t, newStore) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore) })
	t.Run("GetRecent", func(t *testing.T) { testGetRecent(t, newStore) })
	t.Run("Scenario", func(t *testing.T) { testScenario(t, newStore) })
	t.Run("DimensionEnforcement", func(t *testing.T) { testDimensionEnforcement(t, newStore) })
	t.Run("QueryValidation", func(t *testing.T) { testQueryValidation(t, newStore) })
	t.Run("BoundedResults", func(t *testing.T) { testBoundedResults(t, newStore) })
	t.Run("InvalidMemory", func(t *testing.T) { testInvalidMemory(t, newStore) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newStore) })
	t.Run("ConcurrentWritesStayConsistent", func(t *testing.T) { testConcurrentConsistency(t, newStore) })
}

// Embed returns the deterministic test embedding of text.
func Embed(t *testing.T, dimension int, text string) []float32 {
	t.Helper()
	vec, err := embedding.NewHashProvider(dimension).GenerateEmbedding(context.Background(), text)
	require.NoError(t, err)
	return vec
}

// Put stores a memory with the deterministic embedding of its content.
func Put(t *testing.T, s memory.Store, m *memory.Memory) {
	t.Helper()
	require.NoError(t, s.StoreMemory(context.Background(), m, Embed(t, s.Dimension(), m.Content)))
}

// IDs extracts memory ids in rank order.
func IDs(hits []memory.ScoredMemory) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Memory.ID
	}
	return ids
}

func testRoundTrip(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 16)

	m := &memory.Memory{
		Content:     "Pricing table for the pro plan",
		Source:      "https://example.com/pricing",
		Title:       "Pricing",
		ContentType: "table",
		Tags:        []string{"pricing", "saas"},
		Metadata:    map[string]string{"selector": "#plans", "lang": "en"},
	}
	Put(t, s, m)
	require.NotEmpty(t, m.ID)

	got, err := s.GetMemory(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, m.Source, got.Source)
	assert.Equal(t, m.Title, got.Title)
	assert.Equal(t, m.ContentType, got.ContentType)
	assert.Equal(t, m.Tags, got.Tags)
	assert.Equal(t, m.Metadata, got.Metadata)
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, m.UpdatedAt.Equal(got.UpdatedAt))

	_, err = s.GetMemory(ctx, "missing")
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func testUpdateNotDuplicate(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 16)

	first := &memory.Memory{ID: "same", Content: "original wording about kettles", Source: "a"}
	Put(t, s, first)
	created := first.CreatedAt

	time.Sleep(2 * time.Millisecond)
	second := &memory.Memory{ID: "same", Content: "replacement wording about teapots", Source: "b", Metadata: map[string]string{"v": "2"}}
	Put(t, s, second)

	got, err := s.GetMemory(ctx, "same")
	require.NoError(t, err)
	assert.Equal(t, "replacement wording about teapots", got.Content)
	assert.Equal(t, "b", got.Source)
	assert.Equal(t, map[string]string{"v": "2"}, got.Metadata)
	assert.True(t, got.CreatedAt.Equal(created), "creation time is kept on update")
	assert.True(t, second.CreatedAt.Equal(created))
	assert.True(t, got.UpdatedAt.After(created))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)

	hits, err := s.FullTextSearch(ctx, "kettles", 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "old text must be gone from the text index")

	hits, err = s.FullTextSearch(ctx, "teapots", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"same"}, IDs(hits))

	hits, err = s.VectorSearch(ctx, Embed(t, 16, second.Content), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"same"}, IDs(hits))
}

func testDelete(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 16)

	keep := &memory.Memory{ID: "keep", Content: "orchard apples harvest", Source: "s"}
	gone := &memory.Memory{ID: "gone", Content: "orchard pears harvest", Source: "s"}
	Put(t, s, keep)
	Put(t, s, gone)

	existed, err := s.DeleteMemory(ctx, "gone")
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = s.GetMemory(ctx, "gone")
	assert.ErrorIs(t, err, memory.ErrNotFound)

	hits, err := s.FullTextSearch(ctx, "orchard", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"keep"}, IDs(hits))

	hits, err = s.VectorSearch(ctx, Embed(t, 16, gone.Content), 10)
	require.NoError(t, err)
	assert.NotContains(t, IDs(hits), "gone")

	existed, err = s.DeleteMemory(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, existed, "deleting twice is not an error")

	existed, err = s.DeleteMemory(ctx, "never-stored")
	require.NoError(t, err)
	assert.False(t, existed)
}

func testGetRecent(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 16)

	for i := 1; i <= 5; i++ {
		Put(t, s, &memory.Memory{ID: fmt.Sprintf("m%d", i), Content: fmt.Sprintf("memory number %d", i), Source: "s"})
	}

	recent, err := s.GetRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "m5", recent[0].ID)
	assert.Equal(t, "m4", recent[1].ID)

	// Re-storing moves a record to the front.
	Put(t, s, &memory.Memory{ID: "m1", Content: "memory number 1 revised", Source: "s"})
	recent, err = s.GetRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	assert.Equal(t, "m1", recent[0].ID)

	recent, err = s.GetRecent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func testScenario(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 3)

	require.NoError(t, s.StoreMemory(ctx, &memory.Memory{ID: "A", Content: "alpha widget", Source: "s"}, VecAlpha))
	require.NoError(t, s.StoreMemory(ctx, &memory.Memory{ID: "B", Content: "beta widget", Source: "s"}, VecBeta))
	require.NoError(t, s.StoreMemory(ctx, &memory.Memory{ID: "C", Content: "completely unrelated gamma text", Source: "s"}, VecGamma))

	hits, err := s.FullTextSearch(ctx, "alpha", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "A", hits[0].Memory.ID)
	assert.Greater(t, hits[0].Score, 0.0)
	ids := IDs(hits)
	if bi, ci := indexOf(ids, "B"), indexOf(ids, "C"); bi >= 0 && ci >= 0 {
		assert.Less(t, bi, ci)
	}

	hits, err = s.VectorSearch(ctx, VecQueryAlpha, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, IDs(hits))
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, -1.0)
		assert.LessOrEqual(t, h.Score, 1.0)
	}
	assert.InDelta(t, 0.995, hits[0].Score, 0.01)
	assert.InDelta(t, 0.0, hits[2].Score, 0.01)

	hits, err = s.FullTextSearch(ctx, "widget", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B"}, IDs(hits))
}

func testDimensionEnforcement(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 3)
	assert.Equal(t, 3, s.Dimension())

	err := s.StoreMemory(ctx, &memory.Memory{ID: "x", Content: "short vector", Source: "s"}, []float32{1, 0})
	assert.ErrorIs(t, err, memory.ErrDimensionMismatch)
	_, err = s.GetMemory(ctx, "x")
	assert.ErrorIs(t, err, memory.ErrNotFound, "rejected write leaves no trace")

	require.NoError(t, s.StoreMemory(ctx, &memory.Memory{ID: "y", Content: "right vector", Source: "s"}, VecAlpha))

	_, err = s.VectorSearch(ctx, []float32{1, 0}, 5)
	assert.ErrorIs(t, err, memory.ErrDimensionMismatch)
	_, err = s.VectorSearch(ctx, []float32{1, 0, 0, 0}, 5)
	assert.ErrorIs(t, err, memory.ErrDimensionMismatch)
}

func testQueryValidation(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 16)
	Put(t, s, &memory.Memory{ID: "q", Content: "query validation sample", Source: "s"})

	_, err := s.FullTextSearch(ctx, "", 5)
	assert.ErrorIs(t, err, memory.ErrInvalidQuery)
	_, err = s.FullTextSearch(ctx, "   ", 5)
	assert.ErrorIs(t, err, memory.ErrInvalidQuery)

	hits, err := s.FullTextSearch(ctx, `"(*)^:{}`, 5)
	require.NoError(t, err, "operator characters must not reach the query parser")
	assert.Empty(t, hits)

	hits, err = s.FullTextSearch(ctx, "sample OR NOT AND", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"q"}, IDs(hits))
}

func testBoundedResults(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 16)
	for i := 0; i < 12; i++ {
		Put(t, s, &memory.Memory{ID: fmt.Sprintf("b%02d", i), Content: fmt.Sprintf("bounded result %d", i), Source: "s"})
	}

	for _, limit := range []int{1, 5, 12, 50} {
		hits, err := s.FullTextSearch(ctx, "bounded", limit)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(hits), limit)

		hits, err = s.VectorSearch(ctx, Embed(t, 16, "bounded result"), limit)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(hits), limit)
		assert.Len(t, hits, min(limit, 12))
	}

	hits, err := s.VectorSearch(ctx, Embed(t, 16, "bounded"), 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func testInvalidMemory(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 3)

	err := s.StoreMemory(ctx, &memory.Memory{ID: "e", Content: "  ", Source: "s"}, VecAlpha)
	assert.ErrorIs(t, err, memory.ErrInvalidMemory)
	err = s.StoreMemory(ctx, &memory.Memory{ID: "e", Content: "text"}, VecAlpha)
	assert.ErrorIs(t, err, memory.ErrInvalidMemory)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)
}

func testStats(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, 16)
	Put(t, s, &memory.Memory{Content: "one", Source: "s"})
	Put(t, s, &memory.Memory{Content: "two", Source: "s"})

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 16, stats.Dimension)
	assert.NotEmpty(t, stats.Engine)

	assert.NoError(t, s.Compact(ctx))
}

// testConcurrentConsistency interleaves writers on distinct ids with readers.
// Any id a reader sees in the text index must also be found by vector search.
func testConcurrentConsistency(t *testing.T, newStore Factory) {
	ctx := context.Background()
	const dim = 16
	const writers = 4
	const perWriter = 10
	total := writers * perWriter
	s := newStore(t, dim)

	contents := make(map[string]string, total)
	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			id := fmt.Sprintf("w%d-%d", w, i)
			contents[id] = fmt.Sprintf("shared topic writer%d item%d", w, i)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, total*2)
	done := make(chan struct{})

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				m := &memory.Memory{ID: id, Content: contents[id], Source: "s"}
				if err := s.StoreMemory(ctx, m, Embed(t, dim, m.Content)); err != nil {
					errs <- err
				}
			}
		}(w)
	}

	var readers sync.WaitGroup
	for r := 0; r < 2; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				hits, err := s.FullTextSearch(ctx, "shared", total)
				if err != nil {
					errs <- err
					return
				}
				for _, h := range hits {
					vecHits, err := s.VectorSearch(ctx, Embed(t, dim, contents[h.Memory.ID]), total)
					if err != nil {
						errs <- err
						return
					}
					if indexOf(IDs(vecHits), h.Memory.ID) < 0 {
						errs <- fmt.Errorf("%s visible to text search but not vector search", h.Memory.ID)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	close(done)
	readers.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	hits, err := s.FullTextSearch(ctx, "shared", total)
	require.NoError(t, err)
	assert.Len(t, hits, total)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, stats.Count)
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}
