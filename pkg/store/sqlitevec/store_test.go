package sqlitevec

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/synmem/pkg/memory"
	"github.com/harun/synmem/pkg/store/storetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T, path string, dimension int, model string) (*Store, error) {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Path:      path,
		Dimension: dimension,
		Model:     model,
		Logger:    zerolog.Nop(),
	})
	if err != nil && strings.Contains(err.Error(), "no such module: fts5") {
		t.Skip("sqlite built without FTS5; run tests with -tags sqlite_fts5")
	}
	return s, err
}

func createTestStore(t *testing.T, dimension int) memory.Store {
	t.Helper()
	s, err := openTestStore(t, filepath.Join(t.TempDir(), "memory.db"), dimension, "test-model")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, createTestStore)
}

func TestStoreConformance_InMemory(t *testing.T) {
	storetest.Run(t, func(t *testing.T, dimension int) memory.Store {
		s, err := openTestStore(t, ":memory:", dimension, "")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), Config{Dimension: 3})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.db")

	s, err := openTestStore(t, path, 3, "m1")
	require.NoError(t, err)
	require.NoError(t, s.StoreMemory(ctx, &memory.Memory{ID: "a", Content: "alpha widget", Source: "s"}, storetest.VecAlpha))
	require.NoError(t, s.Close())

	s, err = openTestStore(t, path, 3, "m1")
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetMemory(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alpha widget", got.Content)

	hits, err := s.VectorSearch(ctx, storetest.VecQueryAlpha, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, storetest.IDs(hits))

	// The sequence continues after reopen.
	require.NoError(t, s.StoreMemory(ctx, &memory.Memory{ID: "b", Content: "beta widget", Source: "s"}, storetest.VecBeta))
	recent, err := s.GetRecent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", recent[0].ID)
}

func TestOpen_RejectsDimensionChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")

	s, err := openTestStore(t, path, 3, "m1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = openTestStore(t, path, 4, "m1")
	assert.ErrorIs(t, err, memory.ErrDimensionMismatch)

	// Same dimension, new model: allowed, marker updated.
	s, err = openTestStore(t, path, 3, "m2")
	require.NoError(t, err)
	defer s.Close()

	model, ok, err := s.meta(context.Background(), metaModel)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "m2", model)

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EngineName, stats.Engine)
	assert.Equal(t, "m2", stats.Model)
	assert.Equal(t, path, stats.Path)
}

func TestStore_ClosedStoreRejectsCalls(t *testing.T) {
	s, err := openTestStore(t, filepath.Join(t.TempDir(), "memory.db"), 3, "")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	ctx := context.Background()
	err = s.StoreMemory(ctx, &memory.Memory{Content: "x", Source: "s"}, storetest.VecAlpha)
	assert.ErrorIs(t, err, memory.ErrClosed)
	_, err = s.GetMemory(ctx, "x")
	assert.ErrorIs(t, err, memory.ErrClosed)
	_, err = s.FullTextSearch(ctx, "x", 1)
	assert.ErrorIs(t, err, memory.ErrClosed)
}

func TestStore_TitleAndTagsAreSearchable(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, 3)

	require.NoError(t, s.StoreMemory(ctx, &memory.Memory{
		ID: "t", Content: "body text", Source: "s", Title: "Quarterly report", Tags: []string{"finance"},
	}, storetest.VecAlpha))

	hits, err := s.FullTextSearch(ctx, "quarterly", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, storetest.IDs(hits))

	hits, err = s.FullTextSearch(ctx, "finance", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, storetest.IDs(hits))
}

func TestBuildMatchQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "alpha", want: `"alpha"`},
		{in: "Alpha beta alpha", want: `"alpha" OR "beta"`},
		{in: `title:"x" AND (y*)`, want: `"title" OR "x" OR "and" OR "y"`},
		{in: "^{}", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, buildMatchQuery(tt.in))
		})
	}

	var words []string
	for i := 0; i < maxKeywordTerms+8; i++ {
		words = append(words, fmt.Sprintf("term%d", i))
	}
	assert.Len(t, strings.Split(buildMatchQuery(strings.Join(words, " ")), " OR "), maxKeywordTerms)
}
