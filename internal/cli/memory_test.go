package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harun/synmem/pkg/memory"
	"github.com/harun/synmem/pkg/query"
	"github.com/harun/synmem/pkg/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCommands(t *testing.T) {
	cfg := setupConfig(t)

	out, err := run(t, "", "--config", cfg, "store",
		"The checkout button is below the cart summary on the right",
		"--id", "cart-1",
		"--source", "https://shop.example.com/cart",
		"--title", "Cart page",
		"--type", "article",
		"--tag", "shop", "--tag", "ui",
		"--meta", "selector=#cart")
	require.NoError(t, err)
	assert.Equal(t, "Stored memory cart-1\n", out)

	out, err = run(t, "", "--config", cfg, "--json", "store",
		"Shipping takes three business days within the country",
		"--source", "https://shop.example.com/faq")
	require.NoError(t, err)
	var second memory.Memory
	decode(t, out, &second)
	assert.NotEmpty(t, second.ID)

	t.Run("get", func(t *testing.T) {
		out, err := run(t, "", "--config", cfg, "get", "cart-1")
		require.NoError(t, err)

		var m memory.Memory
		decode(t, out, &m)
		assert.Equal(t, "Cart page", m.Title)
		assert.Equal(t, []string{"shop", "ui"}, m.Tags)
		assert.Equal(t, map[string]string{"selector": "#cart"}, m.Metadata)
	})

	t.Run("search", func(t *testing.T) {
		out, err := run(t, "", "--config", cfg, "--json", "search", "checkout", "button")
		require.NoError(t, err)

		var resp search.Response
		decode(t, out, &resp)
		require.NotEmpty(t, resp.Results)
		assert.Equal(t, "cart-1", resp.Results[0].MemoryID)
		assert.False(t, resp.Degraded)
	})

	t.Run("search text output", func(t *testing.T) {
		out, err := run(t, "", "--config", cfg, "search", "--mode", "fts", "shipping")
		require.NoError(t, err)
		assert.Contains(t, out, "1. [")
		assert.Contains(t, out, "fts]")
		assert.Contains(t, out, "https://shop.example.com/faq")
	})

	t.Run("search filters", func(t *testing.T) {
		out, err := run(t, "", "--config", cfg, "--json", "search", "--type", "article", "--tag", "shop", "days checkout")
		require.NoError(t, err)

		var resp search.Response
		decode(t, out, &resp)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "cart-1", resp.Results[0].MemoryID)
	})

	t.Run("search limit is clamped to at least one", func(t *testing.T) {
		out, err := run(t, "", "--config", cfg, "--json", "search", "-n", "0", "shop example")
		require.NoError(t, err)

		var resp search.Response
		decode(t, out, &resp)
		assert.Len(t, resp.Results, 1)
	})

	t.Run("search rejects blank query", func(t *testing.T) {
		_, err := run(t, "", "--config", cfg, "search", "   ")
		require.Error(t, err)
		assert.Equal(t, query.KindInvalidQuery, query.KindOf(err))
	})

	t.Run("recent", func(t *testing.T) {
		out, err := run(t, "", "--config", cfg, "--json", "recent", "-n", "5")
		require.NoError(t, err)

		var results []memory.SearchResult
		decode(t, out, &results)
		require.Len(t, results, 2)
		assert.Equal(t, second.ID, results[0].MemoryID)
		assert.Equal(t, memory.SourceRecent, results[0].Source)
	})

	t.Run("stats", func(t *testing.T) {
		out, err := run(t, "", "--config", cfg, "stats")
		require.NoError(t, err)
		assert.Contains(t, out, "Memories:  2")
		assert.Contains(t, out, "Dimension: 64")
	})

	t.Run("delete", func(t *testing.T) {
		out, err := run(t, "", "--config", cfg, "delete", "cart-1")
		require.NoError(t, err)
		assert.Equal(t, "Deleted memory cart-1\n", out)

		out, err = run(t, "", "--config", cfg, "delete", "cart-1")
		require.NoError(t, err)
		assert.Equal(t, "Memory cart-1 not found\n", out)

		_, err = run(t, "", "--config", cfg, "get", "cart-1")
		require.Error(t, err)
		assert.Equal(t, query.KindNotFound, query.KindOf(err))
	})
}

func TestStoreCommand_ContentSources(t *testing.T) {
	cfg := setupConfig(t)

	t.Run("stdin", func(t *testing.T) {
		out, err := run(t, "notes piped from another tool", "--config", cfg, "store", "--id", "piped", "--source", "stdin", "--file", "-")
		require.NoError(t, err)
		assert.Equal(t, "Stored memory piped\n", out)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "page.txt")
		require.NoError(t, os.WriteFile(path, []byte("saved page body"), 0644))

		out, err := run(t, "", "--config", cfg, "store", "--id", "filed", "--source", "file", "--file", path)
		require.NoError(t, err)
		assert.Equal(t, "Stored memory filed\n", out)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := run(t, "", "--config", cfg, "store", "--source", "s")
		assert.ErrorContains(t, err, "content is required")

		_, err = run(t, "", "--config", cfg, "store", "x", "--source", "s", "--file", "-")
		assert.ErrorContains(t, err, "not both")

		_, err = run(t, "", "--config", cfg, "store", "no source given")
		assert.ErrorContains(t, err, "source")

		_, err = run(t, "", "--config", cfg, "store", "   ", "--source", "s")
		require.Error(t, err)
		assert.Equal(t, query.KindInvalidMemory, query.KindOf(err))
	})
}
