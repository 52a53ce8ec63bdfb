package memstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextIndex_RanksByRelevance(t *testing.T) {
	ix := newTextIndex()
	ix.put("a", "alpha alpha widget")
	ix.put("b", "alpha widget with many other filler words around it")
	ix.put("c", "unrelated")

	hits := ix.search("alpha", 10)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].id)
	assert.Equal(t, "b", hits[1].id)
	assert.Greater(t, hits[0].score, hits[1].score)
}

func TestTextIndex_RareTermsWeighMore(t *testing.T) {
	ix := newTextIndex()
	ix.put("a", "common rare")
	ix.put("b", "common")
	ix.put("c", "common")

	hits := ix.search("common rare", 10)
	require.Len(t, hits, 3)
	assert.Equal(t, "a", hits[0].id)
}

func TestTextIndex_PutReplacesAndRestore(t *testing.T) {
	ix := newTextIndex()
	assert.Nil(t, ix.put("a", "first words"))

	prev := ix.put("a", "second words")
	require.NotNil(t, prev)
	assert.Empty(t, ix.search("first", 5))
	assert.Len(t, ix.search("second", 5), 1)

	ix.restore("a", prev)
	assert.Len(t, ix.search("first", 5), 1)
	assert.Empty(t, ix.search("second", 5))
	assert.Equal(t, 2, ix.totalLen)

	ix.restore("a", nil)
	assert.Empty(t, ix.docs)
	assert.Empty(t, ix.postings)
	assert.Equal(t, 0, ix.totalLen)
}

func TestTextIndex_Limit(t *testing.T) {
	ix := newTextIndex()
	for _, id := range []string{"a", "b", "c", "d"} {
		ix.put(id, "same text")
	}
	assert.Len(t, ix.search("same", 2), 2)
	assert.Empty(t, ix.search("same", 0))
	assert.Empty(t, newTextIndex().search("same", 5))
}
