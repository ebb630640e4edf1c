package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/local-rag-engine/pkg/chunk"
)

func openTestTextIndex(t *testing.T) *TextIndex {
	t.Helper()
	idx, err := OpenTextIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestTextIndexSearchFindsContextualizedText(t *testing.T) {
	idx := openTestTextIndex(t)
	require.NoError(t, idx.Index(chunk.Chunk{
		ID: "c1", DocID: "doc1",
		ContextualizedText: "Document: \"HR Policy\". Source: hr.pdf. Section: intro. Alice Example salary details",
	}))
	require.NoError(t, idx.Index(chunk.Chunk{
		ID: "c2", DocID: "doc1",
		ContextualizedText: "unrelated content about weather patterns",
	}))

	hits, err := idx.Search("alice salary", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "c1", hits[0].ID)
}

func TestTextIndexDeleteByDoc(t *testing.T) {
	idx := openTestTextIndex(t)
	require.NoError(t, idx.Index(chunk.Chunk{ID: "c1", DocID: "doc1", ContextualizedText: "alpha beta gamma"}))
	require.NoError(t, idx.Index(chunk.Chunk{ID: "c2", DocID: "doc2", ContextualizedText: "alpha beta gamma"}))

	require.NoError(t, idx.DeleteByDoc("doc1"))

	hits, err := idx.Search("alpha", 10)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "c1", h.ID)
	}
}

func TestTextIndexClear(t *testing.T) {
	idx := openTestTextIndex(t)
	require.NoError(t, idx.Index(chunk.Chunk{ID: "c1", DocID: "doc1", ContextualizedText: "alpha beta"}))
	require.NoError(t, idx.Clear())

	hits, err := idx.Search("alpha", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestTextIndexEmptyQueryReturnsNoHits(t *testing.T) {
	idx := openTestTextIndex(t)
	hits, err := idx.Search("", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestTextIndexDeleteByDocCompleteness(t *testing.T) {
	idx := openTestTextIndex(t)
	require.NoError(t, idx.Index(chunk.Chunk{ID: "a-0", DocID: "doc-a", ContextualizedText: "onboarding policy overview"}))
	require.NoError(t, idx.Index(chunk.Chunk{ID: "a-1", DocID: "doc-a", ContextualizedText: "onboarding checklist details"}))
	require.NoError(t, idx.Index(chunk.Chunk{ID: "b-0", DocID: "doc-b", ContextualizedText: "onboarding schedule for new hires"}))

	require.NoError(t, idx.DeleteByDoc("doc-a"))

	hits, err := idx.Search("onboarding", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b-0", hits[0].ID)

	prefixHits, err := idx.SearchPrefix("onboard", 10)
	require.NoError(t, err)
	require.Len(t, prefixHits, 1)
	assert.Equal(t, "b-0", prefixHits[0].ID)
}

func TestTextIndexSearchPrefix(t *testing.T) {
	idx := openTestTextIndex(t)
	require.NoError(t, idx.Index(chunk.Chunk{ID: "c1", DocID: "doc1", ContextualizedText: "kubernetes deployment manifest"}))
	require.NoError(t, idx.Index(chunk.Chunk{ID: "c2", DocID: "doc2", ContextualizedText: "postgres connection pooling"}))

	hits, err := idx.SearchPrefix("kuber", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ID)
}
