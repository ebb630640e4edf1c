package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/local-rag-engine/pkg/chunk"
)

func openTestStore(t *testing.T, dim int) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := Open(path, dim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mkChunk(docID string, idx int, vec []float64) chunk.Chunk {
	return chunk.Chunk{
		ID:         chunk.NewID(docID, idx),
		DocID:      docID,
		ChunkIndex: idx,
		Text:       "chunk text",
		Source:     docID + ".txt",
		SpaceID:    "space-1",
		Vector:     vec,
	}
}

func TestUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 3)

	chunks := []chunk.Chunk{
		mkChunk("doc1", 0, []float64{1, 0, 0}),
		mkChunk("doc1", 1, []float64{0, 1, 0}),
	}
	require.NoError(t, s.Upsert(ctx, chunks))

	hits, err := s.Search(ctx, []float64{1, 0, 0}, 5, Predicate{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "doc1#0", hits[0].Chunk.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestUpsertRejectsMismatchedDimension(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 3)
	err := s.Upsert(ctx, []chunk.Chunk{mkChunk("doc1", 0, []float64{1, 0})})
	assert.Error(t, err)
}

func TestUpsertIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 3)
	good := mkChunk("doc1", 0, []float64{1, 0, 0})
	bad := mkChunk("doc1", 1, []float64{1, 0})
	err := s.Upsert(ctx, []chunk.Chunk{good, bad})
	require.Error(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDeleteByDocRemovesAllChunks(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 3)
	require.NoError(t, s.Upsert(ctx, []chunk.Chunk{
		mkChunk("doc1", 0, []float64{1, 0, 0}),
		mkChunk("doc2", 0, []float64{0, 1, 0}),
	}))

	require.NoError(t, s.DeleteByDoc(ctx, "doc1"))

	hits, err := s.List(ctx, Predicate{}, 0)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "doc1", h.Chunk.DocID)
	}

	n, err := s.Search(ctx, []float64{1, 0, 0}, 5, Predicate{})
	require.NoError(t, err)
	for _, h := range n {
		assert.NotEqual(t, "doc1", h.Chunk.DocID)
	}
}

func TestDeleteBySpace(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 3)
	c := mkChunk("doc1", 0, []float64{1, 0, 0})
	c.SpaceID = "space-a"
	require.NoError(t, s.Upsert(ctx, []chunk.Chunk{c}))
	require.NoError(t, s.DeleteBySpace(ctx, "space-a"))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNeighboursExcludesCentreAndSortsByIndex(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 3)
	var chunks []chunk.Chunk
	for i := 0; i < 5; i++ {
		chunks = append(chunks, mkChunk("doc1", i, []float64{1, 0, 0}))
	}
	require.NoError(t, s.Upsert(ctx, chunks))

	hits, err := s.Neighbours(ctx, "doc1", 2, 1)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].Chunk.ChunkIndex)
	assert.Equal(t, 3, hits[1].Chunk.ChunkIndex)
}

func TestCountDocuments(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 3)
	require.NoError(t, s.Upsert(ctx, []chunk.Chunk{
		mkChunk("doc1", 0, []float64{1, 0, 0}),
		mkChunk("doc1", 1, []float64{0, 1, 0}),
		mkChunk("doc2", 0, []float64{0, 0, 1}),
	}))

	docs, err := s.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, docs)
}

func TestPredicateFiltersBySpace(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 3)
	a := mkChunk("doc1", 0, []float64{1, 0, 0})
	a.SpaceID = "space-a"
	b := mkChunk("doc2", 0, []float64{1, 0, 0})
	b.SpaceID = "space-b"
	require.NoError(t, s.Upsert(ctx, []chunk.Chunk{a, b}))

	hits, err := s.Search(ctx, []float64{1, 0, 0}, 5, Predicate{SpaceID: "space-a"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc1", hits[0].Chunk.DocID)
}

func TestCountSpaces(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 3)

	a := mkChunk("doc1", 0, []float64{1, 0, 0})
	a.SpaceID = "A"
	b := mkChunk("doc2", 0, []float64{0, 1, 0})
	b.SpaceID = "B"
	unspaced := mkChunk("doc3", 0, []float64{0, 0, 1})
	unspaced.SpaceID = ""
	require.NoError(t, s.Upsert(ctx, []chunk.Chunk{a, b, unspaced}))

	n, err := s.CountSpaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
