package retrieval

import (
	"context"
	"crypto/sha1"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/local-rag-engine/pkg/chat"
	"github.com/docker/local-rag-engine/pkg/chunk"
	"github.com/docker/local-rag-engine/pkg/model/provider/base"
	"github.com/docker/local-rag-engine/pkg/rag/embed"
	"github.com/docker/local-rag-engine/pkg/rag/rerank"
	"github.com/docker/local-rag-engine/pkg/rag/types"
	"github.com/docker/local-rag-engine/pkg/store"
	"github.com/docker/local-rag-engine/pkg/tools"
)

// fakeProvider is a deterministic, content-hash-based embedding provider so
// tests can assert dense retrieval behavior without a real model.
type fakeProvider struct{}

func (fakeProvider) ID() string { return "fake/embed" }

func (fakeProvider) BaseConfig() base.Config { return base.Config{} }

func (fakeProvider) CreateChatCompletion(ctx context.Context, messages []chat.Message) (string, error) {
	return "", nil
}

func (fakeProvider) CreateChatCompletionStream(ctx context.Context, messages []chat.Message, tools []tools.Tool) (chat.MessageStream, error) {
	return nil, nil
}

func (fakeProvider) CreateEmbedding(ctx context.Context, text string) (*base.EmbeddingResult, error) {
	return &base.EmbeddingResult{Embedding: hashVector(text)}, nil
}

// rerankingProvider wraps fakeProvider with a RerankingProvider that always
// reverses the incoming document order, so tests can assert the reranked
// order took effect rather than the fused/boosted order.
type rerankingProvider struct {
	fakeProvider
}

func (rerankingProvider) Rerank(_ context.Context, _ string, documents []types.Document, _ string) ([]float64, error) {
	scores := make([]float64, len(documents))
	for i := range documents {
		scores[i] = float64(i) // last document in gets the highest score
	}
	return scores, nil
}

// hashVector maps text deterministically into a 3-dimensional vector made of
// the first three bytes (0-255) of its SHA-1 digest, so identical fixture
// strings get identical vectors.
func hashVector(text string) []float64 {
	sum := sha1.Sum([]byte(text))
	return []float64{float64(sum[0]), float64(sum[1]), float64(sum[2])}
}

const dim = 3

func buildTestEngine(t *testing.T) (*Engine, *store.Store, *store.TextIndex) {
	t.Helper()
	vecStore, err := store.Open(filepath.Join(t.TempDir(), "s.db"), dim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vecStore.Close() })

	textIdx, err := store.OpenTextIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = textIdx.Close() })

	embedder := embed.New(fakeProvider{})
	router := NewRouter(nil, nil)

	eng, err := New(DefaultConfig(), embedder, vecStore, textIdx, router, nil)
	require.NoError(t, err)
	return eng, vecStore, textIdx
}

func TestEngineSearchReturnsLexicalMatchEvenWithoutVectorOverlap(t *testing.T) {
	ctx := context.Background()
	eng, vecStore, textIdx := buildTestEngine(t)

	c := chunk.Chunk{
		ID: "doc1#0", DocID: "doc1", ChunkIndex: 0,
		Text:               "the quarterly salary report for Alice Example",
		ContextualizedText: "Document: \"HR\". Source: hr.pdf. Section: intro. the quarterly salary report for Alice Example",
		Source:             "hr.pdf",
		Vector:             hashVector("query: unrelated vector content"),
	}
	require.NoError(t, vecStore.Upsert(ctx, []chunk.Chunk{c}))
	require.NoError(t, textIdx.Index(c))

	result, err := eng.Search(ctx, nil, "alice salary", store.Predicate{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Hits)
	assert.Equal(t, "doc1#0", result.Hits[0].Chunk.ID)
}

func TestEngineRerankHitsReordersByRerankScore(t *testing.T) {
	ctx := context.Background()
	eng, _, _ := buildTestEngine(t)
	eng.SetReranker(mustLLMReranker(t, rerankingProvider{}))

	hits := []store.Hit{
		{Chunk: chunk.Chunk{ID: "a", Source: "a.txt", Text: "alpha"}, Score: 0.9},
		{Chunk: chunk.Chunk{ID: "b", Source: "b.txt", Text: "beta"}, Score: 0.5},
		{Chunk: chunk.Chunk{ID: "c", Source: "c.txt", Text: "gamma"}, Score: 0.1},
	}

	reranked, err := eng.rerankHits(ctx, "query", hits)
	require.NoError(t, err)
	require.Len(t, reranked, 3)
	// rerankingProvider scores documents in input order ascending, so the
	// last-seen document (originally lowest-scored "c") now ranks first.
	assert.Equal(t, "c", reranked[0].Chunk.ID)
	assert.Equal(t, "a", reranked[2].Chunk.ID)
}

func mustLLMReranker(t *testing.T, p rerankingProvider) *rerank.LLMReranker {
	t.Helper()
	r, err := rerank.NewLLMReranker(rerank.Config{Model: p})
	require.NoError(t, err)
	return r
}

func TestEngineSearchExpandsNeighbours(t *testing.T) {
	ctx := context.Background()
	eng, vecStore, textIdx := buildTestEngine(t)

	var chunks []chunk.Chunk
	for i := 0; i < 3; i++ {
		c := chunk.Chunk{
			ID: chunk.NewID("doc1", i), DocID: "doc1", ChunkIndex: i,
			Text:               "alpha beta gamma content",
			ContextualizedText: "alpha beta gamma content",
			Source:             "doc1.txt",
			Vector:             hashVector("query: alpha beta gamma content"),
		}
		chunks = append(chunks, c)
	}
	require.NoError(t, vecStore.Upsert(ctx, chunks))
	for _, c := range chunks {
		require.NoError(t, textIdx.Index(c))
	}

	result, err := eng.Search(ctx, nil, "alpha beta", store.Predicate{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Hits)
	assert.NotEmpty(t, result.Hits[0].Neighbours)
}
