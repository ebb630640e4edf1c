// Package rerank re-scores retrieval results with a reranking-capable
// model, the optional last ranking stage before neighbour expansion.
package rerank

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/docker/local-rag-engine/pkg/model/provider"
	"github.com/docker/local-rag-engine/pkg/rag/database"
	"github.com/docker/local-rag-engine/pkg/rag/types"
)

// Reranker re-scores search results and returns them sorted by the new
// scores. Relevance criteria are configured at construction, not per call.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []database.SearchResult) ([]database.SearchResult, error)
}

// Config tunes an LLMReranker.
type Config struct {
	Model     provider.Provider // must implement provider.RerankingProvider
	TopK      int               // only rerank the top K results (0 = all)
	Threshold float64           // drop results scoring below this (0 = keep all)
	Criteria  string            // optional domain-specific relevance criteria
}

// LLMReranker delegates scoring to any provider implementing
// provider.RerankingProvider.
type LLMReranker struct {
	config Config
}

func NewLLMReranker(config Config) (*LLMReranker, error) {
	if config.Model == nil {
		return nil, fmt.Errorf("reranking model is required")
	}
	return &LLMReranker{config: config}, nil
}

// Rerank scores the top results with the model, drops anything under the
// threshold, appends the tail that was never reranked, and re-sorts.
func (r *LLMReranker) Rerank(ctx context.Context, query string, results []database.SearchResult) ([]database.SearchResult, error) {
	if len(results) == 0 {
		return results, nil
	}
	start := time.Now()

	rerankProvider, ok := r.config.Model.(provider.RerankingProvider)
	if !ok {
		return nil, fmt.Errorf("model %s does not support reranking operation", r.config.Model.ID())
	}

	numToRerank := len(results)
	if r.config.TopK > 0 && r.config.TopK < len(results) {
		numToRerank = r.config.TopK
	}

	documents := make([]types.Document, numToRerank)
	for i := range numToRerank {
		doc := results[i].Document
		documents[i] = types.Document{
			Content:    doc.Content,
			SourcePath: doc.SourcePath,
			ChunkIndex: doc.ChunkIndex,
		}
	}

	scores, err := rerankProvider.Rerank(ctx, query, documents, r.config.Criteria)
	if err != nil {
		return nil, fmt.Errorf("reranking failed: %w", err)
	}
	if len(scores) != numToRerank {
		return nil, fmt.Errorf("reranking returned %d scores but expected %d", len(scores), numToRerank)
	}

	reranked := make([]database.SearchResult, 0, len(results))
	for i := range numToRerank {
		if r.config.Threshold > 0 && scores[i] < r.config.Threshold {
			continue
		}
		result := results[i]
		result.Similarity = scores[i]
		reranked = append(reranked, result)
	}
	reranked = append(reranked, results[numToRerank:]...)

	slices.SortFunc(reranked, func(a, b database.SearchResult) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})

	slog.Debug("reranking complete",
		"model_id", r.config.Model.ID(),
		"input_count", len(results),
		"reranked_count", numToRerank,
		"output_count", len(reranked),
		"duration_ms", time.Since(start).Milliseconds())

	return reranked, nil
}
