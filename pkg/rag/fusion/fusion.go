// Package fusion merges the ranked result lists produced by the dense and
// lexical retrieval strategies into one list. Reciprocal rank fusion is the
// default; weighted score fusion is available when per-strategy weights are
// configured.
package fusion

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/docker/local-rag-engine/pkg/rag/database"
)

// Fusion combines per-strategy result lists, keyed by strategy name, into
// a single ranked list.
type Fusion interface {
	Fuse(strategyResults map[string][]database.SearchResult) ([]database.SearchResult, error)
}

// Config selects and tunes a fusion strategy.
type Config struct {
	Strategy string             // "rrf" (default) or "weighted"
	K        int                // RRF smoothing constant, default 60
	Weights  map[string]float64 // per-strategy weights, weighted fusion only
}

// New builds the configured fusion strategy.
func New(config Config) (Fusion, error) {
	switch config.Strategy {
	case "rrf", "reciprocal_rank_fusion", "":
		return reciprocalRank{k: cmp.Or(config.K, 60)}, nil
	case "weighted":
		if len(config.Weights) == 0 {
			return nil, fmt.Errorf("weighted fusion requires strategy weights")
		}
		return weighted{weights: config.Weights}, nil
	default:
		return nil, fmt.Errorf("unknown fusion strategy: %s", config.Strategy)
	}
}

// fused accumulates one document's contributions across strategies.
type fused struct {
	doc   database.Document
	score float64
	best  float64 // highest per-strategy score, used as the tie-break
}

// merge folds every strategy's lists into one map using contribute to score
// each (rank, result) pair, then returns the documents sorted by fused
// score. Ties break on the best single-strategy score, then id, so the
// ordering is deterministic under Go's randomized map iteration.
func merge(strategyResults map[string][]database.SearchResult, contribute func(strategy string, rank int, r database.SearchResult) float64) []database.SearchResult {
	byID := make(map[string]*fused)
	for strategy, results := range strategyResults {
		for rank, result := range results {
			f, ok := byID[result.Document.ID]
			if !ok {
				f = &fused{doc: result.Document}
				byID[result.Document.ID] = f
			}
			f.score += contribute(strategy, rank, result)
			f.best = max(f.best, result.Similarity)
		}
	}

	out := make([]database.SearchResult, 0, len(byID))
	for _, f := range byID {
		out = append(out, database.SearchResult{Document: f.doc, Similarity: f.score})
	}
	slices.SortFunc(out, func(a, b database.SearchResult) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		if c := cmp.Compare(byID[b.Document.ID].best, byID[a.Document.ID].best); c != 0 {
			return c
		}
		return cmp.Compare(a.Document.ID, b.Document.ID)
	})
	return out
}

// reciprocalRank scores a document 1/(k+rank) per list containing it, rank
// starting at 1. A document's fused score is therefore strictly
// non-decreasing in the number of lists that rank it.
type reciprocalRank struct {
	k int
}

func (f reciprocalRank) Fuse(strategyResults map[string][]database.SearchResult) ([]database.SearchResult, error) {
	return merge(strategyResults, func(_ string, rank int, _ database.SearchResult) float64 {
		return 1.0 / float64(f.k+rank+1)
	}), nil
}

// weighted sums each strategy's raw similarity scaled by that strategy's
// weight. Strategies without a configured weight contribute at weight 1.
type weighted struct {
	weights map[string]float64
}

func (f weighted) Fuse(strategyResults map[string][]database.SearchResult) ([]database.SearchResult, error) {
	return merge(strategyResults, func(strategy string, _ int, r database.SearchResult) float64 {
		w, ok := f.weights[strategy]
		if !ok {
			w = 1
		}
		return w * r.Similarity
	}), nil
}
