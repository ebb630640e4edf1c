// Package retrieval implements the query-time pipeline: routing and
// rewriting, parallel dense/lexical retrieval, fusion, content boosting,
// neighbour expansion, and citation validation, composed around the
// embedder (pkg/rag/embed), vector store, and text index.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/docker/local-rag-engine/pkg/chat"
	ragdb "github.com/docker/local-rag-engine/pkg/rag/database"
	"github.com/docker/local-rag-engine/pkg/rag/embed"
	"github.com/docker/local-rag-engine/pkg/rag/fusion"
	"github.com/docker/local-rag-engine/pkg/rag/rerank"
	"github.com/docker/local-rag-engine/pkg/store"
)

// Config holds the retrieval tunables deliberately left open as
// configuration: RRF constant, dense/lexical weights, fan-out multiplier.
type Config struct {
	TopK              int     // final result count
	CandidateMultiple int     // k passed to the stores is TopK * CandidateMultiple
	RRFConstant       int     // default 60
	DenseWeight       float64 // reserved for a future weighted-fusion pass
	LexicalWeight     float64
	NeighbourTop      int // N in "top N survivors" for neighbour expansion
	NeighbourWindow   int
}

// DefaultConfig returns the engine's documented defaults: RRF k=60, and
// equal dense/lexical weighting absent a canonical default.
func DefaultConfig() Config {
	return Config{
		TopK:              10,
		CandidateMultiple: 5,
		RRFConstant:       60,
		DenseWeight:       0.5,
		LexicalWeight:     0.5,
		NeighbourTop:      3,
		NeighbourWindow:   1,
	}
}

// Engine is the hybrid retrieval engine.
type Engine struct {
	cfg       Config
	embedder  *embed.Embedder
	store     *store.Store
	textIndex *store.TextIndex
	router    *Router
	fuseRRF   fusion.Fusion
	reranker  rerank.Reranker // optional; set via SetReranker
	logger    *slog.Logger
}

// SetReranker attaches an optional re-ranking pass that re-scores the
// content-boosted hit set with an LLM reranking model before neighbour
// expansion. Search skips this stage entirely when no reranker has been set.
func (e *Engine) SetReranker(r rerank.Reranker) {
	e.reranker = r
}

// New builds an Engine from its component parts. router may be nil, in
// which case Search skips the route/rewrite stage and uses the raw query.
func New(cfg Config, embedder *embed.Embedder, vecStore *store.Store, textIdx *store.TextIndex, router *Router, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fuseRRF, err := fusion.New(fusion.Config{Strategy: "rrf", K: cfg.RRFConstant})
	if err != nil {
		return nil, fmt.Errorf("building fusion strategy: %w", err)
	}
	return &Engine{
		cfg:       cfg,
		embedder:  embedder,
		store:     vecStore,
		textIndex: textIdx,
		router:    router,
		fuseRRF:   fuseRRF,
		logger:    logger,
	}, nil
}

// Result is the final, fully-processed outcome of a Search call.
type Result struct {
	Route      RouteResult
	Hits       []ExpandedHit
	TotalFound int
}

// tracer emits no-op spans unless the process installed a tracer provider
// (cmd/engine's --otel flag).
var tracer = otel.Tracer("github.com/docker/local-rag-engine/pkg/retrieval")

// Search runs the full hybrid pipeline: route & rewrite, dense + lexical
// retrieval per variant, fusion, content boost, neighbour expansion.
func (e *Engine) Search(ctx context.Context, history []chat.Message, query string, pred store.Predicate) (Result, error) {
	ctx, span := tracer.Start(ctx, "retrieval.search")
	defer span.End()

	result, err := e.search(ctx, history, query, pred)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return result, err
	}
	span.SetAttributes(
		attribute.String("intent", string(result.Route.Intent)),
		attribute.Int("hits", len(result.Hits)),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func (e *Engine) search(ctx context.Context, history []chat.Message, query string, pred store.Predicate) (Result, error) {
	route := RouteResult{Intent: IntentSearch, RewrittenQuery: query, Variants: []string{query}}
	if e.router != nil {
		route = e.router.Route(ctx, history, query)
	}
	variants := route.Variants
	if len(variants) == 0 {
		variants = []string{route.RewrittenQuery}
	}

	k := e.cfg.TopK * e.cfg.CandidateMultiple
	if k <= 0 {
		k = 50
	}

	var mu sync.Mutex
	strategyResults := make(map[string][]ragdb.SearchResult)
	seen := make(map[string]store.Hit) // chunk id -> fullest hit seen, for re-hydration after fusion

	g, gctx := errgroup.WithContext(ctx)
	for i, variant := range variants {
		i, variant := i, variant
		g.Go(func() error {
			dense, lexical, err := e.retrieveVariant(gctx, variant, k, pred)
			if err != nil {
				return err
			}
			mu.Lock()
			strategyResults[fmt.Sprintf("dense_%d", i)] = toSearchResults(dense)
			strategyResults[fmt.Sprintf("lexical_%d", i)] = toSearchResults(lexical)
			for _, h := range dense {
				seen[h.Chunk.ID] = h
			}
			for _, h := range lexical {
				seen[h.Chunk.ID] = h
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	fused, err := e.fuseRRF.Fuse(strategyResults)
	if err != nil {
		return Result{}, fmt.Errorf("fusing retrieval results: %w", err)
	}

	hits := make([]store.Hit, 0, len(fused))
	for _, r := range fused {
		full, ok := seen[r.Document.ID]
		if !ok {
			continue
		}
		hits = append(hits, store.Hit{Chunk: full.Chunk, Score: r.Similarity})
	}

	hits = ContentBoost(route.RewrittenQuery, hits)
	if len(hits) > k {
		hits = hits[:k]
	}

	if e.reranker != nil {
		hits, err = e.rerankHits(ctx, route.RewrittenQuery, hits)
		if err != nil {
			return Result{}, fmt.Errorf("reranking: %w", err)
		}
	}

	expanded, err := ExpandNeighbours(ctx, e.store, hits, e.cfg.NeighbourTop, e.cfg.NeighbourWindow)
	if err != nil {
		return Result{}, err
	}

	return Result{Route: route, Hits: expanded, TotalFound: len(hits)}, nil
}

// retrieveVariant runs dense and lexical retrieval for one query
// variant, resolving lexical hits (which carry only ids and scores) back to
// full chunks via a predicate-filtered store listing.
func (e *Engine) retrieveVariant(ctx context.Context, variant string, k int, pred store.Predicate) (dense, lexical []store.Hit, err error) {
	vector, err := e.embedder.Embed(ctx, "query: "+variant)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding query: %w", err)
	}

	dense, err = e.store.Search(ctx, vector, k, pred)
	if err != nil {
		return nil, nil, fmt.Errorf("dense search: %w", err)
	}

	textHits, err := e.textIndex.Search(variant, k)
	if err != nil {
		return nil, nil, fmt.Errorf("lexical search: %w", err)
	}
	lexical, err = e.resolveTextHits(ctx, textHits, pred)
	if err != nil {
		return nil, nil, err
	}
	return dense, lexical, nil
}

func (e *Engine) resolveTextHits(ctx context.Context, textHits []store.TextHit, pred store.Predicate) ([]store.Hit, error) {
	if len(textHits) == 0 {
		return nil, nil
	}
	byID := make(map[string]float64, len(textHits))
	for _, th := range textHits {
		byID[th.ID] = th.Score
	}

	all, err := e.store.List(ctx, pred, 0)
	if err != nil {
		return nil, err
	}

	hits := make([]store.Hit, 0, len(textHits))
	for _, h := range all {
		if score, ok := byID[h.Chunk.ID]; ok {
			hits = append(hits, store.Hit{Chunk: h.Chunk, Score: score})
		}
	}
	return hits, nil
}

// rerankHits re-scores hits with the attached reranker, re-hydrating each
// returned SearchResult back into a store.Hit by chunk id so callers keep
// full chunk data (vector, metadata, citation) the reranker's narrower
// database.Document currency doesn't carry.
func (e *Engine) rerankHits(ctx context.Context, query string, hits []store.Hit) ([]store.Hit, error) {
	byID := make(map[string]store.Hit, len(hits))
	for _, h := range hits {
		byID[h.Chunk.ID] = h
	}

	reranked, err := e.reranker.Rerank(ctx, query, toSearchResults(hits))
	if err != nil {
		return nil, err
	}

	out := make([]store.Hit, 0, len(reranked))
	for _, r := range reranked {
		h, ok := byID[r.Document.ID]
		if !ok {
			continue
		}
		h.Score = r.Similarity
		out = append(out, h)
	}
	return out, nil
}

// toSearchResults adapts store.Hit into the generic fusion and reranking
// currency (pkg/rag/database.SearchResult), carrying the chunk id, source,
// chunk index, text and score; the full chunk is re-hydrated afterwards by
// id (from the seen map in search, or by rerankHits).
func toSearchResults(hits []store.Hit) []ragdb.SearchResult {
	out := make([]ragdb.SearchResult, len(hits))
	for i, h := range hits {
		out[i] = ragdb.SearchResult{
			Document: ragdb.Document{
				ID:         h.Chunk.ID,
				SourcePath: h.Chunk.Source,
				ChunkIndex: h.Chunk.ChunkIndex,
				Content:    h.Chunk.Text,
			},
			Similarity: h.Score,
		}
	}
	return out
}
