package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/errgroup"

	"github.com/docker/local-rag-engine/pkg/model/provider"
	"github.com/docker/local-rag-engine/pkg/tokenizer"
)

// defaultCacheSize bounds the embedding LRU cache entry count.
const defaultCacheSize = 1024

// Embedder generates vector embeddings for text
type Embedder struct {
	provider       provider.Provider
	usageHandler   func(tokens int64, cost float64) // Callback to emit usage events
	batchSize      int                              // Batch size for API calls
	maxConcurrency int                              // Maximum concurrent embedding batch requests
	tokenizer      *tokenizer.Tokenizer             // Optional: truncates inputs to the model's token cap

	cacheMu sync.Mutex
	cache   *lru.Cache // (mode, hash(text)) -> []float64
}

// Option is a functional option for configuring the Embedder
type Option func(*Embedder)

// WithTokenizer truncates every input to the tokenizer's length cap before
// it reaches the provider, so an oversized chunk degrades to a shorter
// embedding input instead of a provider-side error.
func WithTokenizer(t *tokenizer.Tokenizer) Option {
	return func(e *Embedder) {
		e.tokenizer = t
	}
}

// WithBatchSize sets the batch size for embedding API calls (default: 8)
func WithBatchSize(size int) Option {
	return func(e *Embedder) {
		e.batchSize = size
	}
}

// WithMaxConcurrency sets the maximum concurrent embedding batch requests (default: 5)
func WithMaxConcurrency(maxConcurrency int) Option {
	return func(e *Embedder) {
		e.maxConcurrency = maxConcurrency
	}
}

// New creates a new embedder using a model provider with optional configuration
func New(p provider.Provider, opts ...Option) *Embedder {
	e := &Embedder{
		provider:       p,
		batchSize:      8,
		maxConcurrency: 5,
		cache:          lru.New(defaultCacheSize),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// SetUsageHandler sets a callback to be called after each embedding with usage info
func (e *Embedder) SetUsageHandler(handler func(tokens int64, cost float64)) {
	e.usageHandler = handler
}

// Embed generates an embedding for a single text
// Emits usage event immediately via handler if set
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	text = e.truncate(text)

	if cached, ok := e.cacheGet(text); ok {
		return cached, nil
	}

	// Try to use the provider's embedding API if it implements EmbeddingProvider.
	if embeddingProvider, ok := e.provider.(provider.EmbeddingProvider); ok {
		result, err := embeddingProvider.CreateEmbedding(ctx, text)
		if err != nil {
			return nil, err
		}
		e.cachePut(text, result.Embedding)

		// Emit usage event immediately
		if e.usageHandler != nil {
			e.usageHandler(result.TotalTokens, result.Cost)
		}

		slog.Debug("Embedding generated",
			"provider", e.provider.ID(),
			"tokens", result.TotalTokens,
			"cost", result.Cost)

		return result.Embedding, nil
	}

	// Provider does not support embeddings via the standard interface; fail fast.
	return nil, fmt.Errorf("provider %s does not support embeddings", e.provider.ID())
}

// EmbedBatch generates embeddings for multiple texts using intelligent batching
// If the provider supports batch embeddings, it will use parallel batch API calls
// Otherwise, it falls back to sequential processing
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	if e.tokenizer != nil {
		truncated := make([]string, len(texts))
		for i, text := range texts {
			truncated[i] = e.truncate(text)
		}
		texts = truncated
	}

	// Check if provider supports batch embeddings.
	if batchProvider, ok := e.provider.(provider.BatchEmbeddingProvider); ok {
		return e.embedBatchOptimized(ctx, batchProvider, texts)
	}

	// Fall back to sequential processing for providers without batch support
	slog.Debug("Provider doesn't support batch embeddings, using sequential processing",
		"provider", e.provider.ID(),
		"text_count", len(texts))

	embeddings := make([][]float64, len(texts))
	for i, text := range texts {
		embedding, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		embeddings[i] = embedding
	}

	return embeddings, nil
}

// embedBatchOptimized processes texts in optimized batches with parallel API
// calls, serving cache hits up front so only the misses reach the provider.
func (e *Embedder) embedBatchOptimized(ctx context.Context, batchProvider provider.BatchEmbeddingProvider, texts []string) ([][]float64, error) {
	embeddings := make([][]float64, len(texts))
	var missing []int
	for i, text := range texts {
		if cached, ok := e.cacheGet(text); ok {
			embeddings[i] = cached
		} else {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return embeddings, nil
	}

	totalTexts := len(missing)
	slog.Debug("Starting optimized batch embedding",
		"provider", e.provider.ID(),
		"total_texts", len(texts),
		"cache_hits", len(texts)-totalTexts,
		"batch_size", e.batchSize,
		"max_concurrency", e.maxConcurrency)

	var mu sync.Mutex

	// Create errgroup with concurrency limit
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)

	// Process batches in parallel
	for start := 0; start < totalTexts; start += e.batchSize {
		end := min(start+e.batchSize, totalTexts)

		g.Go(func() error {
			indices := missing[start:end]
			batchTexts := make([]string, len(indices))
			for i, idx := range indices {
				batchTexts[i] = texts[idx]
			}
			batchNum := start/e.batchSize + 1
			numBatches := (totalTexts + e.batchSize - 1) / e.batchSize

			slog.Debug("Processing batch",
				"batch", batchNum,
				"total_batches", numBatches,
				"batch_size", len(batchTexts),
				"start_idx", start)

			// Make batch API call
			result, err := batchProvider.CreateBatchEmbedding(ctx, batchTexts)
			if err != nil {
				return fmt.Errorf("batch %d failed: %w", batchNum, err)
			}

			// Store results (mutex protects slice writes)
			mu.Lock()
			for i, idx := range indices {
				if i < len(result.Embeddings) {
					embeddings[idx] = result.Embeddings[i]
				}
			}
			mu.Unlock()
			for i, idx := range indices {
				if i < len(result.Embeddings) {
					e.cachePut(texts[idx], result.Embeddings[i])
				}
			}

			// Emit usage event (handler should be thread-safe)
			if e.usageHandler != nil {
				e.usageHandler(result.TotalTokens, result.Cost)
			}

			slog.Debug("Batch completed",
				"batch", batchNum,
				"embeddings", len(result.Embeddings),
				"tokens", result.TotalTokens,
				"cost", result.Cost)

			return nil
		})
	}

	// Wait for all batches and return first error if any
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("Batch embedding completed",
		"provider", e.provider.ID(),
		"total_embeddings", len(embeddings),
		"batches_processed", (totalTexts+e.batchSize-1)/e.batchSize)

	return embeddings, nil
}

// cacheKey derives the LRU key: the embedding mode (read off the E5-style
// "query: "/"passage: " marker the callers prepend) plus a hash of the full
// text, so the same content embedded in both modes gets two entries.
func cacheKey(text string) string {
	mode := "passage"
	if strings.HasPrefix(text, "query: ") {
		mode = "query"
	}
	sum := sha256.Sum256([]byte(text))
	return mode + ":" + hex.EncodeToString(sum[:])
}

func (e *Embedder) cacheGet(text string) ([]float64, bool) {
	if e.cache == nil {
		return nil, false
	}
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	v, ok := e.cache.Get(cacheKey(text))
	if !ok {
		return nil, false
	}
	return v.([]float64), true
}

func (e *Embedder) cachePut(text string, vec []float64) {
	if e.cache == nil || vec == nil {
		return
	}
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache.Add(cacheKey(text), vec)
}

// truncate enforces the tokenizer's length cap when one is configured. The
// round-trip through Encode/Decode snaps the cut to a token boundary, never
// mid-character.
func (e *Embedder) truncate(text string) string {
	if e.tokenizer == nil {
		return text
	}
	ids := e.tokenizer.Encode(text, false)
	if len(ids) < tokenizer.MaxTokens {
		return text
	}
	return e.tokenizer.Decode(ids, true)
}
