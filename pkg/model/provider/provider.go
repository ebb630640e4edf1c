package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docker/local-rag-engine/pkg/chat"
	"github.com/docker/local-rag-engine/pkg/config"
	"github.com/docker/local-rag-engine/pkg/environment"
	"github.com/docker/local-rag-engine/pkg/model/provider/base"
	"github.com/docker/local-rag-engine/pkg/model/provider/dmr"
	"github.com/docker/local-rag-engine/pkg/model/provider/openai"
	"github.com/docker/local-rag-engine/pkg/model/provider/options"
	"github.com/docker/local-rag-engine/pkg/model/provider/rulebased"
	"github.com/docker/local-rag-engine/pkg/rag/types"
	"github.com/docker/local-rag-engine/pkg/tools"
)

// Provider defines the interface for model providers
type Provider interface {
	// ID returns the provider's identifier, used in logs and for
	// attributing usage and routing decisions.
	ID() string

	// BaseConfig returns the provider's base configuration, used by
	// CloneWithOptions to rebuild a provider with overridden options.
	BaseConfig() base.Config

	// CreateChatCompletionStream creates a streaming chat completion request
	// It returns a stream that can be iterated over to get completion chunks
	CreateChatCompletionStream(
		ctx context.Context,
		messages []chat.Message,
		tools []tools.Tool,
	) (chat.MessageStream, error)

	CreateChatCompletion(
		ctx context.Context,
		messages []chat.Message,
	) (string, error)
}

// EmbeddingProvider is implemented by providers that can turn text into a
// single embedding vector. pkg/rag/embed.Embedder type-asserts a Provider
// to this interface and fails when the provider does not implement it.
type EmbeddingProvider interface {
	CreateEmbedding(ctx context.Context, text string) (*base.EmbeddingResult, error)
}

// BatchEmbeddingProvider is implemented by providers whose embeddings API
// accepts multiple inputs per call, letting pkg/rag/embed.Embedder batch
// requests instead of issuing one call per chunk.
type BatchEmbeddingProvider interface {
	CreateBatchEmbedding(ctx context.Context, texts []string) (*base.BatchEmbeddingResult, error)
}

// RerankingProvider is implemented by providers that can re-score a set of
// candidate documents against a query, used by the final re-rank stage of
// the retrieval engine (pkg/rag/rerank).
type RerankingProvider interface {
	Rerank(ctx context.Context, query string, documents []types.Document, criteria string) ([]float64, error)
}

// New resolves modelSpec against models and builds the matching provider.
// modelSpec is either a key into models (a named model entry) or a bare
// "provider/model" pair; this dual lookup lets a rule-based router's routing
// rules name either a configured model or an ad hoc provider/model pair.
//
// Through the newForRouter adapter, New is the router's
// rulebased.ProviderFactory, so a routed model's rules can recursively build
// their own sub-providers, including nested routers.
func New(ctx context.Context, modelSpec string, models map[string]config.ModelConfig, env environment.Provider, opts ...options.Opt) (Provider, error) {
	cfg, ok := models[modelSpec]
	if !ok {
		providerName, modelName, found := strings.Cut(modelSpec, "/")
		if !found {
			return nil, fmt.Errorf("unknown model %q: not in models and not a provider/model pair", modelSpec)
		}
		cfg = config.ModelConfig{Provider: providerName, Model: modelName}
	}

	slog.Debug("Creating model provider", "provider", cfg.Provider, "model", cfg.Model)

	if len(cfg.Routing) > 0 {
		return rulebased.NewClient(ctx, &cfg, models, env, newForRouter, opts...)
	}

	switch cfg.Provider {
	case "openai":
		return openai.NewClient(ctx, &cfg, env, opts...)
	case "dmr":
		return dmr.NewClient(ctx, &cfg, opts...)
	}

	// Every other remote is an OpenAI-compatible alias routed through the
	// openai client with a preset endpoint and token variable, unless the
	// config overrides them.
	if alias, ok := Aliases[cfg.Provider]; ok && (alias.BaseURL != "" || cfg.BaseURL != "") {
		if cfg.BaseURL == "" {
			cfg.BaseURL = alias.BaseURL
		}
		if cfg.TokenKey == "" {
			cfg.TokenKey = alias.TokenKey
		}
		return openai.NewClient(ctx, &cfg, env, opts...)
	}

	return nil, fmt.Errorf("unknown provider type: %s", cfg.Provider)
}

// newForRouter adapts New to rulebased.ProviderFactory: identical signature
// except for its narrower return interface, which New's result satisfies.
func newForRouter(ctx context.Context, modelSpec string, models map[string]config.ModelConfig, env environment.Provider, opts ...options.Opt) (rulebased.Provider, error) {
	return New(ctx, modelSpec, models, env, opts...)
}
