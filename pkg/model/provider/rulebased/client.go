// Package rulebased implements deterministic model routing: a model entry
// with routing rules becomes a router whose rules each map example phrases
// to a target model, with the entry's own provider/model as the fallback.
// The last user message is matched against the indexed examples and the
// best-scoring rule's provider handles the call.
package rulebased

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"

	"github.com/docker/local-rag-engine/pkg/chat"
	latest "github.com/docker/local-rag-engine/pkg/config"
	"github.com/docker/local-rag-engine/pkg/environment"
	"github.com/docker/local-rag-engine/pkg/model/provider/base"
	"github.com/docker/local-rag-engine/pkg/model/provider/options"
	"github.com/docker/local-rag-engine/pkg/tools"
)

// Provider is the slice of the provider interface a router needs from the
// models it routes between.
type Provider interface {
	ID() string
	CreateChatCompletionStream(
		ctx context.Context,
		messages []chat.Message,
		availableTools []tools.Tool,
	) (chat.MessageStream, error)
	CreateChatCompletion(ctx context.Context, messages []chat.Message) (string, error)
	BaseConfig() base.Config
}

// ProviderFactory builds a provider for a model spec. The models map lets
// routing rules reference configured model entries by name.
type ProviderFactory func(ctx context.Context, modelSpec string, models map[string]latest.ModelConfig, env environment.Provider, opts ...options.Opt) (Provider, error)

// Client routes chat calls to per-rule providers. It implements the same
// Provider interface it routes between, so routers nest.
type Client struct {
	base.Config
	routes   []route
	fallback Provider
	index    bleve.Index
}

type route struct {
	model    string
	provider Provider
}

// NewClient builds a router from cfg's routing rules, indexing every
// rule's example phrases and constructing one provider per rule plus the
// fallback named by cfg's own provider/model pair.
func NewClient(ctx context.Context, cfg *latest.ModelConfig, models map[string]latest.ModelConfig, env environment.Provider, providerFactory ProviderFactory, opts ...options.Opt) (*Client, error) {
	if len(cfg.Routing) == 0 {
		return nil, fmt.Errorf("no routing rules configured")
	}
	slog.Debug("creating rule-based router", "provider", cfg.Provider, "model", cfg.Model)

	index, err := createIndex()
	if err != nil {
		return nil, fmt.Errorf("creating bleve index: %w", err)
	}
	fail := func(err error) (*Client, error) {
		_ = index.Close()
		return nil, err
	}

	fallbackSpec := cfg.Provider + "/" + cfg.Model
	fallback, err := providerFactory(ctx, fallbackSpec, models, env, filterOutMaxTokens(opts)...)
	if err != nil {
		return fail(fmt.Errorf("creating fallback provider %q: %w", fallbackSpec, err))
	}

	client := &Client{
		Config: base.Config{
			ModelConfig: *cfg,
			Models:      models,
			Env:         env,
		},
		index:    index,
		fallback: fallback,
	}

	for i, rule := range cfg.Routing {
		if rule.Model == "" {
			return fail(fmt.Errorf("routing rule %d: 'model' field is required", i))
		}
		provider, err := providerFactory(ctx, rule.Model, models, env, filterOutMaxTokens(opts)...)
		if err != nil {
			return fail(fmt.Errorf("creating provider for routing rule %q: %w", rule.Model, err))
		}

		routeIndex := len(client.routes)
		client.routes = append(client.routes, route{model: rule.Model, provider: provider})

		for j, example := range rule.Examples {
			docID := fmt.Sprintf("r%d_e%d", routeIndex, j)
			if err := index.Index(docID, map[string]any{"text": example, "route": routeIndex}); err != nil {
				return fail(fmt.Errorf("indexing example: %w", err))
			}
		}
	}

	return client, nil
}

// createIndex builds the in-memory example index with English analysis on
// the phrase text.
func createIndex() (bleve.Index, error) {
	indexMapping := mapping.NewIndexMapping()

	docMapping := mapping.NewDocumentMapping()
	textField := mapping.NewTextFieldMapping()
	textField.Analyzer = "en"
	docMapping.AddFieldMappingsAt("text", textField)
	docMapping.AddFieldMappingsAt("route", mapping.NewNumericFieldMapping())
	indexMapping.DefaultMapping = docMapping

	return bleve.NewMemOnly(indexMapping)
}

// filterOutMaxTokens strips WithMaxTokens from the option set handed to
// child providers: each routed model owns its own completion budget.
func filterOutMaxTokens(opts []options.Opt) []options.Opt {
	var filtered []options.Opt
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		var probe options.ModelOptions
		opt(&probe)
		if probe.MaxTokens() != 0 {
			continue
		}
		filtered = append(filtered, opt)
	}
	return filtered
}

func (c *Client) ID() string {
	return c.fallback.ID()
}

// CreateChatCompletionStream routes the call to the best-matching provider.
func (c *Client) CreateChatCompletionStream(ctx context.Context, messages []chat.Message, availableTools []tools.Tool) (chat.MessageStream, error) {
	provider := c.selectProvider(messages)
	if provider == nil {
		return nil, fmt.Errorf("no provider available for routing")
	}
	slog.Debug("rule-based router selected model", "router", c.ID(), "selected_model", provider.ID())
	return provider.CreateChatCompletionStream(ctx, messages, availableTools)
}

// CreateChatCompletion routes the call to the best-matching provider.
func (c *Client) CreateChatCompletion(ctx context.Context, messages []chat.Message) (string, error) {
	provider := c.selectProvider(messages)
	if provider == nil {
		return "", fmt.Errorf("no provider available for routing")
	}
	slog.Debug("rule-based router selected model", "router", c.ID(), "selected_model", provider.ID())
	return provider.CreateChatCompletion(ctx, messages)
}

// selectProvider matches the last user message against the indexed
// examples; any failure or empty result falls back to the default.
func (c *Client) selectProvider(messages []chat.Message) Provider {
	userMessage := getLastUserMessage(messages)
	if userMessage == "" {
		return c.defaultProvider()
	}

	query := bleve.NewMatchQuery(userMessage)
	query.SetField("text")
	searchRequest := bleve.NewSearchRequest(query)
	searchRequest.Size = 10
	searchRequest.Fields = []string{"route"}

	results, err := c.index.Search(searchRequest)
	if err != nil {
		slog.Error("bleve search failed", "error", err)
		return c.defaultProvider()
	}
	if results.Total == 0 {
		return c.defaultProvider()
	}

	if best := bestRoute(results.Hits); best >= 0 && best < len(c.routes) {
		slog.Debug("route matched", "model", c.routes[best].model)
		return c.routes[best].provider
	}
	return c.defaultProvider()
}

// bestRoute picks the route whose best-scoring example won, decoding the
// route index back out of the "r{route}_e{example}" doc ids.
func bestRoute(hits search.DocumentMatchCollection) int {
	scores := make(map[int]float64)
	for _, hit := range hits {
		var routeIdx int
		if _, err := fmt.Sscanf(hit.ID, "r%d_e", &routeIdx); err == nil {
			scores[routeIdx] = max(scores[routeIdx], hit.Score)
		}
	}

	best, bestScore := -1, 0.0
	for idx, score := range scores {
		if score > bestScore {
			best, bestScore = idx, score
		}
	}
	return best
}

func (c *Client) defaultProvider() Provider {
	if c.fallback != nil {
		return c.fallback
	}
	if len(c.routes) > 0 {
		return c.routes[0].provider
	}
	return nil
}

func getLastUserMessage(messages []chat.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.MessageRoleUser {
			return messages[i].Content
		}
	}
	return ""
}

func (c *Client) BaseConfig() base.Config {
	return c.Config
}

// Close releases the example index.
func (c *Client) Close() error {
	if c.index != nil {
		return c.index.Close()
	}
	return nil
}
