// Package openai implements the engine's remote model provider on the
// OpenAI chat-completions wire format. Besides api.openai.com it serves
// every OpenAI-compatible endpoint the provider catalog lists (Anthropic,
// Gemini, Mistral, Ollama, ...) by swapping the base URL and token variable.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/docker/local-rag-engine/pkg/chat"
	latest "github.com/docker/local-rag-engine/pkg/config"
	"github.com/docker/local-rag-engine/pkg/environment"
	"github.com/docker/local-rag-engine/pkg/httpclient"
	"github.com/docker/local-rag-engine/pkg/model/provider/base"
	"github.com/docker/local-rag-engine/pkg/model/provider/oaistream"
	"github.com/docker/local-rag-engine/pkg/model/provider/options"
	"github.com/docker/local-rag-engine/pkg/rag/prompts"
	"github.com/docker/local-rag-engine/pkg/rag/types"
	"github.com/docker/local-rag-engine/pkg/tools"
)

// Client speaks the OpenAI chat-completions, embeddings, and (via a prompted
// chat call) reranking APIs. It implements provider.Provider.
type Client struct {
	base.Config
	client openai.Client
}

// NewClient builds a client for cfg. The auth token is read from the env
// var named by cfg.TokenKey when set; otherwise the SDK's own default
// (OPENAI_API_KEY) applies. Azure deployments pass their api-version
// through ProviderOpts.
func NewClient(ctx context.Context, cfg *latest.ModelConfig, env environment.Provider, opts ...options.Opt) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("model configuration is required")
	}

	var modelOptions options.ModelOptions
	for _, opt := range opts {
		opt(&modelOptions)
	}

	clientOptions := []option.RequestOption{
		option.WithHTTPClient(httpclient.NewHTTPClient(httpclient.WithModelName(cfg.Name))),
	}

	if cfg.TokenKey != "" {
		token, _ := env.Get(ctx, cfg.TokenKey)
		if token == "" {
			return nil, fmt.Errorf("%s environment variable is required", cfg.TokenKey)
		}
		clientOptions = append(clientOptions, option.WithAPIKey(token))
	}

	if cfg.BaseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Provider == "azure" {
		if v, ok := cfg.ProviderOpts["api_version"].(string); ok {
			clientOptions = append(clientOptions, option.WithQueryAdd("api-version", v))
		}
	}

	slog.Debug("OpenAI client created", "provider", cfg.Provider, "model", cfg.Model, "base_url", cfg.BaseURL)

	return &Client{
		Config: base.Config{
			ModelConfig:  *cfg,
			ModelOptions: modelOptions,
			Env:          env,
		},
		client: openai.NewClient(clientOptions...),
	}, nil
}

// CreateChatCompletionStream starts a streaming chat completion. The stream
// is adapted to the provider-agnostic chat.MessageStream shape.
func (c *Client) CreateChatCompletionStream(ctx context.Context, messages []chat.Message, requestTools []tools.Tool) (chat.MessageStream, error) {
	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	trackUsage := c.ModelConfig.TrackUsage == nil || *c.ModelConfig.TrackUsage

	params := openai.ChatCompletionNewParams{
		Model:    c.ModelConfig.Model,
		Messages: oaistream.ConvertMessages(messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(trackUsage),
		},
	}
	c.applySampling(&params)

	if maxTokens := c.ModelConfig.MaxTokens; maxTokens != nil && *maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(*maxTokens)
	}

	if len(requestTools) > 0 {
		toolsParam := make([]openai.ChatCompletionToolUnionParam, len(requestTools))
		for i, tool := range requestTools {
			parameters, err := ConvertParametersToSchema(tool.Parameters)
			if err != nil {
				return nil, fmt.Errorf("converting parameters of tool %s: %w", tool.Name, err)
			}
			toolsParam[i] = openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  parameters,
			})
		}
		params.Tools = toolsParam
		if c.ModelConfig.ParallelToolCalls != nil {
			params.ParallelToolCalls = openai.Bool(*c.ModelConfig.ParallelToolCalls)
		}
	}

	if c.ModelConfig.ThinkingBudget != nil {
		effort, err := getOpenAIReasoningEffort(&c.ModelConfig)
		if err != nil {
			return nil, err
		}
		if effort != "" {
			params.ReasoningEffort = shared.ReasoningEffort(effort)
		}
	}

	if structuredOutput := c.ModelOptions.StructuredOutput(); structuredOutput != nil {
		params.ResponseFormat.OfJSONSchema = &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        structuredOutput.Name,
				Description: openai.String(structuredOutput.Description),
				Schema:      jsonSchema(structuredOutput.Schema.(map[string]any)),
				Strict:      openai.Bool(structuredOutput.Strict),
			},
		}
	}

	slog.Debug("OpenAI chat completion stream starting",
		"model", c.ModelConfig.Model,
		"message_count", len(messages),
		"tool_count", len(requestTools))

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	return oaistream.NewStreamAdapter(stream, trackUsage), nil
}

// CreateChatCompletion performs a single blocking completion by draining
// the stream and concatenating its content deltas.
func (c *Client) CreateChatCompletion(ctx context.Context, messages []chat.Message) (string, error) {
	stream, err := c.CreateChatCompletionStream(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var content strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		for _, choice := range resp.Choices {
			content.WriteString(choice.Delta.Content)
		}
	}
	return content.String(), nil
}

// applySampling copies the config's pointer-typed sampling knobs onto params,
// leaving unset knobs at the server default.
func (c *Client) applySampling(params *openai.ChatCompletionNewParams) {
	if c.ModelConfig.Temperature != nil {
		params.Temperature = openai.Float(*c.ModelConfig.Temperature)
	}
	if c.ModelConfig.TopP != nil {
		params.TopP = openai.Float(*c.ModelConfig.TopP)
	}
	if c.ModelConfig.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*c.ModelConfig.FrequencyPenalty)
	}
	if c.ModelConfig.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*c.ModelConfig.PresencePenalty)
	}
}

// CreateEmbedding generates one embedding vector.
func (c *Client) CreateEmbedding(ctx context.Context, text string) (*base.EmbeddingResult, error) {
	batch, err := c.CreateBatchEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(batch.Embeddings) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return &base.EmbeddingResult{
		Embedding:   batch.Embeddings[0],
		InputTokens: batch.InputTokens,
		TotalTokens: batch.TotalTokens,
	}, nil
}

// CreateBatchEmbedding generates embedding vectors for up to 2048 texts in
// one request, the API's per-call input limit.
func (c *Client) CreateBatchEmbedding(ctx context.Context, texts []string) (*base.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return &base.BatchEmbeddingResult{Embeddings: [][]float64{}}, nil
	}
	const maxBatchSize = 2048
	if len(texts) > maxBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds the limit of %d", len(texts), maxBatchSize)
	}

	response, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: c.ModelConfig.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating batch embeddings: %w", err)
	}
	if len(response.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(response.Data))
	}

	embeddings := make([][]float64, len(response.Data))
	for i, data := range response.Data {
		vec := make([]float64, len(data.Embedding))
		copy(vec, data.Embedding)
		embeddings[i] = vec
	}

	return &base.BatchEmbeddingResult{
		Embeddings:  embeddings,
		InputTokens: response.Usage.PromptTokens,
		TotalTokens: response.Usage.TotalTokens,
	}, nil
}

// Rerank scores documents against the query with a structured-output chat
// call, returning one score per document in input order.
func (c *Client) Rerank(ctx context.Context, query string, documents []types.Document, criteria string) ([]float64, error) {
	if len(documents) == 0 {
		return []float64{}, nil
	}

	userPrompt := prompts.BuildRerankDocumentsPrompt(query, documents)
	jsonFormatInstruction := `You MUST respond with ONLY valid JSON in this exact format and nothing else:
{"scores":[s0,s1,...,sN]} where there is exactly one numeric score per document in order.`
	systemPrompt := prompts.BuildRerankSystemPrompt(documents, criteria, c.ModelConfig.ProviderOpts, jsonFormatInstruction)

	params := openai.ChatCompletionNewParams{
		Model: c.ModelConfig.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	}
	c.applySampling(&params)
	if c.ModelConfig.Temperature == nil {
		// Deterministic scoring unless the config explicitly asks otherwise.
		params.Temperature = openai.Float(0.0)
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"scores": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "number"},
			},
		},
		"required":             []string{"scores"},
		"additionalProperties": false,
	}
	params.ResponseFormat.OfJSONSchema = &openai.ResponseFormatJSONSchemaParam{
		JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:        "rerank_scores",
			Description: openai.String("Relevance scores for each document, in input order."),
			Schema:      jsonSchema(schema),
			Strict:      openai.Bool(false),
		},
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("rerank response contained no choices")
	}

	scores, err := parseRerankScores(resp.Choices[0].Message.Content, len(documents))
	if err != nil {
		return nil, err
	}

	slog.Debug("OpenAI reranking complete", "model", c.ModelConfig.Model, "num_scores", len(scores))
	return scores, nil
}

// parseRerankScores parses {"scores":[...]} and validates the count. When
// the model wrapped the JSON in prose, the first {...} block is retried.
func parseRerankScores(raw string, expected int) ([]float64, error) {
	type rerankResponse struct {
		Scores []float64 `json:"scores"`
	}

	tryParse := func(s string) ([]float64, error) {
		var rr rerankResponse
		if err := json.Unmarshal([]byte(s), &rr); err != nil {
			return nil, err
		}
		if len(rr.Scores) != expected {
			return nil, fmt.Errorf("expected %d scores, got %d", expected, len(rr.Scores))
		}
		return rr.Scores, nil
	}

	raw = strings.TrimSpace(raw)
	if scores, err := tryParse(raw); err == nil {
		return scores, nil
	}
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		if scores, err := tryParse(raw[start : end+1]); err == nil {
			return scores, nil
		}
	}
	return nil, fmt.Errorf("invalid rerank JSON: %s", raw)
}

func isOpenAIReasoningModel(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "o1") ||
		strings.HasPrefix(m, "o3") ||
		strings.HasPrefix(m, "o4") ||
		strings.HasPrefix(m, "gpt-5")
}

// getOpenAIReasoningEffort resolves the reasoning effort value from the
// model configuration's ThinkingBudget. Returns the effort (minimal|low|medium|high) or an error
func getOpenAIReasoningEffort(cfg *latest.ModelConfig) (effort string, err error) {
	if cfg == nil || cfg.ThinkingBudget == nil {
		return "", nil
	}

	if !isOpenAIReasoningModel(cfg.Model) {
		slog.Warn("OpenAI reasoning effort is not supported for this model, ignoring thinking_budget", "model", cfg.Model)
		return "", nil
	}

	effort = strings.TrimSpace(strings.ToLower(cfg.ThinkingBudget.Effort))
	if effort == "minimal" || effort == "low" || effort == "medium" || effort == "high" {
		return effort, nil
	}

	return "", fmt.Errorf("OpenAI requests only support 'minimal', 'low', 'medium', 'high' as values for thinking_budget effort, got effort: '%s', tokens: '%d'", effort, cfg.ThinkingBudget.Tokens)
}

// jsonSchema is a helper type that implements json.Marshaler for map[string]any
// This allows us to pass schema maps to the OpenAI library which expects json.Marshaler
type jsonSchema map[string]any

func (j jsonSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(j))
}
