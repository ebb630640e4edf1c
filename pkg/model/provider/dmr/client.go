// Package dmr implements the engine's local model provider: a client for a
// model-runner process serving GGUF models through llama.cpp behind an
// OpenAI-compatible HTTP API on localhost. This is the default inference
// path; no request leaves the machine.
package dmr

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/docker/local-rag-engine/pkg/chat"
	latest "github.com/docker/local-rag-engine/pkg/config"
	"github.com/docker/local-rag-engine/pkg/model/provider/base"
	"github.com/docker/local-rag-engine/pkg/model/provider/oaistream"
	"github.com/docker/local-rag-engine/pkg/model/provider/options"
	"github.com/docker/local-rag-engine/pkg/rag/types"
	"github.com/docker/local-rag-engine/pkg/tools"
)

const (
	// inferencePrefix is the path prefix the model runner serves its
	// OpenAI-compatible API under.
	inferencePrefix = "/engines"

	// defaultPort is the model runner's standard listen port.
	defaultPort = "12434"

	// configureTimeout bounds the model-configure request so client
	// construction never stalls on a wedged runner.
	configureTimeout = 10 * time.Second

	// connectivityTimeout bounds each endpoint probe when resolving which
	// candidate URL actually has a runner behind it.
	connectivityTimeout = 2 * time.Second
)

// Client talks to a local model runner. It implements provider.Provider.
type Client struct {
	base.Config
	client     openai.Client
	baseURL    string
	httpClient *http.Client
}

// NewClient resolves the runner endpoint, pushes the model's runtime
// configuration to it, and returns a ready client.
func NewClient(ctx context.Context, cfg *latest.ModelConfig, opts ...options.Opt) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("model configuration is required")
	}
	if cfg.Provider != "dmr" {
		return nil, errors.New("model type must be 'dmr'")
	}

	var modelOptions options.ModelOptions
	for _, opt := range opts {
		opt(&modelOptions)
	}

	httpClient := &http.Client{}
	baseURL := resolveBaseURL(ctx, cfg, httpClient)

	// Push context size and engine flags before the first completion. A
	// refused configure call is not fatal: older runners apply defaults.
	if !modelOptions.GeneratingTitle() {
		if err := configureModel(ctx, httpClient, baseURL, cfg); err != nil {
			slog.Debug("model configure via API skipped or failed", "error", err)
		}
	}

	slog.Debug("DMR client created", "model", cfg.Model, "base_url", baseURL)

	return &Client{
		Config: base.Config{
			ModelConfig:  *cfg,
			ModelOptions: modelOptions,
		},
		client:     openai.NewClient(option.WithBaseURL(baseURL), option.WithAPIKey("")),
		baseURL:    baseURL,
		httpClient: httpClient,
	}, nil
}

func inContainer() bool {
	finfo, err := os.Stat("/.dockerenv")
	return err == nil && finfo.Mode().IsRegular()
}

// resolveBaseURL picks the runner endpoint: an explicit config BaseURL or
// MODEL_RUNNER_HOST wins outright; otherwise the default candidates for the
// current environment are probed and the first reachable one is used. When
// nothing answers, the first candidate is returned anyway so the failure
// surfaces on first use with a useful error.
func resolveBaseURL(ctx context.Context, cfg *latest.ModelConfig, httpClient *http.Client) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	if host := os.Getenv("MODEL_RUNNER_HOST"); host != "" {
		return strings.TrimRight(host, "/") + inferencePrefix + "/v1/"
	}

	candidates := candidateURLs(inContainer())
	for _, candidate := range candidates {
		if reachable(ctx, httpClient, candidate) {
			slog.Debug("DMR endpoint resolved", "url", candidate)
			return candidate
		}
	}
	slog.Warn("no DMR endpoint reachable, deferring failure to first use", "url", candidates[0])
	return candidates[0]
}

// candidateURLs lists the endpoints a runner is ordinarily found at. On the
// host that is localhost; inside a container the runtime's internal
// hostnames and the default bridge gateway come first.
func candidateURLs(containerized bool) []string {
	if containerized {
		return []string{
			"http://model-runner.docker.internal" + inferencePrefix + "/v1/",
			"http://host.docker.internal:" + defaultPort + inferencePrefix + "/v1/",
			"http://172.17.0.1:" + defaultPort + inferencePrefix + "/v1/",
		}
	}
	return []string{
		"http://127.0.0.1:" + defaultPort + inferencePrefix + "/v1/",
	}
}

// reachable reports whether any HTTP server answers at the endpoint's
// models listing within the probe timeout.
func reachable(ctx context.Context, httpClient *http.Client, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, connectivityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(baseURL, "/")+"/models", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// runtimeFlags derives llama.cpp engine flags from the model config's
// sampling knobs, with any ProviderOpts["runtime_flags"] appended last so
// user-specified flags win.
func runtimeFlags(cfg *latest.ModelConfig) []string {
	var flags []string
	if cfg.Temperature != nil {
		flags = append(flags, "--temp", strconv.FormatFloat(*cfg.Temperature, 'f', -1, 64))
	}
	if cfg.TopP != nil {
		flags = append(flags, "--top-p", strconv.FormatFloat(*cfg.TopP, 'f', -1, 64))
	}
	if cfg.FrequencyPenalty != nil {
		flags = append(flags, "--frequency-penalty", strconv.FormatFloat(*cfg.FrequencyPenalty, 'f', -1, 64))
	}
	if cfg.PresencePenalty != nil {
		flags = append(flags, "--presence-penalty", strconv.FormatFloat(*cfg.PresencePenalty, 'f', -1, 64))
	}

	switch v := cfg.ProviderOpts["runtime_flags"].(type) {
	case []string:
		flags = append(flags, v...)
	case []any:
		for _, item := range v {
			flags = append(flags, fmt.Sprint(item))
		}
	case string:
		flags = append(flags, strings.Fields(strings.ReplaceAll(v, ",", " "))...)
	}
	return flags
}

// configureRequest mirrors the runner's scheduling.ConfigureRequest shape
// for POST {prefix}/_configure.
type configureRequest struct {
	Model        string   `json:"model"`
	ContextSize  *int32   `json:"context-size,omitempty"`
	RuntimeFlags []string `json:"runtime-flags,omitempty"`
}

// configureModel sends the model's context size and runtime flags to the
// runner. The runner answers 202 when it accepts the configuration.
func configureModel(ctx context.Context, httpClient *http.Client, baseURL string, cfg *latest.ModelConfig) error {
	reqBody := configureRequest{
		Model:        cfg.Model,
		RuntimeFlags: runtimeFlags(cfg),
	}
	if cfg.MaxTokens != nil {
		size := int32(*cfg.MaxTokens)
		reqBody.ContextSize = &size
	}

	reqData, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshaling configure request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, configureTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, configureURL(baseURL), bytes.NewReader(reqData))
	if err != nil {
		return fmt.Errorf("creating configure request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("configure request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("configure request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// configureURL derives the /_configure endpoint from the OpenAI base URL,
// preserving engine-qualified paths like /engines/llama.cpp/v1/.
func configureURL(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
		return baseURL + "/_configure"
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/v1") + "/_configure"
	return u.String()
}

// convertMessages converts chat messages to OpenAI format and merges
// consecutive system/user messages, which some local models require.
func convertMessages(messages []chat.Message) []openai.ChatCompletionMessageParamUnion {
	return oaistream.MergeConsecutiveMessages(oaistream.ConvertMessages(messages))
}

// CreateChatCompletionStream starts a streaming completion against the
// local runner. The stream is wrapped in the output guard, which truncates
// stop sequences and halts degenerate repetition client-side.
func (c *Client) CreateChatCompletionStream(ctx context.Context, messages []chat.Message, requestTools []tools.Tool) (chat.MessageStream, error) {
	if len(messages) == 0 {
		return nil, errors.New("at least one message is required")
	}

	trackUsage := c.ModelConfig.TrackUsage == nil || *c.ModelConfig.TrackUsage

	params := openai.ChatCompletionNewParams{
		Model:    c.ModelConfig.Model,
		Messages: convertMessages(messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(trackUsage),
		},
	}

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
	if c.ModelConfig.MaxTokens != nil {
		params.MaxTokens = openai.Int(*c.ModelConfig.MaxTokens)
	}

	if len(requestTools) > 0 {
		toolsParam := make([]openai.ChatCompletionToolUnionParam, len(requestTools))
		for i, tool := range requestTools {
			parameters, err := ConvertParametersToSchema(tool.Parameters)
			if err != nil {
				return nil, fmt.Errorf("converting parameters of tool %s: %w", tool.Name, err)
			}
			paramsMap, ok := parameters.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("converted parameters of tool %s is not a map", tool.Name)
			}
			toolsParam[i] = openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
				Name: tool.Name,
				// Local models reject tools with an absent description.
				Description: openai.String(cmp.Or(tool.Description, "Function "+tool.Name)),
				Parameters:  paramsMap,
			})
		}
		params.Tools = toolsParam
		if c.ModelConfig.ParallelToolCalls != nil {
			params.ParallelToolCalls = openai.Bool(*c.ModelConfig.ParallelToolCalls)
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

	slog.Debug("DMR chat completion stream starting",
		"model", c.ModelConfig.Model,
		"message_count", len(messages),
		"tool_count", len(requestTools),
		"base_url", c.baseURL)

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)

	// Local models routinely leak chat-template markers and fall into
	// degenerate repetition loops; the guard truncates stop sequences from
	// the output and halts decoding when the tail starts looping.
	return newGuardedStream(oaistream.NewStreamAdapter(stream, trackUsage), defaultGuardConfig(c.ModelConfig.Stop)), nil
}

// CreateChatCompletion performs a single blocking completion by draining
// CreateChatCompletionStream and concatenating its content deltas.
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

// CreateEmbedding generates one embedding vector on the local runner.
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

// CreateBatchEmbedding generates embedding vectors for multiple texts in
// one runner call.
func (c *Client) CreateBatchEmbedding(ctx context.Context, texts []string) (*base.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return &base.BatchEmbeddingResult{Embeddings: [][]float64{}}, nil
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

// Rerank scores documents against the query on the runner's native /rerank
// endpoint, which lives at the host root rather than under the inference
// prefix. Raw logits are squashed through a sigmoid so thresholds behave
// consistently across queries.
func (c *Client) Rerank(ctx context.Context, query string, documents []types.Document, _ string) ([]float64, error) {
	if len(documents) == 0 {
		return []float64{}, nil
	}

	documentStrings := make([]string, len(documents))
	for i, doc := range documents {
		documentStrings[i] = doc.Content
	}

	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	rerankURL := fmt.Sprintf("%s://%s/rerank",
		cmp.Or(parsed.Scheme, "http"),
		cmp.Or(parsed.Host, "127.0.0.1:"+defaultPort))

	reqData, err := json.Marshal(map[string]any{
		"model":     c.ModelConfig.Model,
		"query":     query,
		"documents": documentStrings,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rerankURL, bytes.NewReader(reqData))
	if err != nil {
		return nil, fmt.Errorf("creating rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var rerankResp struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rerankResp); err != nil {
		return nil, fmt.Errorf("decoding rerank response: %w", err)
	}
	if len(rerankResp.Results) != len(documents) {
		return nil, fmt.Errorf("expected %d rerank scores, got %d", len(documents), len(rerankResp.Results))
	}

	scores := make([]float64, len(documents))
	for _, result := range rerankResp.Results {
		if result.Index < 0 || result.Index >= len(documents) {
			return nil, fmt.Errorf("invalid result index %d", result.Index)
		}
		scores[result.Index] = sigmoid(result.RelevanceScore)
	}
	return scores, nil
}

// ConvertParametersToSchema converts tool parameters to the schema shape
// local models accept: additionalProperties is stripped because several
// served models reject it.
func ConvertParametersToSchema(params any) (any, error) {
	m, err := tools.SchemaToMap(params)
	if err != nil {
		return nil, err
	}
	delete(m, "additionalProperties")
	return m, nil
}

// jsonSchema implements json.Marshaler for map[string]any so schema maps
// can be handed to the OpenAI SDK.
type jsonSchema map[string]any

func (j jsonSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(j))
}

// sigmoid squashes a raw logit to (0, 1): positive scores land above 0.5,
// negative below.
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
