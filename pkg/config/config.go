// Package config holds the engine's flat, non-versioned configuration:
// one struct loaded straight from YAML, with no legacy schema migrations.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/docker/local-rag-engine/pkg/paths"
)

// ThinkingBudget configures a reasoning budget passed through to models
// that support it.
type ThinkingBudget struct {
	// Effort is a coarse level ("minimal", "low", "medium", "high") used by
	// providers whose API expresses reasoning effort rather than a token count.
	Effort string `yaml:"effort,omitempty"`
	// Tokens is a token budget used by providers whose API takes one directly.
	Tokens int `yaml:"tokens,omitempty"`
}

// StructuredOutput asks a provider to constrain its response to a JSON schema.
type StructuredOutput struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Schema      any    `yaml:"schema"`
	Strict      bool   `yaml:"strict,omitempty"`
}

// RoutingRule maps example phrases to a target model for the rule-based
// router (see pkg/model/provider/rulebased).
type RoutingRule struct {
	Model    string   `yaml:"model"`
	Examples []string `yaml:"examples"`
}

// ModelConfig describes one named model entry: which provider serves it, the
// model identifier, and its connection/decoding parameters. Pointer fields
// distinguish "unset, use the provider default" from an explicit zero value.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Name     string `yaml:"name,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	TokenKey string `yaml:"token_key,omitempty"`

	Temperature       *float64 `yaml:"temperature,omitempty"`
	TopP              *float64 `yaml:"top_p,omitempty"`
	MaxTokens         *int64   `yaml:"max_tokens,omitempty"`
	FrequencyPenalty  *float64 `yaml:"frequency_penalty,omitempty"`
	PresencePenalty   *float64 `yaml:"presence_penalty,omitempty"`
	ParallelToolCalls *bool    `yaml:"parallel_tool_calls,omitempty"`
	ThinkingBudget    *ThinkingBudget `yaml:"thinking_budget,omitempty"`

	// Stop lists extra stop sequences truncated from local-model output; see
	// the output guard in pkg/model/provider/dmr.
	Stop []string `yaml:"stop,omitempty"`

	// TrackUsage enables token-usage accounting on streamed completions;
	// unset means enabled.
	TrackUsage *bool `yaml:"track_usage,omitempty"`

	// ProviderOpts carries provider-specific knobs (local runtime flags,
	// Azure api_version) that don't warrant a first-class field.
	ProviderOpts map[string]any `yaml:"provider_opts,omitempty"`

	// Routing turns this model entry into a rule-based router: Provider/Model
	// name the fallback, and each rule maps example phrases to another model.
	Routing []RoutingRule `yaml:"routing,omitempty"`
}

// RetrievalConfig tunes the hybrid retrieval engine: RRF constant 60 by
// default, with dense and lexical contributions weighted equally.
type RetrievalConfig struct {
	RRFConstant         int     `yaml:"rrf_constant"`
	DenseWeight         float64 `yaml:"dense_weight"`
	LexicalWeight       float64 `yaml:"lexical_weight"`
	TopKFinal           int     `yaml:"top_k_final"`
	NeighbourWindow     int     `yaml:"neighbour_window"`
	NeighbourExpandTopN int     `yaml:"neighbour_expand_top_n"`
}

// DefaultRetrievalConfig returns the engine's documented defaults.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		RRFConstant:         60,
		DenseWeight:         0.5,
		LexicalWeight:       0.5,
		TopKFinal:           8,
		NeighbourWindow:     2,
		NeighbourExpandTopN: 3,
	}
}

// PermissionsConfig lists glob patterns (optionally scoped to tool
// arguments) that auto-approve or auto-reject a tool call before the agent
// loop falls back to asking the user (see pkg/permissions).
type PermissionsConfig struct {
	Allow []string `yaml:"allow,omitempty"`
	Deny  []string `yaml:"deny,omitempty"`
}

// EngineConfig is the top-level, process-wide configuration for the engine:
// where persisted state lives, which models back which role, and how
// retrieval is tuned. It is loaded once at startup (see cmd/engine).
type EngineConfig struct {
	DataDir      string                 `yaml:"data_dir"`
	Models       map[string]ModelConfig `yaml:"models"`
	DefaultModel string                 `yaml:"default_model"`
	Retrieval    RetrievalConfig        `yaml:"retrieval"`
	Permissions  PermissionsConfig      `yaml:"permissions,omitempty"`
}

// Load reads and parses an EngineConfig from a YAML file, filling in
// documented defaults for anything the file leaves unset.
func Load(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading engine config: %w", err)
	}

	cfg := &EngineConfig{Retrieval: DefaultRetrievalConfig()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing engine config: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = paths.DataDir()
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("engine config: at least one model must be configured")
	}
	if cfg.DefaultModel != "" {
		if _, ok := cfg.Models[cfg.DefaultModel]; !ok {
			return nil, fmt.Errorf("engine config: default_model %q is not in models", cfg.DefaultModel)
		}
	}

	return cfg, nil
}
