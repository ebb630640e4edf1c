package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"github.com/docker/local-rag-engine/pkg/chat"
	"github.com/docker/local-rag-engine/pkg/engineerr"
	"github.com/docker/local-rag-engine/pkg/memory"
	"github.com/docker/local-rag-engine/pkg/model/provider"
	"github.com/docker/local-rag-engine/pkg/permissions"
	"github.com/docker/local-rag-engine/pkg/reactloop"
	"github.com/docker/local-rag-engine/pkg/retrieval"
	"github.com/docker/local-rag-engine/pkg/store"
	"github.com/docker/local-rag-engine/pkg/tools"
)

// Capability tags what an agent definition is allowed to do, drawn from a
// closed enumeration plus the Custom escape hatch.
type Capability string

const (
	CapabilityRetrieval   Capability = "retrieval"
	CapabilityCodeGen     Capability = "code_generation"
	CapabilityFilesystem  Capability = "filesystem"
	CapabilityCalendar    Capability = "calendar"
	CapabilityMemory      Capability = "memory"
	CapabilityDelegation  Capability = "delegation"
	customCapabilityPrefix = "custom:"
)

// CustomCapability builds an out-of-enumeration capability tag.
func CustomCapability(name string) Capability { return Capability(customCapabilityPrefix + name) }

// IsCustom reports whether c was built by CustomCapability.
func (c Capability) IsCustom() bool { return len(c) > len(customCapabilityPrefix) && string(c[:len(customCapabilityPrefix)]) == customCapabilityPrefix }

// DecodingConfig holds a definition's decoding parameters: sampling knobs
// plus the tool loop's own tunables.
type DecodingConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"top_p,omitempty"`
	TopK            int     `json:"top_k,omitempty"`
	MaxTokens       int     `json:"max_tokens,omitempty"`
	MaxToolCalls    int     `json:"max_tool_calls,omitempty"`
	ToolTimeoutSecs int     `json:"tool_timeout_secs,omitempty"`
	AutoRetrieve    bool    `json:"auto_retrieve,omitempty"`
	RetrievalTopK   int     `json:"retrieval_top_k,omitempty"`
}

// ToolBinding is one entry in AgentDefinition.tools: an ordered reference
// into the shared tool registry plus a per-binding enable flag and opaque
// config blob.
type ToolBinding struct {
	ToolID  string         `json:"tool_id"`
	Enabled bool           `json:"enabled"`
	Config  map[string]any `json:"config,omitempty"`
}

// Stats carries the per-definition execution counters, updated on every
// Execute call.
type Stats struct {
	ExecutionCount     int     `json:"execution_count"`
	AvgExecutionTimeMS float64 `json:"avg_execution_time_ms"`
}

// Definition is a named, persisted, prompt-bearing role, independent of any
// single live *Agent binding.
type Definition struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	SystemPrompt string            `json:"system_prompt"`
	Config       DecodingConfig    `json:"config"`
	Capabilities []Capability      `json:"capabilities,omitempty"`
	Tools        []ToolBinding     `json:"tools,omitempty"`
	Enabled      bool              `json:"enabled"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// persistedStats is the sibling ".metadata.json" file written alongside
// each "{agent_id}.json" definition.
type persistedStats struct {
	Stats Stats `json:"stats"`
}

// validate rejects definitions with an empty name, an empty prompt, or
// bindings to unknown tool ids.
func (d Definition) validate(knownToolIDs func(string) bool) error {
	if d.Name == "" {
		return &engineerr.InvalidInputError{Reason: "agent name must not be empty"}
	}
	if d.SystemPrompt == "" {
		return &engineerr.InvalidInputError{Reason: "agent system_prompt must not be empty"}
	}
	for _, b := range d.Tools {
		if knownToolIDs != nil && !knownToolIDs(b.ToolID) {
			return &engineerr.InvalidInputError{Reason: fmt.Sprintf("unknown tool id %q", b.ToolID)}
		}
	}
	return nil
}

// ToolResolver maps a tool_id binding to the live ToolSet that serves it.
// The engine's tool registry (builtin rag_search/filesystem/memory
// toolsets, plus any others) implements this.
type ToolResolver interface {
	Resolve(toolID string) (tools.ToolSet, bool)
	Known(toolID string) bool
}

// Registry is the agent lifecycle surface: create/validate/persist a
// Definition, load persisted definitions on start, and mutate them via
// update/toggle/delete.
type Registry struct {
	mu       sync.RWMutex
	dir      string // {data_dir}/agents
	defs     map[string]Definition
	stats    map[string]Stats
	toolRes  ToolResolver
	ragEngines map[string]*retrieval.Engine // spaceID -> engine, "" is the default/cross-space engine
	experiences *memory.ExperienceStore
	permissions *permissions.Checker
}

// NewRegistry builds a Registry persisting definitions under dir, one
// "{agent_id}.json" plus ".metadata.json" pair per agent. toolRes may be
// nil, in which case tool-id validation and resolution are skipped (useful
// for tests that only exercise CRUD).
func NewRegistry(dir string, toolRes ToolResolver) *Registry {
	return &Registry{
		dir:        dir,
		defs:       make(map[string]Definition),
		stats:      make(map[string]Stats),
		toolRes:    toolRes,
		ragEngines: make(map[string]*retrieval.Engine),
	}
}

// BindMemory associates an ExperienceStore with the registry so Execute
// records each run as a Task experience. Nil disables
// recording without affecting execution itself.
func (r *Registry) BindMemory(store *memory.ExperienceStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.experiences = store
}

// BindRAGEngine associates a retrieval engine with a space id ("" for the
// cross-space default) so Execute can honour a Definition's AutoRetrieve.
func (r *Registry) BindRAGEngine(spaceID string, engine *retrieval.Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ragEngines[spaceID] = engine
}

// BindPermissions attaches a permission checker consulted by every agent's
// tool loop. Nil leaves tool calls ungated.
func (r *Registry) BindPermissions(checker *permissions.Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.permissions = checker
}

// Load reads every "*.json" definition (skipping "*.metadata.json") from dir
// into memory, along with its sibling stats file when present.
func (r *Registry) Load() error {
	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("agent registry: read dir: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || hasMetaSuffix(name) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(r.dir, name))
		if err != nil {
			return fmt.Errorf("agent registry: read %s: %w", name, err)
		}
		var def Definition
		if err := json.Unmarshal(raw, &def); err != nil {
			return fmt.Errorf("agent registry: parse %s: %w", name, err)
		}
		r.defs[def.ID] = def

		statsPath := filepath.Join(r.dir, def.ID+".metadata.json")
		if raw, err := os.ReadFile(statsPath); err == nil {
			var ps persistedStats
			if json.Unmarshal(raw, &ps) == nil {
				r.stats[def.ID] = ps.Stats
			}
		}
	}
	return nil
}

func hasMetaSuffix(name string) bool {
	const suffix = ".metadata.json"
	return len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix
}

// Create validates def, assigns it a fresh ID if empty, persists it, and
// returns the assigned ID.
func (r *Registry) Create(def Definition) (string, error) {
	var knownFn func(string) bool
	if r.toolRes != nil {
		knownFn = r.toolRes.Known
	}
	if err := def.validate(knownFn); err != nil {
		return "", err
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	r.mu.Lock()
	if _, exists := r.defs[def.ID]; exists {
		r.mu.Unlock()
		return "", &engineerr.InvalidInputError{Reason: fmt.Sprintf("agent id %q already exists", def.ID)}
	}
	r.defs[def.ID] = def
	r.mu.Unlock()

	if err := r.persistDefinition(def); err != nil {
		return "", err
	}
	return def.ID, nil
}

// Get returns the definition for id.
func (r *Registry) Get(id string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	if !ok {
		return Definition{}, &engineerr.NotFoundError{Kind: "agent", ID: id}
	}
	return def, nil
}

// List returns every known definition, in no particular order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	return out
}

// Update replaces id's definition with def (def.ID is forced to id) and
// re-persists it.
func (r *Registry) Update(id string, def Definition) error {
	var knownFn func(string) bool
	if r.toolRes != nil {
		knownFn = r.toolRes.Known
	}
	def.ID = id
	if err := def.validate(knownFn); err != nil {
		return err
	}

	r.mu.Lock()
	if _, ok := r.defs[id]; !ok {
		r.mu.Unlock()
		return &engineerr.NotFoundError{Kind: "agent", ID: id}
	}
	r.defs[id] = def
	r.mu.Unlock()

	return r.persistDefinition(def)
}

// Toggle flips Enabled without touching any other field.
func (r *Registry) Toggle(id string, enabled bool) error {
	r.mu.Lock()
	def, ok := r.defs[id]
	if !ok {
		r.mu.Unlock()
		return &engineerr.NotFoundError{Kind: "agent", ID: id}
	}
	def.Enabled = enabled
	r.defs[id] = def
	r.mu.Unlock()

	return r.persistDefinition(def)
}

// Delete removes id's definition and stats files and drops it from memory.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	if _, ok := r.defs[id]; !ok {
		r.mu.Unlock()
		return &engineerr.NotFoundError{Kind: "agent", ID: id}
	}
	delete(r.defs, id)
	delete(r.stats, id)
	r.mu.Unlock()

	_ = os.Remove(filepath.Join(r.dir, id+".json"))
	_ = os.Remove(filepath.Join(r.dir, id+".metadata.json"))
	return nil
}

// persistDefinition writes {id}.json atomically (temp-file + rename) via
// natefinch/atomic.
func (r *Registry) persistDefinition(def Definition) error {
	if r.dir == "" {
		return nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("agent registry: mkdir: %w", err)
	}
	raw, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("agent registry: marshal: %w", err)
	}
	path := filepath.Join(r.dir, def.ID+".json")
	if err := atomic.WriteFile(path, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("agent registry: write %s: %w", path, err)
	}
	return nil
}

func (r *Registry) persistStats(id string, s Stats) error {
	if r.dir == "" {
		return nil
	}
	raw, err := json.MarshalIndent(persistedStats{Stats: s}, "", "  ")
	if err != nil {
		return fmt.Errorf("agent registry: marshal stats: %w", err)
	}
	path := filepath.Join(r.dir, id+".metadata.json")
	if err := atomic.WriteFile(path, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("agent registry: write %s: %w", path, err)
	}
	return nil
}

// ExecutionResult is one invocation's outcome.
type ExecutionResult struct {
	Success    bool
	Response   string
	ToolsUsed  []string
	DurationMS int64
	Error      string
}

// Build constructs a live *Agent from a Definition, resolving its tool
// bindings through the registry's ToolResolver. Of the decoding config,
// only MaxToolCalls and ToolTimeoutSecs are applied, to the returned ReAct
// loop config; Temperature, TopP, TopK and MaxTokens are not applied to
// the model.
func (r *Registry) Build(def Definition, model provider.Provider) (*Agent, reactloop.Config) {
	opts := []AgentOpt{
		WithName(def.Name),
		WithDescription(def.Description),
		WithInstruction(def.SystemPrompt),
		WithModel(model),
	}

	if r.toolRes != nil {
		for _, b := range def.Tools {
			if !b.Enabled {
				continue
			}
			if ts, ok := r.toolRes.Resolve(b.ToolID); ok {
				opts = append(opts, WithToolSets(ts))
			}
		}
	}

	loopCfg := reactloop.DefaultConfig()
	r.mu.RLock()
	loopCfg.Permissions = r.permissions
	r.mu.RUnlock()
	if def.Config.MaxToolCalls > 0 {
		loopCfg.MaxIterations = def.Config.MaxToolCalls
		opts = append(opts, WithMaxIterations(def.Config.MaxToolCalls))
	}
	if def.Config.ToolTimeoutSecs > 0 {
		loopCfg.ToolTimeoutSecs = def.Config.ToolTimeoutSecs
	}

	return New(def.Name, def.SystemPrompt, opts...), loopCfg
}

// Execute runs one query against def's agent: it builds the message list
// (system prompt, optional auto-retrieved context, conversation history,
// the query), drives the ReAct loop, records an ExecutionResult, and
// updates def's execution_count/avg_execution_time_ms metadata.
func (r *Registry) Execute(ctx context.Context, id string, model provider.Provider, spaceID, query string, history []chat.Message) (ExecutionResult, error) {
	start := time.Now()

	def, err := r.Get(id)
	if err != nil {
		return ExecutionResult{}, err
	}
	if !def.Enabled {
		return ExecutionResult{}, &engineerr.InvalidInputError{Reason: fmt.Sprintf("agent %q is disabled", id)}
	}

	liveAgent, loopCfg := r.Build(def, model)

	messages := make([]chat.Message, 0, len(history)+3)
	messages = append(messages, chat.Message{Role: chat.MessageRoleSystem, Content: def.SystemPrompt})

	if def.Config.AutoRetrieve {
		if snippet, ok := r.retrievedContext(ctx, spaceID, query, def.Config.RetrievalTopK); ok {
			messages = append(messages, chat.Message{Role: chat.MessageRoleSystem, Content: snippet})
		}
	}

	messages = append(messages, history...)
	messages = append(messages, chat.Message{Role: chat.MessageRoleUser, Content: query})

	toolList, err := liveAgent.Tools(ctx)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("agent execute: list tools: %w", err)
	}

	result, err := reactloop.Run(ctx, model, &messages, toolList, loopCfg, nil)
	elapsed := time.Since(start)

	execResult := ExecutionResult{
		DurationMS: elapsed.Milliseconds(),
	}
	if err != nil {
		execResult.Success = false
		execResult.Error = err.Error()
	} else {
		execResult.Success = true
		execResult.Response = result.Content
		seen := make(map[string]bool, len(result.ToolInvocations))
		for _, inv := range result.ToolInvocations {
			if !seen[inv.Name] {
				seen[inv.Name] = true
				execResult.ToolsUsed = append(execResult.ToolsUsed, inv.Name)
			}
		}
	}

	r.recordExecution(id, elapsed)
	r.recordExperience(ctx, def, query, execResult)

	return execResult, nil
}

// recordExperience logs one Execute call to the bound ExperienceStore as an
// EventTask, a no-op when no store is bound.
func (r *Registry) recordExperience(ctx context.Context, def Definition, query string, result ExecutionResult) {
	r.mu.RLock()
	expStore := r.experiences
	r.mu.RUnlock()
	if expStore == nil {
		return
	}
	outcomes := []string{"success"}
	if !result.Success {
		outcomes = []string{"error: " + result.Error}
	}
	_, _ = expStore.Record(ctx, memory.Experience{
		Kind:     memory.EventTask,
		Content:  fmt.Sprintf("agent %q executed query %q", def.Name, query),
		Metadata: map[string]string{"agent_id": def.ID},
		Outcomes: outcomes,
	})
}

// retrievedContext runs a best-effort retrieval search and formats the top hits as
// a system-context message. Returns ok=false when no RAG engine is bound
// for spaceID or the search fails: a missing model or failed search
// degrades to an empty result, never an aborted execution.
func (r *Registry) retrievedContext(ctx context.Context, spaceID, query string, topK int) (string, bool) {
	r.mu.RLock()
	engine := r.ragEngines[spaceID]
	if engine == nil {
		engine = r.ragEngines[""]
	}
	r.mu.RUnlock()
	if engine == nil {
		return "", false
	}

	pred := store.Predicate{SpaceID: spaceID}
	result, err := engine.Search(ctx, nil, query, pred)
	if err != nil || len(result.Hits) == 0 {
		return "", false
	}

	n := topK
	if n <= 0 || n > len(result.Hits) {
		n = len(result.Hits)
	}
	out := "Relevant context retrieved for this query:\n"
	for _, hit := range result.Hits[:n] {
		out += fmt.Sprintf("- (%s) %s\n", hit.Chunk.Source, hit.Chunk.Text)
	}
	return out, true
}

// recordExecution updates and persists the execution_count/avg_execution_
// time_ms metadata pair.
func (r *Registry) recordExecution(id string, elapsed time.Duration) {
	r.mu.Lock()
	s := r.stats[id]
	n := s.ExecutionCount
	s.AvgExecutionTimeMS = (s.AvgExecutionTimeMS*float64(n) + float64(elapsed.Milliseconds())) / float64(n+1)
	s.ExecutionCount = n + 1
	r.stats[id] = s
	r.mu.Unlock()

	_ = r.persistStats(id, s)
}

// Stats returns the current execution counters for id.
func (r *Registry) Stats(id string) Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats[id]
}
