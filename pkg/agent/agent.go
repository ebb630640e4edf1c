// Package agent implements an AgentDefinition bound to a live
// model provider and a subset of the tool registry: the unit the ReAct loop
// (pkg/reactloop) and crews (pkg/crew) execute against.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/docker/local-rag-engine/pkg/memorymanager"
	"github.com/docker/local-rag-engine/pkg/model/provider"
	"github.com/docker/local-rag-engine/pkg/tools"
)

// Agent represents an AI agent
type Agent struct {
	name               string
	description        string
	instruction        string
	toolsets           []tools.ToolSet
	startedToolsets    map[tools.ToolSet]bool
	toolsetsMutex      sync.RWMutex
	models             []provider.Provider // configured models; models[0] is the default
	modelOverride      atomic.Pointer[provider.Provider]
	subAgents          []*Agent
	parents            []*Agent
	addDate            bool
	addEnvironmentInfo bool
	maxIterations      int
	numHistoryItems    int
	addPromptFiles     []string
	toolWrapper        toolWrapper
	memoryManager      memorymanager.Manager
	commands           map[string]string

	warningsMu sync.Mutex
	warnings   []string
}

// New creates a new agent
func New(name, prompt string, opts ...AgentOpt) *Agent {
	agent := &Agent{
		name:            name,
		instruction:     prompt,
		startedToolsets: make(map[tools.ToolSet]bool),
		maxIterations:   10,
	}

	for _, opt := range opts {
		opt(agent)
	}

	return agent
}

func (a *Agent) Name() string {
	return a.name
}

// Instruction returns the agent's instructions
func (a *Agent) Instruction() string {
	return a.instruction
}

func (a *Agent) AddDate() bool {
	return a.addDate
}

func (a *Agent) AddEnvironmentInfo() bool {
	return a.addEnvironmentInfo
}

func (a *Agent) MaxIterations() int {
	return a.maxIterations
}

func (a *Agent) NumHistoryItems() int {
	return a.numHistoryItems
}

func (a *Agent) AddPromptFiles() []string {
	return a.addPromptFiles
}

// Description returns the agent's description
func (a *Agent) Description() string {
	return a.description
}

// SubAgents returns the agent's sub-agents
func (a *Agent) SubAgents() []*Agent {
	return a.subAgents
}

// Parents returns the agent's parent agents
func (a *Agent) Parents() []*Agent {
	return a.parents
}

// HasSubAgents checks if the agent has sub-agents
func (a *Agent) HasSubAgents() bool {
	return len(a.subAgents) > 0
}

func (a *Agent) HasParents() bool {
	return len(a.parents) > 0
}

// Model returns the model override if one is set (see SetModelOverride),
// otherwise the agent's configured default (the first entry in models).
// Returns nil if the agent has neither.
func (a *Agent) Model() provider.Provider {
	if p := a.modelOverride.Load(); p != nil {
		return *p
	}
	if len(a.models) == 0 {
		return nil
	}
	return a.models[0]
}

// ConfiguredModels returns the models this agent was constructed with,
// unaffected by any override set via SetModelOverride.
func (a *Agent) ConfiguredModels() []provider.Provider {
	return a.models
}

// SetModelOverride replaces the model Model() returns until cleared by
// passing nil. Safe for concurrent use alongside Model() and HasModelOverride.
func (a *Agent) SetModelOverride(p provider.Provider) {
	if p == nil {
		a.modelOverride.Store(nil)
		return
	}
	a.modelOverride.Store(&p)
}

// HasModelOverride reports whether a model override is currently set.
func (a *Agent) HasModelOverride() bool {
	return a.modelOverride.Load() != nil
}

// Tools returns the union of tools exposed by every toolset bound to this
// agent. A toolset that fails to start or fails to list its tools is skipped
// and recorded as a warning (drained via DrainWarnings) instead of failing
// the whole call: one misbehaving toolset should not take down every other
// tool the agent has access to.
func (a *Agent) Tools(ctx context.Context) ([]tools.Tool, error) {
	var agentTools []tools.Tool
	for _, toolSet := range a.toolsets {
		if err := a.ensureToolSetStarted(toolSet); err != nil {
			a.addWarning(fmt.Sprintf("toolset failed to start: %s", err))
			continue
		}

		ta, err := toolSet.Tools(ctx)
		if err != nil {
			a.addWarning(fmt.Sprintf("toolset failed to list tools: %s", err))
			continue
		}
		agentTools = append(agentTools, ta...)
	}

	agentTools = append(agentTools, a.toolWrapper.allTools...)

	return agentTools, nil
}

// DrainWarnings returns and clears the non-fatal warnings accumulated since
// the last call (toolset start/list failures collected by Tools).
func (a *Agent) DrainWarnings() []string {
	a.warningsMu.Lock()
	defer a.warningsMu.Unlock()
	if len(a.warnings) == 0 {
		return nil
	}
	w := a.warnings
	a.warnings = nil
	return w
}

func (a *Agent) addWarning(msg string) {
	a.warningsMu.Lock()
	defer a.warningsMu.Unlock()
	a.warnings = append(a.warnings, msg)
}

func (a *Agent) ToolDisplayName(ctx context.Context, toolName string) string {
	allTools, err := a.Tools(ctx)
	if err != nil {
		slog.Error("Failed to get tools for display name", "agent", a.Name(), "error", err)
		return toolName
	}

	for _, tool := range allTools {
		if tool.Name == toolName {
			return tool.DisplayName()
		}
	}

	return toolName
}

func (a *Agent) ToolSets() []tools.ToolSet {
	return a.toolsets
}

// Commands returns the named commands configured for this agent.
func (a *Agent) Commands() map[string]string {
	return a.commands
}

// MemoryManager returns the agent's bound memory manager, or nil when
// the agent was constructed without one.
func (a *Agent) MemoryManager() memorymanager.Manager {
	return a.memoryManager
}

func (a *Agent) ensureToolSetStarted(toolSet tools.ToolSet) error {
	a.toolsetsMutex.Lock()
	defer a.toolsetsMutex.Unlock()

	if a.startedToolsets[toolSet] {
		return nil
	}

	// Toolset connections (notably MCP) need to persist beyond the initial
	// request that triggered their creation, so they are started against a
	// background context rather than a request-scoped one.
	if err := toolSet.Start(context.Background()); err != nil {
		return err
	}

	a.startedToolsets[toolSet] = true
	return nil
}

func (a *Agent) StopToolSets() error {
	a.toolsetsMutex.Lock()
	defer a.toolsetsMutex.Unlock()

	for _, toolSet := range a.toolsets {
		// Only stop toolsets that are marked as started
		if !a.startedToolsets[toolSet] {
			continue
		}

		if err := toolSet.Stop(context.Background()); err != nil {
			return fmt.Errorf("failed to stop toolset: %w", err)
		}

		// Mark toolset as stopped
		a.startedToolsets[toolSet] = false
	}

	return nil
}
