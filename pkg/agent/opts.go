package agent

import (
	"github.com/docker/local-rag-engine/pkg/memorymanager"
	"github.com/docker/local-rag-engine/pkg/model/provider"
	"github.com/docker/local-rag-engine/pkg/tools"
)

type AgentOpt func(a *Agent)

func WithInstruction(prompt string) AgentOpt {
	return func(a *Agent) {
		a.instruction = prompt
	}
}

// WithToolSets binds the given toolsets to the agent; their tools are
// unioned into every Tools(ctx) call.
func WithToolSets(toolSets ...tools.ToolSet) AgentOpt {
	return func(a *Agent) {
		a.toolsets = append(a.toolsets, toolSets...)
	}
}

func WithDescription(description string) AgentOpt {
	return func(a *Agent) {
		a.description = description
	}
}

func WithName(name string) AgentOpt {
	return func(a *Agent) {
		a.name = name
	}
}

// WithModel appends a model to the agent's configured models. The first
// model passed across all WithModel calls is the default Model() returns
// absent an override.
func WithModel(model provider.Provider) AgentOpt {
	return func(a *Agent) {
		a.models = append(a.models, model)
	}
}

func WithSubAgents(subAgents []*Agent) AgentOpt {
	return func(a *Agent) {
		a.subAgents = subAgents
		for _, subAgent := range subAgents {
			subAgent.parents = append(subAgent.parents, a)
		}
	}
}

func WithAddDate(addDate bool) AgentOpt {
	return func(a *Agent) {
		a.addDate = addDate
	}
}

func WithAddEnvironmentInfo(addEnvironmentInfo bool) AgentOpt {
	return func(a *Agent) {
		a.addEnvironmentInfo = addEnvironmentInfo
	}
}

// WithMaxIterations caps the ReAct loop's tool-call iterations.
func WithMaxIterations(n int) AgentOpt {
	return func(a *Agent) {
		a.maxIterations = n
	}
}

func WithNumHistoryItems(n int) AgentOpt {
	return func(a *Agent) {
		a.numHistoryItems = n
	}
}

func WithAddPromptFiles(paths []string) AgentOpt {
	return func(a *Agent) {
		a.addPromptFiles = paths
	}
}

func WithCommands(commands map[string]string) AgentOpt {
	return func(a *Agent) {
		a.commands = commands
	}
}

// WithMemoryManager binds the memory manager an agent consults for
// retrieval and records experiences into.
func WithMemoryManager(m memorymanager.Manager) AgentOpt {
	return func(a *Agent) {
		a.memoryManager = m
	}
}

// WithTools binds individually-configured tools directly to the agent, as
// opposed to WithToolSets
// which binds whole toolsets with their own start/stop lifecycle.
func WithTools(ts ...tools.Tool) AgentOpt {
	return func(a *Agent) {
		a.toolWrapper.allTools = append(a.toolWrapper.allTools, ts...)
	}
}
