// Package team holds named rosters of agents, from which pkg/crew composes
// its ordered or hierarchical crews.
package team

import "github.com/docker/local-rag-engine/pkg/agent"

// Team is a named registry of agents, the unit pkg/crew's Sequential and
// Hierarchical processes select members from.
type Team struct {
	agents map[string]*agent.Agent
}

func New(agents map[string]*agent.Agent) *Team {
	return &Team{agents: agents}
}

func (t *Team) Agents() map[string]*agent.Agent {
	return t.agents
}

func (t *Team) Get(name string) *agent.Agent {
	return t.agents[name]
}

func (t *Team) Size() int {
	return len(t.agents)
}
