// Package crew implements the Sequential and Hierarchical agent
// compositions of agents: an ordered list of agent references plus a process
// type, each query driving every member's own ReAct loop (pkg/reactloop).
package crew

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docker/local-rag-engine/pkg/agent"
	"github.com/docker/local-rag-engine/pkg/chat"
	"github.com/docker/local-rag-engine/pkg/reactloop"
	"github.com/docker/local-rag-engine/pkg/team"
	"github.com/docker/local-rag-engine/pkg/tools"
)

// Process selects how a Crew's members are composed against one query.
type Process string

const (
	// ProcessSequential runs each agent in order; agent i+1 receives the
	// concatenated outputs of agents 0..=i injected into its prompt.
	ProcessSequential Process = "sequential"
	// ProcessHierarchical exposes every non-coordinator member to the
	// coordinator as a delegate_to_{role} tool, letting the coordinator
	// call them through its own tool loop.
	ProcessHierarchical Process = "hierarchical"
)

// StepEvent mirrors reactloop.Event with the originating agent attached, so
// the UI can render crew steps exactly like tool calls.
type StepEvent struct {
	AgentName string
	reactloop.Event
}

// AgentOutput is one member's completed execution within a crew run.
type AgentOutput struct {
	AgentName string
	Content   string
	Error     error
}

// Result is the outcome of one Crew.Run call.
type Result struct {
	// Outputs holds every agent that completed, in execution order, even
	// when a later agent (Sequential) or the coordinator (Hierarchical)
	// subsequently failed.
	Outputs []AgentOutput
	// FinalOutput is the crew's overall answer: the last agent's response
	// in Sequential, or the coordinator's response in Hierarchical.
	FinalOutput string
	// Err is set when the crew aborted early (an agent error, or the
	// wall-clock Timeout being exceeded) and FinalOutput/Outputs reflect a
	// partial result.
	Err error
}

// Crew is an ordered composition of agents plus the process that combines
// their outputs, and the per-member loop/timeout tunables.
type Crew struct {
	Members []*agent.Agent
	Process Process
	// Timeout bounds the whole Run call; exceeding it returns a partial
	// Result with Err set.
	Timeout time.Duration
	// LoopConfig is passed to every member's reactloop.Run call.
	LoopConfig reactloop.Config
}

// New builds a Crew. The first member is the Sequential starting point, or
// the Hierarchical coordinator.
func New(process Process, members ...*agent.Agent) *Crew {
	return &Crew{Members: members, Process: process, Timeout: 5 * time.Minute, LoopConfig: reactloop.DefaultConfig()}
}

// NewFromTeam builds a Crew by resolving member names against a team
// registry, keeping the given order. An unknown name is an error rather
// than a silently shorter crew.
func NewFromTeam(process Process, t *team.Team, names ...string) (*Crew, error) {
	members := make([]*agent.Agent, 0, len(names))
	for _, name := range names {
		member := t.Get(name)
		if member == nil {
			return nil, fmt.Errorf("crew: no agent named %q in team", name)
		}
		members = append(members, member)
	}
	return New(process, members...), nil
}

// Run executes the crew against query, emitting StepEvents as each member's
// ReAct loop produces content deltas and tool events.
func (c *Crew) Run(ctx context.Context, query string, events chan<- StepEvent) Result {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	switch c.Process {
	case ProcessHierarchical:
		return c.runHierarchical(ctx, query, events)
	default:
		return c.runSequential(ctx, query, events)
	}
}

// runSequential runs the Sequential process: each agent i+1
// receives the concatenated outputs of agents 0..=i as
// "Previous team member outputs:\n{bullets}" injected into its user prompt.
func (c *Crew) runSequential(ctx context.Context, query string, events chan<- StepEvent) Result {
	var outputs []AgentOutput
	var priorOutputs []string

	for _, member := range c.Members {
		if err := ctx.Err(); err != nil {
			return Result{Outputs: outputs, FinalOutput: lastContent(outputs), Err: fmt.Errorf("crew timed out: %w", err)}
		}

		userContent := query
		if len(priorOutputs) > 0 {
			userContent = fmt.Sprintf("%s\n\nPrevious team member outputs:\n%s", query, strings.Join(priorOutputs, "\n"))
		}

		content, err := c.runMember(ctx, member, userContent, events)
		if err != nil {
			outputs = append(outputs, AgentOutput{AgentName: member.Name(), Error: err})
			return Result{Outputs: outputs, FinalOutput: lastContent(outputs), Err: err}
		}

		outputs = append(outputs, AgentOutput{AgentName: member.Name(), Content: content})
		priorOutputs = append(priorOutputs, content)
	}

	return Result{Outputs: outputs, FinalOutput: lastContent(outputs)}
}

// runHierarchical runs the Hierarchical process: specialists
// become delegate_to_{role} tools the coordinator calls through its own
// tool loop. A specialist's error surfaces as a tool-result error, letting
// the coordinator decide whether to recover rather than aborting the crew.
func (c *Crew) runHierarchical(ctx context.Context, query string, events chan<- StepEvent) Result {
	if len(c.Members) == 0 {
		return Result{Err: fmt.Errorf("crew: hierarchical process requires a coordinator")}
	}
	coordinator := c.Members[0]
	specialists := c.Members[1:]

	var dlog delegationLog
	delegateTools := make([]tools.Tool, 0, len(specialists))
	for _, specialist := range specialists {
		delegateTools = append(delegateTools, delegateTool(specialist, c.LoopConfig, events, &dlog))
	}

	coordTools, err := coordinator.Tools(ctx)
	if err != nil {
		return Result{Err: fmt.Errorf("crew: listing coordinator tools: %w", err)}
	}
	coordTools = append(coordTools, delegateTools...)

	messages := []chat.Message{
		{Role: chat.MessageRoleSystem, Content: coordinator.Instruction()},
		{Role: chat.MessageRoleUser, Content: query},
	}

	loopEvents := relay(events, coordinator.Name())
	result, err := reactloop.Run(ctx, coordinator.Model(), &messages, coordTools, c.LoopConfig, loopEvents)
	closeRelay(loopEvents)

	outputs := append([]AgentOutput{}, dlog.entries()...)
	outputs = append(outputs, AgentOutput{AgentName: coordinator.Name(), Content: result.Content, Error: err})
	if err != nil {
		return Result{Outputs: outputs, Err: err}
	}
	return Result{Outputs: outputs, FinalOutput: result.Content}
}

func (c *Crew) runMember(ctx context.Context, member *agent.Agent, userContent string, events chan<- StepEvent) (string, error) {
	memberTools, err := member.Tools(ctx)
	if err != nil {
		return "", fmt.Errorf("listing tools for %s: %w", member.Name(), err)
	}
	messages := []chat.Message{
		{Role: chat.MessageRoleSystem, Content: member.Instruction()},
		{Role: chat.MessageRoleUser, Content: userContent},
	}
	loopEvents := relay(events, member.Name())
	result, err := reactloop.Run(ctx, member.Model(), &messages, memberTools, c.LoopConfig, loopEvents)
	closeRelay(loopEvents)
	if err != nil {
		return "", fmt.Errorf("agent %s failed: %w", member.Name(), err)
	}
	return result.Content, nil
}

func lastContent(outputs []AgentOutput) string {
	if len(outputs) == 0 {
		return ""
	}
	return outputs[len(outputs)-1].Content
}

// relay forwards reactloop.Events from a member's loop onto the crew's
// StepEvent channel, tagging them with the originating agent. Returns nil
// when events is nil, so member loops run without per-token overhead when
// nobody is listening.
func relay(events chan<- StepEvent, agentName string) chan reactloop.Event {
	if events == nil {
		return nil
	}
	ch := make(chan reactloop.Event)
	go func() {
		for e := range ch {
			events <- StepEvent{AgentName: agentName, Event: e}
		}
	}()
	return ch
}

func closeRelay(ch chan reactloop.Event) {
	if ch != nil {
		close(ch)
	}
}

// delegationLog records each specialist invocation the coordinator makes,
// so Hierarchical results can report per-specialist outputs like Sequential
// does.
type delegationLog struct {
	mu   sync.Mutex
	rows []AgentOutput
}

func (l *delegationLog) add(row AgentOutput) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, row)
}

func (l *delegationLog) entries() []AgentOutput {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AgentOutput{}, l.rows...)
}

// delegateArgs is the JSON schema for a delegate_to_{role} tool call.
type delegateArgs struct {
	Query string `json:"query" jsonschema:"The question or task to hand off to this specialist"`
}

// delegateTool builds the delegate_to_{role} tool a coordinator calls to
// run a specialist's own ReAct loop and get back its final content.
func delegateTool(specialist *agent.Agent, cfg reactloop.Config, events chan<- StepEvent, log *delegationLog) tools.Tool {
	name := "delegate_to_" + specialist.Name()
	return tools.Tool{
		Name:        name,
		Category:    "delegation",
		Description: fmt.Sprintf("Delegate a task to the %q specialist: %s", specialist.Name(), specialist.Description()),
		Parameters:  tools.MustSchemaFor[delegateArgs](),
		Handler: func(ctx context.Context, call tools.ToolCall) (*tools.ToolCallResult, error) {
			var args delegateArgs
			_ = json.Unmarshal([]byte(call.Function.Arguments), &args)

			memberTools, err := specialist.Tools(ctx)
			if err != nil {
				return tools.ResultError(err.Error()), nil
			}
			messages := []chat.Message{
				{Role: chat.MessageRoleSystem, Content: specialist.Instruction()},
				{Role: chat.MessageRoleUser, Content: args.Query},
			}
			loopEvents := relay(events, specialist.Name())
			result, err := reactloop.Run(ctx, specialist.Model(), &messages, memberTools, cfg, loopEvents)
			closeRelay(loopEvents)
			if err != nil {
				log.add(AgentOutput{AgentName: specialist.Name(), Error: err})
				// Surfaced as a tool error, not a Go error: the coordinator's
				// loop keeps going and decides whether to recover.
				return tools.ResultError(err.Error()), nil
			}
			log.add(AgentOutput{AgentName: specialist.Name(), Content: result.Content})
			return tools.ResultSuccess(result.Content), nil
		},
	}
}
