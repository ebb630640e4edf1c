package crew

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/local-rag-engine/pkg/agent"
	"github.com/docker/local-rag-engine/pkg/chat"
	"github.com/docker/local-rag-engine/pkg/model/provider/base"
	"github.com/docker/local-rag-engine/pkg/team"
	"github.com/docker/local-rag-engine/pkg/tools"
)

type staticStream struct {
	content string
	sent    bool
}

func (s *staticStream) Recv() (chat.MessageStreamResponse, error) {
	if s.sent {
		return chat.MessageStreamResponse{}, io.EOF
	}
	s.sent = true
	return chat.MessageStreamResponse{Choices: []chat.MessageStreamChoice{{Delta: chat.MessageDelta{Content: s.content}}}}, nil
}
func (s *staticStream) Close() {}

// staticProvider always answers with a fixed string, capturing the last
// prompt it was sent so tests can assert on prompt injection.
type staticProvider struct {
	id          string
	content     string
	lastPrompt  []chat.Message
}

func (p *staticProvider) ID() string                                  { return p.id }
func (p *staticProvider) BaseConfig() base.Config                     { return base.Config{} }
func (p *staticProvider) CreateChatCompletion(context.Context, []chat.Message) (string, error) {
	return p.content, nil
}
func (p *staticProvider) CreateChatCompletionStream(_ context.Context, messages []chat.Message, _ []tools.Tool) (chat.MessageStream, error) {
	p.lastPrompt = messages
	return &staticStream{content: p.content}, nil
}

func lastUserContent(msgs []chat.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.MessageRoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

// TestSequential_InjectsPriorOutputs exercises scenario S4: the writer's
// prompt must contain the literal "Previous team member outputs:" line
// followed by the researcher's bullet list, and the crew's final output is
// the writer's content alone.
func TestSequential_InjectsPriorOutputs(t *testing.T) {
	researcherModel := &staticProvider{id: "researcher-model", content: "- point one\n- point two"}
	writerModel := &staticProvider{id: "writer-model", content: "A polished narrative."}

	researcher := agent.New("researcher", "You research topics.", agent.WithModel(researcherModel))
	writer := agent.New("writer", "You write narratives.", agent.WithModel(writerModel))

	c := New(ProcessSequential, researcher, writer)
	result := c.Run(context.Background(), "summarise onboarding", nil)

	require.NoError(t, result.Err)
	assert.Equal(t, "A polished narrative.", result.FinalOutput)
	require.Len(t, result.Outputs, 2)
	assert.Equal(t, "researcher", result.Outputs[0].AgentName)
	assert.Equal(t, "- point one\n- point two", result.Outputs[0].Content)

	prompt := lastUserContent(writerModel.lastPrompt)
	assert.Contains(t, prompt, "Previous team member outputs:")
	assert.Contains(t, prompt, "- point one\n- point two")
}

// erroringProvider always fails the chat call, simulating a broken agent.
type erroringProvider struct{}

func (erroringProvider) ID() string              { return "broken" }
func (erroringProvider) BaseConfig() base.Config { return base.Config{} }
func (erroringProvider) CreateChatCompletion(context.Context, []chat.Message) (string, error) {
	return "", assert.AnError
}
func (erroringProvider) CreateChatCompletionStream(context.Context, []chat.Message, []tools.Tool) (chat.MessageStream, error) {
	return nil, assert.AnError
}

// TestSequential_AbortsOnError ensures already-completed outputs survive a
// later agent's failure.
func TestSequential_AbortsOnError(t *testing.T) {
	okModel := &staticProvider{id: "ok", content: "first output"}
	ok := agent.New("first", "instructions", agent.WithModel(okModel))
	broken := agent.New("second", "instructions", agent.WithModel(erroringProvider{}))

	c := New(ProcessSequential, ok, broken)
	result := c.Run(context.Background(), "go", nil)

	require.Error(t, result.Err)
	require.Len(t, result.Outputs, 2)
	assert.Equal(t, "first output", result.Outputs[0].Content)
	assert.Error(t, result.Outputs[1].Error)
}

// TestHierarchical_CoordinatorDelegates exercises the coordinator calling a
// specialist through delegate_to_{role} and returning the specialist's
// content as the crew's final output.
func TestHierarchical_CoordinatorDelegates(t *testing.T) {
	specialistModel := &staticProvider{id: "specialist", content: "specialist answer"}
	specialist := agent.New("researcher", "You research.", agent.WithModel(specialistModel))

	coordModel := &delegatingProvider{toolName: "delegate_to_researcher", args: `{"query":"dig into this"}`}
	coordinator := agent.New("coordinator", "You coordinate.", agent.WithModel(coordModel))

	c := New(ProcessHierarchical, coordinator, specialist)
	result := c.Run(context.Background(), "investigate X", nil)

	require.NoError(t, result.Err)
	assert.Equal(t, "delegated: specialist answer", result.FinalOutput)
}

// delegatingProvider issues exactly one tool call (to toolName with args),
// then returns the tool's output wrapped in a fixed prefix as its answer.
type delegatingProvider struct {
	toolName string
	args     string
	step     int
}

func (p *delegatingProvider) ID() string              { return "delegating" }
func (p *delegatingProvider) BaseConfig() base.Config { return base.Config{} }
func (p *delegatingProvider) CreateChatCompletion(context.Context, []chat.Message) (string, error) {
	return "", nil
}
func (p *delegatingProvider) CreateChatCompletionStream(_ context.Context, messages []chat.Message, toolList []tools.Tool) (chat.MessageStream, error) {
	if p.step == 0 {
		p.step++
		return &toolCallStream{id: "call_1", name: p.toolName, args: p.args}, nil
	}
	toolOutput := lastToolOutput(messages)
	return &staticStream{content: "delegated: " + toolOutput}, nil
}

type toolCallStream struct {
	id, name, args string
	sent           bool
}

func (s *toolCallStream) Recv() (chat.MessageStreamResponse, error) {
	if s.sent {
		return chat.MessageStreamResponse{}, io.EOF
	}
	s.sent = true
	return chat.MessageStreamResponse{Choices: []chat.MessageStreamChoice{{Delta: chat.MessageDelta{
		ToolCalls: []tools.ToolCall{{ID: s.id, Function: tools.FunctionCall{Name: s.name, Arguments: s.args}}},
	}}}}, nil
}
func (s *toolCallStream) Close() {}

func lastToolOutput(msgs []chat.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.MessageRoleTool {
			return strings.TrimSpace(msgs[i].Content)
		}
	}
	return ""
}

func TestNewFromTeam(t *testing.T) {
	researcher := agent.New("researcher", "You research.", agent.WithModel(&staticProvider{id: "r", content: "notes"}))
	writer := agent.New("writer", "You write.", agent.WithModel(&staticProvider{id: "w", content: "prose"}))
	roster := team.New(map[string]*agent.Agent{"researcher": researcher, "writer": writer})

	c, err := NewFromTeam(ProcessSequential, roster, "researcher", "writer")
	require.NoError(t, err)
	require.Len(t, c.Members, 2)
	assert.Equal(t, "researcher", c.Members[0].Name())
	assert.Equal(t, "writer", c.Members[1].Name())

	_, err = NewFromTeam(ProcessSequential, roster, "researcher", "editor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "editor")
}
