// Package reactloop implements the ReAct tool-calling state machine:
// chat -> tool calls -> tool results -> chat, repeated until the model
// returns pure content or the iteration budget is exhausted.
//
// States and transitions:
//
//	Idle -> Calling:            send messages + tool schemas to the model
//	Calling -> Done(content):   the model returns Content
//	Calling -> Executing(...):  the model returns ToolCalls
//	Executing -> Calling:       tool results are appended, loop re-enters
package reactloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/docker/local-rag-engine/pkg/chat"
	"github.com/docker/local-rag-engine/pkg/model/provider"
	"github.com/docker/local-rag-engine/pkg/permissions"
	"github.com/docker/local-rag-engine/pkg/tools"
)

// EventType discriminates the typed event stream emitted to the UI.
type EventType string

const (
	EventContentDelta     EventType = "chat_token"
	EventToolCallStart    EventType = "tool_call_start"
	EventToolCallComplete EventType = "tool_call_complete"
)

// Event is one entry in the loop's streaming output. Only the fields
// relevant to Type are populated.
type Event struct {
	Type EventType

	// EventContentDelta
	Token       string
	Accumulated string

	// EventToolCallStart / EventToolCallComplete
	ToolName   string
	Arguments  string
	Output     string
	Success    bool
	DurationMS int64
}

// Config tunes one Run call. MaxIterations bounds the number of Calling
// states the loop will enter before forcing a final, tool-less call.
// ToolTimeoutSecs bounds each individual tool execution. Permissions, when
// non-nil, is consulted before every tool call; a Deny decision produces a
// synthetic failure result instead of an execution.
type Config struct {
	MaxIterations   int
	ToolTimeoutSecs int
	Permissions     *permissions.Checker
}

// DefaultConfig gives ample headroom for
// multi-step tool chains, a conservative per-call timeout.
func DefaultConfig() Config {
	return Config{MaxIterations: 10, ToolTimeoutSecs: 30}
}

// ToolInvocation records one completed tool call for ExecutionResult.tools_used
// style reporting.
type ToolInvocation struct {
	Name       string
	Arguments  string
	Output     string
	Success    bool
	DurationMS int64
}

// Result is what Run returns once the loop reaches Done.
type Result struct {
	Content         string
	ToolInvocations []ToolInvocation
	Iterations      int
}

// apologyText is returned verbatim when the model still tries to call tools
// on the forced final, tool-less call.
const apologyText = "I've run out of tool-call iterations while working on this; " +
	"here is my best answer based on what I've gathered so far."

// tracer emits no-op spans unless the process installed a tracer provider
// (cmd/engine's --otel flag).
var tracer = otel.Tracer("github.com/docker/local-rag-engine/pkg/reactloop")

// Run drives the ReAct loop to completion. messages is mutated in place with
// every assistant and tool-result turn, so callers can inspect the final
// transcript after Run returns. events may be nil; when non-nil it is never
// closed by Run (the caller owns its lifecycle) and sends are best-effort —
// a full channel blocks the loop, which is the intended back-pressure for
// streaming consumers.
func Run(ctx context.Context, model provider.Provider, messages *[]chat.Message, toolList []tools.Tool, cfg Config, events chan<- Event) (Result, error) {
	ctx, span := tracer.Start(ctx, "reactloop.run")
	span.SetAttributes(
		attribute.String("model", model.ID()),
		attribute.Int("tool_count", len(toolList)),
	)
	defer span.End()

	result, err := run(ctx, model, messages, toolList, cfg, events)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "react loop failed")
	} else {
		span.SetAttributes(attribute.Int("iterations", result.Iterations))
		span.SetStatus(codes.Ok, "")
	}
	return result, err
}

func run(ctx context.Context, model provider.Provider, messages *[]chat.Message, toolList []tools.Tool, cfg Config, events chan<- Event) (Result, error) {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 1
	}
	toolTimeout := time.Duration(cfg.ToolTimeoutSecs) * time.Second
	if toolTimeout <= 0 {
		toolTimeout = 30 * time.Second
	}

	toolsByName := make(map[string]tools.Tool, len(toolList))
	for _, t := range toolList {
		toolsByName[t.Name] = t
	}

	var invocations []ToolInvocation
	for iteration := 1; iteration <= cfg.MaxIterations; iteration++ {
		content, calls, err := call(ctx, model, *messages, toolList, events)
		if err != nil {
			return Result{}, fmt.Errorf("reactloop: chat call failed: %w", err)
		}

		if len(calls) == 0 {
			return Result{Content: content, ToolInvocations: invocations, Iterations: iteration}, nil
		}

		*messages = append(*messages, chat.Message{Role: chat.MessageRoleAssistant, ToolCalls: calls})

		for _, tc := range calls {
			inv := executeOne(ctx, toolsByName, tc, toolTimeout, cfg.Permissions, events)
			invocations = append(invocations, inv)
			*messages = append(*messages, chat.Message{
				Role:       chat.MessageRoleTool,
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
				Content:    inv.Output,
			})
		}
	}

	// Budget exhausted: one final call with no tools.
	content, calls, err := call(ctx, model, *messages, nil, events)
	if err != nil {
		return Result{}, fmt.Errorf("reactloop: final call failed: %w", err)
	}
	if len(calls) > 0 || content == "" {
		content = apologyText
	}
	return Result{Content: content, ToolInvocations: invocations, Iterations: cfg.MaxIterations + 1}, nil
}

// call sends messages+schemas to model and drains the resulting stream,
// accumulating content deltas and tool-call deltas, emitting
// EventContentDelta as tokens arrive.
func call(ctx context.Context, model provider.Provider, messages []chat.Message, toolList []tools.Tool, events chan<- Event) (string, []tools.ToolCall, error) {
	stream, err := model.CreateChatCompletionStream(ctx, messages, toolList)
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	var content string
	var toolCalls []tools.ToolCall
	toolCallIndex := make(map[string]int)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, err
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				content += choice.Delta.Content
				sendEvent(events, Event{Type: EventContentDelta, Token: choice.Delta.Content, Accumulated: content})
			}

			for _, delta := range choice.Delta.ToolCalls {
				key := delta.ID
				if key == "" {
					// Some providers omit the id on continuation deltas;
					// fall back to the most recently opened call.
					if len(toolCalls) == 0 {
						continue
					}
					key = toolCalls[len(toolCalls)-1].ID
				}
				idx, exists := toolCallIndex[key]
				if !exists {
					idx = len(toolCalls)
					toolCallIndex[key] = idx
					toolCalls = append(toolCalls, tools.ToolCall{ID: delta.ID, Type: delta.Type})
				}
				tc := &toolCalls[idx]
				if delta.Type != "" {
					tc.Type = delta.Type
				}
				if delta.Function.Name != "" {
					tc.Function.Name = delta.Function.Name
				}
				if delta.Function.Arguments != "" {
					tc.Function.Arguments += delta.Function.Arguments
				}
			}
		}
	}

	return content, toolCalls, nil
}

// executeOne runs a single tool call with a hard per-call timeout, emitting
// start/complete events and returning a ToolInvocation whose Output is
// always safe to embed directly into a tool-result message.
func executeOne(ctx context.Context, toolsByName map[string]tools.Tool, tc tools.ToolCall, timeout time.Duration, checker *permissions.Checker, events chan<- Event) ToolInvocation {
	name := tc.Function.Name
	ctx, span := tracer.Start(ctx, "reactloop.tool."+name)
	span.SetAttributes(attribute.String("tool.name", name))
	defer span.End()

	sendEvent(events, Event{Type: EventToolCallStart, ToolName: name, Arguments: tc.Function.Arguments})

	start := time.Now()
	tool, ok := toolsByName[name]
	if !ok {
		out := fmt.Sprintf("Error: unknown tool %q", name)
		sendEvent(events, Event{Type: EventToolCallComplete, ToolName: name, Output: out, Success: false, DurationMS: 0})
		return ToolInvocation{Name: name, Arguments: tc.Function.Arguments, Output: out, Success: false}
	}

	if checker != nil {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		if checker.CheckWithArgs(name, args) == permissions.Deny {
			out := fmt.Sprintf("Error: tool %q was denied by the permission policy", name)
			sendEvent(events, Event{Type: EventToolCallComplete, ToolName: name, Output: out, Success: false, DurationMS: 0})
			return ToolInvocation{Name: name, Arguments: tc.Function.Arguments, Output: out, Success: false}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan toolOutcome, 1)
	go func() {
		parsedCall := tc
		if _, jsonErr := unmarshalArgs(tc.Function.Arguments); jsonErr != nil {
			// Malformed arguments default to an empty object.
			parsedCall.Function.Arguments = "{}"
		}
		res, err := tool.Handler(callCtx, parsedCall)
		resultCh <- toolOutcome{res: res, err: err}
	}()

	var inv ToolInvocation
	select {
	case <-callCtx.Done():
		inv = ToolInvocation{
			Name:      name,
			Arguments: tc.Function.Arguments,
			Output:    fmt.Sprintf("tool timed out after %ds", int(timeout.Seconds())),
			Success:   false,
		}
	case o := <-resultCh:
		if o.err != nil {
			inv = ToolInvocation{Name: name, Arguments: tc.Function.Arguments, Output: "Error: " + o.err.Error(), Success: false}
		} else {
			inv = ToolInvocation{Name: name, Arguments: tc.Function.Arguments, Output: o.res.Output, Success: true}
		}
	}
	inv.DurationMS = time.Since(start).Milliseconds()

	slog.Debug("reactloop: tool call completed", "tool", name, "success", inv.Success, "duration_ms", inv.DurationMS)
	sendEvent(events, Event{Type: EventToolCallComplete, ToolName: name, Output: inv.Output, Success: inv.Success, DurationMS: inv.DurationMS})
	return inv
}

type toolOutcome struct {
	res *tools.ToolCallResult
	err error
}

func unmarshalArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	err := json.Unmarshal([]byte(raw), &m)
	return m, err
}

// sendEvent is a non-blocking-aware best-effort send: Run relies on the
// channel's own back-pressure, so this only guards against a nil
// channel rather than dropping events.
func sendEvent(events chan<- Event, e Event) {
	if events == nil {
		return
	}
	events <- e
}
