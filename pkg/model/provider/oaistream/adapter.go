package oaistream

/*
This is a shared adapter for OpenAI-compatible streams.
*/

import (
	"encoding/json"
	"io"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/docker/local-rag-engine/pkg/chat"
	"github.com/docker/local-rag-engine/pkg/tools"
)

// StreamAdapter adapts the OpenAI stream to our interface
type StreamAdapter struct {
	stream           *ssestream.Stream[openai.ChatCompletionChunk]
	lastFinishReason chat.FinishReason
	toolCalls        map[int64]string
	trackUsage       bool
}

func NewStreamAdapter(stream *ssestream.Stream[openai.ChatCompletionChunk], trackUsage bool) *StreamAdapter {
	return &StreamAdapter{
		stream:     stream,
		toolCalls:  make(map[int64]string),
		trackUsage: trackUsage,
	}
}

// Recv gets the next completion chunk
func (a *StreamAdapter) Recv() (chat.MessageStreamResponse, error) {
	if !a.stream.Next() {
		if err := a.stream.Err(); err != nil {
			return chat.MessageStreamResponse{}, err
		}
		return chat.MessageStreamResponse{}, io.EOF
	}

	chunk := a.stream.Current()

	// Convert the OpenAI response to our generic format
	response := chat.MessageStreamResponse{
		ID:      chunk.ID,
		Object:  string(chunk.Object),
		Created: chunk.Created,
		Model:   chunk.Model,
		Choices: make([]chat.MessageStreamChoice, len(chunk.Choices)),
	}

	if chunk.JSON.Usage.Valid() {
		response.Usage = &chat.Usage{
			InputTokens:       chunk.Usage.PromptTokens,
			OutputTokens:      chunk.Usage.CompletionTokens,
			CachedInputTokens: chunk.Usage.PromptTokensDetails.CachedTokens,
			ReasoningTokens:   chunk.Usage.CompletionTokensDetails.ReasoningTokens,
		}
		if len(chunk.Choices) == 0 {
			// The usage-only trailer chunk carries the finish reason we held
			// back while waiting for it.
			finishReason := a.lastFinishReason
			if finishReason == "" {
				finishReason = chat.FinishReasonStop
			}
			response.Choices = append(response.Choices, chat.MessageStreamChoice{
				FinishReason: finishReason,
			})
		}
	}

	// Convert the choices
	for i := range chunk.Choices {
		choice := &chunk.Choices[i]

		finishReason := chat.FinishReason(choice.FinishReason)
		if a.trackUsage && (finishReason == chat.FinishReasonStop || finishReason == chat.FinishReasonLength) {
			// Hold the finish reason until the usage trailer arrives so the
			// consumer sees usage and completion together.
			a.lastFinishReason = finishReason
			finishReason = chat.FinishReasonNull
		}

		response.Choices[i] = chat.MessageStreamChoice{
			Index:        int(choice.Index),
			FinishReason: finishReason,
			Delta: chat.MessageDelta{
				Role:             choice.Delta.Role,
				Content:          choice.Delta.Content,
				ReasoningContent: reasoningContent(choice),
			},
		}

		// Convert tool calls if present
		if len(choice.Delta.ToolCalls) > 0 {
			response.Choices[i].Delta.ToolCalls = make([]tools.ToolCall, len(choice.Delta.ToolCalls))
			for j, toolCall := range choice.Delta.ToolCalls {
				id := toolCall.ID
				if existing, ok := a.toolCalls[toolCall.Index]; ok && id == "" {
					id = existing
				} else {
					a.toolCalls[toolCall.Index] = id
				}

				response.Choices[i].Delta.ToolCalls[j] = tools.ToolCall{
					ID:   id,
					Type: tools.ToolType(toolCall.Type),
					Function: tools.FunctionCall{
						Name:      toolCall.Function.Name,
						Arguments: toolCall.Function.Arguments,
					},
				}
			}
		}
	}

	return response, nil
}

// reasoningContent extracts the non-standard reasoning_content delta field
// emitted by DeepSeek-style OpenAI-compatible servers; the official SDK
// surfaces unknown fields only through the raw JSON metadata.
func reasoningContent(choice *openai.ChatCompletionChunkChoice) string {
	raw := choice.Delta.JSON.ExtraFields["reasoning_content"].Raw()
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return ""
	}
	return s
}

// Close closes the stream
func (a *StreamAdapter) Close() {
	_ = a.stream.Close()
}
