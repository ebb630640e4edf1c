package oaistream

/*
Shared message conversion between the engine's chat shapes and the OpenAI
chat-completions params, used by both the openai and dmr clients.
*/

import (
	"encoding/json"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/docker/local-rag-engine/pkg/chat"
)

// JSONSchema implements json.Marshaler for map[string]any so schema maps
// can be handed to SDK fields that expect a marshaler.
type JSONSchema map[string]any

func (j JSONSchema) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(j))
}

// ConvertMultiContent converts chat.MessagePart slices to OpenAI content parts.
func ConvertMultiContent(multiContent []chat.MessagePart) []openai.ChatCompletionContentPartUnionParam {
	parts := make([]openai.ChatCompletionContentPartUnionParam, len(multiContent))
	for i, part := range multiContent {
		switch part.Type {
		case chat.MessagePartTypeText:
			parts[i] = openai.TextContentPart(part.Text)
		case chat.MessagePartTypeImageURL:
			if part.ImageURL != nil {
				parts[i] = openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    part.ImageURL.URL,
					Detail: string(part.ImageURL.Detail),
				})
			}
		}
	}
	return parts
}

// ConvertMessages converts a transcript to OpenAI message params, skipping
// assistant turns with no content and no tool calls (a model that ran out
// of tokens can leave one behind).
func ConvertMessages(messages []chat.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		if msg.Role == chat.MessageRoleAssistant && len(msg.ToolCalls) == 0 && len(msg.MultiContent) == 0 && strings.TrimSpace(msg.Content) == "" {
			continue
		}

		switch msg.Role {
		case chat.MessageRoleSystem:
			out = append(out, convertSystem(msg))
		case chat.MessageRoleUser:
			out = append(out, convertUser(msg))
		case chat.MessageRoleAssistant:
			out = append(out, convertAssistant(msg))
		case chat.MessageRoleTool:
			out = append(out, convertTool(msg))
		}
	}
	return out
}

func convertSystem(msg *chat.Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.MultiContent) == 0 {
		return openai.SystemMessage(msg.Content)
	}
	return openai.SystemMessage(textParts(msg.MultiContent))
}

func convertUser(msg *chat.Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.MultiContent) == 0 {
		return openai.UserMessage(msg.Content)
	}
	return openai.UserMessage(ConvertMultiContent(msg.MultiContent))
}

func convertAssistant(msg *chat.Message) openai.ChatCompletionMessageParamUnion {
	assistant := openai.ChatCompletionAssistantMessageParam{}

	if len(msg.MultiContent) == 0 {
		if msg.Content != "" {
			assistant.Content.OfString = param.NewOpt(msg.Content)
		}
	} else {
		var parts []openai.ChatCompletionAssistantMessageParamContentArrayOfContentPartUnion
		for _, part := range msg.MultiContent {
			if part.Type == chat.MessagePartTypeText {
				parts = append(parts, openai.ChatCompletionAssistantMessageParamContentArrayOfContentPartUnion{
					OfText: &openai.ChatCompletionContentPartTextParam{Text: part.Text},
				})
			}
		}
		if len(parts) > 0 {
			assistant.Content.OfArrayOfContentParts = parts
		}
	}

	if msg.FunctionCall != nil {
		assistant.FunctionCall.Name = msg.FunctionCall.Name           //nolint:staticcheck // deprecated but still needed for compatibility
		assistant.FunctionCall.Arguments = msg.FunctionCall.Arguments //nolint:staticcheck // deprecated but still needed for compatibility
	}

	if len(msg.ToolCalls) > 0 {
		toolCalls := make([]openai.ChatCompletionMessageToolCallUnionParam, len(msg.ToolCalls))
		for j, toolCall := range msg.ToolCalls {
			toolCalls[j] = openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: toolCall.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      toolCall.Function.Name,
						Arguments: toolCall.Function.Arguments,
					},
				},
			}
		}
		assistant.ToolCalls = toolCalls
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func convertTool(msg *chat.Message) openai.ChatCompletionMessageParamUnion {
	tool := openai.ChatCompletionToolMessageParam{ToolCallID: msg.ToolCallID}
	if len(msg.MultiContent) == 0 {
		tool.Content.OfString = param.NewOpt(msg.Content)
	} else {
		tool.Content.OfArrayOfContentParts = textParts(msg.MultiContent)
	}
	return openai.ChatCompletionMessageParamUnion{OfTool: &tool}
}

// textParts keeps only the text parts of a multi-content message, the only
// kind system and tool turns can carry on this API.
func textParts(multiContent []chat.MessagePart) []openai.ChatCompletionContentPartTextParam {
	parts := make([]openai.ChatCompletionContentPartTextParam, 0, len(multiContent))
	for _, part := range multiContent {
		if part.Type == chat.MessagePartTypeText {
			parts = append(parts, openai.ChatCompletionContentPartTextParam{Text: part.Text})
		}
	}
	return parts
}

// roleOf reports which union arm a converted message occupies.
func roleOf(msg openai.ChatCompletionMessageParamUnion) string {
	switch {
	case msg.OfSystem != nil:
		return "system"
	case msg.OfUser != nil:
		return "user"
	case msg.OfAssistant != nil:
		return "assistant"
	case msg.OfTool != nil:
		return "tool"
	default:
		return ""
	}
}

// stringContent extracts plain string content from a system or user message.
func stringContent(msg openai.ChatCompletionMessageParamUnion) (string, bool) {
	if msg.OfSystem != nil {
		if str := msg.OfSystem.Content.OfString.Value; str != "" {
			return str, true
		}
	}
	if msg.OfUser != nil {
		if str := msg.OfUser.Content.OfString.Value; str != "" {
			return str, true
		}
	}
	return "", false
}

// multiContentParts extracts a user message's content parts.
func multiContentParts(msg openai.ChatCompletionMessageParamUnion) []openai.ChatCompletionContentPartUnionParam {
	if msg.OfUser != nil && len(msg.OfUser.Content.OfArrayOfContentParts) > 0 {
		return msg.OfUser.Content.OfArrayOfContentParts
	}
	return nil
}

// systemTextParts extracts a system message's text parts.
func systemTextParts(msg openai.ChatCompletionMessageParamUnion) []openai.ChatCompletionContentPartTextParam {
	if msg.OfSystem != nil && len(msg.OfSystem.Content.OfArrayOfContentParts) > 0 {
		return msg.OfSystem.Content.OfArrayOfContentParts
	}
	return nil
}

// MergeConsecutiveMessages folds runs of same-role system or user messages
// into one message. Some local models mishandle consecutive same-role
// turns, so the dmr client always applies this pass.
func MergeConsecutiveMessages(openaiMessages []openai.ChatCompletionMessageParamUnion) []openai.ChatCompletionMessageParamUnion {
	var merged []openai.ChatCompletionMessageParamUnion

	for i := 0; i < len(openaiMessages); i++ {
		role := roleOf(openaiMessages[i])
		if role != "system" && role != "user" {
			merged = append(merged, openaiMessages[i])
			continue
		}

		// Collect the whole run of messages sharing this role.
		var runText string
		var runParts []openai.ChatCompletionContentPartUnionParam
		j := i
		for j < len(openaiMessages) && roleOf(openaiMessages[j]) == role {
			msg := openaiMessages[j]
			if str, ok := stringContent(msg); ok {
				if runText != "" {
					runText += "\n"
				}
				runText += str
			} else if parts := multiContentParts(msg); parts != nil {
				runParts = append(runParts, parts...)
			} else {
				for _, textPart := range systemTextParts(msg) {
					runParts = append(runParts, openai.ChatCompletionContentPartUnionParam{
						OfText: &openai.ChatCompletionContentPartTextParam{Text: textPart.Text},
					})
				}
			}
			j++
		}

		switch {
		case role == "system" && len(runParts) == 0:
			merged = append(merged, openai.SystemMessage(runText))
		case role == "system":
			var parts []openai.ChatCompletionContentPartTextParam
			for _, part := range runParts {
				if part.OfText != nil {
					parts = append(parts, *part.OfText)
				}
			}
			merged = append(merged, openai.SystemMessage(parts))
		case len(runParts) == 0:
			merged = append(merged, openai.UserMessage(runText))
		default:
			merged = append(merged, openai.UserMessage(runParts))
		}

		i = j - 1
	}

	return merged
}
