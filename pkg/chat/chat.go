// Package chat defines the provider-agnostic chat message shapes shared by
// every model provider (pkg/model/provider/*) and the tool-calling loop. It
// mirrors OpenAI's chat-completions wire shape, the lingua franca the rest
// of the stack adapts to/from, and adds small file-attachment helpers used
// when a user or tool attaches a document to a conversation turn.
package chat

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/local-rag-engine/pkg/tools"
)

// MessageRole identifies the speaker of a chat message.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// MessagePartType discriminates the kind of content inside a MessagePart.
type MessagePartType string

const (
	MessagePartTypeText     MessagePartType = "text"
	MessagePartTypeImageURL MessagePartType = "image_url"
	MessagePartTypeFile     MessagePartType = "file"
)

// ImageURLDetail controls how much of the image budget a provider spends
// decoding an attached image, matching the OpenAI vision parameter.
type ImageURLDetail string

const (
	ImageURLDetailAuto ImageURLDetail = "auto"
	ImageURLDetailLow  ImageURLDetail = "low"
	ImageURLDetailHigh ImageURLDetail = "high"
)

// MessageImageURL is an image attachment, either a remote URL or a data URI.
type MessageImageURL struct {
	URL    string         `json:"url"`
	Detail ImageURLDetail `json:"detail,omitempty"`
}

// MessageFile is a document attachment, addressed either by a local path
// (providers without native upload support inline it as text) or by a
// provider-side FileID returned from a prior upload.
type MessageFile struct {
	Path     string `json:"path,omitempty"`
	FileID   string `json:"file_id,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// MessagePart is one element of a multi-part (text + image + file) message.
type MessagePart struct {
	Type     MessagePartType  `json:"type"`
	Text     string           `json:"text,omitempty"`
	ImageURL *MessageImageURL `json:"image_url,omitempty"`
	File     *MessageFile     `json:"file,omitempty"`
}

// Message is a single chat turn. Content carries plain-text turns;
// MultiContent carries turns with images or file attachments alongside text.
// Assistant turns that invoke tools set ToolCalls and leave Content empty;
// the corresponding tool-result turns use MessageRoleTool with ToolCallID
// set to the call being answered.
type Message struct {
	Role         MessageRole        `json:"role"`
	Content      string             `json:"content,omitempty"`
	MultiContent []MessagePart      `json:"multi_content,omitempty"`
	ToolCalls    []tools.ToolCall   `json:"tool_calls,omitempty"`
	ToolCallID   string             `json:"tool_call_id,omitempty"`
	Name         string             `json:"name,omitempty"`
	FunctionCall *tools.FunctionCall `json:"function_call,omitempty"`

	// ReasoningContent carries extended-thinking output from providers that
	// expose it on the chat-completions wire shape.
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// Messages is a conversation transcript.
type Messages = []Message

// FinishReason explains why a provider stopped generating a choice.
type FinishReason string

const (
	FinishReasonNull          FinishReason = ""
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// Usage reports token accounting for a completion, including the cache and
// reasoning breakdowns providers report when prompt caching or extended
// thinking is in play.
type Usage struct {
	InputTokens       int64 `json:"input_tokens"`
	OutputTokens      int64 `json:"output_tokens"`
	CachedInputTokens int64 `json:"cached_input_tokens,omitempty"`
	ReasoningTokens   int64 `json:"reasoning_tokens,omitempty"`
}

// MessageDelta is the incremental content of one streamed chunk.
type MessageDelta struct {
	Role         string             `json:"role,omitempty"`
	Content      string             `json:"content,omitempty"`
	ToolCalls    []tools.ToolCall   `json:"tool_calls,omitempty"`
	FunctionCall *tools.FunctionCall `json:"function_call,omitempty"`

	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// MessageStreamChoice is one candidate within a streamed chunk.
type MessageStreamChoice struct {
	Index        int          `json:"index"`
	Delta        MessageDelta `json:"delta"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
}

// MessageStreamResponse is one chunk of a streamed completion, shaped after
// the OpenAI chat-completion-chunk object every provider adapter converts
// into.
type MessageStreamResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []MessageStreamChoice  `json:"choices"`
	Usage   *Usage                 `json:"usage,omitempty"`
}

// MessageStream is a provider-agnostic handle on a streaming chat
// completion. Recv blocks until the next chunk is available, returning
// io.EOF once the stream is exhausted. Close releases the underlying
// connection; it is safe to call Close before draining Recv.
type MessageStream interface {
	Recv() (MessageStreamResponse, error)
	Close()
}

// mimeByExtension maps well-known file extensions to MIME types. Extensions
// not present here either fall through to the text-file allowlist (source
// code, config, markup) or are reported as application/octet-stream.
var mimeByExtension = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// textExtensions lists extensions treated as text/plain regardless of
// content, covering source code, markup, and config formats a RAG pipeline
// or chat attachment is likely to carry.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".json": true, ".csv": true,
	".tsv": true, ".go": true, ".py": true, ".yaml": true, ".yml": true,
	".mk": true, ".html": true, ".htm": true, ".css": true, ".ts": true,
	".tsx": true, ".js": true, ".jsx": true, ".rs": true, ".java": true,
	".sh": true, ".bash": true, ".toml": true, ".sql": true, ".dockerfile": true,
	".graphql": true, ".gql": true, ".svg": true, ".diff": true, ".patch": true,
	".xml": true, ".org": true, ".cpp": true, ".cc": true, ".c": true, ".h": true,
	".hpp": true, ".ex": true, ".exs": true, ".hs": true, ".swift": true,
	".kt": true, ".kts": true, ".dart": true, ".zig": true, ".cfg": true,
	".ini": true, ".rst": true, ".tex": true,
}

// supportedMimeTypes are the attachment MIME types a provider is expected to
// accept inline (as opposed to requiring an upload API or being rejected).
var supportedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
	"text/plain":      true,
}

// DetectMimeType returns the MIME type implied by path's extension. Known
// image and PDF extensions map to their specific type; known text
// extensions, files named Dockerfile or Makefile, and dotfiles map to
// text/plain; everything else is reported as application/octet-stream.
func DetectMimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := mimeByExtension[ext]; ok {
		return mt
	}
	if textExtensions[ext] {
		return "text/plain"
	}
	base := strings.ToLower(filepath.Base(path))
	if base == "dockerfile" || base == "makefile" || strings.HasPrefix(base, ".") {
		return "text/plain"
	}
	return "application/octet-stream"
}

// IsSupportedMimeType reports whether a provider can accept mimeType as an
// inline attachment.
func IsSupportedMimeType(mimeType string) bool {
	return supportedMimeTypes[mimeType]
}

// IsTextFile reports whether path should be treated as text, first by
// extension and falling back to sniffing the first bytes for a NUL byte
// when the file exists but its extension is not in the known allowlist.
func IsTextFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if textExtensions[ext] {
		return true
	}
	base := strings.ToLower(filepath.Base(path))
	if base == "dockerfile" || base == "makefile" || strings.HasPrefix(base, ".") {
		return true
	}
	if _, known := mimeByExtension[ext]; known {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false
	}
	if n == 0 {
		return true
	}
	for _, b := range buf[:n] {
		if b == 0 {
			return false
		}
	}
	return true
}

// ReadFileForInline reads path and wraps it in an <attached_file> tag the
// model sees inline in the conversation, used for providers or attachment
// kinds that have no native file-upload API.
func ReadFileForInline(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading attachment %s: %w", path, err)
	}
	return fmt.Sprintf("<attached_file path=%q>\n%s\n</attached_file>", path, string(data)), nil
}
