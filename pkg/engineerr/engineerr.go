// Package engineerr defines the exhaustive set of error kinds the engine
// surfaces across its components, so callers can branch with errors.As
// instead of matching on strings.
package engineerr

import "fmt"

// NotFoundError reports that a referenced entity does not exist.
type NotFoundError struct {
	Kind string // "chunk", "agent", "space", "tool", "file", ...
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// InvalidInputError reports a missing, out-of-range, or schema-violating parameter.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string { return "invalid input: " + e.Reason }

// UnsupportedFormatError reports a file extension or MIME type the parser does not handle.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string { return "unsupported format: " + e.Format }

// ParseFailedError reports that a parser rejected a file.
type ParseFailedError struct {
	Reason string
}

func (e *ParseFailedError) Error() string { return "parse failed: " + e.Reason }

// IndexFailedError reports that the vector or text index refused a write.
type IndexFailedError struct {
	Reason string
}

func (e *IndexFailedError) Error() string { return "index failed: " + e.Reason }

// ModelNotLoadedError reports that an LLM or embedding model is unavailable.
type ModelNotLoadedError struct {
	Model string
}

func (e *ModelNotLoadedError) Error() string { return "model not loaded: " + e.Model }

// InferenceFailedError reports a mid-inference failure that does not poison later calls.
type InferenceFailedError struct {
	Reason string
}

func (e *InferenceFailedError) Error() string { return "inference failed: " + e.Reason }

// ToolError reports a non-retriable tool failure.
type ToolError struct {
	Name    string
	Message string
}

func (e *ToolError) Error() string { return fmt.Sprintf("tool %q failed: %s", e.Name, e.Message) }

// TimeoutError reports a tool, loop iteration, or generation wall-clock limit reached.
type TimeoutError struct {
	Operation string
	Seconds   float64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %.0fs", e.Operation, e.Seconds)
}

// CancelledError reports that an indexing or streaming operation was aborted by request.
// It is not user-facing as an error: the caller requested the cancellation.
type CancelledError struct {
	Operation string
}

func (e *CancelledError) Error() string { return e.Operation + " cancelled" }

// ExhaustedError reports that the tool loop reached max_iterations.
type ExhaustedError struct {
	MaxIterations int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("tool loop exhausted after %d iterations", e.MaxIterations)
}
