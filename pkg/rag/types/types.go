// Package types holds the document shape handed to reranking providers.
package types

// Document is one candidate chunk presented to a reranking model: its text
// plus enough source context for criteria-driven scoring.
type Document struct {
	Content    string            // the chunk text
	SourcePath string            // file path or document identifier
	Metadata   map[string]string // optional custom metadata (date, author, tags)
	ChunkIndex int               // 0-based position within the source document
}
