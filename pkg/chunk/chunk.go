// Package chunk produces contextualised, structure-aware chunks from
// parsed document text, following the sliding-window strategy the
// retrieval engine's dense and lexical indexes are built on.
package chunk

import (
	"fmt"
	"strings"
	"time"
)

// Citation is the structured source descriptor attached to a Chunk.
type Citation struct {
	Source    string
	Page      *int
	LineStart *int
	LineEnd   *int
}

// Chunk is the atomic indexed unit.
type Chunk struct {
	ID                 string
	DocID              string
	ChunkIndex         int
	Text               string
	ContextualizedText string
	Title              string
	Source             string
	Heading            string
	SpaceID            string
	Metadata           map[string]string
	Citation           Citation
	Vector             []float64
	CreatedAt          time.Time
}

// Config holds the sliding-window parameters.
type Config struct {
	ChunkSize     int
	ChunkOverlap  int
	MinChunkSize  int
}

// DefaultConfig holds sensible defaults for general prose.
func DefaultConfig() Config {
	return Config{ChunkSize: 1000, ChunkOverlap: 200, MinChunkSize: 50}
}

// Chunker splits text and parsed sections into Chunks.
type Chunker struct {
	cfg Config
}

// New builds a Chunker. A non-positive ChunkSize or MinChunkSize takes the
// DefaultConfig value; a ChunkOverlap that is negative or not smaller than
// ChunkSize becomes ChunkSize/5. A zero ChunkOverlap is kept as zero.
func New(cfg Config) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	if cfg.MinChunkSize <= 0 {
		cfg.MinChunkSize = 50
	}
	return &Chunker{cfg: cfg}
}

// breakPoints are searched for, in priority order, within the last 200
// bytes of a candidate chunk end, so splits prefer natural boundaries.
var breakPoints = []string{"\n\n", ". ", ".\n", "\n", " "}

const breakSearchWindow = 200

// Chunk splits text into a sliding window of Chunks. No emitted chunk's
// start or end offset splits a UTF-8 code point, and every emitted
// chunk's Text is at least MinChunkSize bytes, except when text itself
// is shorter than MinChunkSize (in which case nothing is emitted).
func (c *Chunker) Chunk(text string) []Chunk {
	if len(text) == 0 {
		return nil
	}
	if len(text) <= c.cfg.ChunkSize {
		if len(text) < c.cfg.MinChunkSize {
			return nil
		}
		return []Chunk{{ChunkIndex: 0, Text: text}}
	}

	var chunks []Chunk
	start := 0
	index := 0

	for start < len(text) {
		rawEnd := start + c.cfg.ChunkSize
		if rawEnd > len(text) {
			rawEnd = len(text)
		}
		end := snapDown(text, rawEnd)

		actualEnd := end
		if end < len(text) {
			actualEnd = c.findBreakPoint(text, start, end)
		}
		actualEnd = snapDown(text, actualEnd)
		if actualEnd <= start {
			actualEnd = end
		}

		chunkText := text[start:actualEnd]
		if len(chunkText) >= c.cfg.MinChunkSize {
			chunks = append(chunks, Chunk{ChunkIndex: index, Text: chunkText})
			index++
		}

		if actualEnd >= len(text) {
			break
		}

		step := actualEnd - start - c.cfg.ChunkOverlap
		nextStart := start + step
		if nextStart <= start {
			nextStart = start + 1
		}
		start = snapDown(text, nextStart)
		if start <= actualEnd-c.cfg.ChunkSize {
			// guard against pathological overlap configs stalling progress
			start = actualEnd
		}
	}

	return chunks
}

// findBreakPoint searches backward from end, within breakSearchWindow
// bytes, for the first breakPoints entry (checked in priority order),
// and returns the offset just after the matched separator. Falls back
// to end when nothing is found, still guaranteeing forward progress.
func (c *Chunker) findBreakPoint(text string, start, end int) int {
	windowStart := end - breakSearchWindow
	if windowStart < start {
		windowStart = start
	}
	window := text[windowStart:end]

	for _, sep := range breakPoints {
		if idx := strings.LastIndex(window, sep); idx >= 0 {
			candidate := windowStart + idx + len(sep)
			if candidate > start {
				return candidate
			}
		}
	}
	return end
}

// snapDown rounds i down to the nearest UTF-8 code-point boundary.
func snapDown(s string, i int) int {
	if i <= 0 {
		return 0
	}
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && isUTF8Continuation(s[i]) {
		i--
	}
	return i
}

func isUTF8Continuation(b byte) bool {
	return b&0xC0 == 0x80
}

// ContextualChunk is a Chunk whose ContextualizedText has been populated.
type ContextualChunk = Chunk

const contextPrefixFmt = "Document: %q. Source: %s. Section: %s."

// ChunkWithContext chunks text and populates ContextualizedText with the
// required prefix without altering Text.
func (c *Chunker) ChunkWithContext(text, title, source string) []ContextualChunk {
	chunks := c.Chunk(text)
	for i := range chunks {
		chunks[i].Title = title
		chunks[i].Source = source
		chunks[i].ContextualizedText = contextualize(chunks[i].Text, title, source, chunks[i].Heading)
	}
	return chunks
}

func contextualize(text, title, source, heading string) string {
	return fmt.Sprintf(contextPrefixFmt, title, source, heading) + text
}

// NewID assigns a stable, opaque chunk id for (docID, chunkIndex).
func NewID(docID string, chunkIndex int) string {
	return fmt.Sprintf("%s#%d", docID, chunkIndex)
}

// Finalize stamps DocID, ID, SpaceID, CreatedAt and Metadata onto a batch
// of chunks produced by Chunk/ChunkWithContext/ChunkStructured.
func Finalize(chunks []Chunk, docID, spaceID string, extraMeta map[string]string) []Chunk {
	now := time.Now()
	for i := range chunks {
		chunks[i].DocID = docID
		chunks[i].ChunkIndex = i
		chunks[i].ID = NewID(docID, i)
		chunks[i].SpaceID = spaceID
		chunks[i].CreatedAt = now
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]string, len(extraMeta)+1)
		}
		for k, v := range extraMeta {
			chunks[i].Metadata[k] = v
		}
		chunks[i].Metadata["space_id"] = spaceID
	}
	return chunks
}
