package chunk

import (
	"github.com/docker/local-rag-engine/pkg/rag/treesitter"
)

// ChunkCode produces syntax-aware chunks for a source file, splitting on
// function/declaration boundaries (via tree-sitter) instead of the plain
// sliding window, when the language is supported; unsupported languages
// fall back to the sliding window over raw content.
func (c *Chunker) ChunkCode(path string, content []byte, title, source string) []ContextualChunk {
	proc := treesitter.NewDocumentProcessor(c.cfg.ChunkSize, c.cfg.ChunkOverlap, true)
	rawChunks, err := proc.Process(path, content)
	if err != nil || len(rawChunks) == 0 {
		return c.ChunkWithContext(string(content), title, source)
	}

	out := make([]ContextualChunk, 0, len(rawChunks))
	for _, rc := range rawChunks {
		heading := rc.Metadata["function_name"]
		out = append(out, ContextualChunk{
			ChunkIndex:         rc.Index,
			Text:               rc.Content,
			Title:              title,
			Source:             source,
			Heading:            heading,
			Metadata:           cloneMeta(rc.Metadata),
			ContextualizedText: contextualize(rc.Content, title, source, heading),
		})
	}
	return out
}

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
