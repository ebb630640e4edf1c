package chunk

import (
	"strings"

	"github.com/docker/local-rag-engine/pkg/docparse"
)

// ChunkStructured converts parsed sections into ContextualChunks,
// preserving the atomicity of form-field blocks and tables when they fit
// within twice the configured chunk size; larger blocks are split by row
// group (tables, repeating the header in every split) or line group
// (forms), and plain-text sections fall back to the sliding window.
func (c *Chunker) ChunkStructured(sections []docparse.Section, title, source string) []ContextualChunk {
	var out []ContextualChunk
	for _, sec := range sections {
		switch sec.Type {
		case docparse.SectionFormFields:
			out = append(out, c.chunkFormFields(sec, title, source)...)
		case docparse.SectionTable:
			out = append(out, c.chunkTable(sec, title, source)...)
		case docparse.SectionRelationship:
			text := sec.RelationKey + ": " + sec.RelationValue
			out = append(out, c.wrapPlain(text, sec, title, source)...)
		default:
			out = append(out, c.chunkPlainSection(sec, title, source)...)
		}
	}
	for i := range out {
		out[i].ChunkIndex = i
	}
	return out
}

func (c *Chunker) chunkPlainSection(sec docparse.Section, title, source string) []ContextualChunk {
	chunks := c.Chunk(sec.Text)
	for i := range chunks {
		chunks[i].Heading = sec.Heading
		chunks[i].Title = title
		chunks[i].Source = source
		chunks[i].ContextualizedText = contextualize(chunks[i].Text, title, source, sec.Heading)
		chunks[i].Citation = Citation{Source: source, Page: pageOrNil(sec.Page)}
	}
	return chunks
}

func (c *Chunker) wrapPlain(text string, sec docparse.Section, title, source string) []ContextualChunk {
	if len(text) < c.cfg.MinChunkSize {
		return nil
	}
	return []ContextualChunk{{
		Text:               text,
		Heading:            sec.Heading,
		Title:              title,
		Source:             source,
		ContextualizedText: contextualize(text, title, source, sec.Heading),
		Citation:           Citation{Source: source, Page: pageOrNil(sec.Page)},
	}}
}

func (c *Chunker) chunkFormFields(sec docparse.Section, title, source string) []ContextualChunk {
	lines := make([]string, 0, len(sec.Fields))
	for _, f := range sec.Fields {
		lines = append(lines, f.Label+": "+f.Value)
	}
	full := strings.Join(lines, "\n")

	if len(full) <= 2*c.cfg.ChunkSize {
		return c.wrapPlain(full, sec, title, source)
	}

	// Split by line groups so each emitted chunk stays under ChunkSize.
	var out []ContextualChunk
	var group []string
	groupLen := 0
	flush := func() {
		if len(group) == 0 {
			return
		}
		text := strings.Join(group, "\n")
		out = append(out, c.wrapPlain(text, sec, title, source)...)
		group = nil
		groupLen = 0
	}
	for _, line := range lines {
		if groupLen+len(line)+1 > c.cfg.ChunkSize && len(group) > 0 {
			flush()
		}
		group = append(group, line)
		groupLen += len(line) + 1
	}
	flush()
	return out
}

func (c *Chunker) chunkTable(sec docparse.Section, title, source string) []ContextualChunk {
	if len(sec.Table.Header) == 0 && len(sec.Table.Rows) == 0 {
		return c.chunkPlainSection(sec, title, source)
	}
	headerLine := formatRow(sec.Table.Header)
	var rowLines []string
	for _, r := range sec.Table.Rows {
		rowLines = append(rowLines, formatRow(r))
	}
	full := headerLine + "\n" + strings.Join(rowLines, "\n")
	if sec.Table.Caption != "" {
		full = sec.Table.Caption + "\n" + full
	}

	if len(full) <= 2*c.cfg.ChunkSize {
		return c.wrapPlain(full, sec, title, source)
	}

	var out []ContextualChunk
	var group []string
	groupLen := len(headerLine) + 1
	flush := func() {
		if len(group) == 0 {
			return
		}
		text := headerLine + "\n" + strings.Join(group, "\n")
		if sec.Table.Caption != "" {
			text = sec.Table.Caption + "\n" + text
		}
		out = append(out, c.wrapPlain(text, sec, title, source)...)
		group = nil
		groupLen = len(headerLine) + 1
	}
	for _, line := range rowLines {
		if groupLen+len(line)+1 > c.cfg.ChunkSize && len(group) > 0 {
			flush()
		}
		group = append(group, line)
		groupLen += len(line) + 1
	}
	flush()
	return out
}

func formatRow(cells []string) string {
	return "| " + strings.Join(cells, " | ") + " |"
}

func pageOrNil(page int) *int {
	if page <= 0 {
		return nil
	}
	p := page
	return &p
}
