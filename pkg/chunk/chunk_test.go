package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkUTF8Safety(t *testing.T) {
	text := strings.Repeat("héllo wörld 日本語 ", 200)
	c := New(Config{ChunkSize: 120, ChunkOverlap: 20, MinChunkSize: 10})

	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Text), "chunk %d not valid utf8", ch.ChunkIndex)
	}
}

func TestChunkNoTextBelowMinSize(t *testing.T) {
	c := New(Config{ChunkSize: 1000, ChunkOverlap: 100, MinChunkSize: 50})
	chunks := c.Chunk("short")
	assert.Empty(t, chunks)
}

func TestChunkIndicesContiguous(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 100)
	c := New(Config{ChunkSize: 200, ChunkOverlap: 40, MinChunkSize: 10})
	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
	}
}

func TestChunkWithContextPrefix(t *testing.T) {
	c := New(DefaultConfig())
	chunks := c.ChunkWithContext(strings.Repeat("body text. ", 5), "My Doc", "my.pdf")
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.True(t, strings.HasPrefix(ch.ContextualizedText, `Document: "My Doc". Source: my.pdf. Section: `))
		assert.Contains(t, ch.ContextualizedText, ch.Text)
		assert.NotContains(t, ch.Text, "Document:")
	}
}

func TestChunkCoverageApprox(t *testing.T) {
	text := strings.Repeat("abcdefghij", 500)
	c := New(Config{ChunkSize: 300, ChunkOverlap: 50, MinChunkSize: 10})
	chunks := c.Chunk(text)
	require.NotEmpty(t, chunks)
	// Every chunk's text must be a contiguous slice of the input.
	pos := 0
	for _, ch := range chunks {
		idx := strings.Index(text[pos:], ch.Text)
		assert.GreaterOrEqual(t, idx, 0)
	}
}
