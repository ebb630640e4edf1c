package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/local-rag-engine/pkg/chunk"
	"github.com/docker/local-rag-engine/pkg/store"
)

func TestContentBoostPrefersTextMatchOverPathMatch(t *testing.T) {
	hits := []store.Hit{
		{Chunk: chunk.Chunk{ID: "path-match", Text: "unrelated content", Metadata: map[string]string{"file_path": "/docs/salary_report.txt"}}, Score: 0.5},
		{Chunk: chunk.Chunk{ID: "text-match", Text: "the salary details are here", Metadata: map[string]string{"file_path": "/docs/misc.txt"}}, Score: 0.5},
	}

	boosted := ContentBoost("salary", hits)
	require.Len(t, boosted, 2)
	assert.Equal(t, "text-match", boosted[0].Chunk.ID)
	assert.Greater(t, boosted[0].Score, boosted[1].Score)
}

func TestContentBoostIsStableOnTies(t *testing.T) {
	hits := []store.Hit{
		{Chunk: chunk.Chunk{ID: "first"}, Score: 1.0},
		{Chunk: chunk.Chunk{ID: "second"}, Score: 1.0},
	}
	boosted := ContentBoost("nomatch query", hits)
	require.Len(t, boosted, 2)
	assert.Equal(t, "first", boosted[0].Chunk.ID)
	assert.Equal(t, "second", boosted[1].Chunk.ID)
}

func TestTokenizeDropsShortWords(t *testing.T) {
	tokens := tokenize("it is a Salary-Report for HR")
	assert.Contains(t, tokens, "salary")
	assert.Contains(t, tokens, "report")
	assert.NotContains(t, tokens, "is")
	assert.NotContains(t, tokens, "a")
}
