package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/local-rag-engine/pkg/chat"
	"github.com/docker/local-rag-engine/pkg/model/provider/base"
	"github.com/docker/local-rag-engine/pkg/tools"
)

// countingProvider serves fixed embeddings and counts provider calls so
// tests can observe cache hits.
type countingProvider struct {
	calls int
}

func (p *countingProvider) ID() string              { return "counting" }
func (p *countingProvider) BaseConfig() base.Config { return base.Config{} }
func (p *countingProvider) CreateChatCompletion(context.Context, []chat.Message) (string, error) {
	return "", nil
}
func (p *countingProvider) CreateChatCompletionStream(context.Context, []chat.Message, []tools.Tool) (chat.MessageStream, error) {
	return nil, nil
}
func (p *countingProvider) CreateEmbedding(_ context.Context, text string) (*base.EmbeddingResult, error) {
	p.calls++
	return &base.EmbeddingResult{Embedding: []float64{float64(len(text)), 1, 0}}, nil
}

func TestEmbed_CachesRepeatedText(t *testing.T) {
	p := &countingProvider{}
	e := New(p)

	first, err := e.Embed(context.Background(), "query: what is the onboarding policy")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "query: what is the onboarding policy")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, p.calls)
}

func TestEmbed_CacheDistinguishesModes(t *testing.T) {
	p := &countingProvider{}
	e := New(p)

	_, err := e.Embed(context.Background(), "query: same content")
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "passage: same content")
	require.NoError(t, err)

	assert.Equal(t, 2, p.calls)
}

func TestCacheKey_ModePrefix(t *testing.T) {
	q := cacheKey("query: hello")
	pa := cacheKey("passage: hello")
	assert.NotEqual(t, q, pa)
	assert.Contains(t, q, "query:")
	assert.Contains(t, pa, "passage:")
}
