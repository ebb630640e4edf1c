package indexing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/local-rag-engine/pkg/chat"
	"github.com/docker/local-rag-engine/pkg/chunk"
	"github.com/docker/local-rag-engine/pkg/docparse"
	"github.com/docker/local-rag-engine/pkg/model/provider/base"
	"github.com/docker/local-rag-engine/pkg/rag/embed"
	"github.com/docker/local-rag-engine/pkg/store"
	"github.com/docker/local-rag-engine/pkg/tools"
)

const testDim = 4

// hashingProvider turns text into a small deterministic vector instead of
// calling a real embedding model, so tests don't depend on network access.
type hashingProvider struct{}

func (hashingProvider) ID() string              { return "hashing" }
func (hashingProvider) BaseConfig() base.Config { return base.Config{} }
func (hashingProvider) CreateChatCompletion(context.Context, []chat.Message) (string, error) {
	return "", nil
}
func (hashingProvider) CreateChatCompletionStream(context.Context, []chat.Message, []tools.Tool) (chat.MessageStream, error) {
	return nil, nil
}

func (hashingProvider) CreateEmbedding(_ context.Context, text string) (*base.EmbeddingResult, error) {
	return &base.EmbeddingResult{Embedding: hashVector(text), TotalTokens: int64(len(text))}, nil
}

func (hashingProvider) CreateBatchEmbedding(_ context.Context, texts []string) (*base.BatchEmbeddingResult, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = hashVector(t)
	}
	return &base.BatchEmbeddingResult{Embeddings: out}, nil
}

func hashVector(text string) []float64 {
	v := make([]float64, testDim)
	for i, b := range []byte(text) {
		v[i%testDim] += float64(b)
	}
	return v
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "vectors.db")
	vecStore, err := store.Open(dbPath, testDim)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vecStore.Close() })

	textIndex, err := store.OpenTextIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = textIndex.Close() })

	return New(docparse.NewRegistry(), chunk.New(chunk.DefaultConfig()), embed.New(hashingProvider{}), vecStore, textIndex)
}

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPipeline_IndexFile(t *testing.T) {
	p := newTestPipeline(t)
	dir := t.TempDir()
	path := writeTempFile(t, dir, "notes.txt", "Onboarding policy: read the handbook before day one.")

	result, err := p.IndexFile(context.Background(), path, "space-1")
	require.NoError(t, err)
	assert.Positive(t, result.ChunksCreated)

	hits, err := p.store.List(context.Background(), store.Predicate{SpaceID: "space-1"}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, path, hits[0].Chunk.Metadata["file_path"])
	assert.Equal(t, "text", hits[0].Chunk.Metadata["file_type"])
}

func TestPipeline_IndexFile_UnsupportedFormat(t *testing.T) {
	p := newTestPipeline(t)
	dir := t.TempDir()
	path := writeTempFile(t, dir, "archive.zzz", "opaque binary content")

	_, err := p.IndexFile(context.Background(), path, "space-1")
	require.Error(t, err)
}

func TestPipeline_Preview(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "a.txt", "hello")
	writeTempFile(t, dir, "b.md", "# title")
	writeTempFile(t, dir, "c.txt", "world")

	preview, err := Preview(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, preview.TotalFiles)
	assert.Equal(t, 2, preview.FilesByType["txt"])
	assert.Equal(t, 1, preview.FilesByType["md"])
}

func TestPipeline_IndexFolder_ProcessesEveryFile(t *testing.T) {
	p := newTestPipeline(t)
	dir := t.TempDir()
	writeTempFile(t, dir, "a.txt", "first document body text long enough to chunk maybe")
	writeTempFile(t, dir, "b.txt", "second document body text also long enough to chunk")
	skipPath := writeTempFile(t, dir, "skip.bin", "ignored")

	result, err := p.IndexFolder(context.Background(), dir, "space-1", Options{Exclude: []string{skipPath}}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FilesProcessed)
	assert.Empty(t, result.FailedFiles)
	assert.Positive(t, result.TotalChunks)
}

func TestPipeline_IndexFolder_RecordsFailedFilesWithoutAborting(t *testing.T) {
	p := newTestPipeline(t)
	dir := t.TempDir()
	writeTempFile(t, dir, "good.txt", "a perfectly normal document body")
	writeTempFile(t, dir, "bad.zzz", "unsupported extension content")

	result, err := p.IndexFolder(context.Background(), dir, "space-1", Options{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesProcessed)
	require.Len(t, result.FailedFiles, 1)
	assert.Contains(t, result.FailedFiles[0].Path, "bad.zzz")
}

func TestPipeline_IndexFolder_CancelStopsEarly(t *testing.T) {
	p := newTestPipeline(t)
	dir := t.TempDir()
	for i := range 5 {
		writeTempFile(t, dir, numberedFileName(i), "document body text for cancellation test")
	}

	state := NewState()
	state.Cancel()

	result, err := p.IndexFolder(context.Background(), dir, "space-1", Options{}, state, nil)
	require.Error(t, err)
	assert.Equal(t, 0, result.FilesProcessed)
}

func TestPipeline_IndexFolder_PauseBlocksUntilResumed(t *testing.T) {
	p := newTestPipeline(t)
	dir := t.TempDir()
	writeTempFile(t, dir, "only.txt", "a document with enough content to produce a chunk")

	state := NewState()
	state.Pause()

	done := make(chan FolderResult, 1)
	go func() {
		result, err := p.IndexFolder(context.Background(), dir, "space-1", Options{}, state, nil)
		require.NoError(t, err)
		done <- result
	}()

	select {
	case <-done:
		t.Fatal("index_folder should not complete while paused")
	case <-time.After(150 * time.Millisecond):
	}

	state.Resume()
	select {
	case result := <-done:
		assert.Equal(t, 1, result.FilesProcessed)
	case <-time.After(3 * time.Second):
		t.Fatal("index_folder did not resume after Resume()")
	}
}

func TestPipeline_IndexFolder_EmitsThrottledProgress(t *testing.T) {
	p := newTestPipeline(t)
	dir := t.TempDir()
	for i := range 3 {
		writeTempFile(t, dir, numberedFileName(i), "document body text for progress test")
	}

	events := make(chan ProgressEvent, 16)
	result, err := p.IndexFolder(context.Background(), dir, "space-1", Options{}, nil, events)
	require.NoError(t, err)
	close(events)

	var last ProgressEvent
	count := 0
	for e := range events {
		count++
		last = e
	}
	assert.Positive(t, count)
	assert.Equal(t, result.FilesProcessed, last.ProcessedFiles)
	assert.InDelta(t, 100.0, last.Percentage, 0.01)
}

func numberedFileName(i int) string {
	return "file" + string(rune('a'+i)) + ".txt"
}
