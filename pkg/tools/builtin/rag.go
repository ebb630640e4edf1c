package builtin

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docker/local-rag-engine/pkg/engineerr"
	"github.com/docker/local-rag-engine/pkg/retrieval"
	"github.com/docker/local-rag-engine/pkg/store"
	"github.com/docker/local-rag-engine/pkg/tools"
)

// RAGTool exposes the retrieval engine as the built-in "rag_search"
// tool the ReAct loop can invoke. A RAGTool searches one space, or every
// space when its spaceID is empty.
type RAGTool struct {
	tools.BaseToolSet
	engine   *retrieval.Engine
	toolName string
	spaceID  string
}

var _ tools.ToolSet = (*RAGTool)(nil)

// NewRAGTool creates the rag_search tool backed by engine, optionally scoped
// to a single space (spaceID == "" searches every space).
func NewRAGTool(engine *retrieval.Engine, toolName, spaceID string) *RAGTool {
	return &RAGTool{engine: engine, toolName: cmp.Or(toolName, "rag_search"), spaceID: spaceID}
}

// QueryRAGArgs is the rag_search tool's JSON-schema-shaped argument set,
// matching the {"query":"...","top_k":N} shape scenario S3 exercises.
type QueryRAGArgs struct {
	Query string `json:"query" jsonschema:"Search query"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"Maximum number of chunks to return (default 5)"`
}

// QueryResult is one citation-bearing chunk returned to the model.
type QueryResult struct {
	Source     string  `json:"source" jsonschema:"Path or title of the source document"`
	Text       string  `json:"text" jsonschema:"Retrieved chunk text"`
	Similarity float64 `json:"similarity" jsonschema:"Fused relevance score"`
	ChunkIndex int     `json:"chunk_index" jsonschema:"Index of the chunk within the source document"`
	Page       *int    `json:"page,omitempty" jsonschema:"Page number, when the source is paginated"`
}

func (t *RAGTool) Instructions() string {
	return fmt.Sprintf("Search indexed documents via %s to find relevant passages before answering questions "+
		"about their content. Provide a natural-language query describing what you need.", t.toolName)
}

func (t *RAGTool) Tools(context.Context) ([]tools.Tool, error) {
	tool := tools.Tool{
		Name:     t.toolName,
		Category: "knowledge",
		Description: fmt.Sprintf("Search indexed documents to find relevant passages. "+
			"Returns the most relevant chunks with their source and similarity score. (%s)", t.toolName),
		Parameters:   tools.MustSchemaFor[QueryRAGArgs](),
		OutputSchema: tools.MustSchemaFor[[]QueryResult](),
		Handler:      NewHandler(t.handleQueryRAG),
		Annotations: tools.ToolAnnotation{
			ReadOnlyHint: true,
			Title:        fmt.Sprintf("Query %s", t.toolName),
		},
	}
	return []tools.Tool{tool}, nil
}

// handleQueryRAG runs the retrieval pipeline for args.Query. A
// ModelNotLoaded failure from the embedder is converted into a graceful
// empty-result tool response rather than propagated as a tool error, so the
// agent can continue without retrieval instead of aborting the loop.
func (t *RAGTool) handleQueryRAG(ctx context.Context, args QueryRAGArgs) (*tools.ToolCallResult, error) {
	if args.Query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	topK := cmp.Or(args.TopK, 5)

	result, err := t.engine.Search(ctx, nil, args.Query, store.Predicate{SpaceID: t.spaceID})
	if err != nil {
		var notLoaded *engineerr.ModelNotLoadedError
		if errors.As(err, &notLoaded) {
			slog.Warn("rag_search: embedding model unavailable, returning empty results", "tool", t.toolName)
			return tools.ResultSuccess("[]"), nil
		}
		return nil, fmt.Errorf("rag search failed: %w", err)
	}

	hits := result.Hits
	if len(hits) > topK {
		hits = hits[:topK]
	}

	out := make([]QueryResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, QueryResult{
			Source:     h.Chunk.Citation.Source,
			Text:       h.Chunk.Text,
			Similarity: h.Score,
			ChunkIndex: h.Chunk.ChunkIndex,
			Page:       h.Chunk.Citation.Page,
		})
	}

	resultJSON, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}
	return tools.ResultSuccess(string(resultJSON)), nil
}
