package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/docker/local-rag-engine/pkg/agent"
	"github.com/docker/local-rag-engine/pkg/chunk"
	"github.com/docker/local-rag-engine/pkg/config"
	"github.com/docker/local-rag-engine/pkg/docparse"
	"github.com/docker/local-rag-engine/pkg/environment"
	"github.com/docker/local-rag-engine/pkg/indexing"
	"github.com/docker/local-rag-engine/pkg/memory"
	memsqlite "github.com/docker/local-rag-engine/pkg/memory/database/sqlite"
	"github.com/docker/local-rag-engine/pkg/model/provider"
	"github.com/docker/local-rag-engine/pkg/permissions"
	"github.com/docker/local-rag-engine/pkg/rag/embed"
	"github.com/docker/local-rag-engine/pkg/rag/rerank"
	"github.com/docker/local-rag-engine/pkg/retrieval"
	"github.com/docker/local-rag-engine/pkg/store"
	"github.com/docker/local-rag-engine/pkg/tokenizer"
	"github.com/docker/local-rag-engine/pkg/tools"
	"github.com/docker/local-rag-engine/pkg/tools/builtin"
)

// components bundles every piece cmd/engine's subcommands need; it mirrors
// the shared, process-wide singletons the subcommands operate on.
type components struct {
	cfg       *config.EngineConfig
	llm       provider.Provider
	embedder  *embed.Embedder
	vecStore  *store.Store
	textIndex *store.TextIndex
	engine    *retrieval.Engine
	pipeline  *indexing.Pipeline
	agents    *agent.Registry
	codeExec  *builtin.CodeExecTool
}

// builtinToolResolver maps the built-in tool_id bindings an agent
// Definition may reference to their live ToolSets.
type builtinToolResolver struct {
	sets map[string]tools.ToolSet
}

func (r *builtinToolResolver) Resolve(toolID string) (tools.ToolSet, bool) {
	ts, ok := r.sets[toolID]
	return ts, ok
}

func (r *builtinToolResolver) Known(toolID string) bool {
	_, ok := r.sets[toolID]
	return ok
}

// wire loads the engine config and builds every component a CLI
// subcommand needs, opening the sqlite-backed vector store against
// {data_dir}/vector_store/chunks.db.
func wire(ctx context.Context, configPath string) (*components, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	env := environment.NewDefaultProvider(ctx)

	modelSpec := cfg.DefaultModel
	if modelSpec == "" {
		for name := range cfg.Models {
			modelSpec = name
			break
		}
	}
	llm, err := provider.New(ctx, modelSpec, cfg.Models, env)
	if err != nil {
		return nil, fmt.Errorf("building model provider %q: %w", modelSpec, err)
	}

	// Cap embedding inputs at the model token limit. The cap is best-effort:
	// when the encoding data can't be loaded the embedder simply sends
	// untruncated text and lets the provider enforce its own limit.
	var embedOpts []embed.Option
	if tok, err := tokenizer.New(tokenizer.Config{Kind: tokenizer.KindBPE, Encoding: "cl100k_base"}); err == nil {
		embedOpts = append(embedOpts, embed.WithTokenizer(tok))
	}
	embedder := embed.New(llm, embedOpts...)

	// The store's vector dimension is fixed at Open; probe it from the
	// configured embedding provider so callers never have to hardcode a
	// model-specific dimension.
	probe, err := embedder.Embed(ctx, "query: dimension probe")
	if err != nil {
		return nil, fmt.Errorf("probing embedding dimension: %w", err)
	}

	vecStorePath := filepath.Join(cfg.DataDir, "vector_store", "chunks.db")
	vecStore, err := store.Open(vecStorePath, len(probe))
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}

	textIndex, err := store.OpenTextIndex()
	if err != nil {
		vecStore.Close()
		return nil, fmt.Errorf("opening text index: %w", err)
	}

	router := retrieval.NewRouter(llm, nil)
	retrievalCfg := retrieval.Config{
		TopK:              cfg.Retrieval.TopKFinal,
		CandidateMultiple: 5,
		RRFConstant:       cfg.Retrieval.RRFConstant,
		DenseWeight:       cfg.Retrieval.DenseWeight,
		LexicalWeight:     cfg.Retrieval.LexicalWeight,
		NeighbourTop:      cfg.Retrieval.NeighbourExpandTopN,
		NeighbourWindow:   cfg.Retrieval.NeighbourWindow,
	}
	engine, err := retrieval.New(retrievalCfg, embedder, vecStore, textIndex, router, nil)
	if err != nil {
		return nil, fmt.Errorf("building retrieval engine: %w", err)
	}

	// Attach an LLM-based reranking pass when the configured provider
	// supports it (both the local runner and the OpenAI client implement
	// provider.RerankingProvider); providers that don't are left unset and
	// Search simply skips the stage.
	if _, ok := llm.(provider.RerankingProvider); ok {
		reranker, err := rerank.NewLLMReranker(rerank.Config{Model: llm, TopK: cfg.Retrieval.TopKFinal * 2})
		if err != nil {
			return nil, fmt.Errorf("building reranker: %w", err)
		}
		engine.SetReranker(reranker)
	}

	parsers := docparse.NewRegistry()
	chunker := chunk.New(chunk.DefaultConfig())
	pipeline := indexing.New(parsers, chunker, embedder, vecStore, textIndex)

	// Built-in tool registry shared by every agent Definition's tool
	// bindings. Memory notes live in their own sqlite file next to the
	// vector store; the experience store reuses the vector store itself
	// as its long-term tier.
	memDB, err := memsqlite.NewMemoryDatabase(filepath.Join(cfg.DataDir, "memory.db"))
	if err != nil {
		vecStore.Close()
		textIndex.Close()
		return nil, fmt.Errorf("opening memory database: %w", err)
	}
	codeExec := builtin.NewCodeExecTool()
	resolver := &builtinToolResolver{sets: map[string]tools.ToolSet{
		"rag_search":   builtin.NewRAGTool(engine, "rag_search", ""),
		"filesystem":   builtin.NewFilesystemTool([]string{cfg.DataDir}),
		"memory":       builtin.NewMemoryTool(memory.NewManager(memDB)),
		"execute_code": codeExec,
	}}

	agents := agent.NewRegistry(filepath.Join(cfg.DataDir, "agents"), resolver)
	if err := agents.Load(); err != nil {
		vecStore.Close()
		textIndex.Close()
		return nil, fmt.Errorf("loading agent registry: %w", err)
	}
	agents.BindRAGEngine("", engine)
	agents.BindMemory(memory.NewExperienceStore(memory.DefaultConfig(), vecStore, embedder))
	agents.BindPermissions(permissions.NewChecker(&cfg.Permissions))

	return &components{
		cfg:       cfg,
		llm:       llm,
		embedder:  embedder,
		vecStore:  vecStore,
		textIndex: textIndex,
		engine:    engine,
		pipeline:  pipeline,
		agents:    agents,
		codeExec:  codeExec,
	}, nil
}

func (c *components) Close() {
	_ = c.codeExec.Stop(context.Background())
	c.vecStore.Close()
	c.textIndex.Close()
}
