// Package memory implements the memory system: RichContext-tagged Experiences recorded
// across three tiers (working, session, long-term), retrieved by similarity,
// recency, causal chain, or simple association, and prunable by age,
// importance, or content pattern.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/docker/local-rag-engine/pkg/chunk"
	"github.com/docker/local-rag-engine/pkg/store"
)

// memorySpaceID is the store.Predicate.SpaceID long-term memory chunks are
// tagged with, keeping them out of document search results by default.
const memorySpaceID = "_memory"

const defaultImportance = 0.5

// Embedder is the subset of pkg/rag/embed.Embedder the long-term tier needs
// to turn a Memory's content into a vector before upserting it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ExperienceStore is the engine's memory system: record/retrieve/forget over
// a working LRU, a byte-budgeted session tier, and a long-term tier backed
// by the same vector store used for document chunks.
type ExperienceStore struct {
	working  *workingTier
	session  *sessionTier
	longTerm *store.Store
	embedder Embedder
}

// Config tunes tier capacities. Zero values fall back to sensible defaults.
type Config struct {
	WorkingCapacity   int
	SessionBudgetByte int
}

// DefaultConfig returns the tier sizes used when Config is the zero value:
// 64 working-memory slots and a 256KB session budget.
func DefaultConfig() Config {
	return Config{WorkingCapacity: 64, SessionBudgetByte: 256 * 1024}
}

// NewExperienceStore builds an ExperienceStore. longTerm and embedder may be
// nil, in which case Record still succeeds (working/session tiers only) and
// long-term retrieval silently returns no hits, matching the degrade-rather-
// than-abort policy applied to retrieval failures elsewhere.
func NewExperienceStore(cfg Config, longTerm *store.Store, embedder Embedder) *ExperienceStore {
	if cfg.WorkingCapacity <= 0 {
		cfg.WorkingCapacity = DefaultConfig().WorkingCapacity
	}
	if cfg.SessionBudgetByte <= 0 {
		cfg.SessionBudgetByte = DefaultConfig().SessionBudgetByte
	}
	return &ExperienceStore{
		working:  newWorkingTier(cfg.WorkingCapacity),
		session:  newSessionTier(cfg.SessionBudgetByte),
		longTerm: longTerm,
		embedder: embedder,
	}
}

// Record assigns exp a fresh MemoryId, computes its initial importance,
// places it in the working and session tiers, and — when a long-term store
// and embedder are bound — persists it there too so it survives past the
// session's byte budget.
func (s *ExperienceStore) Record(ctx context.Context, exp Experience) (MemoryID, error) {
	id := MemoryID(uuid.NewString())
	m := Memory{
		ID:         id,
		Experience: exp,
		Importance: importanceOf(exp),
		CreatedAt:  time.Now(),
	}

	s.working.put(m)
	s.session.put(m)

	if s.longTerm == nil {
		return id, nil
	}

	vector := exp.Embedding
	if vector == nil && s.embedder != nil {
		v, err := s.embedder.Embed(ctx, exp.Content)
		if err == nil {
			vector = v
		}
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return id, fmt.Errorf("memory: marshal experience: %w", err)
	}
	c := chunk.Chunk{
		ID:                 chunk.NewID(string(id), 0),
		DocID:              string(id),
		ChunkIndex:         0,
		Text:               exp.Content,
		ContextualizedText: exp.Content,
		SpaceID:            memorySpaceID,
		CreatedAt:          m.CreatedAt,
		Vector:             vector,
		Metadata: map[string]string{
			"kind":        string(exp.Kind),
			"memory_json": string(raw),
		},
	}
	if err := s.longTerm.Upsert(ctx, []chunk.Chunk{c}); err != nil {
		return id, fmt.Errorf("memory: persist to long-term store: %w", err)
	}
	return id, nil
}

// importanceOf scores a freshly recorded Experience: errors and decisions
// are treated as more worth keeping than routine conversation turns, so
// session-tier eviction sheds small talk before it sheds a recorded mistake.
func importanceOf(exp Experience) float64 {
	switch exp.Kind {
	case EventError, EventDecision, EventLearning:
		return 0.8
	case EventDiscovery, EventPattern:
		return 0.7
	default:
		return defaultImportance
	}
}

// Retrieve ranks candidates from all three tiers by mode and returns the
// top k. Similarity requires an embedder; Causal and Associative only
// consider the in-memory tiers, since the causal chain and entity overlap
// they walk are cheap to hold in full.
func (s *ExperienceStore) Retrieve(ctx context.Context, query string, mode RetrievalMode, k int) ([]Memory, error) {
	candidates := s.inMemoryCandidates()

	switch mode {
	case RetrieveTemporal:
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.After(candidates[j].CreatedAt) })
	case RetrieveCausal:
		candidates = filterCausal(candidates, query)
	case RetrieveAssociative:
		candidates = filterAssociative(candidates, query)
	case RetrieveSimilarity, RetrieveHybrid:
		hits, err := s.similarityHits(ctx, query, k)
		if err == nil && len(hits) > 0 {
			candidates = mergeUnique(hits, candidates)
		}
	}

	for i := range candidates {
		candidates[i].AccessCount++
		s.working.put(candidates[i])
	}

	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

func (s *ExperienceStore) inMemoryCandidates() []Memory {
	byID := make(map[MemoryID]Memory)
	for _, m := range s.session.all() {
		byID[m.ID] = m
	}
	for _, m := range s.working.all() {
		byID[m.ID] = m
	}
	out := make([]Memory, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	return out
}

func (s *ExperienceStore) similarityHits(ctx context.Context, query string, k int) ([]Memory, error) {
	if s.longTerm == nil || s.embedder == nil {
		return nil, nil
	}
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}
	hits, err := s.longTerm.Search(ctx, vector, k, store.Predicate{SpaceID: memorySpaceID})
	if err != nil {
		return nil, err
	}
	out := make([]Memory, 0, len(hits))
	for _, h := range hits {
		var m Memory
		if err := json.Unmarshal([]byte(h.Chunk.Metadata["memory_json"]), &m); err == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// mergeUnique appends candidates not already present (by ID) in hits.
func mergeUnique(hits, candidates []Memory) []Memory {
	seen := make(map[MemoryID]bool, len(hits))
	out := make([]Memory, 0, len(hits)+len(candidates))
	for _, h := range hits {
		seen[h.ID] = true
		out = append(out, h)
	}
	for _, c := range candidates {
		if !seen[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// filterCausal returns memories whose Predecessors or own id match query,
// i.e. the causal chain anchored on a given MemoryID.
func filterCausal(candidates []Memory, query string) []Memory {
	target := MemoryID(query)
	out := make([]Memory, 0, len(candidates))
	for _, m := range candidates {
		if m.ID == target {
			out = append(out, m)
			continue
		}
		for _, p := range m.Experience.Predecessors {
			if p == target {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// filterAssociative returns memories sharing at least one entity with query
// (an exact string match against the recorded entity list).
func filterAssociative(candidates []Memory, query string) []Memory {
	out := make([]Memory, 0, len(candidates))
	for _, m := range candidates {
		for _, e := range m.Experience.Entities {
			if e == query {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Forget removes every in-memory Memory matching criteria and, when bound,
// its long-term counterpart.
func (s *ExperienceStore) Forget(ctx context.Context, opts ...ForgetOption) error {
	criteria := NewForgetCriteria(opts...)
	now := time.Now()

	var toRemove []MemoryID
	s.session.removeWhere(func(m Memory) bool {
		if criteria.matches(m, now) {
			toRemove = append(toRemove, m.ID)
			return true
		}
		return false
	})
	for _, id := range toRemove {
		s.working.remove(id)
	}

	if s.longTerm == nil {
		return nil
	}
	for _, id := range toRemove {
		if err := s.longTerm.DeleteByDoc(ctx, string(id)); err != nil {
			return fmt.Errorf("memory: forget %s: %w", id, err)
		}
	}
	return nil
}
