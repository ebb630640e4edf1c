package memory

import (
	"sort"
	"sync"

	"github.com/golang/groupcache/lru"
)

// workingTier is the fixed-capacity, least-recently-used tier: on
// overflow the least-recently-accessed memory is evicted. groupcache/lru
// already implements exactly this eviction policy, so it is reused rather
// than hand-rolled.
type workingTier struct {
	mu    sync.Mutex
	cache *lru.Cache
	index map[MemoryID]Memory
}

func newWorkingTier(capacity int) *workingTier {
	w := &workingTier{index: make(map[MemoryID]Memory, capacity)}
	w.cache = &lru.Cache{
		MaxEntries: capacity,
		OnEvicted: func(key lru.Key, _ any) {
			delete(w.index, key.(MemoryID))
		},
	}
	return w
}

func (w *workingTier) put(m Memory) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cache.Add(m.ID, m)
	w.index[m.ID] = m
}

func (w *workingTier) get(id MemoryID) (Memory, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.cache.Get(id)
	if !ok {
		return Memory{}, false
	}
	return v.(Memory), true
}

// all returns every Memory still resident, reading the side index rather
// than the cache itself so listing doesn't perturb recency order.
func (w *workingTier) all() []Memory {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Memory, 0, len(w.index))
	for _, m := range w.index {
		out = append(out, m)
	}
	return out
}

func (w *workingTier) remove(id MemoryID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cache.Remove(id)
	delete(w.index, id)
}

// sessionTier is the byte-budget bounded tier: on overflow, memories are
// evicted in ascending importance order until the new item fits.
// groupcache/lru has no notion of a byte budget or importance-ordered
// eviction, so this part
// is a small slice-backed structure instead.
type sessionTier struct {
	mu       sync.Mutex
	budget   int
	used     int
	memories []Memory
}

func newSessionTier(budgetBytes int) *sessionTier {
	return &sessionTier{budget: budgetBytes}
}

func (s *sessionTier) put(m Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cost := m.size()
	for s.used+cost > s.budget && len(s.memories) > 0 {
		sort.SliceStable(s.memories, func(i, j int) bool {
			return s.memories[i].Importance < s.memories[j].Importance
		})
		evicted := s.memories[0]
		s.memories = s.memories[1:]
		s.used -= evicted.size()
	}
	s.memories = append(s.memories, m)
	s.used += cost
}

func (s *sessionTier) all() []Memory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Memory, len(s.memories))
	copy(out, s.memories)
	return out
}

func (s *sessionTier) removeWhere(pred func(Memory) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.memories[:0]
	for _, m := range s.memories {
		if pred(m) {
			s.used -= m.size()
			continue
		}
		kept = append(kept, m)
	}
	s.memories = kept
}
