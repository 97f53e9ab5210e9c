package memory

import "time"

// Store holds the ordered memory collection for a single agent. It is
// exclusively owned by that agent's task; callers must not share one store
// across goroutines.
type Store struct {
	memories []*Memory
}

// NewStore creates a store seeded with the given memories.
func NewStore(memories ...*Memory) *Store {
	s := &Store{}
	s.memories = append(s.memories, memories...)
	return s
}

// Add appends a memory in arrival order.
func (s *Store) Add(m *Memory) {
	s.memories = append(s.memories, m)
}

// All returns the memories in insertion order. The returned slice shares
// backing memory with the store; callers must not reorder it.
func (s *Store) All() []*Memory {
	return s.memories
}

// Len returns the number of stored memories.
func (s *Store) Len() int {
	return len(s.memories)
}

// RetrieveTop scores every stored memory against the relevance map and
// returns the top-k by final score, using the store's insertion order for
// tie-breaks.
func (s *Store) RetrieveTop(relevanceByRef map[string]float64, topK int, now time.Time) []*RetrievedMemory {
	return RetrieveTop(s.memories, relevanceByRef, topK, now)
}
