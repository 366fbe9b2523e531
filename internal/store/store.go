package store

import (
	"sort"
	"sync"
)

// Store is the thread-safe set of broadcast values known to this node.
type Store struct {
	mu     sync.RWMutex
	values map[int64]struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{
		values: make(map[int64]struct{}),
	}
}

// Record inserts v if absent. Returns true if v was newly added, so the
// caller can decide whether to propagate it. Duplicate inserts are no-ops.
func (s *Store) Record(v int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[v]; ok {
		return false
	}
	s.values[v] = struct{}{}
	return true
}

// Contains reports whether v has been recorded.
func (s *Store) Contains(v int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.values[v]
	return ok
}

// Snapshot returns a copy of the full known-set, sorted for determinism.
// Mutating the returned slice does not affect the store.
func (s *Store) Snapshot() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]int64, 0, len(s.values))
	for v := range s.values {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of recorded values.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
