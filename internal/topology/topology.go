package topology

import "sync"

// Manager holds the current neighbor set. Written by the protocol handler
// on topology updates, read by the dissemination engine on every fan-out.
type Manager struct {
	mu        sync.RWMutex
	neighbors []string
}

// New creates a manager with an empty neighbor set.
func New() *Manager {
	return &Manager{}
}

// SetNeighbors atomically replaces the neighbor set. The input slice is
// copied so later caller mutations cannot leak in.
func (m *Manager) SetNeighbors(neighbors []string) {
	replacement := make([]string, len(neighbors))
	copy(replacement, neighbors)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.neighbors = replacement
}

// Neighbors returns a copy of the current neighbor set.
func (m *Manager) Neighbors() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.neighbors))
	copy(out, m.neighbors)
	return out
}
