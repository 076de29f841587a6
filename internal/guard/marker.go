package guard

import (
	"context"
	"sync"
)

// MemoryMarkers keeps the marker in memory for the lifetime of the value.
type MemoryMarkers struct {
	mu    sync.Mutex
	state string
	set   bool
}

var _ MarkerStore = (*MemoryMarkers)(nil)

func (m *MemoryMarkers) Set(_ context.Context, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state, m.set = state, true
	return nil
}

func (m *MemoryMarkers) Get(_ context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state, m.set, nil
}

func (m *MemoryMarkers) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state, m.set = "", false
	return nil
}
