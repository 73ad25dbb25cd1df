package funnel

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore keeps counters in process memory. Counts are lost on restart.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]Counters
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]Counters)}
}

func (m *MemoryStore) Incr(_ context.Context, source string, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counts[source]
	if !ok {
		c = make(Counters)
		m.counts[source] = c
	}
	c[event]++
	return nil
}

func (m *MemoryStore) All(_ context.Context) (map[string]Counters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Counters, len(m.counts))
	for src, c := range m.counts {
		out[src] = maps.Clone(c)
	}
	return out, nil
}
