package store

import (
	"context"
	"sync"

	"notesync/internal/collection"
)

// Memory keeps every collection in process. Load and Save copy, so callers
// never share maps or item bytes with the store.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]collection.Items
	schemas     collection.Items
}

func NewMemory() *Memory {
	return &Memory{
		collections: map[string]collection.Items{},
		schemas:     collection.Items{},
	}
}

func (m *Memory) Load(_ context.Context, name string) (collection.Items, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collections[name].Clone(), nil
}

func (m *Memory) Save(_ context.Context, name string, items collection.Items) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[name] = items.Clone()
	return nil
}

func (m *Memory) Collections(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, items := range m.collections {
		if len(items) > 0 {
			names = append(names, name)
		}
	}
	return names, nil
}

func (m *Memory) LoadSchemas(_ context.Context) (collection.Items, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schemas.Clone(), nil
}

func (m *Memory) SaveSchemas(_ context.Context, schemas collection.Items) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas = schemas.Clone()
	return nil
}

func (m *Memory) Close() error { return nil }
