package storage

import (
	"context"
	"sync"
)

// Memory keeps items in process. Useful for a single bridge and for tests.
type Memory struct {
	prefix string
	mu     sync.RWMutex
	items  map[string]string
}

func NewMemory(prefix string) *Memory {
	return &Memory{prefix: prefix, items: make(map[string]string)}
}

func (m *Memory) KeyPrefix() string { return m.prefix }

func (m *Memory) GetItem(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[prefixed(m.prefix, key)]
	return v, ok, nil
}

func (m *Memory) SetItem(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[prefixed(m.prefix, key)] = value
	return nil
}

func (m *Memory) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, prefixed(m.prefix, key))
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]string)
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
