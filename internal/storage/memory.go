package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore keeps objects in-process, for tests and local development
// without MinIO.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	keys    []string
}

// NewMemoryStore initializes an empty in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put stores the object bytes under the key.
func (m *MemoryStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.objects[key] = data
	return nil
}

// Get returns the stored bytes.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return data, nil
}

// URL returns a stable fake address for the key.
func (m *MemoryStore) URL(key string) string {
	return "memory://" + key
}

// Keys returns stored keys in insertion order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}
