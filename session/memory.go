package session

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// MemoryStore is an in-memory document store backed by a sync.RWMutex-protected map.
// Documents are deep-copied on save and load to prevent external mutation.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

var _ Lister = (*MemoryStore)(nil)

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

// Save stores a copy of doc under name.
func (m *MemoryStore) Save(_ context.Context, name string, doc Document) error {
	if name == "" {
		return ErrInvalidName
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[name] = deepCopy(doc)
	return nil
}

// Load returns a copy of the named document.
func (m *MemoryStore) Load(_ context.Context, name string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[name]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return deepCopy(doc), nil
}

// List returns the stored names, sorted.
func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.docs)), nil
}

func deepCopy(d Document) Document {
	return Document{History: d.History.Clone(), Timestamp: d.Timestamp}
}
