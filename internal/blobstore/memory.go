package blobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local store, used for dry runs and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	container string
	exists    bool
	objects   map[string][]byte
	modified  map[string]time.Time
}

func NewMemory(container string) *MemoryStore {
	return &MemoryStore{
		container: container,
		objects:   make(map[string][]byte),
		modified:  make(map[string]time.Time),
	}
}

func (m *MemoryStore) Container() string { return m.container }

func (m *MemoryStore) EnsureContainer(_ context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exists {
		return false, nil
	}
	m.exists = true
	return true, nil
}

func (m *MemoryStore) Put(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exists = true
	m.objects[name] = append([]byte(nil), data...)
	m.modified[name] = time.Now().UTC()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStore) List(_ context.Context) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	objects := make([]Object, 0, len(m.objects))
	for name, data := range m.objects {
		objects = append(objects, Object{Name: name, Size: int64(len(data)), Modified: m.modified[name]})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })
	return objects, nil
}
