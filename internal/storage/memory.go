package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryMirror is an in-process Medium. Blobs are copied on the way in and out.
type MemoryMirror struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryMirror() *MemoryMirror {
	return &MemoryMirror{blobs: make(map[string][]byte)}
}

func (m *MemoryMirror) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

func (m *MemoryMirror) Set(_ context.Context, key string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (m *MemoryMirror) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.blobs))
	for k := range m.blobs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
