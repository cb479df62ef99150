package store

import (
	"context"
	"slices"
	"sync"
)

type memoryCounter struct {
	mu    sync.Mutex
	value int64
}

// NewMemoryCounter returns an in-process Counter.
func NewMemoryCounter() Counter {
	return &memoryCounter{}
}

func (m *memoryCounter) Increment(_ context.Context, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value += delta
	return m.value, nil
}

func (m *memoryCounter) Value(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, nil
}

func (m *memoryCounter) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = 0
	return nil
}

type memoryKV struct {
	mu      sync.RWMutex
	storage map[string]string
}

// NewMemoryKV returns an in-process KV.
func NewMemoryKV() KV {
	return &memoryKV{}
}

func (m *memoryKV) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storage == nil {
		// create on first use
		m.storage = make(map[string]string)
	}
	m.storage[key] = value
	return nil
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.storage[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memoryKV) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.storage))
	for k := range m.storage {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

func (m *memoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.storage, key)
	return nil
}
