package safe

import (
	"sort"
	"sync"
)

// Map is a concurrency & type safe map keyed by name
type Map[T any] struct {
	mu   sync.RWMutex
	data map[string]T
}

// NewMap creates a map holding a copy of data
func NewMap[T any](data map[string]T) *Map[T] {
	m := &Map[T]{data: make(map[string]T, len(data))}
	for k, v := range data {
		m.data[k] = v
	}
	return m
}

// Get returns the value of the key and whether it exists
func (m *Map[T]) Get(key string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *Map[T]) Exists(key string) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *Map[T]) Set(key string, value T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]T{}
	}
	m.data[key] = value
}

// SetNX sets the key if it is absent and returns the value held after the call
func (m *Map[T]) SetNX(key string, fn func() T) T {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]T{}
	}
	if v, ok := m.data[key]; ok {
		return v
	}
	v := fn()
	m.data[key] = v
	return v
}

func (m *Map[T]) Del(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

// Range calls fn for every entry in key order until fn returns false
func (m *Map[T]) Range(fn func(key string, t T) bool) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	entries := make(map[string]T, len(m.data))
	for k, v := range m.data {
		entries[k] = v
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	for _, key := range keys {
		if !fn(key, entries[key]) {
			break
		}
	}
}

func (m *Map[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
