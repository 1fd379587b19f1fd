package concurrent

import (
	"sync"

	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

// Map is a keyed, fine-grained-locking map, per spec 4.2. The zero value is
// not usable; construct with NewMap.
type Map[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

// NewMap constructs an empty Map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{m: make(map[K]V)}
}

// Insert is strict upsert-prevention: if key already maps to a value, no
// mutation occurs and pbserrors.KeyExists is returned.
func (m *Map[K, V]) Insert(key K, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.m[key]; exists {
		return pbserrors.KeyExists
	}
	m.m[key] = value
	return nil
}

// Find returns the value stored for key, or pbserrors.KeyNotFound if absent.
func (m *Map[K, V]) Find(key K) (V, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.m[key]
	if !ok {
		var zero V
		return zero, pbserrors.KeyNotFound
	}
	return v, nil
}

// Erase removes key from the map, returning pbserrors.KeyNotFound if it was
// never present.
func (m *Map[K, V]) Erase(key K) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.m[key]; !ok {
		return pbserrors.KeyNotFound
	}
	delete(m.m, key)
	return nil
}

// GetOrInsert returns the existing value for key if present, otherwise
// inserts and returns compute(). It is the get-or-create primitive the
// metric router (spec 4.13) and the per-key budget locks (spec 4.7) are
// built on, and it runs under a single critical section so concurrent
// callers racing to create the same key never clobber one another.
func (m *Map[K, V]) GetOrInsert(key K, compute func() V) V {
	m.mu.RLock()
	if v, ok := m.m[key]; ok {
		m.mu.RUnlock()
		return v
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.m[key]; ok {
		return v
	}
	v := compute()
	m.m[key] = v
	return v
}

// Keys returns a point-in-time snapshot of the map's keys. Order is
// unspecified and concurrent mutations after the snapshot is taken are not
// reflected, per spec 4.2.
func (m *Map[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]K, 0, len(m.m))
	for k := range m.m {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the current number of entries. Like Keys, this is a snapshot.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.m)
}
