// Package safemap provides a type-safe concurrent map built on sync.Map that
// keeps an exact entry count, so membership size is available in O(1). The
// TCP server uses it as its session registry.
package safemap

import (
	"sync"
	"sync/atomic"
)

// SafeMap is a concurrent map that is safe for use by multiple goroutines.
// Keys must be comparable; values may be any type. Insertions and removals
// performed through Store, LoadOrStore, Delete and LoadAndDelete keep the
// entry count exact.
//
// SafeMap must not be copied after first use.
type SafeMap[K comparable, V any] struct {
	m     sync.Map
	count atomic.Int64
}

// NewSafeMap returns a new, empty SafeMap.
//
// Returns:
//   - A pointer to a new SafeMap[K, V]
func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{}
}

// Store sets the value for key k, overwriting any existing value.
//
// Parameters:
//   - k: The key to store
//   - v: The value to associate with k
func (m *SafeMap[K, V]) Store(k K, v V) {
	if _, loaded := m.m.Swap(k, v); !loaded {
		m.count.Add(1)
	}
}

// LoadOrStore returns the existing value for k if present. Otherwise it
// stores v and returns it.
//
// Parameters:
//   - k: The key to look up or insert
//   - v: The value to insert when k is absent
//
// Returns:
//   - The existing or stored value
//   - true if the value was already present, false if v was stored
func (m *SafeMap[K, V]) LoadOrStore(k K, v V) (V, bool) {
	actual, loaded := m.m.LoadOrStore(k, v)
	if !loaded {
		m.count.Add(1)
	}

	return actual.(V), loaded
}

// Load returns the value for key k and whether it was present.
//
// Parameters:
//   - k: The key to look up
//
// Returns:
//   - The value associated with k, or the zero value of V if not found
//   - true if the key was present, false otherwise
func (m *SafeMap[K, V]) Load(k K) (V, bool) {
	v, found := m.m.Load(k)
	if !found {
		var empty V
		return empty, false
	}

	return v.(V), true
}

// Delete removes the entry for key k. Deleting a missing key is a no-op.
//
// Parameters:
//   - k: The key to delete
func (m *SafeMap[K, V]) Delete(k K) {
	m.LoadAndDelete(k)
}

// LoadAndDelete removes the entry for k and returns the previous value.
// Exactly one of several concurrent callers for the same key observes
// loaded == true.
//
// Parameters:
//   - k: The key to remove
//
// Returns:
//   - The removed value, or the zero value of V
//   - true if the key was present and removed by this call
func (m *SafeMap[K, V]) LoadAndDelete(k K) (V, bool) {
	v, loaded := m.m.LoadAndDelete(k)
	if !loaded {
		var empty V
		return empty, false
	}

	m.count.Add(-1)
	return v.(V), true
}

// Range calls f for each entry until f returns false. It observes a
// consistent snapshot per key but not of the whole map; entries stored or
// deleted concurrently may or may not be visited.
//
// Parameters:
//   - f: Function called for each entry; return false to stop iteration
func (m *SafeMap[K, V]) Range(f func(k K, v V) bool) {
	m.m.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}

// Values returns a snapshot of the values currently stored.
//
// Returns:
//   - The values in unspecified order
func (m *SafeMap[K, V]) Values() []V {
	values := make([]V, 0, m.Len())
	m.Range(func(_ K, v V) bool {
		values = append(values, v)
		return true
	})

	return values
}

// Len returns the number of entries in O(1).
//
// Returns:
//   - The number of key-value pairs in the map
func (m *SafeMap[K, V]) Len() int {
	return int(m.count.Load())
}
