// Package slotmap implements a concurrent integer-keyed allocator for
// indexing in-flight requests: correlation tables where a caller needs a
// fresh slot, a way to look up the value stored there, and a way to free it
// for reuse. No other package in this module imports it; RLPx ping tracking
// (p2p) and SSB RPC request numbering (ssb) keep their own state.
//
// Grounded on the add/remove/pending-map pattern in the teacher's
// p2p/request_manager.go (RequestManager.pending map + atomic id counter),
// generalized into a standalone, value-agnostic allocator.
package slotmap

import (
	"sync"
	"sync/atomic"
)

// Map is a concurrent integer-keyed slot allocator. The zero value is not
// usable; construct with New.
type Map[V any] struct {
	mu      sync.Mutex
	slots   map[uint64]V
	nextKey atomic.Uint64
	free    []uint64
}

// New returns an empty Map.
func New[V any]() *Map[V] {
	return &Map[V]{slots: make(map[uint64]V)}
}

// Add stores v in a fresh slot and returns its key. Keys are never reused
// while occupied; a freed key becomes eligible for reuse by a later Add.
func (m *Map[V]) Add(v V) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var key uint64
	if n := len(m.free); n > 0 {
		key = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		key = m.nextKey.Add(1)
	}
	m.slots[key] = v
	return key
}

// Get returns the value stored at key, if any.
func (m *Map[V]) Get(key uint64) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.slots[key]
	return v, ok
}

// Remove deletes the slot at key, making it eligible for reuse, and returns
// the value that was stored there (if any).
func (m *Map[V]) Remove(key uint64) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.slots[key]
	if ok {
		delete(m.slots, key)
		m.free = append(m.free, key)
	}
	return v, ok
}

// Len reports the number of occupied slots.
func (m *Map[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

// Keys returns a snapshot of the currently occupied keys.
func (m *Map[V]) Keys() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]uint64, 0, len(m.slots))
	for k := range m.slots {
		keys = append(keys, k)
	}
	return keys
}
