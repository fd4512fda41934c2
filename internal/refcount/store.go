// Package refcount tracks how many holders share a key and reports every release.
package refcount

import "sync"

// ReleaseFunc is called after every decrement with the key and its new count.
type ReleaseFunc[K comparable] func(key K, count int)

// Store is a keyed reference counter safe for concurrent use.
type Store[K comparable] struct {
	mu        sync.Mutex
	counts    map[K]int
	onRelease ReleaseFunc[K]
}

// NewStore creates a store; onRelease may be nil.
func NewStore[K comparable](onRelease ReleaseFunc[K]) *Store[K] {
	return &Store[K]{
		counts:    make(map[K]int),
		onRelease: onRelease,
	}
}

// Increment adds one reference and returns the new count.
func (s *Store[K]) Increment(key K) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[key]++
	return s.counts[key]
}

// Decrement removes one reference, never going below zero, and returns the new
// count. The release callback runs on every call, even when the count was
// already zero, and runs after the store lock is released.
func (s *Store[K]) Decrement(key K) int {
	s.mu.Lock()
	n := s.counts[key] - 1
	if n <= 0 {
		n = 0
		delete(s.counts, key)
	} else {
		s.counts[key] = n
	}
	s.mu.Unlock()

	if s.onRelease != nil {
		s.onRelease(key, n)
	}
	return n
}

// Count returns the current count for key.
func (s *Store[K]) Count(key K) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counts[key]
}

// Ticket increments key and returns a handle that decrements it at most once.
func (s *Store[K]) Ticket(key K) *Ticket[K] {
	s.Increment(key)
	return &Ticket[K]{store: s, key: key}
}

// Ticket holds one reference to a key.
type Ticket[K comparable] struct {
	store *Store[K]
	key   K
	once  sync.Once
}

// Key returns the referenced key.
func (t *Ticket[K]) Key() K {
	return t.key
}

// Release drops the reference. Extra calls are no-ops.
func (t *Ticket[K]) Release() {
	t.once.Do(func() {
		t.store.Decrement(t.key)
	})
}
