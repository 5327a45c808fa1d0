// Package ratelimit provides a fixed-window request limiter over a pluggable
// counter store. The store is injected so deployments can swap the in-memory
// implementation for a shared one without touching the limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Store counts hits per key within rolling windows. Implementations must be
// safe for concurrent use.
type Store interface {
	// Incr increments the counter for key, starting a fresh window of the
	// given length if none is active, and returns the count within the
	// current window.
	Incr(key string, window time.Duration) (int, error)
	// Reset clears the counter for key.
	Reset(key string) error
}

// window tracks the hit count for a single key.
type entry struct {
	count   int
	resetAt time.Time
}

// MemoryStore is an in-process Store implementation.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time // injectable clock for testing
}

// NewMemoryStore creates an empty in-memory counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Incr implements Store.
func (s *MemoryStore) Incr(key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || !e.resetAt.After(now) {
		e = &entry{resetAt: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Limiter enforces a maximum number of requests per key per window.
type Limiter struct {
	store  Store
	max    int
	window time.Duration
}

// New creates a Limiter allowing max requests per window, counting through
// the given store.
func New(store Store, max int, window time.Duration) *Limiter {
	return &Limiter{store: store, max: max, window: window}
}

// Allow reports whether a request identified by key is permitted.
func (l *Limiter) Allow(key string) (bool, error) {
	count, err := l.store.Incr(key, l.window)
	if err != nil {
		return false, err
	}
	return count <= l.max, nil
}

// Clear removes any counter state for key.
func (l *Limiter) Clear(key string) error {
	return l.store.Reset(key)
}
