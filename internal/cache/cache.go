// Package cache provides the process-wide short-lived key/value store used
// for bypass markers, autoclose markers, confirmation records and
// pre-fetched script code.
//
// Entries carry their own expiry. Reads expire lazily; Sweep (or the janitor
// started by Run) evicts whatever was left behind.
package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL applies when Put is called with a zero lifetime.
const DefaultTTL = 3 * time.Second

type entry struct {
	value  interface{}
	expiry time.Time
}

// Store is a time-indexed map: key -> (value, expiry).
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultTTL overrides DefaultTTL.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores value under key for ttl. A non-positive ttl uses the default.
func (s *Store) Put(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	s.mu.Lock()
	s.entries[key] = entry{value: value, expiry: s.now().Add(ttl)}
	s.mu.Unlock()
}

// Get returns the live value stored under key.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !s.now().Before(e.expiry) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

// Has reports whether key holds a live value.
func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Pop returns the live value under key and removes it.
func (s *Store) Pop(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	delete(s.entries, key)
	if !s.now().Before(e.expiry) {
		return nil, false
	}
	return e.value, true
}

// Delete removes key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included until
// they are swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts every expired entry and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if !now.Before(e.expiry) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
