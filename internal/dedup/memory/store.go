// Package memory provides an in-process dedup store for tests and local runs.
package memory

import (
	"context"
	"sync"
	"time"
)

// Store keeps keys with expiry in a map.
type Store struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

// New returns an empty Store using the wall clock.
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock returns an empty Store that reads time from now.
func NewWithClock(now func() time.Time) *Store {
	return &Store{keys: make(map[string]time.Time), now: now}
}

// Exists reports whether key is present and unexpired.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(key), nil
}

// SetWithTTL creates key when absent or expired.
func (s *Store) SetWithTTL(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.liveLocked(key) {
		return false, nil
	}
	s.keys[key] = s.now().Add(ttl)
	return true, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) liveLocked(key string) bool {
	exp, ok := s.keys[key]
	if !ok {
		return false
	}
	if !s.now().Before(exp) {
		delete(s.keys, key)
		return false
	}
	return true
}
