// Package session is the single adapter between the HTTP layer and
// server-side session storage. Sessions are flat string maps keyed by a
// random cookie id; the OTP state machine's State value is encoded into and
// decoded out of that map here and nowhere else.
package session

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"
)

// ErrNotFound is returned by Load when the session does not exist or has
// expired.
var ErrNotFound = errors.New("session not found")

// Store persists session values. Implementations must treat Save as a full
// replacement of the session's values; saving an empty map removes it.
type Store interface {
	Load(ctx context.Context, id string) (map[string]string, error)
	Save(ctx context.Context, id string, values map[string]string, ttl time.Duration) error
	Touch(ctx context.Context, id string, ttl time.Duration) error
	Destroy(ctx context.Context, id string) error
}

// memoryEntry is one in-process session.
type memoryEntry struct {
	values    map[string]string
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Suitable for development,
// single-instance deployments and tests; sessions are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store. A nil clock uses
// time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     now,
	}
}

// Load returns a copy of the session's values.
func (s *MemoryStore) Load(_ context.Context, id string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, id)
		return nil, ErrNotFound
	}
	return maps.Clone(e.values), nil
}

// Save replaces the session's values and resets its expiry.
func (s *MemoryStore) Save(_ context.Context, id string, values map[string]string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(values) == 0 {
		delete(s.entries, id)
		return nil
	}
	s.entries[id] = &memoryEntry{
		values:    maps.Clone(values),
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

// Touch extends the session's expiry. Missing sessions are ignored.
func (s *MemoryStore) Touch(_ context.Context, id string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[id]; ok {
		e.expiresAt = s.now().Add(ttl)
	}
	return nil
}

// Destroy removes the session.
func (s *MemoryStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

// Sweep drops expired sessions and returns how many were removed. Call it
// periodically when the memory store backs a long-running server.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
