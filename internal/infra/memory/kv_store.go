package memory

import (
	"context"
	"sync"
	"time"
)

// Store is an in-memory implementation of app.KVStore. Values are kept exactly as given,
// so readers see structured data rather than serialized text.
type Store struct {
	mu      sync.RWMutex
	now     func() time.Time
	entries map[string]storeEntry
}

type storeEntry struct {
	value     any
	expiresAt time.Time // zero means no expiry
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock allows deterministic expiry in tests.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		now:     now,
		entries: make(map[string]storeEntry),
	}
}

func (s *Store) Get(_ context.Context, key string) (any, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if s.expired(entry) {
		s.mu.Lock()
		if current, ok := s.entries[key]; ok && s.expired(current) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Put stores value under key; ttl <= 0 keeps it forever.
func (s *Store) Put(_ context.Context, key string, value any, ttl time.Duration) error {
	entry := storeEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// TTL reports the time left on key, -1 for keys without expiry and false for missing keys.
func (s *Store) TTL(key string) (time.Duration, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok || s.expired(entry) {
		return 0, false
	}
	if entry.expiresAt.IsZero() {
		return -1, true
	}
	return entry.expiresAt.Sub(s.now()), true
}

func (s *Store) expired(e storeEntry) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(s.now())
}
