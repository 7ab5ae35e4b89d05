// Package allowlist stores caller identities exempt from rate limiting.
package allowlist

import (
	"context"
	"sort"
	"sync"
	"time"

	"warden/internal/ratelimit/models"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*models.AllowlistEntry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]*models.AllowlistEntry)}
}

// Add inserts or replaces the entry for its prefix and identifier.
func (s *InMemoryStore) Add(_ context.Context, entry *models.AllowlistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *entry
	s.entries[entryKey(entry.Prefix, entry.Identifier)] = &stored
	return nil
}

// Remove reports whether an entry existed.
func (s *InMemoryStore) Remove(_ context.Context, prefix models.KeyPrefix, identifier string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entryKey(prefix, identifier)
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok, nil
}

func (s *InMemoryStore) IsAllowlisted(_ context.Context, prefix models.KeyPrefix, identifier string, now time.Time) (bool, error) {
	if identifier == "" {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[entryKey(prefix, identifier)]
	return ok && entry.ActiveAt(now), nil
}

// List returns active entries, oldest first.
func (s *InMemoryStore) List(_ context.Context, now time.Time) ([]*models.AllowlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.AllowlistEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if entry.ActiveAt(now) {
			e := *entry
			out = append(out, &e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, entry := range s.entries {
		if !entry.ActiveAt(now) {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

func entryKey(prefix models.KeyPrefix, identifier string) string {
	return string(prefix) + "\x00" + identifier
}
