// Package counter stores fixed-window rate-limit counters. Every backend
// performs the read-reset-increment as one atomic step.
package counter

import (
	"context"
	"sync"
	"time"

	"warden/internal/ratelimit/models"
)

type InMemoryStore struct {
	mu       sync.Mutex
	counters map[string]*models.Counter
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{counters: make(map[string]*models.Counter)}
}

// Increment bumps the counter for key, starting a new window at 1 when the
// current one has expired at now.
func (s *InMemoryStore) Increment(_ context.Context, key string, window time.Duration, now time.Time) (*models.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || !now.Before(c.WindowExpiresAt) {
		c = &models.Counter{Key: key, WindowExpiresAt: now.Add(window)}
		s.counters[key] = c
	}
	c.Count++
	out := *c
	return &out, nil
}

func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counters, key)
	return nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, c := range s.counters {
		if !now.Before(c.WindowExpiresAt) {
			delete(s.counters, key)
			deleted++
		}
	}
	return deleted, nil
}
