package challenge

import (
	"context"
	"sync"
	"time"

	"warden/internal/ceremony/models"
	"warden/pkg/platform/sentinel"
)

// InMemoryStore keeps challenges in a map. Consume holds the write lock for
// the whole match-and-delete so concurrent finishes see exactly one winner.
type InMemoryStore struct {
	mu         sync.Mutex
	challenges map[string]*models.Challenge
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{challenges: make(map[string]*models.Challenge)}
}

func (s *InMemoryStore) Save(_ context.Context, c *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.challenges[c.Value]; exists {
		return sentinel.ErrConflict
	}
	cp := *c
	s.challenges[c.Value] = &cp
	return nil
}

func (s *InMemoryStore) Consume(_ context.Context, req models.ConsumeRequest) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.challenges[req.Value]
	if !ok || !req.Matches(c) {
		return nil, sentinel.ErrNotFound
	}
	delete(s.challenges, req.Value)
	return c, nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for value, c := range s.challenges {
		if c.IsExpired(now) {
			delete(s.challenges, value)
			n++
		}
	}
	return n, nil
}
