// Package revocation holds the list of token IDs revoked before their expiry.
package revocation

import (
	"context"
	"sync"
	"time"
)

// InMemoryList is a process-local revocation list.
type InMemoryList struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewInMemory() *InMemoryList {
	return &InMemoryList{revoked: make(map[string]time.Time), now: time.Now}
}

// Revoke records jti until expiresAt, after which the token is dead anyway.
func (l *InMemoryList) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revoked[jti] = expiresAt
	return nil
}

func (l *InMemoryList) IsRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	exp, ok := l.revoked[jti]
	return ok && l.now().Before(exp), nil
}

func (l *InMemoryList) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for jti, exp := range l.revoked {
		if !now.Before(exp) {
			delete(l.revoked, jti)
			n++
		}
	}
	return n, nil
}
