// Package reaper deletes expired challenges and revocation entries. Expired
// challenges are already unusable; this only reclaims storage.
package reaper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"warden/internal/ceremony/metrics"
)

// ChallengeStore exposes cleanup for expired challenges.
type ChallengeStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// RevocationStore exposes cleanup for revoked tokens past their expiry.
type RevocationStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Result summarizes one run.
type Result struct {
	DeletedChallenges  int
	DeletedRevocations int
}

type Reaper struct {
	challenges  ChallengeStore
	revocations RevocationStore
	interval    time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

type Option func(*Reaper)

// WithInterval overrides the interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(r *Reaper) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reaper) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reaper) {
		r.metrics = m
	}
}

// WithRevocations also sweeps the token revocation list.
func WithRevocations(store RevocationStore) Option {
	return func(r *Reaper) {
		r.revocations = store
	}
}

func New(challenges ChallengeStore, opts ...Option) (*Reaper, error) {
	if challenges == nil {
		return nil, errors.New("challenge store is required")
	}
	r := &Reaper{
		challenges: challenges,
		interval:   time.Minute,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Start runs the reaper until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "reaper run failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single sweep. Failures in one store do not stop the other.
func (r *Reaper) RunOnce(ctx context.Context) (Result, error) {
	now := r.now()
	var res Result
	var errs []error

	n, err := r.challenges.DeleteExpired(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired challenges: %w", err))
	} else {
		res.DeletedChallenges = n
		r.metrics.AddReaped(n)
	}

	if r.revocations != nil {
		n, err := r.revocations.DeleteExpired(ctx, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete expired revocations: %w", err))
		} else {
			res.DeletedRevocations = n
		}
	}

	if res.DeletedChallenges > 0 || res.DeletedRevocations > 0 {
		r.logger.InfoContext(ctx, "reaper run completed",
			"deleted_challenges", res.DeletedChallenges,
			"deleted_revocations", res.DeletedRevocations,
		)
	}
	return res, errors.Join(errs...)
}
