// Package cleanup deletes rate-limit counters whose window has passed and
// allowlist entries past their expiry. Both already read as inactive; this
// only reclaims storage.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"warden/internal/ratelimit/metrics"
)

// Result contains the results of a cleanup run.
type Result struct {
	Deleted          int
	AllowlistDeleted int
	Duration         time.Duration
}

type CounterStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// AllowlistStore has the same shape; entries without an expiry are kept.
type AllowlistStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithAllowlist(store AllowlistStore) Option {
	return func(s *Service) {
		s.allowlist = store
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

type Service struct {
	store     CounterStore
	allowlist AllowlistStore
	logger    *slog.Logger
	interval  time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time
}

func New(store CounterStore, opts ...Option) *Service {
	service := &Service{
		store:    store,
		logger:   slog.Default(),
		interval: 5 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "ratelimit_cleanup_failed", "error", err)
			}
		case <-ctx.Done():
			s.logger.Info("ratelimit cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single cleanup run.
func (s *Service) RunOnce(ctx context.Context) (*Result, error) {
	start := s.now()
	deleted, err := s.store.DeleteExpired(ctx, start)
	if err != nil {
		s.metrics.ObserveCleanup("error", 0, s.now().Sub(start).Seconds())
		return nil, err
	}
	res := &Result{Deleted: deleted}
	if s.allowlist != nil {
		res.AllowlistDeleted, err = s.allowlist.DeleteExpired(ctx, start)
		if err != nil {
			s.metrics.ObserveCleanup("error", deleted, s.now().Sub(start).Seconds())
			return nil, err
		}
	}
	res.Duration = s.now().Sub(start)
	s.metrics.ObserveCleanup("success", deleted, res.Duration.Seconds())
	if deleted > 0 || res.AllowlistDeleted > 0 {
		s.logger.InfoContext(ctx, "ratelimit_cleanup_completed",
			"counters_deleted", deleted,
			"allowlist_deleted", res.AllowlistDeleted,
			"duration_ms", res.Duration.Milliseconds(),
		)
	}
	return res, nil
}
