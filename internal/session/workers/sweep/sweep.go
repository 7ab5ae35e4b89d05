// Package sweep periodically scans recently active subjects for session
// anomalies on a cron schedule.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"warden/internal/session/metrics"
	sessionService "warden/internal/session/service"
	id "warden/pkg/domain"
	"warden/pkg/requestcontext"
)

// SubjectLister finds subjects with recent activity.
type SubjectLister interface {
	ActiveSubjectsSince(ctx context.Context, since time.Time) ([]id.SubjectID, error)
}

// Scanner escalates anomalies for one subject.
type Scanner interface {
	Scan(ctx context.Context, subjectID id.SubjectID) (*sessionService.ScanResult, error)
}

// Result summarizes one sweep.
type Result struct {
	Subjects int
	Raised   int
	Failed   int
}

const (
	defaultSchedule = "*/5 * * * *"
	defaultLookback = time.Hour
)

type Sweeper struct {
	subjects SubjectLister
	scanner  Scanner
	schedule string
	lookback time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Sweeper)

// WithSchedule sets a standard five-field cron spec.
func WithSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// WithLookback bounds how far back a subject's last activity may be.
func WithLookback(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.lookback = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) {
		s.metrics = m
	}
}

func New(subjects SubjectLister, scanner Scanner, opts ...Option) (*Sweeper, error) {
	if subjects == nil || scanner == nil {
		return nil, errors.New("subject lister and scanner are required")
	}
	s := &Sweeper{
		subjects: subjects,
		scanner:  scanner,
		schedule: defaultSchedule,
		lookback: defaultLookback,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	return s, nil
}

// Start runs the schedule until ctx is cancelled, then waits for a running sweep.
func (s *Sweeper) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "anomaly sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule anomaly sweep: %w", err)
	}
	c.Start()
	s.logger.InfoContext(ctx, "anomaly sweep scheduled", "schedule", s.schedule, "lookback", s.lookback)

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// RunOnce scans every recently active subject. A failing subject does not
// stop the sweep; its error is joined into the result.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	now := s.now()
	ctx = requestcontext.WithTime(ctx, now)
	subjects, err := s.subjects.ActiveSubjectsSince(ctx, now.Add(-s.lookback))
	if err != nil {
		return Result{}, fmt.Errorf("list active subjects: %w", err)
	}
	var res Result
	var errs []error
	for _, subjectID := range subjects {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res.Subjects++
		scan, err := s.scanner.Scan(ctx, subjectID)
		if scan != nil {
			res.Raised += len(scan.Raised)
		}
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("scan subject %s: %w", subjectID, err))
		}
	}
	s.metrics.AddSwept(res.Subjects)
	if res.Raised > 0 || res.Failed > 0 {
		s.logger.InfoContext(ctx, "anomaly sweep completed",
			"subjects", res.Subjects,
			"raised", res.Raised,
			"failed", res.Failed,
		)
	}
	return res, errors.Join(errs...)
}
