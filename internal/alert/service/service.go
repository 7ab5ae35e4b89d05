// Package service records security alerts and notifies out-of-band channels.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"warden/internal/alert/metrics"
	"warden/internal/alert/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
)

// Store persists alerts.
// Error Contract: FindByID and Resolve return sentinel.ErrNotFound for an unknown alert.
type Store interface {
	Insert(ctx context.Context, a *models.Alert) error
	FindByID(ctx context.Context, alertID id.AlertID) (*models.Alert, error)
	Resolve(ctx context.Context, alertID id.AlertID, at time.Time) (bool, error)
	ListUnresolved(ctx context.Context, subjectID id.SubjectID) ([]*models.Alert, error)
	HasUnresolved(ctx context.Context, subjectID id.SubjectID, alertType models.Type) (bool, error)
}

// Notifier delivers a recorded alert.
type Notifier interface {
	Notify(ctx context.Context, a *models.Alert) error
}

const (
	defaultNotifyTimeout = 5 * time.Second
	defaultNotifyBuffer  = 256
)

type Service struct {
	store         Store
	notifier      Notifier
	notifyTimeout time.Duration
	notifyBuffer  int
	auditor       audit.Emitter
	metrics       *metrics.Metrics
	logger        *slog.Logger

	// outbox is drained by a single worker. pending counts queued and
	// in-flight notifications.
	outbox    chan notification
	pending   sync.WaitGroup
	worker    sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

type notification struct {
	ctx   context.Context
	alert models.Alert
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// WithNotifyBuffer bounds the notification queue. Alerts raised while it is
// full are recorded but not notified.
func WithNotifyBuffer(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.notifyBuffer = size
		}
	}
}

func WithAuditor(auditor audit.Emitter) Option {
	return func(s *Service) {
		s.auditor = auditor
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("alert store is required")
	}
	svc := &Service{store: store, notifyTimeout: defaultNotifyTimeout, notifyBuffer: defaultNotifyBuffer}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.notifier != nil {
		svc.outbox = make(chan notification, svc.notifyBuffer)
		svc.worker.Add(1)
		go svc.deliver()
	}
	return svc, nil
}

// Raise always records a new alert, then queues it for the notifier. A notifier
// failure or a full queue is logged and never undoes the record.
func (s *Service) Raise(ctx context.Context, subjectID id.SubjectID, alertType models.Type, metadata map[string]string) (*models.Alert, error) {
	if !alertType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown alert type %q", alertType))
	}
	a := &models.Alert{
		ID:        id.NewAlertID(),
		SubjectID: subjectID,
		Type:      alertType,
		CreatedAt: requestcontext.Now(ctx),
		Metadata:  maps.Clone(metadata),
	}
	if err := s.store.Insert(ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "failed to record alert", "subject_id", subjectID, "alert_type", alertType, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to record alert")
	}
	s.metrics.IncRaised(string(alertType))
	s.emit(ctx, audit.Event{
		Timestamp: a.CreatedAt,
		SubjectID: subjectID,
		Action:    audit.EventAlertRaised,
		Reason:    string(alertType),
		Metadata:  map[string]string{"alert_id": a.ID.String()},
	})
	s.notify(ctx, a)
	return a, nil
}

func (s *Service) notify(ctx context.Context, a *models.Alert) {
	if s.notifier == nil {
		return
	}
	n := notification{ctx: context.WithoutCancel(ctx), alert: *a}
	n.alert.Metadata = maps.Clone(a.Metadata)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped(ctx, a, "closed")
		return
	}
	s.pending.Add(1)
	select {
	case s.outbox <- n:
	default:
		s.pending.Done()
		s.dropped(ctx, a, "full")
	}
}

func (s *Service) dropped(ctx context.Context, a *models.Alert, reason string) {
	s.metrics.IncNotifyDropped()
	s.logger.WarnContext(ctx, "alert notification dropped",
		"alert_id", a.ID,
		"alert_type", a.Type,
		"reason", reason,
	)
}

func (s *Service) deliver() {
	defer s.worker.Done()
	for n := range s.outbox {
		s.send(n)
		s.pending.Done()
	}
}

func (s *Service) send(n notification) {
	ctx, cancel := context.WithTimeout(n.ctx, s.notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, &n.alert); err != nil {
		s.metrics.IncNotifyFailure()
		s.logger.WarnContext(ctx, "alert notification failed",
			"alert_id", n.alert.ID,
			"alert_type", n.alert.Type,
			"error", err,
		)
	}
}

// Resolve marks an alert resolved. Resolving twice is a no-op.
func (s *Service) Resolve(ctx context.Context, alertID id.AlertID) error {
	now := requestcontext.Now(ctx)
	changed, err := s.store.Resolve(ctx, alertID, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.NewReason(dErrors.CodeNotFound, dErrors.ReasonAlertNotFound, "alert not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to resolve alert")
	}
	if !changed {
		return nil
	}
	s.metrics.IncResolved()
	event := audit.Event{
		Timestamp: now,
		Action:    audit.EventAlertResolved,
		Metadata:  map[string]string{"alert_id": alertID.String()},
	}
	if a, err := s.store.FindByID(ctx, alertID); err == nil {
		event.SubjectID = a.SubjectID
		event.Reason = string(a.Type)
	}
	s.emit(ctx, event)
	return nil
}

// ResolveFor resolves an alert on behalf of its owner. Alerts owned by
// another subject are reported as not found.
func (s *Service) ResolveFor(ctx context.Context, subjectID id.SubjectID, alertID id.AlertID) error {
	a, err := s.store.FindByID(ctx, alertID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to load alert")
	}
	if a == nil || a.SubjectID != subjectID {
		return dErrors.NewReason(dErrors.CodeNotFound, dErrors.ReasonAlertNotFound, "alert not found")
	}
	return s.Resolve(ctx, alertID)
}

func (s *Service) ListUnresolved(ctx context.Context, subjectID id.SubjectID) ([]*models.Alert, error) {
	alerts, err := s.store.ListUnresolved(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to list alerts")
	}
	return alerts, nil
}

func (s *Service) HasUnresolved(ctx context.Context, subjectID id.SubjectID, alertType models.Type) (bool, error) {
	ok, err := s.store.HasUnresolved(ctx, subjectID, alertType)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to check alerts")
	}
	return ok, nil
}

// Flush blocks until every queued notification has been attempted.
func (s *Service) Flush() {
	s.pending.Wait()
}

// Close stops accepting notifications and waits for the queue to drain.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.outbox != nil {
			close(s.outbox)
		}
		s.mu.Unlock()
		s.worker.Wait()
	})
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
