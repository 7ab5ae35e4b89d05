// Package service tracks device sessions per subject and evaluates them for
// anomalies.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"warden/internal/session/detector"
	"warden/internal/session/metrics"
	"warden/internal/session/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/privacy"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
)

// Store persists session records.
// Error Contract: FindByID, Deactivate and SetTrustedUntil return
// sentinel.ErrNotFound for an unknown session.
type Store interface {
	Upsert(ctx context.Context, req models.TrackRequest) (*models.TrackResult, error)
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	ListActive(ctx context.Context, subjectID id.SubjectID) ([]*models.Session, error)
	Deactivate(ctx context.Context, sessionID id.SessionID, at time.Time) (bool, error)
	DeactivateOthers(ctx context.Context, subjectID id.SubjectID, keep id.SessionID, at time.Time) (int, error)
	SetTrustedUntil(ctx context.Context, sessionID id.SessionID, until *time.Time) error
}

type Service struct {
	store   Store
	policy  models.DetectorPolicy
	auditor audit.Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPolicy replaces the detector thresholds. Zero fields keep their defaults.
func WithPolicy(p models.DetectorPolicy) Option {
	return func(s *Service) {
		if p.StaleAfter > 0 {
			s.policy.StaleAfter = p.StaleAfter
		}
		if p.MaxConcurrent > 0 {
			s.policy.MaxConcurrent = p.MaxConcurrent
		}
		if p.NewDeviceWindow > 0 {
			s.policy.NewDeviceWindow = p.NewDeviceWindow
		}
		if p.TravelWindow > 0 {
			s.policy.TravelWindow = p.TravelWindow
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
		return nil, errors.New("session store is required")
	}
	svc := &Service{store: store, policy: models.DefaultPolicy}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc, nil
}

// TrackSession records activity for (subject, fingerprint). Repeated calls
// refresh the same record. The client IP comes from request metadata.
func (s *Service) TrackSession(ctx context.Context, subjectID id.SubjectID, fingerprint, userAgent string) (*models.Session, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	if fingerprint == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "device fingerprint is required")
	}
	res, err := s.store.Upsert(ctx, models.TrackRequest{
		SubjectID:   subjectID,
		Fingerprint: fingerprint,
		UserAgent:   userAgent,
		IPAddress:   requestcontext.ClientIP(ctx),
		Now:         requestcontext.Now(ctx),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to track session", "subject_id", subjectID, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to track session")
	}
	s.metrics.IncTracked(res.Created)
	if res.NewDevice {
		s.logger.InfoContext(ctx, "session_new_device",
			"subject_id", subjectID,
			"session_id", res.Session.ID,
			"client_ip", privacy.AnonymizeIP(res.Session.IPAddress),
		)
	}
	return res.Session, nil
}

// DetectAnomalies reports on the subject's active sessions. It never writes alerts.
func (s *Service) DetectAnomalies(ctx context.Context, subjectID id.SubjectID) (*models.AnomalyReport, error) {
	sessions, err := s.store.ListActive(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to load sessions")
	}
	return detector.Detect(subjectID, sessions, s.policy, requestcontext.Now(ctx)), nil
}

func (s *Service) ListSessions(ctx context.Context, subjectID id.SubjectID) ([]*models.Session, error) {
	sessions, err := s.store.ListActive(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to list sessions")
	}
	return sessions, nil
}

// TerminateSession deactivates one session. Terminating an inactive session is a no-op.
func (s *Service) TerminateSession(ctx context.Context, sessionID id.SessionID) error {
	now := requestcontext.Now(ctx)
	changed, err := s.store.Deactivate(ctx, sessionID, now)
	if err != nil {
		return s.translate(err, "failed to terminate session")
	}
	if !changed {
		return nil
	}
	s.metrics.AddTerminated(1)
	event := audit.Event{
		Timestamp: now,
		Action:    audit.EventSessionTerminated,
		Metadata:  map[string]string{"session_id": sessionID.String()},
	}
	if sess, err := s.store.FindByID(ctx, sessionID); err == nil {
		event.SubjectID = sess.SubjectID
	}
	s.emit(ctx, event)
	return nil
}

// TerminateSessionFor terminates a session on behalf of its owner. Sessions of
// other subjects are reported as not found.
func (s *Service) TerminateSessionFor(ctx context.Context, subjectID id.SubjectID, sessionID id.SessionID) error {
	if _, err := s.owned(ctx, subjectID, sessionID); err != nil {
		return err
	}
	return s.TerminateSession(ctx, sessionID)
}

// TerminateOtherSessions deactivates every active session of the subject except keep.
func (s *Service) TerminateOtherSessions(ctx context.Context, subjectID id.SubjectID, keep id.SessionID) (int, error) {
	now := requestcontext.Now(ctx)
	n, err := s.store.DeactivateOthers(ctx, subjectID, keep, now)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to terminate sessions")
	}
	s.metrics.AddTerminated(n)
	s.emit(ctx, audit.Event{
		Timestamp: now,
		SubjectID: subjectID,
		Action:    audit.EventSessionsTerminated,
		Metadata: map[string]string{
			"kept_session_id": keep.String(),
			"terminated":      strconv.Itoa(n),
		},
	})
	return n, nil
}

// TrustSession marks a session trusted until the given time, which must be in the future.
func (s *Service) TrustSession(ctx context.Context, sessionID id.SessionID, until time.Time) error {
	now := requestcontext.Now(ctx)
	if !until.After(now) {
		return dErrors.New(dErrors.CodeValidation, "trust must end in the future")
	}
	if err := s.store.SetTrustedUntil(ctx, sessionID, &until); err != nil {
		return s.translate(err, "failed to trust session")
	}
	event := audit.Event{
		Timestamp: now,
		Action:    audit.EventSessionTrusted,
		Metadata: map[string]string{
			"session_id":    sessionID.String(),
			"trusted_until": until.UTC().Format(time.RFC3339),
		},
	}
	if sess, err := s.store.FindByID(ctx, sessionID); err == nil {
		event.SubjectID = sess.SubjectID
	}
	s.emit(ctx, event)
	return nil
}

// TrustSessionFor trusts a session on behalf of its owner.
func (s *Service) TrustSessionFor(ctx context.Context, subjectID id.SubjectID, sessionID id.SessionID, until time.Time) error {
	if _, err := s.owned(ctx, subjectID, sessionID); err != nil {
		return err
	}
	return s.TrustSession(ctx, sessionID, until)
}

func (s *Service) owned(ctx context.Context, subjectID id.SubjectID, sessionID id.SessionID) (*models.Session, error) {
	sess, err := s.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, s.translate(err, "failed to load session")
	}
	if sess.SubjectID != subjectID {
		return nil, sessionNotFound()
	}
	return sess, nil
}

func (s *Service) translate(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return sessionNotFound()
	}
	return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, msg)
}

func sessionNotFound() error {
	return dErrors.NewReason(dErrors.CodeNotFound, dErrors.ReasonSessionNotFound, "session not found")
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
