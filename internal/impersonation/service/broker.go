// Package service brokers time-limited administrative impersonation. An
// administrator's original identity is retained in the context store and in
// the act claim of the impersonated tokens, so privileges can be restored by
// any instance.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"warden/internal/authz"
	"warden/internal/impersonation/metrics"
	"warden/internal/impersonation/models"
	identity "warden/internal/identity/models"
	session "warden/internal/session/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/sentinel"
	"warden/pkg/platform/tracer"
	"warden/pkg/requestcontext"
)

// ContextStore holds at most one live context per administrator.
// Error Contract: PutIfAbsent returns sentinel.ErrConflict when one is held;
// Replace, Get and Take return sentinel.ErrNotFound when none is.
type ContextStore interface {
	PutIfAbsent(ctx context.Context, c *models.Context) error
	Replace(ctx context.Context, c *models.Context) error
	Get(ctx context.Context, adminID id.SubjectID) (*models.Context, error)
	Take(ctx context.Context, adminID id.SubjectID) (*models.Context, error)
}

// TokenService is the identity provider's token surface.
type TokenService interface {
	IssuePair(ctx context.Context, req identity.IssueRequest) (*identity.TokenPair, error)
	RevokeTokenID(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	ValidateAccess(token string) (*identity.Claims, error)
}

// SubjectDirectory resolves impersonation targets.
type SubjectDirectory interface {
	Subject(ctx context.Context, subjectID id.SubjectID) (*identity.Subject, error)
}

// SessionTracker records the impersonated session on the target's device list.
type SessionTracker interface {
	TrackSession(ctx context.Context, subjectID id.SubjectID, fingerprint, userAgent string) (*session.Session, error)
	TerminateSession(ctx context.Context, sessionID id.SessionID) error
}

const (
	defaultContextTTL = time.Hour
	fingerprintPrefix = "impersonation:"
	impersonationUA   = "warden-impersonation"

	pathContext = "context"
	pathToken   = "token"
)

type Broker struct {
	roles    authz.RoleStore
	subjects SubjectDirectory
	tokens   TokenService
	contexts ContextStore
	sessions SessionTracker
	ttl      time.Duration
	auditor  audit.Emitter
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
}

type Option func(*Broker)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

func WithAuditor(auditor audit.Emitter) Option {
	return func(b *Broker) {
		b.auditor = auditor
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) {
		b.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(b *Broker) {
		b.tracer = t
	}
}

// WithSessions makes impersonated sessions visible to the session tracker.
func WithSessions(sessions SessionTracker) Option {
	return func(b *Broker) {
		b.sessions = sessions
	}
}

// WithContextTTL bounds how long a Stop by administrator ID stays possible.
func WithContextTTL(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.ttl = d
		}
	}
}

func New(roles authz.RoleStore, subjects SubjectDirectory, tokens TokenService, contexts ContextStore, opts ...Option) (*Broker, error) {
	if roles == nil || subjects == nil || tokens == nil || contexts == nil {
		return nil, errors.New("role store, subject directory, token service and context store are required")
	}
	b := &Broker{
		roles:    roles,
		subjects: subjects,
		tokens:   tokens,
		contexts: contexts,
		ttl:      defaultContextTTL,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.tracer == nil {
		b.tracer = tracer.NewNoop()
	}
	return b, nil
}

// Start mints a short-lived pair for target carrying adminID as actor.
func (b *Broker) Start(ctx context.Context, adminID, targetID id.SubjectID) (*identity.TokenPair, error) {
	ctx, span := b.tracer.Start(ctx, tracer.SpanImpersonationStart,
		tracer.String(tracer.AttrSubjectID, adminID.String()),
		tracer.String(tracer.AttrTargetID, targetID.String()),
	)
	pair, err := b.start(ctx, adminID, targetID)
	span.End(err)
	return pair, err
}

func (b *Broker) start(ctx context.Context, adminID, targetID id.SubjectID) (*identity.TokenPair, error) {
	if err := authz.RequireRole(ctx, b.roles, adminID, identity.RoleAdmin); err != nil {
		if dErrors.HasCode(err, dErrors.CodePrivilegeDenied) {
			b.deny(ctx, adminID, targetID, err)
		}
		return nil, err
	}
	if adminID == targetID {
		err := dErrors.NewReason(dErrors.CodeStateConflict, dErrors.ReasonSelfImpersonationForbidden, "cannot impersonate yourself")
		b.deny(ctx, adminID, targetID, err)
		return nil, err
	}
	if _, err := b.subjects.Subject(ctx, targetID); err != nil {
		return nil, upstream(err, "failed to resolve target")
	}

	now := requestcontext.Now(ctx)
	record := &models.Context{
		AdminID:        adminID,
		TargetID:       targetID,
		AdminSessionID: requestcontext.SessionID(ctx),
		IssuedAt:       now,
		ExpiresAt:      now.Add(b.ttl),
	}
	if err := b.contexts.PutIfAbsent(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			err = dErrors.NewReason(dErrors.CodeStateConflict, dErrors.ReasonImpersonationActive, "an impersonation is already active")
			b.deny(ctx, adminID, targetID, err)
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to record impersonation")
	}

	pair, err := b.mintImpersonated(ctx, record)
	if err != nil {
		b.rollback(ctx, record)
		return nil, err
	}

	b.metrics.IncStarted()
	b.logger.InfoContext(ctx, "impersonation_started",
		"admin_id", adminID,
		"target_id", targetID,
		"session_id", record.SessionID,
	)
	b.emit(ctx, audit.Event{
		Timestamp: now,
		SubjectID: targetID,
		ActorID:   adminID,
		Action:    audit.EventImpersonationStarted,
		Decision:  "granted",
		Metadata:  map[string]string{"session_id": record.SessionID.String()},
	})
	return pair, nil
}

// mintImpersonated opens the impersonated session, mints its pair and records
// the token IDs on the held context.
func (b *Broker) mintImpersonated(ctx context.Context, record *models.Context) (*identity.TokenPair, error) {
	record.SessionID = id.NewSessionID()
	if b.sessions != nil {
		sess, err := b.sessions.TrackSession(ctx, record.TargetID, fingerprintPrefix+record.AdminID.String(), impersonationUA)
		if err != nil {
			return nil, err
		}
		record.SessionID = sess.ID
	}

	pair, err := b.tokens.IssuePair(ctx, identity.IssueRequest{
		SubjectID:  record.TargetID,
		SessionID:  record.SessionID,
		ActorID:    record.AdminID,
		ShortLived: true,
	})
	if err != nil {
		return nil, upstream(err, "failed to issue impersonation tokens")
	}
	record.AccessTokenID = pair.AccessTokenID
	record.AccessExpiresAt = pair.AccessExpiresAt
	record.RefreshTokenID = pair.RefreshTokenID
	record.RefreshExpiresAt = pair.RefreshExpiresAt
	if err := b.contexts.Replace(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to record impersonation tokens")
	}
	return pair, nil
}

// rollback undoes a partial Start so the administrator is not left locked out.
func (b *Broker) rollback(ctx context.Context, record *models.Context) {
	if _, err := b.contexts.Take(ctx, record.AdminID); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		b.logger.ErrorContext(ctx, "failed to roll back impersonation context", "admin_id", record.AdminID, "error", err)
	}
	b.invalidate(ctx, record)
}

// Stop restores the administrator using the held context.
func (b *Broker) Stop(ctx context.Context, adminID id.SubjectID) (*identity.TokenPair, error) {
	ctx, span := b.tracer.Start(ctx, tracer.SpanImpersonationStop,
		tracer.String(tracer.AttrSubjectID, adminID.String()),
		tracer.Bool(tracer.AttrStateless, false),
	)
	pair, err := b.stop(ctx, adminID)
	span.End(err)
	return pair, err
}

func (b *Broker) stop(ctx context.Context, adminID id.SubjectID) (*identity.TokenPair, error) {
	record, err := b.contexts.Take(ctx, adminID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, noActiveImpersonation()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to load impersonation")
	}
	return b.restore(ctx, record, pathContext)
}

// StopWithToken restores from the act claim of an impersonated access token.
// It works on any instance, with or without a held context.
func (b *Broker) StopWithToken(ctx context.Context, accessToken string) (*identity.TokenPair, error) {
	ctx, span := b.tracer.Start(ctx, tracer.SpanImpersonationStop, tracer.Bool(tracer.AttrStateless, true))
	pair, err := b.stopWithToken(ctx, accessToken)
	span.End(err)
	return pair, err
}

func (b *Broker) stopWithToken(ctx context.Context, accessToken string) (*identity.TokenPair, error) {
	claims, err := b.tokens.ValidateAccess(accessToken)
	if err != nil {
		return nil, err
	}
	if !claims.IsImpersonated() {
		return nil, noActiveImpersonation()
	}
	revoked, err := b.tokens.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to check revocation")
	}
	if revoked {
		return nil, noActiveImpersonation()
	}

	record, err := b.contexts.Take(ctx, claims.ActorID)
	switch {
	case err == nil && record.TargetID == claims.SubjectID:
		if record.AccessTokenID != claims.JTI {
			b.revoke(ctx, claims.JTI, claims.ExpiresAt)
		}
		return b.restore(ctx, record, pathContext)
	case err == nil:
		// A newer impersonation owns the held context; leave it in place.
		if putErr := b.contexts.PutIfAbsent(ctx, record); putErr != nil {
			b.logger.WarnContext(ctx, "failed to return impersonation context", "admin_id", record.AdminID, "error", putErr)
		}
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to load impersonation")
	}

	return b.restore(ctx, &models.Context{
		AdminID:         claims.ActorID,
		TargetID:        claims.SubjectID,
		SessionID:       claims.SessionID,
		AccessTokenID:   claims.JTI,
		AccessExpiresAt: claims.ExpiresAt,
	}, pathToken)
}

// restore invalidates the impersonated tokens and session, then mints the
// administrator's own pair. It does not depend on the impersonated session
// still being active.
func (b *Broker) restore(ctx context.Context, record *models.Context, path string) (*identity.TokenPair, error) {
	b.invalidate(ctx, record)

	pair, err := b.tokens.IssuePair(ctx, identity.IssueRequest{
		SubjectID: record.AdminID,
		SessionID: record.AdminSessionID,
	})
	if err != nil {
		if path == pathContext {
			if putErr := b.contexts.PutIfAbsent(ctx, record); putErr != nil {
				b.logger.ErrorContext(ctx, "failed to retain impersonation context after restore failure",
					"admin_id", record.AdminID,
					"error", putErr,
				)
			}
		}
		return nil, upstream(err, "failed to issue administrator tokens")
	}

	now := requestcontext.Now(ctx)
	var held float64
	if !record.IssuedAt.IsZero() {
		held = now.Sub(record.IssuedAt).Seconds()
	}
	b.metrics.ObserveStopped(path, held)
	b.logger.InfoContext(ctx, "impersonation_stopped",
		"admin_id", record.AdminID,
		"target_id", record.TargetID,
		"restore_path", path,
	)
	b.emit(ctx, audit.Event{
		Timestamp: now,
		SubjectID: record.TargetID,
		ActorID:   record.AdminID,
		Action:    audit.EventImpersonationStopped,
		Metadata: map[string]string{
			"session_id":   record.SessionID.String(),
			"restore_path": path,
		},
	})
	return pair, nil
}

// invalidate revokes the impersonated tokens and ends the impersonated
// session. Failures are logged; restoration proceeds regardless.
func (b *Broker) invalidate(ctx context.Context, record *models.Context) {
	b.revoke(ctx, record.AccessTokenID, record.AccessExpiresAt)
	b.revoke(ctx, record.RefreshTokenID, record.RefreshExpiresAt)
	if b.sessions == nil || record.SessionID.IsNil() {
		return
	}
	if err := b.sessions.TerminateSession(ctx, record.SessionID); err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		b.logger.WarnContext(ctx, "failed to terminate impersonated session",
			"session_id", record.SessionID,
			"error", err,
		)
	}
}

func (b *Broker) revoke(ctx context.Context, jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	if err := b.tokens.RevokeTokenID(ctx, jti, expiresAt); err != nil {
		b.logger.WarnContext(ctx, "failed to revoke impersonated token", "error", err)
	}
}

// IsImpersonating reports whether the administrator holds a live context.
func (b *Broker) IsImpersonating(ctx context.Context, adminID id.SubjectID) (bool, error) {
	_, err := b.contexts.Get(ctx, adminID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to load impersonation")
	}
	return true, nil
}

// Status describes the administrator's held context, if any.
func (b *Broker) Status(ctx context.Context, adminID id.SubjectID) (*models.Status, error) {
	record, err := b.contexts.Get(ctx, adminID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.Status{}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to load impersonation")
	}
	return &models.Status{
		Active:    true,
		TargetID:  &record.TargetID,
		IssuedAt:  &record.IssuedAt,
		ExpiresAt: &record.ExpiresAt,
	}, nil
}

func (b *Broker) deny(ctx context.Context, adminID, targetID id.SubjectID, err error) {
	var reason string
	var de *dErrors.Error
	if errors.As(err, &de) {
		reason = string(de.Reason)
	}
	b.metrics.IncDenied(reason)
	b.logger.WarnContext(ctx, "impersonation_denied",
		"admin_id", adminID,
		"target_id", targetID,
		"reason", reason,
	)
	b.emit(ctx, audit.Event{
		Timestamp: requestcontext.Now(ctx),
		SubjectID: targetID,
		ActorID:   adminID,
		Action:    audit.EventImpersonationDenied,
		Decision:  "denied",
		Reason:    reason,
	})
}

func (b *Broker) emit(ctx context.Context, event audit.Event) {
	if b.auditor == nil {
		return
	}
	if err := b.auditor.Emit(ctx, event); err != nil {
		b.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

func noActiveImpersonation() error {
	return dErrors.NewReason(dErrors.CodeStateConflict, dErrors.ReasonNoActiveImpersonation, "no active impersonation")
}

// upstream keeps domain errors from collaborators and wraps anything else.
func upstream(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, msg)
}
