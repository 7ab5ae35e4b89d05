package audit

import (
	"context"
	"time"

	id "warden/pkg/domain"
)

// Event is emitted from domain logic to capture security-relevant actions.
// It is transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	SubjectID id.SubjectID
	// ActorID is the administrator behind an impersonated action, zero otherwise.
	ActorID   id.SubjectID
	Action    AuditEvent
	Decision  string
	Reason    string
	RequestID string
	Metadata  map[string]string
}

type AuditEvent string

const (
	EventCredentialRegistered      AuditEvent = "credential_registered"
	EventCredentialRevoked         AuditEvent = "credential_revoked"
	EventAuthenticationSucceeded   AuditEvent = "authentication_succeeded"
	EventAuthenticationFailed      AuditEvent = "authentication_failed"
	EventSessionTerminated         AuditEvent = "session_terminated"
	EventSessionsTerminated        AuditEvent = "sessions_terminated"
	EventSessionTrusted            AuditEvent = "session_trusted"
	EventAlertRaised               AuditEvent = "alert_raised"
	EventAlertResolved             AuditEvent = "alert_resolved"
	EventImpersonationStarted      AuditEvent = "impersonation_started"
	EventImpersonationStopped      AuditEvent = "impersonation_stopped"
	EventImpersonationDenied       AuditEvent = "impersonation_denied"
	EventTokenRefreshed            AuditEvent = "token_refreshed"
	EventMFAEnrolled               AuditEvent = "mfa_enrolled"
	EventRecoveryCodeUsed          AuditEvent = "recovery_code_used"
	EventRateLimited               AuditEvent = "rate_limited"
	EventRateLimitAllowlisted      AuditEvent = "rate_limit_allowlisted"
	EventRateLimitAllowlistRemoved AuditEvent = "rate_limit_allowlist_removed"
)

// Store persists audit events. Events are append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subjectID id.SubjectID, limit int) ([]Event, error)
}

// Emitter is the publishing side services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}
