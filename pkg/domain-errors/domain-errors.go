package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeNotFound            Code = "not_found"
	CodeVerificationFailed  Code = "verification_failed"
	CodePrivilegeDenied     Code = "privilege_denied"
	CodeStateConflict       Code = "state_conflict"
	CodeRateLimited         Code = "rate_limited"
	CodeUpstreamUnavailable Code = "upstream_unavailable"

	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_failed"
	CodeUnauthorized       Code = "unauthorized"
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"
)

// Reason narrows a Code to the specific condition that produced it.
// Reasons are for callers and logs; the HTTP layer only renders the Code.
type Reason string

const (
	ReasonChallengeNotFound          Reason = "challenge_not_found"
	ReasonAttestationInvalid         Reason = "attestation_invalid"
	ReasonCredentialNotFound         Reason = "credential_not_found"
	ReasonCredentialExists           Reason = "credential_exists"
	ReasonSubjectMismatch            Reason = "subject_mismatch"
	ReasonSubjectNotFound            Reason = "subject_not_found"
	ReasonSessionNotFound            Reason = "session_not_found"
	ReasonAlertNotFound              Reason = "alert_not_found"
	ReasonInsufficientPrivilege      Reason = "insufficient_privilege"
	ReasonSelfImpersonationForbidden Reason = "self_impersonation_forbidden"
	ReasonImpersonationActive        Reason = "impersonation_active"
	ReasonNoActiveImpersonation      Reason = "no_active_impersonation"
	ReasonTokenInvalid               Reason = "token_invalid"
	ReasonCodeInvalid                Reason = "code_invalid"
	ReasonAlreadyEnrolled            Reason = "already_enrolled"
	ReasonNotEnrolled                Reason = "not_enrolled"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Reason  Reason
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Reason != "" {
		return string(e.Reason)
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by code. When the target carries a reason, the reason must match too,
// so errors.Is(err, ErrChallengeNotFound) is stricter than errors.Is(err, &Error{Code: CodeNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Reason == "" || e.Reason == t.Reason
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// NewReason creates a domain error carrying a specific reason.
func NewReason(code Code, reason Reason, msg string) error {
	return &Error{Code: code, Reason: reason, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code and reason are preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Reason: existing.Reason, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// HasReason checks if an error is a domain error with the given reason.
func HasReason(err error, reason Reason) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason == reason
	}
	return false
}

// Match targets for errors.Is. They carry no message and are never returned directly.
var (
	ErrChallengeNotFound          = &Error{Code: CodeNotFound, Reason: ReasonChallengeNotFound}
	ErrCredentialNotFound         = &Error{Code: CodeNotFound, Reason: ReasonCredentialNotFound}
	ErrAttestationInvalid         = &Error{Code: CodeVerificationFailed, Reason: ReasonAttestationInvalid}
	ErrSubjectMismatch            = &Error{Code: CodeVerificationFailed, Reason: ReasonSubjectMismatch}
	ErrInsufficientPrivilege      = &Error{Code: CodePrivilegeDenied, Reason: ReasonInsufficientPrivilege}
	ErrSelfImpersonationForbidden = &Error{Code: CodeStateConflict, Reason: ReasonSelfImpersonationForbidden}
	ErrImpersonationActive        = &Error{Code: CodeStateConflict, Reason: ReasonImpersonationActive}
	ErrNoActiveImpersonation      = &Error{Code: CodeStateConflict, Reason: ReasonNoActiveImpersonation}
)
