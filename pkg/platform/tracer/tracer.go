// Package tracer is a small span abstraction over OpenTelemetry so services can
// be traced without importing otel directly. Tests use NoopTracer.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	// End completes the span; a non-nil err marks it failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer starts spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Digest shortens an identifier to 16 hex chars of its SHA-256 so spans can be
// correlated without carrying raw credential IDs.
func Digest(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:8])
}

// Span names.
const (
	SpanRegistrationFinish   = "ceremony.registration.finish"
	SpanAuthenticationFinish = "ceremony.authentication.finish"
	SpanImpersonationStart   = "impersonation.start"
	SpanImpersonationStop    = "impersonation.stop"
)

// Attribute keys.
const (
	AttrSubjectID    = "subject.id"
	AttrCredential   = "credential.digest"
	AttrAlgorithm    = "credential.algorithm"
	AttrOutcome      = "outcome"
	AttrTargetID     = "impersonation.target_id"
	AttrStateless    = "impersonation.stateless"
	AttrUserVerified = "authenticator.user_verified"
)
