// Package requestcontext carries request-scoped values through context.Context.
// All operations within a single request share the same "now", request ID
// and client metadata, so audit records and domain timestamps agree.
package requestcontext

import (
	"context"
	"time"

	id "warden/pkg/domain"
)

type (
	ctxKeyTime              struct{}
	ctxKeyRequestID         struct{}
	ctxKeyClientIP          struct{}
	ctxKeyUserAgent         struct{}
	ctxKeyDeviceID          struct{}
	ctxKeyDeviceFingerprint struct{}
	ctxKeySubjectID         struct{}
	ctxKeySessionID         struct{}
	ctxKeyTokenID           struct{}
	ctxKeyActorID           struct{}
)

// WithTime injects a specific time into a context.
// Workers and tests use it to pin the clock for a batch of operations.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyTime{}, t)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ctxKeyTime{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID{}, requestID)
}

func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return v
}

// WithClientMetadata stores the resolved client IP and User-Agent.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyClientIP{}, clientIP)
	return context.WithValue(ctx, ctxKeyUserAgent{}, userAgent)
}

func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyClientIP{}).(string)
	return v
}

func UserAgent(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyUserAgent{}).(string)
	return v
}

func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, ctxKeyDeviceID{}, deviceID)
}

func DeviceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyDeviceID{}).(string)
	return v
}

func WithDeviceFingerprint(ctx context.Context, fingerprint string) context.Context {
	return context.WithValue(ctx, ctxKeyDeviceFingerprint{}, fingerprint)
}

func DeviceFingerprint(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyDeviceFingerprint{}).(string)
	return v
}

func WithSubjectID(ctx context.Context, subjectID id.SubjectID) context.Context {
	return context.WithValue(ctx, ctxKeySubjectID{}, subjectID)
}

// SubjectID returns the authenticated subject, or the zero ID when unauthenticated.
func SubjectID(ctx context.Context) id.SubjectID {
	v, _ := ctx.Value(ctxKeySubjectID{}).(id.SubjectID)
	return v
}

func WithSessionID(ctx context.Context, sessionID id.SessionID) context.Context {
	return context.WithValue(ctx, ctxKeySessionID{}, sessionID)
}

func SessionID(ctx context.Context) id.SessionID {
	v, _ := ctx.Value(ctxKeySessionID{}).(id.SessionID)
	return v
}

func WithTokenID(ctx context.Context, jti string) context.Context {
	return context.WithValue(ctx, ctxKeyTokenID{}, jti)
}

// TokenID is the JTI of the access token that authenticated the request.
func TokenID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyTokenID{}).(string)
	return v
}

// WithActorID records the administrator acting through an impersonated token.
func WithActorID(ctx context.Context, actor id.SubjectID) context.Context {
	return context.WithValue(ctx, ctxKeyActorID{}, actor)
}

func ActorID(ctx context.Context) (id.SubjectID, bool) {
	v, ok := ctx.Value(ctxKeyActorID{}).(id.SubjectID)
	return v, ok && !v.IsNil()
}
