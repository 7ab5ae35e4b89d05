// Package auth authenticates bearer tokens and places the typed identities in context.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "warden/pkg/domain"
	"warden/pkg/requestcontext"
)

// TokenValidator verifies an access token's signature, issuer and expiry.
type TokenValidator interface {
	ValidateAccessToken(token string) (*Claims, error)
}

// RevocationChecker reports whether a token ID was revoked before expiry.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Claims is the subset of token claims the middleware needs.
type Claims struct {
	SubjectID string
	SessionID string
	JTI       string
	// ActorID is set when an administrator acts through an impersonated token.
	ActorID string
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

type identity struct {
	subject id.SubjectID
	session id.SessionID
	actor   id.SubjectID
}

func parseClaims(c *Claims) (*identity, error) {
	subject, err := id.ParseSubjectID(c.SubjectID)
	if err != nil || subject.IsNil() {
		return nil, fmt.Errorf("invalid sub: %w", err)
	}
	out := &identity{subject: subject}
	if c.SessionID != "" {
		if out.session, err = id.ParseSessionID(c.SessionID); err != nil {
			return nil, fmt.Errorf("invalid sid: %w", err)
		}
	}
	if c.ActorID != "" {
		if out.actor, err = id.ParseSubjectID(c.ActorID); err != nil {
			return nil, fmt.Errorf("invalid act.sub: %w", err)
		}
	}
	return out, nil
}

// RequireAuth rejects requests without a valid, unrevoked bearer token.
// A nil checker skips the revocation lookup.
func RequireAuth(validator TokenValidator, checker RevocationChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token", "request_id", requestID)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateAccessToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token", "error", err, "request_id", requestID)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			if checker != nil {
				if claims.JTI == "" {
					logger.WarnContext(ctx, "unauthorized access - missing token jti", "request_id", requestID)
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Token has been revoked")
					return
				}
				revoked, err := checker.IsRevoked(ctx, claims.JTI)
				if err != nil {
					logger.ErrorContext(ctx, "failed to check token revocation", "error", err, "request_id", requestID)
					writeJSONError(w, http.StatusServiceUnavailable, "service_unavailable", "Failed to validate token")
					return
				}
				if revoked {
					logger.WarnContext(ctx, "unauthorized access - token revoked", "jti", claims.JTI, "request_id", requestID)
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Token has been revoked")
					return
				}
			}

			ident, err := parseClaims(claims)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed token claims", "error", err, "request_id", requestID)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			ctx = requestcontext.WithSubjectID(ctx, ident.subject)
			ctx = requestcontext.WithSessionID(ctx, ident.session)
			ctx = requestcontext.WithTokenID(ctx, claims.JTI)
			if !ident.actor.IsNil() {
				ctx = requestcontext.WithActorID(ctx, ident.actor)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
