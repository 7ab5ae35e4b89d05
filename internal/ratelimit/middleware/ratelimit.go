// Package middleware applies route-class rate limits to chi routes.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"warden/internal/ratelimit/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/httputil"
	"warden/pkg/platform/privacy"
	"warden/pkg/requestcontext"
)

type RateLimiter interface {
	CheckKey(ctx context.Context, key models.Key) (*models.Result, error)
}

type Middleware struct {
	limiter  RateLimiter
	logger   *slog.Logger
	failOpen bool
}

type Option func(*Middleware)

// WithFailOpen lets requests through when the counter store is unavailable.
// By default they are rejected with 503.
func WithFailOpen(failOpen bool) Option {
	return func(m *Middleware) {
		m.failOpen = failOpen
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{limiter: limiter, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Limit counts each request against class. Authenticated requests are keyed
// by subject, anonymous ones by client IP.
func (m *Middleware) Limit(class models.RouteClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := keyFor(ctx, class)

			result, err := m.limiter.CheckKey(ctx, key)
			if err != nil {
				m.logger.ErrorContext(ctx, "failed to check rate limit",
					"error", err,
					"route_class", class,
					"ip_prefix", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
					"request_id", requestcontext.RequestID(ctx),
				)
				if m.failOpen {
					next.ServeHTTP(w, r)
					return
				}
				httputil.WriteError(w, err)
				return
			}

			addRateLimitHeaders(w, result)
			if !result.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfterSeconds()))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func keyFor(ctx context.Context, class models.RouteClass) models.Key {
	if subject := requestcontext.SubjectID(ctx); !subject.IsNil() {
		return models.NewKey(class, models.KeyPrefixSubject, subject.String())
	}
	return models.NewKey(class, models.KeyPrefixIP, requestcontext.ClientIP(ctx))
}

// addRateLimitHeaders sets X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset (unix seconds).
func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	if result == nil || result.Bypassed {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
