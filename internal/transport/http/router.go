// Package httptransport assembles the HTTP surface: the middleware chain,
// per-class rate limits and every feature handler.
package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	alertHandler "warden/internal/alert/handler"
	ceremonyHandler "warden/internal/ceremony/handler"
	impersonationHandler "warden/internal/impersonation/handler"
	mfaHandler "warden/internal/mfa/handler"
	"warden/internal/platform/health"
	ratelimitHandler "warden/internal/ratelimit/handler"
	ratelimitMiddleware "warden/internal/ratelimit/middleware"
	ratelimit "warden/internal/ratelimit/models"
	sessionDevice "warden/internal/session/device"
	sessionHandler "warden/internal/session/handler"
	"warden/pkg/platform/middleware/auth"
	"warden/pkg/platform/middleware/device"
	"warden/pkg/platform/middleware/metadata"
	"warden/pkg/platform/middleware/request"
)

// Config holds the transport settings taken from server configuration.
type Config struct {
	MaxBodyBytes   int64
	TrustedProxies []netip.Prefix
	DeviceCookie   string
}

// Handlers are the feature handlers mounted by the router.
type Handlers struct {
	Health        *health.Handler
	Ceremony      *ceremonyHandler.Handler
	Sessions      *sessionHandler.Handler
	Alerts        *alertHandler.Handler
	Impersonation *impersonationHandler.Handler
	MFA           *mfaHandler.Handler
	RateLimit     *ratelimitHandler.Handler
}

// Deps are the cross-cutting collaborators of the middleware chain.
type Deps struct {
	Logger      *slog.Logger
	Tokens      auth.TokenValidator
	Revocations auth.RevocationChecker
	Limiter     *ratelimitMiddleware.Middleware
	Metrics     *request.Metrics
	// Gatherer backs /metrics. Nil leaves the endpoint unmounted.
	Gatherer prometheus.Gatherer
}

// NewRouter wires middleware and routes. Rate limits run before the handler
// they guard; authenticated classes are keyed by subject, so their limiter
// sits behind RequireAuth.
func NewRouter(cfg Config, deps Deps, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(otelhttp.NewMiddleware("warden",
		otelhttp.WithFilter(traced),
		otelhttp.WithSpanNameFormatter(spanName),
	))
	r.Use(nameSpan)
	r.Use(request.Recovery(deps.Logger))
	r.Use(request.RequestID)
	r.Use(request.RequestTime)
	r.Use(request.Logger(deps.Logger))
	r.Use(metadata.NewMiddleware(&metadata.Config{TrustedProxies: cfg.TrustedProxies}).Handler)
	r.Use(device.Device(&device.Config{
		CookieName:  cfg.DeviceCookie,
		Fingerprint: sessionDevice.Fingerprint,
	}))
	if cfg.MaxBodyBytes > 0 {
		r.Use(request.BodyLimit(cfg.MaxBodyBytes))
	}
	r.Use(request.ContentTypeJSON)
	r.Use(request.Latency(deps.Metrics, routePattern))

	if h.Health != nil {
		h.Health.Register(r)
	}
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.Limiter.Limit(ratelimit.ClassLogin))
		h.Ceremony.RegisterPublic(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.Tokens, deps.Revocations, deps.Logger))

		h.Ceremony.Register(r)
		h.Sessions.Register(r)
		h.Alerts.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(deps.Limiter.Limit(ratelimit.ClassMFA))
			h.MFA.Register(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(deps.Limiter.Limit(ratelimit.ClassRecovery))
			h.MFA.RegisterRecovery(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(deps.Limiter.Limit(ratelimit.ClassImpersonation))
			h.Impersonation.Register(r)
			h.RateLimit.Register(r)
		})
	})

	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// spanName is "METHOD /pattern" once chi has routed the request and the
// operation name before that. otelhttp calls it again after the handler
// whenever the request carries a pattern.
func spanName(operation string, r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return r.Method + " " + pattern
		}
	}
	return operation
}

// nameSpan renames the server span after routing for requests whose pattern
// never reaches otelhttp, such as those copied by WithContext downstream.
func nameSpan(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		trace.SpanFromContext(r.Context()).SetName(spanName(r.Method+" unmatched", r))
	})
}

func traced(r *http.Request) bool {
	return r.URL.Path != "/metrics" && !strings.HasPrefix(r.URL.Path, "/health")
}
