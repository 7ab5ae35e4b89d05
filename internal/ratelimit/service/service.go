// Package service implements fixed-window rate limiting over a shared
// counter store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"warden/internal/ratelimit/metrics"
	"warden/internal/ratelimit/models"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/privacy"
	"warden/pkg/requestcontext"
)

const (
	DefaultMax    = 10
	DefaultWindow = 15 * time.Minute
)

// CounterStore performs an atomic read-reset-increment per key.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (*models.Counter, error)
	Reset(ctx context.Context, key string) error
}

// AllowlistStore holds caller identities that skip counting entirely.
type AllowlistStore interface {
	Add(ctx context.Context, entry *models.AllowlistEntry) error
	Remove(ctx context.Context, prefix models.KeyPrefix, identifier string) (bool, error)
	IsAllowlisted(ctx context.Context, prefix models.KeyPrefix, identifier string, now time.Time) (bool, error)
	List(ctx context.Context, now time.Time) ([]*models.AllowlistEntry, error)
}

type Service struct {
	counters  CounterStore
	allowlist AllowlistStore
	policy   models.Policy
	classes  map[models.RouteClass]models.Policy
	logger   *slog.Logger
	auditor  audit.Emitter
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPolicy sets the default quota. Non-positive fields keep the default.
func WithPolicy(p models.Policy) Option {
	return func(s *Service) {
		if p.Max > 0 {
			s.policy.Max = p.Max
		}
		if p.Window > 0 {
			s.policy.Window = p.Window
		}
	}
}

// WithClassPolicy overrides the quota for one route class.
func WithClassPolicy(class models.RouteClass, p models.Policy) Option {
	return func(s *Service) {
		if p.Max > 0 && p.Window > 0 {
			s.classes[class] = p
		}
	}
}

func WithAuditor(auditor audit.Emitter) Option {
	return func(s *Service) {
		s.auditor = auditor
	}
}

func WithAllowlist(store AllowlistStore) Option {
	return func(s *Service) {
		s.allowlist = store
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(counters CounterStore, opts ...Option) (*Service, error) {
	if counters == nil {
		return nil, errors.New("counter store is required")
	}
	s := &Service{
		counters: counters,
		policy:   models.Policy{Max: DefaultMax, Window: DefaultWindow},
		classes:  make(map[models.RouteClass]models.Policy),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PolicyFor returns the quota applied to a route class.
func (s *Service) PolicyFor(class models.RouteClass) models.Policy {
	if p, ok := s.classes[class]; ok {
		return p
	}
	return s.policy
}

// Check counts one request against key under the default policy.
func (s *Service) Check(ctx context.Context, key string) (*models.Result, error) {
	return s.check(ctx, key, "", "", s.policy)
}

// CheckKey counts one request against a route-class key. Allowlisted
// callers are let through without touching the counter.
func (s *Service) CheckKey(ctx context.Context, key models.Key) (*models.Result, error) {
	policy := s.PolicyFor(key.Class())
	if s.allowlist != nil {
		now := requestcontext.Now(ctx)
		ok, err := s.allowlist.IsAllowlisted(ctx, key.Prefix(), key.Identifier(), now)
		if err != nil {
			s.metrics.IncError()
			return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to check rate limit allowlist")
		}
		if ok {
			return &models.Result{Allowed: true, Limit: policy.Max, Remaining: policy.Max, ResetAt: now, Bypassed: true}, nil
		}
	}
	return s.check(ctx, key.String(), key.Redacted(), key.Class(), policy)
}

// check counts against key. redacted names the key in audit records and is
// empty for raw keys whose identity cannot be anonymized.
func (s *Service) check(ctx context.Context, key, redacted string, class models.RouteClass, policy models.Policy) (*models.Result, error) {
	if key == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rate limit key is required")
	}
	now := requestcontext.Now(ctx)
	counter, err := s.counters.Increment(ctx, key, policy.Window, now)
	if err != nil {
		s.metrics.IncError()
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to check rate limit")
	}

	res := &models.Result{
		Allowed: counter.Count <= policy.Max,
		Limit:   policy.Max,
		ResetAt: counter.WindowExpiresAt,
	}
	if res.Allowed {
		res.Remaining = policy.Max - counter.Count
	} else {
		res.RetryAfter = max(counter.WindowExpiresAt.Sub(now), 0)
	}
	s.metrics.IncCheck(string(class), res.Allowed)

	if !res.Allowed && counter.Count == policy.Max+1 {
		s.rejected(ctx, redacted, class, policy)
	}
	return res, nil
}

// rejected is called once per window, on the first rejected request.
func (s *Service) rejected(ctx context.Context, redacted string, class models.RouteClass, policy models.Policy) {
	s.logger.WarnContext(ctx, "rate_limit_exceeded",
		"route_class", class,
		"client_ip", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
		"limit", policy.Max,
		"window_seconds", int(policy.Window.Seconds()),
		"request_id", requestcontext.RequestID(ctx),
	)
	subject := requestcontext.SubjectID(ctx)
	event := audit.Event{
		SubjectID: subject,
		Action:    audit.EventRateLimited,
		Decision:  "denied",
		Reason:    string(class),
		Metadata: map[string]string{
			"limit":          strconv.Itoa(policy.Max),
			"window_seconds": strconv.Itoa(int(policy.Window.Seconds())),
		},
	}
	if redacted != "" {
		event.Metadata["key"] = redacted
	}
	if subject.IsNil() {
		event.Metadata["client_ip"] = privacy.AnonymizeIP(requestcontext.ClientIP(ctx))
	}
	s.emit(ctx, event)
}

// Reset clears a key, e.g. after a successful login.
func (s *Service) Reset(ctx context.Context, key models.Key) error {
	if err := s.counters.Reset(ctx, key.String()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to reset rate limit")
	}
	return nil
}

// Allow adds or replaces an allowlist entry.
func (s *Service) Allow(ctx context.Context, entry *models.AllowlistEntry) error {
	if s.allowlist == nil {
		return dErrors.New(dErrors.CodeStateConflict, "rate limit allowlist is not configured")
	}
	if entry == nil || entry.Identifier == "" {
		return dErrors.New(dErrors.CodeValidation, "allowlist identifier is required")
	}
	if entry.Prefix != models.KeyPrefixIP && entry.Prefix != models.KeyPrefixSubject {
		return dErrors.New(dErrors.CodeValidation, "allowlist entry must name an ip or a subject")
	}
	now := requestcontext.Now(ctx)
	if !entry.ActiveAt(now) {
		return dErrors.New(dErrors.CodeValidation, "allowlist expiry must be in the future")
	}
	entry.CreatedAt = now
	if err := s.allowlist.Add(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to add allowlist entry")
	}
	s.logger.InfoContext(ctx, "rate_limit_allowlisted",
		"prefix", entry.Prefix,
		"created_by", entry.CreatedBy,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.Event{
		SubjectID: entry.CreatedBy,
		Action:    audit.EventRateLimitAllowlisted,
		Decision:  "granted",
		Reason:    entry.Reason,
		Metadata:  map[string]string{"prefix": string(entry.Prefix)},
	})
	return nil
}

// Disallow removes an allowlist entry. A missing entry is NotFound.
func (s *Service) Disallow(ctx context.Context, prefix models.KeyPrefix, identifier string) error {
	if s.allowlist == nil {
		return dErrors.New(dErrors.CodeStateConflict, "rate limit allowlist is not configured")
	}
	removed, err := s.allowlist.Remove(ctx, prefix, identifier)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to remove allowlist entry")
	}
	if !removed {
		return dErrors.New(dErrors.CodeNotFound, "allowlist entry not found")
	}
	s.emit(ctx, audit.Event{
		SubjectID: requestcontext.SubjectID(ctx),
		Action:    audit.EventRateLimitAllowlistRemoved,
		Decision:  "revoked",
		Metadata:  map[string]string{"prefix": string(prefix)},
	})
	return nil
}

// Allowlist returns the entries in force now.
func (s *Service) Allowlist(ctx context.Context) ([]*models.AllowlistEntry, error) {
	if s.allowlist == nil {
		return []*models.AllowlistEntry{}, nil
	}
	entries, err := s.allowlist.List(ctx, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to list allowlist entries")
	}
	return entries, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
