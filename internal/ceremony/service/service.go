// Package service runs registration and authentication ceremonies over the
// challenge store and credential registry.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"

	"warden/internal/ceremony/metrics"
	"warden/internal/ceremony/models"
	"warden/internal/ceremony/verify"
	identity "warden/internal/identity/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/tracer"
	"warden/pkg/requestcontext"
)

// ChallengeStore persists single-use challenges.
// Error Contract: Consume returns sentinel.ErrNotFound when no challenge
// satisfies the request, including expired ones.
type ChallengeStore interface {
	Save(ctx context.Context, c *models.Challenge) error
	Consume(ctx context.Context, req models.ConsumeRequest) (*models.Challenge, error)
}

// CredentialStore is the credential registry.
// Error Contract: Create returns sentinel.ErrConflict for a taken ID; FindByID
// and Delete return sentinel.ErrNotFound; RecordUse returns
// sentinel.ErrInvalidState when the counter no longer advances.
type CredentialStore interface {
	Create(ctx context.Context, c *models.Credential) error
	FindByID(ctx context.Context, credentialID id.CredentialID) (*models.Credential, error)
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*models.Credential, error)
	RecordUse(ctx context.Context, credentialID id.CredentialID, signCount uint32, usedAt time.Time) error
	Delete(ctx context.Context, subjectID id.SubjectID, credentialID id.CredentialID) error
}

// SubjectDirectory resolves the subject a registration is for.
type SubjectDirectory interface {
	Subject(ctx context.Context, subjectID id.SubjectID) (*identity.Subject, error)
}

// Config carries relying party parameters.
type Config struct {
	RPID             string
	RPName           string
	Origins          []string
	ChallengeTTL     time.Duration
	Timeout          time.Duration
	UserVerification string
}

const (
	defaultChallengeTTL = 5 * time.Minute
	UVRequired          = "required"
	UVPreferred         = "preferred"
)

type Service struct {
	challenges  ChallengeStore
	credentials CredentialStore
	subjects    SubjectDirectory
	verifier    *verify.Verifier
	cfg         Config
	auditor     audit.Emitter
	metrics     *metrics.Metrics
	tracer      tracer.Tracer
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
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

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(challenges ChallengeStore, credentials CredentialStore, subjects SubjectDirectory, cfg Config, opts ...Option) (*Service, error) {
	if challenges == nil || credentials == nil || subjects == nil {
		return nil, errors.New("challenge store, credential store and subject directory are required")
	}
	if cfg.RPID == "" || len(cfg.Origins) == 0 {
		return nil, errors.New("relying party id and at least one origin are required")
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = defaultChallengeTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.ChallengeTTL
	}
	if cfg.UserVerification == "" {
		cfg.UserVerification = UVPreferred
	}
	verifier, err := verify.New(verify.Config{
		RPID:             cfg.RPID,
		RPName:           cfg.RPName,
		Origins:          cfg.Origins,
		UserVerification: cfg.UserVerification,
		Timeout:          cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	svc := &Service{
		challenges:  challenges,
		credentials: credentials,
		subjects:    subjects,
		verifier:    verifier,
		cfg:         cfg,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.tracer == nil {
		svc.tracer = tracer.NewNoop()
	}
	return svc, nil
}

// issueChallenge persists the session behind a ceremony start and builds the
// options common to both ceremonies. publicKey is the browser-shaped request.
func (s *Service) issueChallenge(ctx context.Context, purpose models.Purpose, subjectID id.SubjectID, label string, session *webauthn.SessionData, publicKey any) (*models.CeremonyOptions, error) {
	now := requestcontext.Now(ctx)
	c := &models.Challenge{
		Value:     session.Challenge,
		Purpose:   purpose,
		SubjectID: subjectID,
		Label:     label,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.ChallengeTTL),
		Session:   session,
	}
	if err := s.challenges.Save(ctx, c); err != nil {
		s.logger.ErrorContext(ctx, "failed to save challenge", "purpose", purpose, "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to save challenge")
	}
	s.metrics.IncStarted(string(purpose))
	return &models.CeremonyOptions{
		Challenge:        c.Value,
		RelyingParty:     models.RelyingParty{ID: s.cfg.RPID, Name: s.cfg.RPName},
		UserVerification: s.cfg.UserVerification,
		TimeoutMs:        s.cfg.Timeout.Milliseconds(),
		ExpiresAt:        c.ExpiresAt,
		PublicKey:        publicKey,
	}, nil
}

func (s *Service) listCredentials(ctx context.Context, subjectID id.SubjectID) ([]*models.Credential, error) {
	creds, err := s.credentials.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to list credentials")
	}
	return creds, nil
}

func credentialIDs(creds []*models.Credential) []id.CredentialID {
	ids := make([]id.CredentialID, 0, len(creds))
	for _, c := range creds {
		ids = append(ids, c.ID)
	}
	return ids
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

// outcome labels a finish result for metrics.
func outcome(err error) string {
	if err == nil {
		return "verified"
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		if de.Reason != "" {
			return string(de.Reason)
		}
		return string(de.Code)
	}
	return string(dErrors.CodeInternal)
}
