// Package service is the identity provider: it knows subjects and their roles,
// and mints, refreshes, validates and revokes token pairs.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"warden/internal/identity/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/middleware/auth"
	"warden/pkg/platform/sentinel"
)

// SubjectStore is the subject directory.
// Error Contract: Find methods and RoleOf return sentinel.ErrNotFound for unknown subjects.
type SubjectStore interface {
	Save(ctx context.Context, subject *models.Subject) error
	FindByID(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error)
	FindByEmail(ctx context.Context, email string) (*models.Subject, error)
	RoleOf(ctx context.Context, subjectID id.SubjectID) (models.Role, error)
}

type RevocationList interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type TokenIssuer interface {
	IssuePair(ctx context.Context, req models.IssueRequest) (*models.TokenPair, error)
	Validate(token string, use models.TokenUse) (*models.Claims, error)
}

type Service struct {
	subjects    SubjectStore
	revocations RevocationList
	tokens      TokenIssuer
	auditor     audit.Emitter
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

func New(subjects SubjectStore, revocations RevocationList, tokens TokenIssuer, opts ...Option) *Service {
	svc := &Service{subjects: subjects, revocations: revocations, tokens: tokens}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// IssuePair mints a token pair for the requested identity.
func (s *Service) IssuePair(ctx context.Context, req models.IssueRequest) (*models.TokenPair, error) {
	if req.SubjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "subject is required")
	}
	pair, err := s.tokens.IssuePair(ctx, req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue tokens")
	}
	return pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new pair
// carrying the same subject and session is issued. Impersonated pairs are bound
// to the broker's held context and are never rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	claims, err := s.tokens.Validate(refreshToken, models.TokenUseRefresh)
	if err != nil {
		return nil, err
	}
	if claims.IsImpersonated() {
		s.logger.WarnContext(ctx, "refresh refused for impersonated token",
			"subject_id", claims.SubjectID, "actor_id", claims.ActorID)
		return nil, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonTokenInvalid, "impersonated tokens cannot be refreshed")
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.JTI)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to check revocation")
	}
	if revoked {
		return nil, dErrors.NewReason(dErrors.CodeUnauthorized, dErrors.ReasonTokenInvalid, "token revoked")
	}
	if err := s.revocations.Revoke(ctx, claims.JTI, claims.ExpiresAt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to rotate refresh token")
	}

	pair, err := s.tokens.IssuePair(ctx, models.IssueRequest{
		SubjectID: claims.SubjectID,
		SessionID: claims.SessionID,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue tokens")
	}
	s.emit(ctx, audit.Event{SubjectID: claims.SubjectID, Action: audit.EventTokenRefreshed})
	return pair, nil
}

// RevokeToken revokes a presented access or refresh token. Tokens that no
// longer validate are already unusable and are accepted silently.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token, models.TokenUseRefresh)
	if err != nil {
		claims, err = s.tokens.Validate(token, models.TokenUseAccess)
	}
	if err != nil {
		return nil
	}
	return s.RevokeTokenID(ctx, claims.JTI, claims.ExpiresAt)
}

// RevokeTokenID revokes a token by its JTI until its natural expiry.
func (s *Service) RevokeTokenID(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	if err := s.revocations.Revoke(ctx, jti, expiresAt); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to revoke token")
	}
	return nil
}

// RevokePair revokes both halves of an issued pair.
func (s *Service) RevokePair(ctx context.Context, pair *models.TokenPair) error {
	if pair == nil {
		return nil
	}
	return errors.Join(
		s.RevokeTokenID(ctx, pair.AccessTokenID, pair.AccessExpiresAt),
		s.RevokeTokenID(ctx, pair.RefreshTokenID, pair.RefreshExpiresAt),
	)
}

func (s *Service) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return s.revocations.IsRevoked(ctx, jti)
}

// ValidateAccessToken adapts token validation to the auth middleware.
func (s *Service) ValidateAccessToken(token string) (*auth.Claims, error) {
	claims, err := s.tokens.Validate(token, models.TokenUseAccess)
	if err != nil {
		return nil, err
	}
	out := &auth.Claims{SubjectID: claims.SubjectID.String(), JTI: claims.JTI}
	if !claims.SessionID.IsNil() {
		out.SessionID = claims.SessionID.String()
	}
	if claims.IsImpersonated() {
		out.ActorID = claims.ActorID.String()
	}
	return out, nil
}

// ValidateAccess returns the full claims of an access token.
func (s *Service) ValidateAccess(token string) (*models.Claims, error) {
	return s.tokens.Validate(token, models.TokenUseAccess)
}

// Subject looks a subject up by ID.
func (s *Service) Subject(ctx context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		return nil, s.subjectError(err)
	}
	return subject, nil
}

// RoleOf returns a subject's role.
func (s *Service) RoleOf(ctx context.Context, subjectID id.SubjectID) (models.Role, error) {
	role, err := s.subjects.RoleOf(ctx, subjectID)
	if err != nil {
		return "", s.subjectError(err)
	}
	return role, nil
}

// EnsureSubject creates the subject if its email is unknown and returns the stored record.
func (s *Service) EnsureSubject(ctx context.Context, email, displayName string, role models.Role, now time.Time) (*models.Subject, error) {
	existing, err := s.subjects.FindByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up subject")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid role")
	}
	subject := &models.Subject{
		ID:          id.NewSubjectID(),
		Email:       email,
		DisplayName: displayName,
		Role:        role,
		CreatedAt:   now,
	}
	if err := s.subjects.Save(ctx, subject); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save subject")
	}
	return subject, nil
}

func (s *Service) subjectError(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.NewReason(dErrors.CodeNotFound, dErrors.ReasonSubjectNotFound, "subject not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read subject")
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
