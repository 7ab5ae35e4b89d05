// Package service implements TOTP second factor and single-use recovery codes.
package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	alert "warden/internal/alert/models"
	"warden/internal/mfa/metrics"
	"warden/internal/mfa/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
	"warden/pkg/secrets"
)

const (
	period             = 30
	skew               = 1
	defaultIssuer      = "Warden"
	defaultCodeCount   = 10
	recoveryCodeGroups = 2
	recoveryGroupLen   = 5
	// Alphabet without 0/O and 1/I/L.
	recoveryAlphabet   = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
)

// Store persists enrollments and recovery codes.
// Error Contract: sentinel.ErrNotFound for unknown subjects or codes,
// sentinel.ErrConflict from SavePending over a confirmed enrollment.
type Store interface {
	SavePending(ctx context.Context, e *models.Enrollment) error
	FindEnrollment(ctx context.Context, subjectID id.SubjectID) (*models.Enrollment, error)
	ConsumeStep(ctx context.Context, subjectID id.SubjectID, step int64, confirm bool) (bool, error)
	DeleteEnrollment(ctx context.Context, subjectID id.SubjectID) error
	ReplaceRecoveryCodes(ctx context.Context, subjectID id.SubjectID, codes []*models.RecoveryCode) error
	ListUnusedRecoveryCodes(ctx context.Context, subjectID id.SubjectID) ([]*models.RecoveryCode, error)
	MarkRecoveryCodeUsed(ctx context.Context, codeID uuid.UUID, at time.Time) (bool, error)
}

// AlertRaiser records that a recovery code was spent.
type AlertRaiser interface {
	Raise(ctx context.Context, subjectID id.SubjectID, alertType alert.Type, metadata map[string]string) (*alert.Alert, error)
}

type Service struct {
	store      Store
	alerts     AlertRaiser
	issuer     string
	codeCount  int
	bcryptCost int
	logger     *slog.Logger
	auditor    audit.Emitter
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

func WithRecoveryCodeCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.codeCount = n
		}
	}
}

// WithBcryptCost overrides the recovery code hash cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

func WithAlerts(alerts AlertRaiser) Option {
	return func(s *Service) {
		s.alerts = alerts
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

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("mfa store is required")
	}
	s := &Service{
		store:      store,
		issuer:     defaultIssuer,
		codeCount:  defaultCodeCount,
		bcryptCost: bcrypt.DefaultCost,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Enroll generates a fresh secret. It stays inactive until Confirm succeeds.
func (s *Service) Enroll(ctx context.Context, subjectID id.SubjectID, accountName string) (*models.Setup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Period:      period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate totp secret")
	}
	err = s.store.SavePending(ctx, &models.Enrollment{
		SubjectID: subjectID,
		Secret:    key.Secret(),
		CreatedAt: requestcontext.Now(ctx),
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.NewReason(dErrors.CodeStateConflict, dErrors.ReasonAlreadyEnrolled, "second factor already enrolled")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to save enrollment")
	}
	return &models.Setup{Secret: key.Secret(), URL: key.URL()}, nil
}

// Confirm activates a pending enrollment with a first valid code and returns
// the plaintext recovery codes. They are not retrievable later.
func (s *Service) Confirm(ctx context.Context, subjectID id.SubjectID, code string) ([]string, error) {
	e, err := s.enrollment(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if e.Confirmed {
		return nil, dErrors.NewReason(dErrors.CodeStateConflict, dErrors.ReasonAlreadyEnrolled, "second factor already enrolled")
	}
	if err := s.consume(ctx, e, code, true); err != nil {
		return nil, err
	}

	codes, err := s.issueRecoveryCodes(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "mfa_enrolled", "subject_id", subjectID)
	s.emit(ctx, audit.Event{
		SubjectID: subjectID,
		Action:    audit.EventMFAEnrolled,
		Decision:  "granted",
	})
	return codes, nil
}

// Verify accepts a code for a confirmed enrollment. A code whose time step
// was already accepted is rejected.
func (s *Service) Verify(ctx context.Context, subjectID id.SubjectID, code string) error {
	e, err := s.enrollment(ctx, subjectID)
	if err != nil {
		return err
	}
	if !e.Confirmed {
		return notEnrolled()
	}
	return s.consume(ctx, e, code, false)
}

func (s *Service) consume(ctx context.Context, e *models.Enrollment, code string, confirm bool) error {
	step, ok := matchStep(e.Secret, strings.TrimSpace(code), requestcontext.Now(ctx))
	if !ok {
		s.metrics.IncVerification("totp", "invalid")
		return invalidCode()
	}
	fresh, err := s.store.ConsumeStep(ctx, e.SubjectID, step, confirm)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to record totp use")
	}
	if !fresh {
		s.metrics.IncVerification("totp", "replay")
		s.logger.WarnContext(ctx, "totp_replay_rejected", "subject_id", e.SubjectID)
		return invalidCode()
	}
	s.metrics.IncVerification("totp", "ok")
	return nil
}

// matchStep returns the time step within the skew whose code equals code.
func matchStep(secret, code string, now time.Time) (int64, bool) {
	if len(code) != otp.DigitsSix.Length() {
		return 0, false
	}
	current := now.Unix() / period
	opts := totp.ValidateOpts{Period: period, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1}
	for delta := int64(-skew); delta <= skew; delta++ {
		step := current + delta
		want, err := totp.GenerateCodeCustom(secret, time.Unix(step*period, 0).UTC(), opts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}

// UseRecoveryCode spends one recovery code and raises a recovery_code_used
// alert for the subject.
func (s *Service) UseRecoveryCode(ctx context.Context, subjectID id.SubjectID, code string) error {
	normalized := normalizeRecoveryCode(code)
	codes, err := s.store.ListUnusedRecoveryCodes(ctx, subjectID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to load recovery codes")
	}
	for _, c := range codes {
		if !secrets.Matches(normalized, c.CodeHash) {
			continue
		}
		used, err := s.store.MarkRecoveryCodeUsed(ctx, c.ID, requestcontext.Now(ctx))
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to spend recovery code")
		}
		if !used {
			break
		}
		s.recoveryCodeUsed(ctx, subjectID, len(codes)-1)
		return nil
	}
	s.metrics.IncVerification("recovery", "invalid")
	return invalidCode()
}

func (s *Service) recoveryCodeUsed(ctx context.Context, subjectID id.SubjectID, remaining int) {
	s.metrics.IncVerification("recovery", "ok")
	metadata := map[string]string{"remaining": strconv.Itoa(remaining)}
	s.logger.WarnContext(ctx, "recovery_code_used", "subject_id", subjectID, "remaining", remaining)
	s.emit(ctx, audit.Event{
		SubjectID: subjectID,
		Action:    audit.EventRecoveryCodeUsed,
		Decision:  "granted",
		Metadata:  metadata,
	})
	if s.alerts == nil {
		return
	}
	if _, err := s.alerts.Raise(ctx, subjectID, alert.TypeRecoveryCodeUsed, metadata); err != nil {
		s.logger.ErrorContext(ctx, "failed to raise recovery code alert", "subject_id", subjectID, "error", err)
	}
}

// RegenerateRecoveryCodes replaces every recovery code of a confirmed enrollment.
func (s *Service) RegenerateRecoveryCodes(ctx context.Context, subjectID id.SubjectID) ([]string, error) {
	e, err := s.enrollment(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if !e.Confirmed {
		return nil, notEnrolled()
	}
	return s.issueRecoveryCodes(ctx, subjectID)
}

func (s *Service) Status(ctx context.Context, subjectID id.SubjectID) (*models.Status, error) {
	e, err := s.store.FindEnrollment(ctx, subjectID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.Status{}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to load enrollment")
	}
	codes, err := s.store.ListUnusedRecoveryCodes(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to load recovery codes")
	}
	return &models.Status{Enrolled: true, Confirmed: e.Confirmed, RecoveryCodesRemaining: len(codes)}, nil
}

// Disable removes the enrollment and all recovery codes.
func (s *Service) Disable(ctx context.Context, subjectID id.SubjectID) error {
	if err := s.store.DeleteEnrollment(ctx, subjectID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to remove enrollment")
	}
	s.logger.InfoContext(ctx, "mfa_disabled", "subject_id", subjectID)
	return nil
}

func (s *Service) issueRecoveryCodes(ctx context.Context, subjectID id.SubjectID) ([]string, error) {
	now := requestcontext.Now(ctx)
	plain := make([]string, 0, s.codeCount)
	stored := make([]*models.RecoveryCode, 0, s.codeCount)
	for range s.codeCount {
		code := generateRecoveryCode()
		hash, err := secrets.Hash(normalizeRecoveryCode(code), s.bcryptCost)
		if err != nil {
			return nil, err
		}
		plain = append(plain, code)
		stored = append(stored, &models.RecoveryCode{
			ID:        uuid.New(),
			SubjectID: subjectID,
			CodeHash:  hash,
			CreatedAt: now,
		})
	}
	if err := s.store.ReplaceRecoveryCodes(ctx, subjectID, stored); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to store recovery codes")
	}
	return plain, nil
}

// generateRecoveryCode returns a code like "K7M2Q-9XHTR".
func generateRecoveryCode() string {
	groups := make([]string, recoveryCodeGroups)
	for i := range groups {
		groups[i] = randomString(recoveryGroupLen)
	}
	return strings.Join(groups, "-")
}

// randomString draws uniformly from recoveryAlphabet by rejecting bytes
// past the largest multiple of its length.
func randomString(n int) string {
	limit := byte(256 / len(recoveryAlphabet) * len(recoveryAlphabet))
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		_, _ = rand.Read(buf)
		for _, b := range buf {
			if b < limit && len(out) < n {
				out = append(out, recoveryAlphabet[int(b)%len(recoveryAlphabet)])
			}
		}
	}
	return string(out)
}

func normalizeRecoveryCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.ReplaceAll(code, "-", "")
}

func (s *Service) enrollment(ctx context.Context, subjectID id.SubjectID) (*models.Enrollment, error) {
	e, err := s.store.FindEnrollment(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notEnrolled()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to load enrollment")
	}
	return e, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}

func notEnrolled() error {
	return dErrors.NewReason(dErrors.CodeNotFound, dErrors.ReasonNotEnrolled, "second factor not enrolled")
}

func invalidCode() error {
	return dErrors.NewReason(dErrors.CodeVerificationFailed, dErrors.ReasonCodeInvalid, "invalid code")
}
