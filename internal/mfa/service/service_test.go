package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	alertModels "warden/internal/alert/models"
	alertService "warden/internal/alert/service"
	alertStore "warden/internal/alert/store"
	"warden/internal/mfa/metrics"
	"warden/internal/mfa/store"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/audit/publisher"
	auditmemory "warden/pkg/platform/audit/store/memory"
	"warden/pkg/requestcontext"
)

type MFASuite struct {
	suite.Suite
	now     time.Time
	subject id.SubjectID
	store   *store.InMemoryStore
	alerts  *alertService.Service
	events  *auditmemory.Store
	metrics *metrics.Metrics
	service *Service
}

func TestMFASuite(t *testing.T) {
	suite.Run(t, new(MFASuite))
}

func (s *MFASuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC)
	s.subject = id.NewSubjectID()
	s.store = store.NewInMemoryStore()
	s.events = auditmemory.New()
	s.metrics = metrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	alerts, err := alertService.New(alertStore.NewInMemoryStore(), alertService.WithLogger(logger))
	s.Require().NoError(err)
	s.alerts = alerts

	svc, err := New(s.store,
		WithLogger(logger),
		WithIssuer("Warden Test"),
		WithRecoveryCodeCount(3),
		WithBcryptCost(bcrypt.MinCost),
		WithAlerts(alerts),
		WithAuditor(publisher.New(s.events)),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *MFASuite) TearDownTest() {
	s.alerts.Close()
}

func (s *MFASuite) at(d time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.now.Add(d))
}

func (s *MFASuite) code(secret string, d time.Duration) string {
	code, err := totp.GenerateCodeCustom(secret, s.now.Add(d), totp.ValidateOpts{
		Period:    period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	s.Require().NoError(err)
	return code
}

// enroll runs enrollment and confirmation and returns the secret and codes.
func (s *MFASuite) enroll() (string, []string) {
	setup, err := s.service.Enroll(s.at(0), s.subject, "alice@example.com")
	s.Require().NoError(err)
	codes, err := s.service.Confirm(s.at(0), s.subject, s.code(setup.Secret, 0))
	s.Require().NoError(err)
	return setup.Secret, codes
}

func (s *MFASuite) TestEnroll() {
	setup, err := s.service.Enroll(s.at(0), s.subject, "alice@example.com")
	s.Require().NoError(err)
	s.NotEmpty(setup.Secret)
	s.True(strings.HasPrefix(setup.URL, "otpauth://totp/"))
	s.Contains(setup.URL, "issuer=Warden")

	s.Run("given a pending enrollment then verification is refused", func() {
		err := s.service.Verify(s.at(0), s.subject, s.code(setup.Secret, 0))
		s.True(dErrors.HasReason(err, dErrors.ReasonNotEnrolled))
	})

	s.Run("given a wrong code then confirmation fails", func() {
		_, err := s.service.Confirm(s.at(0), s.subject, "000000")
		s.True(dErrors.HasReason(err, dErrors.ReasonCodeInvalid))
	})

	s.Run("given a valid code then recovery codes are issued once", func() {
		codes, err := s.service.Confirm(s.at(0), s.subject, s.code(setup.Secret, 0))
		s.Require().NoError(err)
		s.Len(codes, 3)
		s.Regexp(`^[2-9A-Z]{5}-[2-9A-Z]{5}$`, codes[0])

		status, err := s.service.Status(s.at(0), s.subject)
		s.Require().NoError(err)
		s.True(status.Confirmed)
		s.Equal(3, status.RecoveryCodesRemaining)
		s.Equal(audit.EventMFAEnrolled, s.events.All()[0].Action)
	})

	s.Run("given a confirmed enrollment then enrolling again conflicts", func() {
		_, err := s.service.Enroll(s.at(0), s.subject, "alice@example.com")
		s.True(dErrors.HasReason(err, dErrors.ReasonAlreadyEnrolled))
	})
}

func (s *MFASuite) TestVerify_RejectsReplayedStep() {
	secret, _ := s.enroll()

	s.Run("the confirming code cannot be reused", func() {
		err := s.service.Verify(s.at(0), s.subject, s.code(secret, 0))
		s.True(dErrors.HasReason(err, dErrors.ReasonCodeInvalid))
		s.Equal(1.0, promtest.ToFloat64(s.metrics.Verifications.WithLabelValues("totp", "replay")))
	})

	s.Run("the next step is accepted once", func() {
		next := s.code(secret, period*time.Second)
		s.NoError(s.service.Verify(s.at(period*time.Second), s.subject, next))
		s.Error(s.service.Verify(s.at(period*time.Second), s.subject, next))
	})

	s.Run("a code from an earlier step is refused even inside the skew", func() {
		err := s.service.Verify(s.at(period*time.Second), s.subject, s.code(secret, 0))
		s.True(dErrors.HasReason(err, dErrors.ReasonCodeInvalid))
	})

	s.Run("a code beyond the skew is refused", func() {
		err := s.service.Verify(s.at(10*period*time.Second), s.subject, s.code(secret, 5*period*time.Second))
		s.True(dErrors.HasCode(err, dErrors.CodeVerificationFailed))
	})
}

func (s *MFASuite) TestUseRecoveryCode() {
	_, codes := s.enroll()

	s.Run("a valid code is accepted regardless of case and dash", func() {
		input := strings.ToLower(strings.ReplaceAll(codes[0], "-", ""))
		s.Require().NoError(s.service.UseRecoveryCode(s.at(0), s.subject, input))
	})

	s.Run("a spent code is refused", func() {
		err := s.service.UseRecoveryCode(s.at(0), s.subject, codes[0])
		s.True(dErrors.HasReason(err, dErrors.ReasonCodeInvalid))
	})

	s.Run("use raises a recovery_code_used alert", func() {
		open, err := s.alerts.ListUnresolved(s.at(0), s.subject)
		s.Require().NoError(err)
		s.Require().Len(open, 1)
		s.Equal(alertModels.TypeRecoveryCodeUsed, open[0].Type)
		s.Equal("2", open[0].Metadata["remaining"])
	})

	s.Run("regenerating invalidates the remaining codes", func() {
		fresh, err := s.service.RegenerateRecoveryCodes(s.at(0), s.subject)
		s.Require().NoError(err)
		s.Len(fresh, 3)
		s.Error(s.service.UseRecoveryCode(s.at(0), s.subject, codes[1]))
		s.NoError(s.service.UseRecoveryCode(s.at(0), s.subject, fresh[0]))
	})
}

func (s *MFASuite) TestDisable() {
	s.enroll()

	s.Require().NoError(s.service.Disable(s.at(0), s.subject))

	status, err := s.service.Status(s.at(0), s.subject)
	s.Require().NoError(err)
	s.False(status.Enrolled)
	_, err = s.service.RegenerateRecoveryCodes(s.at(0), s.subject)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
