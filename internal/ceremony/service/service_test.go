package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"warden/internal/ceremony/metrics"
	"warden/internal/ceremony/models"
	"warden/internal/ceremony/softkey"
	challengeStore "warden/internal/ceremony/store/challenge"
	credentialStore "warden/internal/ceremony/store/credential"
	"warden/internal/ceremony/verify"
	identity "warden/internal/identity/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/audit/publisher"
	auditmemory "warden/pkg/platform/audit/store/memory"
	"warden/pkg/platform/sentinel"
	"warden/pkg/requestcontext"
)

const (
	testRPID   = "warden.example"
	testOrigin = "https://warden.example"
)

type directory map[id.SubjectID]*identity.Subject

func (d directory) Subject(_ context.Context, subjectID id.SubjectID) (*identity.Subject, error) {
	if s, ok := d[subjectID]; ok {
		return s, nil
	}
	return nil, dErrors.NewReason(dErrors.CodeNotFound, dErrors.ReasonSubjectNotFound, "subject not found")
}

type CeremonySuite struct {
	suite.Suite
	ctx         context.Context
	challenges  *challengeStore.InMemoryStore
	credentials *credentialStore.InMemoryStore
	events      *auditmemory.Store
	metrics     *metrics.Metrics
	svc         *Service
	alice       id.SubjectID
	bob         id.SubjectID
}

func TestCeremonySuite(t *testing.T) {
	suite.Run(t, new(CeremonySuite))
}

func (s *CeremonySuite) SetupTest() {
	s.ctx = context.Background()
	s.challenges = challengeStore.NewInMemoryStore()
	s.credentials = credentialStore.NewInMemoryStore()
	s.events = auditmemory.New()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.alice = id.NewSubjectID()
	s.bob = id.NewSubjectID()
	dir := directory{
		s.alice: {ID: s.alice, Email: "alice@example.com", DisplayName: "Alice"},
		s.bob:   {ID: s.bob, Email: "bob@example.com", DisplayName: "Bob"},
	}
	svc, err := New(s.challenges, s.credentials, dir, Config{
		RPID:    testRPID,
		RPName:  "Warden",
		Origins: []string{testOrigin},
	},
		WithAuditor(publisher.New(s.events)),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *CeremonySuite) newKey(alg models.Algorithm) *softkey.Authenticator {
	key, err := softkey.New(alg, testRPID, testOrigin)
	s.Require().NoError(err)
	return key
}

// register enrolls key for subject through the full ceremony.
func (s *CeremonySuite) register(subject id.SubjectID, key *softkey.Authenticator) {
	opts, err := s.svc.StartRegistration(s.ctx, subject, "laptop")
	s.Require().NoError(err)
	att, err := key.Attest(opts.Challenge)
	s.Require().NoError(err)
	credID, err := s.svc.FinishRegistration(s.ctx, subject, att, opts.Challenge)
	s.Require().NoError(err)
	s.Require().Equal(key.ID, credID)
}

func (s *CeremonySuite) TestRegistration() {
	s.Run("Given a subject When registration starts Then options carry challenge rp and algorithms", func() {
		opts, err := s.svc.StartRegistration(s.ctx, s.alice, "  YubiKey  ")
		s.Require().NoError(err)
		s.GreaterOrEqual(len(opts.Challenge), 43, "at least 32 random bytes")
		s.Equal(testRPID, opts.RelyingParty.ID)
		s.Equal("alice@example.com", opts.Subject.Name)
		s.Equal(models.SupportedAlgorithms, opts.Algorithms)
		s.Equal(5*time.Minute, time.Duration(opts.TimeoutMs)*time.Millisecond)

		creation, ok := opts.PublicKey.(*protocol.PublicKeyCredentialCreationOptions)
		s.Require().True(ok)
		s.Equal(opts.Challenge, creation.Challenge.String())
		s.Equal(verify.CredentialParameters(), creation.Parameters)
		s.Equal(protocol.URLEncodedBase64(verify.UserHandle(s.alice)), creation.User.ID)
	})

	s.Run("Given an unknown subject When registration starts Then SubjectNotFound", func() {
		_, err := s.svc.StartRegistration(s.ctx, id.NewSubjectID(), "key")
		s.True(dErrors.HasReason(err, dErrors.ReasonSubjectNotFound))
	})

	s.Run("Given a valid attestation When finished Then the credential is stored with the label", func() {
		key := s.newKey(models.AlgES256)
		opts, err := s.svc.StartRegistration(s.ctx, s.alice, "  YubiKey  ")
		s.Require().NoError(err)
		att, err := key.Attest(opts.Challenge)
		s.Require().NoError(err)

		credID, err := s.svc.FinishRegistration(s.ctx, s.alice, att, opts.Challenge)
		s.Require().NoError(err)

		stored, err := s.credentials.FindByID(s.ctx, credID)
		s.Require().NoError(err)
		s.Equal("YubiKey", stored.DisplayName)
		s.Equal(s.alice, stored.SubjectID)
		s.Equal(models.AlgES256, stored.Algorithm)
		s.False(stored.BackupEligible)

		s.Run("and the challenge cannot be replayed", func() {
			_, err := s.svc.FinishRegistration(s.ctx, s.alice, att, opts.Challenge)
			s.ErrorIs(err, dErrors.ErrChallengeNotFound)
		})

		s.Run("and the next start excludes the credential", func() {
			next, err := s.svc.StartRegistration(s.ctx, s.alice, "other")
			s.Require().NoError(err)
			s.Contains(next.ExcludeCredentials, credID)
		})
	})

	s.Run("Given the same authenticator twice When finished Then the second is rejected", func() {
		key := s.newKey(models.AlgEdDSA)
		s.register(s.alice, key)

		opts, err := s.svc.StartRegistration(s.ctx, s.alice, "again")
		s.Require().NoError(err)
		att, err := key.Attest(opts.Challenge)
		s.Require().NoError(err)
		_, err = s.svc.FinishRegistration(s.ctx, s.alice, att, opts.Challenge)
		s.True(dErrors.HasReason(err, dErrors.ReasonCredentialExists))

		creds, err := s.svc.ListCredentials(s.ctx, s.alice)
		s.Require().NoError(err)
		count := 0
		for _, c := range creds {
			if c.ID == key.ID {
				count++
			}
		}
		s.Equal(1, count)
	})

	s.Run("Given a challenge issued to another subject When finished Then ChallengeNotFound and the challenge survives", func() {
		key := s.newKey(models.AlgES256)
		opts, err := s.svc.StartRegistration(s.ctx, s.alice, "key")
		s.Require().NoError(err)
		att, err := key.Attest(opts.Challenge)
		s.Require().NoError(err)

		_, err = s.svc.FinishRegistration(s.ctx, s.bob, att, opts.Challenge)
		s.ErrorIs(err, dErrors.ErrChallengeNotFound)

		_, err = s.svc.FinishRegistration(s.ctx, s.alice, att, opts.Challenge)
		s.NoError(err)
	})

	s.Run("Given a forged attestation When finished Then AttestationInvalid and nothing is stored", func() {
		key := s.newKey(models.AlgES256)
		opts, err := s.svc.StartRegistration(s.ctx, s.alice, "key")
		s.Require().NoError(err)
		att, err := key.Attest("some-other-challenge")
		s.Require().NoError(err)

		_, err = s.svc.FinishRegistration(s.ctx, s.alice, att, opts.Challenge)
		s.ErrorIs(err, dErrors.ErrAttestationInvalid)
		_, err = s.credentials.FindByID(s.ctx, key.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *CeremonySuite) TestRegistrationRejections() {
	tests := []struct {
		name   string
		mutate func(key *softkey.Authenticator, att *models.AttestationResponse)
		attest bool
	}{
		{
			name: "Given a response naming another credential id When finished Then AttestationInvalid",
			mutate: func(_ *softkey.Authenticator, att *models.AttestationResponse) {
				att.CredentialID = s.newKey(models.AlgES256).ID
			},
		},
		{
			name:   "Given client data collected cross-origin When finished Then AttestationInvalid",
			mutate: func(key *softkey.Authenticator, _ *models.AttestationResponse) { key.CrossOrigin = true },
			attest: true,
		},
		{
			name:   "Given an authenticator for another relying party When finished Then AttestationInvalid",
			mutate: func(key *softkey.Authenticator, _ *models.AttestationResponse) { key.RPID = "evil.example" },
			attest: true,
		},
		{
			name: "Given a truncated attestation object When finished Then AttestationInvalid",
			mutate: func(_ *softkey.Authenticator, att *models.AttestationResponse) {
				att.AttestationObject = att.AttestationObject[:len(att.AttestationObject)/2]
			},
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			key := s.newKey(models.AlgES256)
			opts, err := s.svc.StartRegistration(s.ctx, s.alice, "key")
			s.Require().NoError(err)
			att, err := key.Attest(opts.Challenge)
			s.Require().NoError(err)
			tt.mutate(key, att)
			if tt.attest {
				att, err = key.Attest(opts.Challenge)
				s.Require().NoError(err)
			}

			_, err = s.svc.FinishRegistration(s.ctx, s.alice, att, opts.Challenge)
			s.ErrorIs(err, dErrors.ErrAttestationInvalid)
			_, err = s.credentials.FindByID(s.ctx, key.ID)
			s.ErrorIs(err, sentinel.ErrNotFound)
		})
	}
}

func (s *CeremonySuite) TestBackupEligibility() {
	key := s.newKey(models.AlgEdDSA)
	key.Flags |= protocol.FlagBackupEligible
	s.register(s.alice, key)

	stored, err := s.credentials.FindByID(s.ctx, key.ID)
	s.Require().NoError(err)
	s.True(stored.BackupEligible)

	s.Run("Given a synced credential When it later claims to be device-bound Then AttestationInvalid", func() {
		opts, err := s.svc.StartAuthentication(s.ctx, s.alice)
		s.Require().NoError(err)
		key.Flags &^= protocol.FlagBackupEligible
		as, err := key.Assert(opts.Challenge)
		s.Require().NoError(err)
		_, err = s.svc.FinishAuthentication(s.ctx, as, opts.Challenge, s.alice)
		s.ErrorIs(err, dErrors.ErrAttestationInvalid)
	})
}

func (s *CeremonySuite) TestUserVerificationRequired() {
	svc, err := New(s.challenges, s.credentials, directory{s.alice: {ID: s.alice, Email: "alice@example.com"}}, Config{
		RPID:             testRPID,
		Origins:          []string{testOrigin},
		UserVerification: UVRequired,
	}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	s.Run("Given an authenticator without user verification When registering Then AttestationInvalid", func() {
		key := s.newKey(models.AlgEdDSA)
		key.Flags = protocol.FlagUserPresent
		opts, err := svc.StartRegistration(s.ctx, s.alice, "key")
		s.Require().NoError(err)
		att, err := key.Attest(opts.Challenge)
		s.Require().NoError(err)

		_, err = svc.FinishRegistration(s.ctx, s.alice, att, opts.Challenge)
		s.ErrorIs(err, dErrors.ErrAttestationInvalid)
	})

	s.Run("Given an unknown user verification setting When constructing Then it is refused", func() {
		_, err := New(s.challenges, s.credentials, directory{}, Config{
			RPID:             testRPID,
			Origins:          []string{testOrigin},
			UserVerification: "sometimes",
		})
		s.Error(err)
	})
}

func (s *CeremonySuite) TestChallengeExpiry() {
	key := s.newKey(models.AlgES256)
	past := time.Now().Add(-5*time.Minute - time.Second)
	opts, err := s.svc.StartRegistration(requestcontext.WithTime(s.ctx, past), s.alice, "key")
	s.Require().NoError(err)
	att, err := key.Attest(opts.Challenge)
	s.Require().NoError(err)

	_, err = s.svc.FinishRegistration(s.ctx, s.alice, att, opts.Challenge)
	s.ErrorIs(err, dErrors.ErrChallengeNotFound)
}

func (s *CeremonySuite) TestAuthentication() {
	key := s.newKey(models.AlgES256)
	s.register(s.alice, key)

	s.Run("Given a registered key When authenticating Then the owner is returned and last_used_at is set", func() {
		opts, err := s.svc.StartAuthentication(s.ctx, s.alice)
		s.Require().NoError(err)
		s.Contains(opts.AllowCredentials, key.ID)

		as, err := key.Assert(opts.Challenge)
		s.Require().NoError(err)
		owner, err := s.svc.FinishAuthentication(s.ctx, as, opts.Challenge, s.alice)
		s.Require().NoError(err)
		s.Equal(s.alice, owner)

		stored, err := s.credentials.FindByID(s.ctx, key.ID)
		s.Require().NoError(err)
		s.NotNil(stored.LastUsedAt)
		s.Equal(key.SignCount, stored.SignCount)

		s.Run("and a second finish with the same challenge fails", func() {
			again, err := key.Assert(opts.Challenge)
			s.Require().NoError(err)
			_, err = s.svc.FinishAuthentication(s.ctx, again, opts.Challenge, s.alice)
			s.ErrorIs(err, dErrors.ErrChallengeNotFound)
		})
	})

	s.Run("Given a discoverable flow When no subject is supplied Then the owner is resolved from the credential", func() {
		opts, err := s.svc.StartAuthentication(s.ctx, id.SubjectID{})
		s.Require().NoError(err)
		s.Empty(opts.AllowCredentials)
		as, err := key.Assert(opts.Challenge)
		s.Require().NoError(err)
		owner, err := s.svc.FinishAuthentication(s.ctx, as, opts.Challenge, id.SubjectID{})
		s.Require().NoError(err)
		s.Equal(s.alice, owner)
	})

	s.Run("Given a discoverable credential When its user handle names another subject Then AttestationInvalid", func() {
		opts, err := s.svc.StartAuthentication(s.ctx, id.SubjectID{})
		s.Require().NoError(err)
		key.UserHandle = verify.UserHandle(s.bob)
		defer func() { key.UserHandle = nil }()
		as, err := key.Assert(opts.Challenge)
		s.Require().NoError(err)
		_, err = s.svc.FinishAuthentication(s.ctx, as, opts.Challenge, id.SubjectID{})
		s.ErrorIs(err, dErrors.ErrAttestationInvalid)
	})

	s.Run("Given a discoverable credential When its user handle names the owner Then the owner is returned", func() {
		opts, err := s.svc.StartAuthentication(s.ctx, id.SubjectID{})
		s.Require().NoError(err)
		key.UserHandle = verify.UserHandle(s.alice)
		defer func() { key.UserHandle = nil }()
		as, err := key.Assert(opts.Challenge)
		s.Require().NoError(err)
		owner, err := s.svc.FinishAuthentication(s.ctx, as, opts.Challenge, id.SubjectID{})
		s.Require().NoError(err)
		s.Equal(s.alice, owner)
	})

	s.Run("Given an unknown credential When finishing Then CredentialNotFound and the challenge survives", func() {
		opts, err := s.svc.StartAuthentication(s.ctx, s.alice)
		s.Require().NoError(err)
		stranger := s.newKey(models.AlgES256)
		as, err := stranger.Assert(opts.Challenge)
		s.Require().NoError(err)
		_, err = s.svc.FinishAuthentication(s.ctx, as, opts.Challenge, s.alice)
		s.ErrorIs(err, dErrors.ErrCredentialNotFound)

		as, err = key.Assert(opts.Challenge)
		s.Require().NoError(err)
		_, err = s.svc.FinishAuthentication(s.ctx, as, opts.Challenge, s.alice)
		s.NoError(err)
	})

	s.Run("Given another subject's claim When finishing Then SubjectMismatch and nothing changes", func() {
		opts, err := s.svc.StartAuthentication(s.ctx, s.alice)
		s.Require().NoError(err)
		before, err := s.credentials.FindByID(s.ctx, key.ID)
		s.Require().NoError(err)

		as, err := key.Assert(opts.Challenge)
		s.Require().NoError(err)
		_, err = s.svc.FinishAuthentication(s.ctx, as, opts.Challenge, s.bob)
		s.ErrorIs(err, dErrors.ErrSubjectMismatch)

		after, err := s.credentials.FindByID(s.ctx, key.ID)
		s.Require().NoError(err)
		s.Equal(before.SignCount, after.SignCount)
		s.Equal(before.LastUsedAt, after.LastUsedAt)

		_, err = s.svc.FinishAuthentication(s.ctx, as, opts.Challenge, s.alice)
		s.NoError(err, "challenge must still be usable by the owner")
	})

	s.Run("Given a bad signature When finishing Then AttestationInvalid and the counter is untouched", func() {
		opts, err := s.svc.StartAuthentication(s.ctx, s.alice)
		s.Require().NoError(err)
		before, err := s.credentials.FindByID(s.ctx, key.ID)
		s.Require().NoError(err)

		as, err := key.Assert(opts.Challenge)
		s.Require().NoError(err)
		as.Signature[len(as.Signature)-1] ^= 0xff
		_, err = s.svc.FinishAuthentication(s.ctx, as, opts.Challenge, s.alice)
		s.ErrorIs(err, dErrors.ErrAttestationInvalid)

		after, err := s.credentials.FindByID(s.ctx, key.ID)
		s.Require().NoError(err)
		s.Equal(before.SignCount, after.SignCount)
	})

	s.Run("Given a cloned authenticator When its counter lags Then AttestationInvalid", func() {
		opts, err := s.svc.StartAuthentication(s.ctx, s.alice)
		s.Require().NoError(err)
		key.SignCount = 0
		as, err := key.Assert(opts.Challenge)
		s.Require().NoError(err)
		_, err = s.svc.FinishAuthentication(s.ctx, as, opts.Challenge, s.alice)
		s.ErrorIs(err, dErrors.ErrAttestationInvalid)
	})

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Outcomes.WithLabelValues("authentication", "credential_not_found")))
}

func (s *CeremonySuite) TestAuditTrail() {
	key := s.newKey(models.AlgEdDSA)
	s.register(s.alice, key)
	opts, err := s.svc.StartAuthentication(s.ctx, s.alice)
	s.Require().NoError(err)
	as, err := key.Assert(opts.Challenge)
	s.Require().NoError(err)
	_, err = s.svc.FinishAuthentication(s.ctx, as, opts.Challenge, s.alice)
	s.Require().NoError(err)

	var actions []audit.AuditEvent
	for _, e := range s.events.All() {
		actions = append(actions, e.Action)
	}
	s.Equal([]audit.AuditEvent{audit.EventCredentialRegistered, audit.EventAuthenticationSucceeded}, actions)
}

func (s *CeremonySuite) TestRevokeCredential() {
	key := s.newKey(models.AlgES256)
	s.register(s.alice, key)

	s.Run("Given another subject When revoking Then CredentialNotFound", func() {
		err := s.svc.RevokeCredential(s.ctx, s.bob, key.ID)
		s.ErrorIs(err, dErrors.ErrCredentialNotFound)
	})

	s.Run("Given the owner When revoking the last credential Then it is gone and the subject remains", func() {
		s.Require().NoError(s.svc.RevokeCredential(s.ctx, s.alice, key.ID))
		creds, err := s.svc.ListCredentials(s.ctx, s.alice)
		s.Require().NoError(err)
		s.Empty(creds)
		_, err = s.svc.StartRegistration(s.ctx, s.alice, "replacement")
		s.NoError(err)
	})
}

type brokenChallenges struct{ *challengeStore.InMemoryStore }

func (b *brokenChallenges) Consume(context.Context, models.ConsumeRequest) (*models.Challenge, error) {
	return nil, errors.New("connection reset")
}

func (s *CeremonySuite) TestStorageFailureIsDistinguishable() {
	broken := &brokenChallenges{challengeStore.NewInMemoryStore()}
	svc, err := New(broken, s.credentials, directory{}, Config{RPID: testRPID, Origins: []string{testOrigin}},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	key := s.newKey(models.AlgES256)
	att, err := key.Attest("x")
	s.Require().NoError(err)
	_, err = svc.FinishRegistration(s.ctx, s.alice, att, "x")
	s.True(dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable))
	s.False(dErrors.HasCode(err, dErrors.CodeNotFound))
}
