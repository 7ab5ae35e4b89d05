package verify_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warden/internal/ceremony/models"
	"warden/internal/ceremony/softkey"
	"warden/internal/ceremony/verify"
	id "warden/pkg/domain"
)

const (
	rpID   = "warden.example"
	origin = "https://warden.example"
)

func newVerifier(t *testing.T, uv string) *verify.Verifier {
	t.Helper()
	v, err := verify.New(verify.Config{
		RPID:             rpID,
		RPName:           "Warden",
		Origins:          []string{origin},
		UserVerification: uv,
		Timeout:          time.Minute,
	})
	require.NoError(t, err)
	return v
}

func newKey(t *testing.T, alg models.Algorithm) *softkey.Authenticator {
	t.Helper()
	a, err := softkey.New(alg, rpID, origin)
	require.NoError(t, err)
	return a
}

func beginRegistration(t *testing.T, v *verify.Verifier, acct *verify.Account) *webauthn.SessionData {
	t.Helper()
	_, session, err := v.BeginRegistration(acct)
	require.NoError(t, err)
	return session
}

func TestNewRejectsUnknownUserVerification(t *testing.T) {
	_, err := verify.New(verify.Config{RPID: rpID, Origins: []string{origin}, UserVerification: "sometimes"})
	assert.Error(t, err)
}

func TestBeginRegistration(t *testing.T) {
	v := newVerifier(t, "preferred")
	existing := newKey(t, models.AlgES256)
	acct := &verify.Account{
		SubjectID: id.NewSubjectID(),
		Name:      "ada@example.com",
		Credentials: []*models.Credential{
			{ID: existing.ID, PublicKey: existing.PublicKey, Algorithm: existing.Algorithm},
		},
	}

	options, session, err := v.BeginRegistration(acct)
	require.NoError(t, err)
	assert.Equal(t, options.Challenge.String(), session.Challenge)
	assert.Equal(t, rpID, options.RelyingParty.ID)
	assert.Equal(t, verify.CredentialParameters(), options.Parameters)
	assert.Equal(t, verify.UserHandle(acct.SubjectID), session.UserID)
	require.Len(t, options.CredentialExcludeList, 1)
	assert.Equal(t, existing.ID.String(), options.CredentialExcludeList[0].CredentialID.String())
}

func TestFinishRegistration(t *testing.T) {
	v := newVerifier(t, "preferred")
	acct := &verify.Account{SubjectID: id.NewSubjectID(), Name: "ada@example.com"}

	for _, alg := range models.SupportedAlgorithms {
		t.Run("valid "+alg.String(), func(t *testing.T) {
			session := beginRegistration(t, v, acct)
			a := newKey(t, alg)
			att, err := a.Attest(session.Challenge)
			require.NoError(t, err)

			result, err := v.FinishRegistration(acct, *session, att)
			require.NoError(t, err)
			assert.Equal(t, alg, result.Algorithm)
			assert.True(t, result.UserVerified)
			assert.False(t, result.BackupEligible)

			parsed, err := verify.Algorithm(result.PublicKey)
			require.NoError(t, err)
			assert.Equal(t, alg, parsed)
		})
	}

	tests := []struct {
		name   string
		mutate func(a *softkey.Authenticator, challenge string, att *models.AttestationResponse)
	}{
		{"wrong challenge", func(a *softkey.Authenticator, _ string, att *models.AttestationResponse) {
			other, _ := a.Attest("b3RoZXItY2hhbGxlbmdlLW90aGVyLWNoYWxsZW5nZQ")
			*att = *other
		}},
		{"foreign origin", func(a *softkey.Authenticator, challenge string, att *models.AttestationResponse) {
			a.Origin = "https://evil.example"
			other, _ := a.Attest(challenge)
			*att = *other
		}},
		{"foreign relying party", func(a *softkey.Authenticator, challenge string, att *models.AttestationResponse) {
			a.RPID = "evil.example"
			other, _ := a.Attest(challenge)
			*att = *other
		}},
		{"user not present", func(a *softkey.Authenticator, challenge string, att *models.AttestationResponse) {
			a.Flags = 0
			other, _ := a.Attest(challenge)
			*att = *other
		}},
		{"cross-origin client data", func(a *softkey.Authenticator, challenge string, att *models.AttestationResponse) {
			a.CrossOrigin = true
			other, _ := a.Attest(challenge)
			*att = *other
		}},
		{"tampered client data", func(_ *softkey.Authenticator, _ string, att *models.AttestationResponse) {
			var cd map[string]any
			_ = json.Unmarshal(att.ClientDataJSON, &cd)
			cd["extra"] = 1
			att.ClientDataJSON, _ = json.Marshal(cd)
		}},
		{"assertion client data", func(a *softkey.Authenticator, challenge string, att *models.AttestationResponse) {
			as, _ := a.Assert(challenge)
			att.ClientDataJSON = as.ClientDataJSON
		}},
		{"response names another credential", func(_ *softkey.Authenticator, _ string, att *models.AttestationResponse) {
			att.CredentialID = newKey(t, models.AlgES256).ID
		}},
		{"malformed credential id", func(_ *softkey.Authenticator, _ string, att *models.AttestationResponse) {
			att.CredentialID = id.CredentialID("not base64!")
		}},
		{"truncated attestation object", func(_ *softkey.Authenticator, _ string, att *models.AttestationResponse) {
			att.AttestationObject = att.AttestationObject[:40]
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := beginRegistration(t, v, acct)
			a := newKey(t, models.AlgES256)
			att, err := a.Attest(session.Challenge)
			require.NoError(t, err)
			tt.mutate(a, session.Challenge, att)

			_, err = v.FinishRegistration(acct, *session, att)
			assert.ErrorIs(t, err, verify.ErrVerification)
		})
	}

	t.Run("session for another account", func(t *testing.T) {
		session := beginRegistration(t, v, acct)
		att, err := newKey(t, models.AlgEdDSA).Attest(session.Challenge)
		require.NoError(t, err)

		_, err = v.FinishRegistration(&verify.Account{SubjectID: id.NewSubjectID()}, *session, att)
		assert.ErrorIs(t, err, verify.ErrVerification)
	})
}

func TestFinishRegistrationRequiresUserVerification(t *testing.T) {
	v := newVerifier(t, "required")
	acct := &verify.Account{SubjectID: id.NewSubjectID(), Name: "ada@example.com"}
	session := beginRegistration(t, v, acct)
	a := newKey(t, models.AlgES256)
	a.Flags = protocol.FlagUserPresent
	att, err := a.Attest(session.Challenge)
	require.NoError(t, err)

	_, err = v.FinishRegistration(acct, *session, att)
	assert.ErrorIs(t, err, verify.ErrVerification)
}

// enroll registers a through v and returns the stored form of the credential.
func enroll(t *testing.T, v *verify.Verifier, subjectID id.SubjectID, a *softkey.Authenticator) *models.Credential {
	t.Helper()
	acct := &verify.Account{SubjectID: subjectID, Name: "ada@example.com"}
	session := beginRegistration(t, v, acct)
	att, err := a.Attest(session.Challenge)
	require.NoError(t, err)
	result, err := v.FinishRegistration(acct, *session, att)
	require.NoError(t, err)
	return &models.Credential{
		ID:             a.ID,
		SubjectID:      subjectID,
		PublicKey:      result.PublicKey,
		Algorithm:      result.Algorithm,
		SignCount:      result.SignCount,
		BackupEligible: result.BackupEligible,
	}
}

func beginLogin(t *testing.T, v *verify.Verifier, acct *verify.Account) *webauthn.SessionData {
	t.Helper()
	_, session, err := v.BeginLogin(acct)
	require.NoError(t, err)
	return session
}

func TestFinishLogin(t *testing.T) {
	v := newVerifier(t, "required")
	subjectID := id.NewSubjectID()
	a := newKey(t, models.AlgEdDSA)
	cred := enroll(t, v, subjectID, a)
	acct := &verify.Account{SubjectID: subjectID, Credentials: []*models.Credential{cred}}

	t.Run("valid assertion advances counter", func(t *testing.T) {
		session := beginLogin(t, v, acct)
		require.Len(t, session.AllowedCredentialIDs, 1)
		as, err := a.Assert(session.Challenge)
		require.NoError(t, err)

		result, err := v.FinishLogin(cred, *session, as)
		require.NoError(t, err)
		assert.Equal(t, uint32(1), result.SignCount)
		assert.True(t, result.UserVerified)
		cred.SignCount = result.SignCount
	})

	t.Run("discoverable assertion carrying the owner's handle", func(t *testing.T) {
		session := beginLogin(t, v, nil)
		assert.Empty(t, session.UserID)
		a.UserHandle = verify.UserHandle(subjectID)
		defer func() { a.UserHandle = nil }()
		as, err := a.Assert(session.Challenge)
		require.NoError(t, err)

		result, err := v.FinishLogin(cred, *session, as)
		require.NoError(t, err)
		cred.SignCount = result.SignCount
	})

	t.Run("replayed counter is rejected", func(t *testing.T) {
		session := beginLogin(t, v, acct)
		a.SignCount = 0
		as, err := a.Assert(session.Challenge)
		require.NoError(t, err)
		_, err = v.FinishLogin(cred, *session, as)
		assert.ErrorIs(t, err, verify.ErrVerification)
	})

	t.Run("user verification required", func(t *testing.T) {
		session := beginLogin(t, v, acct)
		a.Flags = protocol.FlagUserPresent
		defer func() { a.Flags = protocol.FlagUserPresent | protocol.FlagUserVerified }()
		a.SignCount = 10
		as, err := a.Assert(session.Challenge)
		require.NoError(t, err)
		_, err = v.FinishLogin(cred, *session, as)
		assert.ErrorIs(t, err, verify.ErrVerification)
	})

	t.Run("signature from another key", func(t *testing.T) {
		session := beginLogin(t, v, acct)
		other := newKey(t, models.AlgEdDSA)
		other.ID = a.ID
		other.SignCount = 50
		as, err := other.Assert(session.Challenge)
		require.NoError(t, err)
		_, err = v.FinishLogin(cred, *session, as)
		assert.ErrorIs(t, err, verify.ErrVerification)
	})

	t.Run("user handle of another subject", func(t *testing.T) {
		session := beginLogin(t, v, nil)
		a.UserHandle = verify.UserHandle(id.NewSubjectID())
		defer func() { a.UserHandle = nil }()
		a.SignCount = 60
		as, err := a.Assert(session.Challenge)
		require.NoError(t, err)
		_, err = v.FinishLogin(cred, *session, as)
		assert.ErrorIs(t, err, verify.ErrVerification)
	})

	t.Run("credential outside the allow-list", func(t *testing.T) {
		other := newKey(t, models.AlgEdDSA)
		otherCred := enroll(t, v, subjectID, other)
		session := beginLogin(t, v, acct)
		as, err := other.Assert(session.Challenge)
		require.NoError(t, err)
		_, err = v.FinishLogin(otherCred, *session, as)
		assert.ErrorIs(t, err, verify.ErrVerification)
	})

	t.Run("assertion answering another challenge", func(t *testing.T) {
		session := beginLogin(t, v, acct)
		stale := beginLogin(t, v, acct)
		a.SignCount = 70
		as, err := a.Assert(stale.Challenge)
		require.NoError(t, err)
		_, err = v.FinishLogin(cred, *session, as)
		assert.ErrorIs(t, err, verify.ErrVerification)
	})
}

func TestFinishLoginCounterlessAuthenticator(t *testing.T) {
	v := newVerifier(t, "preferred")
	subjectID := id.NewSubjectID()
	a := newKey(t, models.AlgES256)
	a.StaticCounter = true
	cred := enroll(t, v, subjectID, a)
	acct := &verify.Account{SubjectID: subjectID, Credentials: []*models.Credential{cred}}

	for range 2 {
		session := beginLogin(t, v, acct)
		as, err := a.Assert(session.Challenge)
		require.NoError(t, err)
		result, err := v.FinishLogin(cred, *session, as)
		require.NoError(t, err)
		assert.Zero(t, result.SignCount)
	}
}

func TestAlgorithm(t *testing.T) {
	for _, alg := range models.SupportedAlgorithms {
		got, err := verify.Algorithm(newKey(t, alg).PublicKey)
		require.NoError(t, err)
		assert.Equal(t, alg, got)
	}

	_, err := verify.Algorithm([]byte{0xa0})
	assert.ErrorIs(t, err, verify.ErrVerification)
}
