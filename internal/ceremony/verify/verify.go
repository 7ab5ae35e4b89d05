// Package verify runs the relying party side of WebAuthn ceremonies on
// go-webauthn: option and session generation at start, attestation and
// assertion verification at finish.
package verify

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"warden/internal/ceremony/models"
	id "warden/pkg/domain"
)

// ErrVerification is wrapped by every check failure.
var ErrVerification = errors.New("verification failed")

// Config carries the relying party parameters.
type Config struct {
	RPID    string
	RPName  string
	Origins []string
	// UserVerification is "required", "preferred" or "discouraged".
	UserVerification string
	Timeout          time.Duration
}

type Verifier struct {
	wa *webauthn.WebAuthn
}

// New validates cfg. Session expiry is left to the challenge store, which
// runs on the request clock.
func New(cfg Config) (*Verifier, error) {
	if cfg.RPName == "" {
		cfg.RPName = cfg.RPID
	}
	switch protocol.UserVerificationRequirement(cfg.UserVerification) {
	case protocol.VerificationRequired, protocol.VerificationPreferred, protocol.VerificationDiscouraged:
	default:
		return nil, fmt.Errorf("user verification %q is not required, preferred or discouraged", cfg.UserVerification)
	}
	wa, err := webauthn.New(&webauthn.Config{
		RPID:                  cfg.RPID,
		RPDisplayName:         cfg.RPName,
		RPOrigins:             slices.Clone(cfg.Origins),
		AttestationPreference: protocol.PreferNoAttestation,
		AuthenticatorSelection: protocol.AuthenticatorSelection{
			ResidentKey:      protocol.ResidentKeyRequirementPreferred,
			UserVerification: protocol.UserVerificationRequirement(cfg.UserVerification),
		},
		Timeouts: webauthn.TimeoutsConfig{
			Login:        webauthn.TimeoutConfig{Timeout: cfg.Timeout, TimeoutUVD: cfg.Timeout},
			Registration: webauthn.TimeoutConfig{Timeout: cfg.Timeout, TimeoutUVD: cfg.Timeout},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("relying party config: %w", err)
	}
	return &Verifier{wa: wa}, nil
}

// CredentialParameters lists the algorithms offered at registration, in
// preference order.
func CredentialParameters() []protocol.CredentialParameter {
	params := make([]protocol.CredentialParameter, 0, len(models.SupportedAlgorithms))
	for _, alg := range models.SupportedAlgorithms {
		params = append(params, protocol.CredentialParameter{
			Type:      protocol.PublicKeyCredentialType,
			Algorithm: webauthncose.COSEAlgorithmIdentifier(alg),
		})
	}
	return params
}

// UserHandle is the WebAuthn user id of a subject: the 16 bytes of its UUID.
func UserHandle(subjectID id.SubjectID) []byte {
	u := uuid.UUID(subjectID)
	return u[:]
}

// Account presents a subject and its credentials as a webauthn.User.
type Account struct {
	SubjectID   id.SubjectID
	Name        string
	DisplayName string
	Credentials []*models.Credential
}

func (a *Account) WebAuthnID() []byte          { return UserHandle(a.SubjectID) }
func (a *Account) WebAuthnName() string        { return a.Name }
func (a *Account) WebAuthnDisplayName() string { return a.DisplayName }

func (a *Account) WebAuthnCredentials() []webauthn.Credential {
	out := make([]webauthn.Credential, 0, len(a.Credentials))
	for _, c := range a.Credentials {
		raw, err := rawCredentialID(c.ID)
		if err != nil {
			continue
		}
		out = append(out, webauthn.Credential{
			ID:        raw,
			PublicKey: c.PublicKey,
			Flags:     webauthn.CredentialFlags{BackupEligible: c.BackupEligible},
			Authenticator: webauthn.Authenticator{
				SignCount: c.SignCount,
			},
		})
	}
	return out
}

// Result is what a verified response establishes about the credential.
type Result struct {
	PublicKey      []byte
	Algorithm      models.Algorithm
	SignCount      uint32
	BackupEligible bool
	UserVerified   bool
}

// BeginRegistration builds creation options excluding the account's
// existing credentials, and the session the finish step checks against.
func (v *Verifier) BeginRegistration(acct *Account) (*protocol.PublicKeyCredentialCreationOptions, *webauthn.SessionData, error) {
	exclusions := webauthn.Credentials(acct.WebAuthnCredentials()).CredentialDescriptors()
	creation, session, err := v.wa.BeginRegistration(acct,
		webauthn.WithCredentialParameters(CredentialParameters()),
		webauthn.WithExclusions(exclusions),
	)
	if err != nil {
		return nil, nil, err
	}
	return &creation.Response, session, nil
}

// BeginLogin builds request options. A nil account, or one without
// credentials, gets an empty allow-list for discoverable credentials.
func (v *Verifier) BeginLogin(acct *Account) (*protocol.PublicKeyCredentialRequestOptions, *webauthn.SessionData, error) {
	var (
		assertion *protocol.CredentialAssertion
		session   *webauthn.SessionData
		err       error
	)
	if acct == nil || len(acct.Credentials) == 0 {
		assertion, session, err = v.wa.BeginDiscoverableLogin()
	} else {
		assertion, session, err = v.wa.BeginLogin(acct)
	}
	if err != nil {
		return nil, nil, err
	}
	return &assertion.Response, session, nil
}

// FinishRegistration verifies an attestation for acct against session. The
// credential id the client reports must be the one the authenticator attested.
func (v *Verifier) FinishRegistration(acct *Account, session webauthn.SessionData, att *models.AttestationResponse) (*Result, error) {
	raw, err := rawCredentialID(att.CredentialID)
	if err != nil {
		return nil, fail("malformed credential id")
	}
	response := protocol.CredentialCreationResponse{
		PublicKeyCredential: protocol.PublicKeyCredential{
			Credential: protocol.Credential{ID: att.CredentialID.String(), Type: string(protocol.PublicKeyCredentialType)},
			RawID:      raw,
		},
		AttestationResponse: protocol.AuthenticatorAttestationResponse{
			AuthenticatorResponse: protocol.AuthenticatorResponse{ClientDataJSON: att.ClientDataJSON},
			Transports:            att.Transports,
			AttestationObject:     att.AttestationObject,
		},
	}
	parsed, err := response.Parse()
	if err != nil {
		return nil, wrap(err)
	}
	if parsed.Response.CollectedClientData.CrossOrigin {
		return nil, fail("cross-origin ceremony")
	}
	cred, err := v.wa.CreateCredential(acct, session, parsed)
	if err != nil {
		return nil, wrap(err)
	}
	if !bytes.Equal(cred.ID, raw) {
		return nil, fail("attested credential id differs from response id")
	}
	alg, err := Algorithm(cred.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Result{
		PublicKey:      cred.PublicKey,
		Algorithm:      alg,
		SignCount:      cred.Authenticator.SignCount,
		BackupEligible: cred.Flags.BackupEligible,
		UserVerified:   cred.Flags.UserVerified,
	}, nil
}

// FinishLogin verifies an assertion made with cred against session. An
// unscoped session is bound to the credential's owner here; a sign counter
// that fails to advance is a failure.
func (v *Verifier) FinishLogin(cred *models.Credential, session webauthn.SessionData, as *models.AssertionResponse) (*Result, error) {
	raw, err := rawCredentialID(as.CredentialID)
	if err != nil {
		return nil, fail("malformed credential id")
	}
	if len(session.AllowedCredentialIDs) > 0 {
		if !slices.ContainsFunc(session.AllowedCredentialIDs, func(allowed []byte) bool { return bytes.Equal(allowed, raw) }) {
			return nil, fail("credential not in allow-list")
		}
		// Ownership of the remaining entries may have changed since start.
		session.AllowedCredentialIDs = nil
	}
	acct := &Account{SubjectID: cred.SubjectID, Credentials: []*models.Credential{cred}}
	if len(session.UserID) == 0 {
		session.UserID = acct.WebAuthnID()
	}

	response := protocol.CredentialAssertionResponse{
		PublicKeyCredential: protocol.PublicKeyCredential{
			Credential: protocol.Credential{ID: as.CredentialID.String(), Type: string(protocol.PublicKeyCredentialType)},
			RawID:      raw,
		},
		AssertionResponse: protocol.AuthenticatorAssertionResponse{
			AuthenticatorResponse: protocol.AuthenticatorResponse{ClientDataJSON: as.ClientDataJSON},
			AuthenticatorData:     as.AuthenticatorData,
			Signature:             as.Signature,
			UserHandle:            as.UserHandle,
		},
	}
	parsed, err := response.Parse()
	if err != nil {
		return nil, wrap(err)
	}
	if parsed.Response.CollectedClientData.CrossOrigin {
		return nil, fail("cross-origin ceremony")
	}
	validated, err := v.wa.ValidateLogin(acct, session, parsed)
	if err != nil {
		return nil, wrap(err)
	}
	if validated.Authenticator.CloneWarning {
		return nil, fail("sign count did not increase")
	}
	return &Result{
		PublicKey:      cred.PublicKey,
		Algorithm:      cred.Algorithm,
		SignCount:      validated.Authenticator.SignCount,
		BackupEligible: validated.Flags.BackupEligible,
		UserVerified:   validated.Flags.UserVerified,
	}, nil
}

// Algorithm reads the COSE algorithm of a credential public key.
func Algorithm(coseKey []byte) (models.Algorithm, error) {
	key, err := webauthncose.ParsePublicKey(coseKey)
	if err != nil {
		return 0, fail("malformed public key")
	}
	var alg int64
	switch k := key.(type) {
	case webauthncose.EC2PublicKeyData:
		alg = k.Algorithm
	case webauthncose.OKPPublicKeyData:
		alg = k.Algorithm
	default:
		return 0, fail("unsupported key type")
	}
	if a := models.Algorithm(alg); a.IsSupported() {
		return a, nil
	}
	return 0, fail("unsupported algorithm %d", alg)
}

func rawCredentialID(credID id.CredentialID) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(credID.String())
}

// wrap keeps the library's detail, which is where the failing step is named.
func wrap(err error) error {
	var perr *protocol.Error
	if errors.As(err, &perr) && perr.DevInfo != "" {
		return fmt.Errorf("%w: %s: %s", ErrVerification, perr.Details, perr.DevInfo)
	}
	return fmt.Errorf("%w: %w", ErrVerification, err)
}

func fail(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrVerification, fmt.Sprintf(format, args...))
}
