// Package softkey is a software authenticator producing well-formed WebAuthn
// attestation and assertion responses. It backs ceremony tests and local
// tooling; it keeps private keys in memory.
package softkey

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"warden/internal/ceremony/models"
	id "warden/pkg/domain"
)

// Authenticator holds one credential key pair and its counter.
type Authenticator struct {
	ID        id.CredentialID
	Algorithm models.Algorithm
	// PublicKey is the COSE_Key placed in attested credential data.
	PublicKey []byte

	RPID      string
	Origin    string
	Flags     protocol.AuthenticatorFlags
	SignCount uint32
	// StaticCounter keeps SignCount at zero like counterless authenticators.
	StaticCounter bool
	// UserHandle is returned with assertions, as discoverable credentials do.
	UserHandle []byte
	// CrossOrigin marks client data as collected in a cross-origin frame.
	CrossOrigin bool

	rawID  []byte
	signer crypto.Signer
}

// New creates an authenticator for alg bound to rpID and origin.
func New(alg models.Algorithm, rpID, origin string) (*Authenticator, error) {
	var (
		signer  crypto.Signer
		coseKey map[int]any
	)
	switch alg {
	case models.AlgEdDSA:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		signer = priv
		coseKey = map[int]any{
			1:  int64(webauthncose.OctetKey),
			3:  int64(webauthncose.AlgEdDSA),
			-1: int64(webauthncose.Ed25519),
			-2: []byte(pub),
		}
	default:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		point, err := priv.PublicKey.ECDH()
		if err != nil {
			return nil, err
		}
		// Uncompressed point: 0x04 || X || Y.
		raw := point.Bytes()
		signer = priv
		alg = models.AlgES256
		coseKey = map[int]any{
			1:  int64(webauthncose.EllipticKey),
			3:  int64(webauthncose.AlgES256),
			-1: int64(webauthncose.P256),
			-2: raw[1:33],
			-3: raw[33:65],
		}
	}
	publicKey, err := webauthncbor.Marshal(coseKey)
	if err != nil {
		return nil, err
	}
	rawID := make([]byte, 32)
	if _, err := rand.Read(rawID); err != nil {
		return nil, err
	}
	return &Authenticator{
		ID:        id.CredentialID(base64.RawURLEncoding.EncodeToString(rawID)),
		Algorithm: alg,
		PublicKey: publicKey,
		RPID:      rpID,
		Origin:    origin,
		Flags:     protocol.FlagUserPresent | protocol.FlagUserVerified,
		rawID:     rawID,
		signer:    signer,
	}, nil
}

// Attest answers a registration challenge with a packed self-attestation
// signed by the new credential key.
func (a *Authenticator) Attest(challenge string) (*models.AttestationResponse, error) {
	clientData, err := a.clientData(protocol.CreateCeremony, challenge)
	if err != nil {
		return nil, err
	}
	authData := a.authenticatorData(true)
	sig, err := a.sign(authData, clientData)
	if err != nil {
		return nil, err
	}
	object, err := webauthncbor.Marshal(map[string]any{
		"fmt": string(protocol.AttestationFormatPacked),
		"attStmt": map[string]any{
			"alg": int64(a.Algorithm),
			"sig": sig,
		},
		"authData": authData,
	})
	if err != nil {
		return nil, err
	}
	return &models.AttestationResponse{
		CredentialID:      a.ID,
		ClientDataJSON:    clientData,
		AttestationObject: object,
		Transports:        []string{string(protocol.Internal)},
	}, nil
}

// Assert answers an authentication challenge, advancing the counter.
func (a *Authenticator) Assert(challenge string) (*models.AssertionResponse, error) {
	if !a.StaticCounter {
		a.SignCount++
	}
	clientData, err := a.clientData(protocol.AssertCeremony, challenge)
	if err != nil {
		return nil, err
	}
	authData := a.authenticatorData(false)
	sig, err := a.sign(authData, clientData)
	if err != nil {
		return nil, err
	}
	return &models.AssertionResponse{
		CredentialID:      a.ID,
		ClientDataJSON:    clientData,
		AuthenticatorData: authData,
		Signature:         sig,
		UserHandle:        a.UserHandle,
	}, nil
}

func (a *Authenticator) clientData(ceremony protocol.CeremonyType, challenge string) ([]byte, error) {
	return json.Marshal(protocol.CollectedClientData{
		Type:        ceremony,
		Challenge:   challenge,
		Origin:      a.Origin,
		CrossOrigin: a.CrossOrigin,
	})
}

// authenticatorData lays out rpIdHash | flags | counter, followed when
// attested by aaguid | credential id length | credential id | COSE key.
func (a *Authenticator) authenticatorData(attested bool) []byte {
	rpHash := sha256.Sum256([]byte(a.RPID))
	flags := a.Flags
	if attested {
		flags |= protocol.FlagAttestedCredentialData
	}
	out := make([]byte, 0, 37+16+2+len(a.rawID)+len(a.PublicKey))
	out = append(out, rpHash[:]...)
	out = append(out, byte(flags))
	out = binary.BigEndian.AppendUint32(out, a.SignCount)
	if !attested {
		return out
	}
	out = append(out, make([]byte, 16)...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(a.rawID)))
	out = append(out, a.rawID...)
	return append(out, a.PublicKey...)
}

// sign covers authenticator data || SHA-256(client data). ES256 signatures
// are ASN.1 DER.
func (a *Authenticator) sign(authData, clientData []byte) ([]byte, error) {
	clientHash := sha256.Sum256(clientData)
	msg := make([]byte, 0, len(authData)+len(clientHash))
	msg = append(msg, authData...)
	msg = append(msg, clientHash[:]...)
	if a.Algorithm == models.AlgEdDSA {
		return a.signer.Sign(rand.Reader, msg, crypto.Hash(0))
	}
	digest := sha256.Sum256(msg)
	return a.signer.Sign(rand.Reader, digest[:], crypto.SHA256)
}
