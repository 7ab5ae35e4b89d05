package handler

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"warden/internal/ceremony/models"
	id "warden/pkg/domain"
)

// binary is a byte string carried as unpadded base64url, the encoding
// browser authenticator APIs hand to clients. Padded input is accepted.
type binary []byte

func (b binary) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(b))
}

func (b *binary) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return err
	}
	*b = raw
	return nil
}

type attestationPayload struct {
	ID                string   `json:"id" validate:"required,max=1400"`
	ClientDataJSON    binary   `json:"client_data_json" validate:"required"`
	AttestationObject binary   `json:"attestation_object" validate:"required"`
	Transports        []string `json:"transports" validate:"max=8,dive,max=32"`
}

func (p *attestationPayload) toModel() (*models.AttestationResponse, error) {
	credID, err := id.ParseCredentialID(p.ID)
	if err != nil {
		return nil, err
	}
	return &models.AttestationResponse{
		CredentialID:      credID,
		ClientDataJSON:    p.ClientDataJSON,
		AttestationObject: p.AttestationObject,
		Transports:        p.Transports,
	}, nil
}

type assertionPayload struct {
	ID                string `json:"id" validate:"required,max=1400"`
	ClientDataJSON    binary `json:"client_data_json" validate:"required"`
	AuthenticatorData binary `json:"authenticator_data" validate:"required"`
	Signature         binary `json:"signature" validate:"required"`
	UserHandle        binary `json:"user_handle" validate:"max=64"`
}

func (p *assertionPayload) toModel() (*models.AssertionResponse, error) {
	credID, err := id.ParseCredentialID(p.ID)
	if err != nil {
		return nil, err
	}
	return &models.AssertionResponse{
		CredentialID:      credID,
		ClientDataJSON:    p.ClientDataJSON,
		AuthenticatorData: p.AuthenticatorData,
		Signature:         p.Signature,
		UserHandle:        p.UserHandle,
	}, nil
}
