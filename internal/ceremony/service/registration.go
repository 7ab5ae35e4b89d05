package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"warden/internal/ceremony/models"
	"warden/internal/ceremony/verify"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/audit"
	"warden/pkg/platform/sentinel"
	"warden/pkg/platform/tracer"
	"warden/pkg/requestcontext"
)

const maxLabelLength = 64

// StartRegistration issues a registration challenge for subjectID. The
// options list the subject's existing credentials so the authenticator can
// refuse to enroll twice.
func (s *Service) StartRegistration(ctx context.Context, subjectID id.SubjectID, deviceLabel string) (*models.CeremonyOptions, error) {
	subject, err := s.subjects.Subject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	label := normalizeLabel(deviceLabel)
	existing, err := s.listCredentials(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	creation, session, err := s.verifier.BeginRegistration(&verify.Account{
		SubjectID:   subjectID,
		Name:        subject.Email,
		DisplayName: subject.DisplayName,
		Credentials: existing,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build registration options")
	}
	opts, err := s.issueChallenge(ctx, models.PurposeRegistration, subjectID, label, session, creation)
	if err != nil {
		return nil, err
	}
	opts.Subject = &models.SubjectRef{ID: subjectID.String(), Name: subject.Email, DisplayName: subject.DisplayName}
	opts.Algorithms = models.SupportedAlgorithms
	opts.ExcludeCredentials = credentialIDs(existing)
	return opts, nil
}

// FinishRegistration consumes the subject's registration challenge, verifies
// the attestation and enrolls the credential.
func (s *Service) FinishRegistration(ctx context.Context, subjectID id.SubjectID, att *models.AttestationResponse, challengeRef string) (credID id.CredentialID, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanRegistrationFinish, tracer.String(tracer.AttrSubjectID, subjectID.String()))
	defer func() {
		span.SetAttributes(tracer.String(tracer.AttrOutcome, outcome(err)))
		span.End(err)
		s.metrics.ObserveFinish(string(models.PurposeRegistration), outcome(err), time.Since(start).Seconds())
	}()

	if att == nil || att.CredentialID.IsNil() {
		return "", dErrors.NewReason(dErrors.CodeVerificationFailed, dErrors.ReasonAttestationInvalid, "attestation is required")
	}
	now := requestcontext.Now(ctx)
	challenge, err := s.challenges.Consume(ctx, models.ConsumeRequest{
		Value:          challengeRef,
		Purpose:        models.PurposeRegistration,
		SubjectID:      subjectID,
		RequireSubject: true,
		Now:            now,
	})
	if err != nil {
		return "", s.challengeError(ctx, err)
	}

	if challenge.Session == nil {
		s.logger.ErrorContext(ctx, "registration challenge carries no session", "subject_id", subjectID)
		return "", dErrors.NewReason(dErrors.CodeVerificationFailed, dErrors.ReasonAttestationInvalid, "attestation invalid")
	}
	result, err := s.verifier.FinishRegistration(&verify.Account{SubjectID: subjectID}, *challenge.Session, att)
	if err != nil {
		s.logger.InfoContext(ctx, "attestation rejected", "subject_id", subjectID, "error", err)
		return "", dErrors.NewReason(dErrors.CodeVerificationFailed, dErrors.ReasonAttestationInvalid, "attestation invalid")
	}
	span.SetAttributes(
		tracer.String(tracer.AttrCredential, tracer.Digest(att.CredentialID.String())),
		tracer.Int64(tracer.AttrAlgorithm, int64(result.Algorithm)),
		tracer.Bool(tracer.AttrUserVerified, result.UserVerified),
	)

	cred := &models.Credential{
		ID:             att.CredentialID,
		SubjectID:      subjectID,
		PublicKey:      result.PublicKey,
		Algorithm:      result.Algorithm,
		SignCount:      result.SignCount,
		BackupEligible: result.BackupEligible,
		DisplayName:    challenge.Label,
		CreatedAt:      now,
	}
	if err := s.credentials.Create(ctx, cred); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return "", dErrors.NewReason(dErrors.CodeStateConflict, dErrors.ReasonCredentialExists, "credential already registered")
		}
		s.logger.ErrorContext(ctx, "failed to store credential", "subject_id", subjectID, "error", err)
		return "", dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to store credential")
	}

	s.logger.InfoContext(ctx, "credential registered", "subject_id", subjectID, "algorithm", cred.Algorithm.String())
	s.emit(ctx, audit.Event{
		SubjectID: subjectID,
		Action:    audit.EventCredentialRegistered,
		Decision:  "granted",
		Metadata:  map[string]string{"algorithm": cred.Algorithm.String(), "display_name": cred.DisplayName},
	})
	return cred.ID, nil
}

// ListCredentials returns the subject's enrolled credentials.
func (s *Service) ListCredentials(ctx context.Context, subjectID id.SubjectID) ([]*models.Credential, error) {
	creds, err := s.credentials.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to list credentials")
	}
	return creds, nil
}

// RevokeCredential deletes one of the owner's credentials. The subject itself
// is untouched even when this was the last credential.
func (s *Service) RevokeCredential(ctx context.Context, subjectID id.SubjectID, credentialID id.CredentialID) error {
	if err := s.credentials.Delete(ctx, subjectID, credentialID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.NewReason(dErrors.CodeNotFound, dErrors.ReasonCredentialNotFound, "credential not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to revoke credential")
	}
	s.emit(ctx, audit.Event{SubjectID: subjectID, Action: audit.EventCredentialRevoked, Decision: "granted"})
	return nil
}

func (s *Service) challengeError(ctx context.Context, err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.NewReason(dErrors.CodeNotFound, dErrors.ReasonChallengeNotFound, "challenge not found")
	}
	s.logger.ErrorContext(ctx, "failed to consume challenge", "error", err)
	return dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to consume challenge")
}

func normalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "Security key"
	}
	if r := []rune(label); len(r) > maxLabelLength {
		label = string(r[:maxLabelLength])
	}
	return label
}

