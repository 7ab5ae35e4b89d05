package service

import (
	"context"
	"errors"
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

// StartAuthentication issues an authentication challenge. With a nil
// subjectID the challenge is unscoped and the allow-list is empty
// (discoverable credentials).
func (s *Service) StartAuthentication(ctx context.Context, subjectID id.SubjectID) (*models.CeremonyOptions, error) {
	var acct *verify.Account
	if !subjectID.IsNil() {
		creds, err := s.listCredentials(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		acct = &verify.Account{SubjectID: subjectID, Credentials: creds}
	}
	request, session, err := s.verifier.BeginLogin(acct)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build authentication options")
	}
	opts, err := s.issueChallenge(ctx, models.PurposeAuthentication, subjectID, "", session, request)
	if err != nil {
		return nil, err
	}
	if acct != nil {
		opts.AllowCredentials = credentialIDs(acct.Credentials)
	}
	return opts, nil
}

// FinishAuthentication verifies an assertion and returns the credential's
// owner. Credential lookup and the caller's subject check run before the
// challenge is consumed, so those failures leave every record untouched.
func (s *Service) FinishAuthentication(ctx context.Context, as *models.AssertionResponse, challengeRef string, subjectID id.SubjectID) (owner id.SubjectID, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanAuthenticationFinish)
	defer func() {
		span.SetAttributes(tracer.String(tracer.AttrOutcome, outcome(err)))
		span.End(err)
		s.metrics.ObserveFinish(string(models.PurposeAuthentication), outcome(err), time.Since(start).Seconds())
		if err != nil && !dErrors.HasCode(err, dErrors.CodeUpstreamUnavailable) {
			s.emit(ctx, audit.Event{
				SubjectID: subjectID,
				Action:    audit.EventAuthenticationFailed,
				Decision:  "denied",
				Reason:    outcome(err),
			})
		}
	}()

	if as == nil || as.CredentialID.IsNil() {
		return id.SubjectID{}, dErrors.NewReason(dErrors.CodeNotFound, dErrors.ReasonCredentialNotFound, "credential not found")
	}
	span.SetAttributes(tracer.String(tracer.AttrCredential, tracer.Digest(as.CredentialID.String())))

	cred, err := s.credentials.FindByID(ctx, as.CredentialID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.SubjectID{}, dErrors.NewReason(dErrors.CodeNotFound, dErrors.ReasonCredentialNotFound, "credential not found")
		}
		s.logger.ErrorContext(ctx, "failed to load credential", "error", err)
		return id.SubjectID{}, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to load credential")
	}
	if !subjectID.IsNil() && subjectID != cred.SubjectID {
		s.logger.WarnContext(ctx, "assertion subject mismatch", "subject_id", subjectID)
		return id.SubjectID{}, dErrors.NewReason(dErrors.CodeVerificationFailed, dErrors.ReasonSubjectMismatch, "subject mismatch")
	}

	now := requestcontext.Now(ctx)
	challenge, err := s.challenges.Consume(ctx, models.ConsumeRequest{
		Value:     challengeRef,
		Purpose:   models.PurposeAuthentication,
		SubjectID: cred.SubjectID,
		Now:       now,
	})
	if err != nil {
		return id.SubjectID{}, s.challengeError(ctx, err)
	}

	if challenge.Session == nil {
		s.logger.ErrorContext(ctx, "authentication challenge carries no session", "subject_id", cred.SubjectID)
		return id.SubjectID{}, dErrors.NewReason(dErrors.CodeVerificationFailed, dErrors.ReasonAttestationInvalid, "assertion invalid")
	}
	result, err := s.verifier.FinishLogin(cred, *challenge.Session, as)
	if err != nil {
		s.logger.InfoContext(ctx, "assertion rejected", "subject_id", cred.SubjectID, "error", err)
		return id.SubjectID{}, dErrors.NewReason(dErrors.CodeVerificationFailed, dErrors.ReasonAttestationInvalid, "assertion invalid")
	}
	span.SetAttributes(tracer.Bool(tracer.AttrUserVerified, result.UserVerified))

	if err := s.credentials.RecordUse(ctx, cred.ID, result.SignCount, now); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			// A concurrent assertion with the same counter won.
			return id.SubjectID{}, dErrors.NewReason(dErrors.CodeVerificationFailed, dErrors.ReasonAttestationInvalid, "assertion invalid")
		}
		s.logger.ErrorContext(ctx, "failed to record credential use", "subject_id", cred.SubjectID, "error", err)
		return id.SubjectID{}, dErrors.Wrap(err, dErrors.CodeUpstreamUnavailable, "failed to record credential use")
	}

	s.emit(ctx, audit.Event{
		SubjectID: cred.SubjectID,
		Action:    audit.EventAuthenticationSucceeded,
		Decision:  "granted",
		Metadata:  map[string]string{"credential": tracer.Digest(cred.ID.String())},
	})
	return cred.SubjectID, nil
}
