// Package handler exposes credential ceremonies, login and token lifecycle.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"warden/internal/ceremony/models"
	identity "warden/internal/identity/models"
	session "warden/internal/session/models"
	sessionService "warden/internal/session/service"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
	"warden/pkg/validation"
)

// CeremonyService runs registration and authentication ceremonies.
type CeremonyService interface {
	StartRegistration(ctx context.Context, subjectID id.SubjectID, deviceLabel string) (*models.CeremonyOptions, error)
	FinishRegistration(ctx context.Context, subjectID id.SubjectID, att *models.AttestationResponse, challengeRef string) (id.CredentialID, error)
	StartAuthentication(ctx context.Context, subjectID id.SubjectID) (*models.CeremonyOptions, error)
	FinishAuthentication(ctx context.Context, as *models.AssertionResponse, challengeRef string, subjectID id.SubjectID) (id.SubjectID, error)
	ListCredentials(ctx context.Context, subjectID id.SubjectID) ([]*models.Credential, error)
	RevokeCredential(ctx context.Context, subjectID id.SubjectID, credentialID id.CredentialID) error
}

// SessionTracker records the session a login establishes.
type SessionTracker interface {
	TrackSession(ctx context.Context, subjectID id.SubjectID, fingerprint, userAgent string) (*session.Session, error)
	TerminateSession(ctx context.Context, sessionID id.SessionID) error
}

// AnomalyScanner escalates anomalies found after a login.
type AnomalyScanner interface {
	Scan(ctx context.Context, subjectID id.SubjectID) (*sessionService.ScanResult, error)
}

// TokenService mints and revokes token pairs.
type TokenService interface {
	IssuePair(ctx context.Context, req identity.IssueRequest) (*identity.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.TokenPair, error)
	RevokeToken(ctx context.Context, token string) error
}

type Handler struct {
	ceremonies CeremonyService
	sessions   SessionTracker
	scanner    AnomalyScanner
	tokens     TokenService
	logger     *slog.Logger
}

func New(ceremonies CeremonyService, sessions SessionTracker, scanner AnomalyScanner, tokens TokenService, logger *slog.Logger) *Handler {
	return &Handler{
		ceremonies: ceremonies,
		sessions:   sessions,
		scanner:    scanner,
		tokens:     tokens,
		logger:     logger,
	}
}

// RegisterPublic mounts the unauthenticated login and refresh routes.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/login/start", h.handleLoginStart)
	r.Post("/auth/login/finish", h.handleLoginFinish)
	r.Post("/auth/token/refresh", h.handleRefresh)
}

// Register mounts the routes that require an authenticated subject.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/logout", h.handleLogout)
	r.Route("/credentials", func(r chi.Router) {
		r.Get("/", h.handleListCredentials)
		r.Post("/register/start", h.handleRegistrationStart)
		r.Post("/register/finish", h.handleRegistrationFinish)
		r.Delete("/{credentialID}", h.handleRevokeCredential)
	})
}

type loginStartRequest struct {
	SubjectID string `json:"subject_id" validate:"omitempty,uuid"`
}

func (r *loginStartRequest) Normalize()      { r.SubjectID = strings.TrimSpace(r.SubjectID) }
func (r *loginStartRequest) Validate() error { return validation.Validate(r) }

type loginFinishRequest struct {
	Challenge  string           `json:"challenge" validate:"required,max=128"`
	SubjectID  string           `json:"subject_id" validate:"omitempty,uuid"`
	Credential assertionPayload `json:"credential"`
}

func (r *loginFinishRequest) Normalize() {
	r.Challenge = strings.TrimSpace(r.Challenge)
	r.SubjectID = strings.TrimSpace(r.SubjectID)
}
func (r *loginFinishRequest) Validate() error { return validation.Validate(r) }

type loginResponse struct {
	*identity.TokenPair
	SubjectID id.SubjectID `json:"subject_id"`
	SessionID id.SessionID `json:"session_id"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (r *refreshRequest) Normalize()      { r.RefreshToken = strings.TrimSpace(r.RefreshToken) }
func (r *refreshRequest) Validate() error { return validation.Validate(r) }

type registrationStartRequest struct {
	Label string `json:"label" validate:"max=64"`
}

func (r *registrationStartRequest) Normalize()      { r.Label = strings.TrimSpace(r.Label) }
func (r *registrationStartRequest) Validate() error { return validation.Validate(r) }

type registrationFinishRequest struct {
	Challenge  string             `json:"challenge" validate:"required,max=128"`
	Credential attestationPayload `json:"credential"`
}

func (r *registrationFinishRequest) Normalize()      { r.Challenge = strings.TrimSpace(r.Challenge) }
func (r *registrationFinishRequest) Validate() error { return validation.Validate(r) }

type registrationFinishResponse struct {
	CredentialID id.CredentialID `json:"credential_id"`
}

type credentialView struct {
	ID             id.CredentialID `json:"id"`
	DisplayName    string          `json:"display_name"`
	Algorithm      string          `json:"algorithm"`
	SignCount      uint32          `json:"sign_count"`
	BackupEligible bool            `json:"backup_eligible"`
	CreatedAt      time.Time       `json:"created_at"`
	LastUsedAt     *time.Time      `json:"last_used_at,omitempty"`
}

type credentialsResponse struct {
	Credentials []credentialView `json:"credentials"`
}

func (h *Handler) handleLoginStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[loginStartRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	var subjectID id.SubjectID
	if req.SubjectID != "" {
		subjectID, _ = id.ParseSubjectID(req.SubjectID)
	}
	opts, err := h.ceremonies.StartAuthentication(ctx, subjectID)
	if err != nil {
		h.fail(ctx, w, "failed to start authentication", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, opts)
}

// handleLoginFinish verifies the assertion, tracks the device session,
// escalates anomalies and issues a token pair bound to the session.
func (h *Handler) handleLoginFinish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[loginFinishRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	assertion, err := req.Credential.toModel()
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid credential id"))
		return
	}
	var claimed id.SubjectID
	if req.SubjectID != "" {
		claimed, _ = id.ParseSubjectID(req.SubjectID)
	}

	owner, err := h.ceremonies.FinishAuthentication(ctx, assertion, req.Challenge, claimed)
	if err != nil {
		h.fail(ctx, w, "authentication failed", err)
		return
	}
	sess, err := h.sessions.TrackSession(ctx, owner, requestcontext.DeviceFingerprint(ctx), requestcontext.UserAgent(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to track session", err)
		return
	}
	if _, err := h.scanner.Scan(ctx, owner); err != nil {
		h.logger.WarnContext(ctx, "anomaly scan failed",
			"request_id", requestcontext.RequestID(ctx),
			"subject_id", owner,
			"error", err,
		)
	}
	pair, err := h.tokens.IssuePair(ctx, identity.IssueRequest{SubjectID: owner, SessionID: sess.ID})
	if err != nil {
		h.fail(ctx, w, "failed to issue tokens", err)
		return
	}
	h.logger.InfoContext(ctx, "login_succeeded",
		"request_id", requestcontext.RequestID(ctx),
		"subject_id", owner,
		"session_id", sess.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, loginResponse{TokenPair: pair, SubjectID: owner, SessionID: sess.ID})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[refreshRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	pair, err := h.tokens.Refresh(ctx, req.RefreshToken)
	if err != nil {
		h.fail(ctx, w, "token refresh failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pair)
}

// handleLogout ends the current session and revokes the presented access
// token plus the refresh token when the body carries one.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, err := httputil.RequireSubjectID(ctx, h.logger); err != nil {
		httputil.WriteError(w, err)
		return
	}
	var refreshToken string
	if r.ContentLength > 0 {
		req, ok := httputil.DecodeAndPrepare[refreshRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
		if !ok {
			return
		}
		refreshToken = req.RefreshToken
	}

	if sessionID := requestcontext.SessionID(ctx); !sessionID.IsNil() {
		if err := h.sessions.TerminateSession(ctx, sessionID); err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.fail(ctx, w, "failed to terminate session", err)
			return
		}
	}
	accessToken, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	for _, token := range []string{accessToken, refreshToken} {
		if token == "" {
			continue
		}
		if err := h.tokens.RevokeToken(ctx, token); err != nil {
			h.fail(ctx, w, "failed to revoke token", err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	creds, err := h.ceremonies.ListCredentials(ctx, subjectID)
	if err != nil {
		h.fail(ctx, w, "failed to list credentials", err)
		return
	}
	views := make([]credentialView, 0, len(creds))
	for _, c := range creds {
		views = append(views, credentialView{
			ID:             c.ID,
			DisplayName:    c.DisplayName,
			Algorithm:      c.Algorithm.String(),
			SignCount:      c.SignCount,
			BackupEligible: c.BackupEligible,
			CreatedAt:      c.CreatedAt,
			LastUsedAt:     c.LastUsedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, credentialsResponse{Credentials: views})
}

func (h *Handler) handleRegistrationStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, ok := h.owner(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[registrationStartRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	opts, err := h.ceremonies.StartRegistration(ctx, subjectID, req.Label)
	if err != nil {
		h.fail(ctx, w, "failed to start registration", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, opts)
}

func (h *Handler) handleRegistrationFinish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, ok := h.owner(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[registrationFinishRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	attestation, err := req.Credential.toModel()
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid credential id"))
		return
	}
	credID, err := h.ceremonies.FinishRegistration(ctx, subjectID, attestation, req.Challenge)
	if err != nil {
		h.fail(ctx, w, "registration failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, registrationFinishResponse{CredentialID: credID})
}

func (h *Handler) handleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, ok := h.owner(w, ctx)
	if !ok {
		return
	}
	credID, err := id.ParseCredentialID(chi.URLParam(r, "credentialID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid credential id"))
		return
	}
	if err := h.ceremonies.RevokeCredential(ctx, subjectID, credID); err != nil {
		h.fail(ctx, w, "failed to revoke credential", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// owner resolves the subject and refuses impersonated callers, who must not
// change another subject's credentials.
func (h *Handler) owner(w http.ResponseWriter, ctx context.Context) (id.SubjectID, bool) {
	subjectID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return id.SubjectID{}, false
	}
	if _, acting := requestcontext.ActorID(ctx); acting {
		httputil.WriteError(w, dErrors.NewReason(dErrors.CodePrivilegeDenied, dErrors.ReasonInsufficientPrivilege, "not allowed while impersonating"))
		return id.SubjectID{}, false
	}
	return subjectID, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
