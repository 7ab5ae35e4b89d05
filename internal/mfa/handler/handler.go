// Package handler exposes second-factor enrollment and verification.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	identity "warden/internal/identity/models"
	"warden/internal/mfa/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
	"warden/pkg/validation"
)

// Service is the MFA surface the handler needs.
type Service interface {
	Enroll(ctx context.Context, subjectID id.SubjectID, accountName string) (*models.Setup, error)
	Confirm(ctx context.Context, subjectID id.SubjectID, code string) ([]string, error)
	Verify(ctx context.Context, subjectID id.SubjectID, code string) error
	UseRecoveryCode(ctx context.Context, subjectID id.SubjectID, code string) error
	RegenerateRecoveryCodes(ctx context.Context, subjectID id.SubjectID) ([]string, error)
	Status(ctx context.Context, subjectID id.SubjectID) (*models.Status, error)
	Disable(ctx context.Context, subjectID id.SubjectID) error
}

// SubjectDirectory supplies the account name shown in authenticator apps.
type SubjectDirectory interface {
	Subject(ctx context.Context, subjectID id.SubjectID) (*identity.Subject, error)
}

type Handler struct {
	mfa      Service
	subjects SubjectDirectory
	logger   *slog.Logger
}

func New(mfa Service, subjects SubjectDirectory, logger *slog.Logger) *Handler {
	return &Handler{mfa: mfa, subjects: subjects, logger: logger}
}

// Register mounts the TOTP routes. The router must already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/mfa", h.handleStatus)
	r.Post("/mfa/totp", h.handleEnroll)
	r.Post("/mfa/totp/confirm", h.handleConfirm)
	r.Post("/mfa/totp/verify", h.handleVerify)
	r.Post("/mfa/totp/disable", h.handleDisable)
}

// RegisterRecovery mounts the recovery code routes, which are limited separately.
func (h *Handler) RegisterRecovery(r chi.Router) {
	r.Post("/mfa/recovery", h.handleRecovery)
	r.Post("/mfa/recovery/regenerate", h.handleRegenerate)
}

type codeRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

func (r *codeRequest) Normalize() {
	r.Code = strings.TrimSpace(r.Code)
}

func (r *codeRequest) Validate() error {
	return validation.Validate(r)
}

type recoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// owner resolves the subject and refuses impersonated callers, who must not
// change another subject's second factor.
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

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status, err := h.mfa.Status(ctx, subjectID)
	if err != nil {
		h.fail(ctx, w, "failed to load mfa status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, ok := h.owner(w, ctx)
	if !ok {
		return
	}
	account := subjectID.String()
	if subject, err := h.subjects.Subject(ctx, subjectID); err == nil && subject.Email != "" {
		account = subject.Email
	}
	setup, err := h.mfa.Enroll(ctx, subjectID, account)
	if err != nil {
		h.fail(ctx, w, "failed to start mfa enrollment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, setup)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, ok := h.owner(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[codeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	codes, err := h.mfa.Confirm(ctx, subjectID, req.Code)
	if err != nil {
		h.fail(ctx, w, "failed to confirm mfa enrollment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recoveryCodesResponse{RecoveryCodes: codes})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[codeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.mfa.Verify(ctx, subjectID, req.Code); err != nil {
		h.fail(ctx, w, "mfa verification failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDisable requires a current code before removing the factor.
func (h *Handler) handleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, ok := h.owner(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[codeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.mfa.Verify(ctx, subjectID, req.Code); err != nil {
		h.fail(ctx, w, "mfa verification failed", err)
		return
	}
	if err := h.mfa.Disable(ctx, subjectID); err != nil {
		h.fail(ctx, w, "failed to disable mfa", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRecovery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[codeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.mfa.UseRecoveryCode(ctx, subjectID, req.Code); err != nil {
		h.fail(ctx, w, "recovery code rejected", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRegenerate requires a current code before replacing recovery codes.
func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, ok := h.owner(w, ctx)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[codeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if err := h.mfa.Verify(ctx, subjectID, req.Code); err != nil {
		h.fail(ctx, w, "mfa verification failed", err)
		return
	}
	codes, err := h.mfa.RegenerateRecoveryCodes(ctx, subjectID)
	if err != nil {
		h.fail(ctx, w, "failed to regenerate recovery codes", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recoveryCodesResponse{RecoveryCodes: codes})
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
