// Package handler exposes impersonation to administrators.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"warden/internal/impersonation/models"
	identity "warden/internal/identity/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
	"warden/pkg/validation"
)

// Service is the broker surface the handler needs.
type Service interface {
	Start(ctx context.Context, adminID, targetID id.SubjectID) (*identity.TokenPair, error)
	Stop(ctx context.Context, adminID id.SubjectID) (*identity.TokenPair, error)
	StopWithToken(ctx context.Context, accessToken string) (*identity.TokenPair, error)
	Status(ctx context.Context, adminID id.SubjectID) (*models.Status, error)
}

type Handler struct {
	broker Service
	logger *slog.Logger
}

func New(broker Service, logger *slog.Logger) *Handler {
	return &Handler{broker: broker, logger: logger}
}

// Register mounts the routes. The router must already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin/impersonation", func(r chi.Router) {
		r.Get("/", h.handleStatus)
		r.Post("/", h.handleStart)
		r.Delete("/", h.handleStop)
	})
}

type startRequest struct {
	TargetID string `json:"target_id" validate:"required,uuid"`
}

func (r *startRequest) Normalize() {
	r.TargetID = strings.TrimSpace(r.TargetID)
}

func (r *startRequest) Validate() error {
	return validation.Validate(r)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, acting := requestcontext.ActorID(ctx); acting {
		httputil.WriteError(w, dErrors.NewReason(dErrors.CodeStateConflict, dErrors.ReasonImpersonationActive, "stop the current impersonation first"))
		return
	}
	req, ok := httputil.DecodeAndPrepare[startRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	targetID, err := id.ParseSubjectID(req.TargetID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	pair, err := h.broker.Start(ctx, adminID, targetID)
	if err != nil {
		h.fail(ctx, w, "failed to start impersonation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, pair)
}

// handleStop accepts either the administrator's own token or the
// impersonated token. The latter restores through its act claim.
func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var pair *identity.TokenPair
	if _, acting := requestcontext.ActorID(ctx); acting {
		token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		pair, err = h.broker.StopWithToken(ctx, token)
	} else {
		pair, err = h.broker.Stop(ctx, adminID)
	}
	if err != nil {
		h.fail(ctx, w, "failed to stop impersonation", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	adminID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if actor, acting := requestcontext.ActorID(ctx); acting {
		adminID = actor
	}
	status, err := h.broker.Status(ctx, adminID)
	if err != nil {
		h.fail(ctx, w, "failed to load impersonation status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
