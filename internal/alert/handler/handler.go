// Package handler exposes a subject's security alerts over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"warden/internal/alert/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
)

// Service is the alert surface the handler needs.
type Service interface {
	ListUnresolved(ctx context.Context, subjectID id.SubjectID) ([]*models.Alert, error)
	ResolveFor(ctx context.Context, subjectID id.SubjectID, alertID id.AlertID) error
}

type Handler struct {
	alerts Service
	logger *slog.Logger
}

func New(alerts Service, logger *slog.Logger) *Handler {
	return &Handler{alerts: alerts, logger: logger}
}

// Register mounts the routes. The router must already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/alerts", h.handleList)
	r.Post("/alerts/{alertID}/resolve", h.handleResolve)
}

type listResponse struct {
	Alerts []*models.Alert `json:"alerts"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	alerts, err := h.alerts.ListUnresolved(ctx, subjectID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list alerts",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Alerts: alerts})
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	alertID, err := id.ParseAlertID(chi.URLParam(r, "alertID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.alerts.ResolveFor(ctx, subjectID, alertID); err != nil {
		h.logger.WarnContext(ctx, "failed to resolve alert",
			"request_id", requestcontext.RequestID(ctx),
			"alert_id", alertID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
