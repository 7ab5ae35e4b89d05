// Package handler exposes session management to the session's owner.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"warden/internal/session/models"
	id "warden/pkg/domain"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
	"warden/pkg/validation"
)

// Service is the session surface the handler needs.
type Service interface {
	ListSessions(ctx context.Context, subjectID id.SubjectID) ([]*models.Session, error)
	DetectAnomalies(ctx context.Context, subjectID id.SubjectID) (*models.AnomalyReport, error)
	TerminateSessionFor(ctx context.Context, subjectID id.SubjectID, sessionID id.SessionID) error
	TerminateOtherSessions(ctx context.Context, subjectID id.SubjectID, keep id.SessionID) (int, error)
	TrustSessionFor(ctx context.Context, subjectID id.SubjectID, sessionID id.SessionID, until time.Time) error
}

type Handler struct {
	sessions Service
	logger   *slog.Logger
}

func New(sessions Service, logger *slog.Logger) *Handler {
	return &Handler{sessions: sessions, logger: logger}
}

// Register mounts the routes. The router must already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Get("/sessions", h.handleList)
	r.Get("/sessions/anomalies", h.handleAnomalies)
	r.Post("/sessions/terminate-others", h.handleTerminateOthers)
	r.Delete("/sessions/{sessionID}", h.handleTerminate)
	r.Post("/sessions/{sessionID}/trust", h.handleTrust)
}

type sessionView struct {
	*models.Session
	Current bool `json:"current"`
	Trusted bool `json:"trusted"`
}

type listResponse struct {
	Sessions []sessionView `json:"sessions"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sessions, err := h.sessions.ListSessions(ctx, subjectID)
	if err != nil {
		h.fail(ctx, w, "failed to list sessions", err)
		return
	}
	current := requestcontext.SessionID(ctx)
	now := requestcontext.Now(ctx)
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sessionView{Session: sess, Current: sess.ID == current, Trusted: sess.IsTrusted(now)})
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Sessions: views})
}

func (h *Handler) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.sessions.DetectAnomalies(ctx, subjectID)
	if err != nil {
		h.fail(ctx, w, "failed to detect anomalies", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleTerminate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.sessions.TerminateSessionFor(ctx, subjectID, sessionID); err != nil {
		h.fail(ctx, w, "failed to terminate session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type terminateOthersResponse struct {
	Terminated int `json:"terminated"`
}

// handleTerminateOthers keeps the session the request was authenticated with.
func (h *Handler) handleTerminateOthers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	n, err := h.sessions.TerminateOtherSessions(ctx, subjectID, requestcontext.SessionID(ctx))
	if err != nil {
		h.fail(ctx, w, "failed to terminate sessions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, terminateOthersResponse{Terminated: n})
}

type trustRequest struct {
	Days int `json:"days" validate:"required,min=1,max=90"`
}

func (r *trustRequest) Validate() error {
	return validation.Validate(r)
}

func (h *Handler) handleTrust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[trustRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	until := requestcontext.Now(ctx).Add(time.Duration(req.Days) * 24 * time.Hour)
	if err := h.sessions.TrustSessionFor(ctx, subjectID, sessionID, until); err != nil {
		h.fail(ctx, w, "failed to trust session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
