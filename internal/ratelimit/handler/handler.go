// Package handler lets administrators clear a caller's rate-limit counter
// and manage the rate-limit allowlist.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"warden/internal/authz"
	identity "warden/internal/identity/models"
	"warden/internal/ratelimit/models"
	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/platform/httputil"
	"warden/pkg/requestcontext"
	"warden/pkg/validation"
)

type Service interface {
	Reset(ctx context.Context, key models.Key) error
	Allow(ctx context.Context, entry *models.AllowlistEntry) error
	Disallow(ctx context.Context, prefix models.KeyPrefix, identifier string) error
	Allowlist(ctx context.Context) ([]*models.AllowlistEntry, error)
}

type Handler struct {
	limiter Service
	roles   authz.RoleStore
	logger  *slog.Logger
}

func New(limiter Service, roles authz.RoleStore, logger *slog.Logger) *Handler {
	return &Handler{limiter: limiter, roles: roles, logger: logger}
}

// Register mounts the routes. The router must already require authentication.
func (h *Handler) Register(r chi.Router) {
	r.Post("/admin/ratelimit/reset", h.handleReset)
	r.Get("/admin/ratelimit/allowlist", h.handleListAllowlist)
	r.Post("/admin/ratelimit/allowlist", h.handleAllow)
	r.Delete("/admin/ratelimit/allowlist/{prefix}/{identifier}", h.handleDisallow)
}

type resetRequest struct {
	Class     string `json:"class" validate:"required,oneof=login recovery impersonation mfa"`
	IP        string `json:"ip" validate:"omitempty,ip"`
	SubjectID string `json:"subject_id" validate:"omitempty,uuid"`
}

func (r *resetRequest) Normalize() {
	r.Class = strings.ToLower(strings.TrimSpace(r.Class))
	r.IP = strings.TrimSpace(r.IP)
	r.SubjectID = strings.TrimSpace(r.SubjectID)
}

// Validate requires exactly one of ip and subject_id.
func (r *resetRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	if (r.IP == "") == (r.SubjectID == "") {
		return dErrors.New(dErrors.CodeValidation, "exactly one of ip or subject_id is required")
	}
	return nil
}

func (r *resetRequest) key() models.Key {
	if r.SubjectID != "" {
		return models.NewKey(models.RouteClass(r.Class), models.KeyPrefixSubject, r.SubjectID)
	}
	return models.NewKey(models.RouteClass(r.Class), models.KeyPrefixIP, r.IP)
}

// admin resolves the caller and requires the admin role. Impersonated
// callers never qualify.
func (h *Handler) admin(w http.ResponseWriter, r *http.Request) (id.SubjectID, bool) {
	ctx := r.Context()
	adminID, err := httputil.RequireSubjectID(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return id.SubjectID{}, false
	}
	if _, acting := requestcontext.ActorID(ctx); acting {
		httputil.WriteError(w, dErrors.ErrInsufficientPrivilege)
		return id.SubjectID{}, false
	}
	if err := authz.RequireRole(ctx, h.roles, adminID, identity.RoleAdmin); err != nil {
		httputil.WriteError(w, err)
		return id.SubjectID{}, false
	}
	return adminID, true
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	adminID, ok := h.admin(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[resetRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	key := req.key()
	if err := h.limiter.Reset(ctx, key); err != nil {
		h.logger.ErrorContext(ctx, "failed to reset rate limit", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "rate_limit_reset",
		"admin_id", adminID,
		"route_class", key.Class(),
		"request_id", requestID,
	)
	w.WriteHeader(http.StatusNoContent)
}

type allowRequest struct {
	IP        string     `json:"ip" validate:"omitempty,ip"`
	SubjectID string     `json:"subject_id" validate:"omitempty,uuid"`
	Reason    string     `json:"reason" validate:"required,max=256"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (r *allowRequest) Normalize() {
	r.IP = strings.TrimSpace(r.IP)
	r.SubjectID = strings.ToLower(strings.TrimSpace(r.SubjectID))
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *allowRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	if (r.IP == "") == (r.SubjectID == "") {
		return dErrors.New(dErrors.CodeValidation, "exactly one of ip or subject_id is required")
	}
	return nil
}

func (r *allowRequest) entry(createdBy id.SubjectID) *models.AllowlistEntry {
	e := &models.AllowlistEntry{
		Prefix:     models.KeyPrefixSubject,
		Identifier: r.SubjectID,
		Reason:     r.Reason,
		ExpiresAt:  r.ExpiresAt,
		CreatedBy:  createdBy,
	}
	if r.IP != "" {
		e.Prefix = models.KeyPrefixIP
		e.Identifier = canonicalIP(r.IP)
	}
	return e
}

type allowlistEntryView struct {
	Type       models.KeyPrefix `json:"type"`
	Identifier string           `json:"identifier"`
	Reason     string           `json:"reason"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	CreatedBy  id.SubjectID     `json:"created_by"`
}

func toAllowlistView(e *models.AllowlistEntry) allowlistEntryView {
	return allowlistEntryView{
		Type:       e.Prefix,
		Identifier: e.Identifier,
		Reason:     e.Reason,
		ExpiresAt:  e.ExpiresAt,
		CreatedAt:  e.CreatedAt,
		CreatedBy:  e.CreatedBy,
	}
}

func (h *Handler) handleListAllowlist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.admin(w, r); !ok {
		return
	}
	entries, err := h.limiter.Allowlist(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list allowlist", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	views := make([]allowlistEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toAllowlistView(e))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entries": views})
}

func (h *Handler) handleAllow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	adminID, ok := h.admin(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[allowRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	entry := req.entry(adminID)
	if err := h.limiter.Allow(ctx, entry); err != nil {
		h.logger.WarnContext(ctx, "failed to add allowlist entry", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toAllowlistView(entry))
}

func (h *Handler) handleDisallow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	if _, ok := h.admin(w, r); !ok {
		return
	}
	prefix := models.KeyPrefix(chi.URLParam(r, "prefix"))
	identifier := chi.URLParam(r, "identifier")
	switch prefix {
	case models.KeyPrefixIP:
		if _, err := netip.ParseAddr(identifier); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid ip address"))
			return
		}
		identifier = canonicalIP(identifier)
	case models.KeyPrefixSubject:
		subject, err := id.ParseSubjectID(identifier)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		identifier = subject.String()
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "allowlist type must be ip or subject"))
		return
	}
	if err := h.limiter.Disallow(ctx, prefix, identifier); err != nil {
		h.logger.WarnContext(ctx, "failed to remove allowlist entry", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// canonicalIP matches the form the client IP middleware records.
func canonicalIP(s string) string {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return s
	}
	return addr.Unmap().String()
}
