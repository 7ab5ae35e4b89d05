package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	id "warden/pkg/domain"
	dErrors "warden/pkg/domain-errors"
	"warden/pkg/requestcontext"
)

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
// Only the code is rendered: reasons stay in logs so that "which thing was
// missing" never reaches the caller.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		status := DomainCodeToHTTPStatus(domainErr.Code)
		response := map[string]string{
			"error": DomainCodeToHTTPCode(domainErr.Code),
		}
		if desc := publicDescription(domainErr); desc != "" {
			response["error_description"] = desc
		}
		WriteJSON(w, status, response)
		return
	}

	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": DomainCodeToHTTPCode(dErrors.CodeInternal),
	})
}

// publicDescription keeps not-found and verification messages uniform.
func publicDescription(e *dErrors.Error) string {
	switch e.Code {
	case dErrors.CodeNotFound, dErrors.CodeVerificationFailed:
		return "invalid or expired request"
	case dErrors.CodeUpstreamUnavailable, dErrors.CodeInternal:
		return "temporarily unavailable"
	default:
		return e.Message
	}
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeVerificationFailed, dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodePrivilegeDenied:
		return http.StatusForbidden
	case dErrors.CodeStateConflict:
		return http.StatusConflict
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to HTTP error codes (for JSON response).
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeBadRequest:
		return "bad_request"
	case dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return "validation_error"
	case dErrors.CodeVerificationFailed:
		return "verification_failed"
	case dErrors.CodeUnauthorized:
		return "unauthorized"
	case dErrors.CodePrivilegeDenied:
		return "forbidden"
	case dErrors.CodeStateConflict:
		return "conflict"
	case dErrors.CodeRateLimited:
		return "rate_limit_exceeded"
	case dErrors.CodeUpstreamUnavailable:
		return "service_unavailable"
	default:
		return "internal_error"
	}
}

// RequireSubjectID extracts the authenticated subject from context.
// Returns a domain error suitable for HTTP response on failure.
func RequireSubjectID(ctx context.Context, logger *slog.Logger) (id.SubjectID, error) {
	subjectID := requestcontext.SubjectID(ctx)
	if subjectID.IsNil() {
		if logger != nil {
			logger.ErrorContext(ctx, "subject missing from context despite auth middleware",
				"request_id", requestcontext.RequestID(ctx))
		}
		return id.SubjectID{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return subjectID, nil
}
