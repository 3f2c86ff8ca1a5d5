package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or writeError so the dashboard
// SPA always sees the same shapes.
//
// CONSISTENT ERROR FORMAT:
//   {"error": "schema_violation", "message": "id: Invalid type. Expected: integer, given: string", "field": "id"}
//
// The message of an API failure is passed through verbatim. When the
// analyser drifts from its contract the offending field path ends up in
// front of whoever is looking at the browser console.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/gitviz/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending field, when there is one
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status code go out BEFORE the body. Once Encode writes,
// later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to its HTTP status and error type.
//
// ERROR MAPPING:
//
//	ErrValidation                        → 400 validation_error
//	ErrAuth (missing/rejected token)     → 401 unauthorized
//	ErrNotFound                          → 404 not_found
//	ErrNetwork                           → 502 network_error
//	ErrMalformedResponse                 → 502 malformed_response
//	ErrSchemaValidation                  → 502 schema_violation
//	ErrUnexpectedStatus                  → 502 upstream_error
//	anything else                        → 500 internal_error
//
// The upstream failures are 502 because the dashboard itself is healthy;
// it is the analyser API behind it that misbehaved.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrAuth), errors.Is(err, apperror.ErrDecode):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrNetwork):
		return http.StatusBadGateway, "network_error"
	case errors.Is(err, apperror.ErrMalformedResponse):
		return http.StatusBadGateway, "malformed_response"
	case errors.Is(err, apperror.ErrSchemaValidation):
		return http.StatusBadGateway, "schema_violation"
	case errors.Is(err, apperror.ErrUnexpectedStatus):
		return http.StatusBadGateway, "upstream_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError translates a domain error into a JSON error response.
//
// errors.As extracts the *AppError for its message and field; errors.Is
// (inside errorStatus) walks the whole chain, so wrapped and joined errors
// map the same way as bare ones.
func writeError(w http.ResponseWriter, err error) {
	status, errorType := errorStatus(err)

	var appErr *apperror.AppError
	if status == http.StatusInternalServerError || !errors.As(err, &appErr) {
		// NEVER expose internal error details to the client.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a JSON request body into dst. Bodies are capped at 1MB
// and unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body: "+err.Error())
	}
	return nil
}

// int64Param parses a positive integer URL parameter.
func int64Param(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a positive integer")
	}
	return id, nil
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperror.ValidationFailed(name, name+" must be true or false")
	}
	return v, nil
}
