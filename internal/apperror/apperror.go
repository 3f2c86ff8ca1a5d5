// Package apperror defines the error taxonomy shared by the session, fetch
// and HTTP layers.
//
// Every failure the dashboard surfaces is an *AppError wrapping one of the
// sentinel values below. Callers classify with errors.Is and extract the
// human-readable message (and, for schema violations, the offending field
// path) with errors.As:
//
//	var appErr *apperror.AppError
//	if errors.As(err, &appErr) && errors.Is(err, apperror.ErrSchemaValidation) {
//	    log.Printf("server broke contract at %s", appErr.Field)
//	}
package apperror

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth means the access token is missing or was rejected. The user
	// must sign in again.
	ErrAuth = errors.New("authentication required")
	// ErrNetwork is a transport failure. Transient.
	ErrNetwork = errors.New("network error")
	// ErrMalformedResponse means the response body was not JSON.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrSchemaValidation means the body was JSON but not the expected shape.
	ErrSchemaValidation = errors.New("schema validation failed")
	// ErrUnexpectedStatus is a non-2xx response that is not an auth failure.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrDecode means a bearer token could not be decoded.
	ErrDecode = errors.New("token decode failed")

	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
)

type AppError struct {
	Err     error  // sentinel from this package
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error (transport, json, jwt...)
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause so errors.Is matches
// either of them.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func Auth(message string) *AppError {
	return &AppError{
		Err:     ErrAuth,
		Message: message,
	}
}

func Network(url string, cause error) *AppError {
	return &AppError{
		Err:     ErrNetwork,
		Message: fmt.Sprintf("request to %s failed: %v", url, cause),
		Cause:   cause,
	}
}

func MalformedResponse(url string, cause error) *AppError {
	return &AppError{
		Err:     ErrMalformedResponse,
		Message: fmt.Sprintf("response from %s is not valid JSON: %v", url, cause),
		Cause:   cause,
	}
}

// SchemaViolation reports the first offending field path. The message keeps
// the validator's wording verbatim so contract breaks are easy to debug.
func SchemaViolation(field, description string) *AppError {
	return &AppError{
		Err:     ErrSchemaValidation,
		Message: fmt.Sprintf("%s: %s", field, description),
		Field:   field,
	}
}

func UnexpectedStatus(url string, status int) *AppError {
	return &AppError{
		Err:     ErrUnexpectedStatus,
		Message: fmt.Sprintf("%s responded with status %d", url, status),
	}
}

func Decode(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrDecode,
		Message: message,
		Cause:   cause,
	}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}
