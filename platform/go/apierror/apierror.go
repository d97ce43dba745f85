// Package apierror defines the wire-level error taxonomy shared by all
// domain handlers: validation (422), authentication (401), authorization
// (403), not-found (404), conflict (409) and opaque internal failures (500).
// Handlers map their service sentinel errors into an *Error and hand it to
// Write, which renders the canonical envelope
// {success:false, error_code, message, errors?}.
package apierror

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Kind classifies an error into an HTTP status family.
type Kind int

const (
	KindValidation Kind = iota
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindInternal
)

// Error is the structured API error carried from services to the response writer.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Fields attributes validation messages to request fields, e.g.
	// {"start_date": ["overlaps an existing season"]}.
	Fields map[string][]string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// HTTPStatus maps the error kind to its response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Validation builds a field-attributed 422 error.
func Validation(code, message string, fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Fields: fields}
}

// Authentication builds a 401 error.
func Authentication(code, message string) *Error {
	return &Error{Kind: KindAuthentication, Code: code, Message: message}
}

// Authorization builds a 403 error.
func Authorization(code, message string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: message}
}

// NotFound builds a 404 error. Cross-tenant lookups use the same codes as
// true absence so callers cannot probe for existence.
func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// Conflict builds a 409 error.
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// Internal builds an opaque 500 error. The original cause stays server-side.
func Internal() *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL_ERROR", Message: "internal error"}
}

type envelope struct {
	Success   bool                 `json:"success"`
	ErrorCode string               `json:"error_code"`
	Message   string               `json:"message"`
	Errors    *map[string][]string `json:"errors,omitempty"`
}

// Write renders the error envelope. Non-*Error values are logged and
// collapsed into an opaque internal error so no detail leaks to clients.
func Write(w http.ResponseWriter, logger *zap.Logger, err error) {
	apiErr, ok := err.(*Error)
	if !ok {
		if logger != nil {
			logger.Error("unhandled error", zap.Error(err))
		}
		apiErr = Internal()
	}

	body := envelope{
		Success:   false,
		ErrorCode: apiErr.Code,
		Message:   apiErr.Message,
	}
	if len(apiErr.Fields) > 0 {
		body.Errors = &apiErr.Fields
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.HTTPStatus())
	_ = json.NewEncoder(w).Encode(body)
}
