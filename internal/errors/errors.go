package errors

import (
	"fmt"
	"net/http"
)

// Kind categorizes an error for API responses and logging
type Kind int

const (
	// KindAuthentication - bad credentials, expired or invalid token
	KindAuthentication Kind = iota
	// KindAuthorization - caller lacks a required role
	KindAuthorization
	// KindValidation - malformed or rejected request input
	KindValidation
	// KindNotFound - referenced resource does not exist
	KindNotFound
	// KindUpstream - identity provider or database unreachable
	KindUpstream
	// KindInternal - unexpected internal state
	KindInternal
)

// Error is a structured error carrying a taxonomy kind and optional context
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on kind so errors.Is works across wrapped instances
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithContext attaches a key/value pair for logging
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// New creates an error with the given kind and message
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap wraps an existing error with a kind and message
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// Convenience constructors for the taxonomy

func Authentication(message string) *Error {
	return New(KindAuthentication, message)
}

func Authenticationf(format string, args ...any) *Error {
	return New(KindAuthentication, fmt.Sprintf(format, args...))
}

func Authorization(message string) *Error {
	return New(KindAuthorization, message)
}

func Validation(message string) *Error {
	return New(KindValidation, message)
}

func Validationf(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

func NotFoundf(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func Upstream(err error, message string) *Error {
	if err == nil {
		return New(KindUpstream, message)
	}
	return Wrap(err, KindUpstream, message)
}

func Upstreamf(err error, format string, args ...any) *Error {
	return Upstream(err, fmt.Sprintf(format, args...))
}

func Internal(err error, message string) *Error {
	if err == nil {
		return New(KindInternal, message)
	}
	return Wrap(err, KindInternal, message)
}

// GetKind returns the kind of an error, defaulting to internal for
// errors produced outside this package
func GetKind(err error) Kind {
	if err == nil {
		return KindInternal
	}
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInternal
}

// KindString returns the wire name of a kind, used in error response bodies
func KindString(k Kind) string {
	switch k {
	case KindAuthentication:
		return "authentication_error"
	case KindAuthorization:
		return "authorization_error"
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream_unavailable"
	case KindInternal:
		return "internal_error"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps a kind to its response status code
func HTTPStatus(k Kind) int {
	switch k {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusServiceUnavailable
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
