package domain

import (
	"fmt"
	"net/http"
)

// ErrorKind is the stable category of an ingress failure. It is the value
// clients switch on, so existing kinds must never be renamed.
type ErrorKind string

const (
	// ErrorKindCorsRejected indicates the declared origin is not permitted.
	ErrorKindCorsRejected ErrorKind = "CorsRejected"

	// ErrorKindBadBody indicates the request body could not be ingested.
	ErrorKindBadBody ErrorKind = "BadBody"

	// ErrorKindRouteNotFound indicates no handler is registered for the request.
	ErrorKindRouteNotFound ErrorKind = "RouteNotFound"

	// ErrorKindInternal indicates a handler or infrastructure failure.
	ErrorKindInternal ErrorKind = "Internal"
)

// GenericInternalMessage replaces internal error text in production mode.
const GenericInternalMessage = "Something went wrong"

// ErrorEnvelope is the structured error returned to clients for every
// failure kind. It implements error so collaborators can return it from
// handlers and keep their kind and status.
type ErrorEnvelope struct {
	// Kind is the category of error
	Kind ErrorKind `json:"kind"`

	// Status is the HTTP status code sent with the envelope
	Status int `json:"status"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Context carries diagnostic fields (attempted path, allowed origins).
	// It is stripped in production mode.
	Context map[string]any `json:"context,omitempty"`

	// Cause is the underlying error, logged but never serialized.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Kind, e.HTTPStatusCode(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%d): %s", e.Kind, e.HTTPStatusCode(), e.Message)
}

// Unwrap returns the underlying cause.
func (e *ErrorEnvelope) Unwrap() error {
	return e.Cause
}

// HTTPStatusCode returns the status to send for this envelope.
func (e *ErrorEnvelope) HTTPStatusCode() int {
	if e.Status != 0 {
		return e.Status
	}

	switch e.Kind {
	case ErrorKindCorsRejected:
		return http.StatusForbidden
	case ErrorKindBadBody:
		return http.StatusBadRequest
	case ErrorKindRouteNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorEnvelope creates an envelope with the default status for kind.
func NewErrorEnvelope(kind ErrorKind, message string) *ErrorEnvelope {
	e := &ErrorEnvelope{Kind: kind, Message: message}
	e.Status = e.HTTPStatusCode()
	return e
}

// WithStatus overrides the HTTP status code.
func (e *ErrorEnvelope) WithStatus(status int) *ErrorEnvelope {
	e.Status = status
	return e
}

// WithContext adds a diagnostic field.
func (e *ErrorEnvelope) WithContext(key string, value any) *ErrorEnvelope {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithCause records the underlying error.
func (e *ErrorEnvelope) WithCause(err error) *ErrorEnvelope {
	e.Cause = err
	return e
}

// Redacted returns a copy safe to send in production mode: no context, and
// internal failures carry only the generic message.
func (e *ErrorEnvelope) Redacted() *ErrorEnvelope {
	out := &ErrorEnvelope{
		Kind:    e.Kind,
		Status:  e.HTTPStatusCode(),
		Message: e.Message,
	}
	if e.Kind == ErrorKindInternal {
		out.Message = GenericInternalMessage
	}
	return out
}

// Convenience constructors for each kind

// ErrCorsRejected creates a CORS rejection for origin.
func ErrCorsRejected(origin string, allowed []string) *ErrorEnvelope {
	return NewErrorEnvelope(ErrorKindCorsRejected, "Not allowed by CORS").
		WithContext("origin", origin).
		WithContext("allowedOrigins", allowed)
}

// ErrBadBody creates a body ingestion error.
func ErrBadBody(message string) *ErrorEnvelope {
	return NewErrorEnvelope(ErrorKindBadBody, message)
}

// ErrRouteNotFound creates a dispatch miss.
func ErrRouteNotFound(method, path string, known []string) *ErrorEnvelope {
	return NewErrorEnvelope(ErrorKindRouteNotFound, "Route not found").
		WithContext("attemptedPath", path).
		WithContext("attemptedMethod", method).
		WithContext("knownPrefixes", known)
}

// ErrInternal creates an internal error carrying err's text.
func ErrInternal(err error) *ErrorEnvelope {
	msg := GenericInternalMessage
	if err != nil {
		msg = err.Error()
	}
	return NewErrorEnvelope(ErrorKindInternal, msg).WithCause(err)
}
