package domain

import (
	"mime/multipart"
	"net/http"
	"net/url"
)

// BodyKind identifies how a request body was ingested.
type BodyKind string

const (
	// BodyKindEmpty is the no-body-expected sentinel.
	BodyKindEmpty BodyKind = "empty"
	// BodyKindRaw marks a webhook body kept as exact bytes in RawBody.
	BodyKindRaw BodyKind = "raw"
	// BodyKindJSON holds a decoded JSON value.
	BodyKindJSON BodyKind = "json"
	// BodyKindForm holds decoded url-encoded form values.
	BodyKindForm BodyKind = "form"
	// BodyKindMultipart holds a decoded multipart form.
	BodyKindMultipart BodyKind = "multipart"
)

// Body is the structured body of record for non-webhook routes.
// Exactly one of the value fields is set, matching Kind.
type Body struct {
	Kind      BodyKind
	JSON      any
	Form      url.Values
	Multipart *multipart.Form
}

// EmptyBody is the explicit sentinel for requests that carry no body.
var EmptyBody = Body{Kind: BodyKindEmpty}

// RawBodyMarker is set as ParsedBody on webhook routes: the body of record
// is RawBody and nothing was decoded.
var RawBodyMarker = Body{Kind: BodyKindRaw}

// IsEmpty reports whether the body is the empty sentinel.
func (b Body) IsEmpty() bool {
	return b.Kind == BodyKindEmpty || b.Kind == ""
}

// RequestContext is the per-request state that flows through the ingress
// pipeline exactly once. It is owned by the goroutine serving the request.
type RequestContext struct {
	// RequestID correlates logs, traces and the X-Request-ID header.
	RequestID string

	// Method is the HTTP method.
	Method string

	// OriginalPath is the path as received; never modified.
	OriginalPath string

	// CanonicalPath is the path used for routing. Only the alias stage
	// rewrites it.
	CanonicalPath string

	// RawQuery is the encoded query string without '?'.
	RawQuery string

	// Header holds the request headers (case-insensitive lookups).
	Header http.Header

	// DeclaredOrigin is the Origin header value; HasOrigin distinguishes an
	// absent header from an empty one.
	DeclaredOrigin string
	HasOrigin      bool

	// RawBody is set only on webhook routes and is never mutated once captured.
	RawBody []byte

	// ParsedBody is never left unset after body ingestion.
	ParsedBody Body

	// IsWebhookRoute is derived from CanonicalPath by the body stage.
	IsWebhookRoute bool

	// ResponseHeader accumulates headers computed by stages (CORS); they are
	// applied when the terminal response is written.
	ResponseHeader http.Header

	// Request is the underlying request. Stages read the body through it.
	Request *http.Request
}

// NewRequestContext captures the immutable parts of r.
func NewRequestContext(r *http.Request, requestID string) *RequestContext {
	origin, hasOrigin := "", false
	if values, ok := r.Header[http.CanonicalHeaderKey("Origin")]; ok && len(values) > 0 {
		origin, hasOrigin = values[0], true
	}

	return &RequestContext{
		RequestID:      requestID,
		Method:         r.Method,
		OriginalPath:   r.URL.Path,
		CanonicalPath:  r.URL.Path,
		RawQuery:       r.URL.RawQuery,
		Header:         r.Header,
		DeclaredOrigin: origin,
		HasOrigin:      hasOrigin,
		ResponseHeader: make(http.Header),
		Request:        r,
	}
}

// URI returns CanonicalPath with the query string.
func (rc *RequestContext) URI() string {
	if rc.RawQuery == "" {
		return rc.CanonicalPath
	}
	return rc.CanonicalPath + "?" + rc.RawQuery
}

// Rewritten reports whether the alias stage changed the path.
func (rc *RequestContext) Rewritten() bool {
	return rc.CanonicalPath != rc.OriginalPath
}
