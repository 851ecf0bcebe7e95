// Package upstream forwards dispatched requests to the domain services that
// own them. The gateway has already consumed and decoded the request body, so
// the proxy re-encodes the body of record instead of streaming the original.
package upstream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
)

// DefaultTimeout bounds a single upstream round trip.
const DefaultTimeout = 30 * time.Second

// ErrNoUpstream is returned when a route group has no collaborator URL.
var ErrNoUpstream = errors.New("no collaborator configured")

var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Proxy is a ports.Handler that forwards to one upstream base URL.
type Proxy struct {
	prefix string
	base   *url.URL
	client *http.Client
	logger *slog.Logger
}

var _ ports.Handler = (*Proxy)(nil)

// Options configures a Proxy.
type Options struct {
	// Client overrides the HTTP client. Redirects are never followed.
	Client *http.Client
	Logger *slog.Logger
}

// New creates a proxy for the route group at prefix. An empty upstream is
// allowed; every request then fails with ErrNoUpstream.
func New(prefix, upstream string, opts Options) (*Proxy, error) {
	p := &Proxy{prefix: prefix, client: opts.Client, logger: opts.Logger}
	if upstream != "" {
		u, err := url.Parse(upstream)
		if err != nil {
			return nil, fmt.Errorf("upstream for %s: %w", prefix, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("upstream for %s: unsupported scheme %q", prefix, u.Scheme)
		}
		p.base = u
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: DefaultTimeout}
	} else {
		c := *p.client
		p.client = &c
	}
	p.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Configured reports whether requests have somewhere to go.
func (p *Proxy) Configured() bool {
	return p.base != nil
}

// ServeIngress forwards the request at rc.CanonicalPath and copies the
// upstream response back.
func (p *Proxy) ServeIngress(w http.ResponseWriter, r *http.Request, rc *domain.RequestContext) error {
	if p.base == nil {
		return fmt.Errorf("%s: %w", p.prefix, ErrNoUpstream)
	}

	target := *p.base
	target.Path = strings.TrimRight(p.base.Path, "/") + rc.CanonicalPath
	target.RawPath = ""
	target.RawQuery = rc.RawQuery

	body, contentType, err := encodeBody(rc)
	if err != nil {
		return fmt.Errorf("re-encode body: %w", err)
	}

	outReq, err := http.NewRequestWithContext(r.Context(), rc.Method, target.String(), body)
	if err != nil {
		return fmt.Errorf("create upstream request: %w", err)
	}
	copyHeaders(outReq.Header, rc.Header)
	for _, h := range hopByHopHeaders {
		outReq.Header.Del(h)
	}
	outReq.Header.Del("Content-Length")
	outReq.Header.Del("Origin")
	if contentType != "" {
		outReq.Header.Set("Content-Type", contentType)
	}
	setForwarded(outReq, r, rc)

	resp, err := p.client.Do(outReq)
	if err != nil {
		p.logger.ErrorContext(r.Context(), "upstream unreachable",
			slog.String("request_id", rc.RequestID),
			slog.String("upstream", p.base.Host),
			slog.String("error", err.Error()),
		)
		return domain.ErrInternal(fmt.Errorf("upstream %s unreachable", p.base.Host)).
			WithCause(err).
			WithStatus(http.StatusBadGateway)
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	for _, h := range hopByHopHeaders {
		w.Header().Del(h)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("copy upstream response: %w", err)
	}
	return nil
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func setForwarded(outReq, r *http.Request, rc *domain.RequestContext) {
	clientIP, _, _ := net.SplitHostPort(r.RemoteAddr)
	if clientIP == "" {
		clientIP = r.RemoteAddr
	}
	if prior := outReq.Header.Get("X-Forwarded-For"); prior != "" {
		outReq.Header.Set("X-Forwarded-For", prior+", "+clientIP)
	} else {
		outReq.Header.Set("X-Forwarded-For", clientIP)
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	outReq.Header.Set("X-Forwarded-Proto", scheme)
	outReq.Header.Set("X-Forwarded-Host", r.Host)
	outReq.Header.Set("X-Request-ID", rc.RequestID)
	if rc.Rewritten() {
		outReq.Header.Set("X-Original-Path", rc.OriginalPath)
	}
}

// encodeBody turns the body of record back into bytes. Webhook routes send
// RawBody untouched.
func encodeBody(rc *domain.RequestContext) (io.Reader, string, error) {
	if rc.IsWebhookRoute {
		return bytes.NewReader(rc.RawBody), "", nil
	}

	switch rc.ParsedBody.Kind {
	case domain.BodyKindJSON:
		b, err := json.Marshal(rc.ParsedBody.JSON)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(b), "application/json", nil
	case domain.BodyKindForm:
		return strings.NewReader(rc.ParsedBody.Form.Encode()), "application/x-www-form-urlencoded", nil
	case domain.BodyKindMultipart:
		return encodeMultipart(rc.ParsedBody.Multipart)
	default:
		return http.NoBody, "", nil
	}
}

func encodeMultipart(form *multipart.Form) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if form != nil {
		for key, values := range form.Value {
			for _, v := range values {
				if err := mw.WriteField(key, v); err != nil {
					return nil, "", err
				}
			}
		}
		for key, files := range form.File {
			for _, fh := range files {
				if err := copyFilePart(mw, key, fh); err != nil {
					return nil, "", err
				}
			}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func copyFilePart(mw *multipart.Writer, field string, fh *multipart.FileHeader) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open part %s: %w", fh.Filename, err)
	}
	defer src.Close()

	part, err := mw.CreateFormFile(field, fh.Filename)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}
