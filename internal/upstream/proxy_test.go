package upstream

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
)

type captured struct {
	method      string
	path        string
	query       string
	contentType string
	body        []byte
	header      http.Header
	form        *multipart.Form
}

func newUpstream(t *testing.T) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.method = r.Method
		c.path = r.URL.Path
		c.query = r.URL.RawQuery
		c.contentType = r.Header.Get("Content-Type")
		c.header = r.Header.Clone()
		if strings.HasPrefix(c.contentType, "multipart/") {
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				c.form = r.MultipartForm
			}
		} else {
			c.body, _ = io.ReadAll(r.Body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "catalog")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func newProxy(t *testing.T, upstream string) *Proxy {
	t.Helper()
	p, err := New("/api/products", upstream, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func newRC(method, target string) (*http.Request, *domain.RequestContext) {
	r := httptest.NewRequest(method, target, nil)
	r.Header.Set("Authorization", "Bearer token")
	r.Header.Set("Connection", "close")
	return r, domain.NewRequestContext(r, "req-42")
}

func TestProxy_ForwardsJSON(t *testing.T) {
	srv, got := newUpstream(t)
	p := newProxy(t, srv.URL)

	r, rc := newRC("POST", "/admin/products?page=2")
	rc.CanonicalPath = "/api/admin/products"
	rc.ParsedBody = domain.Body{Kind: domain.BodyKindJSON, JSON: map[string]any{"name": "lamp"}}

	rec := httptest.NewRecorder()
	if err := p.ServeIngress(rec, r, rc); err != nil {
		t.Fatalf("ServeIngress() error = %v", err)
	}

	if rec.Code != http.StatusCreated || rec.Body.String() != `{"ok":true}` {
		t.Errorf("response = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Upstream") != "catalog" {
		t.Error("upstream response headers not copied")
	}
	if got.method != "POST" || got.path != "/api/admin/products" || got.query != "page=2" {
		t.Errorf("upstream saw %s %s?%s", got.method, got.path, got.query)
	}
	if got.contentType != "application/json" || string(got.body) != `{"name":"lamp"}` {
		t.Errorf("upstream body = %s (%s)", got.body, got.contentType)
	}
	if got.header.Get("Authorization") != "Bearer token" {
		t.Error("end-to-end headers must be forwarded")
	}
	if got.header.Get("X-Request-ID") != "req-42" || got.header.Get("X-Original-Path") != "/admin/products" {
		t.Errorf("forwarding headers = %v", got.header)
	}
	if got.header.Get("X-Forwarded-For") == "" {
		t.Error("missing X-Forwarded-For")
	}
}

func TestProxy_ForwardsFormAndRaw(t *testing.T) {
	tests := []struct {
		name     string
		prepare  func(rc *domain.RequestContext)
		wantType string
		wantBody string
	}{
		{
			name: "form",
			prepare: func(rc *domain.RequestContext) {
				rc.ParsedBody = domain.Body{Kind: domain.BodyKindForm, Form: url.Values{"qty": {"3"}}}
			},
			wantType: "application/x-www-form-urlencoded",
			wantBody: "qty=3",
		},
		{
			name: "webhook raw bytes",
			prepare: func(rc *domain.RequestContext) {
				rc.Header.Set("Content-Type", "application/json")
				rc.IsWebhookRoute = true
				rc.RawBody = []byte(`{ "id" : "evt_1" }`)
				rc.ParsedBody = domain.RawBodyMarker
			},
			wantType: "application/json",
			wantBody: `{ "id" : "evt_1" }`,
		},
		{
			name:    "empty",
			prepare: func(rc *domain.RequestContext) { rc.ParsedBody = domain.EmptyBody },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, got := newUpstream(t)
			p := newProxy(t, srv.URL)
			r, rc := newRC("POST", "/api/products")
			tt.prepare(rc)

			if err := p.ServeIngress(httptest.NewRecorder(), r, rc); err != nil {
				t.Fatalf("ServeIngress() error = %v", err)
			}
			if got.contentType != tt.wantType || string(got.body) != tt.wantBody {
				t.Errorf("upstream got %q (%s), want %q (%s)", got.body, got.contentType, tt.wantBody, tt.wantType)
			}
		})
	}
}

func TestProxy_ForwardsMultipart(t *testing.T) {
	srv, got := newUpstream(t)
	p := newProxy(t, srv.URL)

	var buf strings.Builder
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("title", "poster")
	fw, _ := mw.CreateFormFile("image", "poster.png")
	_, _ = fw.Write([]byte("png-bytes"))
	_ = mw.Close()

	src := httptest.NewRequest("POST", "/api/products", strings.NewReader(buf.String()))
	src.Header.Set("Content-Type", mw.FormDataContentType())
	if err := src.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("ParseMultipartForm() error = %v", err)
	}

	r, rc := newRC("POST", "/api/products")
	rc.ParsedBody = domain.Body{Kind: domain.BodyKindMultipart, Multipart: src.MultipartForm}

	if err := p.ServeIngress(httptest.NewRecorder(), r, rc); err != nil {
		t.Fatalf("ServeIngress() error = %v", err)
	}
	if got.form == nil {
		t.Fatal("upstream did not receive a multipart form")
	}
	if got.form.Value["title"][0] != "poster" || got.form.File["image"][0].Filename != "poster.png" {
		t.Errorf("upstream form = %+v", got.form)
	}
}

func TestProxy_NoUpstream(t *testing.T) {
	p := newProxy(t, "")
	if p.Configured() {
		t.Fatal("expected unconfigured proxy")
	}

	r, rc := newRC("GET", "/api/products")
	err := p.ServeIngress(httptest.NewRecorder(), r, rc)
	if !errors.Is(err, ErrNoUpstream) {
		t.Errorf("error = %v, want ErrNoUpstream", err)
	}
}

func TestProxy_UnreachableIsBadGateway(t *testing.T) {
	srv, _ := newUpstream(t)
	srv.Close()
	p := newProxy(t, srv.URL)

	r, rc := newRC("GET", "/api/products")
	rec := httptest.NewRecorder()
	err := p.ServeIngress(rec, r, rc)

	var env *domain.ErrorEnvelope
	if !errors.As(err, &env) {
		t.Fatalf("error = %v, want envelope", err)
	}
	if env.Kind != domain.ErrorKindInternal || env.HTTPStatusCode() != http.StatusBadGateway {
		t.Errorf("envelope = %s/%d", env.Kind, env.HTTPStatusCode())
	}
	if rec.Body.Len() != 0 {
		t.Error("nothing may be written before the failure")
	}
}

func TestNew_RejectsBadScheme(t *testing.T) {
	if _, err := New("/api/cart", "ftp://files.internal", Options{}); err == nil {
		t.Error("expected error for non-http upstream")
	}
}

func TestEncodeBody_JSONRoundTrip(t *testing.T) {
	rc := &domain.RequestContext{ParsedBody: domain.Body{Kind: domain.BodyKindJSON, JSON: []any{json.Number("1.50"), "x"}}}
	body, ct, err := encodeBody(rc)
	if err != nil {
		t.Fatalf("encodeBody() error = %v", err)
	}
	b, _ := io.ReadAll(body)
	if ct != "application/json" || string(b) != `[1.50,"x"]` {
		t.Errorf("encodeBody() = %s (%s)", b, ct)
	}
}

func TestNew_DoesNotMutateSharedClient(t *testing.T) {
	shared := &http.Client{Timeout: time.Second}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, prefix := range []string{"/api/products", "/api/orders"} {
		p, err := New(prefix, "http://127.0.0.1:1", Options{Client: shared, Logger: logger})
		if err != nil {
			t.Fatalf("New(%s) error = %v", prefix, err)
		}
		if p.client == shared {
			t.Errorf("New(%s) kept the caller's client", prefix)
		}
		if p.client.CheckRedirect == nil || p.client.Timeout != time.Second {
			t.Errorf("New(%s) client = %+v, want copy with redirects disabled", prefix, p.client)
		}
	}
	if shared.CheckRedirect != nil {
		t.Error("caller's client CheckRedirect was modified")
	}
}
