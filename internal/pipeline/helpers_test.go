package pipeline

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRC(method, target, body string, header map[string]string) *domain.RequestContext {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	for k, v := range header {
		r.Header.Set(k, v)
	}
	return domain.NewRequestContext(r, "req-test")
}

func testPolicy() *domain.OriginPolicy {
	return &domain.OriginPolicy{
		AllowedOrigins:     []string{"https://allowed.example", "http://localhost:5173"},
		CredentialsAllowed: true,
		AllowedMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:     []string{"Content-Type", "Authorization"},
		ExposedHeaders:     []string{"X-Request-ID"},
		MaxAgeSeconds:      600,
	}
}

func wantAction(t *testing.T, out *ports.StageOutput, want ports.StageAction) {
	t.Helper()
	if out == nil {
		t.Fatalf("stage output is nil, want %s", want)
	}
	if out.Action != want {
		t.Fatalf("action = %s, want %s (envelope %v)", out.Action, want, out.Envelope)
	}
}

// failingReader fails the test if anything reads it.
type failingReader struct{ t *testing.T }

func (f failingReader) Read([]byte) (int, error) {
	f.t.Error("body must not be read")
	return 0, io.EOF
}
