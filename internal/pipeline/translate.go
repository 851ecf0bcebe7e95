package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/tjfontaine/storefront-gateway/internal/api/middleware"
	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
)

// Translator writes error envelopes. It is the only place an envelope
// becomes bytes on the wire.
type Translator struct {
	production bool
	logger     *slog.Logger
}

// NewTranslator creates a translator. In production mode envelopes lose
// their context and internal messages are replaced with a generic one.
func NewTranslator(production bool, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Translator{production: production, logger: logger}
}

// Production reports whether envelopes are redacted.
func (t *Translator) Production() bool { return t.production }

type errorBody struct {
	Error *domain.ErrorEnvelope `json:"error"`
}

// Envelope converts err to an envelope. An *domain.ErrorEnvelope anywhere in
// the chain keeps its kind and status; anything else is internal.
func Envelope(err error) *domain.ErrorEnvelope {
	var env *domain.ErrorEnvelope
	if errors.As(err, &env) {
		return env
	}
	return domain.ErrInternal(err)
}

// Write logs env and writes it with the headers accumulated in rc.
func (t *Translator) Write(ctx context.Context, w http.ResponseWriter, rc *domain.RequestContext, env *domain.ErrorEnvelope) {
	attrs := []any{
		slog.String("request_id", rc.RequestID),
		slog.String("method", rc.Method),
		slog.String("path", rc.OriginalPath),
		slog.String("kind", string(env.Kind)),
		slog.Int("status", env.HTTPStatusCode()),
	}
	if rc.Rewritten() {
		attrs = append(attrs, slog.String("canonical_path", rc.CanonicalPath))
	}
	if env.Kind == domain.ErrorKindInternal {
		t.logger.ErrorContext(ctx, "request failed", append(attrs, slog.String("error", env.Error()))...)
	} else {
		t.logger.DebugContext(ctx, "request rejected", append(attrs, slog.String("message", env.Message))...)
	}

	middleware.AddLogField(ctx, "error_kind", string(env.Kind))
	middleware.AddError(ctx, env)

	out := env
	if t.production {
		out = env.Redacted()
	}

	payload, err := json.Marshal(errorBody{Error: out})
	if err != nil {
		// Context values that cannot be encoded are dropped rather than
		// losing the envelope.
		payload, _ = json.Marshal(errorBody{Error: env.Redacted()})
	}

	h := w.Header()
	applyHeaders(h, rc.ResponseHeader)
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Del("Content-Length")
	w.WriteHeader(out.HTTPStatusCode())
	_, _ = w.Write(append(payload, '\n'))
}

// applyHeaders copies stage-computed headers into dst. Vary values are
// merged; everything else replaces what the handler set.
func applyHeaders(dst, src http.Header) {
	for key, values := range src {
		if key == "Vary" {
			for _, v := range values {
				if !slices.Contains(dst.Values("Vary"), v) {
					dst.Add("Vary", v)
				}
			}
			continue
		}
		dst[key] = slices.Clone(values)
	}
}
