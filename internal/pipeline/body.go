package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
)

// Default body limits.
const (
	DefaultMaxBodyBytes    int64 = 1 << 20
	DefaultMultipartMemory int64 = 10 << 20
	readChunkSize                = 32 << 10
)

var errBodyTooLarge = errors.New("request body too large")

// BodyConfig configures body ingestion.
type BodyConfig struct {
	// WebhookRoutes are canonical paths whose bodies are captured verbatim.
	WebhookRoutes []string
	// MaxBytes bounds structured bodies.
	MaxBytes int64
	// WebhookMaxBytes bounds raw webhook bodies.
	WebhookMaxBytes int64
	// MultipartMemoryBytes is kept in memory before multipart files spill to disk.
	MultipartMemoryBytes int64
}

// BodyStage chooses exactly one of raw capture, structured parse or no body
// for each request and ingests the body accordingly.
type BodyStage struct {
	webhooks        map[string]bool
	maxBytes        int64
	webhookMaxBytes int64
	multipartMemory int64
	logger          *slog.Logger
}

// NewBodyStage creates the body ingestion stage.
func NewBodyStage(cfg BodyConfig, logger *slog.Logger) *BodyStage {
	if logger == nil {
		logger = slog.Default()
	}
	s := &BodyStage{
		webhooks:        make(map[string]bool, len(cfg.WebhookRoutes)),
		maxBytes:        cfg.MaxBytes,
		webhookMaxBytes: cfg.WebhookMaxBytes,
		multipartMemory: cfg.MultipartMemoryBytes,
		logger:          logger,
	}
	if s.maxBytes <= 0 {
		s.maxBytes = DefaultMaxBodyBytes
	}
	if s.webhookMaxBytes <= 0 {
		s.webhookMaxBytes = DefaultMaxBodyBytes
	}
	if s.multipartMemory <= 0 {
		s.multipartMemory = DefaultMultipartMemory
	}
	for _, route := range cfg.WebhookRoutes {
		s.webhooks[trimTrailingSlash(route)] = true
	}
	return s
}

// Name implements ports.Stage.
func (s *BodyStage) Name() string { return "body" }

// IsWebhookRoute reports whether path is a designated webhook route.
func (s *BodyStage) IsWebhookRoute(path string) bool {
	return s.webhooks[trimTrailingSlash(path)]
}

// Process implements ports.Stage.
func (s *BodyStage) Process(ctx context.Context, rc *domain.RequestContext) (*ports.StageOutput, error) {
	rc.IsWebhookRoute = s.IsWebhookRoute(rc.CanonicalPath)

	if rc.IsWebhookRoute {
		raw, env := s.ingest(ctx, rc, s.webhookMaxBytes)
		if env != nil {
			return ports.Reject(env), nil
		}
		// Content-Type is never consulted on webhook routes.
		rc.RawBody = raw
		rc.ParsedBody = domain.RawBodyMarker
		return ports.Continue(), nil
	}

	if !carriesBody(rc.Method) || !hasBody(rc.Request) {
		rc.ParsedBody = domain.EmptyBody
		return ports.Continue(), nil
	}

	buf, env := s.ingest(ctx, rc, s.maxBytes)
	if env != nil {
		return ports.Reject(env), nil
	}
	if len(buf) == 0 {
		rc.ParsedBody = domain.EmptyBody
		return ports.Continue(), nil
	}

	body, env := s.parse(rc.Header.Get("Content-Type"), buf)
	if env != nil {
		s.logger.DebugContext(ctx, "rejected request body",
			slog.String("request_id", rc.RequestID),
			slog.String("path", rc.CanonicalPath),
			slog.String("reason", env.Message),
		)
		return ports.Reject(env), nil
	}
	rc.ParsedBody = body
	return ports.Continue(), nil
}

// ingest buffers the whole body. The request body is replaced with
// http.NoBody afterwards so nothing downstream reads the stream twice.
func (s *BodyStage) ingest(ctx context.Context, rc *domain.RequestContext, limit int64) ([]byte, *domain.ErrorEnvelope) {
	r := rc.Request
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return []byte{}, nil
	}
	if r.ContentLength > limit {
		return nil, domain.ErrBadBody(errBodyTooLarge.Error()).WithStatus(http.StatusRequestEntityTooLarge)
	}

	buf, err := readBounded(ctx, r.Body, limit)
	_ = r.Body.Close()
	r.Body = http.NoBody

	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, errBodyTooLarge):
		return nil, domain.ErrBadBody(err.Error()).WithStatus(http.StatusRequestEntityTooLarge)
	default:
		s.logger.InfoContext(ctx, "request body read aborted",
			slog.String("request_id", rc.RequestID),
			slog.String("path", rc.CanonicalPath),
			slog.String("error", err.Error()),
		)
		return nil, domain.ErrBadBody("request body aborted").WithCause(err)
	}
}

// readBounded reads body until EOF, failing once more than limit bytes
// arrive or ctx is done. The partial buffer is dropped on failure.
func readBounded(ctx context.Context, body io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, readChunkSize)
	lr := io.LimitReader(body, limit+1)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := lr.Read(chunk)
		buf.Write(chunk[:n])
		if int64(buf.Len()) > limit {
			return nil, errBodyTooLarge
		}
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (s *BodyStage) parse(contentType string, buf []byte) (domain.Body, *domain.ErrorEnvelope) {
	if contentType == "" {
		return domain.Body{}, domain.ErrBadBody("missing Content-Type for request body").
			WithStatus(http.StatusUnsupportedMediaType)
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return domain.Body{}, domain.ErrBadBody("malformed Content-Type").
			WithStatus(http.StatusUnsupportedMediaType).WithCause(err)
	}

	switch {
	case isJSONMediaType(mediaType):
		v, err := decodeJSON(buf)
		if err != nil {
			return domain.Body{}, domain.ErrBadBody("invalid JSON body").WithCause(err).
				WithContext("detail", err.Error())
		}
		return domain.Body{Kind: domain.BodyKindJSON, JSON: v}, nil

	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(buf))
		if err != nil {
			return domain.Body{}, domain.ErrBadBody("invalid form body").WithCause(err).
				WithContext("detail", err.Error())
		}
		return domain.Body{Kind: domain.BodyKindForm, Form: values}, nil

	case mediaType == "multipart/form-data":
		boundary := params["boundary"]
		if boundary == "" {
			return domain.Body{}, domain.ErrBadBody("multipart body without boundary")
		}
		form, err := multipart.NewReader(bytes.NewReader(buf), boundary).ReadForm(s.multipartMemory)
		if err != nil {
			return domain.Body{}, domain.ErrBadBody("invalid multipart body").WithCause(err).
				WithContext("detail", err.Error())
		}
		return domain.Body{Kind: domain.BodyKindMultipart, Multipart: form}, nil

	default:
		return domain.Body{}, domain.ErrBadBody(fmt.Sprintf("unsupported Content-Type %q", mediaType)).
			WithStatus(http.StatusUnsupportedMediaType)
	}
}

// decodeJSON decodes exactly one JSON value, keeping numbers as json.Number.
func decodeJSON(buf []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func carriesBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}

func hasBody(r *http.Request) bool {
	return r != nil && r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0
}

func trimTrailingSlash(p string) string {
	if len(p) > 1 {
		return strings.TrimSuffix(p, "/")
	}
	return p
}
