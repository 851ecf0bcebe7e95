package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
)

// CORS header names.
const (
	headerAllowOrigin      = "Access-Control-Allow-Origin"
	headerAllowCredentials = "Access-Control-Allow-Credentials"
	headerAllowMethods     = "Access-Control-Allow-Methods"
	headerAllowHeaders     = "Access-Control-Allow-Headers"
	headerExposeHeaders    = "Access-Control-Expose-Headers"
	headerMaxAge           = "Access-Control-Max-Age"
	headerRequestHeaders   = "Access-Control-Request-Headers"
)

// OriginStage evaluates the declared origin against the origin policy. It
// runs first and never touches the request body.
type OriginStage struct {
	policy *domain.OriginPolicy
	logger *slog.Logger

	allowMethods string
	allowHeaders string
	exposed      string
	maxAge       string
}

// NewOriginStage creates the origin stage. policy must not be mutated afterwards.
func NewOriginStage(policy *domain.OriginPolicy, logger *slog.Logger) *OriginStage {
	if logger == nil {
		logger = slog.Default()
	}
	s := &OriginStage{
		policy:       policy,
		logger:       logger,
		allowMethods: strings.Join(policy.AllowedMethods, ", "),
		allowHeaders: strings.Join(policy.AllowedHeaders, ", "),
		exposed:      strings.Join(policy.ExposedHeaders, ", "),
	}
	if policy.MaxAgeSeconds > 0 {
		s.maxAge = strconv.Itoa(policy.MaxAgeSeconds)
	}
	return s
}

// Name implements ports.Stage.
func (s *OriginStage) Name() string { return "origin" }

// Process implements ports.Stage.
func (s *OriginStage) Process(ctx context.Context, rc *domain.RequestContext) (*ports.StageOutput, error) {
	preflight := rc.Method == http.MethodOptions

	if !rc.HasOrigin {
		if preflight {
			return ports.Respond(&ports.Response{
				Status: http.StatusNoContent,
				Header: http.Header{"Allow": {s.allowMethods}},
			}), nil
		}
		return ports.Continue(), nil
	}

	if !s.policy.Permits(rc.DeclaredOrigin) {
		s.logger.WarnContext(ctx, "origin blocked by CORS",
			slog.String("request_id", rc.RequestID),
			slog.String("origin", rc.DeclaredOrigin),
			slog.String("path", rc.OriginalPath),
		)
		return ports.Reject(domain.ErrCorsRejected(rc.DeclaredOrigin, s.policy.AllowedOrigins)), nil
	}

	h := rc.ResponseHeader
	h.Set(headerAllowOrigin, rc.DeclaredOrigin)
	h.Add("Vary", "Origin")
	if s.policy.CredentialsAllowed {
		h.Set(headerAllowCredentials, "true")
	}
	if s.exposed != "" {
		h.Set(headerExposeHeaders, s.exposed)
	}

	if !preflight {
		return ports.Continue(), nil
	}

	h.Set(headerAllowMethods, s.allowMethods)
	switch {
	case s.allowHeaders != "":
		h.Set(headerAllowHeaders, s.allowHeaders)
	case rc.Header.Get(headerRequestHeaders) != "":
		// No configured list: echo what the browser asked for.
		h.Set(headerAllowHeaders, rc.Header.Get(headerRequestHeaders))
		h.Add("Vary", headerRequestHeaders)
	}
	if s.maxAge != "" {
		h.Set(headerMaxAge, s.maxAge)
	}

	return ports.Respond(&ports.Response{Status: http.StatusNoContent}), nil
}
