package pipeline

import (
	"context"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
)

type requestContextKey struct{}

// WithRequestContext returns a context carrying rc.
func WithRequestContext(ctx context.Context, rc *domain.RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom returns the pipeline request context, if any.
func RequestContextFrom(ctx context.Context) (*domain.RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*domain.RequestContext)
	return rc, ok
}
