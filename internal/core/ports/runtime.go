package ports

import (
	"context"
	"time"

	"github.com/tjfontaine/storefront-gateway/internal/pkg/config"
)

// ConfigProvider loads configuration once at startup.
// Implementations: file-based (default).
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	// Watch reports on-disk changes. Configuration is immutable for the
	// process lifetime, so implementations only notify.
	Watch(ctx context.Context, onChange func(path string)) error
	Close() error
}

// StorageProvider manages all storage operations.
// Implementations: memory (default), SQLite, PostgreSQL.
type StorageProvider interface {
	WebhookEventStore
}

// SignatureVerifier checks a webhook signature against the exact payload
// bytes received on the wire.
type SignatureVerifier interface {
	Verify(payload []byte, signatureHeader string, now time.Time) error
}
