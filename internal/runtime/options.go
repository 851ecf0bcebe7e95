package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tjfontaine/storefront-gateway/internal/adapters/config/file"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
	"github.com/tjfontaine/storefront-gateway/internal/pkg/config"
	"github.com/tjfontaine/storefront-gateway/internal/storage/memory"
	"github.com/tjfontaine/storefront-gateway/internal/storage/sqldb"
)

// Option is a functional option for configuring a Gateway.
type Option func(*Gateway) error

// WithFileConfig loads configuration from a YAML file and watches it.
func WithFileConfig(path string) Option {
	return func(g *Gateway) error {
		provider, err := file.NewProvider(path, g.logger)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		g.config = provider
		return nil
	}
}

// WithConfig uses an already loaded configuration. Nothing is watched.
func WithConfig(cfg *config.Config) Option {
	return func(g *Gateway) error {
		if cfg == nil {
			return fmt.Errorf("config must not be nil")
		}
		g.config = staticConfig{cfg: cfg}
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(g *Gateway) error {
		g.config = provider
		return nil
	}
}

// WithMemoryStorage keeps webhook events in process memory.
func WithMemoryStorage() Option {
	return func(g *Gateway) error {
		g.storage = memory.New()
		return nil
	}
}

// WithSQLite stores webhook events in a SQLite file.
func WithSQLite(path string) Option {
	return func(g *Gateway) error {
		store, err := sqldb.NewSQLite(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		g.storage = store
		return nil
	}
}

// WithPostgres stores webhook events in PostgreSQL.
func WithPostgres(dsn string) Option {
	return func(g *Gateway) error {
		store, err := sqldb.NewPostgres(dsn)
		if err != nil {
			return fmt.Errorf("create postgres storage: %w", err)
		}
		g.storage = store
		return nil
	}
}

// WithStorageProvider sets a custom storage provider. Without one, the
// storage section of the configuration decides.
func WithStorageProvider(provider ports.StorageProvider) Option {
	return func(g *Gateway) error {
		g.storage = provider
		return nil
	}
}

// WithSignatureVerifier replaces the verifier built from payment config.
func WithSignatureVerifier(v ports.SignatureVerifier) Option {
	return func(g *Gateway) error {
		g.verifier = v
		return nil
	}
}

// WithUpstreamClient sets the HTTP client used to reach domain services.
func WithUpstreamClient(client *http.Client) Option {
	return func(g *Gateway) error {
		g.upstreamClient = client
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		g.logger = logger
		return nil
	}
}

// WithVersion sets the version reported by the root descriptor.
func WithVersion(version string) Option {
	return func(g *Gateway) error {
		g.version = version
		return nil
	}
}

type staticConfig struct {
	cfg *config.Config
}

func (s staticConfig) Load(context.Context) (*config.Config, error) { return s.cfg, nil }

func (s staticConfig) Watch(context.Context, func(string)) error { return nil }

func (s staticConfig) Close() error { return nil }
