// Package runtime assembles the storefront gateway: configuration, storage,
// the ingress pipeline and the HTTP server lifecycle.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apimw "github.com/tjfontaine/storefront-gateway/internal/api/middleware"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
	"github.com/tjfontaine/storefront-gateway/internal/payment"
	"github.com/tjfontaine/storefront-gateway/internal/pipeline"
	"github.com/tjfontaine/storefront-gateway/internal/pkg/config"
	"github.com/tjfontaine/storefront-gateway/internal/storage"
	"github.com/tjfontaine/storefront-gateway/internal/telemetry"
)

// DefaultVersion is reported by the root descriptor when none is set.
const DefaultVersion = "dev"

// Gateway is the storefront API gateway. It can be embedded in a larger
// application (Handler) or run standalone (Start/Shutdown).
type Gateway struct {
	// Dependencies (injected via options)
	config         ports.ConfigProvider
	storage        ports.StorageProvider
	verifier       ports.SignatureVerifier
	upstreamClient *http.Client
	logger         *slog.Logger
	version        string

	// Built by Init
	cfg      *config.Config
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	executor *pipeline.Executor
	handler  http.Handler

	server   *http.Server
	listener net.Listener
	serveErr chan error

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates a Gateway. A config provider is required.
func New(opts ...Option) (*Gateway, error) {
	gw := &Gateway{
		logger:  slog.Default(),
		version: DefaultVersion,
	}

	for _, opt := range opts {
		if err := opt(gw); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if gw.config == nil {
		return nil, errors.New("config provider required (use WithFileConfig or WithConfig)")
	}
	return gw, nil
}

// Init loads configuration and builds the pipeline. It is called by Start
// and may be called earlier to obtain Handler. Any misconfiguration is
// returned here, before a socket is opened.
func (g *Gateway) Init(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.init(ctx)
}

func (g *Gateway) init(ctx context.Context) error {
	if g.handler != nil {
		return nil
	}

	cfg, err := g.config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	for _, key := range cfg.MissingSecrets() {
		g.logger.WarnContext(ctx, "configuration value not set", slog.String("key", key))
	}

	if g.storage == nil {
		store, err := storage.Open(cfg.Storage)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		g.storage = store
	}

	if g.verifier == nil {
		g.verifier = payment.NewStripeVerifier(cfg.Payment.WebhookSecret, cfg.Payment.Tolerance)
	}

	g.registry = prometheus.NewRegistry()
	g.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	g.metrics, err = telemetry.NewMetrics(g.registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	table, err := g.dispatchTable(cfg)
	if err != nil {
		return fmt.Errorf("build dispatch table: %w", err)
	}

	g.executor, err = pipeline.NewExecutorFromConfig(cfg, table, g.logger, g.metrics)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	g.handler = chi.Chain(
		apimw.RequestIDMiddleware,
		apimw.LoggingMiddleware(g.logger),
		apimw.TimeoutMiddleware(cfg.Server.RequestTimeout),
		otelhttp.NewMiddleware(cfg.Telemetry.ServiceName),
	).Handler(g.executor)

	g.cfg = cfg
	g.logger.InfoContext(ctx, "pipeline ready",
		slog.Any("stages", g.executor.StageNames()),
		slog.Any("prefixes", g.executor.Dispatcher().KnownPrefixes()),
		slog.String("alias_mode", cfg.Aliases.Mode),
		slog.Bool("production", cfg.Server.Production()),
	)
	return nil
}

// Handler returns the full ingress handler. Init must have succeeded.
func (g *Gateway) Handler() http.Handler {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.handler
}

// Executor returns the ingress pipeline. Init must have succeeded.
func (g *Gateway) Executor() *pipeline.Executor {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.executor
}

// Config returns the loaded configuration. Init must have succeeded.
func (g *Gateway) Config() *config.Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// Start initializes the gateway and begins serving on cfg.Server.Port.
func (g *Gateway) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.server != nil {
		return errors.New("gateway already started")
	}
	if err := g.init(ctx); err != nil {
		return err
	}

	g.ctx, g.cancel = context.WithCancel(context.WithoutCancel(ctx))

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", g.cfg.Server.Port))
	if err != nil {
		g.cancel()
		return fmt.Errorf("listen: %w", err)
	}
	g.listener = ln

	g.server = &http.Server{
		Handler:      g.handler,
		ReadTimeout:  g.cfg.Server.ReadTimeout,
		WriteTimeout: g.cfg.Server.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(g.logger.Handler(), slog.LevelError),
	}

	g.serveErr = make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))
		err := g.server.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			g.logger.Error("server error", slog.String("error", err.Error()))
		}
		g.serveErr <- err
	}()

	if err := g.config.Watch(g.ctx, func(path string) {
		g.logger.Warn("configuration is fixed for the process lifetime; restart to apply changes",
			slog.String("path", path))
	}); err != nil {
		g.logger.Warn("config watch unavailable", slog.String("error", err.Error()))
	}

	return nil
}

// Addr returns the listening address once started.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Wait blocks until the server stops and returns its terminal error.
func (g *Gateway) Wait() error {
	g.mu.Lock()
	ch := g.serveErr
	g.mu.Unlock()
	if ch == nil {
		return nil
	}
	err := <-ch
	ch <- err
	return err
}

// Shutdown gracefully stops the server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("shutting down gateway")

	if g.cancel != nil {
		g.cancel()
	}

	var errs []error
	if g.server != nil {
		if err := g.server.Shutdown(ctx); err != nil {
			g.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if g.storage != nil {
		if err := g.storage.Close(); err != nil {
			g.logger.Error("failed to close storage", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := g.config.Close(); err != nil {
		g.logger.Error("failed to close config", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	g.logger.Info("gateway shutdown complete")
	return errors.Join(errs...)
}
