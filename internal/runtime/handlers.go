package runtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"time"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
	"github.com/tjfontaine/storefront-gateway/internal/payment"
	"github.com/tjfontaine/storefront-gateway/internal/pipeline"
	"github.com/tjfontaine/storefront-gateway/internal/pkg/config"
	"github.com/tjfontaine/storefront-gateway/internal/upstream"
)

// Paths served by the gateway itself.
const (
	RootPath   = "/"
	HealthPath = "/api/health"
)

// ServiceName is reported by the root descriptor.
const ServiceName = "Storefront API Gateway"

func (g *Gateway) dispatchTable(cfg *config.Config) (pipeline.DispatchTable, error) {
	table := pipeline.DispatchTable{
		Routes: []pipeline.Route{
			{Method: http.MethodGet, Path: RootPath, Handler: g.rootHandler(cfg)},
			{Method: http.MethodGet, Path: HealthPath, Handler: healthHandler(cfg)},
		},
	}

	if cfg.Telemetry.MetricsPath != "" {
		table.Routes = append(table.Routes, pipeline.Route{
			Method:  http.MethodGet,
			Path:    cfg.Telemetry.MetricsPath,
			Handler: ports.WrapHTTP(g.metrics.Handler()),
		})
	}

	webhook := payment.NewWebhookHandler(payment.WebhookHandlerConfig{
		Provider: cfg.Payment.Provider,
		Verifier: g.verifier,
		Store:    g.storage,
		Logger:   g.logger,
		Metrics:  g.metrics,
	})
	for _, route := range cfg.Webhooks.Routes {
		table.Routes = append(table.Routes, pipeline.Route{
			Method:  http.MethodPost,
			Path:    route,
			Handler: webhook,
		})
	}

	for _, rg := range cfg.Routes {
		target := rg.Upstream
		if target == "" {
			target = cfg.Domain.UpstreamURL
		}
		proxy, err := upstream.New(rg.Prefix, target, upstream.Options{
			Client: g.upstreamClient,
			Logger: g.logger,
		})
		if err != nil {
			return pipeline.DispatchTable{}, err
		}
		if !proxy.Configured() {
			g.logger.Warn("route group has no upstream; requests will fail", slog.String("prefix", rg.Prefix))
		}
		table.Groups = append(table.Groups, pipeline.RouteGroup{Prefix: rg.Prefix, Handler: proxy})
	}

	return table, nil
}

type rootDescriptor struct {
	Name      string            `json:"name"`
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

func (g *Gateway) rootHandler(cfg *config.Config) ports.Handler {
	endpoints := map[string]string{"health": HealthPath}
	for _, rg := range cfg.Routes {
		pattern := rg.Prefix + "/*"
		for _, rule := range cfg.Aliases.Rules {
			if rule.Target == rg.Prefix {
				pattern += fmt.Sprintf(" (or %s/*)", rule.Source)
			}
		}
		endpoints[path.Base(rg.Prefix)] = pattern
	}
	desc := rootDescriptor{
		Name:      ServiceName,
		Status:    "online",
		Version:   g.version,
		Endpoints: endpoints,
	}

	return ports.HandlerFunc(func(w http.ResponseWriter, r *http.Request, rc *domain.RequestContext) error {
		return writeJSON(w, http.StatusOK, desc)
	})
}

type healthResponse struct {
	Status      string      `json:"status"`
	Message     string      `json:"message"`
	Environment string      `json:"environment"`
	Timestamp   string      `json:"timestamp"`
	CORS        *healthCORS `json:"cors,omitempty"`
}

type healthCORS struct {
	AllowedOrigins []string `json:"allowedOrigins"`
	ClientURL      string   `json:"clientUrl,omitempty"`
}

func healthHandler(cfg *config.Config) ports.Handler {
	var cors *healthCORS
	if !cfg.Server.Production() {
		cors = &healthCORS{AllowedOrigins: cfg.CORS.AllowedOrigins, ClientURL: cfg.CORS.ClientURL}
	}

	return ports.HandlerFunc(func(w http.ResponseWriter, r *http.Request, rc *domain.RequestContext) error {
		return writeJSON(w, http.StatusOK, healthResponse{
			Status:      "ok",
			Message:     "Success",
			Environment: cfg.Server.Environment,
			Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
			CORS:        cors,
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(append(b, '\n'))
	return err
}
