package config

import (
	"errors"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. Nested keys use "__",
// e.g. STOREFRONT_CORS__CLIENT_URL.
const EnvPrefix = "STOREFRONT_"

// DefaultPath is the config file loaded when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig       `koanf:"server"`
	CORS      CORSConfig         `koanf:"cors"`
	Aliases   AliasConfig        `koanf:"aliases"`
	Webhooks  WebhookConfig      `koanf:"webhooks"`
	Body      BodyConfig         `koanf:"body"`
	Routes    []RouteGroupConfig `koanf:"routes" validate:"dive"`
	Domain    DomainConfig       `koanf:"domain"`
	Payment   PaymentConfig      `koanf:"payment"`
	Storage   StorageConfig      `koanf:"storage"`
	Telemetry TelemetryConfig    `koanf:"telemetry"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"gt=0,lt=65536"`
	Environment     string        `koanf:"environment" validate:"required"`
	LogLevel        string        `koanf:"log_level" validate:"oneof=debug info warn error"`
	RequestTimeout  time.Duration `koanf:"request_timeout" validate:"gt=0"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// Production reports whether error messages must be redacted.
func (s ServerConfig) Production() bool {
	return strings.EqualFold(s.Environment, "production")
}

// CORSConfig is the raw form of the origin policy.
type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	ClientURL        string   `koanf:"client_url"` // appended to AllowedOrigins when set
	AllowCredentials bool     `koanf:"allow_credentials"`
	AllowedMethods   []string `koanf:"allowed_methods" validate:"min=1,dive,oneof=GET HEAD POST PUT PATCH DELETE OPTIONS"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	ExposedHeaders   []string `koanf:"exposed_headers"`
	MaxAge           int      `koanf:"max_age" validate:"gte=0"`
}

type AliasConfig struct {
	Mode           string            `koanf:"mode" validate:"oneof=transparent redirect"`
	RedirectStatus int               `koanf:"redirect_status" validate:"oneof=301 308"`
	Rules          []AliasRuleConfig `koanf:"rules" validate:"dive"`
}

type AliasRuleConfig struct {
	Source string `koanf:"source" validate:"required,startswith=/"`
	Target string `koanf:"target" validate:"required,startswith=/"`
}

type WebhookConfig struct {
	Routes       []string `koanf:"routes" validate:"dive,startswith=/"`
	MaxBodyBytes int64    `koanf:"max_body_bytes" validate:"gt=0"`
}

type BodyConfig struct {
	MaxBytes             int64 `koanf:"max_bytes" validate:"gt=0"`
	MultipartMemoryBytes int64 `koanf:"multipart_memory_bytes" validate:"gt=0"`
}

// RouteGroupConfig registers a domain collaborator under a path prefix.
type RouteGroupConfig struct {
	Prefix   string `koanf:"prefix" validate:"required,startswith=/"`
	Upstream string `koanf:"upstream" validate:"omitempty,url"` // Optional: overrides domain.upstream_url
}

type DomainConfig struct {
	UpstreamURL string `koanf:"upstream_url" validate:"omitempty,url"`
}

type PaymentConfig struct {
	Provider      string        `koanf:"provider" validate:"oneof=stripe"`
	WebhookSecret string        `koanf:"webhook_secret"`
	Tolerance     time.Duration `koanf:"tolerance" validate:"gte=0"`
}

type StorageConfig struct {
	Type   string       `koanf:"type" validate:"oneof=memory sqlite postgres"`
	SQLite SQLiteConfig `koanf:"sqlite"`
	// Database is the generic database configuration for postgres
	Database DatabaseConfig `koanf:"database"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type DatabaseConfig struct {
	DSN string `koanf:"dsn"` // Data source name / connection string
}

type TelemetryConfig struct {
	ServiceName string `koanf:"service_name"`
	Tracing     bool   `koanf:"tracing"`
	MetricsPath string `koanf:"metrics_path" validate:"omitempty,startswith=/"` // empty disables metrics
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads DefaultPath (optional) and environment overrides.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads path (a missing file is not an error), applies
// STOREFRONT_ environment overrides, fills defaults and validates.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			// File not found is OK, we'll use env vars
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.applyListDefaults()
	cfg.expandEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                 5000,
		"server.environment":          "development",
		"server.log_level":            "info",
		"server.request_timeout":      "30s",
		"server.read_timeout":         "30s",
		"server.write_timeout":        "30s",
		"server.shutdown_timeout":     "30s",
		"cors.allow_credentials":      true,
		"cors.max_age":                86400,
		"aliases.mode":                "transparent",
		"aliases.redirect_status":     308,
		"webhooks.max_body_bytes":     1 << 20,
		"body.max_bytes":              1 << 20,
		"body.multipart_memory_bytes": 10 << 20,
		"payment.provider":            "stripe",
		"payment.tolerance":           "5m",
		"storage.type":                "memory",
		"storage.sqlite.path":         "./data/storefront.db",
		"telemetry.service_name":      "storefront-gateway",
		"telemetry.metrics_path":      "/metrics",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
}

// applyListDefaults fills list settings that were not configured at all.
func (c *Config) applyListDefaults() {
	if c.CORS.AllowedOrigins == nil {
		c.CORS.AllowedOrigins = []string{
			"http://localhost:3000",
			"http://localhost:5173",
			"https://e-commerce-admin-six-vert.vercel.app",
		}
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
	}
	if c.CORS.AllowedHeaders == nil {
		c.CORS.AllowedHeaders = []string{
			"Content-Type",
			"Authorization",
			"X-Requested-With",
			"Accept",
			"Origin",
			"x-clerk-auth-reason",
			"x-clerk-auth-message",
		}
	}
	if c.CORS.ExposedHeaders == nil {
		c.CORS.ExposedHeaders = []string{"X-Request-ID"}
	}
	if c.Aliases.Rules == nil {
		c.Aliases.Rules = []AliasRuleConfig{{Source: "/admin", Target: "/api/admin"}}
	}
	if c.Webhooks.Routes == nil {
		c.Webhooks.Routes = []string{"/api/payment/webhook"}
	}
	if c.Routes == nil {
		for _, prefix := range []string{
			"/api/admin",
			"/api/users",
			"/api/orders",
			"/api/reviews",
			"/api/products",
			"/api/cart",
			"/api/payment",
		} {
			c.Routes = append(c.Routes, RouteGroupConfig{Prefix: prefix})
		}
	}
}

// expandEnv substitutes ${VAR} references in secrets and URLs.
func (c *Config) expandEnv() {
	c.CORS.ClientURL = substituteEnvVars(c.CORS.ClientURL)
	c.Domain.UpstreamURL = substituteEnvVars(c.Domain.UpstreamURL)
	c.Payment.WebhookSecret = substituteEnvVars(c.Payment.WebhookSecret)
	c.Storage.Database.DSN = substituteEnvVars(c.Storage.Database.DSN)
	for i := range c.Routes {
		c.Routes[i].Upstream = substituteEnvVars(c.Routes[i].Upstream)
	}
	for i := range c.CORS.AllowedOrigins {
		c.CORS.AllowedOrigins[i] = substituteEnvVars(c.CORS.AllowedOrigins[i])
	}
}

// normalize trims whitespace and trailing slashes so prefixes compare
// reliably, and drops blank allow-list entries.
func (c *Config) normalize() {
	origins := make([]string, 0, len(c.CORS.AllowedOrigins)+1)
	for _, o := range append(c.CORS.AllowedOrigins, c.CORS.ClientURL) {
		o = strings.TrimSuffix(strings.TrimSpace(o), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	c.CORS.AllowedOrigins = origins

	for i := range c.CORS.AllowedMethods {
		c.CORS.AllowedMethods[i] = strings.ToUpper(strings.TrimSpace(c.CORS.AllowedMethods[i]))
	}
	for i := range c.Aliases.Rules {
		c.Aliases.Rules[i].Source = trimPrefixPath(c.Aliases.Rules[i].Source)
		c.Aliases.Rules[i].Target = trimPrefixPath(c.Aliases.Rules[i].Target)
	}
	for i := range c.Routes {
		c.Routes[i].Prefix = trimPrefixPath(c.Routes[i].Prefix)
	}
	for i := range c.Webhooks.Routes {
		c.Webhooks.Routes[i] = trimPrefixPath(c.Webhooks.Routes[i])
	}
}

func trimPrefixPath(p string) string {
	p = strings.TrimSpace(p)
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
