// Package gateway provides the public API for embedding the storefront
// gateway. This is the stable API for external consumers.
package gateway

import (
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
	"github.com/tjfontaine/storefront-gateway/internal/pkg/config"
	"github.com/tjfontaine/storefront-gateway/internal/runtime"
)

// Gateway is the storefront gateway.
// See internal/runtime.Gateway for full documentation.
type Gateway = runtime.Gateway

// Option is a functional option for configuring a Gateway.
type Option = runtime.Option

// Config is the gateway configuration.
type Config = config.Config

// Handler is a domain collaborator that receives dispatched requests.
type Handler = ports.Handler

// New creates a new Gateway with the given options.
// Example:
//
//	gw, err := gateway.New(
//	    gateway.WithFileConfig("config.yaml"),
//	    gateway.WithSQLite("./data/storefront.db"),
//	)
var New = runtime.New

// LoadConfig reads a YAML file plus STOREFRONT_ environment overrides.
var LoadConfig = config.LoadFile

// Configuration options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfig         = runtime.WithConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Storage
	WithMemoryStorage   = runtime.WithMemoryStorage
	WithSQLite          = runtime.WithSQLite
	WithPostgres        = runtime.WithPostgres
	WithStorageProvider = runtime.WithStorageProvider

	// Collaborators
	WithSignatureVerifier = runtime.WithSignatureVerifier
	WithUpstreamClient    = runtime.WithUpstreamClient

	// Advanced options
	WithLogger  = runtime.WithLogger
	WithVersion = runtime.WithVersion
)
