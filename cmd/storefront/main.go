// Command storefront runs the storefront API gateway.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "storefront",
		Short: "Storefront API gateway",
		Long: `Storefront is the HTTP front door of the e-commerce backend.

Every request passes origin checking, legacy path aliasing and body
ingestion before it is dispatched to a domain service or the payment
webhook. Failures are returned as a uniform JSON error envelope.

Configuration is read from config.yaml (see --config) and STOREFRONT_
environment variables, e.g. STOREFRONT_SERVER__PORT=8080.`,
		SilenceUsage: true,
		Version:      version,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "config file")

	root.AddCommand(newServeCmd(), newRoutesCmd(), newSignCmd())
	return root
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
