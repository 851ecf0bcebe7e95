package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/storefront-gateway/internal/adapters/config/file"
	"github.com/tjfontaine/storefront-gateway/internal/runtime"
	"github.com/tjfontaine/storefront-gateway/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	bootLogger := newLogger("info")
	provider, err := file.NewProvider(configPath, bootLogger)
	if err != nil {
		return err
	}
	cfg, err := provider.Load(ctx)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	if cfg.Telemetry.Tracing {
		shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, version, os.Stderr, logger)
		if err != nil {
			return fmt.Errorf("initialize tracer: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			}
		}()
	}

	gw, err := runtime.New(
		runtime.WithConfig(cfg),
		runtime.WithLogger(logger),
		runtime.WithVersion(version),
	)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gw.Wait()
	})
	g.Go(func() error {
		// The loaded configuration is fixed; edits only produce a warning.
		if err := provider.Watch(gctx, func(path string) {
			logger.Warn("config file changed; restart the gateway to apply it", slog.String("path", path))
		}); err != nil {
			logger.Warn("config watch unavailable", slog.String("error", err.Error()))
		}
		<-gctx.Done()
		return provider.Close()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, stopping gateway")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return gw.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("gateway shutdown complete")
	return nil
}
