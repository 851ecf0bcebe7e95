package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/storefront-gateway/internal/pkg/config"
	"github.com/tjfontaine/storefront-gateway/internal/runtime"
)

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the dispatch table, aliases and webhook routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			return printRoutes(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

func printRoutes(ctx context.Context, out io.Writer, cfg *config.Config) error {
	gw, err := runtime.New(
		runtime.WithConfig(cfg),
		runtime.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		runtime.WithMemoryStorage(),
	)
	if err != nil {
		return err
	}
	if err := gw.Init(ctx); err != nil {
		return err
	}
	defer gw.Shutdown(ctx)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "METHOD\tPATTERN")
	if err := gw.Executor().Dispatcher().Walk(func(method, pattern string) error {
		_, err := fmt.Fprintf(tw, "%s\t%s\n", method, pattern)
		return err
	}); err != nil {
		return err
	}

	fmt.Fprintf(tw, "\nALIAS (%s)\tTARGET\n", cfg.Aliases.Mode)
	for _, rule := range cfg.AliasRules() {
		fmt.Fprintf(tw, "%s\t%s\n", rule.SourcePrefix, rule.TargetPrefix)
	}

	fmt.Fprintln(tw, "\nWEBHOOK ROUTE\tBODY")
	for _, route := range cfg.Webhooks.Routes {
		fmt.Fprintf(tw, "%s\traw\n", route)
	}
	return tw.Flush()
}
