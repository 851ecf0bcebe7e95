package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/storefront-gateway/internal/payment"
	"github.com/tjfontaine/storefront-gateway/internal/pkg/config"
)

func newSignCmd() *cobra.Command {
	var secret string
	cmd := &cobra.Command{
		Use:   "sign [payload-file]",
		Short: "Print a webhook signature header for a payload",
		Long: `Sign computes the signature header a payment provider would send
with the given payload, for replaying webhook deliveries locally.

The payload is read from the file argument, or stdin when omitted. The
secret defaults to payment.webhook_secret from the configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := io.Reader(cmd.InOrStdin())
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			payload, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			if secret == "" {
				cfg, err := config.LoadFile(configPath)
				if err != nil {
					return err
				}
				secret = cfg.Payment.WebhookSecret
			}
			if secret == "" {
				return payment.ErrSecretNotProvided
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", payment.SignatureHeader, payment.Sign(payload, secret, time.Now()))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "webhook signing secret")
	return cmd
}
