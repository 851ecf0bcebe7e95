package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
	"github.com/tjfontaine/storefront-gateway/internal/pkg/config"
	"github.com/tjfontaine/storefront-gateway/internal/telemetry"
)

// NewStagesFromConfig builds the fixed stage order: origin, alias, body.
func NewStagesFromConfig(cfg *config.Config, logger *slog.Logger) ([]ports.Stage, error) {
	alias, err := NewAliasStage(cfg.AliasRules(), cfg.Aliases.RedirectStatus, logger)
	if err != nil {
		return nil, fmt.Errorf("alias stage: %w", err)
	}

	return []ports.Stage{
		NewOriginStage(cfg.OriginPolicy(), logger),
		alias,
		NewBodyStage(BodyConfig{
			WebhookRoutes:        cfg.Webhooks.Routes,
			MaxBytes:             cfg.Body.MaxBytes,
			WebhookMaxBytes:      cfg.Webhooks.MaxBodyBytes,
			MultipartMemoryBytes: cfg.Body.MultipartMemoryBytes,
		}, logger),
	}, nil
}

// NewExecutorFromConfig creates the pipeline executor for cfg around table.
func NewExecutorFromConfig(cfg *config.Config, table DispatchTable, logger *slog.Logger, metrics *telemetry.Metrics) (*Executor, error) {
	stages, err := NewStagesFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	dispatcher, err := NewDispatcher(table, logger)
	if err != nil {
		return nil, fmt.Errorf("dispatch table: %w", err)
	}

	return NewExecutor(ExecutorConfig{
		Stages:     stages,
		Dispatcher: dispatcher,
		Translator: NewTranslator(cfg.Server.Production(), logger),
		Logger:     logger,
		Metrics:    metrics,
	})
}

// Dispatcher returns the executor's dispatch table.
func (e *Executor) Dispatcher() *Dispatcher { return e.dispatcher }
