package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tjfontaine/storefront-gateway/internal/api/middleware"
	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
	"github.com/tjfontaine/storefront-gateway/internal/telemetry"
)

// WebhookHandler acknowledges verified payment events.
type WebhookHandler struct {
	provider string
	verifier ports.SignatureVerifier
	store    ports.WebhookEventStore
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// WebhookHandlerConfig wires a WebhookHandler.
type WebhookHandlerConfig struct {
	Provider string
	Verifier ports.SignatureVerifier
	Store    ports.WebhookEventStore
	Logger   *slog.Logger
	Metrics  *telemetry.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewWebhookHandler creates the webhook collaborator.
func NewWebhookHandler(cfg WebhookHandlerConfig) *WebhookHandler {
	h := &WebhookHandler{
		provider: cfg.Provider,
		verifier: cfg.Verifier,
		store:    cfg.Store,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
	}
	if h.provider == "" {
		h.provider = "stripe"
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type ackResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// ServeIngress implements ports.Handler. It only ever reads rc.RawBody.
func (h *WebhookHandler) ServeIngress(w http.ResponseWriter, r *http.Request, rc *domain.RequestContext) error {
	ctx := r.Context()

	if h.verifier == nil || h.store == nil {
		return fmt.Errorf("payment webhook: %w", ErrSecretNotProvided)
	}

	if err := h.verifier.Verify(rc.RawBody, r.Header.Get(SignatureHeader), h.now()); err != nil {
		h.metrics.CountWebhook("rejected")
		h.logger.WarnContext(ctx, "webhook signature verification failed",
			slog.String("request_id", rc.RequestID),
			slog.String("provider", h.provider),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, ErrSecretNotProvided) {
			return fmt.Errorf("payment webhook: %w", err)
		}
		return domain.ErrBadBody("Webhook signature verification failed").
			WithCause(err).
			WithContext("reason", err.Error())
	}

	var evt eventEnvelope
	if err := json.Unmarshal(rc.RawBody, &evt); err != nil || evt.ID == "" {
		h.metrics.CountWebhook("rejected")
		env := domain.ErrBadBody("Webhook payload is not a valid event")
		if err != nil {
			env.WithCause(err)
		}
		return env
	}

	created, err := h.store.RecordWebhookEvent(ctx, &domain.WebhookEvent{
		ID:        evt.ID,
		Type:      evt.Type,
		Provider:  h.provider,
		Payload:   json.RawMessage(rc.RawBody),
		RequestID: rc.RequestID,
	})
	if err != nil {
		return fmt.Errorf("record webhook event %s: %w", evt.ID, err)
	}

	middleware.AddLogField(ctx, "webhook_event", evt.ID)
	if created {
		h.metrics.CountWebhook("accepted")
		h.logger.InfoContext(ctx, "webhook event received",
			slog.String("request_id", rc.RequestID),
			slog.String("event_id", evt.ID),
			slog.String("event_type", evt.Type),
		)
	} else {
		h.metrics.CountWebhook("duplicate")
		h.logger.DebugContext(ctx, "duplicate webhook event",
			slog.String("request_id", rc.RequestID),
			slog.String("event_id", evt.ID),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	return json.NewEncoder(w).Encode(ackResponse{Received: true, Duplicate: !created})
}
