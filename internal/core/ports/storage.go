package ports

import (
	"context"
	"errors"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
)

// ErrEventNotFound is returned when a webhook event id is unknown.
var ErrEventNotFound = errors.New("webhook event not found")

// WebhookEventStore records verified webhook events for idempotent
// acknowledgement.
type WebhookEventStore interface {
	// RecordWebhookEvent stores event unless its ID was already recorded.
	// It reports whether the event was new.
	RecordWebhookEvent(ctx context.Context, event *domain.WebhookEvent) (bool, error)

	// GetWebhookEvent retrieves an event by provider id.
	GetWebhookEvent(ctx context.Context, id string) (*domain.WebhookEvent, error)

	// ListWebhookEvents lists the most recent events first.
	ListWebhookEvents(ctx context.Context, opts ListOptions) ([]*domain.WebhookEvent, error)

	// Close closes the storage connection
	Close() error
}

// ListOptions contains pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}
