package domain

import (
	"encoding/json"
	"time"
)

// WebhookEvent is a verified notification from the payment provider.
type WebhookEvent struct {
	// ID is the provider's event identifier, used for idempotency.
	ID string `json:"id"`

	// Type is the provider event type, e.g. "payment_intent.succeeded".
	Type string `json:"type"`

	// Provider names the sender ("stripe").
	Provider string `json:"provider"`

	// Payload is the exact verified body.
	Payload json.RawMessage `json:"payload"`

	// RequestID is the ingress request that delivered the event.
	RequestID string `json:"request_id,omitempty"`

	ReceivedAt time.Time `json:"received_at"`
}
