// Package iaf implements the Integration Adapter Framework: the per-provider
// adapter SPI, webhook verification + replay protection, polling with
// cursors, outbound action execution with idempotency and per-connection
// circuit breakers (spec §4.2).
package iaf

import (
	"context"
	"net/http"
	"time"
)

// Capabilities is the adapter SPI's get_capabilities() result.
type Capabilities struct {
	WebhookSupported          bool
	PollingSupported          bool
	OutboundActionsSupported bool
}

// WebhookEvent is the canonical event dict process_webhook() yields: a
// provider event type plus its payload, ready for SignalMapper.
type WebhookEvent struct {
	EventType string
	Payload   map[string]interface{}
}

// ProviderEvent is one event returned by poll_events(), pre-mapping.
type ProviderEvent struct {
	ID         string
	EventType  string
	OccurredAt time.Time
	Payload    map[string]interface{}
}

// Action is the adapter-facing subset of spec §3's NormalisedAction,
// decoupled from pkg/storage so pkg/iaf has no direct DB dependency
// (mirrors pkg/sin/dependencies.go's DLQEntry pattern).
type Action struct {
	ActionID       string
	TenantID       string
	ConnectionID   string
	CanonicalType  string
	Target         map[string]interface{}
	Payload        map[string]interface{}
	IdempotencyKey string
	CorrelationID  string
}

// ActionResult is execute_action()'s response.
type ActionResult struct {
	Status string // "succeeded" or "failed"; success is never reported as "completed"
	Result map[string]interface{}
	Error  string
}

// Adapter is spec §4.2's per-provider SPI. Implementations must be safe
// for concurrent use: instances are cached and shared per connection_id.
type Adapter interface {
	// ProcessWebhook extracts the provider event type and decoded payload
	// from an inbound webhook request. It receives no secret and does not
	// check the signature; HandleWebhook does that beforehand through the
	// optional SignatureVerifier. Fails with a validation *errors.AppError
	// for a malformed payload.
	ProcessWebhook(ctx context.Context, payload []byte, headers http.Header) (WebhookEvent, error)

	// PollEvents returns a finite, restartable slice of provider events
	// since cursor, plus the cursor to resume from next. Fails with
	// UPSTREAM_ERROR (retryable) or AUTH_ERROR (non-retryable).
	PollEvents(ctx context.Context, cursor string) ([]ProviderEvent, string, error)

	// ExecuteAction performs action against the provider, forwarding
	// IdempotencyKey where the provider API supports it.
	ExecuteAction(ctx context.Context, action Action) (ActionResult, error)

	// VerifyConnection performs a cheap liveness/authorization probe.
	VerifyConnection(ctx context.Context) (bool, error)

	// Capabilities reports which SPI methods this adapter supports.
	Capabilities() Capabilities
}

// ConnectionContext is what the adapter registry hands an AdapterFactory:
// everything a concrete adapter needs to act on behalf of one connection.
type ConnectionContext struct {
	ConnectionID string
	TenantID     string
	ProviderID   string
	AuthRef      string
	Secret       string // resolved by the registry when the adapter instance is built
	Client       *http.Client
}

// AdapterFactory constructs a provider's Adapter for one connection.
type AdapterFactory func(cc ConnectionContext) (Adapter, error)
