package iaf

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/evplatform/eventplane/pkg/envelope"
)

// SignalSubmitter hands a mapped envelope to SIN's ingest pipeline. IAF
// depends only on this narrow interface, never on pkg/sin directly, so the
// two packages stay decoupled (mirrors pkg/sin's own avoidance of a
// pkg/storage dependency).
type SignalSubmitter interface {
	Submit(ctx context.Context, e *envelope.SignalEnvelope) error
}

// CursorStore persists the per-connection polling cursor (spec §4.2's
// "poller... advances a per-connection cursor").
type CursorStore interface {
	GetCursor(ctx context.Context, connectionID string) (string, error)
	SaveCursor(ctx context.Context, connectionID, cursor string) error
}

// PollableConnection is one connection the poller should visit.
type PollableConnection struct {
	ConnectionID string
	TenantID     string
	ProviderID   string
	PollInterval time.Duration
	LastPolledAt time.Time
}

// ActiveConnectionLister lists connections with polling capability enabled,
// for the poller's per-tick sweep.
type ActiveConnectionLister interface {
	ListPollable(ctx context.Context) ([]PollableConnection, error)
}

// BudgetChecker gates outbound calls against a per-connection rate/quota
// budget. Per spec §4.2/§9, budget checks fail open: an error from Allow
// is treated as "allowed" rather than blocking the call.
type BudgetChecker interface {
	Allow(ctx context.Context, connectionID string) (bool, error)
}

// ReceiptSink is the Evidence & Audit collaborator (ERIS) actions and
// processed events are best-effort, non-blocking reported to, per spec §1
// scope note that ERIS is an external collaborator.
type ReceiptSink interface {
	Record(ctx context.Context, receipt Receipt)
}

// Receipt is one evidence record for an executed action or processed event.
type Receipt struct {
	Kind         string // "action" | "webhook" | "poll"
	ConnectionID string
	TenantID     string
	ReferenceID  string
	Status       string
	OccurredAt   time.Time
}

// StoredAction is the persisted record of one outbound action execution,
// keyed for idempotency by IdempotencyKey.
type StoredAction struct {
	ActionID       string
	IdempotencyKey string
	Status         string // pending | processing | succeeded | failed
	Result         map[string]interface{}
	Error          string
}

// ActionStore persists outbound actions and resolves idempotency replay.
type ActionStore interface {
	FindByIdempotencyKey(ctx context.Context, tenantID, idempotencyKey string) (*StoredAction, error)
	Create(ctx context.Context, action Action) (*StoredAction, error)
	MarkProcessing(ctx context.Context, actionID string) error
	Complete(ctx context.Context, actionID string, result ActionResult) error
}

// extractEventTimestamp reads the provider event's own timestamp from the
// X-Event-Timestamp header (unix seconds or RFC3339), falling back to now
// when the header is absent or unparseable. The payload is not inspected.
func extractEventTimestamp(headers http.Header, payload []byte, now time.Time) (time.Time, error) {
	if v := headers.Get("X-Event-Timestamp"); v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.Unix(sec, 0).UTC(), nil
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC(), nil
		}
	}
	return now, nil
}
