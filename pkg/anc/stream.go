package anc

import (
	"context"
	"sync"
	"time"
)

// StreamEvent is one event delivered over the alert/incident stream (spec
// §4.3's "filterable event stream"): alert.created, alert.updated,
// alert.acknowledged, alert.resolved, alert.snoozed, alert.unsnoozed,
// incident.opened, incident.correlated, incident.mitigated,
// incident.resolved, plus the broker's own heartbeat events.
type StreamEvent struct {
	Type        string      `json:"event_type"`
	TenantID    string      `json:"tenant_id,omitempty"`
	ComponentID string      `json:"component_id,omitempty"`
	Category    string      `json:"category,omitempty"`
	Severity    string      `json:"severity,omitempty"`
	AlertID     string      `json:"alert_id,omitempty"`
	IncidentID  string      `json:"incident_id,omitempty"`
	OccurredAt  time.Time   `json:"timestamp"`
	Payload     interface{} `json:"alert,omitempty"`
}

// StreamFilter narrows a subscription to events matching every non-empty
// field (empty/nil fields match anything).
type StreamFilter struct {
	TenantIDs    []string
	ComponentIDs []string
	Categories   []string
	Severities   []string
	EventTypes   []string
}

func (f StreamFilter) matches(e StreamEvent) bool {
	return matchesAny(f.TenantIDs, e.TenantID) &&
		matchesAny(f.ComponentIDs, e.ComponentID) &&
		matchesAny(f.Categories, e.Category) &&
		matchesAny(f.Severities, e.Severity) &&
		matchesAny(f.EventTypes, e.Type)
}

func matchesAny(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}

// subscriber is one bounded, drop-oldest event queue for a stream
// consumer (spec §4.3: a slow consumer must not block publishers or other
// subscribers).
type subscriber struct {
	filter StreamFilter
	events chan StreamEvent
	done   chan struct{}
}

// Broker fans alert/incident lifecycle events out to filtered subscribers,
// per alert_id FIFO, with a bounded per-subscriber queue and periodic
// heartbeats for idle consumers (spec §4.3's event stream).
type Broker struct {
	mu            sync.Mutex
	subscribers   map[*subscriber]struct{}
	queueSize     int
	heartbeatEach time.Duration
}

// NewBroker constructs a Broker with the given per-subscriber queue depth
// and heartbeat interval (0 queueSize defaults to 64, 0 heartbeat defaults
// to 30s).
func NewBroker(queueSize int, heartbeat time.Duration) *Broker {
	if queueSize <= 0 {
		queueSize = 64
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Broker{
		subscribers:   map[*subscriber]struct{}{},
		queueSize:     queueSize,
		heartbeatEach: heartbeat,
	}
}

// Subscribe registers filter and returns a channel of matching events
// (heartbeat events included) and an unsubscribe func. Cancelling ctx or
// calling the unsubscribe func ends the subscription and its heartbeats;
// the unsubscribe func may be called again after that. The events channel
// itself is never closed.
func (b *Broker) Subscribe(ctx context.Context, filter StreamFilter) (<-chan StreamEvent, func()) {
	sub := &subscriber{
		filter: filter,
		events: make(chan StreamEvent, b.queueSize),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, sub)
			b.mu.Unlock()
			close(sub.done)
		})
	}

	go b.heartbeat(ctx, sub)

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-sub.done:
		}
	}()

	return sub.events, unsubscribe
}

func (b *Broker) heartbeat(ctx context.Context, sub *subscriber) {
	ticker := time.NewTicker(b.heartbeatEach)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case <-ticker.C:
			b.deliver(sub, StreamEvent{Type: "heartbeat", OccurredAt: time.Now()})
		}
	}
}

// Publish delivers event to every subscriber whose filter matches it.
// Delivery is drop-oldest: a full subscriber queue has its oldest event
// evicted to make room, so a slow consumer never blocks Publish.
func (b *Broker) Publish(event StreamEvent) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.filter.matches(event) {
			b.deliver(sub, event)
		}
	}
}

func (b *Broker) deliver(sub *subscriber, event StreamEvent) {
	select {
	case sub.events <- event:
	default:
		select {
		case <-sub.events:
		default:
		}
		select {
		case sub.events <- event:
		default:
		}
	}
}
