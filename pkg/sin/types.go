// Package sin implements Signal Ingestion & Normalization: the per-envelope
// pipeline described in spec §4.1, producing an {accepted, rejected, dlq}
// result per signal with at-least-once downstream delivery and at-most-once
// observable effect via signal_id deduplication.
package sin

import (
	"context"

	"github.com/evplatform/eventplane/pkg/envelope"
)

// ResultStatus is one outcome of processing a single envelope.
type ResultStatus string

const (
	ResultAccepted ResultStatus = "accepted"
	ResultRejected ResultStatus = "rejected"
	ResultDLQ      ResultStatus = "dlq"
)

// IngestResult is the per-envelope outcome of Ingest, in input order.
type IngestResult struct {
	SignalID string       `json:"signal_id"`
	Status   ResultStatus `json:"status"`
	ErrorCode string      `json:"error_code,omitempty"`
	Message   string      `json:"message,omitempty"`
	DLQID     string      `json:"dlq_id,omitempty"`
	Warnings  []string    `json:"warnings,omitempty"`
	Duplicate bool        `json:"duplicate,omitempty"`
}

// RoutingClass is one of spec §4.1 stage 8's fan-out destinations.
type RoutingClass string

const (
	RoutingRealtimeDetection RoutingClass = "realtime_detection"
	RoutingAnalyticsStore    RoutingClass = "analytics_store"
	RoutingEvidenceStore     RoutingClass = "evidence_store"
)

// RoutingRule maps (signal_kind, signal_type, labels) to the routing
// classes a signal belongs to; a signal may match multiple rules.
type RoutingRule struct {
	SignalKind envelope.SignalKind
	SignalType string // empty matches any
	LabelKey   string // empty means unconditional on labels
	LabelValue string
	Classes    []RoutingClass
}

func (r RoutingRule) matches(e *envelope.SignalEnvelope) bool {
	if r.SignalKind != "" && r.SignalKind != e.SignalKind {
		return false
	}
	if r.SignalType != "" && r.SignalType != e.SignalType {
		return false
	}
	if r.LabelKey != "" {
		v, ok := e.Payload[r.LabelKey]
		if !ok || v != r.LabelValue {
			return false
		}
	}
	return true
}

// Consumer receives envelopes for one routing class and tenant.
type Consumer interface {
	Deliver(ctx context.Context, class RoutingClass, tenantID string, e *envelope.SignalEnvelope) error
}
