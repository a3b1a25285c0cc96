package sin

import (
	"context"

	"github.com/evplatform/eventplane/pkg/envelope"
)

// ProducerStore resolves a producer's capability set (spec §4.1 stage 2).
type ProducerStore interface {
	Get(ctx context.Context, producerID string) (*envelope.ProducerRegistration, error)
}

// ContractStore resolves a (signal_type, schema_version) data contract
// (spec §4.1 stage 3/7).
type ContractStore interface {
	Get(ctx context.Context, signalType, schemaVersion string) (*envelope.DataContract, error)
}

// RetryCounter tracks retryable rejection counts per signal_id within a
// window, backing spec §4.1's DLQ policy: "(a) the same signal_id has been
// rejected with a retryable error code at least N times... within the
// retry window".
type RetryCounter interface {
	Increment(ctx context.Context, signalID string) (count int, err error)
}

// DLQSink persists a DLQEntry when an envelope exhausts retries or
// fan-out fails past its attempt limits.
type DLQSink interface {
	Put(ctx context.Context, entry DLQEntry) error
}

// DLQEntry is the subset of storage.DLQEntry the pipeline needs to create,
// decoupled from the storage package so pkg/sin has no direct DB dependency.
type DLQEntry struct {
	DLQID              string
	SignalID           string
	TenantID           string
	ProducerID         string
	SignalType         string
	ErrorCode          string
	ErrorMessage       string
	RetryCount         int
	OriginalPayloadRef string
}

// SequenceChecker is the advisory ordering check of spec §4.1 stage 6.
type SequenceChecker interface {
	CheckAndAdvance(ctx context.Context, producerID, signalType string, seq int64) (outOfOrder bool, err error)
}

// Dedupe is the spec §4.1 stage 5/10 dedup store.
type Dedupe interface {
	Seen(ctx context.Context, tenantID, signalID string) (bool, error)
	MarkProcessed(ctx context.Context, tenantID, signalID string) error
}
