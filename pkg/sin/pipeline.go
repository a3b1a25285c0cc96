package sin

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/envelope"
	"github.com/evplatform/eventplane/pkg/metrics"
)

// MaxBatchSize is spec §4.1's ingest() batch cap: "≤ batch cap, e.g. 1000".
const MaxBatchSize = 1000

// defaultRetryThreshold is spec §4.1's DLQ policy default N ("default 3, 5
// in tests"); callers needing the test value construct a Pipeline with
// RetryThreshold explicitly set.
const defaultRetryThreshold = 3

// defaultFanOutAttempts bounds per-class fan-out retries before a routing
// class is considered failed (spec §4.1 stage 9).
const defaultFanOutAttempts = 3

// Pipeline wires together the independently-testable stage functions in
// this package into the per-envelope processing spec §4.1 describes, and
// implements the batch Ingest operation.
type Pipeline struct {
	Producers  ProducerStore
	Contracts  ContractStore
	Dedupe     Dedupe
	Sequence   SequenceChecker
	Retries    RetryCounter
	DLQ        DLQSink
	Consumer   Consumer
	Governance GovernanceStore
	Rules      []RoutingRule
	Logger     *logrus.Logger

	// RetryThreshold is the N in spec §4.1's DLQ policy (a): the same
	// signal_id must be rejected with a retryable code at least N times
	// before it is DLQ'd. Zero means defaultRetryThreshold.
	RetryThreshold int

	// FanOutAttempts bounds per-routing-class delivery retries (spec §4.1
	// stage 9). Zero means defaultFanOutAttempts.
	FanOutAttempts int

	// Now is overridable for deterministic tests; nil means time.Now.
	Now func() time.Time
}

// GovernanceStore resolves a tenant's disallowed-field deny-list for
// spec §4.1 stage 4.
type GovernanceStore interface {
	DisallowedFields(ctx context.Context, tenantID, signalType string) ([]string, error)
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *Pipeline) retryThreshold() int {
	if p.RetryThreshold > 0 {
		return p.RetryThreshold
	}
	return defaultRetryThreshold
}

func (p *Pipeline) fanOutAttempts() int {
	if p.FanOutAttempts > 0 {
		return p.FanOutAttempts
	}
	return defaultFanOutAttempts
}

// Ingest processes batch under tenantID, returning one IngestResult per
// envelope in input order (spec §4.1's ingest operation). Each envelope is
// processed independently: a failure on one never blocks its peers.
func (p *Pipeline) Ingest(ctx context.Context, batch []*envelope.SignalEnvelope, tenantID string) []IngestResult {
	results := make([]IngestResult, len(batch))
	for i, e := range batch {
		timer := metrics.NewTimer()
		results[i] = p.ingestOne(ctx, e, tenantID)
		timer.RecordSignalProcessing()
		metrics.RecordSignalIngested(string(results[i].Status))
	}
	return results
}

// ingestOne runs the ten pipeline stages of spec §4.1 against a single
// envelope, returning its terminal IngestResult. It never panics or
// returns an error to the caller — every failure is captured in the
// result so Ingest can continue with the next envelope.
func (p *Pipeline) ingestOne(ctx context.Context, e *envelope.SignalEnvelope, tenantID string) IngestResult {
	result := IngestResult{SignalID: e.SignalID}

	// Stage 1: authenticity & tenant isolation.
	if e.TenantID != tenantID {
		return p.reject(result, apperrors.NewTenantIsolationViolation(tenantID))
	}

	// Stage 2: producer check.
	producer, err := p.Producers.Get(ctx, e.ProducerID)
	if err != nil {
		return p.reject(result, apperrors.NewProducerNotRegistered(e.ProducerID))
	}
	if !producer.AllowsKind(e.SignalKind) {
		return p.reject(result, apperrors.NewSignalKindNotAllowed(e.ProducerID, string(e.SignalKind)))
	}
	if !producer.AllowsType(e.SignalType) {
		return p.reject(result, apperrors.NewSignalTypeNotAllowed(e.ProducerID, e.SignalType))
	}

	// Stage 3: contract validation.
	schemaVersion := producer.ContractVersions[e.SignalType]
	if schemaVersion == "" {
		schemaVersion = e.SchemaVersion
	}
	contract, err := p.Contracts.Get(ctx, e.SignalType, schemaVersion)
	if err != nil {
		return p.reject(result, apperrors.NewSchemaViolation(e.SignalType, []string{"no contract published"}))
	}
	if missing := contract.MissingRequiredFields(e.Payload); len(missing) > 0 {
		return p.rejectRetryable(ctx, result, e, apperrors.NewSchemaViolation(e.SignalType, missing))
	}

	// Stage 4: governance filter.
	var disallowed []string
	if p.Governance != nil {
		disallowed, err = p.Governance.DisallowedFields(ctx, tenantID, e.SignalType)
		if err != nil {
			p.logWarn(e, "governance lookup failed, proceeding with empty deny-list", err)
		}
	}
	if field, warnings := applyGovernance(e, contract, disallowed); field != "" {
		return p.rejectRetryable(ctx, result, e, apperrors.NewGovernanceViolation(field))
	} else {
		result.Warnings = append(result.Warnings, warnings...)
	}

	// Stage 5: deduplication.
	seen, err := p.Dedupe.Seen(ctx, tenantID, e.SignalID)
	if err != nil {
		p.logWarn(e, "dedupe lookup failed, proceeding as unseen", err)
	}
	if seen {
		result.Status = ResultRejected
		result.ErrorCode = string(apperrors.ErrorTypeDuplicate)
		result.Message = "duplicate: signal_id already processed within dedup window"
		result.Duplicate = true
		return result
	}

	// Stage 6: ordering check (advisory).
	if e.SequenceNo != nil && p.Sequence != nil {
		outOfOrder, err := p.Sequence.CheckAndAdvance(ctx, e.ProducerID, e.SignalType, *e.SequenceNo)
		if err != nil {
			p.logWarn(e, "sequence check failed", err)
		} else if outOfOrder {
			result.Warnings = append(result.Warnings, "out_of_order")
		}
	}

	// Stage 7: normalization.
	normalize(e, contract, p.now())

	// Stage 8: routing classification.
	classes := classify(p.Rules, e)

	// Stage 9: fan-out.
	failedClasses := fanOut(ctx, p.Consumer, classes, tenantID, e, p.fanOutAttempts())
	if len(failedClasses) > 0 {
		return p.dlq(ctx, e, tenantID, apperrors.ErrorTypeDownstreamFailure,
			"fan-out exhausted retries for routing classes", len(failedClasses))
	}

	// Stage 10: mark processed.
	if err := p.Dedupe.MarkProcessed(ctx, tenantID, e.SignalID); err != nil {
		p.logWarn(e, "failed to mark signal processed in dedupe store", err)
	}

	result.Status = ResultAccepted
	result.Warnings = append(result.Warnings, e.Warnings...)
	return result
}

// reject records a non-retryable rejection; these never count toward the
// retry threshold or reach the DLQ (spec §4.1: "Validation errors are
// never retried internally within one call").
func (p *Pipeline) reject(result IngestResult, err *apperrors.AppError) IngestResult {
	result.Status = ResultRejected
	result.ErrorCode = string(err.Type)
	result.Message = err.Message
	return result
}

// rejectRetryable records a rejection that counts toward spec §4.1's DLQ
// policy (a): SCHEMA_VIOLATION and GOVERNANCE_VIOLATION become DLQ'd once
// the same signal_id has been rejected by either of them RetryThreshold
// times (the counter is per signal_id, not per error code).
func (p *Pipeline) rejectRetryable(ctx context.Context, result IngestResult, e *envelope.SignalEnvelope, err *apperrors.AppError) IngestResult {
	count := 1
	if p.Retries != nil {
		var cerr error
		count, cerr = p.Retries.Increment(ctx, e.SignalID)
		if cerr != nil {
			p.logWarn(e, "retry counter increment failed", cerr)
		}
	}
	if count >= p.retryThreshold() {
		return p.dlq(ctx, e, e.TenantID, err.Type, err.Message, count)
	}
	return p.reject(result, err)
}

// dlq persists a DLQEntry and returns the dlq IngestResult, per spec
// §4.1's DLQ policy.
func (p *Pipeline) dlq(ctx context.Context, e *envelope.SignalEnvelope, tenantID string, errType apperrors.ErrorType, message string, retryCount int) IngestResult {
	dlqID := uuid.NewString()
	entry := DLQEntry{
		DLQID:        dlqID,
		SignalID:     e.SignalID,
		TenantID:     tenantID,
		ProducerID:   e.ProducerID,
		SignalType:   e.SignalType,
		ErrorCode:    string(errType),
		ErrorMessage: message,
		RetryCount:   retryCount,
	}
	if p.DLQ != nil {
		if err := p.DLQ.Put(ctx, entry); err != nil {
			p.logWarn(e, "failed to persist DLQ entry", err)
		}
	}
	return IngestResult{
		SignalID:  e.SignalID,
		Status:    ResultDLQ,
		ErrorCode: string(errType),
		Message:   message,
		DLQID:     dlqID,
	}
}

func (p *Pipeline) logWarn(e *envelope.SignalEnvelope, msg string, err error) {
	if p.Logger == nil {
		return
	}
	p.Logger.WithFields(logrus.Fields{
		"signal_id":   e.SignalID,
		"tenant_id":   e.TenantID,
		"signal_type": e.SignalType,
		"error":       err.Error(),
	}).Warn(msg)
}

// Summary aggregates a batch of IngestResults for the §6 ingress response
// shape: {total, accepted, rejected, dlq}.
type Summary struct {
	Total    int `json:"total"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	DLQ      int `json:"dlq"`
}

// Summarize computes a Summary over results.
func Summarize(results []IngestResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case ResultAccepted:
			s.Accepted++
		case ResultRejected:
			s.Rejected++
		case ResultDLQ:
			s.DLQ++
		}
	}
	return s
}
