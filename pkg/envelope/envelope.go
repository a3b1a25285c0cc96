// Package envelope defines the canonical SignalEnvelope, DataContract and
// ProducerRegistration types shared by SIN and IAF, plus the Redis-backed
// dedupe store used to enforce at-most-once observable effect per
// signal_id (spec §3/§4.1).
package envelope

import "time"

// SignalKind is spec §3's signal_kind enum.
type SignalKind string

const (
	SignalKindEvent  SignalKind = "event"
	SignalKindMetric SignalKind = "metric"
	SignalKindLog    SignalKind = "log"
	SignalKindTrace  SignalKind = "trace"
)

// Environment is spec §3's environment enum.
type Environment string

const (
	EnvironmentDev   Environment = "dev"
	EnvironmentStage Environment = "stage"
	EnvironmentProd  Environment = "prod"
)

// Resource carries the optional repository/branch/pr_id/service_name
// addressing fields spec §3 calls out.
type Resource struct {
	Repository  string `json:"repository,omitempty"`
	Branch      string `json:"branch,omitempty"`
	PRID        string `json:"pr_id,omitempty"`
	IssueKey    string `json:"issue_key,omitempty"`
	ChannelID   string `json:"channel_id,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// SignalEnvelope is spec §3's canonical signal envelope.
type SignalEnvelope struct {
	SignalID      string                 `json:"signal_id"`
	TenantID      string                 `json:"tenant_id"`
	Environment   Environment            `json:"environment"`
	ProducerID    string                 `json:"producer_id"`
	SignalKind    SignalKind             `json:"signal_kind"`
	SignalType    string                 `json:"signal_type"`
	OccurredAt    time.Time              `json:"occurred_at"`
	IngestedAt    time.Time              `json:"ingested_at"`
	Payload       map[string]interface{} `json:"payload"`
	SchemaVersion string                 `json:"schema_version"`

	ActorID       string   `json:"actor_id,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	TraceID       string   `json:"trace_id,omitempty"`
	SpanID        string   `json:"span_id,omitempty"`
	Resource      Resource `json:"resource,omitempty"`
	SequenceNo    *int64   `json:"sequence_no,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
}

// DataContract is spec §3's DataContract, keyed by (signal_type,
// contract_version) and immutable once published.
type DataContract struct {
	SignalType      string            `json:"signal_type"`
	ContractVersion string            `json:"contract_version"`
	RequiredFields  []string          `json:"required_fields"`
	OptionalFields  []string          `json:"optional_fields"`
	FieldMappings   map[string]string `json:"field_mappings"`
	UnitConversions map[string]string `json:"unit_conversions"`
	PIIFlags        []string          `json:"pii_flags"`
	SecretsFlags    []string          `json:"secrets_flags"`
}

// MissingRequiredFields returns the required_fields absent from payload.
func (c *DataContract) MissingRequiredFields(payload map[string]interface{}) []string {
	var missing []string
	for _, field := range c.RequiredFields {
		if _, ok := payload[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

// ProducerRegistration mirrors storage.ProducerRegistration's shape for
// callers that only need the capability-check fields, avoiding a SIN →
// storage package dependency for the hot ingest path's lookups.
type ProducerRegistration struct {
	ProducerID         string
	TenantID           string
	Plane              string
	AllowedSignalKinds []SignalKind
	AllowedSignalTypes []string
	ContractVersions   map[string]string // signal_type -> version
	Status             string
}

// AllowsKind reports whether kind is in the producer's capability set.
func (p *ProducerRegistration) AllowsKind(kind SignalKind) bool {
	for _, k := range p.AllowedSignalKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// AllowsType reports whether signalType is in the producer's capability set.
func (p *ProducerRegistration) AllowsType(signalType string) bool {
	for _, t := range p.AllowedSignalTypes {
		if t == signalType {
			return true
		}
	}
	return false
}
