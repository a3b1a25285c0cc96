package storage

import (
	"encoding/json"
	"time"
)

// ProducerRegistration is spec §3's ProducerRegistration.
type ProducerRegistration struct {
	ProducerID         string         `db:"producer_id"`
	TenantID           string         `db:"tenant_id"`
	Plane              string         `db:"plane"`
	AllowedSignalKinds pqStringArray  `db:"allowed_signal_kinds"`
	AllowedSignalTypes pqStringArray  `db:"allowed_signal_types"`
	ContractVersions   json.RawMessage `db:"contract_versions"`
	Status             string         `db:"status"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

// DLQEntry is spec §3's DLQEntry.
type DLQEntry struct {
	DLQID              string    `db:"dlq_id"`
	SignalID           string    `db:"signal_id"`
	TenantID           string    `db:"tenant_id"`
	ProducerID         string    `db:"producer_id"`
	SignalType         string    `db:"signal_type"`
	ErrorCode          string    `db:"error_code"`
	ErrorMessage       string    `db:"error_message"`
	RetryCount         int       `db:"retry_count"`
	OriginalPayloadRef string    `db:"original_payload_ref"`
	CreatedAt          time.Time `db:"created_at"`
}

// IntegrationConnection is spec §3's IntegrationConnection.
type IntegrationConnection struct {
	ConnectionID        string        `db:"connection_id"`
	TenantID            string        `db:"tenant_id"`
	ProviderID          string        `db:"provider_id"`
	AuthRef             string        `db:"auth_ref"`
	EnabledCapabilities pqStringArray `db:"enabled_capabilities"`
	Status              string        `db:"status"`
	PollIntervalSeconds int           `db:"poll_interval_seconds"`
	CreatedAt           time.Time     `db:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at"`
}

// WebhookRegistration is spec §3's WebhookRegistration.
type WebhookRegistration struct {
	RegistrationID   string        `db:"registration_id"`
	ConnectionID     string        `db:"connection_id"`
	SecretRef        string        `db:"secret_ref"`
	EventsSubscribed pqStringArray `db:"events_subscribed"`
	Status           string        `db:"status"`
	CreatedAt        time.Time     `db:"created_at"`
}

// PollingCursor is spec §3's PollingCursor, one row per connection.
type PollingCursor struct {
	ConnectionID   string    `db:"connection_id"`
	CursorPosition string    `db:"cursor_position"`
	LastPolledAt   time.Time `db:"last_polled_at"`
}

// NormalisedAction is spec §3's NormalisedAction.
type NormalisedAction struct {
	ActionID       string          `db:"action_id"`
	TenantID       string          `db:"tenant_id"`
	ConnectionID   string          `db:"connection_id"`
	CanonicalType  string          `db:"canonical_type"`
	Target         json.RawMessage `db:"target"`
	Payload        json.RawMessage `db:"payload"`
	IdempotencyKey string          `db:"idempotency_key"`
	CorrelationID  string          `db:"correlation_id"`
	Status         string          `db:"status"`
	Result         json.RawMessage `db:"result"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Alert is spec §3's Alert.
type Alert struct {
	AlertID        string     `db:"alert_id"`
	TenantID       string     `db:"tenant_id"`
	SourceModule   string     `db:"source_module"`
	Plane          string     `db:"plane"`
	ComponentID    string     `db:"component_id"`
	Severity       string     `db:"severity"`
	Category       string     `db:"category"`
	Summary        string     `db:"summary"`
	Labels         json.RawMessage `db:"labels"`
	StartedAt      time.Time  `db:"started_at"`
	EndedAt        *time.Time `db:"ended_at"`
	LastSeenAt     time.Time  `db:"last_seen_at"`
	DedupKey       string     `db:"dedup_key"`
	IncidentID     *string    `db:"incident_id"`
	Status         string     `db:"status"`
	SnoozedUntil   *time.Time `db:"snoozed_until"`
	AutomationHooks json.RawMessage `db:"automation_hooks"`
}

// Incident is spec §3's Incident.
type Incident struct {
	IncidentID      string        `db:"incident_id"`
	TenantID        string        `db:"tenant_id"`
	Plane           string        `db:"plane"`
	ComponentID     string        `db:"component_id"`
	Severity        string        `db:"severity"`
	OpenedAt        time.Time     `db:"opened_at"`
	MitigatedAt     *time.Time    `db:"mitigated_at"`
	ResolvedAt      *time.Time    `db:"resolved_at"`
	Status          string        `db:"status"`
	AlertIDs        pqStringArray `db:"alert_ids"`
	CorrelationKeys pqStringArray `db:"correlation_keys"`
	DependencyRefs  pqStringArray `db:"dependency_refs"`
}

// Notification is spec §3's Notification.
type Notification struct {
	NotificationID string     `db:"notification_id"`
	AlertID        string     `db:"alert_id"`
	TenantID       string     `db:"tenant_id"`
	IncidentID     *string    `db:"incident_id"`
	TargetID       string     `db:"target_id"`
	Channel        string     `db:"channel"`
	Status         string     `db:"status"`
	Attempts       int        `db:"attempts"`
	NextAttemptAt  *time.Time `db:"next_attempt_at"`
	FailureReason  string     `db:"failure_reason"`
	PolicyID       string     `db:"policy_id"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// DataContractRow is spec §3's DataContract, keyed by (signal_type,
// contract_version) and immutable once published.
type DataContractRow struct {
	SignalType      string          `db:"signal_type"`
	ContractVersion string          `db:"contract_version"`
	RequiredFields  pqStringArray   `db:"required_fields"`
	OptionalFields  pqStringArray   `db:"optional_fields"`
	FieldMappings   json.RawMessage `db:"field_mappings"`
	UnitConversions json.RawMessage `db:"unit_conversions"`
	PIIFlags        pqStringArray   `db:"pii_flags"`
	SecretsFlags    pqStringArray   `db:"secrets_flags"`
}

// TenantGovernanceRow holds one tenant's per-signal_type deny-list for
// spec §4.1 stage 4's governance check.
type TenantGovernanceRow struct {
	TenantID         string        `db:"tenant_id"`
	SignalType       string        `db:"signal_type"`
	DisallowedFields pqStringArray `db:"disallowed_fields"`
}

// EscalationStepRow is one unexecuted escalation step (step 2 or later)
// for an alert, a row of the escalation_steps table; it is not stored as a
// notification.
type EscalationStepRow struct {
	StepID        string    `db:"step_id"`
	AlertID       string    `db:"alert_id"`
	TenantID      string    `db:"tenant_id"`
	PolicyID      string    `db:"policy_id"`
	StepOrder     int       `db:"step_order"`
	NextAttemptAt time.Time `db:"next_attempt_at"`
	Dispatched    bool      `db:"dispatched"`
}

// UserPreferenceRow is one user's notification preferences.
type UserPreferenceRow struct {
	TenantID          string          `db:"tenant_id"`
	UserID            string          `db:"user_id"`
	AllowedChannels   pqStringArray   `db:"allowed_channels"`
	SeverityThreshold json.RawMessage `db:"severity_threshold"`
	QuietHoursStart   string          `db:"quiet_hours_start"`
	QuietHoursEnd     string          `db:"quiet_hours_end"`
	Timezone          string          `db:"timezone"`
}
