// Package anc implements the Alerting & Notification Core: alert
// ingestion and dedup, correlation into incidents, fatigue controls,
// routing, multi-step escalation, notification dispatch with retry and
// fallback, lifecycle transitions and a filterable event stream (spec
// §4.3).
package anc

import (
	"context"
	"time"
)

// Alert is the subset of storage.Alert the core operates on, kept
// decoupled from pkg/storage the same way pkg/sin and pkg/iaf are.
type Alert struct {
	AlertID         string                 `json:"alert_id"`
	TenantID        string                 `json:"tenant_id"`
	SourceModule    string                 `json:"source_module"`
	Plane           string                 `json:"plane,omitempty"`
	ComponentID     string                 `json:"component_id"`
	Severity        string                 `json:"severity"`
	Category        string                 `json:"category"`
	Summary         string                 `json:"summary"`
	Labels          map[string]string      `json:"labels,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	EndedAt         *time.Time             `json:"ended_at,omitempty"`
	LastSeenAt      time.Time              `json:"last_seen_at"`
	DedupKey        string                 `json:"dedup_key"`
	IncidentID      string                 `json:"incident_id,omitempty"`
	Status          string                 `json:"status"` // open | acknowledged | resolved | snoozed
	SnoozedUntil    *time.Time             `json:"snoozed_until,omitempty"`
	AutomationHooks map[string]interface{} `json:"automation_hooks,omitempty"`
}

// Incident groups correlated alerts.
type Incident struct {
	IncidentID      string     `json:"incident_id"`
	TenantID        string     `json:"tenant_id"`
	Plane           string     `json:"plane,omitempty"`
	ComponentID     string     `json:"component_id,omitempty"`
	Severity        string     `json:"severity"`
	OpenedAt        time.Time  `json:"opened_at"`
	MitigatedAt     *time.Time `json:"mitigated_at,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	Status          string     `json:"status"` // open | mitigated | resolved
	AlertIDs        []string   `json:"alert_ids"`
	CorrelationKeys []string   `json:"correlation_keys,omitempty"`
	DependencyRefs  []string   `json:"dependency_refs,omitempty"`
}

// Notification is one scheduled or dispatched (target, channel) delivery.
type Notification struct {
	NotificationID string     `json:"notification_id"`
	AlertID        string     `json:"alert_id"`
	TenantID       string     `json:"tenant_id"`
	IncidentID     string     `json:"incident_id,omitempty"`
	TargetID       string     `json:"target_id"`
	Channel        string     `json:"channel"`
	Status         string     `json:"status"` // pending | sent | cancelled | failed
	Attempts       int        `json:"attempts"`
	NextAttemptAt  *time.Time `json:"next_attempt_at,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	PolicyID       string     `json:"policy_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewAlertRequest is the caller-supplied shape for POST alerts.
type NewAlertRequest struct {
	TenantID     string
	SourceModule string
	Plane        string
	ComponentID  string
	Severity     string
	Category     string
	Summary      string
	Labels       map[string]string
	DedupKey     string // optional; computed when empty
}

// AlertStore persists and looks up Alerts.
type AlertStore interface {
	FindOpenByDedupKey(ctx context.Context, tenantID, dedupKey string) (*Alert, error)
	Create(ctx context.Context, alert *Alert) error
	Update(ctx context.Context, alert *Alert) error
	Get(ctx context.Context, tenantID, alertID string) (*Alert, error)
}

// IncidentStore persists and looks up Incidents.
type IncidentStore interface {
	FindOpenWithinWindow(ctx context.Context, tenantID string, since time.Time) ([]*Incident, error)
	Create(ctx context.Context, incident *Incident) error
	Update(ctx context.Context, incident *Incident) error
	Get(ctx context.Context, tenantID, incidentID string) (*Incident, error)
	AllMembersResolved(ctx context.Context, incidentID string) (bool, error)
}

// NotificationStore persists Notifications and serves the retry/escalation
// sweeps.
type NotificationStore interface {
	Create(ctx context.Context, n *Notification) error
	Update(ctx context.Context, n *Notification) error
	DuePendingRetries(ctx context.Context, now time.Time) ([]*Notification, error)
	CountSentSince(ctx context.Context, targetID string, since time.Time) (int, error)
	CountForAlertSince(ctx context.Context, alertID string, since time.Time) (int, error)
	LatestForIncidentSince(ctx context.Context, incidentID string, since time.Time) (*Notification, error)
}

// IdentityResolver expands logical routing targets (group:*, role:*,
// schedule:*, on-call references) into concrete user ids.
type IdentityResolver interface {
	Expand(ctx context.Context, tenantID, logicalTarget string) ([]string, error)
}

// UserPreference is one user's notification preferences.
type UserPreference struct {
	UserID            string
	AllowedChannels   map[string]bool
	SeverityThreshold map[string]string // channel -> minimum severity
	QuietHoursStart   string            // "HH:MM" in Timezone
	QuietHoursEnd     string
	Timezone          string
}

// PreferenceStore resolves a user's notification preferences.
type PreferenceStore interface {
	Get(ctx context.Context, tenantID, userID string) (*UserPreference, error)
}

// Sender delivers one notification over a channel.
type Sender interface {
	Send(ctx context.Context, channel string, target string, alert *Alert) error
}

// ScheduledStep is one persisted, not yet executed escalation step (step
// 2 or later) for one alert, due at NextAttemptAt (spec §4.3). Steps are
// stored in their own escalation_steps table, not as notification rows.
type ScheduledStep struct {
	StepID        string
	AlertID       string
	TenantID      string
	PolicyID      string
	StepOrder     int
	NextAttemptAt time.Time
	Dispatched    bool
}

// EscalationStore persists and serves due ScheduledSteps.
type EscalationStore interface {
	Schedule(ctx context.Context, step *ScheduledStep) error
	DueSteps(ctx context.Context, now time.Time) ([]*ScheduledStep, error)
	MarkDispatched(ctx context.Context, stepID string) error
}
