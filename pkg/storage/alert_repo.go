package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// AlertRepo persists Alert and Incident rows for ANC. The partial unique
// index on (tenant_id, dedup_key) for non-terminal alerts (migrations/00001)
// backs spec §3's "one Alert per dedup_key within a dedup window" invariant.
type AlertRepo struct {
	db *sqlx.DB
}

func NewAlertRepo(db *sqlx.DB) *AlertRepo {
	return &AlertRepo{db: db}
}

// FindOpenByDedupKey returns the live (non-terminal) alert sharing
// dedup_key, if any — the lookup a re-arriving signal must perform before
// creating a new Alert.
func (r *AlertRepo) FindOpenByDedupKey(ctx context.Context, tenantID, dedupKey string) (*Alert, error) {
	var a Alert
	err := r.db.GetContext(ctx, &a, `
		SELECT * FROM alerts
		WHERE tenant_id = $1 AND dedup_key = $2 AND status IN ('open', 'acknowledged', 'snoozed')`,
		tenantID, dedupKey)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("open alert with dedup key " + dedupKey)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("find open alert", err)
	}
	return &a, nil
}

func (r *AlertRepo) Create(ctx context.Context, a *Alert) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts
			(alert_id, tenant_id, source_module, plane, component_id, severity, category, summary, labels,
			 started_at, last_seen_at, dedup_key, incident_id, status, automation_hooks)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.AlertID, a.TenantID, a.SourceModule, a.Plane, a.ComponentID, a.Severity, a.Category, a.Summary, a.Labels,
		a.StartedAt, a.LastSeenAt, a.DedupKey, a.IncidentID, firstNonEmpty(a.Status, "open"), a.AutomationHooks)
	if err != nil {
		return apperrors.NewDatabaseError("create alert", err)
	}
	return nil
}

// UpdateAlert persists every mutable field on a, the general update call
// ANC's lifecycle transitions (acknowledge/resolve/snooze/correlate) need.
func (r *AlertRepo) UpdateAlert(ctx context.Context, a *Alert) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alerts
		SET summary = $2, last_seen_at = $3, status = $4, incident_id = $5,
		    ended_at = $6, snoozed_until = $7
		WHERE alert_id = $1`,
		a.AlertID, a.Summary, a.LastSeenAt, a.Status, a.IncidentID, a.EndedAt, a.SnoozedUntil)
	if err != nil {
		return apperrors.NewDatabaseError("update alert", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("alert " + a.AlertID)
	}
	return nil
}

// TagAlert merges {tag: true} into the alert's labels, backing the
// noisy/false-positive feedback endpoints without clobbering existing
// labels set at ingest time.
func (r *AlertRepo) TagAlert(ctx context.Context, alertID, tag string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alerts
		SET labels = COALESCE(labels, '{}'::jsonb) || jsonb_build_object($2::text, true)
		WHERE alert_id = $1`,
		alertID, tag)
	if err != nil {
		return apperrors.NewDatabaseError("tag alert", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("alert " + alertID)
	}
	return nil
}

// AlertSearchFilter narrows Search to a subset of a tenant's alerts. Zero
// values are treated as "don't filter on this field".
type AlertSearchFilter struct {
	ComponentID string
	Category    string
	Severity    string
	Status      string
	Limit       int
	Offset      int
}

// Search lists a tenant's alerts matching filter, newest first, the
// listing query behind the alerts search endpoint.
func (r *AlertRepo) Search(ctx context.Context, tenantID string, filter AlertSearchFilter) ([]Alert, error) {
	query := `SELECT * FROM alerts WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if filter.ComponentID != "" {
		args = append(args, filter.ComponentID)
		query += fmt.Sprintf(" AND component_id = $%d", len(args))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY last_seen_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	var out []Alert
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...); err != nil {
		return nil, apperrors.NewDatabaseError("search alerts", err)
	}
	return out, nil
}

// TouchDedup extends last_seen_at and refreshes summary on a re-arriving
// match, per spec §3's Alert invariant.
func (r *AlertRepo) TouchDedup(ctx context.Context, alertID, summary string, seenAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET summary = $2, last_seen_at = $3 WHERE alert_id = $1`,
		alertID, summary, seenAt)
	if err != nil {
		return apperrors.NewDatabaseError("touch alert dedup", err)
	}
	return nil
}

func (r *AlertRepo) SetStatus(ctx context.Context, alertID, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE alerts SET status = $2 WHERE alert_id = $1`, alertID, status)
	if err != nil {
		return apperrors.NewDatabaseError("set alert status", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("alert " + alertID)
	}
	return nil
}

func (r *AlertRepo) AssignIncident(ctx context.Context, alertID, incidentID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE alerts SET incident_id = $2 WHERE alert_id = $1`, alertID, incidentID)
	if err != nil {
		return apperrors.NewDatabaseError("assign alert to incident", err)
	}
	return nil
}

func (r *AlertRepo) Get(ctx context.Context, alertID string) (*Alert, error) {
	var a Alert
	err := r.db.GetContext(ctx, &a, `SELECT * FROM alerts WHERE alert_id = $1`, alertID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("alert " + alertID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get alert", err)
	}
	return &a, nil
}

// CreateIncident seeds a new incident owning one or more correlated alerts.
func (r *AlertRepo) CreateIncident(ctx context.Context, inc *Incident) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO incidents (incident_id, tenant_id, plane, component_id, severity, opened_at, status, alert_ids, correlation_keys, dependency_refs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		inc.IncidentID, inc.TenantID, inc.Plane, inc.ComponentID, inc.Severity, inc.OpenedAt, firstNonEmpty(inc.Status, "open"),
		pqStringArray(inc.AlertIDs), pqStringArray(inc.CorrelationKeys), pqStringArray(inc.DependencyRefs))
	if err != nil {
		return apperrors.NewDatabaseError("create incident", err)
	}
	return nil
}

// FindOpenWithinWindow lists a tenant's open incidents opened since since,
// the candidate set spec §4.2's correlation rules match a new alert
// against.
func (r *AlertRepo) FindOpenWithinWindow(ctx context.Context, tenantID string, since time.Time) ([]Incident, error) {
	var out []Incident
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM incidents
		WHERE tenant_id = $1 AND status = 'open' AND opened_at >= $2
		ORDER BY opened_at DESC`, tenantID, since)
	if err != nil {
		return nil, apperrors.NewDatabaseError("find open incidents within window", err)
	}
	return out, nil
}

// AllMembersResolved reports whether every alert belonging to incidentID
// is in a terminal (resolved) state, gating the incident auto-resolve
// cascade of spec §4.3's lifecycle transitions.
func (r *AlertRepo) AllMembersResolved(ctx context.Context, incidentID string) (bool, error) {
	var openCount int
	err := r.db.GetContext(ctx, &openCount, `
		SELECT count(*) FROM alerts WHERE incident_id = $1 AND status NOT IN ('resolved')`, incidentID)
	if err != nil {
		return false, apperrors.NewDatabaseError("check incident members resolved", err)
	}
	return openCount == 0, nil
}

// UpdateIncident persists every mutable field on inc: membership
// (alert_ids, correlation_keys, dependency_refs) and lifecycle state
// (status, mitigated_at, resolved_at), the general update call ANC's
// correlation and lifecycle transitions both need.
func (r *AlertRepo) UpdateIncident(ctx context.Context, inc *Incident) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE incidents
		SET status = $2, alert_ids = $3, correlation_keys = $4, dependency_refs = $5,
		    mitigated_at = $6, resolved_at = $7
		WHERE incident_id = $1`,
		inc.IncidentID, inc.Status, pqStringArray(inc.AlertIDs), pqStringArray(inc.CorrelationKeys),
		pqStringArray(inc.DependencyRefs), inc.MitigatedAt, inc.ResolvedAt)
	if err != nil {
		return apperrors.NewDatabaseError("update incident", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("incident " + inc.IncidentID)
	}
	return nil
}

func (r *AlertRepo) GetIncident(ctx context.Context, incidentID string) (*Incident, error) {
	var inc Incident
	err := r.db.GetContext(ctx, &inc, `SELECT * FROM incidents WHERE incident_id = $1`, incidentID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("incident " + incidentID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get incident", err)
	}
	return &inc, nil
}

// AddAlertToIncident appends alertID to the incident's member set.
func (r *AlertRepo) AddAlertToIncident(ctx context.Context, incidentID, alertID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE incidents SET alert_ids = array_append(alert_ids, $2) WHERE incident_id = $1 AND NOT ($2 = ANY(alert_ids))`,
		incidentID, alertID)
	if err != nil {
		return apperrors.NewDatabaseError("add alert to incident", err)
	}
	return nil
}

func (r *AlertRepo) SetIncidentStatus(ctx context.Context, incidentID, status string, at time.Time) error {
	var err error
	switch status {
	case "mitigated":
		_, err = r.db.ExecContext(ctx, `UPDATE incidents SET status = $2, mitigated_at = $3 WHERE incident_id = $1`, incidentID, status, at)
	case "resolved":
		_, err = r.db.ExecContext(ctx, `UPDATE incidents SET status = $2, resolved_at = $3 WHERE incident_id = $1`, incidentID, status, at)
	default:
		_, err = r.db.ExecContext(ctx, `UPDATE incidents SET status = $2 WHERE incident_id = $1`, incidentID, status)
	}
	if err != nil {
		return apperrors.NewDatabaseError("set incident status", err)
	}
	return nil
}
