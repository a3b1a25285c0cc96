package wiring

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/anc"
	"github.com/evplatform/eventplane/pkg/storage"
)

const defaultDuePendingRetriesLimit = 256

// AlertStore adapts storage.AlertRepo to anc.AlertStore.
type AlertStore struct {
	Repo *storage.AlertRepo
}

func (s *AlertStore) FindOpenByDedupKey(ctx context.Context, tenantID, dedupKey string) (*anc.Alert, error) {
	row, err := s.Repo.FindOpenByDedupKey(ctx, tenantID, dedupKey)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toAlert(row), nil
}

func (s *AlertStore) Create(ctx context.Context, alert *anc.Alert) error {
	return s.Repo.Create(ctx, fromAlert(alert))
}

func (s *AlertStore) Update(ctx context.Context, alert *anc.Alert) error {
	return s.Repo.UpdateAlert(ctx, fromAlert(alert))
}

func (s *AlertStore) Get(ctx context.Context, tenantID, alertID string) (*anc.Alert, error) {
	row, err := s.Repo.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if row.TenantID != tenantID {
		return nil, apperrors.NewTenantIsolationViolation(tenantID)
	}
	return toAlert(row), nil
}

func toAlert(row *storage.Alert) *anc.Alert {
	var labels map[string]string
	if len(row.Labels) > 0 {
		_ = json.Unmarshal(row.Labels, &labels)
	}
	var hooks map[string]interface{}
	if len(row.AutomationHooks) > 0 {
		_ = json.Unmarshal(row.AutomationHooks, &hooks)
	}
	incidentID := ""
	if row.IncidentID != nil {
		incidentID = *row.IncidentID
	}
	return &anc.Alert{
		AlertID:         row.AlertID,
		TenantID:        row.TenantID,
		SourceModule:    row.SourceModule,
		Plane:           row.Plane,
		ComponentID:     row.ComponentID,
		Severity:        row.Severity,
		Category:        row.Category,
		Summary:         row.Summary,
		Labels:          labels,
		StartedAt:       row.StartedAt,
		EndedAt:         row.EndedAt,
		LastSeenAt:      row.LastSeenAt,
		DedupKey:        row.DedupKey,
		IncidentID:      incidentID,
		Status:          row.Status,
		SnoozedUntil:    row.SnoozedUntil,
		AutomationHooks: hooks,
	}
}

func fromAlert(a *anc.Alert) *storage.Alert {
	labels, _ := json.Marshal(a.Labels)
	hooks, _ := json.Marshal(a.AutomationHooks)
	var incidentID *string
	if a.IncidentID != "" {
		incidentID = &a.IncidentID
	}
	return &storage.Alert{
		AlertID:         a.AlertID,
		TenantID:        a.TenantID,
		SourceModule:    a.SourceModule,
		Plane:           a.Plane,
		ComponentID:     a.ComponentID,
		Severity:        a.Severity,
		Category:        a.Category,
		Summary:         a.Summary,
		Labels:          labels,
		StartedAt:       a.StartedAt,
		EndedAt:         a.EndedAt,
		LastSeenAt:      a.LastSeenAt,
		DedupKey:        a.DedupKey,
		IncidentID:      incidentID,
		Status:          a.Status,
		SnoozedUntil:    a.SnoozedUntil,
		AutomationHooks: hooks,
	}
}

// IncidentStore adapts storage.AlertRepo's incident methods to
// anc.IncidentStore.
type IncidentStore struct {
	Repo *storage.AlertRepo
}

func (s *IncidentStore) FindOpenWithinWindow(ctx context.Context, tenantID string, since time.Time) ([]*anc.Incident, error) {
	rows, err := s.Repo.FindOpenWithinWindow(ctx, tenantID, since)
	if err != nil {
		return nil, err
	}
	out := make([]*anc.Incident, 0, len(rows))
	for i := range rows {
		out = append(out, toIncident(&rows[i]))
	}
	return out, nil
}

func (s *IncidentStore) Create(ctx context.Context, incident *anc.Incident) error {
	return s.Repo.CreateIncident(ctx, fromIncident(incident))
}

func (s *IncidentStore) Update(ctx context.Context, incident *anc.Incident) error {
	return s.Repo.UpdateIncident(ctx, fromIncident(incident))
}

func (s *IncidentStore) Get(ctx context.Context, tenantID, incidentID string) (*anc.Incident, error) {
	row, err := s.Repo.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if row.TenantID != tenantID {
		return nil, apperrors.NewTenantIsolationViolation(tenantID)
	}
	return toIncident(row), nil
}

func (s *IncidentStore) AllMembersResolved(ctx context.Context, incidentID string) (bool, error) {
	return s.Repo.AllMembersResolved(ctx, incidentID)
}

func toIncident(row *storage.Incident) *anc.Incident {
	return &anc.Incident{
		IncidentID:      row.IncidentID,
		TenantID:        row.TenantID,
		Plane:           row.Plane,
		ComponentID:     row.ComponentID,
		Severity:        row.Severity,
		OpenedAt:        row.OpenedAt,
		MitigatedAt:     row.MitigatedAt,
		ResolvedAt:      row.ResolvedAt,
		Status:          row.Status,
		AlertIDs:        []string(row.AlertIDs),
		CorrelationKeys: []string(row.CorrelationKeys),
		DependencyRefs:  []string(row.DependencyRefs),
	}
}

func fromIncident(inc *anc.Incident) *storage.Incident {
	return &storage.Incident{
		IncidentID:      inc.IncidentID,
		TenantID:        inc.TenantID,
		Plane:           inc.Plane,
		ComponentID:     inc.ComponentID,
		Severity:        inc.Severity,
		OpenedAt:        inc.OpenedAt,
		MitigatedAt:     inc.MitigatedAt,
		ResolvedAt:      inc.ResolvedAt,
		Status:          inc.Status,
		AlertIDs:        inc.AlertIDs,
		CorrelationKeys: inc.CorrelationKeys,
		DependencyRefs:  inc.DependencyRefs,
	}
}

// NotificationStore adapts storage.NotificationRepo to anc.NotificationStore.
type NotificationStore struct {
	Repo *storage.NotificationRepo
}

func (s *NotificationStore) Create(ctx context.Context, n *anc.Notification) error {
	return s.Repo.Create(ctx, fromNotification(n))
}

func (s *NotificationStore) Update(ctx context.Context, n *anc.Notification) error {
	return s.Repo.Update(ctx, fromNotification(n))
}

func (s *NotificationStore) DuePendingRetries(ctx context.Context, now time.Time) ([]*anc.Notification, error) {
	rows, err := s.Repo.DuePendingRetries(ctx, now, defaultDuePendingRetriesLimit)
	if err != nil {
		return nil, err
	}
	out := make([]*anc.Notification, 0, len(rows))
	for i := range rows {
		out = append(out, toNotification(&rows[i]))
	}
	return out, nil
}

func (s *NotificationStore) CountSentSince(ctx context.Context, targetID string, since time.Time) (int, error) {
	return s.Repo.CountSentSince(ctx, targetID, since)
}

func (s *NotificationStore) CountForAlertSince(ctx context.Context, alertID string, since time.Time) (int, error) {
	return s.Repo.CountForAlertSince(ctx, alertID, since)
}

func (s *NotificationStore) LatestForIncidentSince(ctx context.Context, incidentID string, since time.Time) (*anc.Notification, error) {
	row, err := s.Repo.LatestForIncidentSince(ctx, incidentID, since)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return toNotification(row), nil
}

func toNotification(row *storage.Notification) *anc.Notification {
	incidentID := ""
	if row.IncidentID != nil {
		incidentID = *row.IncidentID
	}
	return &anc.Notification{
		NotificationID: row.NotificationID,
		AlertID:        row.AlertID,
		TenantID:       row.TenantID,
		IncidentID:     incidentID,
		TargetID:       row.TargetID,
		Channel:        row.Channel,
		Status:         row.Status,
		Attempts:       row.Attempts,
		NextAttemptAt:  row.NextAttemptAt,
		FailureReason:  row.FailureReason,
		PolicyID:       row.PolicyID,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

func fromNotification(n *anc.Notification) *storage.Notification {
	var incidentID *string
	if n.IncidentID != "" {
		incidentID = &n.IncidentID
	}
	return &storage.Notification{
		NotificationID: n.NotificationID,
		AlertID:        n.AlertID,
		TenantID:       n.TenantID,
		IncidentID:     incidentID,
		TargetID:       n.TargetID,
		Channel:        n.Channel,
		Status:         n.Status,
		Attempts:       n.Attempts,
		NextAttemptAt:  n.NextAttemptAt,
		FailureReason:  n.FailureReason,
		PolicyID:       n.PolicyID,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

// EscalationStore adapts storage.EscalationRepo to anc.EscalationStore.
type EscalationStore struct {
	Repo *storage.EscalationRepo
}

func (s *EscalationStore) Schedule(ctx context.Context, step *anc.ScheduledStep) error {
	return s.Repo.Schedule(ctx, &storage.EscalationStepRow{
		StepID:        step.StepID,
		AlertID:       step.AlertID,
		TenantID:      step.TenantID,
		PolicyID:      step.PolicyID,
		StepOrder:     step.StepOrder,
		NextAttemptAt: step.NextAttemptAt,
		Dispatched:    step.Dispatched,
	})
}

func (s *EscalationStore) DueSteps(ctx context.Context, now time.Time) ([]*anc.ScheduledStep, error) {
	rows, err := s.Repo.DueSteps(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]*anc.ScheduledStep, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		out = append(out, &anc.ScheduledStep{
			StepID:        r.StepID,
			AlertID:       r.AlertID,
			TenantID:      r.TenantID,
			PolicyID:      r.PolicyID,
			StepOrder:     r.StepOrder,
			NextAttemptAt: r.NextAttemptAt,
			Dispatched:    r.Dispatched,
		})
	}
	return out, nil
}

func (s *EscalationStore) MarkDispatched(ctx context.Context, stepID string) error {
	return s.Repo.MarkDispatched(ctx, stepID)
}

// PreferenceStore adapts storage.PreferenceRepo to anc.PreferenceStore.
type PreferenceStore struct {
	Repo *storage.PreferenceRepo
}

func (s *PreferenceStore) Get(ctx context.Context, tenantID, userID string) (*anc.UserPreference, error) {
	row, err := s.Repo.Get(ctx, tenantID, userID)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	allowed := make(map[string]bool, len(row.AllowedChannels))
	for _, ch := range row.AllowedChannels {
		allowed[ch] = true
	}
	var thresholds map[string]string
	if len(row.SeverityThreshold) > 0 {
		_ = json.Unmarshal(row.SeverityThreshold, &thresholds)
	}
	return &anc.UserPreference{
		UserID:            row.UserID,
		AllowedChannels:   allowed,
		SeverityThreshold: thresholds,
		QuietHoursStart:   row.QuietHoursStart,
		QuietHoursEnd:     row.QuietHoursEnd,
		Timezone:          row.Timezone,
	}, nil
}
