package anc

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProcessAlert runs the full alert intake pipeline spec §4.3 describes end
// to end: dedup/merge, correlation into an incident, routing resolution,
// notification creation and dispatch, and escalation scheduling. A
// re-arriving signal that only merges into an existing open Alert skips
// correlation/routing/escalation — those already ran on first arrival.
func (c *Core) ProcessAlert(ctx context.Context, req NewAlertRequest) (*IngestResult, error) {
	now := c.now()

	result, err := c.Ingest(ctx, req, now)
	if err != nil {
		return nil, err
	}
	if result.EventType == "alert.updated" {
		return result, nil
	}

	alert := result.Alert

	if c.Incidents != nil {
		incident, err := c.Correlate(ctx, alert)
		if err != nil {
			return nil, err
		}
		if incident != nil {
			alert.IncidentID = incident.IncidentID
		}
	}

	decision, err := c.Route(ctx, alert)
	if err != nil {
		return nil, err
	}

	for _, channel := range decision.Channels {
		for _, target := range decision.Targets {
			if err := c.dispatchNew(ctx, alert, channel, target, decision.PolicyID, now); err != nil {
				c.logger().WithError(err).WithField("alert_id", alert.AlertID).Error("initial notification dispatch failed")
			}
		}
	}

	if decision.PolicyID != "" {
		if err := c.StartEscalation(ctx, alert, decision.PolicyID); err != nil {
			c.logger().WithError(err).WithField("alert_id", alert.AlertID).Error("failed to start escalation")
		}
	}

	return result, nil
}

func (c *Core) dispatchNew(ctx context.Context, alert *Alert, channel, target, policyID string, now time.Time) error {
	n := &Notification{
		NotificationID: uuid.NewString(),
		AlertID:        alert.AlertID,
		TenantID:       alert.TenantID,
		IncidentID:     alert.IncidentID,
		TargetID:       target,
		Channel:        channel,
		Status:         "pending",
		PolicyID:       policyID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.Notifications.Create(ctx, n); err != nil {
		return err
	}
	return c.Dispatch(ctx, alert, n)
}
