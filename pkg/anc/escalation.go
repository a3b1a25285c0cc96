package anc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/evplatform/eventplane/internal/config"
)

// StartEscalation resolves the escalation policy bound to alert (by
// policy_id, from Route's RoutingDecision), executes step 1 immediately and
// schedules the remaining steps as ScheduledSteps, per spec §4.3: "execute
// step 1 immediately at ingestion time; schedule execute_step(alert, k) at
// now + delay_seconds via a persistent scheduler for k > 1".
func (c *Core) StartEscalation(ctx context.Context, alert *Alert, policyID string) error {
	policy := findEscalationPolicy(c.Policies.Current(), policyID)
	if policy == nil || len(policy.Steps) == 0 {
		return nil
	}

	if err := c.executeStep(ctx, alert, policy.ID, policy.Steps[0]); err != nil {
		return err
	}

	now := c.now()
	for _, step := range policy.Steps[1:] {
		scheduled := &ScheduledStep{
			StepID:        uuid.NewString(),
			AlertID:       alert.AlertID,
			TenantID:      alert.TenantID,
			PolicyID:      policy.ID,
			StepOrder:     step.Order,
			NextAttemptAt: now.Add(time.Duration(step.DelaySeconds) * time.Second),
		}
		if err := c.Escalations.Schedule(ctx, scheduled); err != nil {
			return err
		}
	}
	return nil
}

// RunEscalationSweep is the background worker body (spec §5's escalation
// worker): pull due steps and execute each, strictly serialized per alert_id
// so that two steps for the same alert never run concurrently.
func (c *Core) RunEscalationSweep(ctx context.Context) error {
	due, err := c.Escalations.DueSteps(ctx, c.now())
	if err != nil {
		return err
	}

	byAlert := map[string][]*ScheduledStep{}
	for _, step := range due {
		byAlert[step.AlertID] = append(byAlert[step.AlertID], step)
	}

	for alertID, steps := range byAlert {
		for _, step := range steps {
			if err := c.dispatchScheduledStep(ctx, alertID, step); err != nil {
				c.logger().WithError(err).WithFields(map[string]interface{}{
					"alert_id": alertID,
					"step_id":  step.StepID,
				}).Error("escalation step failed")
			}
		}
	}
	return nil
}

func (c *Core) dispatchScheduledStep(ctx context.Context, alertID string, scheduled *ScheduledStep) error {
	alert, err := c.Alerts.Get(ctx, scheduled.TenantID, alertID)
	if err != nil {
		return err
	}
	if alert == nil {
		return c.Escalations.MarkDispatched(ctx, scheduled.StepID)
	}

	policy := findEscalationPolicy(c.Policies.Current(), scheduled.PolicyID)
	if policy == nil {
		return c.Escalations.MarkDispatched(ctx, scheduled.StepID)
	}
	if c.abortsEscalation(alert, policy) {
		return c.Escalations.MarkDispatched(ctx, scheduled.StepID)
	}
	step := findEscalationStep(policy, scheduled.StepOrder)
	if step == nil {
		return c.Escalations.MarkDispatched(ctx, scheduled.StepID)
	}

	if err := c.executeStep(ctx, alert, policy.ID, *step); err != nil {
		return err
	}
	return c.Escalations.MarkDispatched(ctx, scheduled.StepID)
}

// abortsEscalation implements spec §4.3's abort conditions: resolved or
// snoozed alerts stop escalating outright; acknowledged alerts stop
// unless the policy sets continue_after_ack; alerts whose incident already
// mitigated also stop.
func (c *Core) abortsEscalation(alert *Alert, policy *config.EscalationPolicy) bool {
	switch alert.Status {
	case "resolved", "snoozed":
		return true
	case "acknowledged":
		if policy == nil || !policy.ContinueAfterAck {
			return true
		}
	}
	if alert.IncidentID == "" {
		return false
	}
	incident, err := c.Incidents.Get(context.Background(), alert.TenantID, alert.IncidentID)
	if err != nil || incident == nil {
		return false
	}
	return incident.Status == "mitigated" || incident.Status == "resolved"
}

// executeStep creates and dispatches one Notification per (target, channel)
// pair named by the step.
func (c *Core) executeStep(ctx context.Context, alert *Alert, policyID string, step config.EscalationStep) error {
	groupTarget := step.TargetGroupID
	if groupTarget == "" {
		groupTarget = "default"
	}
	resolvedTargets, err := c.expandTarget(ctx, alert.TenantID, groupTarget)
	if err != nil {
		return err
	}

	for _, channel := range step.Channels {
		for _, targetID := range resolvedTargets {
			notification := &Notification{
				NotificationID: uuid.NewString(),
				AlertID:        alert.AlertID,
				TenantID:       alert.TenantID,
				IncidentID:     alert.IncidentID,
				TargetID:       targetID,
				Channel:        channel,
				Status:         "pending",
				PolicyID:       policyID,
				CreatedAt:      c.now(),
				UpdatedAt:      c.now(),
			}
			if err := c.Notifications.Create(ctx, notification); err != nil {
				return err
			}
			if err := c.Dispatch(ctx, alert, notification); err != nil {
				return fmt.Errorf("dispatch notification %s: %w", notification.NotificationID, err)
			}
		}
	}
	return nil
}

func findEscalationPolicy(bundle *config.PolicyBundle, policyID string) *config.EscalationPolicy {
	for i := range bundle.Escalation.Policies {
		if bundle.Escalation.Policies[i].ID == policyID {
			return &bundle.Escalation.Policies[i]
		}
	}
	return nil
}

func findEscalationStep(policy *config.EscalationPolicy, order int) *config.EscalationStep {
	for i := range policy.Steps {
		if policy.Steps[i].Order == order {
			return &policy.Steps[i]
		}
	}
	return nil
}
