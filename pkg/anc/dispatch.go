package anc

import (
	"context"

	"github.com/google/uuid"

	"github.com/evplatform/eventplane/internal/config"
	"github.com/evplatform/eventplane/pkg/retry"
)

// Dispatch attempts delivery of one Notification: it gates on maintenance
// windows, rate limits, incident suppression and user preference (spec
// §4.3's fatigue controls), sends via the channel's Sender, and on failure
// schedules a retry or creates a fallback Notification per
// retry_policy/fallback_policy (spec §4.4).
func (c *Core) Dispatch(ctx context.Context, alert *Alert, notification *Notification) error {
	now := c.now()

	if c.InMaintenanceWindow(alert, now) {
		return c.markSuppressed(ctx, notification, "maintenance_window")
	}

	if decision, err := c.CheckIncidentSuppression(ctx, alert, now); err != nil {
		return err
	} else if !decision.Allowed {
		return c.markSuppressed(ctx, notification, decision.Reason)
	}

	if decision, err := c.CheckRateLimits(ctx, alert, notification.TargetID); err != nil {
		return err
	} else if !decision.Allowed {
		return c.markSuppressed(ctx, notification, decision.Reason)
	}

	if decision, err := c.CheckPreference(ctx, alert, notification.TargetID, notification.Channel, now); err != nil {
		return err
	} else if !decision.Allowed {
		return c.markSuppressed(ctx, notification, decision.Reason)
	}

	return c.attemptSend(ctx, alert, notification)
}

func (c *Core) markSuppressed(ctx context.Context, notification *Notification, reason string) error {
	notification.Status = "cancelled"
	notification.FailureReason = reason
	notification.UpdatedAt = c.now()
	return c.Notifications.Update(ctx, notification)
}

func (c *Core) attemptSend(ctx context.Context, alert *Alert, notification *Notification) error {
	sender := c.Senders[notification.Channel]
	notification.Attempts++
	notification.UpdatedAt = c.now()

	var sendErr error
	if sender == nil {
		sendErr = errUnknownChannel(notification.Channel)
	} else {
		sendErr = sender.Send(ctx, notification.Channel, notification.TargetID, alert)
	}

	if sendErr == nil {
		notification.Status = "sent"
		notification.FailureReason = ""
		return c.Notifications.Update(ctx, notification)
	}

	notification.FailureReason = sendErr.Error()
	return c.scheduleRetryOrFallback(ctx, alert, notification)
}

// RunRetrySweep is the background worker body (spec §5's notification
// retry worker): re-attempt every Notification whose next_attempt_at has
// elapsed.
func (c *Core) RunRetrySweep(ctx context.Context) error {
	due, err := c.Notifications.DuePendingRetries(ctx, c.now())
	if err != nil {
		return err
	}
	for _, notification := range due {
		alert, err := c.Alerts.Get(ctx, notification.TenantID, notification.AlertID)
		if err != nil || alert == nil {
			continue
		}
		if err := c.attemptSend(ctx, alert, notification); err != nil {
			c.logger().WithError(err).WithField("notification_id", notification.NotificationID).
				Error("notification retry failed")
		}
	}
	return nil
}

func (c *Core) scheduleRetryOrFallback(ctx context.Context, alert *Alert, notification *Notification) error {
	bundle := c.Policies.Current()
	policy := retryPolicyFor(bundle, notification.Channel, alert.Severity)

	if notification.Attempts < policy.MaxAttempts {
		intervals := retry.Intervals(policy.BackoffIntervals)
		delay := retry.NextInterval(intervals, notification.Attempts-1)
		next := c.now().Add(delay)
		notification.Status = "pending"
		notification.NextAttemptAt = &next
		return c.Notifications.Update(ctx, notification)
	}

	fallbackChannels := fallbackChannelsFor(bundle, alert.Severity, notification.Channel)
	if len(fallbackChannels) == 0 {
		notification.Status = "failed"
		notification.FailureReason = "exhausted_retries_no_fallback"
		return c.Notifications.Update(ctx, notification)
	}

	notification.Status = "failed"
	notification.FailureReason = "exhausted_retries_fallback_created"
	if err := c.Notifications.Update(ctx, notification); err != nil {
		return err
	}

	for _, channel := range fallbackChannels {
		fallback := &Notification{
			NotificationID: uuid.NewString(),
			AlertID:        notification.AlertID,
			TenantID:       notification.TenantID,
			IncidentID:     notification.IncidentID,
			TargetID:       notification.TargetID,
			Channel:        channel,
			Status:         "pending",
			PolicyID:       notification.PolicyID,
			CreatedAt:      c.now(),
			UpdatedAt:      c.now(),
		}
		if err := c.Notifications.Create(ctx, fallback); err != nil {
			return err
		}
		if err := c.Dispatch(ctx, alert, fallback); err != nil {
			return err
		}
	}
	return nil
}

func retryPolicyFor(bundle *config.PolicyBundle, channel, severity string) config.RetryPolicy {
	if p, ok := bundle.Retry.ByChannel[channel]; ok {
		return p
	}
	if p, ok := bundle.Retry.BySeverity[severity]; ok {
		return p
	}
	return bundle.Retry.Defaults
}

func fallbackChannelsFor(bundle *config.PolicyBundle, severity, excludeChannel string) []string {
	chain := bundle.Fallback.BySeverity[severity]
	if chain == nil {
		chain = bundle.Fallback.Defaults
	}
	out := make([]string, 0, len(chain))
	for _, channel := range chain {
		if channel != excludeChannel {
			out = append(out, channel)
		}
	}
	return out
}

type unknownChannelError struct{ channel string }

func (e unknownChannelError) Error() string { return "anc: no sender registered for channel " + e.channel }

func errUnknownChannel(channel string) error { return unknownChannelError{channel: channel} }
