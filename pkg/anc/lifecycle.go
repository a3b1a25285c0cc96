package anc

import (
	"context"
	"fmt"
	"time"
)

// Acknowledge transitions alert to acknowledged, which (per escalation's
// abort rule) halts further escalation steps for it.
func (c *Core) Acknowledge(ctx context.Context, alert *Alert) error {
	if alert.Status != "open" {
		return fmt.Errorf("anc: cannot acknowledge alert in status %q", alert.Status)
	}
	alert.Status = "acknowledged"
	if err := c.Alerts.Update(ctx, alert); err != nil {
		return err
	}
	c.publish(alert, "alert.acknowledged")
	return nil
}

// Resolve transitions alert to resolved, ending it, and resolves the bound
// incident when every member alert has resolved (spec §4.3).
func (c *Core) Resolve(ctx context.Context, alert *Alert) error {
	now := c.now()
	alert.Status = "resolved"
	alert.EndedAt = &now
	if err := c.Alerts.Update(ctx, alert); err != nil {
		return err
	}
	c.publish(alert, "alert.resolved")

	if alert.IncidentID == "" {
		return nil
	}
	allResolved, err := c.Incidents.AllMembersResolved(ctx, alert.IncidentID)
	if err != nil {
		return err
	}
	if !allResolved {
		return nil
	}
	incident, err := c.Incidents.Get(ctx, alert.TenantID, alert.IncidentID)
	if err != nil || incident == nil {
		return err
	}
	incident.Status = "resolved"
	incident.ResolvedAt = &now
	if err := c.Incidents.Update(ctx, incident); err != nil {
		return err
	}
	c.publishIncident(incident, "incident.resolved")
	return nil
}

// Snooze suppresses dispatch for alert until now+duration. A snoozed alert
// auto-reopens the first time it is read after SnoozedUntil elapses
// (TouchSnoozeExpiry implements that check).
func (c *Core) Snooze(ctx context.Context, alert *Alert, duration time.Duration) error {
	until := c.now().Add(duration)
	alert.Status = "snoozed"
	alert.SnoozedUntil = &until
	if err := c.Alerts.Update(ctx, alert); err != nil {
		return err
	}
	c.publish(alert, "alert.snoozed")
	return nil
}

// TouchSnoozeExpiry reopens alert if its snooze window has elapsed,
// persisting the transition. Callers should invoke this on read paths
// (get/list) for snoozed alerts.
func (c *Core) TouchSnoozeExpiry(ctx context.Context, alert *Alert) error {
	if alert.Status != "snoozed" || alert.SnoozedUntil == nil {
		return nil
	}
	if c.now().Before(*alert.SnoozedUntil) {
		return nil
	}
	alert.Status = "open"
	alert.SnoozedUntil = nil
	if err := c.Alerts.Update(ctx, alert); err != nil {
		return err
	}
	c.publish(alert, "alert.unsnoozed")
	return nil
}

// Mitigate marks incident mitigated: pending escalation steps abort (per
// abortsEscalation) but member alerts remain open until individually
// resolved (spec §4.3).
func (c *Core) Mitigate(ctx context.Context, incident *Incident) error {
	now := c.now()
	incident.Status = "mitigated"
	incident.MitigatedAt = &now
	if err := c.Incidents.Update(ctx, incident); err != nil {
		return err
	}
	c.publishIncident(incident, "incident.mitigated")
	return nil
}

func (c *Core) publish(alert *Alert, eventType string) {
	if c.Stream == nil {
		return
	}
	c.Stream.Publish(StreamEvent{
		Type:        eventType,
		TenantID:    alert.TenantID,
		ComponentID: alert.ComponentID,
		Category:    alert.Category,
		Severity:    alert.Severity,
		AlertID:     alert.AlertID,
		IncidentID:  alert.IncidentID,
		OccurredAt:  c.now(),
		Payload:     alert,
	})
}

func (c *Core) publishIncident(incident *Incident, eventType string) {
	if c.Stream == nil {
		return
	}
	c.Stream.Publish(StreamEvent{
		Type:       eventType,
		TenantID:   incident.TenantID,
		Severity:   incident.Severity,
		IncidentID: incident.IncidentID,
		OccurredAt: c.now(),
		Payload:    incident,
	})
}
