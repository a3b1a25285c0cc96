package anc

import (
	"context"
	"time"

	"github.com/evplatform/eventplane/internal/config"
)

// Correlate implements spec §4.3's correlation step: walk open Incidents
// within the correlation window, apply correlation rules in order, and
// either append the alert to the first matching Incident or seed a new one.
func (c *Core) Correlate(ctx context.Context, alert *Alert) (*Incident, error) {
	bundle := c.Policies.Current()
	window := time.Duration(bundle.Correlation.WindowMinutes) * time.Minute
	if window <= 0 {
		window = 10 * time.Minute
	}
	now := c.now()

	candidates, err := c.Incidents.FindOpenWithinWindow(ctx, alert.TenantID, now.Add(-window))
	if err != nil {
		return nil, err
	}

	for _, incident := range candidates {
		if !c.matchesRules(bundle.Correlation.Rules, alert, incident, now) {
			continue
		}
		incident.AlertIDs = appendUnique(incident.AlertIDs, alert.AlertID)
		incident.DependencyRefs = appendUnique(incident.DependencyRefs, alert.ComponentID)
		incident.CorrelationKeys = appendUnique(incident.CorrelationKeys, alert.DedupKey)
		if err := c.Incidents.Update(ctx, incident); err != nil {
			return nil, err
		}
		alert.IncidentID = incident.IncidentID
		if err := c.Alerts.Update(ctx, alert); err != nil {
			return nil, err
		}
		c.publishIncident(incident, "incident.correlated")
		return incident, nil
	}

	incident := &Incident{
		IncidentID:      "inc-" + alert.AlertID,
		TenantID:        alert.TenantID,
		Plane:           alert.Plane,
		ComponentID:     alert.ComponentID,
		Severity:        alert.Severity,
		OpenedAt:        now,
		Status:          "open",
		AlertIDs:        []string{alert.AlertID},
		CorrelationKeys: []string{alert.DedupKey},
		DependencyRefs:  []string{alert.ComponentID},
	}
	if err := c.Incidents.Create(ctx, incident); err != nil {
		return nil, err
	}
	alert.IncidentID = incident.IncidentID
	if err := c.Alerts.Update(ctx, alert); err != nil {
		return nil, err
	}
	c.publishIncident(incident, "incident.opened")
	return incident, nil
}

// matchesRules reports whether any rule, applied in order, binds alert to
// incident: the rule's own window (when set) must still cover the
// incident, every named condition field must agree between the two, and a
// dependency_match: shared rule additionally requires a shared dependency.
func (c *Core) matchesRules(rules []config.CorrelationRule, alert *Alert, incident *Incident, now time.Time) bool {
	for _, rule := range rules {
		if rule.WindowMinutes > 0 {
			cutoff := now.Add(-time.Duration(rule.WindowMinutes) * time.Minute)
			if incident.OpenedAt.Before(cutoff) {
				continue
			}
		}
		if !conditionsMatch(rule.Conditions, alert, incident) {
			continue
		}
		if rule.DependencyMatch == "shared" && !hasSharedDependency(alert, incident) {
			continue
		}
		return true
	}
	return false
}

// conditionsMatch reports whether alert and incident agree on every named
// field. Supported field names: tenant_id, plane, severity, component_id;
// unrecognized names are ignored.
func conditionsMatch(conditions []string, alert *Alert, incident *Incident) bool {
	for _, condition := range conditions {
		switch condition {
		case "tenant_id":
			if incident.TenantID != alert.TenantID {
				return false
			}
		case "plane":
			if incident.Plane != alert.Plane {
				return false
			}
		case "severity":
			if incident.Severity != alert.Severity {
				return false
			}
		case "component_id":
			if incident.ComponentID != alert.ComponentID {
				return false
			}
		}
	}
	return true
}

// hasSharedDependency reports whether alert's component already appears
// among incident's dependency refs.
func hasSharedDependency(alert *Alert, incident *Incident) bool {
	for _, dep := range incident.DependencyRefs {
		if dep == alert.ComponentID {
			return true
		}
	}
	return false
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
