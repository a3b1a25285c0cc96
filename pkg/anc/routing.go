package anc

import (
	"context"
	"strings"

	"github.com/evplatform/eventplane/internal/config"
)

// RoutingDecision is the resolved (channels, targets, policy_id) for one
// alert, per spec §4.3's routing step.
type RoutingDecision struct {
	Channels []string
	Targets  []string
	PolicyID string
}

// Route resolves routing defaults merged with tenant overrides and
// severity-specific channel overrides, then expands logical targets
// (group:*, role:*, schedule:*) into concrete user ids via Identity.
// Templated strings the resolver can't expand pass through unchanged.
func (c *Core) Route(ctx context.Context, alert *Alert) (RoutingDecision, error) {
	bundle := c.Policies.Current()

	channels := bundle.Routing.Defaults[alert.Severity]
	if overrides, ok := bundle.Routing.TenantOverrides[alert.TenantID]; ok {
		if tenantChannels, ok := overrides[alert.Severity]; ok {
			channels = tenantChannels
		}
	}

	policyID := defaultEscalationPolicyID(bundle, alert.Severity)

	rawTargets := bundle.Routing.Defaults["targets"]
	targets := make([]string, 0, len(rawTargets))
	for _, t := range rawTargets {
		expanded, err := c.expandTarget(ctx, alert.TenantID, t)
		if err != nil {
			return RoutingDecision{}, err
		}
		targets = append(targets, expanded...)
	}

	return RoutingDecision{Channels: channels, Targets: targets, PolicyID: policyID}, nil
}

// expandTarget expands a single logical target reference via Identity,
// passing through anything the resolver returns no expansion for.
func (c *Core) expandTarget(ctx context.Context, tenantID, target string) ([]string, error) {
	isLogical := strings.HasPrefix(target, "group:") ||
		strings.HasPrefix(target, "role:") ||
		strings.HasPrefix(target, "schedule:")
	if !isLogical || c.Identity == nil {
		return []string{target}, nil
	}

	expanded, err := c.Identity.Expand(ctx, tenantID, target)
	if err != nil {
		return nil, err
	}
	if len(expanded) == 0 {
		return []string{target}, nil
	}
	return expanded, nil
}

// defaultEscalationPolicyID picks the configured escalation policy whose
// id matches the severity tier (by convention, "escalation-<severity>"),
// falling back to the first policy defined in the bundle.
func defaultEscalationPolicyID(bundle *config.PolicyBundle, severity string) string {
	want := "escalation-" + severity
	for _, p := range bundle.Escalation.Policies {
		if p.ID == want {
			return p.ID
		}
	}
	if len(bundle.Escalation.Policies) > 0 {
		return bundle.Escalation.Policies[0].ID
	}
	return ""
}
