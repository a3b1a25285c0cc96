package anc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// severityRank orders the P0-P4 scale for the "upgrade only" merge rule
// and preference threshold checks; P0 is the most severe.
var severityRank = map[string]int{
	"P4": 0,
	"P3": 1,
	"P2": 2,
	"P1": 3,
	"P0": 4,
}

// IngestResult is the outcome of one Ingest call.
type IngestResult struct {
	Alert     *Alert `json:"alert"`
	EventType string `json:"event_type"` // alert.created | alert.updated
}

// Ingest implements spec §4.3's dedup step: compute/normalize the
// dedup_key, look up an open Alert with that key, merge into it within the
// configured dedup window or persist a new one.
func (c *Core) Ingest(ctx context.Context, req NewAlertRequest, now time.Time) (*IngestResult, error) {
	dedupKey := req.DedupKey
	if dedupKey == "" {
		dedupKey = computeDedupKey(req)
	}

	existing, err := c.Alerts.FindOpenByDedupKey(ctx, req.TenantID, dedupKey)
	if err != nil {
		return nil, err
	}

	window := c.dedupWindow(req.Category, req.Severity)
	if existing != nil && now.Sub(existing.LastSeenAt) <= window {
		merged := mergeAlert(existing, req, now)
		if err := c.Alerts.Update(ctx, merged); err != nil {
			return nil, err
		}
		c.publish(merged, "alert.updated")
		return &IngestResult{Alert: merged, EventType: "alert.updated"}, nil
	}

	alert := &Alert{
		AlertID:      uuid.NewString(),
		TenantID:     req.TenantID,
		SourceModule: req.SourceModule,
		Plane:        req.Plane,
		ComponentID:  req.ComponentID,
		Severity:     req.Severity,
		Category:     req.Category,
		Summary:      req.Summary,
		Labels:       req.Labels,
		StartedAt:    now,
		LastSeenAt:   now,
		DedupKey:     dedupKey,
		Status:       "open",
	}
	if err := c.Alerts.Create(ctx, alert); err != nil {
		return nil, err
	}
	c.publish(alert, "alert.created")
	return &IngestResult{Alert: alert, EventType: "alert.created"}, nil
}

// computeDedupKey hashes (tenant_id, component_id, category,
// summary-fingerprint) when the caller supplies no dedup_key.
func computeDedupKey(req NewAlertRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", req.TenantID, req.ComponentID, req.Category, summaryFingerprint(req.Summary))
	return hex.EncodeToString(h.Sum(nil))
}

// summaryFingerprint truncates summary to its first 64 bytes so minor
// trailing detail (timestamps, counters) embedded in a summary string
// doesn't defeat deduplication.
func summaryFingerprint(summary string) string {
	if len(summary) <= 64 {
		return summary
	}
	return summary[:64]
}

// mergeAlert applies spec §4.3's merge rule: extend last_seen_at, refresh
// summary, upgrade severity only (never downgrade), re-evaluate labels.
func mergeAlert(existing *Alert, req NewAlertRequest, now time.Time) *Alert {
	merged := *existing
	merged.LastSeenAt = now
	merged.Summary = req.Summary
	if severityRank[req.Severity] > severityRank[merged.Severity] {
		merged.Severity = req.Severity
	}
	if req.Labels != nil {
		merged.Labels = req.Labels
	}
	return &merged
}

// dedupWindow resolves the configured window, preferring a per-category
// override, then per-severity, then the bundle default.
func (c *Core) dedupWindow(category, severity string) time.Duration {
	bundle := c.Policies.Current()
	if m, ok := bundle.Dedup.ByCategory[category]; ok {
		return time.Duration(m) * time.Minute
	}
	if m, ok := bundle.Dedup.BySeverity[severity]; ok {
		return time.Duration(m) * time.Minute
	}
	return time.Duration(bundle.Dedup.DefaultWindowMinutes) * time.Minute
}
