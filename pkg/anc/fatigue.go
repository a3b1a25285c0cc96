package anc

import (
	"context"
	"time"

	"github.com/evplatform/eventplane/internal/config"
)

// FatigueDecision is the outcome of evaluating fatigue controls for one
// candidate notification.
type FatigueDecision struct {
	Allowed bool
	Reason  string // set when Allowed is false
}

// allow builds an FatigueDecision that passes.
func allow() FatigueDecision { return FatigueDecision{Allowed: true} }

func block(reason string) FatigueDecision {
	return FatigueDecision{Allowed: false, Reason: reason}
}

// CheckRateLimits implements spec §4.3's per_alert/per_user rate limits:
// reject creation if either window count would be exceeded.
func (c *Core) CheckRateLimits(ctx context.Context, alert *Alert, targetID string) (FatigueDecision, error) {
	bundle := c.Policies.Current()

	perAlert := bundle.Fatigue.RateLimits.PerAlert
	if perAlert.MaxNotifications > 0 {
		since := c.now().Add(-time.Duration(perAlert.WindowMinutes) * time.Minute)
		count, err := c.Notifications.CountForAlertSince(ctx, alert.AlertID, since)
		if err != nil {
			return FatigueDecision{}, err
		}
		if count >= perAlert.MaxNotifications {
			return block("rate_limit_per_alert"), nil
		}
	}

	perUser := bundle.Fatigue.RateLimits.PerUser
	if perUser.MaxNotifications > 0 {
		since := c.now().Add(-time.Duration(perUser.WindowMinutes) * time.Minute)
		count, err := c.Notifications.CountSentSince(ctx, targetID, since)
		if err != nil {
			return FatigueDecision{}, err
		}
		if count >= perUser.MaxNotifications {
			return block("rate_limit_per_user"), nil
		}
	}

	return allow(), nil
}

// InMaintenanceWindow reports whether (component_id, severity, now)
// matches a configured maintenance window (spec §4.3's "still persist
// (evidence) but do not dispatch").
func (c *Core) InMaintenanceWindow(alert *Alert, now time.Time) bool {
	for _, w := range c.Policies.Current().Fatigue.Maintenance {
		if w.ComponentID != "" && w.ComponentID != alert.ComponentID {
			continue
		}
		if w.Severity != "" && w.Severity != alert.Severity {
			continue
		}
		if withinClock(w, now) {
			return true
		}
	}
	return false
}

func withinClock(w config.MaintenanceWindow, now time.Time) bool {
	start, errStart := time.Parse(time.RFC3339, w.Start)
	end, errEnd := time.Parse(time.RFC3339, w.End)
	if errStart != nil || errEnd != nil {
		return false
	}
	return !now.Before(start) && now.Before(end)
}

// CheckPreference implements spec §4.3's quiet-hours/preference gate:
// returns an Allowed=false decision with reason
// "quiet_hours_or_preference" when the channel is disallowed, below the
// user's severity threshold for that channel, or falls within their
// quiet-hours window.
func (c *Core) CheckPreference(ctx context.Context, alert *Alert, targetID, channel string, now time.Time) (FatigueDecision, error) {
	if c.Preferences == nil {
		return allow(), nil
	}
	pref, err := c.Preferences.Get(ctx, alert.TenantID, targetID)
	if err != nil {
		return FatigueDecision{}, err
	}
	if pref == nil {
		return allow(), nil
	}

	if pref.AllowedChannels != nil && !pref.AllowedChannels[channel] {
		return block("quiet_hours_or_preference"), nil
	}

	if threshold, ok := pref.SeverityThreshold[channel]; ok {
		if severityRank[alert.Severity] < severityRank[threshold] {
			return block("quiet_hours_or_preference"), nil
		}
	}

	if inQuietHours(pref, now) {
		return block("quiet_hours_or_preference"), nil
	}

	return allow(), nil
}

// inQuietHours evaluates pref's quiet-hours window in the user's timezone.
// Malformed timezone/time data fails open (no suppression) rather than
// silently blocking every dispatch.
func inQuietHours(pref *UserPreference, now time.Time) bool {
	if pref.QuietHoursStart == "" || pref.QuietHoursEnd == "" {
		return false
	}
	loc, err := time.LoadLocation(pref.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)

	start, errStart := time.ParseInLocation("15:04", pref.QuietHoursStart, loc)
	end, errEnd := time.ParseInLocation("15:04", pref.QuietHoursEnd, loc)
	if errStart != nil || errEnd != nil {
		return false
	}

	nowMinutes := local.Hour()*60 + local.Minute()
	startMinutes := start.Hour()*60 + start.Minute()
	endMinutes := end.Hour()*60 + end.Minute()

	if startMinutes <= endMinutes {
		return nowMinutes >= startMinutes && nowMinutes < endMinutes
	}
	// Window wraps midnight (e.g. 22:00-06:00).
	return nowMinutes >= startMinutes || nowMinutes < endMinutes
}

// CheckIncidentSuppression implements spec §4.3's
// suppress_followup_during_incident: if the alert's incident already
// produced a notification within suppress_window_minutes, suppress
// follow-ups.
func (c *Core) CheckIncidentSuppression(ctx context.Context, alert *Alert, now time.Time) (FatigueDecision, error) {
	bundle := c.Policies.Current()
	if !bundle.Fatigue.Suppression.SuppressFollowupDuringIncident || alert.IncidentID == "" {
		return allow(), nil
	}

	window := time.Duration(bundle.Fatigue.Suppression.SuppressWindowMinutes) * time.Minute
	last, err := c.Notifications.LatestForIncidentSince(ctx, alert.IncidentID, now.Add(-window))
	if err != nil {
		return FatigueDecision{}, err
	}
	if last != nil {
		return block("incident_suppression"), nil
	}
	return allow(), nil
}
