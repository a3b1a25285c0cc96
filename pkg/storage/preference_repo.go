package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// PreferenceRepo persists per-user notification preferences (spec §4.3's
// fatigue control "preference store").
type PreferenceRepo struct {
	db *sqlx.DB
}

func NewPreferenceRepo(db *sqlx.DB) *PreferenceRepo {
	return &PreferenceRepo{db: db}
}

func (r *PreferenceRepo) Get(ctx context.Context, tenantID, userID string) (*UserPreferenceRow, error) {
	var p UserPreferenceRow
	err := r.db.GetContext(ctx, &p,
		`SELECT * FROM user_preferences WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("preferences for user " + userID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get user preferences", err)
	}
	return &p, nil
}

func (r *PreferenceRepo) Set(ctx context.Context, p *UserPreferenceRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_preferences
			(tenant_id, user_id, allowed_channels, severity_threshold, quiet_hours_start, quiet_hours_end, timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			allowed_channels = EXCLUDED.allowed_channels,
			severity_threshold = EXCLUDED.severity_threshold,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			timezone = EXCLUDED.timezone`,
		p.TenantID, p.UserID, pqStringArray(p.AllowedChannels), p.SeverityThreshold,
		p.QuietHoursStart, p.QuietHoursEnd, firstNonEmpty(p.Timezone, "UTC"))
	if err != nil {
		return apperrors.NewDatabaseError("set user preferences", err)
	}
	return nil
}
