package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// NotificationRepo persists Notification rows created by ANC routing and
// updated by the dispatcher.
type NotificationRepo struct {
	db *sqlx.DB
}

func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) Create(ctx context.Context, n *Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications
			(notification_id, alert_id, tenant_id, incident_id, target_id, channel, status, attempts, policy_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		n.NotificationID, n.AlertID, n.TenantID, n.IncidentID, n.TargetID, n.Channel, firstNonEmpty(n.Status, "pending"), n.Attempts, n.PolicyID)
	if err != nil {
		return apperrors.NewDatabaseError("create notification", err)
	}
	return nil
}

// Update persists every mutable field on n, the dispatcher's general
// status/attempt/schedule transition.
func (r *NotificationRepo) Update(ctx context.Context, n *Notification) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET status = $2, attempts = $3, next_attempt_at = $4, failure_reason = $5, updated_at = now()
		WHERE notification_id = $1`,
		n.NotificationID, n.Status, n.Attempts, n.NextAttemptAt, n.FailureReason)
	if err != nil {
		return apperrors.NewDatabaseError("update notification", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return apperrors.NewNotFoundError("notification " + n.NotificationID)
	}
	return nil
}

// DuePendingRetries returns notifications whose next_attempt_at has
// elapsed, the dispatcher's retry-loop work queue.
func (r *NotificationRepo) DuePendingRetries(ctx context.Context, before time.Time, limit int) ([]Notification, error) {
	var out []Notification
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM notifications
		WHERE status = 'pending' AND (next_attempt_at IS NULL OR next_attempt_at <= $1)
		ORDER BY next_attempt_at NULLS FIRST
		LIMIT $2`, before, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list due notifications", err)
	}
	return out, nil
}

// CountForAlertSince counts notifications dispatched for alertID since
// since, the per-alert fatigue rate-limit query (spec §3
// fatigue.rate_limits.per_alert).
func (r *NotificationRepo) CountForAlertSince(ctx context.Context, alertID string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT count(*) FROM notifications
		WHERE alert_id = $1 AND status = 'sent' AND updated_at >= $2`, alertID, since)
	if err != nil {
		return 0, apperrors.NewDatabaseError("count notifications for alert", err)
	}
	return count, nil
}

// LatestForIncidentSince returns the most recently updated notification
// for incidentID since since, or nil if none, backing incident-suppression
// (spec §4.3 fatigue control "incident has notified within window").
func (r *NotificationRepo) LatestForIncidentSince(ctx context.Context, incidentID string, since time.Time) (*Notification, error) {
	var n Notification
	err := r.db.GetContext(ctx, &n, `
		SELECT * FROM notifications
		WHERE incident_id = $1 AND updated_at >= $2
		ORDER BY updated_at DESC
		LIMIT 1`, incidentID, since)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("find latest notification for incident", err)
	}
	return &n, nil
}

func (r *NotificationRepo) RecordAttempt(ctx context.Context, notificationID string, nextAttemptAt *time.Time, failureReason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET attempts = attempts + 1, next_attempt_at = $2, failure_reason = $3, updated_at = now()
		WHERE notification_id = $1`,
		notificationID, nextAttemptAt, failureReason)
	if err != nil {
		return apperrors.NewDatabaseError("record notification attempt", err)
	}
	return nil
}

func (r *NotificationRepo) SetTerminal(ctx context.Context, notificationID, status, failureReason string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET status = $2, failure_reason = $3, updated_at = now() WHERE notification_id = $1`,
		notificationID, status, failureReason)
	if err != nil {
		return apperrors.NewDatabaseError("set notification terminal", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("notification " + notificationID)
	}
	return nil
}

func (r *NotificationRepo) Get(ctx context.Context, notificationID string) (*Notification, error) {
	var n Notification
	err := r.db.GetContext(ctx, &n, `SELECT * FROM notifications WHERE notification_id = $1`, notificationID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("notification " + notificationID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get notification", err)
	}
	return &n, nil
}

// CountSentSince counts notifications sent to targetID since since, the
// per-user fatigue rate-limit query (spec §3 fatigue.rate_limits.per_user).
func (r *NotificationRepo) CountSentSince(ctx context.Context, targetID string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT count(*) FROM notifications
		WHERE target_id = $1 AND status = 'sent' AND updated_at >= $2`, targetID, since)
	if err != nil {
		return 0, apperrors.NewDatabaseError("count sent notifications", err)
	}
	return count, nil
}
