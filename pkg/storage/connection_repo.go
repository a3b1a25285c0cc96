package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// ConnectionRepo persists IntegrationConnection, WebhookRegistration and
// PollingCursor rows, the three records owned by a tenant's integration
// connection per spec §3.
type ConnectionRepo struct {
	db *sqlx.DB
}

func NewConnectionRepo(db *sqlx.DB) *ConnectionRepo {
	return &ConnectionRepo{db: db}
}

func (r *ConnectionRepo) Create(ctx context.Context, c *IntegrationConnection) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO integration_connections
			(connection_id, tenant_id, provider_id, auth_ref, enabled_capabilities, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())`,
		c.ConnectionID, c.TenantID, c.ProviderID, c.AuthRef,
		pqStringArray(c.EnabledCapabilities), firstNonEmpty(c.Status, "pending_verification"))
	if err != nil {
		return apperrors.NewDatabaseError("create integration connection", err)
	}
	return nil
}

func (r *ConnectionRepo) Get(ctx context.Context, connectionID string) (*IntegrationConnection, error) {
	var c IntegrationConnection
	err := r.db.GetContext(ctx, &c, `SELECT * FROM integration_connections WHERE connection_id = $1`, connectionID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("integration connection " + connectionID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get integration connection", err)
	}
	return &c, nil
}

func (r *ConnectionRepo) SetStatus(ctx context.Context, connectionID, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE integration_connections SET status = $2, updated_at = now() WHERE connection_id = $1`,
		connectionID, status)
	if err != nil {
		return apperrors.NewDatabaseError("update integration connection status", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("integration connection " + connectionID)
	}
	return nil
}

func (r *ConnectionRepo) CreateWebhookRegistration(ctx context.Context, w *WebhookRegistration) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_registrations (registration_id, connection_id, secret_ref, events_subscribed, status, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		w.RegistrationID, w.ConnectionID, w.SecretRef, pqStringArray(w.EventsSubscribed), firstNonEmpty(w.Status, "active"))
	if err != nil {
		return apperrors.NewDatabaseError("create webhook registration", err)
	}
	return nil
}

// GetWebhookRegistration resolves a webhook by its public registration_id,
// the token carried on every inbound webhook URL per spec §3/§9 (never the
// raw connection_id).
func (r *ConnectionRepo) GetWebhookRegistration(ctx context.Context, registrationID string) (*WebhookRegistration, error) {
	var w WebhookRegistration
	err := r.db.GetContext(ctx, &w, `SELECT * FROM webhook_registrations WHERE registration_id = $1`, registrationID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("webhook registration " + registrationID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get webhook registration", err)
	}
	return &w, nil
}

// PollableConnectionRow is the join ListPollable needs: a connection with
// polling enabled plus its last-polled timestamp, defaulted to the Unix
// epoch for a connection never polled before.
type PollableConnectionRow struct {
	ConnectionID        string    `db:"connection_id"`
	TenantID            string    `db:"tenant_id"`
	ProviderID          string    `db:"provider_id"`
	PollIntervalSeconds int       `db:"poll_interval_seconds"`
	LastPolledAt        time.Time `db:"last_polled_at"`
}

// ListPollable lists every enabled connection with the "poll" capability,
// the poller's per-tick sweep candidate set (spec §4.2).
func (r *ConnectionRepo) ListPollable(ctx context.Context) ([]PollableConnectionRow, error) {
	var out []PollableConnectionRow
	err := r.db.SelectContext(ctx, &out, `
		SELECT c.connection_id, c.tenant_id, c.provider_id, c.poll_interval_seconds,
		       COALESCE(p.last_polled_at, 'epoch'::timestamptz) AS last_polled_at
		FROM integration_connections c
		LEFT JOIN polling_cursors p ON p.connection_id = c.connection_id
		WHERE c.status = 'active' AND 'poll' = ANY(c.enabled_capabilities)`)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list pollable connections", err)
	}
	return out, nil
}

func (r *ConnectionRepo) GetPollingCursor(ctx context.Context, connectionID string) (*PollingCursor, error) {
	var c PollingCursor
	err := r.db.GetContext(ctx, &c, `SELECT * FROM polling_cursors WHERE connection_id = $1`, connectionID)
	if err == sql.ErrNoRows {
		return &PollingCursor{ConnectionID: connectionID}, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get polling cursor", err)
	}
	return &c, nil
}

func (r *ConnectionRepo) SavePollingCursor(ctx context.Context, connectionID, position string, polledAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO polling_cursors (connection_id, cursor_position, last_polled_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (connection_id) DO UPDATE SET cursor_position = EXCLUDED.cursor_position, last_polled_at = EXCLUDED.last_polled_at`,
		connectionID, position, polledAt)
	if err != nil {
		return apperrors.NewDatabaseError("save polling cursor", err)
	}
	return nil
}
