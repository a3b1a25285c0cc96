package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// ActionRepo persists NormalisedAction rows. The (tenant_id,
// idempotency_key) unique index (migrations/00001) backs spec §3's
// invariant: resubmission with the same key returns the existing terminal
// result instead of re-executing the action.
type ActionRepo struct {
	db *sqlx.DB
}

func NewActionRepo(db *sqlx.DB) *ActionRepo {
	return &ActionRepo{db: db}
}

// FindByIdempotencyKey returns the existing action for (tenant_id,
// idempotency_key), or ErrorTypeNotFound if this is a first submission.
func (r *ActionRepo) FindByIdempotencyKey(ctx context.Context, tenantID, idempotencyKey string) (*NormalisedAction, error) {
	var a NormalisedAction
	err := r.db.GetContext(ctx, &a,
		`SELECT * FROM normalised_actions WHERE tenant_id = $1 AND idempotency_key = $2`,
		tenantID, idempotencyKey)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("action with idempotency key " + idempotencyKey)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("find action by idempotency key", err)
	}
	return &a, nil
}

// MarkProcessing transitions an action from pending to processing, the
// marker iaf.ActionExecutor sets right before invoking the adapter.
func (r *ActionRepo) MarkProcessing(ctx context.Context, actionID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE normalised_actions SET status = 'processing', updated_at = now() WHERE action_id = $1`,
		actionID)
	if err != nil {
		return apperrors.NewDatabaseError("mark action processing", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("normalised action " + actionID)
	}
	return nil
}

func (r *ActionRepo) Create(ctx context.Context, a *NormalisedAction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO normalised_actions
			(action_id, tenant_id, connection_id, canonical_type, target, payload, idempotency_key, correlation_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		a.ActionID, a.TenantID, a.ConnectionID, a.CanonicalType, a.Target, a.Payload,
		a.IdempotencyKey, a.CorrelationID, firstNonEmpty(a.Status, "pending"))
	if err != nil {
		return apperrors.NewDatabaseError("create normalised action", err)
	}
	return nil
}

// Complete marks an action terminal and stores its provider result. The
// IAF wiring passes "succeeded" or "failed" (it rewrites "completed" to
// "succeeded"), so no action row is ever stored as "completed".
func (r *ActionRepo) Complete(ctx context.Context, actionID, status string, result json.RawMessage) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE normalised_actions SET status = $2, result = $3, updated_at = now() WHERE action_id = $1`,
		actionID, status, result)
	if err != nil {
		return apperrors.NewDatabaseError("complete normalised action", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("normalised action " + actionID)
	}
	return nil
}

func (r *ActionRepo) Get(ctx context.Context, actionID string) (*NormalisedAction, error) {
	var a NormalisedAction
	err := r.db.GetContext(ctx, &a, `SELECT * FROM normalised_actions WHERE action_id = $1`, actionID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("normalised action " + actionID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get normalised action", err)
	}
	return &a, nil
}
