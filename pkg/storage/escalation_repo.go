package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// EscalationRepo persists the unexecuted escalation steps ANC's persistent
// scheduler needs, spec §4.3's "schedule execute_step(alert, k) at now +
// delay_seconds via a persistent scheduler".
type EscalationRepo struct {
	db *sqlx.DB
}

func NewEscalationRepo(db *sqlx.DB) *EscalationRepo {
	return &EscalationRepo{db: db}
}

func (r *EscalationRepo) Schedule(ctx context.Context, s *EscalationStepRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO escalation_steps (step_id, alert_id, tenant_id, policy_id, step_order, next_attempt_at, dispatched)
		VALUES ($1, $2, $3, $4, $5, $6, false)`,
		s.StepID, s.AlertID, s.TenantID, s.PolicyID, s.StepOrder, s.NextAttemptAt)
	if err != nil {
		return apperrors.NewDatabaseError("schedule escalation step", err)
	}
	return nil
}

// DueSteps returns every undispatched step whose next_attempt_at has
// elapsed, the escalation scheduler's per-sweep work queue.
func (r *EscalationRepo) DueSteps(ctx context.Context, now time.Time) ([]EscalationStepRow, error) {
	var out []EscalationStepRow
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM escalation_steps
		WHERE dispatched = false AND next_attempt_at <= $1
		ORDER BY alert_id, step_order`, now)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list due escalation steps", err)
	}
	return out, nil
}

func (r *EscalationRepo) MarkDispatched(ctx context.Context, stepID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE escalation_steps SET dispatched = true WHERE step_id = $1`, stepID)
	if err != nil {
		return apperrors.NewDatabaseError("mark escalation step dispatched", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("escalation step " + stepID)
	}
	return nil
}
