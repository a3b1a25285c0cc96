package storage

import (
	"context"
	"strconv"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// DLQRepo persists DLQEntry rows, inspectable by (tenant_id, producer_id,
// signal_type) and deleted only by explicit operator action (spec §4.1).
type DLQRepo struct {
	db *sqlx.DB
}

func NewDLQRepo(db *sqlx.DB) *DLQRepo {
	return &DLQRepo{db: db}
}

func (r *DLQRepo) Insert(ctx context.Context, e *DLQEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dlq_entries
			(dlq_id, signal_id, tenant_id, producer_id, signal_type, error_code, error_message, retry_count, original_payload_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
		e.DLQID, e.SignalID, e.TenantID, e.ProducerID, e.SignalType,
		e.ErrorCode, e.ErrorMessage, e.RetryCount, e.OriginalPayloadRef)
	if err != nil {
		return apperrors.NewDatabaseError("insert dlq entry", err)
	}
	return nil
}

// List paginates DLQ entries for one tenant/producer/signal_type filter.
// Cross-tenant inspection is forbidden, so tenantID is always required.
func (r *DLQRepo) List(ctx context.Context, tenantID, producerID, signalType string, limit, offset int) ([]DLQEntry, error) {
	query := `SELECT * FROM dlq_entries WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if producerID != "" {
		args = append(args, producerID)
		query += ` AND producer_id = $` + strconv.Itoa(len(args))
	}
	if signalType != "" {
		args = append(args, signalType)
		query += ` AND signal_type = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	var entries []DLQEntry
	if err := r.db.SelectContext(ctx, &entries, r.db.Rebind(query), args...); err != nil {
		return nil, apperrors.NewDatabaseError("list dlq entries", err)
	}
	return entries, nil
}

// Count returns the total matching entries for the same filter List
// applies, backing the paginated listing's total field.
func (r *DLQRepo) Count(ctx context.Context, tenantID, producerID, signalType string) (int, error) {
	query := `SELECT count(*) FROM dlq_entries WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if producerID != "" {
		args = append(args, producerID)
		query += ` AND producer_id = $` + strconv.Itoa(len(args))
	}
	if signalType != "" {
		args = append(args, signalType)
		query += ` AND signal_type = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind(query), args...); err != nil {
		return 0, apperrors.NewDatabaseError("count dlq entries", err)
	}
	return total, nil
}

// Delete removes a DLQ entry by explicit operator action.
func (r *DLQRepo) Delete(ctx context.Context, tenantID, dlqID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dlq_entries WHERE dlq_id = $1 AND tenant_id = $2`, dlqID, tenantID)
	if err != nil {
		return apperrors.NewDatabaseError("delete dlq entry", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("dlq entry " + dlqID)
	}
	return nil
}
