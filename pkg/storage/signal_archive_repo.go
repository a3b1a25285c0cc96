package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// SignalArchiveRow is one envelope routed to the analytics_store or
// evidence_store fan-out class (spec §4.1 stage 8). The table is not
// partitioned; an index on (tenant_id, dt) serves lookups.
type SignalArchiveRow struct {
	SignalID     string          `db:"signal_id"`
	TenantID     string          `db:"tenant_id"`
	Dt           time.Time       `db:"dt"`
	RoutingClass string          `db:"routing_class"`
	SignalType   string          `db:"signal_type"`
	ProducerID   string          `db:"producer_id"`
	OccurredAt   time.Time       `db:"occurred_at"`
	Payload      json.RawMessage `db:"payload"`
}

// SignalArchiveRepo persists signal_archive rows.
type SignalArchiveRepo struct {
	db *sqlx.DB
}

func NewSignalArchiveRepo(db *sqlx.DB) *SignalArchiveRepo {
	return &SignalArchiveRepo{db: db}
}

func (r *SignalArchiveRepo) Insert(ctx context.Context, row *SignalArchiveRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO signal_archive (signal_id, tenant_id, dt, routing_class, signal_type, producer_id, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (signal_id) DO NOTHING`,
		row.SignalID, row.TenantID, row.Dt, row.RoutingClass, row.SignalType, row.ProducerID, row.OccurredAt, row.Payload)
	if err != nil {
		return apperrors.NewDatabaseError("insert signal archive row", err)
	}
	return nil
}
