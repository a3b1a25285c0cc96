package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// ProducerRepo persists ProducerRegistration rows.
type ProducerRepo struct {
	db *sqlx.DB
}

func NewProducerRepo(db *sqlx.DB) *ProducerRepo {
	return &ProducerRepo{db: db}
}

// Register upserts a producer registration (create or update, never
// silently deleted, per spec §3's lifecycle note).
func (r *ProducerRepo) Register(ctx context.Context, p *ProducerRegistration) error {
	contractVersions := p.ContractVersions
	if contractVersions == nil {
		contractVersions = json.RawMessage("{}")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO producer_registrations
			(producer_id, tenant_id, plane, allowed_signal_kinds, allowed_signal_types, contract_versions, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (producer_id) DO UPDATE SET
			plane = EXCLUDED.plane,
			allowed_signal_kinds = EXCLUDED.allowed_signal_kinds,
			allowed_signal_types = EXCLUDED.allowed_signal_types,
			contract_versions = EXCLUDED.contract_versions,
			status = EXCLUDED.status,
			updated_at = now()`,
		p.ProducerID, p.TenantID, p.Plane,
		pqStringArray(p.AllowedSignalKinds), pqStringArray(p.AllowedSignalTypes),
		contractVersions, firstNonEmpty(p.Status, "active"))
	if err != nil {
		return apperrors.NewDatabaseError("register producer", err)
	}
	return nil
}

// Get looks up a producer by id, returning ErrorTypeNotFound when absent.
func (r *ProducerRepo) Get(ctx context.Context, producerID string) (*ProducerRegistration, error) {
	var p ProducerRegistration
	err := r.db.GetContext(ctx, &p, `SELECT * FROM producer_registrations WHERE producer_id = $1`, producerID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("producer " + producerID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get producer", err)
	}
	return &p, nil
}

// UpdateStatus transitions a producer's status (e.g. active -> suspended);
// the row itself is never deleted.
func (r *ProducerRepo) UpdateStatus(ctx context.Context, producerID, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE producer_registrations SET status = $2, updated_at = now() WHERE producer_id = $1`,
		producerID, status)
	if err != nil {
		return apperrors.NewDatabaseError("update producer status", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("producer " + producerID)
	}
	return nil
}

func firstNonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
