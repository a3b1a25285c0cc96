package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// GovernanceRepo persists each tenant's per-signal_type disallowed-field
// deny-list, spec §4.1 stage 4's governance check.
type GovernanceRepo struct {
	db *sqlx.DB
}

func NewGovernanceRepo(db *sqlx.DB) *GovernanceRepo {
	return &GovernanceRepo{db: db}
}

// DisallowedFields returns tenantID's deny-list for signalType, or an
// empty slice if the tenant has no governance rule for it.
func (r *GovernanceRepo) DisallowedFields(ctx context.Context, tenantID, signalType string) ([]string, error) {
	var row TenantGovernanceRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM tenant_governance WHERE tenant_id = $1 AND signal_type = $2`,
		tenantID, signalType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get tenant governance rule", err)
	}
	return row.DisallowedFields, nil
}

// Set upserts tenantID's deny-list for signalType.
func (r *GovernanceRepo) Set(ctx context.Context, tenantID, signalType string, disallowedFields []string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenant_governance (tenant_id, signal_type, disallowed_fields)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, signal_type) DO UPDATE SET disallowed_fields = EXCLUDED.disallowed_fields`,
		tenantID, signalType, pqStringArray(disallowedFields))
	if err != nil {
		return apperrors.NewDatabaseError("set tenant governance rule", err)
	}
	return nil
}
