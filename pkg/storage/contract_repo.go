package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// ContractRepo persists DataContract rows, immutable once published per
// spec §3.
type ContractRepo struct {
	db *sqlx.DB
}

func NewContractRepo(db *sqlx.DB) *ContractRepo {
	return &ContractRepo{db: db}
}

// Get resolves a (signal_type, contract_version) contract.
func (r *ContractRepo) Get(ctx context.Context, signalType, contractVersion string) (*DataContractRow, error) {
	var c DataContractRow
	err := r.db.GetContext(ctx, &c,
		`SELECT * FROM data_contracts WHERE signal_type = $1 AND contract_version = $2`,
		signalType, contractVersion)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("data contract " + signalType + "/" + contractVersion)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get data contract", err)
	}
	return &c, nil
}

// Publish inserts a new contract version; existing versions are never
// mutated in place.
func (r *ContractRepo) Publish(ctx context.Context, c *DataContractRow) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO data_contracts
			(signal_type, contract_version, required_fields, optional_fields, field_mappings, unit_conversions, pii_flags, secrets_flags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (signal_type, contract_version) DO NOTHING`,
		c.SignalType, c.ContractVersion, pqStringArray(c.RequiredFields), pqStringArray(c.OptionalFields),
		c.FieldMappings, c.UnitConversions, pqStringArray(c.PIIFlags), pqStringArray(c.SecretsFlags))
	if err != nil {
		return apperrors.NewDatabaseError("publish data contract", err)
	}
	return nil
}
