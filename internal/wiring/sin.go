// Package wiring adapts pkg/storage's persistence layer and the four
// external collaborators (KMS, IAM, Budget, ERIS) spec §1 calls out onto
// the narrow interfaces pkg/sin, pkg/iaf and pkg/anc each define for
// themselves, keeping those packages decoupled from pkg/storage the same
// way the teacher keeps its services decoupled from its repository layer.
package wiring

import (
	"context"

	"github.com/evplatform/eventplane/pkg/envelope"
	"github.com/evplatform/eventplane/pkg/sin"
	"github.com/evplatform/eventplane/pkg/storage"
)

// ProducerStore adapts storage.ProducerRepo to sin.ProducerStore.
type ProducerStore struct {
	Repo *storage.ProducerRepo
}

func (s *ProducerStore) Get(ctx context.Context, producerID string) (*envelope.ProducerRegistration, error) {
	row, err := s.Repo.Get(ctx, producerID)
	if err != nil {
		return nil, err
	}
	return toProducerRegistration(row), nil
}

func toProducerRegistration(row *storage.ProducerRegistration) *envelope.ProducerRegistration {
	kinds := make([]envelope.SignalKind, 0, len(row.AllowedSignalKinds))
	for _, k := range row.AllowedSignalKinds {
		kinds = append(kinds, envelope.SignalKind(k))
	}
	return &envelope.ProducerRegistration{
		ProducerID:         row.ProducerID,
		TenantID:           row.TenantID,
		Plane:              row.Plane,
		AllowedSignalKinds: kinds,
		AllowedSignalTypes: row.AllowedSignalTypes,
		ContractVersions:   decodeStringMap(row.ContractVersions),
		Status:             row.Status,
	}
}

// ContractStore adapts storage.ContractRepo to sin.ContractStore.
type ContractStore struct {
	Repo *storage.ContractRepo
}

func (s *ContractStore) Get(ctx context.Context, signalType, schemaVersion string) (*envelope.DataContract, error) {
	row, err := s.Repo.Get(ctx, signalType, schemaVersion)
	if err != nil {
		return nil, err
	}
	return &envelope.DataContract{
		SignalType:      row.SignalType,
		ContractVersion: row.ContractVersion,
		RequiredFields:  row.RequiredFields,
		OptionalFields:  row.OptionalFields,
		FieldMappings:   decodeStringMap(row.FieldMappings),
		UnitConversions: decodeStringMap(row.UnitConversions),
		PIIFlags:        row.PIIFlags,
		SecretsFlags:    row.SecretsFlags,
	}, nil
}

// GovernanceStore adapts storage.GovernanceRepo to sin.GovernanceStore.
type GovernanceStore struct {
	Repo *storage.GovernanceRepo
}

func (s *GovernanceStore) DisallowedFields(ctx context.Context, tenantID, signalType string) ([]string, error) {
	return s.Repo.DisallowedFields(ctx, tenantID, signalType)
}

// DLQSink adapts storage.DLQRepo to sin.DLQSink.
type DLQSink struct {
	Repo *storage.DLQRepo
}

func (s *DLQSink) Put(ctx context.Context, entry sin.DLQEntry) error {
	return s.Repo.Insert(ctx, &storage.DLQEntry{
		DLQID:              entry.DLQID,
		SignalID:           entry.SignalID,
		TenantID:           entry.TenantID,
		ProducerID:         entry.ProducerID,
		SignalType:         entry.SignalType,
		ErrorCode:          entry.ErrorCode,
		ErrorMessage:       entry.ErrorMessage,
		RetryCount:         entry.RetryCount,
		OriginalPayloadRef: entry.OriginalPayloadRef,
	})
}
