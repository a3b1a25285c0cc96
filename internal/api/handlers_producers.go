package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/storage"
)

type registerProducerRequest struct {
	ProducerID         string            `json:"producer_id" validate:"required"`
	TenantID           string            `json:"tenant_id"`
	Plane              string            `json:"plane"`
	AllowedSignalKinds []string          `json:"allowed_signal_kinds" validate:"dive,oneof=event metric log trace"`
	AllowedSignalTypes []string          `json:"allowed_signal_types"`
	ContractVersions   map[string]string `json:"contract_versions"`
}

// RegisterProducer handles POST producers/register, an upsert per
// storage.ProducerRepo.Register's "never silently deleted" semantics.
func (h *Handler) RegisterProducer(w http.ResponseWriter, r *http.Request) {
	var req registerProducerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "malformed request body")
		return
	}
	if err := validateRequest(&req); err != nil {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, err.Error())
		return
	}
	if err := requireTenantMatch(r.Context(), req.TenantID); err != nil {
		writeProblem(w, r, err)
		return
	}
	if req.TenantID == "" {
		req.TenantID = tenantFromContext(r.Context())
	}

	contractVersions, err := json.Marshal(req.ContractVersions)
	if err != nil {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "malformed contract_versions")
		return
	}
	row := &storage.ProducerRegistration{
		ProducerID:         req.ProducerID,
		TenantID:           req.TenantID,
		Plane:              req.Plane,
		AllowedSignalKinds: req.AllowedSignalKinds,
		AllowedSignalTypes: req.AllowedSignalTypes,
		ContractVersions:   contractVersions,
	}
	if err := h.producers.Register(r.Context(), row); err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

// GetProducer handles GET producers/{producer_id}.
func (h *Handler) GetProducer(w http.ResponseWriter, r *http.Request) {
	producerID := chi.URLParam(r, "producer_id")
	row, err := h.producers.Get(r.Context(), producerID)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	if err := requireTenantMatch(r.Context(), row.TenantID); err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type updateProducerRequest struct {
	Status string `json:"status"`
}

// UpdateProducer handles PUT producers/{producer_id}, currently a status
// transition (e.g. active -> suspended); the row is never deleted.
func (h *Handler) UpdateProducer(w http.ResponseWriter, r *http.Request) {
	producerID := chi.URLParam(r, "producer_id")
	existing, err := h.producers.Get(r.Context(), producerID)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	if err := requireTenantMatch(r.Context(), existing.TenantID); err != nil {
		writeProblem(w, r, err)
		return
	}

	var req updateProducerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "malformed request body")
		return
	}
	if req.Status == "" {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "status is required")
		return
	}
	if err := h.producers.UpdateStatus(r.Context(), producerID, req.Status); err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"producer_id": producerID, "status": req.Status})
}
