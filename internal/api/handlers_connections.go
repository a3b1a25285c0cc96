package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/storage"
)

type createConnectionRequest struct {
	TenantID            string   `json:"tenant_id"`
	ProviderID          string   `json:"provider_id" validate:"required"`
	AuthRef             string   `json:"auth_ref" validate:"required"`
	EnabledCapabilities []string `json:"enabled_capabilities" validate:"dive,oneof=webhook polling outbound_actions"`
}

// CreateConnection handles POST integrations/connections, seeding a
// connection in "pending_verification" status (storage.ConnectionRepo.Create
// defaults Status when unset).
func (h *Handler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
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

	row := &storage.IntegrationConnection{
		ConnectionID:        newID(),
		TenantID:            req.TenantID,
		ProviderID:          req.ProviderID,
		AuthRef:             req.AuthRef,
		EnabledCapabilities: req.EnabledCapabilities,
	}
	if err := h.connections.Create(r.Context(), row); err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

// VerifyConnection handles POST integrations/connections/{id}/verify: it
// resolves the live adapter and runs its cheap liveness probe, flipping the
// connection to active or failed_verification depending on the result.
func (h *Handler) VerifyConnection(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "connection_id")
	conn, err := h.connections.Get(r.Context(), connectionID)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	if err := requireTenantMatch(r.Context(), conn.TenantID); err != nil {
		writeProblem(w, r, err)
		return
	}

	adapter, err := h.registry.Get(r.Context(), connectionID)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	ok, verr := adapter.VerifyConnection(r.Context())
	if verr != nil || !ok {
		_ = h.connections.SetStatus(r.Context(), connectionID, "failed_verification")
		if verr != nil {
			writeProblem(w, r, verr)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"connection_id": connectionID, "status": "failed_verification"})
		return
	}

	if err := h.connections.SetStatus(r.Context(), connectionID, "active"); err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"connection_id": connectionID, "status": "active"})
}

type patchConnectionRequest struct {
	Status string `json:"status"`
}

// PatchConnection handles PATCH integrations/connections/{id}, the manual
// status override path (e.g. suspending a misbehaving connection).
func (h *Handler) PatchConnection(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "connection_id")
	conn, err := h.connections.Get(r.Context(), connectionID)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	if err := requireTenantMatch(r.Context(), conn.TenantID); err != nil {
		writeProblem(w, r, err)
		return
	}

	var req patchConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "malformed request body")
		return
	}
	if req.Status == "" {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "status is required")
		return
	}
	if err := h.connections.SetStatus(r.Context(), connectionID, req.Status); err != nil {
		writeProblem(w, r, err)
		return
	}
	h.registry.Forget(connectionID)
	writeJSON(w, http.StatusOK, map[string]string{"connection_id": connectionID, "status": req.Status})
}
