package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/iaf"
)

type executeActionRequest struct {
	TenantID       string                 `json:"tenant_id"`
	ConnectionID   string                 `json:"connection_id" validate:"required"`
	CanonicalType  string                 `json:"canonical_type" validate:"required"`
	Target         map[string]interface{} `json:"target"`
	Payload        map[string]interface{} `json:"payload"`
	IdempotencyKey string                 `json:"idempotency_key" validate:"required"`
	CorrelationID  string                 `json:"correlation_id"`
}

// ExecuteAction handles POST integrations/actions/execute, forwarding the
// request to iaf.ActionExecutor.Execute, which itself short-circuits on a
// matching idempotency key before touching the breaker-wrapped adapter.
func (h *Handler) ExecuteAction(w http.ResponseWriter, r *http.Request) {
	var req executeActionRequest
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

	stored, err := h.actionExecutor.Execute(r.Context(), iaf.Action{
		TenantID:       req.TenantID,
		ConnectionID:   req.ConnectionID,
		CanonicalType:  req.CanonicalType,
		Target:         req.Target,
		Payload:        req.Payload,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  req.CorrelationID,
	})
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}
