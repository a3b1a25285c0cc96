package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/storage"
)

type setPreferencesRequest struct {
	TenantID          string            `json:"tenant_id"`
	UserID            string            `json:"user_id"`
	AllowedChannels   []string          `json:"allowed_channels"`
	SeverityThreshold map[string]string `json:"severity_threshold"`
	QuietHoursStart   string            `json:"quiet_hours_start"`
	QuietHoursEnd     string            `json:"quiet_hours_end"`
	Timezone          string            `json:"timezone"`
}

// SetPreferences handles POST preferences, an upsert of one user's
// notification preferences (storage.PreferenceRepo.Set).
func (h *Handler) SetPreferences(w http.ResponseWriter, r *http.Request) {
	var req setPreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "malformed request body")
		return
	}
	if req.UserID == "" {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "user_id is required")
		return
	}
	if err := requireTenantMatch(r.Context(), req.TenantID); err != nil {
		writeProblem(w, r, err)
		return
	}
	if req.TenantID == "" {
		req.TenantID = tenantFromContext(r.Context())
	}

	threshold, err := json.Marshal(req.SeverityThreshold)
	if err != nil {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "invalid severity_threshold")
		return
	}

	row := &storage.UserPreferenceRow{
		TenantID:          req.TenantID,
		UserID:            req.UserID,
		AllowedChannels:    req.AllowedChannels,
		SeverityThreshold: threshold,
		QuietHoursStart:   req.QuietHoursStart,
		QuietHoursEnd:     req.QuietHoursEnd,
		Timezone:          req.Timezone,
	}
	if err := h.preferences.Set(r.Context(), row); err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}
