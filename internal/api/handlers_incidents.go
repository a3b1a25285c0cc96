package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/evplatform/eventplane/internal/errors"
)

// MitigateIncident handles POST incidents/{incident_id}/mitigate.
func (h *Handler) MitigateIncident(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "incident_id")
	tenantID := tenantFromContext(r.Context())
	incident, err := h.alerts.Incidents.Get(r.Context(), tenantID, incidentID)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	if err := h.alerts.Mitigate(r.Context(), incident); err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

type snoozeIncidentRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

// SnoozeIncident handles POST incidents/{incident_id}/snooze: since
// incidents don't carry their own snooze state, this snoozes every
// currently-open member alert, the practical effect of silencing the
// incident as a whole.
func (h *Handler) SnoozeIncident(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "incident_id")
	tenantID := tenantFromContext(r.Context())
	incident, err := h.alerts.Incidents.Get(r.Context(), tenantID, incidentID)
	if err != nil {
		writeProblem(w, r, err)
		return
	}

	var req snoozeIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "malformed request body")
		return
	}
	if req.DurationSeconds <= 0 {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "duration_seconds must be greater than 0")
		return
	}
	duration := time.Duration(req.DurationSeconds) * time.Second

	for _, alertID := range incident.AlertIDs {
		alert, err := h.alerts.Alerts.Get(r.Context(), tenantID, alertID)
		if err != nil || alert.Status != "open" {
			continue
		}
		_ = h.alerts.Snooze(r.Context(), alert, duration)
	}
	writeJSON(w, http.StatusOK, incident)
}
