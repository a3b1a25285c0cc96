package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/anc"
	"github.com/evplatform/eventplane/pkg/storage"
)

type createAlertRequest struct {
	TenantID     string            `json:"tenant_id"`
	SourceModule string            `json:"source_module"`
	Plane        string            `json:"plane"`
	ComponentID  string            `json:"component_id" validate:"required"`
	Severity     string            `json:"severity" validate:"required,oneof=P0 P1 P2 P3 P4"`
	Category     string            `json:"category" validate:"required"`
	Summary      string            `json:"summary"`
	Labels       map[string]string `json:"labels"`
	DedupKey     string            `json:"dedup_key"`
}

func (req createAlertRequest) toCoreRequest() anc.NewAlertRequest {
	return anc.NewAlertRequest{
		TenantID:     req.TenantID,
		SourceModule: req.SourceModule,
		Plane:        req.Plane,
		ComponentID:  req.ComponentID,
		Severity:     req.Severity,
		Category:     req.Category,
		Summary:      req.Summary,
		Labels:       req.Labels,
		DedupKey:     req.DedupKey,
	}
}

func decodeCreateAlertRequest(w http.ResponseWriter, r *http.Request) (createAlertRequest, bool) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "malformed request body")
		return req, false
	}
	if err := validateRequest(&req); err != nil {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, err.Error())
		return req, false
	}
	if err := requireTenantMatch(r.Context(), req.TenantID); err != nil {
		writeProblem(w, r, err)
		return req, false
	}
	if req.TenantID == "" {
		req.TenantID = tenantFromContext(r.Context())
	}
	return req, true
}

// CreateAlert handles POST alerts: a single alert through the full intake
// pipeline (dedup/merge, correlation, routing, dispatch, escalation start).
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCreateAlertRequest(w, r)
	if !ok {
		return
	}
	result, err := h.alerts.ProcessAlert(r.Context(), req.toCoreRequest())
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type bulkAlertsRequest struct {
	Alerts []createAlertRequest `json:"alerts"`
}

type bulkAlertResult struct {
	DedupKey string           `json:"dedup_key,omitempty"`
	Result   *anc.IngestResult `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// CreateAlertsBulk handles POST alerts/bulk, running each alert through
// ProcessAlert independently so one bad entry doesn't fail the batch.
func (h *Handler) CreateAlertsBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkAlertsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "malformed request body")
		return
	}
	if len(req.Alerts) == 0 {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "alerts must be a non-empty array")
		return
	}

	results := make([]bulkAlertResult, len(req.Alerts))
	for i, a := range req.Alerts {
		if err := requireTenantMatch(r.Context(), a.TenantID); err != nil {
			results[i] = bulkAlertResult{DedupKey: a.DedupKey, Error: err.Error()}
			continue
		}
		if a.TenantID == "" {
			a.TenantID = tenantFromContext(r.Context())
		}
		result, err := h.alerts.ProcessAlert(r.Context(), a.toCoreRequest())
		if err != nil {
			results[i] = bulkAlertResult{DedupKey: a.DedupKey, Error: err.Error()}
			continue
		}
		results[i] = bulkAlertResult{DedupKey: a.DedupKey, Result: result}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// loadAlert resolves and tenant-checks the alert named by the "alert_id"
// path param, auto-reopening it first if its snooze window has elapsed.
func (h *Handler) loadAlert(w http.ResponseWriter, r *http.Request) (*anc.Alert, bool) {
	alertID := chi.URLParam(r, "alert_id")
	tenantID := tenantFromContext(r.Context())
	alert, err := h.alerts.Alerts.Get(r.Context(), tenantID, alertID)
	if err != nil {
		writeProblem(w, r, err)
		return nil, false
	}
	if alert.Status == "snoozed" {
		_ = h.alerts.TouchSnoozeExpiry(r.Context(), alert)
	}
	return alert, true
}

// GetAlert handles GET alerts/{alert_id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// AcknowledgeAlert handles POST alerts/{alert_id}/ack.
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}
	if err := h.alerts.Acknowledge(r.Context(), alert); err != nil {
		writeProblemMessage(w, r, http.StatusConflict, apperrors.ErrorTypeConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// ResolveAlert handles POST alerts/{alert_id}/resolve.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}
	if err := h.alerts.Resolve(r.Context(), alert); err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

type snoozeAlertRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

// SnoozeAlert handles POST alerts/{alert_id}/snooze.
func (h *Handler) SnoozeAlert(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}
	var req snoozeAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "malformed request body")
		return
	}
	if req.DurationSeconds <= 0 {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "duration_seconds must be greater than 0")
		return
	}
	if err := h.alerts.Snooze(r.Context(), alert, time.Duration(req.DurationSeconds)*time.Second); err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// TagAlert handles POST alerts/{alert_id}/tag/{tag}, where tag is "noisy"
// or "false-positive" — operator feedback recorded as a label rather than
// a lifecycle transition.
func (h *Handler) TagAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alert_id")
	tag := chi.URLParam(r, "tag")
	if tag != "noisy" && tag != "false-positive" {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "tag must be noisy or false-positive")
		return
	}
	if _, ok := h.loadAlert(w, r); !ok {
		return
	}
	if err := h.alertRepo().TagAlert(r.Context(), alertID, tag); err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"alert_id": alertID, "tag": tag})
}

// alertRepo returns the storage.AlertRepo injected with WithAlertRepo, used
// for storage-level operations (tagging, search) that anc.AlertStore's
// narrow interface doesn't expose.
func (h *Handler) alertRepo() *storage.AlertRepo {
	return h.alertRepoRef
}

// SearchAlerts handles POST alerts/search.
func (h *Handler) SearchAlerts(w http.ResponseWriter, r *http.Request) {
	var filter storage.AlertSearchFilter
	var body struct {
		TenantID    string `json:"tenant_id"`
		ComponentID string `json:"component_id"`
		Category    string `json:"category"`
		Severity    string `json:"severity"`
		Status      string `json:"status"`
		Limit       int    `json:"limit"`
		Offset      int    `json:"offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "malformed request body")
		return
	}
	if err := requireTenantMatch(r.Context(), body.TenantID); err != nil {
		writeProblem(w, r, err)
		return
	}
	tenantID := body.TenantID
	if tenantID == "" {
		tenantID = tenantFromContext(r.Context())
	}
	filter = storage.AlertSearchFilter{
		ComponentID: body.ComponentID,
		Category:    body.Category,
		Severity:    body.Severity,
		Status:      body.Status,
		Limit:       body.Limit,
		Offset:      body.Offset,
	}

	rows, err := h.alertRepo().Search(r.Context(), tenantID, filter)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": rows})
}
