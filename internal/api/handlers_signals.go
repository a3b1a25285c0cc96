package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/envelope"
	"github.com/evplatform/eventplane/pkg/sin"
)

type ingestRequest struct {
	TenantID string                     `json:"tenant_id"`
	Signals  []*envelope.SignalEnvelope `json:"signals"`
}

type ingestResponse struct {
	Summary sin.Summary      `json:"summary"`
	Results []sin.IngestResult `json:"results"`
}

// IngestSignals handles POST signals/ingest: a tenant-scoped batch of up to
// sin.MaxBatchSize envelopes, run through the full normalization pipeline.
func (h *Handler) IngestSignals(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "malformed request body")
		return
	}
	if err := requireTenantMatch(r.Context(), req.TenantID); err != nil {
		writeProblem(w, r, err)
		return
	}
	if req.TenantID == "" {
		req.TenantID = tenantFromContext(r.Context())
	}
	if len(req.Signals) == 0 {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "signals must be a non-empty array")
		return
	}
	if len(req.Signals) > sin.MaxBatchSize {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation,
			"batch exceeds maximum size of "+strconv.Itoa(sin.MaxBatchSize))
		return
	}

	for _, s := range req.Signals {
		s.StampTraceContext(r.Context())
	}

	results := h.pipeline.Ingest(r.Context(), req.Signals, req.TenantID)
	writeJSON(w, http.StatusOK, ingestResponse{
		Summary: sin.Summarize(results),
		Results: results,
	})
}

// ListDLQ handles GET signals/dlq: a tenant-scoped, optionally
// producer/signal_type filtered page over dead-lettered signals.
func (h *Handler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if err := requireTenantMatch(r.Context(), tenantID); err != nil {
		writeProblem(w, r, err)
		return
	}
	if tenantID == "" {
		tenantID = tenantFromContext(r.Context())
	}

	producerID := r.URL.Query().Get("producer_id")
	signalType := r.URL.Query().Get("signal_type")

	limit, err := queryInt(r, "limit", 100)
	if err != nil || limit <= 0 || limit > 500 {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "limit must be between 1 and 500")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "offset must not be negative")
		return
	}

	entries, err := h.dlq.List(r.Context(), tenantID, producerID, signalType, limit, offset)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	total, err := h.dlq.Count(r.Context(), tenantID, producerID, signalType)
	if err != nil {
		writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "total": total})
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
