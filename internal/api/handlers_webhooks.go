package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/metrics"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MiB

// HandleWebhook handles POST integrations/webhooks/{provider_id}/{registration_id}.
// This route is deliberately unauthenticated at the transport layer — the
// provider never holds a bearer token for this service — authenticity comes
// entirely from iaf.WebhookHandlerDeps.HandleWebhook's signature/replay
// checks against the registration's configured secret.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider_id")
	registrationID := chi.URLParam(r, "registration_id")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		metrics.RecordWebhookRequest("error")
		writeProblemMessage(w, r, http.StatusBadRequest, apperrors.ErrorTypeValidation, "failed to read request body")
		return
	}

	if err := h.webhookDeps.HandleWebhook(r.Context(), providerID, registrationID, body, r.Header); err != nil {
		writeProblem(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
