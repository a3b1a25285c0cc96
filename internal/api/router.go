package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/evplatform/eventplane/internal/authn"
)

// NewRouter builds the chi mux for h, mounting CORS, request-id, panic
// recovery and (where not explicitly exempted) bearer-token auth ahead of
// every route, mirroring the teacher's router assembly order.
func NewRouter(h *Handler, verifier *authn.Verifier) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(traceContext)
	r.Use(corsFromEnvironment())

	// Inbound provider webhooks carry no bearer token; authenticity comes
	// from the adapter's own signature verification.
	r.Post("/integrations/webhooks/{provider_id}/{registration_id}", h.HandleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(authenticate(verifier))

		r.Post("/signals/ingest", h.IngestSignals)
		r.Get("/signals/dlq", h.ListDLQ)

		r.Post("/producers/register", h.RegisterProducer)
		r.Get("/producers/{producer_id}", h.GetProducer)
		r.Put("/producers/{producer_id}", h.UpdateProducer)

		r.Post("/integrations/connections", h.CreateConnection)
		r.Post("/integrations/connections/{connection_id}/verify", h.VerifyConnection)
		r.Patch("/integrations/connections/{connection_id}", h.PatchConnection)
		r.Post("/integrations/actions/execute", h.ExecuteAction)

		r.Post("/alerts", h.CreateAlert)
		r.Post("/alerts/bulk", h.CreateAlertsBulk)
		r.Post("/alerts/search", h.SearchAlerts)
		r.Get("/alerts/stream", h.StreamAlerts)
		r.Get("/alerts/{alert_id}", h.GetAlert)
		r.Post("/alerts/{alert_id}/ack", h.AcknowledgeAlert)
		r.Post("/alerts/{alert_id}/resolve", h.ResolveAlert)
		r.Post("/alerts/{alert_id}/snooze", h.SnoozeAlert)
		r.Post("/alerts/{alert_id}/tag/{tag}", h.TagAlert)

		r.Post("/incidents/{incident_id}/mitigate", h.MitigateIncident)
		r.Post("/incidents/{incident_id}/snooze", h.SnoozeIncident)

		r.Post("/preferences", h.SetPreferences)
	})

	return r
}
