package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/evplatform/eventplane/pkg/anc"
)

// StreamAlerts handles GET alerts/stream: a server-sent-events feed over
// pkg/anc's filterable Broker, scoped to the caller's tenant regardless of
// what (if anything) the query string asks for.
func (h *Handler) StreamAlerts(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	tenantID := tenantFromContext(r.Context())
	filter := streamFilterFromQuery(r, tenantID)

	events, unsubscribe := h.alerts.Stream.Subscribe(r.Context(), filter)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, payload)
			flusher.Flush()
		}
	}
}

func streamFilterFromQuery(r *http.Request, tenantID string) anc.StreamFilter {
	q := r.URL.Query()
	return anc.StreamFilter{
		TenantIDs:    []string{tenantID},
		ComponentIDs: splitQueryList(q.Get("component_id")),
		Categories:   splitQueryList(q.Get("category")),
		Severities:   splitQueryList(q.Get("severity")),
		EventTypes:   splitQueryList(q.Get("event_type")),
	}
}

func splitQueryList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
