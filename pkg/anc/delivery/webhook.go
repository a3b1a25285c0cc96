package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/anc"
	"github.com/evplatform/eventplane/pkg/httpclient"
	"github.com/evplatform/eventplane/pkg/retry"
)

// WebhookSender POSTs a JSON alert payload to a target-resolved URL,
// reusing the IAF outbound HTTP idiom (pkg/httpclient.Retrier over
// pkg/retry) rather than inventing a second retry client.
type WebhookSender struct {
	retrier   *httpclient.Retrier
	resolveURL func(target string) (string, error)
}

// NewWebhookSender builds a WebhookSender. resolveURL maps a notification
// target id to the outbound URL to POST to (e.g. a per-tenant webhook
// registry lookup); callers whose targets are already URLs can pass
// func(t string) (string, error) { return t, nil }.
func NewWebhookSender(client *http.Client, resolveURL func(target string) (string, error)) *WebhookSender {
	return &WebhookSender{
		retrier:    httpclient.NewRetrier(client, retry.DefaultPolicy(), 3),
		resolveURL: resolveURL,
	}
}

type webhookPayload struct {
	AlertID     string            `json:"alert_id"`
	TenantID    string            `json:"tenant_id"`
	Severity    string            `json:"severity"`
	Category    string            `json:"category"`
	ComponentID string            `json:"component_id"`
	Summary     string            `json:"summary"`
	Labels      map[string]string `json:"labels,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

func (w *WebhookSender) Send(ctx context.Context, channel, target string, alert *anc.Alert) error {
	url, err := w.resolveURL(target)
	if err != nil {
		return err
	}

	body, err := json.Marshal(webhookPayload{
		AlertID:     alert.AlertID,
		TenantID:    alert.TenantID,
		Severity:    alert.Severity,
		Category:    alert.Category,
		ComponentID: alert.ComponentID,
		Summary:     alert.Summary,
		Labels:      alert.Labels,
		OccurredAt:  alert.LastSeenAt,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.retrier.Do(ctx, req, alert.AlertID+":"+target)
	if err != nil {
		return apperrors.NewUpstreamError("webhook", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return apperrors.NewUpstreamError("webhook", httpStatusError(resp.StatusCode))
	}
	return nil
}

type httpStatusErr struct{ status int }

func (e httpStatusErr) Error() string {
	return http.StatusText(e.status)
}

func httpStatusError(status int) error { return httpStatusErr{status: status} }
