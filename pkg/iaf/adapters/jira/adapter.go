// Package jira implements the IAF adapter SPI for Jira Cloud/Server over
// its REST API, using pkg/httpclient's retrying client for outbound calls
// (Jira has no first-class Go SDK in the reference stack, unlike GitHub).
package jira

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/httpclient"
	"github.com/evplatform/eventplane/pkg/iaf"
	"github.com/evplatform/eventplane/pkg/retry"
)

func init() {
	iaf.Register("jira", NewAdapter)
}

const defaultMaxRetries = 3

// Adapter implements iaf.Adapter for Jira's REST API.
type Adapter struct {
	retrier *httpclient.Retrier
	baseURL string
	email   string
	token   string
	secret  string
}

// NewAdapter builds a Jira Adapter from a resolved connection context.
// AuthRef is expected to resolve to "<base_url>|<email>|<api_token>"; the
// webhook secret shares the same connection secret.
func NewAdapter(cc iaf.ConnectionContext) (iaf.Adapter, error) {
	baseURL, email, token, err := parseSecret(cc.Secret)
	if err != nil {
		return nil, err
	}
	policy := retry.Policy{Initial: 500 * time.Millisecond, Max: 30 * time.Second}
	return &Adapter{
		retrier: httpclient.NewRetrier(cc.Client, policy, defaultMaxRetries),
		baseURL: strings.TrimRight(baseURL, "/"),
		email:   email,
		token:   token,
		secret:  cc.Secret,
	}, nil
}

func parseSecret(secret string) (baseURL, email, token string, err error) {
	parts := strings.SplitN(secret, "|", 3)
	if len(parts) != 3 {
		return "", "", "", apperrors.NewValidationError("jira connection secret must be \"base_url|email|api_token\"")
	}
	return parts[0], parts[1], parts[2], nil
}

// Capabilities reports Jira's webhook and outbound-action support.
func (a *Adapter) Capabilities() iaf.Capabilities {
	return iaf.Capabilities{
		WebhookSupported:         true,
		PollingSupported:         true,
		OutboundActionsSupported: true,
	}
}

// VerifySignature validates Jira Cloud's optional HMAC-SHA256 webhook
// signature header against secret.
func (a *Adapter) VerifySignature(payload []byte, headers http.Header, secret string) error {
	sig := headers.Get("X-Atlassian-Webhook-Identifier")
	if sig == "" {
		sig = headers.Get("X-Hub-Signature")
	}
	if sig == "" {
		return nil // Jira Server webhooks may carry no signature at all.
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return apperrors.NewInvalidSignature("jira")
	}
	return nil
}

// ProcessWebhook decodes a Jira webhook payload and extracts its
// webhookEvent field as the canonical raw event type.
func (a *Adapter) ProcessWebhook(ctx context.Context, payload []byte, headers http.Header) (iaf.WebhookEvent, error) {
	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return iaf.WebhookEvent{}, apperrors.NewValidationError("malformed Jira webhook payload")
	}
	eventType, _ := decoded["webhookEvent"].(string)
	if eventType == "" {
		return iaf.WebhookEvent{}, apperrors.NewValidationError("missing webhookEvent field")
	}
	return iaf.WebhookEvent{EventType: eventType, Payload: decoded}, nil
}

// jiraSearchResponse is the subset of /rest/api/3/search's response this
// adapter maps into provider events.
type jiraSearchResponse struct {
	Issues []struct {
		ID     string `json:"id"`
		Key    string `json:"key"`
		Fields struct {
			Updated string                 `json:"updated"`
			Summary string                 `json:"summary"`
			Status  map[string]interface{} `json:"status"`
		} `json:"fields"`
	} `json:"issues"`
}

// PollEvents fetches issues updated since the cursor (the "updated" value
// of the latest issue seen, as Jira formats it; empty on the first poll)
// and returns the latest "updated" value seen as the next cursor, or the
// input cursor unchanged when no issues came back.
func (a *Adapter) PollEvents(ctx context.Context, cursor string) ([]iaf.ProviderEvent, string, error) {
	jql := "order by updated asc"
	if cursor != "" {
		jql = fmt.Sprintf("updated >= \"%s\" order by updated asc", cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.baseURL+"/rest/api/3/search?jql="+url.QueryEscape(jql)+"&fields=updated,summary,status", nil)
	if err != nil {
		return nil, cursor, err
	}
	req.SetBasicAuth(a.email, a.token)
	req.Header.Set("Accept", "application/json")

	resp, err := a.retrier.Do(ctx, req, "")
	if err != nil {
		return nil, cursor, apperrors.NewUpstreamError("jira", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, cursor, err
	}
	var parsed jiraSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, cursor, apperrors.NewUpstreamError("jira", err)
	}

	nextCursor := cursor
	events := make([]iaf.ProviderEvent, 0, len(parsed.Issues))
	for _, issue := range parsed.Issues {
		occurredAt, _ := time.Parse("2006-01-02T15:04:05.000-0700", issue.Fields.Updated)
		events = append(events, iaf.ProviderEvent{
			ID:         issue.ID,
			EventType:  "issue_updated",
			OccurredAt: occurredAt,
			Payload: map[string]interface{}{
				"issue": map[string]interface{}{
					"key":    issue.Key,
					"id":     issue.ID,
					"fields": issue.Fields,
				},
			},
		})
		if issue.Fields.Updated > nextCursor {
			nextCursor = issue.Fields.Updated
		}
	}
	return events, nextCursor, nil
}

// ExecuteAction dispatches a canonical outbound action onto the
// corresponding Jira REST call.
func (a *Adapter) ExecuteAction(ctx context.Context, action iaf.Action) (iaf.ActionResult, error) {
	issueKey, _ := action.Target["issue_key"].(string)
	if issueKey == "" {
		return iaf.ActionResult{}, apperrors.NewValidationError("jira action target missing issue_key")
	}

	switch action.CanonicalType {
	case "add_comment":
		body, _ := action.Payload["body"].(string)
		return a.post(ctx, fmt.Sprintf("/rest/api/3/issue/%s/comment", issueKey), map[string]interface{}{
			"body": map[string]interface{}{
				"type":    "doc",
				"version": 1,
				"content": []map[string]interface{}{
					{"type": "paragraph", "content": []map[string]interface{}{{"type": "text", "text": body}}},
				},
			},
		})

	case "transition_issue":
		transitionID, _ := action.Payload["transition_id"].(string)
		return a.post(ctx, fmt.Sprintf("/rest/api/3/issue/%s/transitions", issueKey), map[string]interface{}{
			"transition": map[string]interface{}{"id": transitionID},
		})

	default:
		return iaf.ActionResult{}, apperrors.Newf(apperrors.ErrorTypeValidation, "unsupported jira action type %q", action.CanonicalType)
	}
}

func (a *Adapter) post(ctx context.Context, path string, body map[string]interface{}) (iaf.ActionResult, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return iaf.ActionResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return iaf.ActionResult{}, err
	}
	req.SetBasicAuth(a.email, a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.retrier.Do(ctx, req, "")
	if err != nil {
		return iaf.ActionResult{}, apperrors.NewUpstreamError("jira", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return iaf.ActionResult{Status: "failed", Error: fmt.Sprintf("jira returned status %d", resp.StatusCode)}, nil
	}
	return iaf.ActionResult{Status: "succeeded"}, nil
}

// VerifyConnection checks the connection's credentials are valid by
// fetching the authenticated user's profile.
func (a *Adapter) VerifyConnection(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/rest/api/3/myself", nil)
	if err != nil {
		return false, err
	}
	req.SetBasicAuth(a.email, a.token)

	resp, err := a.retrier.Do(ctx, req, "")
	if err != nil {
		return false, apperrors.NewUpstreamError("jira", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300, nil
}
