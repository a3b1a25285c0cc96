// Package github implements the IAF adapter SPI for GitHub and GitHub
// Enterprise using google/go-github, grounded on the teacher's forge.GitHub
// wrapper around the same SDK.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	gogithub "github.com/google/go-github/v69/github"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/iaf"
)

func init() {
	iaf.Register("github", NewAdapter)
}

// Adapter implements iaf.Adapter for GitHub.
type Adapter struct {
	client       *gogithub.Client
	connectionID string
	secret       string
}

// NewAdapter builds a GitHub Adapter from a resolved connection context.
func NewAdapter(cc iaf.ConnectionContext) (iaf.Adapter, error) {
	client := gogithub.NewClient(cc.Client).WithAuthToken(cc.Secret)
	return &Adapter{client: client, connectionID: cc.ConnectionID, secret: cc.Secret}, nil
}

// Capabilities reports GitHub's webhook and outbound-action support.
func (a *Adapter) Capabilities() iaf.Capabilities {
	return iaf.Capabilities{
		WebhookSupported:         true,
		PollingSupported:         false,
		OutboundActionsSupported: true,
	}
}

// VerifySignature validates the X-Hub-Signature-256 HMAC-SHA256 header
// against secret, the scheme GitHub webhooks use.
func (a *Adapter) VerifySignature(payload []byte, headers http.Header, secret string) error {
	sig := headers.Get("X-Hub-Signature-256")
	if sig == "" {
		return apperrors.NewInvalidSignature("github")
	}
	if err := gogithub.ValidateSignature(sig, payload, []byte(secret)); err != nil {
		return apperrors.NewInvalidSignature("github")
	}
	return nil
}

// ProcessWebhook extracts the canonical event type and decodes the
// payload for a GitHub webhook delivery, after VerifySignature has
// already validated it.
func (a *Adapter) ProcessWebhook(ctx context.Context, payload []byte, headers http.Header) (iaf.WebhookEvent, error) {
	eventType := headers.Get("X-GitHub-Event")
	if eventType == "" {
		return iaf.WebhookEvent{}, apperrors.NewValidationError("missing X-GitHub-Event header")
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return iaf.WebhookEvent{}, apperrors.NewValidationError("malformed GitHub webhook payload")
	}
	if action, ok := decoded["action"].(string); ok && action != "" {
		eventType = eventType + "." + action
	}
	if deliveryID := headers.Get("X-GitHub-Delivery"); deliveryID != "" {
		decoded["delivery_id"] = deliveryID
	}

	return iaf.WebhookEvent{EventType: eventType, Payload: decoded}, nil
}

// PollEvents always fails with a validation error: GitHub connections are
// webhook-only.
func (a *Adapter) PollEvents(ctx context.Context, cursor string) ([]iaf.ProviderEvent, string, error) {
	return nil, cursor, apperrors.Newf(apperrors.ErrorTypeValidation, "github adapter does not support polling")
}

// ExecuteAction dispatches a canonical outbound action onto the
// corresponding GitHub API call.
func (a *Adapter) ExecuteAction(ctx context.Context, action iaf.Action) (iaf.ActionResult, error) {
	repo, _ := action.Target["repository"].(string)
	owner, name, err := splitRepo(repo)
	if err != nil {
		return iaf.ActionResult{}, apperrors.NewValidationError(err.Error())
	}

	switch action.CanonicalType {
	case "create_issue_comment":
		number, _ := action.Target["issue_number"].(float64)
		body, _ := action.Payload["body"].(string)
		comment, resp, err := a.client.Issues.CreateComment(ctx, owner, name, int(number), &gogithub.IssueComment{Body: &body})
		if err != nil {
			return iaf.ActionResult{}, apperrors.NewUpstreamError("github", err)
		}
		_ = resp
		return iaf.ActionResult{Status: "succeeded", Result: map[string]interface{}{"comment_id": comment.GetID(), "url": comment.GetHTMLURL()}}, nil

	case "set_label":
		number, _ := action.Target["issue_number"].(float64)
		labels := stringSlice(action.Payload["labels"])
		_, _, err := a.client.Issues.AddLabelsToIssue(ctx, owner, name, int(number), labels)
		if err != nil {
			return iaf.ActionResult{}, apperrors.NewUpstreamError("github", err)
		}
		return iaf.ActionResult{Status: "succeeded"}, nil

	case "merge_pull_request":
		number, _ := action.Target["pr_number"].(float64)
		result, _, err := a.client.PullRequests.Merge(ctx, owner, name, int(number), "", &gogithub.PullRequestOptions{})
		if err != nil {
			return iaf.ActionResult{}, apperrors.NewUpstreamError("github", err)
		}
		return iaf.ActionResult{Status: "succeeded", Result: map[string]interface{}{"sha": result.GetSHA()}}, nil

	default:
		return iaf.ActionResult{}, apperrors.Newf(apperrors.ErrorTypeValidation, "unsupported github action type %q", action.CanonicalType)
	}
}

// VerifyConnection checks the connection's token is valid by fetching the
// authenticated user.
func (a *Adapter) VerifyConnection(ctx context.Context) (bool, error) {
	_, _, err := a.client.Users.Get(ctx, "")
	if err != nil {
		return false, apperrors.NewUpstreamError("github", err)
	}
	return true, nil
}

func splitRepo(repo string) (owner, name string, err error) {
	parts := strings.SplitN(repo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format %q, expected owner/repo", repo)
	}
	return parts[0], parts[1], nil
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
