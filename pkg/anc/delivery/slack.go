// Package delivery implements the concrete Sender implementations ANC's
// dispatch stage calls per channel, grounded on the never-exercised
// slack-go/slack dependency and the file-based evidence channel idiom.
package delivery

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	apperrors "github.com/evplatform/eventplane/internal/errors"
	"github.com/evplatform/eventplane/pkg/anc"
)

// SlackSender posts one alert per notification as a Slack message, target
// being either a channel id or a user id (slack-go resolves both through
// the same PostMessage call).
type SlackSender struct {
	client *slack.Client
}

// NewSlackSender builds a SlackSender authenticated with botToken.
func NewSlackSender(botToken string) *SlackSender {
	return &SlackSender{client: slack.New(botToken)}
}

func (s *SlackSender) Send(ctx context.Context, channel, target string, alert *anc.Alert) error {
	text := formatAlertText(alert)
	_, _, err := s.client.PostMessageContext(ctx, target, slack.MsgOptionText(text, false))
	if err != nil {
		return apperrors.NewUpstreamError("slack", err)
	}
	return nil
}

func formatAlertText(alert *anc.Alert) string {
	return fmt.Sprintf("[%s] %s: %s (component=%s, category=%s)",
		alert.Severity, alert.AlertID, alert.Summary, alert.ComponentID, alert.Category)
}
