package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/slack-go/slack"
)

// SlackSink posts to a Slack incoming webhook.
type SlackSink struct {
	webhookURL string
	channel    string
	http       *http.Client
}

// NewSlackSink creates a SlackSink. channel may be empty to use the
// webhook's default.
func NewSlackSink(webhookURL, channel string, hc *http.Client) *SlackSink {
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	return &SlackSink{webhookURL: webhookURL, channel: channel, http: hc}
}

// Name returns "slack".
func (s *SlackSink) Name() string { return "slack" }

// Deliver posts msg once.
func (s *SlackSink) Deliver(ctx context.Context, msg Message) error {
	payload := &slack.WebhookMessage{
		Channel: s.channel,
		Text:    msg.Text,
	}
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.http, payload); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}
