package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sentryfleet/sentryfleet/internal/models"
)

// WebhookChannel delivers alert notifications as a JSON POST to an
// arbitrary HTTPS URL, grounded directly on the teacher's
// internal/newsletter/delivery/webhook.go generic webhook channel.
type WebhookChannel struct {
	client *http.Client
}

// NewWebhookChannel constructs a WebhookChannel.
func NewWebhookChannel() *WebhookChannel {
	return &WebhookChannel{client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *WebhookChannel) Name() models.DeliveryChannel { return models.ChannelWebhook }

type webhookPayload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (c *WebhookChannel) Send(ctx context.Context, recipient, subject, body string) error {
	if err := validateWebhookURL(recipient); err != nil {
		return err
	}

	payload, err := json.Marshal(webhookPayload{Subject: subject, Body: body})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, recipient, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func validateWebhookURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("webhook URL is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("webhook URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("webhook URL must have a host")
	}
	return nil
}
