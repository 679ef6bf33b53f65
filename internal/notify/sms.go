package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sentryfleet/sentryfleet/internal/config"
	"github.com/sentryfleet/sentryfleet/internal/logging"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

// SMSChannel delivers alert notifications through a Twilio-compatible
// REST API, grounded on the teacher's webhook-style HTTP channels
// (internal/newsletter/delivery/webhook.go, discord.go): a plain
// net/http POST with a bounded timeout and transient/permanent error
// classification by status code.
type SMSChannel struct {
	cfg    config.NotificationConfig
	client *http.Client
}

// NewSMSChannel constructs an SMSChannel. With no provider SID/token
// configured it runs in stub mode.
func NewSMSChannel(cfg config.NotificationConfig) *SMSChannel {
	return &SMSChannel{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *SMSChannel) Name() models.DeliveryChannel { return models.ChannelSMS }

func (c *SMSChannel) configured() bool {
	return c.cfg.SMSProviderSID != "" && c.cfg.SMSProviderToken != "" && c.cfg.SMSProviderFrom != ""
}

func (c *SMSChannel) Send(ctx context.Context, recipient, subject, body string) error {
	if recipient == "" {
		return fmt.Errorf("sms recipient is required")
	}

	if !c.configured() {
		logging.Info().Str("channel", "sms").Str("recipient", recipient).Msg("stub sms send (no provider configured)")
		return nil
	}

	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", c.cfg.SMSProviderSID)
	form := url.Values{
		"To":   {recipient},
		"From": {c.cfg.SMSProviderFrom},
		"Body": {fmt.Sprintf("%s: %s", subject, body)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.SMSProviderSID, c.cfg.SMSProviderToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("sms provider transient error: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sms provider rejected message: status %d", resp.StatusCode)
	}
	return nil
}
