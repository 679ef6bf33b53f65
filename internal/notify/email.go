package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sentryfleet/sentryfleet/internal/config"
	"github.com/sentryfleet/sentryfleet/internal/logging"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

// EmailChannel delivers alert notifications over SMTP, grounded on the
// teacher's EmailChannel (internal/newsletter/delivery/email.go).
type EmailChannel struct {
	cfg     config.NotificationConfig
	timeout time.Duration
}

// NewEmailChannel constructs an EmailChannel. With no SMTP credentials
// configured it runs in stub mode: sends are logged, not dispatched.
func NewEmailChannel(cfg config.NotificationConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg, timeout: 30 * time.Second}
}

func (c *EmailChannel) Name() models.DeliveryChannel { return models.ChannelEmail }

func (c *EmailChannel) configured() bool {
	return c.cfg.EmailProviderKey != ""
}

// Send delivers subject/body to recipient. In stub mode (no provider key
// configured) it logs the would-be send and returns success, so the rest
// of the pipeline is exercisable without live SMTP credentials.
func (c *EmailChannel) Send(ctx context.Context, recipient, subject, body string) error {
	if err := validateEmail(recipient); err != nil {
		return fmt.Errorf("invalid email recipient: %w", err)
	}

	if !c.configured() {
		logging.Info().Str("channel", "email").Str("recipient", recipient).Msg("stub email send (no provider configured)")
		return nil
	}

	host := c.cfg.EmailProviderKey
	addr := net.JoinHostPort(host, "587")

	msg := c.buildMessage(recipient, subject, body)

	tlsConfig := &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	defer client.Close()

	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	if err := client.Mail("alerts@sentryfleet.local"); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	defer w.Close()
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("write smtp body: %w", err)
	}
	return nil
}

func (c *EmailChannel) buildMessage(recipient, subject, body string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: Sentry Fleet <alerts@sentryfleet.local>\r\n"))
	b.WriteString(fmt.Sprintf("To: %s\r\n", recipient))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(body)
	return b.String()
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email address is required")
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || !strings.Contains(parts[1], ".") {
		return fmt.Errorf("invalid email address format: %s", email)
	}
	return nil
}
