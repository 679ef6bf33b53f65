// Package notify implements the Notification Worker (C9): it drains due
// entries from notification_log, delivers each through the channel its
// rule selected, and records the outcome with exponential-backoff retry.
//
// Grounded on the teacher's internal/newsletter/delivery package: a
// narrow Channel interface per transport, a registry keyed by channel
// name, and the same "credentials never logged, errors classified
// transient vs permanent" posture.
package notify

import (
	"context"
	"fmt"

	"github.com/sentryfleet/sentryfleet/internal/models"
)

// Channel delivers one notification to one recipient.
type Channel interface {
	Name() models.DeliveryChannel
	Send(ctx context.Context, recipient, subject, body string) error
}

// Registry resolves a DeliveryChannel to its Channel implementation.
type Registry struct {
	channels map[models.DeliveryChannel]Channel
}

// NewRegistry constructs a Registry with the default channel set. Any
// channel without provider credentials configured still registers, but
// runs in stub mode (logs the send rather than calling out), matching
// the teacher's pattern of a channel always being addressable even when
// unconfigured.
func NewRegistry(email *EmailChannel, sms *SMSChannel, webhook *WebhookChannel) *Registry {
	r := &Registry{channels: make(map[models.DeliveryChannel]Channel)}
	r.Register(email)
	r.Register(sms)
	r.Register(webhook)
	return r
}

// Register adds or replaces a channel.
func (r *Registry) Register(ch Channel) {
	r.channels[ch.Name()] = ch
}

// Get resolves a channel by name.
func (r *Registry) Get(name models.DeliveryChannel) (Channel, error) {
	ch, ok := r.channels[name]
	if !ok {
		return nil, fmt.Errorf("no delivery channel registered for %s", name)
	}
	return ch, nil
}
