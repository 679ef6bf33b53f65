package models

import "time"

// DeliveryChannel is the closed set of outbound notification transports.
type DeliveryChannel string

const (
	ChannelEmail   DeliveryChannel = "email"
	ChannelSMS     DeliveryChannel = "sms"
	ChannelWebhook DeliveryChannel = "webhook"
)

// RecipientsKind tags which concrete shape Recipients carries (spec section
// 9: explicit tagged variants keyed to DeliveryChannel, not a grab-bag
// struct with optional fields per channel).
type RecipientsKind string

const (
	RecipientsEmails RecipientsKind = "emails"
	RecipientsPhones RecipientsKind = "phones"
	RecipientsURLs   RecipientsKind = "urls"
)

// Recipients is the tagged union Recipients = {emails} | {phones} | {urls},
// chosen to match the NotificationRule's channel.
type Recipients struct {
	Kind   RecipientsKind
	Values []string
}

// ChannelForRecipients returns the DeliveryChannel implied by a Recipients
// variant, used to validate a NotificationRule's channel matches its
// recipient shape.
func ChannelForRecipients(kind RecipientsKind) DeliveryChannel {
	switch kind {
	case RecipientsEmails:
		return ChannelEmail
	case RecipientsPhones:
		return ChannelSMS
	default:
		return ChannelWebhook
	}
}

// NotificationRule is named infrastructure, not an alert-type binding: the
// Alert Processor (C8) selects rules by a fixed rule-name pattern per
// alert type (spec section 4.8), never by a stored alert_type column.
// DelayMinutes of zero means dispatch immediately; greater than zero
// schedules the send that many minutes out.
type NotificationRule struct {
	ID           string
	Name         string
	Description  string
	Channel      DeliveryChannel
	Recipients   Recipients
	Enabled      bool
	DelayMinutes int
}

// NotificationDeliveryStatus is the per-attempt delivery outcome.
type NotificationDeliveryStatus string

const (
	DeliveryStatusPending NotificationDeliveryStatus = "pending"
	DeliveryStatusSent    NotificationDeliveryStatus = "sent"
	DeliveryStatusFailed  NotificationDeliveryStatus = "failed"
)

// NotificationLog records one delivery attempt for one recipient of one
// alert. The table is append-only: a retry appends a new row rather than
// mutating an earlier one, and idempotence is a uniqueness constraint on
// (alert_id, channel, recipient) scoped to status = sent (spec section
// 4.8, testable property 7) — at most one row per alert/channel/recipient
// may ever record a successful send.
type NotificationLog struct {
	ID          string
	AlertID     string
	RuleID      string
	Channel     DeliveryChannel
	Recipient   string
	Status      NotificationDeliveryStatus
	Attempts    int
	LastError   *string
	SentAt      *time.Time
	NextRetryAt *time.Time
}

// Exhausted reports whether this log entry has used up its retry budget.
func (n *NotificationLog) Exhausted(maxRetries int) bool {
	return n.Status == DeliveryStatusFailed && n.Attempts >= maxRetries
}
