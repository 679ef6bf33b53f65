package notify

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sentryfleet/sentryfleet/internal/config"
	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/logging"
	"github.com/sentryfleet/sentryfleet/internal/metrics"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

// dueNotificationBatchSize bounds how many log entries one RunOnce pass
// drains, so a backlog spike cannot monopolize the worker's tick.
const dueNotificationBatchSize = 100

// Worker drains due notification_log entries and attempts delivery
// through the channel each rule selected, retrying transient failures
// with exponential backoff.
type Worker struct {
	db       *database.DB
	registry *Registry
	cfg      config.NotificationConfig
}

// New constructs a Worker.
func New(db *database.DB, registry *Registry, cfg config.NotificationConfig) *Worker {
	return &Worker{db: db, registry: registry, cfg: cfg}
}

// RunOnce drains and attempts every currently-due notification, returning
// how many it processed. Intended to be called on a ticker by the
// supervisor tree.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	due, err := w.db.ListDueNotifications(ctx, w.cfg.MaxRetries, dueNotificationBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list due notifications: %w", err)
	}
	metrics.NotificationQueueDepth.Set(float64(len(due)))

	for _, n := range due {
		w.attempt(ctx, n)
	}
	return len(due), nil
}

// DeliverNow attempts immediate delivery of a freshly created log entry
// without waiting for the next RunOnce tick, for the Alert Processor's
// (C8) synchronous dispatch of zero-delay rules. It returns whether
// delivery succeeded.
func (w *Worker) DeliverNow(ctx context.Context, alert *models.Alert, n *models.NotificationLog) bool {
	return w.deliver(ctx, alert, n)
}

// RetryAlert immediately re-attempts every non-sent notification raised
// for alertID, regardless of its scheduled next_retry_at, for the manual
// POST /alerts/{id}/notifications/retry endpoint. It returns how many
// attempts succeeded and failed.
func (w *Worker) RetryAlert(ctx context.Context, alertID string) (sent, failed int, err error) {
	logs, err := w.db.ListNotificationsByAlert(ctx, alertID)
	if err != nil {
		return 0, 0, fmt.Errorf("list notifications for alert %s: %w", alertID, err)
	}

	for _, n := range logs {
		if n.Status == models.DeliveryStatusSent {
			continue
		}
		if w.attempt(ctx, n) {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed, nil
}

// attempt loads n's alert and delivers through its rule's channel,
// recording the outcome, and reports whether delivery succeeded.
func (w *Worker) attempt(ctx context.Context, n *models.NotificationLog) bool {
	alert, err := w.db.GetAlert(ctx, n.AlertID)
	if err != nil {
		logging.Error().Err(err).Str("notification_id", n.ID).Msg("cannot load alert for notification")
		return false
	}
	return w.deliver(ctx, alert, n)
}

// deliver sends n through its rule's channel and appends the outcome to
// the notification log, reporting whether delivery succeeded.
func (w *Worker) deliver(ctx context.Context, alert *models.Alert, n *models.NotificationLog) bool {
	channel, err := w.registry.Get(n.Channel)
	if err != nil {
		logging.Error().Err(err).Str("notification_id", n.ID).Msg("no channel registered")
		w.fail(ctx, n, err)
		return false
	}

	subject, body := renderAlert(alert)
	sendCtx, cancel := context.WithTimeout(ctx, w.cfg.ProviderTimeout)
	defer cancel()

	if err := channel.Send(sendCtx, n.Recipient, subject, body); err != nil {
		w.fail(ctx, n, err)
		return false
	}

	if err := w.db.RecordDeliverySuccess(ctx, n); err != nil {
		logging.Error().Err(err).Str("notification_id", n.ID).Msg("record delivery success failed")
		return false
	}
	metrics.NotificationsSent.WithLabelValues(string(n.Channel), "success").Inc()
	return true
}

func (w *Worker) fail(ctx context.Context, n *models.NotificationLog, cause error) {
	nextAttempt := n.Attempts + 1
	var nextRetry *time.Time
	if nextAttempt < w.cfg.MaxRetries {
		at := time.Now().UTC().Add(calculateBackoff(nextAttempt, w.cfg.RetryBackoffBase))
		nextRetry = &at
		metrics.NotificationRetries.WithLabelValues(string(n.Channel)).Inc()
	}

	if err := w.db.RecordDeliveryFailure(ctx, n, cause.Error(), nextRetry); err != nil {
		logging.Error().Err(err).Str("notification_id", n.ID).Msg("record delivery failure failed")
	}
	metrics.NotificationsSent.WithLabelValues(string(n.Channel), "failure").Inc()

	if nextRetry == nil {
		logging.Warn().Str("notification_id", n.ID).Int("attempts", nextAttempt).Msg("notification retry budget exhausted")
	}
}

func renderAlert(a *models.Alert) (subject, body string) {
	subject = fmt.Sprintf("Sentry Fleet alert: %s", a.Type)
	body = fmt.Sprintf("Alert %s matched on device %s at %s (confidence %.2f). Subject: %s %s.",
		a.ID, a.DeviceID, a.MatchedAt.Format(time.RFC3339), a.Confidence, a.Subject.Kind, a.Subject.Ref)
	return subject, body
}

// calculateBackoff mirrors the teacher's internal/wal/retry.go formula:
// base * 2^attempts, capped at 5 minutes.
func calculateBackoff(attempts int, base time.Duration) time.Duration {
	const maxBackoff = 5 * time.Minute
	if attempts > 50 {
		return maxBackoff
	}
	backoff := time.Duration(float64(base) * math.Pow(2, float64(attempts)))
	if backoff <= 0 || backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}
