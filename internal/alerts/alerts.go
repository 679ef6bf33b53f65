// Package alerts implements the Alert Processor (C8): alert ingestion,
// notification rule selection, per-recipient notification log creation,
// and the alert review workflow.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sentryfleet/sentryfleet/internal/apierr"
	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/metrics"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

// Enqueuer hands a notification task to the durable task queue for the
// Notification Worker (C9) to pick up. Kept as an interface so the Alert
// Processor does not import the queue's transport directly.
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, logID string) error
}

// ImmediateNotifier delivers a single notification right away, rather
// than waiting for the Notification Worker's (C9) next poll. Kept as an
// interface so the Alert Processor does not import the channel registry.
type ImmediateNotifier interface {
	DeliverNow(ctx context.Context, alert *models.Alert, log *models.NotificationLog) bool
}

// Processor is the Alert Processor component.
type Processor struct {
	db         *database.DB
	enqueuer   Enqueuer
	notifier   ImmediateNotifier
	captureDir string
}

// New constructs a Processor. captureDir is the root under which captured
// detection images are written, one file per alert (captures/<alert_id>.<ext>).
func New(db *database.DB, enqueuer Enqueuer, notifier ImmediateNotifier, captureDir string) *Processor {
	return &Processor{db: db, enqueuer: enqueuer, notifier: notifier, captureDir: captureDir}
}

// DispatchOutcome tallies how notification dispatch for one alert went:
// rules with no delay are attempted synchronously and counted sent or
// failed; rules with a delay are logged and counted scheduled.
type DispatchOutcome struct {
	Sent      int
	Failed    int
	Scheduled int
}

// Ingest validates and persists a new alert, then fans out a NotificationLog
// entry per recipient of every matching active rule: zero-delay rules are
// delivered synchronously so the caller gets a real sent/failed count,
// delayed rules are logged with a next_retry_at and left for the
// Notification Worker. When imageData is non-empty it is written under
// captureDir before the alert row is created, so CapturedImagePath is
// populated atomically with the rest of the record.
func (p *Processor) Ingest(ctx context.Context, a *models.Alert, imageData []byte, imageExt string) (*models.Alert, DispatchOutcome, error) {
	if err := validateAlert(a); err != nil {
		return nil, DispatchOutcome{}, err
	}

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if len(imageData) > 0 {
		path, err := p.writeCapture(a.ID, imageExt, imageData)
		if err != nil {
			return nil, DispatchOutcome{}, err
		}
		a.CapturedImagePath = &path
	}

	if a.MatchedAt.IsZero() {
		a.MatchedAt = time.Now().UTC()
	}
	if err := p.db.CreateAlert(ctx, a); err != nil {
		return nil, DispatchOutcome{}, fmt.Errorf("create alert: %w", err)
	}
	metrics.AlertsIngested.WithLabelValues(string(a.Type)).Inc()

	var outcome DispatchOutcome
	if a.RequiresNotification() {
		var err error
		outcome, err = p.dispatchNotifications(ctx, a)
		if err != nil {
			return nil, DispatchOutcome{}, err
		}
	}

	return a, outcome, nil
}

// writeCapture writes the captured detection frame to
// <captureDir>/<alertID>.<ext> under a temp name and renames it into
// place, following the compiler's atomic-write convention.
func (p *Processor) writeCapture(alertID, ext string, data []byte) (string, error) {
	if p.captureDir == "" {
		return "", apierr.New(apierr.KindInternal, "capture storage is not configured")
	}
	if err := os.MkdirAll(p.captureDir, 0o750); err != nil {
		return "", fmt.Errorf("create capture dir: %w", err)
	}
	if ext == "" {
		ext = "jpg"
	}

	path := filepath.Join(p.captureDir, fmt.Sprintf("%s.%s", alertID, ext))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return "", fmt.Errorf("write temp capture file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename capture file into place: %w", err)
	}
	return path, nil
}

// OpenCapture opens the captured image for an alert for streaming back
// through GET /alerts/{id}/image. Callers must Close the returned file.
func (p *Processor) OpenCapture(ctx context.Context, alertID string) (*os.File, error) {
	a, err := p.db.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a.CapturedImagePath == nil {
		return nil, apierr.New(apierr.KindNotFound, "alert has no captured image")
	}
	f, err := os.Open(*a.CapturedImagePath)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindNotFound, "captured image file missing", err)
	}
	return f, nil
}

func validateAlert(a *models.Alert) error {
	if a.DeviceID == "" {
		return apierr.New(apierr.KindInvalidInput, "alert device_id is required")
	}
	if a.Subject.Ref == "" {
		return apierr.New(apierr.KindInvalidInput, "alert subject reference is required")
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return apierr.New(apierr.KindInvalidInput, "alert confidence must be in [0,1]")
	}
	return nil
}

// dispatchNotifications selects every enabled rule whose name matches
// a.Type's fixed pattern set (spec section 4.8) and raises one
// NotificationLog per recipient. A rule with delay_minutes = 0 is
// delivered synchronously right here, so the caller's sent/failed count
// reflects a real outcome rather than a queued intent; a rule with
// delay_minutes > 0 is logged with a future next_retry_at and left for
// the Notification Worker (C9), with the durable queue nudged (when an
// Enqueuer is configured) in case a separate worker process is watching
// it. A missing_person_match alert is always delivered synchronously,
// whatever the rule's delay_minutes.
func (p *Processor) dispatchNotifications(ctx context.Context, a *models.Alert) (DispatchOutcome, error) {
	var outcome DispatchOutcome

	rules, err := p.db.ListActiveRulesForAlert(ctx, a.Type)
	if err != nil {
		return outcome, fmt.Errorf("list notification rules for alert %s: %w", a.ID, err)
	}

	for _, rule := range rules {
		for _, recipient := range rule.Recipients.Values {
			log := &models.NotificationLog{
				AlertID:   a.ID,
				RuleID:    rule.ID,
				Channel:   rule.Channel,
				Recipient: recipient,
			}
			delayed := rule.DelayMinutes > 0 && a.Type != models.AlertTypeMissingPersonMatch
			if delayed {
				at := time.Now().UTC().Add(time.Duration(rule.DelayMinutes) * time.Minute)
				log.NextRetryAt = &at
			}
			if err := p.db.CreateNotificationLog(ctx, log); err != nil {
				if errors.Is(err, database.ErrNotificationLogConflict) {
					continue
				}
				return outcome, fmt.Errorf("log notification for alert %s recipient %s: %w", a.ID, recipient, err)
			}

			if !delayed {
				if p.notifier.DeliverNow(ctx, a, log) {
					outcome.Sent++
				} else {
					outcome.Failed++
				}
				continue
			}

			outcome.Scheduled++
			if p.enqueuer != nil {
				if err := p.enqueuer.EnqueueNotification(ctx, log.ID); err != nil {
					return outcome, fmt.Errorf("enqueue notification %s: %w", log.ID, err)
				}
			}
		}
	}
	return outcome, nil
}

// Review applies a human reviewer's decision to an alert.
func (p *Processor) Review(ctx context.Context, alertID, reviewedBy string, to models.AlertStatus, dismissReason *string) error {
	return p.db.TransitionAlertStatus(ctx, alertID, to, reviewedBy, dismissReason)
}

// ListByStatus returns alerts currently in a given review status.
func (p *Processor) ListByStatus(ctx context.Context, status models.AlertStatus) ([]*models.Alert, error) {
	return p.db.ListAlertsByStatus(ctx, status)
}

// List returns a filtered, paginated page of alerts for GET /alerts.
func (p *Processor) List(ctx context.Context, filter database.AlertFilter) ([]*models.Alert, error) {
	return p.db.ListAlerts(ctx, filter)
}

// Get retrieves a single alert by ID.
func (p *Processor) Get(ctx context.Context, id string) (*models.Alert, error) {
	return p.db.GetAlert(ctx, id)
}
