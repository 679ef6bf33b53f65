package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sentryfleet/sentryfleet/internal/models"
)

var (
	ErrNotificationRuleNotFound = errors.New("notification rule not found")
	ErrNotificationLogConflict  = errors.New("a sent notification already exists for this alert, channel and recipient")
)

// alertTypeRuleNames is the fixed rule-name membership the Alert
// Processor (C8) uses to select notification rules for an alert type
// (spec section 4.8) — never free-form matching against a stored
// alert_type column.
var alertTypeRuleNames = map[models.AlertType][]string{
	models.AlertTypeMissingPersonMatch: {"ncmec_alert", "ncmec_match", "critical_alert"},
	models.AlertTypeLoyaltyMatch:       {"loyalty_alert", "loyalty_match"},
}

// ListActiveRulesForAlert returns every enabled rule whose name is in the
// fixed pattern set for alertType.
func (db *DB) ListActiveRulesForAlert(ctx context.Context, alertType models.AlertType) ([]*models.NotificationRule, error) {
	names := alertTypeRuleNames[alertType]
	if len(names) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(names))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, description, channel, recipients_kind, recipients, enabled, delay_minutes
		 FROM notification_rules WHERE name IN (`+placeholders+`) AND enabled = true`, args...)
	if err != nil {
		return nil, fmt.Errorf("list notification rules: %w", err)
	}
	defer rows.Close()

	var out []*models.NotificationRule
	for rows.Next() {
		r, err := scanNotificationRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateNotificationRule inserts a named rule binding a channel and
// recipient set, with an optional dispatch delay.
func (db *DB) CreateNotificationRule(ctx context.Context, r *models.NotificationRule) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO notification_rules (id, name, description, channel, recipients_kind, recipients, enabled, delay_minutes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Description, r.Channel, r.Recipients.Kind, strings.Join(r.Recipients.Values, ","), r.Enabled, r.DelayMinutes,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("notification rule name %q already exists", r.Name)
		}
		return fmt.Errorf("create notification rule: %w", err)
	}
	return nil
}

func scanNotificationRule(row rowScanner) (*models.NotificationRule, error) {
	r := &models.NotificationRule{}
	var description sql.NullString
	var recipients string
	err := row.Scan(&r.ID, &r.Name, &description, &r.Channel, &r.Recipients.Kind, &recipients, &r.Enabled, &r.DelayMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotificationRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification rule: %w", err)
	}
	if description.Valid {
		r.Description = description.String
	}
	if recipients != "" {
		r.Recipients.Values = strings.Split(recipients, ",")
	}
	return r, nil
}

// CreateNotificationLog records a delivery attempt for one recipient of
// one alert. n.NextRetryAt, when set, schedules a delayed first attempt
// (a rule with delay_minutes > 0); nil means the worker may pick it up
// immediately.
func (db *DB) CreateNotificationLog(ctx context.Context, n *models.NotificationLog) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Status == "" {
		n.Status = models.DeliveryStatusPending
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO notification_log (id, alert_id, rule_id, channel, recipient, status, attempts, next_retry_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		n.ID, n.AlertID, n.RuleID, n.Channel, n.Recipient, n.Status, n.NextRetryAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrNotificationLogConflict
		}
		return fmt.Errorf("create notification log: %w", err)
	}
	return nil
}

// notificationLogThreadColumns selects, per (alert_id, channel,
// recipient) thread, only the most recently appended row — the log is
// append-only, so "the current state of a delivery" is its latest row,
// not a mutated single one.
const notificationLogThreadColumns = `
	WITH ranked AS (
		SELECT *, ROW_NUMBER() OVER (
			PARTITION BY alert_id, channel, recipient ORDER BY created_at DESC, id DESC
		) AS rn
		FROM notification_log
	)
	SELECT id, alert_id, rule_id, channel, recipient, status, attempts, last_error, sent_at, next_retry_at
	FROM ranked WHERE rn = 1`

// ListDueNotifications returns the latest log row of every thread that is
// pending or retry-eligible, whose next_retry_at has elapsed, and whose
// retry budget is not exhausted — the Notification Worker's (C9) task
// source.
func (db *DB) ListDueNotifications(ctx context.Context, maxRetries, limit int) ([]*models.NotificationLog, error) {
	rows, err := db.conn.QueryContext(ctx,
		notificationLogThreadColumns+`
		   AND status IN ('pending', 'failed')
		   AND (next_retry_at IS NULL OR next_retry_at <= CURRENT_TIMESTAMP)
		   AND attempts < ?
		 ORDER BY next_retry_at NULLS FIRST LIMIT ?`, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("list due notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.NotificationLog
	for rows.Next() {
		n, err := scanNotificationLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ListNotificationsByAlert returns the latest log row per
// (channel, recipient) thread raised for alertID, for
// POST /alerts/{id}/notifications/retry.
func (db *DB) ListNotificationsByAlert(ctx context.Context, alertID string) ([]*models.NotificationLog, error) {
	rows, err := db.conn.QueryContext(ctx,
		notificationLogThreadColumns+` AND alert_id = ?`, alertID)
	if err != nil {
		return nil, fmt.Errorf("list notifications for alert: %w", err)
	}
	defer rows.Close()

	var out []*models.NotificationLog
	for rows.Next() {
		n, err := scanNotificationLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// RecordDeliverySuccess appends a new "sent" row for the same alert,
// rule, channel and recipient as n, rather than mutating n in place —
// the log is append-only (spec section 3). A unique-constraint conflict
// means another attempt already recorded a sent row for this triple;
// that is treated as success, not an error, since it reports the same
// outcome.
func (db *DB) RecordDeliverySuccess(ctx context.Context, n *models.NotificationLog) error {
	id := uuid.New().String()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO notification_log (id, alert_id, rule_id, channel, recipient, status, attempts, sent_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		id, n.AlertID, n.RuleID, n.Channel, n.Recipient, models.DeliveryStatusSent, n.Attempts+1,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil
		}
		return fmt.Errorf("record delivery success: %w", err)
	}
	return nil
}

// RecordDeliveryFailure appends a new "failed" row for the same alert,
// rule, channel and recipient as n, carrying the incremented attempt
// count and the next retry time (nil once the retry budget is
// exhausted).
func (db *DB) RecordDeliveryFailure(ctx context.Context, n *models.NotificationLog, errMsg string, nextRetry *time.Time) error {
	id := uuid.New().String()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO notification_log (id, alert_id, rule_id, channel, recipient, status, attempts, last_error, next_retry_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, n.AlertID, n.RuleID, n.Channel, n.Recipient, models.DeliveryStatusFailed, n.Attempts+1, errMsg, nextRetry,
	)
	if err != nil {
		return fmt.Errorf("record delivery failure: %w", err)
	}
	return nil
}

func scanNotificationLog(row rowScanner) (*models.NotificationLog, error) {
	n := &models.NotificationLog{}
	var lastError sql.NullString
	var sentAt, nextRetryAt sql.NullTime
	err := row.Scan(&n.ID, &n.AlertID, &n.RuleID, &n.Channel, &n.Recipient, &n.Status, &n.Attempts, &lastError, &sentAt, &nextRetryAt)
	if err != nil {
		return nil, fmt.Errorf("scan notification log: %w", err)
	}
	if lastError.Valid {
		n.LastError = &lastError.String
	}
	if sentAt.Valid {
		n.SentAt = &sentAt.Time
	}
	if nextRetryAt.Valid {
		n.NextRetryAt = &nextRetryAt.Time
	}
	return n, nil
}
