package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentryfleet/sentryfleet/internal/models"
)

var ErrAlertNotFound = errors.New("alert not found")

// CreateAlert inserts a new alert in status "new".
func (db *DB) CreateAlert(ctx context.Context, a *models.Alert) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = models.AlertStatusNew
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO alerts (id, tenant_id, device_id, type, subject_kind, subject_ref, status, confidence, matched_at, captured_image_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, nullableString(a.TenantID), a.DeviceID, a.Type, a.Subject.Kind, a.Subject.Ref, a.Status, a.Confidence, a.MatchedAt, nullableString(a.CapturedImagePath),
	)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// GetAlert retrieves an alert by ID.
func (db *DB) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := db.conn.QueryRowContext(ctx, alertSelectColumns+` WHERE id = ?`, id)
	return scanAlert(row)
}

// ListAlertsByStatus returns alerts in a given review status, newest
// match first.
func (db *DB) ListAlertsByStatus(ctx context.Context, status models.AlertStatus) ([]*models.Alert, error) {
	rows, err := db.conn.QueryContext(ctx, alertSelectColumns+` WHERE status = ? ORDER BY matched_at DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("list alerts by status: %w", err)
	}
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AlertFilter narrows ListAlerts; zero-value fields are unfiltered.
type AlertFilter struct {
	Status   models.AlertStatus
	Type     models.AlertType
	TenantID string
	Since    *time.Time
	Page     int
	PerPage  int
}

// ListAlerts returns a page of alerts matching filter, newest match
// first, for the GET /alerts listing endpoint.
func (db *DB) ListAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	query := alertSelectColumns + ` WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.Since != nil {
		query += ` AND matched_at >= ?`
		args = append(args, *filter.Since)
	}

	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	query += ` ORDER BY matched_at DESC LIMIT ? OFFSET ?`
	args = append(args, perPage, (page-1)*perPage)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// TransitionAlertStatus applies a review-workflow transition, rejecting
// illegal transitions before writing (spec section 3's alert state
// machine: new -> reviewed -> escalated, with resolved and false_positive
// reachable from new, reviewed, or escalated, and new able to go straight
// to escalated; resolved and false_positive are terminal).
func (db *DB) TransitionAlertStatus(ctx context.Context, id string, to models.AlertStatus, reviewedBy string, dismissReason *string) error {
	a, err := db.GetAlert(ctx, id)
	if err != nil {
		return err
	}
	if !models.CanTransitionAlertStatus(a.Status, to) {
		return fmt.Errorf("alert %s: invalid transition %s -> %s", id, a.Status, to)
	}

	_, err = db.conn.ExecContext(ctx,
		`UPDATE alerts SET status = ?, reviewed_by = ?, reviewed_at = CURRENT_TIMESTAMP, dismiss_reason = ? WHERE id = ?`,
		to, nullableString(optionalString(reviewedBy)), nullableString(dismissReason), id,
	)
	if err != nil {
		return fmt.Errorf("transition alert status: %w", err)
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const alertSelectColumns = `SELECT id, tenant_id, device_id, type, subject_kind, subject_ref, status, confidence, matched_at, reviewed_by, reviewed_at, dismiss_reason, captured_image_path FROM alerts`

func scanAlert(row rowScanner) (*models.Alert, error) {
	a := &models.Alert{}
	var tenantID, reviewedBy, dismissReason, capturedImagePath sql.NullString
	var reviewedAt sql.NullTime
	err := row.Scan(&a.ID, &tenantID, &a.DeviceID, &a.Type, &a.Subject.Kind, &a.Subject.Ref, &a.Status, &a.Confidence, &a.MatchedAt, &reviewedBy, &reviewedAt, &dismissReason, &capturedImagePath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	if tenantID.Valid {
		a.TenantID = &tenantID.String
	}
	if reviewedBy.Valid {
		a.ReviewedBy = &reviewedBy.String
	}
	if reviewedAt.Valid {
		a.ReviewedAt = &reviewedAt.Time
	}
	if dismissReason.Valid {
		a.DismissReason = &dismissReason.String
	}
	if capturedImagePath.Valid {
		a.CapturedImagePath = &capturedImagePath.String
	}
	return a, nil
}
