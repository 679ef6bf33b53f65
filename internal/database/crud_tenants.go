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

var (
	ErrTenantNotFound  = errors.New("tenant not found")
	ErrTenantSlugTaken = errors.New("tenant slug already in use")
)

// CreateTenant inserts a new tenant, minting an ID if one was not supplied.
func (db *DB) CreateTenant(ctx context.Context, t *models.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tenants (id, slug, name, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Slug, t.Name, t.IsActive, t.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrTenantSlugTaken
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// GetTenant retrieves a tenant by ID.
func (db *DB) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, slug, name, is_active, created_at FROM tenants WHERE id = ?`, id)
	return scanTenant(row)
}

// GetTenantBySlug retrieves a tenant by its URL-safe slug.
func (db *DB) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, slug, name, is_active, created_at FROM tenants WHERE slug = ?`, slug)
	return scanTenant(row)
}

// ListTenants returns all tenants ordered by creation time.
func (db *DB) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, slug, name, is_active, created_at FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []*models.Tenant
	for rows.Next() {
		t := &models.Tenant{}
		if err := rows.Scan(&t.ID, &t.Slug, &t.Name, &t.IsActive, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(row rowScanner) (*models.Tenant, error) {
	t := &models.Tenant{}
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.IsActive, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	return t, nil
}
