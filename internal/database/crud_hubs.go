package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sentryfleet/sentryfleet/internal/models"
)

var (
	ErrHubNotFound  = errors.New("hub not found")
	ErrHubCodeTaken = errors.New("hub code already in use")
)

// HashAPIToken is the one-way transform applied before a hub's bearer
// token ever reaches storage. The plaintext token is returned to the
// caller exactly once, at registration time, and is never persisted.
func HashAPIToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// CreateHub inserts a new hub, hashing its API token before storage.
func (db *DB) CreateHub(ctx context.Context, h *models.Hub) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO hubs (id, hub_code, tenant_id, name, status, api_token_hash, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.Code, h.TenantID, h.Name, h.Status, HashAPIToken(h.APIToken), h.LastHeartbeat,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrHubCodeTaken
		}
		return fmt.Errorf("create hub: %w", err)
	}
	return nil
}

// GetHub retrieves a hub by ID. The returned Hub's APIToken field is
// always empty; only HubAuthenticates can check a presented token.
func (db *DB) GetHub(ctx context.Context, id string) (*models.Hub, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, hub_code, tenant_id, name, status, ip, mac, hostname, last_seen FROM hubs WHERE id = ?`, id)
	return scanHub(row)
}

// GetHubByCode retrieves a hub by its short uppercase code.
func (db *DB) GetHubByCode(ctx context.Context, code string) (*models.Hub, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, hub_code, tenant_id, name, status, ip, mac, hostname, last_seen FROM hubs WHERE hub_code = ?`, code)
	return scanHub(row)
}

// HubAuthenticates reports whether token hashes to the stored credential
// for hub id, without ever loading or comparing plaintext.
func (db *DB) HubAuthenticates(ctx context.Context, id, token string) (bool, error) {
	var stored string
	err := db.conn.QueryRowContext(ctx, `SELECT api_token_hash FROM hubs WHERE id = ?`, id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrHubNotFound
	}
	if err != nil {
		return false, fmt.Errorf("load hub token hash: %w", err)
	}
	return stored == HashAPIToken(token), nil
}

// UpdateHubStatus applies a lifecycle transition, enforcing the pending ->
// active -> inactive order at the model layer before writing.
func (db *DB) UpdateHubStatus(ctx context.Context, id string, to models.HubStatus) error {
	hub, err := db.GetHub(ctx, id)
	if err != nil {
		return err
	}
	if !models.CanTransitionHubStatus(hub.Status, to) {
		return fmt.Errorf("hub %s: invalid transition %s -> %s", id, hub.Status, to)
	}
	_, err = db.conn.ExecContext(ctx, `UPDATE hubs SET status = ? WHERE id = ?`, to, id)
	if err != nil {
		return fmt.Errorf("update hub status: %w", err)
	}
	return nil
}

// TouchHubHeartbeat records a heartbeat arrival time, used by the Hub
// Heartbeat Aggregator (C5) in its batch update.
func (db *DB) TouchHubHeartbeat(ctx context.Context, id string, ip string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE hubs SET last_seen = CURRENT_TIMESTAMP, ip = ? WHERE id = ?`, ip, id)
	if err != nil {
		return fmt.Errorf("touch hub heartbeat: %w", err)
	}
	return nil
}

// ListHubsByTenant returns every hub owned by tenantID.
func (db *DB) ListHubsByTenant(ctx context.Context, tenantID string) ([]*models.Hub, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, hub_code, tenant_id, name, status, ip, mac, hostname, last_seen FROM hubs WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list hubs: %w", err)
	}
	defer rows.Close()

	var out []*models.Hub
	for rows.Next() {
		h, err := scanHub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHub(row rowScanner) (*models.Hub, error) {
	h := &models.Hub{}
	var ip, mac, hostname sql.NullString
	var lastSeen sql.NullTime
	err := row.Scan(&h.ID, &h.Code, &h.TenantID, &h.Name, &h.Status, &ip, &mac, &hostname, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHubNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan hub: %w", err)
	}
	h.IP = ip.String
	h.MAC = mac.String
	h.Hostname = hostname.String
	if lastSeen.Valid {
		h.LastHeartbeat = &lastSeen.Time
	}
	return h, nil
}
