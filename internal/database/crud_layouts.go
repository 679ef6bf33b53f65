package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sentryfleet/sentryfleet/internal/models"
)

var (
	ErrLayoutNotFound = errors.New("layout not found")
	ErrLayerNotFound  = errors.New("layer not found")
)

// CreateLayout inserts a new layout at version 1.
func (db *DB) CreateLayout(ctx context.Context, l *models.Layout) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.Version == 0 {
		l.Version = 1
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO layouts (id, tenant_id, name, width, height, version, is_active) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.TenantID, l.Name, l.Width, l.Height, l.Version, l.IsActive,
	)
	if err != nil {
		return fmt.Errorf("create layout: %w", err)
	}
	return nil
}

// GetLayout retrieves a layout by ID.
func (db *DB) GetLayout(ctx context.Context, id string) (*models.Layout, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, width, height, version, is_active FROM layouts WHERE id = ?`, id)
	l := &models.Layout{}
	err := row.Scan(&l.ID, &l.TenantID, &l.Name, &l.Width, &l.Height, &l.Version, &l.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLayoutNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan layout: %w", err)
	}
	return l, nil
}

// BumpLayoutVersion increments a layout's version after a structural edit
// (layer added/removed/moved), which invalidates every device's cached
// resolution for it.
func (db *DB) BumpLayoutVersion(ctx context.Context, id string) (int64, error) {
	var version int64
	err := db.conn.QueryRowContext(ctx,
		`UPDATE layouts SET version = version + 1 WHERE id = ? RETURNING version`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrLayoutNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("bump layout version: %w", err)
	}
	return version, nil
}

// CreateLayer inserts a new layer into a layout.
func (db *DB) CreateLayer(ctx context.Context, l *models.Layer) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO layers (id, layout_id, name, z_index, x, y, width, height, content_mode, playlist_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.LayoutID, l.Name, l.ZIndex, l.X, l.Y, l.Width, l.Height, l.ContentMode, nullableString(l.PlaylistID),
	)
	if err != nil {
		return fmt.Errorf("create layer: %w", err)
	}
	return nil
}

// ListLayersByLayout returns every layer of a layout ordered by z-index,
// bottom to top.
func (db *DB) ListLayersByLayout(ctx context.Context, layoutID string) ([]*models.Layer, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, layout_id, name, z_index, x, y, width, height, content_mode, playlist_id
		 FROM layers WHERE layout_id = ? ORDER BY z_index`, layoutID)
	if err != nil {
		return nil, fmt.Errorf("list layers: %w", err)
	}
	defer rows.Close()

	var out []*models.Layer
	for rows.Next() {
		l := &models.Layer{}
		var playlist sql.NullString
		if err := rows.Scan(&l.ID, &l.LayoutID, &l.Name, &l.ZIndex, &l.X, &l.Y, &l.Width, &l.Height, &l.ContentMode, &playlist); err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		if playlist.Valid {
			l.PlaylistID = &playlist.String
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CreateLayerPlaylistTrigger binds a trigger to a playlist within a layer.
func (db *DB) CreateLayerPlaylistTrigger(ctx context.Context, t *models.LayerPlaylistTrigger) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO layer_playlist_triggers (id, layer_id, trigger_type, playlist_id, priority) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.LayerID, t.TriggerType, t.PlaylistID, t.Priority,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("layer %s already has a binding for trigger %s", t.LayerID, t.TriggerType)
		}
		return fmt.Errorf("create layer playlist trigger: %w", err)
	}
	return nil
}

// ListTriggersByLayer returns every trigger binding configured for layerID,
// ordered by priority descending, the order the Layout Composer (C6)
// evaluates candidate playlists in.
func (db *DB) ListTriggersByLayer(ctx context.Context, layerID string) ([]*models.LayerPlaylistTrigger, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, layer_id, trigger_type, playlist_id, priority FROM layer_playlist_triggers
		 WHERE layer_id = ? ORDER BY priority DESC`, layerID)
	if err != nil {
		return nil, fmt.Errorf("list layer triggers: %w", err)
	}
	defer rows.Close()

	var out []*models.LayerPlaylistTrigger
	for rows.Next() {
		t := &models.LayerPlaylistTrigger{}
		if err := rows.Scan(&t.ID, &t.LayerID, &t.TriggerType, &t.PlaylistID, &t.Priority); err != nil {
			return nil, fmt.Errorf("scan layer trigger: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetDeviceLayerOverride returns the device-specific playlist override for
// a layer, if one has been set.
func (db *DB) GetDeviceLayerOverride(ctx context.Context, deviceID, layerID string) (*models.DeviceLayerOverride, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, device_id, layer_id, playlist_id FROM device_layer_overrides WHERE device_id = ? AND layer_id = ?`,
		deviceID, layerID)
	o := &models.DeviceLayerOverride{}
	err := row.Scan(&o.ID, &o.DeviceID, &o.LayerID, &o.PlaylistID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan device layer override: %w", err)
	}
	return o, nil
}

// SetDeviceLayerOverride pins deviceID's rendering of layerID to
// playlistID, replacing any existing override.
func (db *DB) SetDeviceLayerOverride(ctx context.Context, o *models.DeviceLayerOverride) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO device_layer_overrides (id, device_id, layer_id, playlist_id) VALUES (?, ?, ?, ?)
		 ON CONFLICT (device_id, layer_id) DO UPDATE SET playlist_id = EXCLUDED.playlist_id`,
		o.ID, o.DeviceID, o.LayerID, o.PlaylistID,
	)
	if err != nil {
		return fmt.Errorf("set device layer override: %w", err)
	}
	return nil
}
