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
	ErrPlaylistNotFound        = errors.New("playlist not found")
	ErrAssignmentAlreadyExists = errors.New("device already has an assignment for this trigger")
	ErrAssignmentNotFound      = errors.New("device playlist assignment not found")
)

// CreatePlaylist inserts a new playlist at version 1.
func (db *DB) CreatePlaylist(ctx context.Context, p *models.Playlist) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Version == 0 {
		p.Version = 1
	}
	if p.SyncStatus == "" {
		p.SyncStatus = models.SyncStatusPending
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO playlists (id, tenant_id, name, description, trigger_type, trigger_config, loop_mode, priority, starts_at, ends_at, is_active, version, sync_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TenantID, p.Name, nullableString(p.Description), p.TriggerType, nullableString(p.TriggerConfig), p.LoopMode, p.Priority, p.Start, p.End, p.IsActive, p.Version, p.SyncStatus,
	)
	if err != nil {
		return fmt.Errorf("create playlist: %w", err)
	}
	return nil
}

// GetPlaylist retrieves a playlist by ID.
func (db *DB) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, description, trigger_type, trigger_config, loop_mode, priority, starts_at, ends_at, is_active, version, sync_status
		 FROM playlists WHERE id = ?`, id)
	return scanPlaylist(row)
}

// BumpPlaylistVersion increments a playlist's version after an item edit,
// marking it pending resync everywhere it is assigned.
func (db *DB) BumpPlaylistVersion(ctx context.Context, id string) (int64, error) {
	var version int64
	err := db.conn.QueryRowContext(ctx,
		`UPDATE playlists SET version = version + 1, sync_status = 'pending' WHERE id = ? RETURNING version`, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrPlaylistNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("bump playlist version: %w", err)
	}
	return version, nil
}

// AddPlaylistItem appends a content reference at the given position.
func (db *DB) AddPlaylistItem(ctx context.Context, item *models.PlaylistItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	var durationMs *int64
	if item.DurationOverride != nil {
		ms := item.DurationOverride.Milliseconds()
		durationMs = &ms
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO playlist_items (id, playlist_id, content_ref_kind, content_ref_id, position, duration_override_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.PlaylistID, item.ContentRef.Kind, item.ContentRef.ID, item.Position, durationMs,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("playlist %s already has an item at position %d", item.PlaylistID, item.Position)
		}
		return fmt.Errorf("add playlist item: %w", err)
	}
	return nil
}

// ListPlaylistItems returns a playlist's items ordered by position.
func (db *DB) ListPlaylistItems(ctx context.Context, playlistID string) ([]*models.PlaylistItem, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, playlist_id, content_ref_kind, content_ref_id, position, duration_override_ms
		 FROM playlist_items WHERE playlist_id = ? ORDER BY position`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("list playlist items: %w", err)
	}
	defer rows.Close()

	var out []*models.PlaylistItem
	for rows.Next() {
		item := &models.PlaylistItem{}
		var durationMs sql.NullInt64
		if err := rows.Scan(&item.ID, &item.PlaylistID, &item.ContentRef.Kind, &item.ContentRef.ID, &item.Position, &durationMs); err != nil {
			return nil, fmt.Errorf("scan playlist item: %w", err)
		}
		if durationMs.Valid {
			d := durationMsToDuration(durationMs.Int64)
			item.DurationOverride = &d
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// CreateDevicePlaylistAssignment binds a device to a playlist under a
// trigger. New non-default assignments are created disabled, matching the
// manual-enable rule for trigger-conditional playlists (spec section 4.4).
func (db *DB) CreateDevicePlaylistAssignment(ctx context.Context, a *models.DevicePlaylistAssignment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if !a.TriggerType.IsDefault() {
		a.IsEnabled = false
	} else {
		a.IsEnabled = true
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO device_playlist_assignments (id, device_id, playlist_id, trigger_type, priority, is_enabled, starts_at, ends_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DeviceID, a.PlaylistID, a.TriggerType, a.Priority, a.IsEnabled, a.Start, a.End,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAssignmentAlreadyExists
		}
		return fmt.Errorf("create device playlist assignment: %w", err)
	}
	return nil
}

// ListAssignmentsByDevice returns every playlist assignment for a device,
// ordered by priority descending, the order the Layout Composer evaluates
// trigger matches in.
func (db *DB) ListAssignmentsByDevice(ctx context.Context, deviceID string) ([]*models.DevicePlaylistAssignment, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, device_id, playlist_id, trigger_type, priority, is_enabled, starts_at, ends_at
		 FROM device_playlist_assignments WHERE device_id = ? ORDER BY priority DESC`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list device assignments: %w", err)
	}
	defer rows.Close()

	var out []*models.DevicePlaylistAssignment
	for rows.Next() {
		a := &models.DevicePlaylistAssignment{}
		if err := rows.Scan(&a.ID, &a.DeviceID, &a.PlaylistID, &a.TriggerType, &a.Priority, &a.IsEnabled, &a.Start, &a.End); err != nil {
			return nil, fmt.Errorf("scan device assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetAssignmentEnabled toggles whether an assignment is active, the PATCH
// /devices/{id}/playlists/{assignment_id}/toggle endpoint's write path.
func (db *DB) SetAssignmentEnabled(ctx context.Context, assignmentID string, enabled bool) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE device_playlist_assignments SET is_enabled = ? WHERE id = ?`, enabled, assignmentID)
	if err != nil {
		return fmt.Errorf("toggle assignment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("toggle assignment: %w", err)
	}
	if n == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

// ListDeviceIDsByPlaylist returns every device with an assignment
// referencing playlistID, the fan-out set for POST /playlists/{id}/push.
func (db *DB) ListDeviceIDsByPlaylist(ctx context.Context, playlistID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT DISTINCT device_id FROM device_playlist_assignments WHERE playlist_id = ?`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("list devices for playlist: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan device id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListSyncByPlaylist returns every device_playlist_sync row for
// playlistID, backing GET /playlists/{id}/sync-status?include_devices=.
func (db *DB) ListSyncByPlaylist(ctx context.Context, playlistID string) ([]*models.DevicePlaylistSync, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT device_id, playlist_id, synced_version, state, last_attempt, last_success, error
		 FROM device_playlist_sync WHERE playlist_id = ?`, playlistID)
	if err != nil {
		return nil, fmt.Errorf("list sync by playlist: %w", err)
	}
	defer rows.Close()
	return scanSyncRows(rows)
}

// UpsertDevicePlaylistSync records an attempt or success/failure outcome
// for a (device, playlist) sync push (C7).
func (db *DB) UpsertDevicePlaylistSync(ctx context.Context, s *models.DevicePlaylistSync) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO device_playlist_sync (device_id, playlist_id, synced_version, state, last_attempt, last_success, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (device_id, playlist_id) DO UPDATE SET
		   synced_version = EXCLUDED.synced_version,
		   state = EXCLUDED.state,
		   last_attempt = EXCLUDED.last_attempt,
		   last_success = EXCLUDED.last_success,
		   error = EXCLUDED.error`,
		s.DeviceID, s.PlaylistID, nullableInt64(s.SyncedVersion), s.State, s.LastAttempt, s.LastSuccess, nullableString(s.Error),
	)
	if err != nil {
		return fmt.Errorf("upsert device playlist sync: %w", err)
	}
	return nil
}

// ListPendingSync returns every (device, playlist) pair not yet caught up
// to the playlist's current version, the Sync Dispatcher's work queue.
func (db *DB) ListPendingSync(ctx context.Context) ([]*models.DevicePlaylistSync, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT s.device_id, s.playlist_id, s.synced_version, s.state, s.last_attempt, s.last_success, s.error
		 FROM device_playlist_sync s JOIN playlists p ON p.id = s.playlist_id
		 WHERE s.state != 'synced' OR s.synced_version < p.version
		 OR s.synced_version IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("list pending sync: %w", err)
	}
	defer rows.Close()
	return scanSyncRows(rows)
}

func scanSyncRows(rows *sql.Rows) ([]*models.DevicePlaylistSync, error) {
	var out []*models.DevicePlaylistSync
	for rows.Next() {
		s := &models.DevicePlaylistSync{}
		var syncedVersion sql.NullInt64
		var lastAttempt, lastSuccess sql.NullTime
		var syncErr sql.NullString
		if err := rows.Scan(&s.DeviceID, &s.PlaylistID, &syncedVersion, &s.State, &lastAttempt, &lastSuccess, &syncErr); err != nil {
			return nil, fmt.Errorf("scan sync row: %w", err)
		}
		if syncedVersion.Valid {
			s.SyncedVersion = &syncedVersion.Int64
		}
		if lastAttempt.Valid {
			s.LastAttempt = &lastAttempt.Time
		}
		if lastSuccess.Valid {
			s.LastSuccess = &lastSuccess.Time
		}
		if syncErr.Valid {
			s.Error = &syncErr.String
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanPlaylist(row rowScanner) (*models.Playlist, error) {
	p := &models.Playlist{}
	var description, triggerConfig sql.NullString
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &description, &p.TriggerType, &triggerConfig, &p.LoopMode, &p.Priority, &p.Start, &p.End, &p.IsActive, &p.Version, &p.SyncStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlaylistNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan playlist: %w", err)
	}
	if description.Valid {
		p.Description = &description.String
	}
	if triggerConfig.Valid {
		p.TriggerConfig = &triggerConfig.String
	}
	return p, nil
}
