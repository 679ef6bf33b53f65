package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a bounded context for DDL statements, which can be
// slow on first run when DuckDB allocates the file.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates every table this module owns. All columns are
// defined up front rather than added by later migrations, matching the
// teacher's pre-release schema strategy; this package has no migrations.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, q := range db.tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

func (db *DB) tableCreationQueries() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS tenants (
			id TEXT PRIMARY KEY,
			slug TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS hubs (
			id TEXT PRIMARY KEY,
			hub_code TEXT UNIQUE NOT NULL,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			api_token_hash TEXT NOT NULL,
			ip TEXT,
			mac TEXT,
			hostname TEXT,
			last_seen TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS device_id_counters (
			scope TEXT PRIMARY KEY,
			next_seq BIGINT NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			external_id TEXT UNIQUE NOT NULL,
			hardware_id TEXT UNIQUE NOT NULL,
			tenant_id TEXT REFERENCES tenants(id),
			hub_id TEXT REFERENCES hubs(id),
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			pairing_code TEXT,
			pairing_code_expires_at TIMESTAMP,
			ip TEXT,
			last_seen TIMESTAMP,
			layout_id TEXT,
			pending_sync_version BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS missing_persons (
			id TEXT PRIMARY KEY,
			case_id TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			age_at_disappearance INTEGER,
			disappearance_date TIMESTAMP,
			last_known_location TEXT,
			status TEXT NOT NULL,
			feature_vector BLOB NOT NULL,
			photo_path TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS loyalty_members (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			member_code TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			email TEXT,
			phone TEXT,
			assigned_playlist_id TEXT,
			last_seen_at TIMESTAMP,
			last_seen_store TEXT,
			feature_vector BLOB NOT NULL,
			photo_path TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS index_artifacts (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			version BIGINT NOT NULL,
			record_count INTEGER NOT NULL,
			hash TEXT NOT NULL,
			path TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(scope, version)
		)`,
		`CREATE TABLE IF NOT EXISTS layouts (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			name TEXT NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS layers (
			id TEXT PRIMARY KEY,
			layout_id TEXT NOT NULL REFERENCES layouts(id),
			name TEXT NOT NULL,
			z_index INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			content_mode TEXT NOT NULL,
			playlist_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS layer_playlist_triggers (
			id TEXT PRIMARY KEY,
			layer_id TEXT NOT NULL REFERENCES layers(id),
			trigger_type TEXT NOT NULL,
			playlist_id TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			UNIQUE(layer_id, trigger_type)
		)`,
		`CREATE TABLE IF NOT EXISTS device_layer_overrides (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL REFERENCES devices(id),
			layer_id TEXT NOT NULL REFERENCES layers(id),
			playlist_id TEXT NOT NULL,
			UNIQUE(device_id, layer_id)
		)`,
		`CREATE TABLE IF NOT EXISTS playlists (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL REFERENCES tenants(id),
			name TEXT NOT NULL,
			description TEXT,
			trigger_type TEXT NOT NULL,
			trigger_config TEXT,
			loop_mode TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			starts_at TIMESTAMP,
			ends_at TIMESTAMP,
			is_active BOOLEAN NOT NULL DEFAULT true,
			version BIGINT NOT NULL DEFAULT 1,
			sync_status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS playlist_items (
			id TEXT PRIMARY KEY,
			playlist_id TEXT NOT NULL REFERENCES playlists(id),
			content_ref_kind TEXT NOT NULL,
			content_ref_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			duration_override_ms BIGINT,
			UNIQUE(playlist_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS device_playlist_assignments (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL REFERENCES devices(id),
			playlist_id TEXT NOT NULL REFERENCES playlists(id),
			trigger_type TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			is_enabled BOOLEAN NOT NULL DEFAULT true,
			starts_at TIMESTAMP,
			ends_at TIMESTAMP,
			UNIQUE(device_id, trigger_type)
		)`,
		`CREATE TABLE IF NOT EXISTS device_playlist_sync (
			device_id TEXT NOT NULL REFERENCES devices(id),
			playlist_id TEXT NOT NULL REFERENCES playlists(id),
			synced_version BIGINT,
			state TEXT NOT NULL DEFAULT 'pending',
			last_attempt TIMESTAMP,
			last_success TIMESTAMP,
			error TEXT,
			PRIMARY KEY (device_id, playlist_id)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			tenant_id TEXT,
			device_id TEXT NOT NULL REFERENCES devices(id),
			type TEXT NOT NULL,
			subject_kind TEXT NOT NULL,
			subject_ref TEXT NOT NULL,
			status TEXT NOT NULL,
			confidence DOUBLE NOT NULL,
			matched_at TIMESTAMP NOT NULL,
			reviewed_by TEXT,
			reviewed_at TIMESTAMP,
			dismiss_reason TEXT,
			captured_image_path TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS notification_rules (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			description TEXT,
			channel TEXT NOT NULL,
			recipients_kind TEXT NOT NULL,
			recipients TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			delay_minutes INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS notification_log (
			id TEXT PRIMARY KEY,
			alert_id TEXT NOT NULL REFERENCES alerts(id),
			rule_id TEXT NOT NULL REFERENCES notification_rules(id),
			channel TEXT NOT NULL,
			recipient TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			sent_at TIMESTAMP,
			next_retry_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
}

// createIndexes creates the secondary indexes that back the module's
// hot-path lookups: heartbeat updates by hub/device, pairing-code lookup,
// sync status queries, and notification retry sweeps.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_devices_hub ON devices(hub_id)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_tenant ON devices(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_devices_pairing_code ON devices(pairing_code)`,
		`CREATE INDEX IF NOT EXISTS idx_loyalty_members_tenant ON loyalty_members(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_index_artifacts_scope ON index_artifacts(scope, version DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_playlist_items_playlist ON playlist_items(playlist_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_assignments_device ON device_playlist_assignments(device_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_state ON device_playlist_sync(state)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_device ON alerts(device_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_log_retry ON notification_log(status, next_retry_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_log_thread ON notification_log(alert_id, channel, recipient, created_at DESC)`,
		// Append-only idempotence: at most one row per (alert, channel,
		// recipient) may ever record a successful send (spec section 4.8,
		// testable property 7). Retries append new rows instead of
		// mutating this one, so the constraint only scopes status = sent.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_notification_log_sent_once
		 ON notification_log(alert_id, channel, recipient) WHERE status = 'sent'`,
	}

	for _, q := range queries {
		if _, err := db.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
