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
	ErrDeviceNotFound       = errors.New("device not found")
	ErrHardwareIDRegistered = errors.New("hardware id already registered")
)

// RegisterDevice inserts a device, idempotent on hardware_id: a second
// registration attempt for the same hardware_id returns the existing
// device rather than erroring, matching the Fleet Registry's registration
// contract (spec section 4.4).
func (db *DB) RegisterDevice(ctx context.Context, d *models.Device) (*models.Device, error) {
	existing, err := db.GetDeviceByHardwareID(ctx, d.HardwareID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrDeviceNotFound) {
		return nil, err
	}

	if d.ID == "" {
		d.ID = uuid.New().String()
	}

	var extID string
	txErr := db.WithTx(ctx, func(tx *sql.Tx) error {
		var scope string
		switch d.Mode {
		case models.DeviceModeHub:
			scope = "hub:" + *d.HubID
		default:
			scope = "direct"
		}
		seq, err := reserveNextSeq(ctx, tx, scope)
		if err != nil {
			return err
		}
		if d.Mode == models.DeviceModeHub {
			hub, err := db.getHubCodeTx(ctx, tx, *d.HubID)
			if err != nil {
				return err
			}
			extID = models.FormatHubExternalID(hub, seq)
		} else {
			extID = models.FormatDirectExternalID(seq)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO devices (id, external_id, hardware_id, tenant_id, hub_id, mode, status, ip, layout_id, pending_sync_version)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
			d.ID, extID, d.HardwareID, nullableString(d.TenantID), nullableString(d.HubID), d.Mode, models.DeviceStatusPending, d.IP, nullableString(d.LayoutID),
		)
		return err
	})
	if txErr != nil {
		if isUniqueConstraintError(txErr) {
			return nil, ErrHardwareIDRegistered
		}
		return nil, fmt.Errorf("register device: %w", txErr)
	}

	d.ExternalID = extID
	d.Status = models.DeviceStatusPending
	return d, nil
}

func reserveNextSeq(ctx context.Context, tx *sql.Tx, scope string) (int64, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO device_id_counters (scope, next_seq) VALUES (?, 1) ON CONFLICT (scope) DO NOTHING`, scope)
	if err != nil {
		return 0, fmt.Errorf("seed counter: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`UPDATE device_id_counters SET next_seq = next_seq + 1 WHERE scope = ? RETURNING next_seq - 1`, scope).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("reserve sequence: %w", err)
	}
	return seq, nil
}

func (db *DB) getHubCodeTx(ctx context.Context, tx *sql.Tx, hubID string) (string, error) {
	var code string
	err := tx.QueryRowContext(ctx, `SELECT hub_code FROM hubs WHERE id = ?`, hubID).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrHubNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load hub code: %w", err)
	}
	return code, nil
}

// GetDevice retrieves a device by ID.
func (db *DB) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	row := db.conn.QueryRowContext(ctx, deviceSelectColumns+` WHERE id = ?`, id)
	return scanDevice(row)
}

// GetDeviceByHardwareID retrieves a device by its immutable hardware
// identity, the key registration idempotence is keyed on.
func (db *DB) GetDeviceByHardwareID(ctx context.Context, hardwareID string) (*models.Device, error) {
	row := db.conn.QueryRowContext(ctx, deviceSelectColumns+` WHERE hardware_id = ?`, hardwareID)
	return scanDevice(row)
}

// GetDeviceByPairingCode retrieves a device currently awaiting pairing
// verification under code.
func (db *DB) GetDeviceByPairingCode(ctx context.Context, code string) (*models.Device, error) {
	row := db.conn.QueryRowContext(ctx, deviceSelectColumns+` WHERE pairing_code = ?`, code)
	return scanDevice(row)
}

// ListDevicesByHub returns every device aggregated behind hubID.
func (db *DB) ListDevicesByHub(ctx context.Context, hubID string) ([]*models.Device, error) {
	rows, err := db.conn.QueryContext(ctx, deviceSelectColumns+` WHERE hub_id = ?`, hubID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []*models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDeviceStatus applies a heartbeat-driven lifecycle transition.
func (db *DB) UpdateDeviceStatus(ctx context.Context, id string, to models.DeviceStatus) error {
	d, err := db.GetDevice(ctx, id)
	if err != nil {
		return err
	}
	if !models.CanTransitionDeviceStatus(d.Status, to) {
		return fmt.Errorf("device %s: invalid transition %s -> %s", id, d.Status, to)
	}
	_, err = db.conn.ExecContext(ctx, `UPDATE devices SET status = ? WHERE id = ?`, to, id)
	if err != nil {
		return fmt.Errorf("update device status: %w", err)
	}
	return nil
}

// TouchDeviceHeartbeat records a heartbeat arrival and transitions the
// device to active if it was offline or pending.
func (db *DB) TouchDeviceHeartbeat(ctx context.Context, id, ip string) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		var status models.DeviceStatus
		if err := tx.QueryRowContext(ctx, `SELECT status FROM devices WHERE id = ?`, id).Scan(&status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrDeviceNotFound
			}
			return err
		}
		next := status
		if status != models.DeviceStatusError {
			next = models.DeviceStatusActive
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE devices SET last_seen = CURRENT_TIMESTAMP, ip = ?, status = ? WHERE id = ?`, ip, next, id)
		return err
	})
}

// AssignDeviceTenant binds a direct-mode device to the tenant supplied by
// the operator completing its pairing verification.
func (db *DB) AssignDeviceTenant(ctx context.Context, id, tenantID string) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE devices SET tenant_id = ? WHERE id = ?`, tenantID, id)
	if err != nil {
		return fmt.Errorf("assign device tenant: %w", err)
	}
	return nil
}

// SetDevicePairingCode assigns a fresh pairing code to a pending device.
func (db *DB) SetDevicePairingCode(ctx context.Context, id, code string) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE devices SET pairing_code = ? WHERE id = ?`, code, id)
	if err != nil {
		return fmt.Errorf("set pairing code: %w", err)
	}
	return nil
}

// AssignDeviceToLayout sets the layout a device should resolve content
// from, bumping its pending sync version to one past its previous value,
// or to version if that is larger, so the value never decreases.
func (db *DB) AssignDeviceToLayout(ctx context.Context, id, layoutID string, version int64) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE devices SET layout_id = ?, pending_sync_version = GREATEST(pending_sync_version + 1, ?) WHERE id = ?`, layoutID, version, id)
	if err != nil {
		return fmt.Errorf("assign device layout: %w", err)
	}
	return nil
}

const deviceSelectColumns = `SELECT id, external_id, hardware_id, tenant_id, hub_id, mode, status, pairing_code, ip, last_seen, layout_id, pending_sync_version FROM devices`

func scanDevice(row rowScanner) (*models.Device, error) {
	d := &models.Device{}
	var tenantID, hubID, pairingCode, layoutID sql.NullString
	var lastSeen sql.NullTime
	err := row.Scan(&d.ID, &d.ExternalID, &d.HardwareID, &tenantID, &hubID, &d.Mode, &d.Status, &pairingCode, &d.IP, &lastSeen, &layoutID, &d.PendingSyncVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan device: %w", err)
	}
	if tenantID.Valid {
		d.TenantID = &tenantID.String
	}
	if hubID.Valid {
		d.HubID = &hubID.String
	}
	if pairingCode.Valid {
		d.PairingCode = &pairingCode.String
	}
	if layoutID.Valid {
		d.LayoutID = &layoutID.String
	}
	if lastSeen.Valid {
		d.LastSeen = &lastSeen.Time
	}
	return d, nil
}
