// Package heartbeat implements the Hub Heartbeat Aggregator (C5): batch
// ingestion of hub heartbeats, each one touching the hub and every device
// the hub reports as alive in a single transaction.
package heartbeat

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/logging"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

// Report is one hub's heartbeat payload: the hub's own liveness plus the
// set of devices it is currently relaying for.
type Report struct {
	HubID       string
	HubIP       string
	DeviceIDs   []string
	DeviceIP    string
}

// Aggregator processes incoming heartbeat reports.
type Aggregator struct {
	db *database.DB
}

// New constructs an Aggregator backed by db.
func New(db *database.DB) *Aggregator {
	return &Aggregator{db: db}
}

// Process applies a single hub's heartbeat report atomically: the hub and
// every device it reports are touched together, so a partial batch never
// leaves some devices looking alive past a dead hub's last known state.
func (a *Aggregator) Process(ctx context.Context, r Report) error {
	return a.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := touchHub(ctx, tx, r.HubID, r.HubIP); err != nil {
			return err
		}
		for _, deviceID := range r.DeviceIDs {
			if err := touchDevice(ctx, tx, deviceID, r.DeviceIP); err != nil {
				return err
			}
		}
		return nil
	})
}

// ProcessDirectHeartbeat handles a heartbeat from a device that talks to
// the control plane directly, with no aggregating hub.
func (a *Aggregator) ProcessDirectHeartbeat(ctx context.Context, deviceID, ip string) error {
	if err := a.db.TouchDeviceHeartbeat(ctx, deviceID, ip); err != nil {
		return fmt.Errorf("process direct heartbeat: %w", err)
	}
	return nil
}

func touchHub(ctx context.Context, tx *sql.Tx, hubID, ip string) error {
	_, err := tx.ExecContext(ctx, `UPDATE hubs SET last_seen = CURRENT_TIMESTAMP, ip = ? WHERE id = ?`, ip, hubID)
	if err != nil {
		return fmt.Errorf("touch hub %s: %w", hubID, err)
	}
	return nil
}

func touchDevice(ctx context.Context, tx *sql.Tx, deviceID, ip string) error {
	var status models.DeviceStatus
	err := tx.QueryRowContext(ctx, `SELECT status FROM devices WHERE id = ?`, deviceID).Scan(&status)
	if err == sql.ErrNoRows {
		logging.Warn().Str("device_id", deviceID).Msg("heartbeat referenced unknown device")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load device %s status: %w", deviceID, err)
	}

	next := status
	if status != models.DeviceStatusError {
		next = models.DeviceStatusActive
	}
	_, err = tx.ExecContext(ctx, `UPDATE devices SET last_seen = CURRENT_TIMESTAMP, ip = ?, status = ? WHERE id = ?`, ip, next, deviceID)
	if err != nil {
		return fmt.Errorf("touch device %s: %w", deviceID, err)
	}
	return nil
}
