// Package fleet implements the Fleet Registry (C4): device and hub
// registration, two-phase pairing, playlist assignment management, and
// remote command proxying to device agents.
package fleet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sentryfleet/sentryfleet/internal/apierr"
	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/logging"
	"github.com/sentryfleet/sentryfleet/internal/models"
	"github.com/sentryfleet/sentryfleet/internal/pairing"
)

// Registry is the Fleet Registry component.
type Registry struct {
	db         *database.DB
	pairing    *pairing.Store
	pairingTTL time.Duration
}

// New constructs a fleet Registry.
func New(db *database.DB, pairingStore *pairing.Store, pairingTTL time.Duration) *Registry {
	return &Registry{db: db, pairing: pairingStore, pairingTTL: pairingTTL}
}

// RegisterDirectDevice registers a device that talks to the control plane
// directly (no hub). Registration is idempotent on hardware_id.
func (r *Registry) RegisterDirectDevice(ctx context.Context, hardwareID, ip string) (*models.Device, error) {
	d := &models.Device{
		HardwareID: hardwareID,
		Mode:       models.DeviceModeDirect,
		IP:         ip,
	}
	out, err := r.db.RegisterDevice(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("register direct device: %w", err)
	}
	return out, nil
}

// RegisterHubDevice registers a device aggregated behind hubID.
func (r *Registry) RegisterHubDevice(ctx context.Context, hardwareID, hubID, ip string) (*models.Device, error) {
	hub, err := r.db.GetHub(ctx, hubID)
	if err != nil {
		return nil, err
	}
	d := &models.Device{
		HardwareID: hardwareID,
		Mode:       models.DeviceModeHub,
		HubID:      &hub.ID,
		TenantID:   &hub.TenantID,
		IP:         ip,
	}
	out, err := r.db.RegisterDevice(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("register hub device: %w", err)
	}
	return out, nil
}

// RegisterHub registers a new aggregation hub, minting a fresh API token
// that is returned to the caller exactly once.
func (r *Registry) RegisterHub(ctx context.Context, tenantID, code, name string) (*models.Hub, apiToken string, err error) {
	if !models.ValidHubCode(code) {
		return nil, "", apierr.New(apierr.KindInvalidInput, fmt.Sprintf("hub code %q is not 2-4 uppercase letters", code))
	}

	token, err := randomToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("mint hub token: %w", err)
	}

	h := &models.Hub{
		ID:       uuid.New().String(),
		Code:     code,
		Name:     name,
		TenantID: tenantID,
		Status:   models.HubStatusPending,
		APIToken: token,
	}
	if err := r.db.CreateHub(ctx, h); err != nil {
		return nil, "", err
	}
	return h, token, nil
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// UpdateDeviceStatus applies a heartbeat-driven lifecycle transition.
func (r *Registry) UpdateDeviceStatus(ctx context.Context, id string, to models.DeviceStatus) error {
	if err := r.db.UpdateDeviceStatus(ctx, id, to); err != nil {
		return err
	}
	logging.Info().Str("device_id", id).Str("status", string(to)).Msg("device status transitioned")
	return nil
}
