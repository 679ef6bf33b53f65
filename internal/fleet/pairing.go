package fleet

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/sentryfleet/sentryfleet/internal/apierr"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

// PairingStatus is returned by StatusPairing to report where a pending
// registration stands.
type PairingStatus string

const (
	PairingStatusAwaitingVerification PairingStatus = "awaiting_verification"
	PairingStatusVerified             PairingStatus = "verified"
	PairingStatusExpired              PairingStatus = "expired"
)

// RequestPairing mints a short numeric code for a newly registered,
// pending device and stores it in the shared TTL cache, phase one of the
// two-phase pairing flow (spec section 4.4).
func (r *Registry) RequestPairing(ctx context.Context, deviceID string) (code string, err error) {
	d, err := r.db.GetDevice(ctx, deviceID)
	if err != nil {
		return "", err
	}
	if d.Status != models.DeviceStatusPending {
		return "", apierr.New(apierr.KindInvalidTransition, fmt.Sprintf("device %s is not pending pairing", deviceID))
	}

	code, err = randomPairingCode()
	if err != nil {
		return "", fmt.Errorf("generate pairing code: %w", err)
	}

	if err := r.pairing.Put(code, deviceID, r.pairingTTL); err != nil {
		return "", fmt.Errorf("store pairing code: %w", err)
	}
	if err := r.db.SetDevicePairingCode(ctx, deviceID, code); err != nil {
		return "", err
	}
	return code, nil
}

// VerifyPairing completes phase two: a human or hub operator supplies the
// code displayed on the device, and on success the device transitions to
// active and the code is invalidated so it cannot be reused. tenantID
// binds a direct-mode device to the store completing its verification; it
// is ignored for devices that already carry a tenant (hub-mode devices
// inherit theirs from the hub at registration).
func (r *Registry) VerifyPairing(ctx context.Context, code, tenantID string) (*models.Device, error) {
	deviceID, ok, err := r.pairing.Get(code)
	if err != nil {
		return nil, fmt.Errorf("look up pairing code: %w", err)
	}
	if !ok {
		return nil, apierr.New(apierr.KindNotFound, "pairing code not found or expired")
	}

	if err := r.db.UpdateDeviceStatus(ctx, deviceID, models.DeviceStatusActive); err != nil {
		return nil, err
	}
	if err := r.pairing.Delete(code); err != nil {
		return nil, fmt.Errorf("invalidate pairing code: %w", err)
	}

	d, err := r.db.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if d.TenantID == nil && tenantID != "" {
		if err := r.db.AssignDeviceTenant(ctx, deviceID, tenantID); err != nil {
			return nil, err
		}
		d.TenantID = &tenantID
	}
	return d, nil
}

// StatusPairingByHardwareID reports pairing status for a device that has
// not yet surfaced its pairing code to the caller, looked up by the
// hardware id it registered with (spec section 6's
// GET /devices/pairing/status/{hardware_id}).
func (r *Registry) StatusPairingByHardwareID(ctx context.Context, hardwareID string) (PairingStatus, *models.Device, error) {
	d, err := r.db.GetDeviceByHardwareID(ctx, hardwareID)
	if err != nil {
		return "", nil, err
	}
	if d.Status == models.DeviceStatusActive {
		return PairingStatusVerified, d, nil
	}
	if d.PairingCode == nil {
		return PairingStatusExpired, d, nil
	}
	status, err := r.StatusPairing(ctx, *d.PairingCode)
	return status, d, err
}

// StatusPairing reports whether a pairing code is still outstanding,
// letting a registering device poll instead of requiring a push channel.
func (r *Registry) StatusPairing(ctx context.Context, code string) (PairingStatus, error) {
	deviceID, ok, err := r.pairing.Get(code)
	if err != nil {
		return "", fmt.Errorf("look up pairing code: %w", err)
	}
	if !ok {
		return PairingStatusExpired, nil
	}

	d, err := r.db.GetDevice(ctx, deviceID)
	if err != nil {
		return "", err
	}
	if d.Status == models.DeviceStatusActive {
		return PairingStatusVerified, nil
	}
	return PairingStatusAwaitingVerification, nil
}

func randomPairingCode() (string, error) {
	const digits = "0123456789"
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = digits[int(b)%len(digits)]
	}
	return string(buf), nil
}
