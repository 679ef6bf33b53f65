package fleet

import (
	"context"

	"github.com/sentryfleet/sentryfleet/internal/models"
)

// AssignPlaylist binds a device to a playlist under a trigger. New
// non-default assignments are created disabled until manually enabled
// (enforced by database.CreateDevicePlaylistAssignment).
func (r *Registry) AssignPlaylist(ctx context.Context, a *models.DevicePlaylistAssignment) error {
	return r.db.CreateDevicePlaylistAssignment(ctx, a)
}

// ListAssignments returns every playlist assignment for a device, ordered
// by priority.
func (r *Registry) ListAssignments(ctx context.Context, deviceID string) ([]*models.DevicePlaylistAssignment, error) {
	return r.db.ListAssignmentsByDevice(ctx, deviceID)
}

// AssignLayout sets the layout a device resolves content from, bumping
// its pending sync version so the Sync Dispatcher picks it up.
func (r *Registry) AssignLayout(ctx context.Context, deviceID, layoutID string, version int64) error {
	return r.db.AssignDeviceToLayout(ctx, deviceID, layoutID, version)
}

// ToggleAssignment flips an assignment's enabled flag, the manual-enable
// step a trigger-conditional assignment requires before it takes effect.
func (r *Registry) ToggleAssignment(ctx context.Context, assignmentID string, enabled bool) error {
	return r.db.SetAssignmentEnabled(ctx, assignmentID, enabled)
}
