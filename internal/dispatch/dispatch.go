// Package dispatch implements the Sync Dispatcher (C7): propagating a
// playlist or layout's version bump out to every device it affects, and
// pushing the resulting payload down to each device's agent.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/layoutcomposer"
	"github.com/sentryfleet/sentryfleet/internal/logging"
	"github.com/sentryfleet/sentryfleet/internal/metrics"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

// Pusher delivers a resolved composition to a device's agent. The
// concrete transport (HTTP push, websocket frame, MQTT publish) is out of
// scope (spec section 1); this is the seam a real transport plugs into.
type Pusher interface {
	Push(ctx context.Context, deviceID string, composition *layoutcomposer.Composition) error
}

// Dispatcher propagates pending syncs and pushes them to devices.
type Dispatcher struct {
	db       *database.DB
	composer *layoutcomposer.Composer
	pusher   Pusher
}

// New constructs a Dispatcher.
func New(db *database.DB, composer *layoutcomposer.Composer, pusher Pusher) *Dispatcher {
	return &Dispatcher{db: db, composer: composer, pusher: pusher}
}

// MarkPlaylistPending marks every (device, playlist) pairing for
// playlistID as pending resync. Called after a playlist's version is
// bumped by an item edit (spec section 4.7).
func (d *Dispatcher) MarkPlaylistPending(ctx context.Context, playlistID string, deviceIDs []string) error {
	for _, deviceID := range deviceIDs {
		s := &models.DevicePlaylistSync{
			DeviceID:   deviceID,
			PlaylistID: playlistID,
			State:      models.SyncStatePending,
		}
		if err := d.db.UpsertDevicePlaylistSync(ctx, s); err != nil {
			return fmt.Errorf("mark device %s playlist %s pending: %w", deviceID, playlistID, err)
		}
	}
	return nil
}

// PushPending walks every pending sync and attempts to push the device's
// resolved composition, recording the outcome.
func (d *Dispatcher) PushPending(ctx context.Context) (pushed, failed int, err error) {
	pending, err := d.db.ListPendingSync(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list pending sync: %w", err)
	}
	metrics.SyncPending.Set(float64(len(pending)))

	for _, sync := range pending {
		if pushErr := d.pushOne(ctx, sync); pushErr != nil {
			logging.Warn().Err(pushErr).Str("device_id", sync.DeviceID).Str("playlist_id", sync.PlaylistID).Msg("sync push failed")
			failed++
			continue
		}
		pushed++
	}
	return pushed, failed, nil
}

func (d *Dispatcher) pushOne(ctx context.Context, sync *models.DevicePlaylistSync) error {
	start := time.Now()
	defer func() { metrics.SyncPushDuration.Observe(time.Since(start).Seconds()) }()

	now := time.Now().UTC()
	sync.State = models.SyncStateSyncing
	sync.LastAttempt = &now
	if err := d.db.UpsertDevicePlaylistSync(ctx, sync); err != nil {
		return err
	}

	composition, err := d.composer.Compose(ctx, sync.DeviceID, models.TriggerDefault)
	if err != nil {
		return d.recordFailure(ctx, sync, err)
	}

	if err := d.pusher.Push(ctx, sync.DeviceID, composition); err != nil {
		return d.recordFailure(ctx, sync, err)
	}

	playlist, err := d.db.GetPlaylist(ctx, sync.PlaylistID)
	if err != nil {
		return d.recordFailure(ctx, sync, err)
	}

	success := time.Now().UTC()
	sync.State = models.SyncStateSynced
	sync.SyncedVersion = &playlist.Version
	sync.LastSuccess = &success
	sync.Error = nil
	return d.db.UpsertDevicePlaylistSync(ctx, sync)
}

func (d *Dispatcher) recordFailure(ctx context.Context, sync *models.DevicePlaylistSync, cause error) error {
	msg := cause.Error()
	sync.State = models.SyncStateFailed
	sync.Error = &msg
	if err := d.db.UpsertDevicePlaylistSync(ctx, sync); err != nil {
		return err
	}
	return cause
}

// PushPlaylist marks every device assigned to playlistID pending and
// pushes each one immediately, for POST /playlists/{id}/push. It returns
// the number of devices targeted, how many synced successfully, and the
// playlist version they were pushed to.
func (d *Dispatcher) PushPlaylist(ctx context.Context, playlistID string) (deviceCount, synced int, version int64, err error) {
	playlist, err := d.db.GetPlaylist(ctx, playlistID)
	if err != nil {
		return 0, 0, 0, err
	}

	deviceIDs, err := d.db.ListDeviceIDsByPlaylist(ctx, playlistID)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("list devices for playlist %s: %w", playlistID, err)
	}
	if err := d.MarkPlaylistPending(ctx, playlistID, deviceIDs); err != nil {
		return 0, 0, 0, err
	}

	for _, deviceID := range deviceIDs {
		sync := &models.DevicePlaylistSync{DeviceID: deviceID, PlaylistID: playlistID, State: models.SyncStatePending}
		if pushErr := d.pushOne(ctx, sync); pushErr != nil {
			logging.Warn().Err(pushErr).Str("device_id", deviceID).Str("playlist_id", playlistID).Msg("playlist push failed")
			continue
		}
		synced++
	}

	return len(deviceIDs), synced, playlist.Version, nil
}

// SyncSummary is the aggregate view GET /playlists/{id}/sync-status
// reports, optionally including the per-device breakdown.
type SyncSummary struct {
	AggregateStatus string
	Counts          map[models.SyncState]int
	Devices         []*models.DevicePlaylistSync
}

// SyncStatus reports a playlist's aggregate sync state and, when
// includeDevices is set, the full per-device breakdown.
func (d *Dispatcher) SyncStatus(ctx context.Context, playlistID string, includeDevices bool) (*SyncSummary, error) {
	rows, err := d.db.ListSyncByPlaylist(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("list sync for playlist %s: %w", playlistID, err)
	}

	counts := make(map[models.SyncState]int)
	for _, s := range rows {
		counts[s.State]++
	}

	summary := &SyncSummary{AggregateStatus: string(aggregateState(counts, len(rows))), Counts: counts}
	if includeDevices {
		summary.Devices = rows
	}
	return summary, nil
}

// aggregateState reduces per-device sync states to one headline value:
// any failure dominates, then any in-flight work, else fully synced.
func aggregateState(counts map[models.SyncState]int, total int) models.SyncState {
	if total == 0 {
		return models.SyncStateSynced
	}
	if counts[models.SyncStateFailed] > 0 {
		return models.SyncStateFailed
	}
	if counts[models.SyncStatePending] > 0 || counts[models.SyncStateSyncing] > 0 {
		return models.SyncStateSyncing
	}
	return models.SyncStateSynced
}

// Status reports the sync state of a single (device, playlist) pair.
func (d *Dispatcher) Status(ctx context.Context, deviceID, playlistID string) (*models.DevicePlaylistSync, error) {
	pending, err := d.db.ListPendingSync(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range pending {
		if s.DeviceID == deviceID && s.PlaylistID == playlistID {
			return s, nil
		}
	}
	return &models.DevicePlaylistSync{DeviceID: deviceID, PlaylistID: playlistID, State: models.SyncStateSynced}, nil
}
