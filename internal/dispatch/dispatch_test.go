package dispatch

import (
	"context"
	"testing"

	"github.com/sentryfleet/sentryfleet/internal/config"
	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/layoutcomposer"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB"})
	if err != nil {
		t.Fatalf("create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakePusher records every push it's asked to make, optionally failing.
type fakePusher struct {
	fail   bool
	pushes []string
}

func (p *fakePusher) Push(ctx context.Context, deviceID string, composition *layoutcomposer.Composition) error {
	if p.fail {
		return context.DeadlineExceeded
	}
	p.pushes = append(p.pushes, deviceID)
	return nil
}

// seedAssignedDevice builds a tenant, a layout with one fixed layer bound
// to a playlist, a device assigned to that layout, and a playlist
// assignment binding the device to the playlist under the default
// trigger, so the composer has something real to resolve.
func seedAssignedDevice(t *testing.T, db *database.DB) (deviceID, playlistID string) {
	t.Helper()
	ctx := context.Background()

	tenant := &models.Tenant{Slug: "acme", Name: "Acme", IsActive: true}
	if err := db.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	playlist := &models.Playlist{
		TenantID: tenant.ID, Name: "Lobby Loop", TriggerType: models.PlaylistTriggerManual,
		LoopMode: models.LoopContinuous, IsActive: true,
	}
	if err := db.CreatePlaylist(ctx, playlist); err != nil {
		t.Fatalf("create playlist: %v", err)
	}
	layout := &models.Layout{TenantID: tenant.ID, Name: "Main", Width: 1920, Height: 1080, IsActive: true}
	if err := db.CreateLayout(ctx, layout); err != nil {
		t.Fatalf("create layout: %v", err)
	}
	layer := &models.Layer{LayoutID: layout.ID, Name: "Bottom", ZIndex: 0, Width: 1920, Height: 1080,
		ContentMode: models.LayerContentFixed, PlaylistID: &playlist.ID}
	if err := db.CreateLayer(ctx, layer); err != nil {
		t.Fatalf("create layer: %v", err)
	}
	device, err := db.RegisterDevice(ctx, &models.Device{HardwareID: "hw-dp-1", Mode: models.DeviceModeDirect, TenantID: &tenant.ID})
	if err != nil {
		t.Fatalf("register device: %v", err)
	}
	if err := db.AssignDeviceToLayout(ctx, device.ID, layout.ID, layout.Version); err != nil {
		t.Fatalf("assign device to layout: %v", err)
	}
	if err := db.CreateDevicePlaylistAssignment(ctx, &models.DevicePlaylistAssignment{
		DeviceID: device.ID, PlaylistID: playlist.ID, TriggerType: models.TriggerDefault,
	}); err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	return device.ID, playlist.ID
}

func TestPushPlaylist_PushesEveryAssignedDevice(t *testing.T) {
	db := newTestDB(t)
	deviceID, playlistID := seedAssignedDevice(t, db)

	pusher := &fakePusher{}
	d := New(db, layoutcomposer.New(db), pusher)

	count, synced, _, err := d.PushPlaylist(context.Background(), playlistID)
	if err != nil {
		t.Fatalf("push playlist: %v", err)
	}
	if count != 1 || synced != 1 {
		t.Fatalf("expected 1 device targeted and synced, got count=%d synced=%d", count, synced)
	}
	if len(pusher.pushes) != 1 || pusher.pushes[0] != deviceID {
		t.Errorf("expected a push to device %s, got %v", deviceID, pusher.pushes)
	}
}

func TestPushPending_RecordsFailureWhenPusherErrors(t *testing.T) {
	db := newTestDB(t)
	_, playlistID := seedAssignedDevice(t, db)

	pusher := &fakePusher{fail: true}
	d := New(db, layoutcomposer.New(db), pusher)

	_, _, err := d.PushPlaylist(context.Background(), playlistID)
	if err != nil {
		t.Fatalf("push playlist: %v", err)
	}

	pushed, failed, err := d.PushPending(context.Background())
	if err != nil {
		t.Fatalf("push pending: %v", err)
	}
	if failed == 0 {
		t.Errorf("expected at least one failed push, got pushed=%d failed=%d", pushed, failed)
	}

	summary, err := d.SyncStatus(context.Background(), playlistID, true)
	if err != nil {
		t.Fatalf("sync status: %v", err)
	}
	if summary.AggregateStatus != string(models.SyncStateFailed) {
		t.Errorf("expected aggregate status failed, got %s", summary.AggregateStatus)
	}
	if len(summary.Devices) != 1 {
		t.Fatalf("expected 1 device in breakdown, got %d", len(summary.Devices))
	}
}

func TestSyncStatus_SyncedAfterSuccessfulPush(t *testing.T) {
	db := newTestDB(t)
	_, playlistID := seedAssignedDevice(t, db)

	pusher := &fakePusher{}
	d := New(db, layoutcomposer.New(db), pusher)

	if _, _, _, err := d.PushPlaylist(context.Background(), playlistID); err != nil {
		t.Fatalf("push playlist: %v", err)
	}

	summary, err := d.SyncStatus(context.Background(), playlistID, false)
	if err != nil {
		t.Fatalf("sync status: %v", err)
	}
	if summary.AggregateStatus != string(models.SyncStateSynced) {
		t.Errorf("expected aggregate status synced, got %s", summary.AggregateStatus)
	}
}

func TestMarkPlaylistPending_SetsState(t *testing.T) {
	db := newTestDB(t)
	deviceID, playlistID := seedAssignedDevice(t, db)

	d := New(db, layoutcomposer.New(db), &fakePusher{})
	if err := d.MarkPlaylistPending(context.Background(), playlistID, []string{deviceID}); err != nil {
		t.Fatalf("mark pending: %v", err)
	}

	status, err := d.Status(context.Background(), deviceID, playlistID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != models.SyncStatePending {
		t.Errorf("expected pending state, got %s", status.State)
	}
}
