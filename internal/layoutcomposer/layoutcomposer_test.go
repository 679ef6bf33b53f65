package layoutcomposer

import (
	"context"
	"testing"

	"github.com/sentryfleet/sentryfleet/internal/config"
	"github.com/sentryfleet/sentryfleet/internal/database"
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

func newPlaylist(t *testing.T, db *database.DB, tenantID, name string) *models.Playlist {
	t.Helper()
	p := &models.Playlist{
		TenantID:    tenantID,
		Name:        name,
		TriggerType: models.PlaylistTriggerManual,
		LoopMode:    models.LoopContinuous,
		IsActive:    true,
	}
	if err := db.CreatePlaylist(context.Background(), p); err != nil {
		t.Fatalf("create playlist %s: %v", name, err)
	}
	return p
}

func TestCompose_FixedLayerRendersPinnedPlaylist(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tenant := &models.Tenant{Slug: "acme", Name: "Acme", IsActive: true}
	if err := db.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	layout := &models.Layout{TenantID: tenant.ID, Name: "Main", Width: 1920, Height: 1080, IsActive: true}
	if err := db.CreateLayout(ctx, layout); err != nil {
		t.Fatalf("create layout: %v", err)
	}
	pl := newPlaylist(t, db, tenant.ID, "fixed-content")
	layer := &models.Layer{LayoutID: layout.ID, Name: "Bottom", ZIndex: 0, Width: 1920, Height: 1080,
		ContentMode: models.LayerContentFixed, PlaylistID: &pl.ID}
	if err := db.CreateLayer(ctx, layer); err != nil {
		t.Fatalf("create layer: %v", err)
	}

	device, err := db.RegisterDevice(ctx, &models.Device{HardwareID: "hw-lc-1", Mode: models.DeviceModeDirect, TenantID: &tenant.ID})
	if err != nil {
		t.Fatalf("register device: %v", err)
	}
	if err := db.AssignDeviceToLayout(ctx, device.ID, layout.ID, layout.Version); err != nil {
		t.Fatalf("assign device to layout: %v", err)
	}

	c := New(db)
	comp, err := c.Compose(ctx, device.ID, models.TriggerDefault)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(comp.Layers) != 1 {
		t.Fatalf("expected 1 resolved layer, got %d", len(comp.Layers))
	}
	if comp.Layers[0].PlaylistID != pl.ID || comp.Layers[0].Source != "fixed" {
		t.Errorf("unexpected resolved layer: %+v", comp.Layers[0])
	}
}

func TestCompose_TriggerLayerFallsBackToDefault(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tenant := &models.Tenant{Slug: "acme2", Name: "Acme2", IsActive: true}
	if err := db.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	layout := &models.Layout{TenantID: tenant.ID, Name: "Main", Width: 1920, Height: 1080, IsActive: true}
	if err := db.CreateLayout(ctx, layout); err != nil {
		t.Fatalf("create layout: %v", err)
	}
	defaultPl := newPlaylist(t, db, tenant.ID, "default-content")
	childPl := newPlaylist(t, db, tenant.ID, "child-content")
	layer := &models.Layer{LayoutID: layout.ID, Name: "Main", ZIndex: 0, Width: 1920, Height: 1080,
		ContentMode: models.LayerContentTrigger}
	if err := db.CreateLayer(ctx, layer); err != nil {
		t.Fatalf("create layer: %v", err)
	}
	if err := db.CreateLayerPlaylistTrigger(ctx, &models.LayerPlaylistTrigger{
		LayerID: layer.ID, TriggerType: models.TriggerDefault, PlaylistID: defaultPl.ID, Priority: 0,
	}); err != nil {
		t.Fatalf("create default trigger: %v", err)
	}
	if err := db.CreateLayerPlaylistTrigger(ctx, &models.LayerPlaylistTrigger{
		LayerID: layer.ID, TriggerType: models.TriggerAgeChild, PlaylistID: childPl.ID, Priority: 10,
	}); err != nil {
		t.Fatalf("create child trigger: %v", err)
	}

	device, err := db.RegisterDevice(ctx, &models.Device{HardwareID: "hw-lc-2", Mode: models.DeviceModeDirect, TenantID: &tenant.ID})
	if err != nil {
		t.Fatalf("register device: %v", err)
	}
	if err := db.AssignDeviceToLayout(ctx, device.ID, layout.ID, layout.Version); err != nil {
		t.Fatalf("assign device to layout: %v", err)
	}

	c := New(db)

	// No active child signal: falls back to the default binding.
	comp, err := c.Compose(ctx, device.ID, models.TriggerGenderMale)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if comp.Layers[0].PlaylistID != defaultPl.ID || comp.Layers[0].Source != "default" {
		t.Errorf("expected fallback to default binding, got %+v", comp.Layers[0])
	}

	// Active child signal: the specific binding wins.
	comp, err = c.Compose(ctx, device.ID, models.TriggerAgeChild)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if comp.Layers[0].PlaylistID != childPl.ID || comp.Layers[0].Source != "trigger" {
		t.Errorf("expected trigger-matched binding, got %+v", comp.Layers[0])
	}
}

func TestCompose_DeviceOverrideWinsOutright(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	tenant := &models.Tenant{Slug: "acme3", Name: "Acme3", IsActive: true}
	if err := db.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	layout := &models.Layout{TenantID: tenant.ID, Name: "Main", Width: 1920, Height: 1080, IsActive: true}
	if err := db.CreateLayout(ctx, layout); err != nil {
		t.Fatalf("create layout: %v", err)
	}
	pinnedPl := newPlaylist(t, db, tenant.ID, "pinned-content")
	overridePl := newPlaylist(t, db, tenant.ID, "override-content")
	layer := &models.Layer{LayoutID: layout.ID, Name: "Bottom", ZIndex: 0, Width: 1920, Height: 1080,
		ContentMode: models.LayerContentFixed, PlaylistID: &pinnedPl.ID}
	if err := db.CreateLayer(ctx, layer); err != nil {
		t.Fatalf("create layer: %v", err)
	}

	device, err := db.RegisterDevice(ctx, &models.Device{HardwareID: "hw-lc-3", Mode: models.DeviceModeDirect, TenantID: &tenant.ID})
	if err != nil {
		t.Fatalf("register device: %v", err)
	}
	if err := db.AssignDeviceToLayout(ctx, device.ID, layout.ID, layout.Version); err != nil {
		t.Fatalf("assign device to layout: %v", err)
	}
	if err := db.SetDeviceLayerOverride(ctx, &models.DeviceLayerOverride{
		DeviceID: device.ID, LayerID: layer.ID, PlaylistID: overridePl.ID,
	}); err != nil {
		t.Fatalf("set override: %v", err)
	}

	c := New(db)
	comp, err := c.Compose(ctx, device.ID, models.TriggerDefault)
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if comp.Layers[0].PlaylistID != overridePl.ID || comp.Layers[0].Source != "override" {
		t.Errorf("expected override to win outright, got %+v", comp.Layers[0])
	}
}

func TestCompose_DeviceWithNoLayoutIsNotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	device, err := db.RegisterDevice(ctx, &models.Device{HardwareID: "hw-lc-4", Mode: models.DeviceModeDirect})
	if err != nil {
		t.Fatalf("register device: %v", err)
	}

	c := New(db)
	if _, err := c.Compose(ctx, device.ID, models.TriggerDefault); err == nil {
		t.Fatal("expected an error for a device with no layout assigned")
	}
}
