package api

import (
	"testing"
	"time"

	"github.com/sentryfleet/sentryfleet/internal/alerts"
	"github.com/sentryfleet/sentryfleet/internal/compiler"
	"github.com/sentryfleet/sentryfleet/internal/config"
	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/dispatch"
	"github.com/sentryfleet/sentryfleet/internal/fleet"
	"github.com/sentryfleet/sentryfleet/internal/heartbeat"
	"github.com/sentryfleet/sentryfleet/internal/layoutcomposer"
	"github.com/sentryfleet/sentryfleet/internal/notify"
	"github.com/sentryfleet/sentryfleet/internal/pairing"
	"github.com/sentryfleet/sentryfleet/internal/registry"
)

// newTestHandler wires a full Handler against an in-memory database, the
// same component set cmd/server/main.go wires in production, minus the
// task queue (nil, so compiles run inline) — mirroring how the teacher's
// own handler tests construct a real Handler rather than mocking it.
func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "1GB"})
	if err != nil {
		t.Fatalf("create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := pairing.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open pairing store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{
		Fleet: config.FleetConfig{
			PairingCodeTTL:       5 * time.Minute,
			HeartbeatOfflineGap:  2 * time.Minute,
			RemoteCommandTimeout: 5 * time.Second,
		},
		Compiler: config.CompilerConfig{
			FeatureDim:           8,
			ArtifactVersionsKeep: 3,
			ArtifactRoot:         t.TempDir(),
			CaptureRoot:          t.TempDir(),
		},
		Notification: config.NotificationConfig{MaxRetries: 3},
	}

	fleetRegistry := fleet.New(db, store, cfg.Fleet.PairingCodeTTL)
	composer := layoutcomposer.New(db)
	heartbeats := heartbeat.New(db)
	comp := compiler.New(db, cfg.Compiler.ArtifactRoot, cfg.Compiler.FeatureDim, cfg.Compiler.ArtifactVersionsKeep)
	artifactRegistry := registry.New(db)
	pusher := dispatch.NewHTTPPusher(db, cfg.Fleet.RemoteCommandTimeout)
	dispatcher := dispatch.New(db, composer, pusher)
	notifyRegistry := notify.NewRegistry(
		notify.NewEmailChannel(cfg.Notification),
		notify.NewSMSChannel(cfg.Notification),
		notify.NewWebhookChannel(),
	)
	notifier := notify.New(db, notifyRegistry, cfg.Notification)
	alertProcessor := alerts.New(db, nil, notifier, cfg.Compiler.CaptureRoot)

	return New(db, fleetRegistry, composer, heartbeats, comp, artifactRegistry, dispatcher, alertProcessor, notifier, nil, cfg)
}
