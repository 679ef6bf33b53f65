package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sentryfleet/sentryfleet/internal/layoutcomposer"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

func TestHTTPPusher_Push(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	db := newTestDB(t)
	ctx := context.Background()
	d, err := db.RegisterDevice(ctx, &models.Device{HardwareID: "hw-1", Mode: models.DeviceModeDirect, IP: srv.Listener.Addr().String()})
	if err != nil {
		t.Fatalf("register device: %v", err)
	}

	p := NewHTTPPusher(db, 2*time.Second)
	composition := &layoutcomposer.Composition{Layout: &models.Layout{ID: "layout-1"}}

	if err := p.Push(ctx, d.ID, composition); err != nil {
		t.Fatalf("push: %v", err)
	}
	if gotPath != "/sentryfleet/layout" {
		t.Errorf("expected push to hit /sentryfleet/layout, got %q", gotPath)
	}
}

func TestHTTPPusher_Push_NoAddressKnown(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d, err := db.RegisterDevice(ctx, &models.Device{HardwareID: "hw-2", Mode: models.DeviceModeDirect})
	if err != nil {
		t.Fatalf("register device: %v", err)
	}

	p := NewHTTPPusher(db, 2*time.Second)
	pushErr := p.Push(ctx, d.ID, &layoutcomposer.Composition{Layout: &models.Layout{ID: "layout-1"}})
	if pushErr == nil {
		t.Fatal("expected an error when the device has no known address")
	}
}

func TestHTTPPusher_Push_DeviceRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	db := newTestDB(t)
	ctx := context.Background()
	d, err := db.RegisterDevice(ctx, &models.Device{HardwareID: "hw-3", Mode: models.DeviceModeDirect, IP: srv.Listener.Addr().String()})
	if err != nil {
		t.Fatalf("register device: %v", err)
	}

	p := NewHTTPPusher(db, 2*time.Second)
	pushErr := p.Push(ctx, d.ID, &layoutcomposer.Composition{Layout: &models.Layout{ID: "layout-1"}})
	if pushErr == nil {
		t.Fatal("expected an error when the device rejects the push")
	}
}
