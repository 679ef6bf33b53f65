package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sentryfleet/sentryfleet/internal/models"
)

func TestRegisterDevice_DirectMode(t *testing.T) {
	h := newTestHandler(t)
	router := NewRouter(h).Setup()

	body, _ := json.Marshal(registerDeviceRequest{HardwareID: "hw-100", Mode: "direct", IP: "10.0.0.5"})
	req := httptest.NewRequest(http.MethodPost, "/devices/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp deviceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.HardwareID != "hw-100" || resp.Mode != "direct" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestRegisterDevice_HubModeRequiresHubID(t *testing.T) {
	h := newTestHandler(t)
	router := NewRouter(h).Setup()

	body, _ := json.Marshal(registerDeviceRequest{HardwareID: "hw-101", Mode: "hub"})
	req := httptest.NewRequest(http.MethodPost, "/devices/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when hub_id is missing, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterDevice_InvalidMode(t *testing.T) {
	h := newTestHandler(t)
	router := NewRouter(h).Setup()

	body, _ := json.Marshal(map[string]string{"hardware_id": "hw-102", "mode": "bogus"})
	req := httptest.NewRequest(http.MethodPost, "/devices/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid mode, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDevicePairingFlow(t *testing.T) {
	h := newTestHandler(t)
	router := NewRouter(h).Setup()

	regBody, _ := json.Marshal(registerDeviceRequest{HardwareID: "hw-200", Mode: "direct", IP: "10.0.0.9"})
	regReq := httptest.NewRequest(http.MethodPost, "/devices/register", bytes.NewReader(regBody))
	regRec := httptest.NewRecorder()
	router.ServeHTTP(regRec, regReq)
	if regRec.Code != http.StatusCreated {
		t.Fatalf("register device: expected 201, got %d: %s", regRec.Code, regRec.Body.String())
	}

	reqBody, _ := json.Marshal(requestPairingRequest{HardwareID: "hw-200"})
	reqReq := httptest.NewRequest(http.MethodPost, "/devices/pairing/request", bytes.NewReader(reqBody))
	reqRec := httptest.NewRecorder()
	router.ServeHTTP(reqRec, reqReq)
	if reqRec.Code != http.StatusOK {
		t.Fatalf("request pairing: expected 200, got %d: %s", reqRec.Code, reqRec.Body.String())
	}
	var pairingResp pairingRequestedResponse
	if err := json.Unmarshal(reqRec.Body.Bytes(), &pairingResp); err != nil {
		t.Fatalf("decode pairing response: %v", err)
	}
	if pairingResp.PairingCode == "" {
		t.Fatal("expected a non-empty pairing code")
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/devices/pairing/status/hw-200", nil)
	statusRec := httptest.NewRecorder()
	router.ServeHTTP(statusRec, statusReq)
	if statusRec.Code != http.StatusOK {
		t.Fatalf("pairing status: expected 200, got %d: %s", statusRec.Code, statusRec.Body.String())
	}
	var statusResp pairingStatusResponse
	if err := json.Unmarshal(statusRec.Body.Bytes(), &statusResp); err != nil {
		t.Fatalf("decode status response: %v", err)
	}
	if statusResp.Paired {
		t.Error("expected the device not to be paired yet")
	}

	verifyBody, _ := json.Marshal(verifyPairingRequest{PairingCode: pairingResp.PairingCode, TenantID: "tenant-1"})
	verifyReq := httptest.NewRequest(http.MethodPost, "/devices/pairing/verify", bytes.NewReader(verifyBody))
	verifyRec := httptest.NewRecorder()
	router.ServeHTTP(verifyRec, verifyReq)
	if verifyRec.Code != http.StatusOK {
		t.Fatalf("verify pairing: expected 200, got %d: %s", verifyRec.Code, verifyRec.Body.String())
	}
	var verifyResp verifyPairingResponse
	if err := json.Unmarshal(verifyRec.Body.Bytes(), &verifyResp); err != nil {
		t.Fatalf("decode verify response: %v", err)
	}
	if verifyResp.TenantID != "tenant-1" {
		t.Errorf("expected tenant-1, got %q", verifyResp.TenantID)
	}
}

func TestAssignDevicePlaylist_RejectsUnknownTrigger(t *testing.T) {
	h := newTestHandler(t)
	router := NewRouter(h).Setup()
	ctx := context.Background()

	device, err := h.db.RegisterDevice(ctx, &models.Device{HardwareID: "hw-300", Mode: models.DeviceModeDirect})
	if err != nil {
		t.Fatalf("register device: %v", err)
	}

	body, _ := json.Marshal(assignPlaylistRequest{PlaylistID: "playlist-1", TriggerType: "not_a_real_trigger"})
	req := httptest.NewRequest(http.MethodPost, "/devices/"+device.ID+"/playlists", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unrecognized trigger, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAssignAndToggleDevicePlaylist(t *testing.T) {
	h := newTestHandler(t)
	router := NewRouter(h).Setup()
	ctx := context.Background()

	tenant := &models.Tenant{Slug: "acme-toggle", Name: "Acme Toggle", IsActive: true}
	if err := h.db.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	playlist := &models.Playlist{
		TenantID: tenant.ID, Name: "Promo", TriggerType: models.PlaylistTriggerManual,
		LoopMode: models.LoopContinuous, IsActive: true,
	}
	if err := h.db.CreatePlaylist(ctx, playlist); err != nil {
		t.Fatalf("create playlist: %v", err)
	}
	device, err := h.db.RegisterDevice(ctx, &models.Device{HardwareID: "hw-301", Mode: models.DeviceModeDirect, TenantID: &tenant.ID})
	if err != nil {
		t.Fatalf("register device: %v", err)
	}

	assignBody, _ := json.Marshal(assignPlaylistRequest{PlaylistID: playlist.ID, TriggerType: string(models.TriggerAgeChild)})
	assignReq := httptest.NewRequest(http.MethodPost, "/devices/"+device.ID+"/playlists", bytes.NewReader(assignBody))
	assignRec := httptest.NewRecorder()
	router.ServeHTTP(assignRec, assignReq)
	if assignRec.Code != http.StatusCreated {
		t.Fatalf("assign playlist: expected 201, got %d: %s", assignRec.Code, assignRec.Body.String())
	}
	var assignResp assignmentResponse
	if err := json.Unmarshal(assignRec.Body.Bytes(), &assignResp); err != nil {
		t.Fatalf("decode assign response: %v", err)
	}
	if assignResp.IsEnabled {
		t.Error("expected a non-default-trigger assignment to start disabled")
	}

	toggleBody, _ := json.Marshal(toggleAssignmentRequest{IsEnabled: true})
	toggleReq := httptest.NewRequest(http.MethodPatch,
		"/devices/"+device.ID+"/playlists/"+assignResp.ID+"/toggle", bytes.NewReader(toggleBody))
	toggleRec := httptest.NewRecorder()
	router.ServeHTTP(toggleRec, toggleReq)
	if toggleRec.Code != http.StatusOK {
		t.Fatalf("toggle assignment: expected 200, got %d: %s", toggleRec.Code, toggleRec.Body.String())
	}
}

func TestDeviceLayout_ResolvesFixedLayer(t *testing.T) {
	h := newTestHandler(t)
	router := NewRouter(h).Setup()
	ctx := context.Background()

	tenant := &models.Tenant{Slug: "acme-layout", Name: "Acme Layout", IsActive: true}
	if err := h.db.CreateTenant(ctx, tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	playlist := &models.Playlist{
		TenantID: tenant.ID, Name: "Lobby Loop", TriggerType: models.PlaylistTriggerManual,
		LoopMode: models.LoopContinuous, IsActive: true,
	}
	if err := h.db.CreatePlaylist(ctx, playlist); err != nil {
		t.Fatalf("create playlist: %v", err)
	}
	layout := &models.Layout{TenantID: tenant.ID, Name: "Main", Width: 1920, Height: 1080, IsActive: true}
	if err := h.db.CreateLayout(ctx, layout); err != nil {
		t.Fatalf("create layout: %v", err)
	}
	layer := &models.Layer{LayoutID: layout.ID, Name: "Bottom", ZIndex: 0, Width: 1920, Height: 1080,
		ContentMode: models.LayerContentFixed, PlaylistID: &playlist.ID}
	if err := h.db.CreateLayer(ctx, layer); err != nil {
		t.Fatalf("create layer: %v", err)
	}
	device, err := h.db.RegisterDevice(ctx, &models.Device{HardwareID: "hw-302", Mode: models.DeviceModeDirect, TenantID: &tenant.ID})
	if err != nil {
		t.Fatalf("register device: %v", err)
	}
	if err := h.db.AssignDeviceToLayout(ctx, device.ID, layout.ID, layout.Version); err != nil {
		t.Fatalf("assign device to layout: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/devices/hw-302/layout", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp layoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Layers) != 1 || resp.Layers[0].PlaylistID != playlist.ID {
		t.Errorf("unexpected layout response: %+v", resp)
	}
}
