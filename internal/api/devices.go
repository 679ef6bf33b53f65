package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sentryfleet/sentryfleet/internal/apierr"
	"github.com/sentryfleet/sentryfleet/internal/models"
)

// registerDeviceRequest is the body of POST /devices/register.
type registerDeviceRequest struct {
	HardwareID string `json:"hardware_id" validate:"required"`
	Mode       string `json:"mode" validate:"required,oneof=direct hub"`
	HubID      string `json:"hub_id,omitempty"`
	IP         string `json:"ip,omitempty"`
}

type deviceResponse struct {
	ID                 string     `json:"id"`
	ExternalID         string     `json:"external_id"`
	HardwareID         string     `json:"hardware_id"`
	TenantID           *string    `json:"tenant_id,omitempty"`
	HubID              *string    `json:"hub_id,omitempty"`
	Mode               string     `json:"mode"`
	Status             string     `json:"status"`
	IP                 string     `json:"ip,omitempty"`
	LastSeen           *time.Time `json:"last_seen,omitempty"`
	LayoutID           *string    `json:"layout_id,omitempty"`
	PendingSyncVersion int64      `json:"pending_sync_version"`
}

func toDeviceResponse(d *models.Device) deviceResponse {
	return deviceResponse{
		ID:                 d.ID,
		ExternalID:         d.ExternalID,
		HardwareID:         d.HardwareID,
		TenantID:           d.TenantID,
		HubID:              d.HubID,
		Mode:               string(d.Mode),
		Status:             string(d.Status),
		IP:                 d.IP,
		LastSeen:           d.LastSeen,
		LayoutID:           d.LayoutID,
		PendingSyncVersion: d.PendingSyncVersion,
	}
}

// RegisterDevice handles POST /devices/register.
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, err)
		return
	}

	var (
		d   *models.Device
		err error
	)
	switch models.DeviceMode(req.Mode) {
	case models.DeviceModeHub:
		if req.HubID == "" {
			respondError(w, apierr.New(apierr.KindInvalidInput, "hub_id is required when mode is hub"))
			return
		}
		d, err = h.fleet.RegisterHubDevice(r.Context(), req.HardwareID, req.HubID, req.IP)
	default:
		d, err = h.fleet.RegisterDirectDevice(r.Context(), req.HardwareID, req.IP)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toDeviceResponse(d))
}

type requestPairingRequest struct {
	HardwareID string `json:"hardware_id" validate:"required"`
	IP         string `json:"ip,omitempty"`
}

type pairingRequestedResponse struct {
	PairingCode string `json:"pairing_code"`
	ExpiresIn   int    `json:"expires_in"`
}

// RequestDevicePairing handles POST /devices/pairing/request.
func (h *Handler) RequestDevicePairing(w http.ResponseWriter, r *http.Request) {
	var req requestPairingRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, err)
		return
	}

	d, err := h.db.GetDeviceByHardwareID(r.Context(), req.HardwareID)
	if err != nil {
		respondError(w, apierr.Wrap(apierr.KindNotFound, "device not registered", err))
		return
	}

	code, err := h.fleet.RequestPairing(r.Context(), d.ID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pairingRequestedResponse{
		PairingCode: code,
		ExpiresIn:   int(h.cfg.Fleet.PairingCodeTTL.Seconds()),
	})
}

type pairingStatusResponse struct {
	Paired     bool    `json:"paired"`
	ExternalID string  `json:"external_id,omitempty"`
	TenantID   *string `json:"tenant_id,omitempty"`
	Status     string  `json:"status"`
}

// PairingStatus handles GET /devices/pairing/status/{hardware_id}.
func (h *Handler) PairingStatus(w http.ResponseWriter, r *http.Request) {
	hardwareID := chi.URLParam(r, "hardware_id")

	status, d, err := h.fleet.StatusPairingByHardwareID(r.Context(), hardwareID)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := pairingStatusResponse{Status: string(status)}
	if status == "verified" {
		resp.Paired = true
		resp.ExternalID = d.ExternalID
		resp.TenantID = d.TenantID
	}
	respondJSON(w, http.StatusOK, resp)
}

type verifyPairingRequest struct {
	PairingCode string `json:"pairing_code" validate:"required"`
	TenantID    string `json:"tenant_id" validate:"required"`
}

type verifyPairingResponse struct {
	Device   deviceResponse `json:"device"`
	TenantID string         `json:"tenant_id"`
}

// VerifyDevicePairing handles POST /devices/pairing/verify.
func (h *Handler) VerifyDevicePairing(w http.ResponseWriter, r *http.Request) {
	var req verifyPairingRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, err)
		return
	}

	d, err := h.fleet.VerifyPairing(r.Context(), req.PairingCode, req.TenantID)
	if err != nil {
		respondError(w, err)
		return
	}

	tenantID := req.TenantID
	if d.TenantID != nil {
		tenantID = *d.TenantID
	}
	respondJSON(w, http.StatusOK, verifyPairingResponse{Device: toDeviceResponse(d), TenantID: tenantID})
}

type assignPlaylistRequest struct {
	PlaylistID  string `json:"playlist_id" validate:"required"`
	TriggerType string `json:"trigger_type" validate:"required"`
}

type assignmentResponse struct {
	ID          string  `json:"id"`
	DeviceID    string  `json:"device_id"`
	PlaylistID  string  `json:"playlist_id"`
	TriggerType string  `json:"trigger_type"`
	Priority    int     `json:"priority"`
	IsEnabled   bool    `json:"is_enabled"`
	Start       *string `json:"start,omitempty"`
	End         *string `json:"end,omitempty"`
}

func toAssignmentResponse(a *models.DevicePlaylistAssignment) assignmentResponse {
	resp := assignmentResponse{
		ID:          a.ID,
		DeviceID:    a.DeviceID,
		PlaylistID:  a.PlaylistID,
		TriggerType: string(a.TriggerType),
		Priority:    a.Priority,
		IsEnabled:   a.IsEnabled,
	}
	if a.Start != nil {
		s := a.Start.Format(time.RFC3339)
		resp.Start = &s
	}
	if a.End != nil {
		e := a.End.Format(time.RFC3339)
		resp.End = &e
	}
	return resp
}

// AssignDevicePlaylist handles POST /devices/{id}/playlists.
func (h *Handler) AssignDevicePlaylist(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var req assignPlaylistRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, err)
		return
	}
	trigger := models.TriggerType(req.TriggerType)
	if !models.ValidTriggerTypes[trigger] {
		respondError(w, apierr.New(apierr.KindInvalidInput, "trigger_type is not a recognized trigger"))
		return
	}

	a := &models.DevicePlaylistAssignment{
		DeviceID:    deviceID,
		PlaylistID:  req.PlaylistID,
		TriggerType: trigger,
	}
	if err := h.fleet.AssignPlaylist(r.Context(), a); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toAssignmentResponse(a))
}

type toggleAssignmentRequest struct {
	IsEnabled bool `json:"is_enabled"`
}

// ToggleDevicePlaylistAssignment handles
// PATCH /devices/{id}/playlists/{assignment_id}/toggle.
func (h *Handler) ToggleDevicePlaylistAssignment(w http.ResponseWriter, r *http.Request) {
	assignmentID := chi.URLParam(r, "assignment_id")

	var req toggleAssignmentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := h.fleet.ToggleAssignment(r.Context(), assignmentID, req.IsEnabled); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toggleAssignmentRequest{IsEnabled: req.IsEnabled})
}

type resolvedLayerResponse struct {
	LayerID    string `json:"layer_id"`
	Name       string `json:"name"`
	ZIndex     int    `json:"z_index"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	PlaylistID string `json:"playlist_id"`
	Source     string `json:"source"`
}

type layoutResponse struct {
	LayoutID string                   `json:"layout_id"`
	Name     string                   `json:"name"`
	Width    int                      `json:"width"`
	Height   int                      `json:"height"`
	Version  int64                    `json:"version"`
	Layers   []resolvedLayerResponse  `json:"layers"`
}

// DeviceLayout handles GET /devices/{hardware_id}/layout. The route
// param is named "id" (see router.go) to avoid colliding with the other
// wildcard routes under /devices; it carries the device's hardware_id.
func (h *Handler) DeviceLayout(w http.ResponseWriter, r *http.Request) {
	hardwareID := chi.URLParam(r, "id")

	d, err := h.db.GetDeviceByHardwareID(r.Context(), hardwareID)
	if err != nil {
		respondError(w, apierr.Wrap(apierr.KindNotFound, "device not registered", err))
		return
	}

	trigger := models.TriggerType(r.URL.Query().Get("trigger"))
	if trigger == "" {
		trigger = models.TriggerDefault
	}

	composition, err := h.composer.Compose(r.Context(), d.ID, trigger)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := layoutResponse{
		LayoutID: composition.Layout.ID,
		Name:     composition.Layout.Name,
		Width:    composition.Layout.Width,
		Height:   composition.Layout.Height,
		Version:  composition.Layout.Version,
		Layers:   make([]resolvedLayerResponse, 0, len(composition.Layers)),
	}
	for _, rl := range composition.Layers {
		resp.Layers = append(resp.Layers, resolvedLayerResponse{
			LayerID:    rl.Layer.ID,
			Name:       rl.Layer.Name,
			ZIndex:     rl.Layer.ZIndex,
			X:          rl.Layer.X,
			Y:          rl.Layer.Y,
			Width:      rl.Layer.Width,
			Height:     rl.Layer.Height,
			PlaylistID: rl.PlaylistID,
			Source:     rl.Source,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}
