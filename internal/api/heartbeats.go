package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sentryfleet/sentryfleet/internal/apierr"
	"github.com/sentryfleet/sentryfleet/internal/heartbeat"
	"github.com/sentryfleet/sentryfleet/internal/logging"
)

type heartbeatEntry struct {
	DeviceID string `json:"device_id" validate:"required"`
	IP       string `json:"ip,omitempty"`
}

type hubHeartbeatRequest struct {
	Heartbeats []heartbeatEntry `json:"heartbeats" validate:"required,min=1,dive"`
}

type heartbeatErrorEntry struct {
	DeviceID string `json:"device_id"`
	Error    string `json:"error"`
}

type hubHeartbeatResponse struct {
	Processed        int                   `json:"processed"`
	Errors           []heartbeatErrorEntry `json:"errors"`
	HubLastHeartbeat string                `json:"hub_last_heartbeat"`
}

// HubHeartbeat handles POST /hubs/{id}/heartbeats. It processes every
// device in the batch against the hub's own liveness in one transaction,
// so the batch succeeds or fails as a whole: when processing fails, every
// device in the batch is reported with that same error. Device IDs that are
// not registered are skipped without an error entry.
func (h *Handler) HubHeartbeat(w http.ResponseWriter, r *http.Request) {
	hubID := chi.URLParam(r, "id")

	var req hubHeartbeatRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, err)
		return
	}

	hub, err := h.db.GetHub(r.Context(), hubID)
	if err != nil {
		respondError(w, apierr.Wrap(apierr.KindNotFound, "hub not registered", err))
		return
	}

	deviceIDs := make([]string, 0, len(req.Heartbeats))
	var hubIP, deviceIP string
	for _, entry := range req.Heartbeats {
		deviceIDs = append(deviceIDs, entry.DeviceID)
		if entry.IP != "" {
			deviceIP = entry.IP
		}
	}
	if r.RemoteAddr != "" {
		hubIP = r.RemoteAddr
	}

	report := heartbeat.Report{HubID: hub.ID, HubIP: hubIP, DeviceIDs: deviceIDs, DeviceIP: deviceIP}
	var errs []heartbeatErrorEntry
	if err := h.heartbeats.Process(r.Context(), report); err != nil {
		logging.Warn().Err(err).Str("hub_id", hubID).Msg("heartbeat batch failed")
		for _, id := range deviceIDs {
			errs = append(errs, heartbeatErrorEntry{DeviceID: id, Error: err.Error()})
		}
	}

	refreshed, err := h.db.GetHub(r.Context(), hubID)
	lastHeartbeat := ""
	if err == nil && refreshed.LastHeartbeat != nil {
		lastHeartbeat = refreshed.LastHeartbeat.Format(time.RFC3339)
	}

	respondJSON(w, http.StatusOK, hubHeartbeatResponse{
		Processed:        len(deviceIDs) - len(errs),
		Errors:           errs,
		HubLastHeartbeat: lastHeartbeat,
	})
}

type directHeartbeatRequest struct {
	IP string `json:"ip,omitempty"`
}

// DeviceHeartbeat handles a direct-mode device's own heartbeat, used when
// a device is not aggregated behind a hub.
func (h *Handler) DeviceHeartbeat(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var req directHeartbeatRequest
	if err := decodeAndValidate(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := h.heartbeats.ProcessDirectHeartbeat(r.Context(), deviceID, req.IP); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, struct{}{})
}
