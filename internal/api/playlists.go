package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sentryfleet/sentryfleet/internal/models"
)

type pushPlaylistResponse struct {
	DeviceCount int   `json:"device_count"`
	Synced      int   `json:"synced"`
	Version     int64 `json:"version"`
}

// PushPlaylist handles POST /playlists/{id}/push.
func (h *Handler) PushPlaylist(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "id")

	deviceCount, synced, version, err := h.dispatcher.PushPlaylist(r.Context(), playlistID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pushPlaylistResponse{
		DeviceCount: deviceCount,
		Synced:      synced,
		Version:     version,
	})
}

type deviceSyncResponse struct {
	DeviceID      string  `json:"device_id"`
	State         string  `json:"state"`
	SyncedVersion *int64  `json:"synced_version,omitempty"`
	LastAttempt   *string `json:"last_attempt,omitempty"`
	LastSuccess   *string `json:"last_success,omitempty"`
	Error         *string `json:"error,omitempty"`
}

type syncStatusResponse struct {
	AggregateStatus string               `json:"aggregate_status"`
	Counts          map[string]int       `json:"counts"`
	Devices         []deviceSyncResponse `json:"devices,omitempty"`
}

// PlaylistSyncStatus handles GET /playlists/{id}/sync-status.
func (h *Handler) PlaylistSyncStatus(w http.ResponseWriter, r *http.Request) {
	playlistID := chi.URLParam(r, "id")
	includeDevices := getBoolParam(r, "include_devices", false)

	summary, err := h.dispatcher.SyncStatus(r.Context(), playlistID, includeDevices)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := syncStatusResponse{
		AggregateStatus: string(summary.AggregateStatus),
		Counts:          make(map[string]int, len(summary.Counts)),
	}
	for state, count := range summary.Counts {
		resp.Counts[string(state)] = count
	}
	if includeDevices {
		resp.Devices = make([]deviceSyncResponse, 0, len(summary.Devices))
		for _, d := range summary.Devices {
			resp.Devices = append(resp.Devices, toDeviceSyncResponse(d))
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func toDeviceSyncResponse(s *models.DevicePlaylistSync) deviceSyncResponse {
	resp := deviceSyncResponse{
		DeviceID:      s.DeviceID,
		State:         string(s.State),
		SyncedVersion: s.SyncedVersion,
		Error:         s.Error,
	}
	if s.LastAttempt != nil {
		v := s.LastAttempt.Format(time.RFC3339)
		resp.LastAttempt = &v
	}
	if s.LastSuccess != nil {
		v := s.LastSuccess.Format(time.RFC3339)
		resp.LastSuccess = &v
	}
	return resp
}
