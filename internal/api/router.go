package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentryfleet/sentryfleet/internal/middleware"
)

func promHandler() http.Handler {
	return promhttp.Handler()
}

// Router assembles the chi mux wrapping a Handler.
type Router struct {
	handler *Handler
}

// NewRouter constructs a Router.
func NewRouter(h *Handler) *Router {
	return &Router{handler: h}
}

// Setup builds the full route tree: global middleware applied to every
// request, then one route group per resource, each carrying its own rate
// limit budget the way the teacher's SetupChi groups health, auth, and
// analytics endpoints separately.
func (router *Router) Setup() http.Handler {
	h := router.handler
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Prometheus)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promHandler())

	r.Route("/devices", func(r chi.Router) {
		r.Use(middleware.RateLimit(600, time.Minute))
		r.Post("/register", h.RegisterDevice)
		r.Post("/pairing/request", h.RequestDevicePairing)
		r.Get("/pairing/status/{hardware_id}", h.PairingStatus)
		r.Post("/pairing/verify", h.VerifyDevicePairing)
		r.Post("/{id}/playlists", h.AssignDevicePlaylist)
		r.Patch("/{id}/playlists/{assignment_id}/toggle", h.ToggleDevicePlaylistAssignment)
		r.Post("/{id}/heartbeat", h.DeviceHeartbeat)
		// {id} here is the device's hardware_id, matching spec section 6's
		// GET /devices/{hardware_id}/layout — reusing the param name avoids
		// registering two differently-named wildcards at the same node.
		r.Get("/{id}/layout", h.DeviceLayout)
	})

	r.Route("/hubs", func(r chi.Router) {
		r.Use(middleware.RateLimit(600, time.Minute))
		r.Post("/{id}/heartbeats", h.HubHeartbeat)
	})

	r.Route("/missing_persons", func(r chi.Router) {
		r.Use(middleware.RateLimit(120, time.Minute))
		r.Post("/compile", h.CompileMissingPersons)
		r.Get("/database/latest", h.MissingPersonsLatest)
		r.Get("/database/download", h.MissingPersonsDownload)
		r.Get("/database/download/metadata", h.MissingPersonsDownloadMetadata)
	})

	r.Route("/tenants/{tenant_id}/loyalty", func(r chi.Router) {
		r.Use(middleware.RateLimit(120, time.Minute))
		r.Post("/compile", h.CompileLoyalty)
		r.Get("/database/latest", h.LoyaltyLatest)
		r.Get("/database/download", h.LoyaltyDownload)
		r.Get("/database/download/metadata", h.LoyaltyDownloadMetadata)
	})

	r.Route("/alerts", func(r chi.Router) {
		r.Use(middleware.RateLimit(600, time.Minute))
		r.Post("/", h.CreateAlert)
		r.Get("/", h.ListAlerts)
		r.Put("/{id}/review", h.ReviewAlert)
		r.Get("/{id}/image", h.AlertImage)
		r.Post("/{id}/notifications/retry", h.RetryAlertNotifications)
	})

	r.Route("/playlists", func(r chi.Router) {
		r.Use(middleware.RateLimit(300, time.Minute))
		r.Post("/{id}/push", h.PushPlaylist)
		r.Get("/{id}/sync-status", h.PlaylistSyncStatus)
	})

	return r
}
