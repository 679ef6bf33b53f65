// Package api implements the HTTP surface described in spec section 6: a
// chi router dispatching to the nine domain components, translating
// apierr.Error kinds into the status table spec section 6 and section 7
// define. Grounded on the teacher's internal/api package (Handler struct,
// SetupChi router, handlers_helpers.go's response conventions), trimmed
// to the one router layer this system needs instead of the teacher's
// Tautulli-proxy-plus-analytics surface.
package api

import (
	"github.com/sentryfleet/sentryfleet/internal/alerts"
	"github.com/sentryfleet/sentryfleet/internal/compiler"
	"github.com/sentryfleet/sentryfleet/internal/config"
	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/dispatch"
	"github.com/sentryfleet/sentryfleet/internal/fleet"
	"github.com/sentryfleet/sentryfleet/internal/heartbeat"
	"github.com/sentryfleet/sentryfleet/internal/layoutcomposer"
	"github.com/sentryfleet/sentryfleet/internal/notify"
	"github.com/sentryfleet/sentryfleet/internal/queue"
	"github.com/sentryfleet/sentryfleet/internal/registry"
)

// Handler holds every component the HTTP surface dispatches to.
type Handler struct {
	db         *database.DB
	fleet      *fleet.Registry
	composer   *layoutcomposer.Composer
	heartbeats *heartbeat.Aggregator
	compiler   *compiler.Compiler
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	alerts     *alerts.Processor
	notifier   *notify.Worker
	queue      *queue.Publisher
	cfg        *config.Config
}

// New constructs a Handler. queuePublisher may be nil when the task queue
// is disabled (config.NATSConfig.Enabled == false); compile requests are
// then run inline instead of being handed to a worker.
func New(
	db *database.DB,
	fleetRegistry *fleet.Registry,
	composer *layoutcomposer.Composer,
	heartbeats *heartbeat.Aggregator,
	comp *compiler.Compiler,
	artifactRegistry *registry.Registry,
	dispatcher *dispatch.Dispatcher,
	alertProcessor *alerts.Processor,
	notifier *notify.Worker,
	queuePublisher *queue.Publisher,
	cfg *config.Config,
) *Handler {
	return &Handler{
		db:         db,
		fleet:      fleetRegistry,
		composer:   composer,
		heartbeats: heartbeats,
		compiler:   comp,
		registry:   artifactRegistry,
		dispatcher: dispatcher,
		alerts:     alertProcessor,
		notifier:   notifier,
		queue:      queuePublisher,
		cfg:        cfg,
	}
}
