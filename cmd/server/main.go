// Package main is the entry point for the Sentry Fleet server.
//
// Sentry Fleet is a venue security-camera fleet manager: devices and hubs
// register and heartbeat in, playlists and layouts get composed and pushed
// out to them, detection alerts come in and get routed to notification
// channels, and two compiled lookup indexes (missing persons, per-tenant
// loyalty) get built and served for download.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: load settings from environment variables and an
//     optional config file (koanf v2)
//  2. Database: open the DuckDB system of record
//  3. Pairing store: open the BadgerDB pairing-code store
//  4. Task queue: connect to NATS JetStream, or run without one
//  5. Domain components: fleet registry, layout composer, heartbeat
//     aggregator, compiler, artifact registry, sync dispatcher, alert
//     processor, notification worker
//  6. HTTP server: the chi-routed REST API
//  7. Supervisor tree: every background service and the HTTP server,
//     started together and shut down together on signal
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM: it cancels
// the root context, the HTTP server stops accepting new connections and
// drains in-flight requests, and every background service's Serve returns.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sentryfleet/sentryfleet/internal/alerts"
	"github.com/sentryfleet/sentryfleet/internal/api"
	"github.com/sentryfleet/sentryfleet/internal/apierr"
	"github.com/sentryfleet/sentryfleet/internal/compiler"
	"github.com/sentryfleet/sentryfleet/internal/config"
	"github.com/sentryfleet/sentryfleet/internal/database"
	"github.com/sentryfleet/sentryfleet/internal/dispatch"
	"github.com/sentryfleet/sentryfleet/internal/fleet"
	"github.com/sentryfleet/sentryfleet/internal/heartbeat"
	"github.com/sentryfleet/sentryfleet/internal/layoutcomposer"
	"github.com/sentryfleet/sentryfleet/internal/logging"
	"github.com/sentryfleet/sentryfleet/internal/models"
	"github.com/sentryfleet/sentryfleet/internal/notify"
	"github.com/sentryfleet/sentryfleet/internal/pairing"
	"github.com/sentryfleet/sentryfleet/internal/queue"
	"github.com/sentryfleet/sentryfleet/internal/registry"
	"github.com/sentryfleet/sentryfleet/internal/supervisor"
	"github.com/sentryfleet/sentryfleet/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("starting sentryfleet")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing database")
		}
	}()

	pairingStore, err := pairing.Open(cfg.Compiler.ArtifactRoot + "/pairing")
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open pairing store")
	}
	defer func() {
		if err := pairingStore.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing pairing store")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q, err := queue.New(ctx, cfg.NATS)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize task queue")
	}
	if q != nil {
		defer func() {
			if err := q.Close(context.Background()); err != nil {
				logging.Error().Err(err).Msg("error closing task queue")
			}
		}()
		logging.Info().Msg("task queue connected")
	} else {
		logging.Info().Msg("task queue disabled, running compiles inline and polling for notifications")
	}

	fleetRegistry := fleet.New(db, pairingStore, cfg.Fleet.PairingCodeTTL)
	composer := layoutcomposer.New(db)
	heartbeats := heartbeat.New(db)
	comp := compiler.New(db, cfg.Compiler.ArtifactRoot, cfg.Compiler.FeatureDim, cfg.Compiler.ArtifactVersionsKeep)
	artifactRegistry := registry.New(db)
	pusher := dispatch.NewHTTPPusher(db, cfg.Fleet.RemoteCommandTimeout)
	dispatcher := dispatch.New(db, composer, pusher)

	var enqueuer alerts.Enqueuer
	if q != nil {
		enqueuer = q.Publisher
	}

	notifyRegistry := notify.NewRegistry(
		notify.NewEmailChannel(cfg.Notification),
		notify.NewSMSChannel(cfg.Notification),
		notify.NewWebhookChannel(),
	)
	notifier := notify.New(db, notifyRegistry, cfg.Notification)

	alertProcessor := alerts.New(db, enqueuer, notifier, cfg.Compiler.CaptureRoot)

	handler := api.New(db, fleetRegistry, composer, heartbeats, comp, artifactRegistry, dispatcher, alertProcessor, notifier, queuePublisher(q), cfg)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ShutdownTimeout,
		WriteTimeout: cfg.Server.ShutdownTimeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.New(supervisor.DefaultTreeConfig())

	tree.AddDataService(services.NewTickerService("pairing-gc", 5*time.Minute, func(ctx context.Context) error {
		return pairingStore.RunGC(0.5)
	}))
	tree.AddMessagingService(services.NewTickerService("notification-worker", 30*time.Second, func(ctx context.Context) error {
		n, err := notifier.RunOnce(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logging.Info().Int("count", n).Msg("notification worker processed due notifications")
		}
		return nil
	}))
	tree.AddMessagingService(services.NewTickerService("sync-dispatcher", 15*time.Second, func(ctx context.Context) error {
		pushed, failed, err := dispatcher.PushPending(ctx)
		if err != nil {
			return err
		}
		if pushed > 0 || failed > 0 {
			logging.Info().Int("pushed", pushed).Int("failed", failed).Msg("sync dispatcher push cycle")
		}
		return nil
	}))

	if q != nil {
		compileSub, err := q.NewSubscriber("compiler-worker", "compiler-worker")
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to create compile task subscriber")
		}
		defer func() {
			if err := compileSub.Close(); err != nil {
				logging.Error().Err(err).Msg("error closing compile task subscriber")
			}
		}()

		tree.AddMessagingService(services.NewConsumerService(
			"compile-task-consumer",
			compileSub,
			queue.SubjectCompileTask,
			compileTaskHandler(comp),
		))
	}

	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("http server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor tree error")
	}

	logging.Info().Msg("sentryfleet stopped")
}

// queuePublisher returns q.Publisher, or nil when the queue is disabled,
// preserving api.Handler's contract that a nil publisher means "run
// compiles inline" rather than requiring callers to nil-check *queue.Queue
// itself.
func queuePublisher(q *queue.Queue) *queue.Publisher {
	if q == nil {
		return nil
	}
	return q.Publisher
}

// compileTaskHandler drains published compile tasks. The payload is the
// scope exactly as enqueued by api.acceptCompile: either the singleton
// "missing_persons" value or a loyalty scope built by models.LoyaltyScope.
func compileTaskHandler(comp *compiler.Compiler) func(ctx context.Context, payload []byte) error {
	return func(ctx context.Context, payload []byte) error {
		scope := string(payload)

		var (
			artifact *models.IndexArtifact
			err      error
		)
		if scope == models.MissingPersonsScope {
			artifact, err = comp.CompileMissingPersons(ctx)
		} else {
			tenantID, ok := models.TenantIDFromLoyaltyScope(scope)
			if !ok {
				return fmt.Errorf("compile task: unrecognized scope %q", scope)
			}
			artifact, err = comp.CompileLoyalty(ctx, tenantID)
		}
		if err != nil {
			if apierr.Is(err, apierr.KindEmptyScope) {
				logging.Warn().Str("scope", scope).Msg("compile task found nothing to compile")
				return nil
			}
			return fmt.Errorf("compile task for scope %s: %w", scope, err)
		}
		logging.Info().Str("scope", scope).Int64("version", artifact.Version).Msg("compile task finished")
		return nil
	}
}
