// Package supervisor wires every Sentry Fleet background service into a
// suture supervisor tree, grounded directly on the teacher's
// internal/supervisor package: a three-layer hierarchy (data, messaging,
// api) so a crash in one layer does not take down the others, each leaf
// service adapted to suture.Service's Serve(ctx) error contract.
package supervisor

import (
	"context"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/sentryfleet/sentryfleet/internal/logging"
)

// TreeConfig holds supervisor tree failure-handling parameters, the same
// knobs and defaults as the teacher's TreeConfig/DefaultTreeConfig.
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig returns suture's own documented defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree manages the hierarchical supervisor structure for Sentry Fleet.
//
// Layers:
//   - data: pairing-code GC — local, DB-only background work
//   - messaging: notification worker, sync-push dispatcher, compile-task
//     consumer — anything that talks to the task queue or to hubs
//   - api: the HTTP server
type Tree struct {
	root      *suture.Supervisor
	data      *suture.Supervisor
	messaging *suture.Supervisor
	api       *suture.Supervisor
}

// New builds a Tree. Uses logging's slog bridge for suture's event hook so
// supervisor restarts and failures show up in the same structured log
// stream as everything else.
func New(cfg TreeConfig) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5.0
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30.0
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	eventHook := handler.MustHook()

	rootSpec := suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}

	root := suture.New("sentryfleet", rootSpec)
	data := suture.New("data-layer", childSpec)
	messaging := suture.New("messaging-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(data)
	root.Add(messaging)
	root.Add(api)

	return &Tree{root: root, data: data, messaging: messaging, api: api}
}

func (t *Tree) AddDataService(svc suture.Service) suture.ServiceToken {
	return t.data.Add(svc)
}

func (t *Tree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.messaging.Add(svc)
}

func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve starts the whole tree and blocks until ctx is canceled or a
// non-recoverable failure propagates to the root.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}
