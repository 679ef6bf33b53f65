// Package queue provides the durable task queue that coordinates work across
// worker replicas: the Alert Processor (C8) enqueues notification dispatch
// tasks, the Compiler (C2) enqueues index-rebuild tasks, and the
// Notification Worker (C9) and a compile-task consumer drain them. It wraps
// NATS JetStream with Watermill, grounded on the teacher's
// internal/eventprocessor package — trimmed to the primitives this system
// needs (embedded server, one durable stream, a publisher, a subscriber)
// rather than the teacher's full CQRS/WAL/replay/dead-letter machinery.
package queue

import (
	"context"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"

	"github.com/sentryfleet/sentryfleet/internal/config"
)

// embeddedServer wraps a self-hosted NATS server with JetStream enabled, for
// single-node deployments that do not want to operate NATS separately.
type embeddedServer struct {
	server    *natsserver.Server
	clientURL string
}

func startEmbeddedServer(cfg config.NATSConfig) (*embeddedServer, error) {
	opts := &natsserver.Options{
		ServerName: "sentryfleet-tasks",
		Host:       "127.0.0.1",
		Port:       4222,
		JetStream:  true,
		StoreDir:   cfg.StoreDir,
		NoLog:      true,
	}

	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded nats server did not become ready within 30s")
	}

	return &embeddedServer{server: ns, clientURL: ns.ClientURL()}, nil
}

func (s *embeddedServer) Shutdown(ctx context.Context) error {
	s.server.Shutdown()
	done := make(chan struct{})
	go func() {
		s.server.WaitForShutdown()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
