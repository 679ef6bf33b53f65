package queue

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	natsgo "github.com/nats-io/nats.go"

	"github.com/sentryfleet/sentryfleet/internal/config"
)

// Queue is the durable task queue handle components depend on: a Publisher
// to enqueue tasks and a Subscriber factory to consume them. Both are nil
// when the queue is disabled in configuration, in which case callers fall
// back to their own polling (the Notification Worker already polls the
// database directly, so a disabled queue only loses the low-latency wakeup,
// not correctness).
type Queue struct {
	cfg       config.NATSConfig
	embedded  *embeddedServer
	conn      *natsgo.Conn
	Publisher *Publisher
	subURL    string
}

// New connects to NATS JetStream (starting an embedded server first if
// configured), ensures the durable task stream exists, and returns a ready
// Queue. Returns (nil, nil) when the queue is disabled.
func New(ctx context.Context, cfg config.NATSConfig) (*Queue, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	q := &Queue{cfg: cfg}

	url := cfg.URL
	if cfg.EmbeddedServer {
		srv, err := startEmbeddedServer(cfg)
		if err != nil {
			return nil, fmt.Errorf("start embedded nats server: %w", err)
		}
		q.embedded = srv
		url = srv.clientURL
	}
	q.subURL = url

	nc, err := natsgo.Connect(url, natsgo.RetryOnFailedConnect(true), natsgo.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	q.conn = nc

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	if err := ensureStream(ctx, js, cfg.StreamName); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.StreamName, err)
	}

	pub, err := newPublisher(url)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create publisher: %w", err)
	}
	q.Publisher = pub

	return q, nil
}

// NewSubscriber returns a durable, queue-group subscriber for consuming
// tasks. queueGroup distinguishes consumer pools (e.g. "notification-worker"
// vs "compiler-worker") so each task kind is delivered to exactly one
// replica of its own consumer pool.
func (q *Queue) NewSubscriber(durableName, queueGroup string) (*Subscriber, error) {
	return newSubscriber(q.subURL, durableName, queueGroup)
}

// Close releases the publisher, connection, and embedded server (in that
// order) if this Queue started one.
func (q *Queue) Close(ctx context.Context) error {
	if q == nil {
		return nil
	}
	if q.Publisher != nil {
		_ = q.Publisher.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
	if q.embedded != nil {
		return q.embedded.Shutdown(ctx)
	}
	return nil
}
