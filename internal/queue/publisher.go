package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/sentryfleet/sentryfleet/internal/logging"
)

// Publisher wraps a Watermill NATS JetStream publisher with circuit breaker
// protection, grounded on the teacher's internal/eventprocessor/publisher.go
// and the same sony/gobreaker/v2 the teacher's internal/sync circuit
// breaker uses.
type Publisher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[any]
	mu        sync.RWMutex
	closed    bool
}

func newPublisher(url string) (*Publisher, error) {
	logger := watermill.NewStdLogger(false, false)

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("nats publisher disconnected")
			}
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			TrackMsgId:    true,
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "task-queue-publisher",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Publisher{publisher: pub, breaker: breaker}, nil
}

// Publish sends payload to subject, tagging it with uuid for JetStream
// dedup. Calls that fail repeatedly trip the circuit breaker so a stalled
// broker does not pile up blocked callers.
func (p *Publisher) Publish(ctx context.Context, subject string, uuid string, payload []byte) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("task queue publisher is closed")
	}

	_, err := p.breaker.Execute(func() (any, error) {
		msg := message.NewMessage(uuid, payload)
		msg.Metadata.Set(natsgo.MsgIdHdr, uuid)
		return nil, p.publisher.Publish(subject, msg)
	})
	return err
}

// EnqueueNotification implements alerts.Enqueuer: it wakes the Notification
// Worker's next poll by publishing the dispatched log's ID, rather than
// carrying the payload itself — the worker re-reads current state from the
// database so a duplicate or delayed delivery of this message is harmless.
func (p *Publisher) EnqueueNotification(ctx context.Context, logID string) error {
	return p.Publish(ctx, SubjectNotificationDispatch, logID, []byte(logID))
}

// EnqueueCompileTask publishes a compile-index task for the given scope
// (e.g. "missing_persons" or a loyalty scope built by models.LoyaltyScope).
func (p *Publisher) EnqueueCompileTask(ctx context.Context, taskID, scope string) error {
	return p.Publish(ctx, SubjectCompileTask, taskID, []byte(scope))
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.publisher.Close()
}
