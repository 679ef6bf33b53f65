package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/sentryfleet/sentryfleet/internal/logging"
)

// Subscriber wraps a Watermill NATS JetStream subscriber, grounded on the
// teacher's internal/eventprocessor/subscriber.go. Durable + queue-group
// consumption means only one running replica of a consumer receives each
// message, so the worker pool scales horizontally without double delivery.
type Subscriber struct {
	subscriber message.Subscriber
}

func newSubscriber(url, durableName, queueGroup string) (*Subscriber, error) {
	logger := watermill.NewStdLogger(false, false)

	wmConfig := wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: queueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     30 * time.Second,
		NatsOptions: []natsgo.Option{
			natsgo.RetryOnFailedConnect(true),
			natsgo.MaxReconnects(-1),
			natsgo.ReconnectWait(2 * time.Second),
		},
		Unmarshaler: &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			AckAsync:      false,
			DurablePrefix: durableName,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.MaxDeliver(5),
				natsgo.MaxAckPending(1000),
				natsgo.AckWait(30 * time.Second),
			},
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}
	return &Subscriber{subscriber: sub}, nil
}

// Consume subscribes to subject and runs handler for each delivered
// message until ctx is canceled. A handler error nacks the message for
// JetStream redelivery; success acks it. Intended to be run as a
// supervisor-tree service, one per subject.
func (s *Subscriber) Consume(ctx context.Context, subject string, handler func(ctx context.Context, payload []byte) error) error {
	messages, err := s.subscriber.Subscribe(ctx, subject)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := handler(ctx, msg.Payload); err != nil {
				logging.Error().Err(err).Str("subject", subject).Str("message_uuid", msg.UUID).Msg("task handler failed, nacking for redelivery")
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}
}

func (s *Subscriber) Close() error {
	return s.subscriber.Close()
}
