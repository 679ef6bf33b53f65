package services

import (
	"context"
	"errors"
	"fmt"
)

// Consumer matches queue.Subscriber.Consume's signature, kept as an
// interface here so this package does not import internal/queue directly.
type Consumer interface {
	Consume(ctx context.Context, subject string, handler func(ctx context.Context, payload []byte) error) error
}

// ConsumerService adapts a queue.Subscriber's blocking Consume loop to
// suture's Service interface.
type ConsumerService struct {
	name      string
	consumer  Consumer
	subject   string
	handler   func(ctx context.Context, payload []byte) error
}

// NewConsumerService builds a ConsumerService for one subject.
func NewConsumerService(name string, consumer Consumer, subject string, handler func(ctx context.Context, payload []byte) error) *ConsumerService {
	return &ConsumerService{name: name, consumer: consumer, subject: subject, handler: handler}
}

// Serve implements suture.Service.
func (c *ConsumerService) Serve(ctx context.Context) error {
	err := c.consumer.Consume(ctx, c.subject, c.handler)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consumer %s failed: %w", c.name, err)
	}
	return ctx.Err()
}

// String implements fmt.Stringer.
func (c *ConsumerService) String() string {
	return c.name
}
