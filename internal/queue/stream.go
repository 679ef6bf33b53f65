package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// SubjectNotificationDispatch and SubjectCompileTask are the two durable
// task kinds this system pushes through the queue. Both live on one stream;
// JetStream consumers filter by subject.
const (
	SubjectNotificationDispatch = "sentryfleet.notifications.dispatch"
	SubjectCompileTask          = "sentryfleet.compiler.tasks"
)

// jetStreamContext is the subset of jetstream.JetStream that ensureStream
// needs, mirroring the teacher's StreamInitializer's JetStreamContext
// interface — narrow enough to fake in tests without a running NATS server.
type jetStreamContext interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// ensureStream creates the durable task stream if it does not already
// exist, or leaves it untouched if it does. Idempotent, mirroring the
// teacher's StreamInitializer.EnsureStream.
func ensureStream(ctx context.Context, js jetStreamContext, name string) error {
	cfg := jetstream.StreamConfig{
		Name:       name,
		Subjects:   []string{SubjectNotificationDispatch, SubjectCompileTask},
		Retention:  jetstream.WorkQueuePolicy,
		MaxAge:     7 * 24 * time.Hour,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
		Duplicates: 2 * time.Minute,
	}

	if _, err := js.Stream(ctx, name); err == nil {
		if _, err := js.UpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("update stream %s: %w", name, err)
		}
		return nil
	}

	if _, err := js.CreateStream(ctx, cfg); err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}
	return nil
}
