package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
)

type fakeJetStream struct {
	streams    map[string]jetstream.StreamConfig
	updateErr  error
	createErr  error
	updateSeen bool
	createSeen bool
}

func (f *fakeJetStream) Stream(ctx context.Context, name string) (jetstream.Stream, error) {
	if _, ok := f.streams[name]; ok {
		return nil, nil
	}
	return nil, errors.New("stream not found")
}

func (f *fakeJetStream) CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.createSeen = true
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.streams == nil {
		f.streams = map[string]jetstream.StreamConfig{}
	}
	f.streams[cfg.Name] = cfg
	return nil, nil
}

func (f *fakeJetStream) UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.updateSeen = true
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.streams[cfg.Name] = cfg
	return nil, nil
}

func TestEnsureStream_CreatesWhenAbsent(t *testing.T) {
	fake := &fakeJetStream{}
	if err := ensureStream(context.Background(), fake, "sentryfleet-tasks"); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}
	if !fake.createSeen {
		t.Errorf("expected CreateStream to be called for an absent stream")
	}
	if fake.updateSeen {
		t.Errorf("did not expect UpdateStream to be called for an absent stream")
	}
}

func TestEnsureStream_UpdatesWhenPresent(t *testing.T) {
	fake := &fakeJetStream{streams: map[string]jetstream.StreamConfig{"sentryfleet-tasks": {}}}
	if err := ensureStream(context.Background(), fake, "sentryfleet-tasks"); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}
	if !fake.updateSeen {
		t.Errorf("expected UpdateStream to be called for an existing stream")
	}
	if fake.createSeen {
		t.Errorf("did not expect CreateStream to be called for an existing stream")
	}
}

func TestEnsureStream_PropagatesCreateError(t *testing.T) {
	fake := &fakeJetStream{createErr: errors.New("broker unavailable")}
	err := ensureStream(context.Background(), fake, "sentryfleet-tasks")
	if err == nil {
		t.Fatal("expected error when CreateStream fails")
	}
}
