// Package services adapts Sentry Fleet's background workers to suture's
// Service interface, grounded on the teacher's
// internal/supervisor/services package: one small wrapper type per
// lifecycle shape (ticker loop, HTTP server, queue consumer) rather
// than making every worker implement Serve(ctx) error itself.
package services

import (
	"context"
	"time"

	"github.com/sentryfleet/sentryfleet/internal/logging"
)

// TickerService runs fn on a fixed interval until the supervisor tree
// cancels its context, logging (not failing) individual tick errors so a
// single bad pass does not trip suture's restart backoff — mirroring how
// the teacher's WAL retry loop treats a failed pass as retryable, not fatal.
type TickerService struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
}

// NewTickerService builds a TickerService. name identifies the service in
// logs; interval is the tick period; fn is invoked once per tick and once
// immediately on start.
func NewTickerService(name string, interval time.Duration, fn func(ctx context.Context) error) *TickerService {
	return &TickerService{name: name, interval: interval, fn: fn}
}

// Serve implements suture.Service.
func (s *TickerService) Serve(ctx context.Context) error {
	if err := s.fn(ctx); err != nil {
		logging.Error().Err(err).Str("service", s.name).Msg("tick failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.fn(ctx); err != nil {
				logging.Error().Err(err).Str("service", s.name).Msg("tick failed")
			}
		}
	}
}

// String implements fmt.Stringer so suture's logs identify this service.
func (s *TickerService) String() string {
	return s.name
}
