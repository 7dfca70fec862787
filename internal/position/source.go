// Package position produces streams of position samples for the foreground
// engine. Two interchangeable implementations share one contract: a live
// source wrapping the platform geolocation watch, and a simulated source
// that plays a route back by interpolation. A Session supervises whichever
// source is active, guaranteeing at most one at a time.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"trainwatch/internal/types"
)

// Source is the public contract shared by the live and simulated
// implementations. Samples flow until the source is stopped (or, for the
// simulated source, until playback completes); both channels close when the
// source shuts down.
type Source interface {
	Start(ctx context.Context) error
	Stop()
	Samples() <-chan types.PositionSample
	Errors() <-chan *types.SensorError
}

// Session owns the active source. Switching sources stops the previous one
// before starting the next, so ownership of the underlying timer or watch
// handle transfers atomically and two sources are never active concurrently.
type Session struct {
	mu     sync.Mutex
	active Source
	logger *slog.Logger
}

// NewSession creates an empty Session.
func NewSession(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{logger: logger}
}

// Swap stops the currently active source, if any, and starts next. On a
// start failure the session is left with no active source; the previous one
// has already been released and is not resurrected.
func (s *Session) Swap(ctx context.Context, next Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.active.Stop()
		s.active = nil
		s.logger.Info("position source stopped for swap")
	}

	if err := next.Start(ctx); err != nil {
		return fmt.Errorf("starting position source: %w", err)
	}
	s.active = next
	return nil
}

// Active returns the currently active source, or nil.
func (s *Session) Active() Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Stop releases the active source. Safe to call on every exit path; calling
// it with no active source is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.active.Stop()
		s.active = nil
		s.logger.Info("position source stopped")
	}
}
