package position

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"trainwatch/internal/geo"
	"trainwatch/internal/types"
)

// DefaultHighAccuracyWithinKm is the distance-to-destination below which the
// live source requests high-accuracy sampling.
const DefaultHighAccuracyWithinKm = 50.0

// SensorWatcher is the port to the platform geolocation watch API. The
// platform binding delivers samples and classified errors through the
// callbacks until the returned handle is stopped. Implementations retry
// internally per the requested profile; the engine layer adds no second
// retry mechanism on top.
type SensorWatcher interface {
	Watch(profile types.AccuracyProfile, onSample func(types.PositionSample), onError func(*types.SensorError)) (WatchHandle, error)
}

// WatchHandle releases one sensor subscription.
type WatchHandle interface {
	Stop()
}

// LiveConfig holds the dependencies for creating a LiveSource.
type LiveConfig struct {
	Watcher SensorWatcher
	Logger  *slog.Logger

	// HighAccuracyWithinKm overrides the accuracy switch distance.
	// Zero means DefaultHighAccuracyWithinKm.
	HighAccuracyWithinKm float64
	// HighProfile and LowProfile override the watch request policies.
	// Zero values mean the standard profiles.
	HighProfile types.AccuracyProfile
	LowProfile  types.AccuracyProfile
}

// LiveSource adapts the sensor watch to the Source contract with an
// adaptive accuracy policy: far from the destination it requests cheap
// low-accuracy sampling, and once within the switch distance it restarts
// the watch in high-accuracy mode. Sample delivery is last-sample-wins; a
// consumer that falls behind sees only the most recent position.
type LiveSource struct {
	watcher      SensorWatcher
	logger       *slog.Logger
	highWithinKm float64
	highProfile  types.AccuracyProfile
	lowProfile   types.AccuracyProfile

	mu      sync.Mutex
	handle  WatchHandle
	high    bool
	started bool
	stopped bool

	samples chan types.PositionSample
	errors  chan *types.SensorError
}

// NewLiveSource creates a LiveSource. The watcher is required.
func NewLiveSource(cfg LiveConfig) (*LiveSource, error) {
	if cfg.Watcher == nil {
		return nil, fmt.Errorf("position: sensor watcher is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	highWithin := cfg.HighAccuracyWithinKm
	if highWithin <= 0 {
		highWithin = DefaultHighAccuracyWithinKm
	}
	highProfile := cfg.HighProfile
	if highProfile == (types.AccuracyProfile{}) {
		highProfile = types.HighAccuracyProfile()
	}
	lowProfile := cfg.LowProfile
	if lowProfile == (types.AccuracyProfile{}) {
		lowProfile = types.LowAccuracyProfile()
	}
	return &LiveSource{
		watcher:      cfg.Watcher,
		logger:       logger,
		highWithinKm: highWithin,
		highProfile:  highProfile,
		lowProfile:   lowProfile,
		samples:      make(chan types.PositionSample, 1),
		errors:       make(chan *types.SensorError, 4),
	}, nil
}

// Start begins the watch in low-accuracy mode; distance to destination is
// unknown until the first sample arrives.
func (s *LiveSource) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("position: live source already started")
	}
	if s.stopped {
		return fmt.Errorf("position: live source already stopped")
	}

	handle, err := s.watcher.Watch(s.lowProfile, s.deliverSample, s.deliverError)
	if err != nil {
		return fmt.Errorf("position: starting sensor watch: %w", err)
	}
	s.handle = handle
	s.started = true
	s.high = false
	s.logger.Info("live position source started", "high_accuracy", false)
	return nil
}

// SetDistanceToDestination feeds the latest computed distance back into the
// accuracy policy. When the distance bucket changes, the watch is restarted
// with the other profile; stopping before starting is the only valid
// replace sequence. Unknown distances keep the current bucket.
func (s *LiveSource) SetDistanceToDestination(km float64) {
	if geo.IsUnknown(km) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return
	}
	wantHigh := km <= s.highWithinKm
	if wantHigh == s.high {
		return
	}

	s.handle.Stop()
	profile := s.lowProfile
	if wantHigh {
		profile = s.highProfile
	}
	handle, err := s.watcher.Watch(profile, s.deliverSample, s.deliverError)
	if err != nil {
		// The old watch is already released. Report and leave the source
		// without a subscription; the next bucket change retries.
		s.handle = noopHandle{}
		s.started = false
		s.deliverErrorLocked(&types.SensorError{
			Kind:    types.SensorUnavailable,
			Message: fmt.Sprintf("restarting watch for accuracy change: %v", err),
		})
		return
	}
	s.handle = handle
	s.high = wantHigh
	s.logger.Info("sensor watch restarted for accuracy change",
		"high_accuracy", wantHigh,
		"dist_to_dest_km", km,
	)
}

// Samples returns the sample stream.
func (s *LiveSource) Samples() <-chan types.PositionSample { return s.samples }

// Errors returns the classified sensor error stream. Timeouts are expected
// to self-heal as the watch keeps retrying; they appear here but the source
// stays running.
func (s *LiveSource) Errors() <-chan *types.SensorError { return s.errors }

// Stop releases the watch handle and closes both channels. Idempotent.
func (s *LiveSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	if s.handle != nil {
		s.handle.Stop()
		s.handle = nil
	}
	close(s.samples)
	close(s.errors)
}

// deliverSample publishes a sample with last-sample-wins semantics: if the
// consumer has not drained the previous sample, it is replaced.
func (s *LiveSource) deliverSample(sample types.PositionSample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	for {
		select {
		case s.samples <- sample:
			return
		default:
		}
		select {
		case <-s.samples:
		default:
		}
	}
}

// deliverError publishes a classified sensor error, dropping it if the
// consumer is not keeping up.
func (s *LiveSource) deliverError(serr *types.SensorError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.deliverErrorLocked(serr)
}

func (s *LiveSource) deliverErrorLocked(serr *types.SensorError) {
	select {
	case s.errors <- serr:
	default:
		s.logger.Warn("dropping sensor error, consumer not draining",
			"kind", string(serr.Kind),
			"message", serr.Message,
		)
	}
}

// noopHandle stands in when a watch restart failed and there is no live
// subscription to release.
type noopHandle struct{}

func (noopHandle) Stop() {}
