package position

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trainwatch/internal/types"
)

// SimulatedSource plays a route back by linear interpolation between
// consecutive stations with coordinates. Each segment is divided into a
// fixed number of steps; one step is emitted per tick, where the tick
// interval is the base interval divided by the speed multiplier. The
// source guarantees exact arrival at each station's coordinates at segment
// boundaries, skips stations with missing coordinates, and stops emitting
// cleanly once the final segment completes.
type SimulatedSource struct {
	waypoints []types.GeoPoint
	params    types.SimulationParams
	logger    *slog.Logger

	samples  chan types.PositionSample
	errors   chan *types.SensorError
	stop     chan struct{}
	stopOnce sync.Once
	started  bool
	mu       sync.Mutex
}

// NewSimulatedSource creates a playback source for the route. Stations
// without coordinates are skipped; the segment boundary simply advances to
// the next station that has them. At least two stations with coordinates
// are required.
func NewSimulatedSource(route types.Route, params types.SimulationParams, logger *slog.Logger) (*SimulatedSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if params.StepsPerSegment <= 0 {
		params.StepsPerSegment = types.DefaultSimulationParams().StepsPerSegment
	}
	if params.BaseTickInterval <= 0 {
		params.BaseTickInterval = types.DefaultSimulationParams().BaseTickInterval
	}

	var waypoints []types.GeoPoint
	for _, st := range route.Stations {
		if st.Position.InRange() {
			waypoints = append(waypoints, st.Position)
		}
	}
	if len(waypoints) < 2 {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidRoute,
			fmt.Sprintf("simulation needs at least 2 stations with coordinates, route has %d", len(waypoints)), nil)
	}

	return &SimulatedSource{
		waypoints: waypoints,
		params:    params,
		logger:    logger,
		samples:   make(chan types.PositionSample),
		errors:    make(chan *types.SensorError),
		stop:      make(chan struct{}),
	}, nil
}

// Start launches the playback goroutine.
func (s *SimulatedSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("position: simulated source already started")
	}
	s.started = true

	go s.run(ctx)
	s.logger.Info("simulated position source started",
		"waypoints", len(s.waypoints),
		"steps_per_segment", s.params.StepsPerSegment,
		"tick_interval", s.params.TickInterval().String(),
	)
	return nil
}

// Stop halts playback. Idempotent; also invoked implicitly when playback
// completes or the context is canceled.
func (s *SimulatedSource) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Samples returns the playback stream. The channel closes when the final
// segment completes or the source is stopped.
func (s *SimulatedSource) Samples() <-chan types.PositionSample { return s.samples }

// Errors returns the error stream. Playback produces no sensor errors; the
// channel exists to satisfy the Source contract and closes on shutdown.
func (s *SimulatedSource) Errors() <-chan *types.SensorError { return s.errors }

func (s *SimulatedSource) run(ctx context.Context) {
	defer close(s.samples)
	defer close(s.errors)

	ticker := time.NewTicker(s.params.TickInterval())
	defer ticker.Stop()

	// Emit the origin before the first tick so consumers see the full path.
	if !s.emit(ctx, s.waypoints[0]) {
		return
	}

	steps := s.params.StepsPerSegment
	for seg := 0; seg < len(s.waypoints)-1; seg++ {
		from, to := s.waypoints[seg], s.waypoints[seg+1]
		for step := 1; step <= steps; step++ {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
			}

			point := to
			if step < steps {
				frac := float64(step) / float64(steps)
				point = types.NewGeoPoint(
					from.Lat+(to.Lat-from.Lat)*frac,
					from.Lon+(to.Lon-from.Lon)*frac,
				)
			}
			if !s.emit(ctx, point) {
				return
			}
		}
	}

	s.logger.Info("simulated playback complete")
}

// emit delivers one sample, honoring cancellation. Returns false when the
// source should shut down.
func (s *SimulatedSource) emit(ctx context.Context, p types.GeoPoint) bool {
	sample := types.PositionSample{
		Lat:            p.Lat,
		Lon:            p.Lon,
		TimestampMs:    time.Now().UnixMilli(),
		AccuracyMeters: 5,
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.stop:
		return false
	case s.samples <- sample:
		return true
	}
}
