// Package engine runs the foreground trip loop. A Trip owns one active
// journey: it validates the plan, seeds the offline route cache, supervises
// the position source, and feeds every sample into the alarm state machine.
// There is exactly one event loop; no processing happens between a sample
// arriving and the state transition it causes.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"trainwatch/internal/alarm"
	"trainwatch/internal/geo"
	"trainwatch/internal/position"
	"trainwatch/internal/types"
)

// AlertPublisher is the foreground half of the cross-context protocol.
// Implemented by dispatch.Publisher.
type AlertPublisher interface {
	CacheRoute(ctx context.Context, route types.CachedRoute) error
	PreAlert(ctx context.Context, payload types.PreAlertPayload) error
	TriggerAlarm(ctx context.Context, payload types.TriggerAlarmPayload) error
}

// AdaptiveSource is implemented by sources that tune their sampling profile
// to the remaining distance. The live source implements it; the simulated
// source does not.
type AdaptiveSource interface {
	SetDistanceToDestination(km float64)
}

// Status is a snapshot of the trip for logging and the bridge surface.
// Distances are geo.Unknown until the first usable sample arrives.
type Status struct {
	State            types.AlarmState
	Mode             types.SourceMode
	DistanceToDestKm float64
	DistanceToPrevKm float64
	SamplesSeen      int
	SensorFault      string
}

// statusJSON is the wire form of Status. Unknown distances encode as null;
// +Inf is not representable in JSON.
type statusJSON struct {
	State            types.AlarmState `json:"state"`
	Mode             types.SourceMode `json:"mode"`
	DistanceToDestKm *float64         `json:"distance_to_dest_km"`
	DistanceToPrevKm *float64         `json:"distance_to_prev_km"`
	SamplesSeen      int              `json:"samples_seen"`
	SensorFault      string           `json:"sensor_fault,omitempty"`
}

func knownKm(v float64) *float64 {
	if geo.IsUnknown(v) {
		return nil
	}
	return &v
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(statusJSON{
		State:            s.State,
		Mode:             s.Mode,
		DistanceToDestKm: knownKm(s.DistanceToDestKm),
		DistanceToPrevKm: knownKm(s.DistanceToPrevKm),
		SamplesSeen:      s.SamplesSeen,
		SensorFault:      s.SensorFault,
	})
}

// Config holds Trip dependencies.
type Config struct {
	Plan       types.TripPlan
	Mode       types.SourceMode
	Thresholds types.Thresholds
	Publisher  AlertPublisher
	Source     position.Source
	// Controls delivers dismiss/snooze messages from the background
	// context. May be nil when no control queue is wired.
	Controls <-chan types.ControlMessage
	Clock    types.Clock
	Logger   *slog.Logger
}

// Trip is one active journey.
type Trip struct {
	plan       types.TripPlan
	mode       types.SourceMode
	thresholds types.Thresholds
	publisher  AlertPublisher
	source     position.Source
	session    *position.Session
	controls   <-chan types.ControlMessage
	machine    *alarm.Machine
	clock      types.Clock
	logger     *slog.Logger

	mu     sync.Mutex
	status Status
	runCtx context.Context
}

// NewTrip validates the plan and assembles a Trip. The trip does not start
// sampling until Run is called.
func NewTrip(cfg Config) (*Trip, error) {
	if err := cfg.Plan.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	t := &Trip{
		plan:       cfg.Plan,
		mode:       cfg.Mode,
		thresholds: cfg.Thresholds,
		publisher:  cfg.Publisher,
		source:     cfg.Source,
		session:    position.NewSession(cfg.Logger),
		controls:   cfg.Controls,
		clock:      cfg.Clock,
		logger: cfg.Logger.With(
			"train_number", cfg.Plan.Route.TrainNumber,
			"destination", cfg.Plan.Destination().Name,
		),
		status: Status{
			State:            types.StateSafe,
			Mode:             cfg.Mode,
			DistanceToDestKm: geo.Unknown,
			DistanceToPrevKm: geo.Unknown,
		},
	}
	t.machine = alarm.NewMachine(alarm.Config{
		Thresholds: cfg.Thresholds,
		Dispatcher: t,
		Logger:     cfg.Logger,
	})
	return t, nil
}

// Run seeds the route cache, starts the source, and processes samples,
// sensor errors, and control messages until the context is canceled or the
// source completes. The source is released on every exit path.
func (t *Trip) Run(ctx context.Context) error {
	t.mu.Lock()
	t.runCtx = ctx
	t.mu.Unlock()

	t.seedRouteCache(ctx)

	if err := t.session.Swap(ctx, t.source); err != nil {
		return err
	}
	defer t.session.Stop()

	t.logger.InfoContext(ctx, "trip started",
		"mode", string(t.mode),
		"stations", len(t.plan.Route.Stations),
	)

	samples := t.source.Samples()
	sensorErrs := t.source.Errors()

	for {
		select {
		case <-ctx.Done():
			t.logger.InfoContext(ctx, "trip canceled")
			return ctx.Err()

		case sample, ok := <-samples:
			if !ok {
				// Playback completed or the source was released.
				t.logger.InfoContext(ctx, "position stream ended", "samples", t.Status().SamplesSeen)
				return nil
			}
			t.handleSample(ctx, sample)

		case sensorErr, ok := <-sensorErrs:
			if !ok {
				sensorErrs = nil
				continue
			}
			t.handleSensorError(ctx, sensorErr)

		case msg, ok := <-t.controls:
			if !ok {
				t.controls = nil
				continue
			}
			t.handleControl(ctx, msg)
		}
	}
}

// seedRouteCache pushes the plan to the background context before any
// suspension risk. Failure is logged, not fatal: the trip can still alarm,
// it just loses the offline text fallback.
func (t *Trip) seedRouteCache(ctx context.Context) {
	cached := types.CachedRoute{
		SchemaVersion: types.CacheSchemaVersion,
		Plan:          t.plan,
		CachedAt:      t.clock.Now(),
	}
	if err := t.publisher.CacheRoute(ctx, cached); err != nil {
		t.logger.ErrorContext(ctx, "failed to seed route cache", "error", err)
		return
	}
	t.logger.InfoContext(ctx, "route cache seeded")
}

// handleSample computes both distances, retunes the sampler, and feeds the
// state machine. Entry-edge dispatches fire synchronously from Observe.
func (t *Trip) handleSample(ctx context.Context, sample types.PositionSample) {
	here := sample.Point()
	distDest := geo.Distance(here, t.plan.Destination().Position)
	distPrev := geo.Distance(here, t.plan.PreviousStation().Position)

	if adaptive, ok := t.source.(AdaptiveSource); ok {
		adaptive.SetDistanceToDestination(distDest)
	}

	state := t.machine.Observe(distDest, distPrev)

	t.mu.Lock()
	t.status.State = state
	t.status.DistanceToDestKm = distDest
	t.status.DistanceToPrevKm = distPrev
	t.status.SamplesSeen++
	samples := t.status.SamplesSeen
	t.mu.Unlock()

	if samples == 1 {
		t.logger.InfoContext(ctx, "first position sample",
			"distance_to_dest", geo.FormatDistance(distDest),
		)
	}
}

// handleSensorError records sensor status. Fatal errors leave tracking
// degraded but never crash the loop; the user resolves them externally.
func (t *Trip) handleSensorError(ctx context.Context, sensorErr *types.SensorError) {
	if sensorErr.Fatal() {
		t.mu.Lock()
		t.status.SensorFault = string(sensorErr.Kind)
		t.mu.Unlock()
		t.logger.ErrorContext(ctx, "position sensor failed",
			"kind", string(sensorErr.Kind),
			"message", sensorErr.Message,
		)
		return
	}
	t.logger.WarnContext(ctx, "position sensor hiccup",
		"kind", string(sensorErr.Kind),
		"message", sensorErr.Message,
	)
}

// handleControl applies a dismiss or snooze from the background context.
// Both are idempotent, so at-least-once queue delivery is safe.
func (t *Trip) handleControl(ctx context.Context, msg types.ControlMessage) {
	switch msg.Type {
	case types.MsgDismissAlarm:
		t.machine.Dismiss()
		t.logger.InfoContext(ctx, "alarm dismissed", "message_id", msg.MessageID)
	case types.MsgSnoozeAlarm:
		d := msg.SnoozeDuration(t.thresholds.Snooze)
		if t.machine.Snooze(d) {
			t.logger.InfoContext(ctx, "alarm snoozed", "duration", d, "message_id", msg.MessageID)
		} else {
			t.logger.WarnContext(ctx, "snooze ignored outside alarm state", "message_id", msg.MessageID)
		}
	default:
		t.logger.WarnContext(ctx, "ignoring unknown control message", "type", string(msg.Type))
	}

	t.mu.Lock()
	t.status.State = t.machine.State()
	t.mu.Unlock()
}

// DispatchPreAlert publishes the transient early warning. Called by the
// state machine on the pre_alert entry edge.
func (t *Trip) DispatchPreAlert(distToPrevKm float64) {
	ctx := t.dispatchContext()
	err := t.publisher.PreAlert(ctx, types.PreAlertPayload{
		PrevStationName:  t.plan.PreviousStation().Name,
		DestStationName:  t.plan.Destination().Name,
		DistanceToPrevKm: distToPrevKm,
	})
	if err != nil {
		t.logger.ErrorContext(ctx, "pre-alert dispatch failed", "error", err)
	}
}

// DispatchAlarm publishes the persistent destination alarm. Called by the
// state machine on the alarm entry edge.
func (t *Trip) DispatchAlarm(distToDestKm float64) {
	ctx := t.dispatchContext()
	err := t.publisher.TriggerAlarm(ctx, types.TriggerAlarmPayload{
		StationName: t.plan.Destination().Name,
		DistanceKm:  distToDestKm,
	})
	if err != nil {
		t.logger.ErrorContext(ctx, "alarm dispatch failed", "error", err)
	}
}

func (t *Trip) dispatchContext() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runCtx != nil {
		return t.runCtx
	}
	return context.Background()
}

// Status returns a snapshot of the trip.
func (t *Trip) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Stop releases the position source. Run returns once the sample channel
// closes.
func (t *Trip) Stop() {
	t.session.Stop()
}
