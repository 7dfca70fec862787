package types

import "time"

// Thresholds holds the distance and snooze constants the alarm state
// machine evaluates on every sample.
//
// DebounceSamples is an explicit enhancement over the level-triggered rule:
// when greater than zero, a computed state must hold for that many
// consecutive samples before it is adopted, damping GPS jitter near a
// threshold boundary. The default of zero preserves the original behavior,
// where oscillation near a boundary flips state on every sample.
type Thresholds struct {
	ApproachKm      float64
	PreAlertKm      float64
	AlarmKm         float64
	Snooze          time.Duration
	DebounceSamples int
}

// DefaultThresholds returns the standard threshold set: approach at 15 km,
// pre-alert at 0.5 km from the previous stop, alarm at 2 km, snooze 2 min.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ApproachKm: 15,
		PreAlertKm: 0.5,
		AlarmKm:    2,
		Snooze:     2 * time.Minute,
	}
}

// AccuracyProfile describes one sensor watch request policy. The live
// position source switches between a high and a low profile depending on
// distance to destination, trading battery for precision only when close.
type AccuracyProfile struct {
	HighAccuracy bool
	MaxSampleAge time.Duration
	Timeout      time.Duration
}

// HighAccuracyProfile is used within the accuracy switch distance:
// fresh samples (max age 5s) and a tight timeout.
func HighAccuracyProfile() AccuracyProfile {
	return AccuracyProfile{HighAccuracy: true, MaxSampleAge: 5 * time.Second, Timeout: 10 * time.Second}
}

// LowAccuracyProfile conserves power while the destination is far away.
func LowAccuracyProfile() AccuracyProfile {
	return AccuracyProfile{HighAccuracy: false, MaxSampleAge: 60 * time.Second, Timeout: 30 * time.Second}
}

// SimulationParams configures the simulated position source.
type SimulationParams struct {
	// BaseTickInterval is the wall-clock interval per interpolation step at
	// speed multiplier 1. The effective tick is BaseTickInterval / SpeedMultiplier.
	BaseTickInterval time.Duration
	// StepsPerSegment is the number of interpolation steps between two
	// consecutive stations with coordinates.
	StepsPerSegment int
	// SpeedMultiplier accelerates playback. Must be > 0.
	SpeedMultiplier float64
}

// DefaultSimulationParams returns the standard playback configuration:
// one-second base ticks, 100 steps per segment, real-time speed.
func DefaultSimulationParams() SimulationParams {
	return SimulationParams{
		BaseTickInterval: time.Second,
		StepsPerSegment:  100,
		SpeedMultiplier:  1,
	}
}

// TickInterval returns the effective interval between interpolation steps.
func (p SimulationParams) TickInterval() time.Duration {
	mult := p.SpeedMultiplier
	if mult <= 0 {
		mult = 1
	}
	return time.Duration(float64(p.BaseTickInterval) / mult)
}
