// Package alarm implements the threshold-driven alarm state machine. The
// machine consumes distance pairs, owns the single AlarmState value, and
// decides transitions. It is exclusively driven by the foreground event
// loop; the only other caller is its own snooze expiry timer.
package alarm

import (
	"log/slog"
	"sync"
	"time"

	"trainwatch/internal/geo"
	"trainwatch/internal/types"
)

// Dispatcher receives the side effects of entering an alerting state.
// Entering alarm or pre-alert fires exactly one dispatch per entry;
// remaining in the state on subsequent samples does not re-fire, and
// re-entering after leaving fires again.
type Dispatcher interface {
	DispatchPreAlert(distToPrevKm float64)
	DispatchAlarm(distToDestKm float64)
}

// snoozeTimer is the handle for a pending snooze expiry.
type snoozeTimer interface {
	Stop() bool
}

// TimerFunc schedules fn after d and returns a cancelable handle. The
// default is time.AfterFunc; tests inject a manual trigger.
type TimerFunc func(d time.Duration, fn func()) snoozeTimer

func afterFunc(d time.Duration, fn func()) snoozeTimer {
	return time.AfterFunc(d, fn)
}

// Config holds the dependencies for creating a Machine.
type Config struct {
	Thresholds types.Thresholds
	Dispatcher Dispatcher
	Logger     *slog.Logger

	// Timer overrides snooze scheduling for tests. Nil means time.AfterFunc.
	Timer TimerFunc
}

// Machine holds the current alarm state and applies the transition rule to
// every observed distance pair. State is level-triggered: each sample
// re-derives the state from current distances, with no hysteresis band.
// Samples oscillating near a boundary therefore flip state repeatedly; the
// optional debounce in Thresholds damps this when explicitly enabled.
type Machine struct {
	mu         sync.Mutex
	thresholds types.Thresholds
	dispatcher Dispatcher
	logger     *slog.Logger
	timerFn    TimerFunc

	state          types.AlarmState
	lastDistToDest float64
	lastDistToPrev float64
	pendingTimer   snoozeTimer

	// Debounce bookkeeping, active only when Thresholds.DebounceSamples > 0.
	candidate      types.AlarmState
	candidateCount int
}

// NewMachine creates a Machine in the safe state with unknown distances.
func NewMachine(cfg Config) *Machine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timerFn := cfg.Timer
	if timerFn == nil {
		timerFn = afterFunc
	}
	return &Machine{
		thresholds:     cfg.Thresholds,
		dispatcher:     cfg.Dispatcher,
		logger:         logger,
		timerFn:        timerFn,
		state:          types.StateSafe,
		lastDistToDest: geo.Unknown,
		lastDistToPrev: geo.Unknown,
	}
}

// State returns the current alarm state.
func (m *Machine) State() types.AlarmState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Observe applies the transition rule to a new distance pair and returns
// the resulting state. Transitions never fail: every distance pair maps to
// exactly one state, and unknown (infinite) distances resolve to safe.
//
// While snoozed, Observe only records the distances; the snooze expiry
// re-applies the rule to whatever was observed last.
func (m *Machine) Observe(distToDestKm, distToPrevKm float64) types.AlarmState {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastDistToDest = distToDestKm
	m.lastDistToPrev = distToPrevKm

	if m.state == types.StateSnoozed {
		return m.state
	}

	target := m.evaluate(distToDestKm, distToPrevKm)

	if m.thresholds.DebounceSamples > 0 && target != m.state {
		if target == m.candidate {
			m.candidateCount++
		} else {
			m.candidate = target
			m.candidateCount = 1
		}
		if m.candidateCount <= m.thresholds.DebounceSamples {
			return m.state
		}
	}
	m.candidateCount = 0

	m.transitionTo(target)
	return m.state
}

// evaluate is the four-way priority rule; first match wins.
func (m *Machine) evaluate(distToDest, distToPrev float64) types.AlarmState {
	switch {
	case distToDest <= m.thresholds.AlarmKm:
		return types.StateAlarm
	case distToPrev <= m.thresholds.PreAlertKm:
		return types.StatePreAlert
	case distToDest <= m.thresholds.ApproachKm:
		return types.StateApproaching
	default:
		return types.StateSafe
	}
}

// transitionTo commits a state change and fires entry side effects.
// Callers must hold m.mu.
func (m *Machine) transitionTo(target types.AlarmState) {
	if target == m.state {
		return
	}
	from := m.state
	m.state = target

	m.logger.Info("alarm state transition",
		"from", string(from),
		"to", string(target),
		"dist_to_dest_km", m.lastDistToDest,
		"dist_to_prev_km", m.lastDistToPrev,
	)

	switch target {
	case types.StateAlarm:
		m.dispatcher.DispatchAlarm(m.lastDistToDest)
	case types.StatePreAlert:
		m.dispatcher.DispatchPreAlert(m.lastDistToPrev)
	}
}

// Snooze moves alarm to snoozed for the given duration. On expiry the
// transition rule is re-applied to the latest known distances, so a
// traveler who moved away in the meantime resolves to whatever the rule
// now dictates, not forcibly back to alarm. Snooze is a no-op outside the
// alarm state and reports whether it took effect.
func (m *Machine) Snooze(d time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != types.StateAlarm {
		return false
	}
	if m.pendingTimer != nil {
		m.pendingTimer.Stop()
	}
	m.state = types.StateSnoozed
	m.pendingTimer = m.timerFn(d, m.onSnoozeExpired)

	m.logger.Info("alarm snoozed", "duration", d.String())
	return true
}

// onSnoozeExpired re-applies the rule when the snooze duration elapses.
// Re-entering alarm from snoozed fires a fresh dispatch.
func (m *Machine) onSnoozeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != types.StateSnoozed {
		return
	}
	m.pendingTimer = nil
	// evaluate never yields snoozed, so this always leaves the state and
	// re-entering alarm fires a fresh dispatch.
	m.transitionTo(m.evaluate(m.lastDistToDest, m.lastDistToPrev))
}

// Dismiss forces the state to safe and cancels any pending snooze timer.
// Valid at any time.
func (m *Machine) Dismiss() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pendingTimer != nil {
		m.pendingTimer.Stop()
		m.pendingTimer = nil
	}
	from := m.state
	m.state = types.StateSafe
	m.candidateCount = 0

	if from != types.StateSafe {
		m.logger.Info("alarm dismissed", "from", string(from))
	}
}
