package position

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"trainwatch/internal/types"
)

// scriptedSource records lifecycle calls for Session assertions.
type scriptedSource struct {
	name     string
	started  int
	stopped  int
	failNext bool
	events   *[]string
}

func (s *scriptedSource) Start(context.Context) error {
	if s.failNext {
		return fmt.Errorf("start %s: scripted failure", s.name)
	}
	s.started++
	*s.events = append(*s.events, "start:"+s.name)
	return nil
}

func (s *scriptedSource) Stop() {
	s.stopped++
	*s.events = append(*s.events, "stop:"+s.name)
}

func (s *scriptedSource) Samples() <-chan types.PositionSample { return nil }
func (s *scriptedSource) Errors() <-chan *types.SensorError    { return nil }

func TestSession_SwapStopsBeforeStarting(t *testing.T) {
	var events []string
	sess := NewSession(slog.New(slog.NewTextHandler(io.Discard, nil)))
	live := &scriptedSource{name: "live", events: &events}
	sim := &scriptedSource{name: "sim", events: &events}

	if err := sess.Swap(context.Background(), live); err != nil {
		t.Fatalf("Swap(live): %v", err)
	}
	if err := sess.Swap(context.Background(), sim); err != nil {
		t.Fatalf("Swap(sim): %v", err)
	}

	want := []string{"start:live", "stop:live", "start:sim"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
	if sess.Active() != sim {
		t.Error("active source should be the simulated one after swap")
	}
}

func TestSession_SwapFailureLeavesNoActiveSource(t *testing.T) {
	var events []string
	sess := NewSession(slog.New(slog.NewTextHandler(io.Discard, nil)))
	live := &scriptedSource{name: "live", events: &events}
	broken := &scriptedSource{name: "broken", failNext: true, events: &events}

	if err := sess.Swap(context.Background(), live); err != nil {
		t.Fatalf("Swap(live): %v", err)
	}
	if err := sess.Swap(context.Background(), broken); err == nil {
		t.Fatal("Swap(broken) should fail")
	}

	// The previous source was released before the failed start; it must not
	// be resurrected, or two streams could end up active later.
	if live.stopped != 1 {
		t.Errorf("live stops = %d, want 1", live.stopped)
	}
	if sess.Active() != nil {
		t.Error("no source should be active after a failed swap")
	}
}

func TestSession_StopIsIdempotent(t *testing.T) {
	var events []string
	sess := NewSession(slog.New(slog.NewTextHandler(io.Discard, nil)))
	live := &scriptedSource{name: "live", events: &events}

	if err := sess.Swap(context.Background(), live); err != nil {
		t.Fatalf("Swap: %v", err)
	}
	sess.Stop()
	sess.Stop()

	if live.stopped != 1 {
		t.Errorf("stops = %d, want 1", live.stopped)
	}
}
