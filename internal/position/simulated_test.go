package position

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"trainwatch/internal/types"
)

func testRoute(stations ...types.Station) types.Route {
	return types.Route{TrainNumber: "16101", Stations: stations}
}

func station(name string, seq int, pos types.GeoPoint) types.Station {
	return types.Station{Name: name, Code: name[:2], SequenceIndex: seq, Position: pos}
}

func fastParams(multiplier float64) types.SimulationParams {
	return types.SimulationParams{
		BaseTickInterval: time.Second,
		StepsPerSegment:  100,
		SpeedMultiplier:  multiplier,
	}
}

func collectAll(t *testing.T, src *SimulatedSource) []types.PositionSample {
	t.Helper()
	var samples []types.PositionSample
	timeout := time.After(10 * time.Second)
	for {
		select {
		case s, ok := <-src.Samples():
			if !ok {
				return samples
			}
			samples = append(samples, s)
		case <-timeout:
			t.Fatalf("playback did not complete, collected %d samples", len(samples))
		}
	}
}

func TestSimulated_TwoStationPlayback(t *testing.T) {
	a := types.NewGeoPoint(13.0732, 80.2609)
	b := types.NewGeoPoint(11.9393, 79.4924)
	route := testRoute(station("Chennai Egmore", 0, a), station("Villupuram Jn", 1, b))

	src, err := NewSimulatedSource(route, fastParams(200), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewSimulatedSource: %v", err)
	}
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	samples := collectAll(t, src)

	// Origin plus 100 interpolation steps.
	if len(samples) != 101 {
		t.Fatalf("got %d samples, want 101", len(samples))
	}
	first, last := samples[0], samples[len(samples)-1]
	if first.Lat != a.Lat || first.Lon != a.Lon {
		t.Errorf("first sample = (%v, %v), want origin (%v, %v)", first.Lat, first.Lon, a.Lat, a.Lon)
	}
	// Exact arrival, not approximately: the final step snaps to the
	// station's coordinates.
	if last.Lat != b.Lat || last.Lon != b.Lon {
		t.Errorf("final sample = (%v, %v), want exact destination (%v, %v)", last.Lat, last.Lon, b.Lat, b.Lon)
	}

	// Stops emitting: the channel is closed, a further read yields nothing.
	select {
	case s, ok := <-src.Samples():
		if ok {
			t.Errorf("unexpected sample after completion: %+v", s)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("samples channel should be closed after playback completes")
	}
}

func TestSimulated_SegmentBoundariesHitEveryStation(t *testing.T) {
	a := types.NewGeoPoint(13.0732, 80.2609)
	b := types.NewGeoPoint(12.9249, 80.1000)
	c := types.NewGeoPoint(12.6921, 79.9756)
	route := testRoute(station("Chennai Egmore", 0, a), station("Tambaram", 1, b), station("Chengalpattu Jn", 2, c))

	params := fastParams(500)
	params.StepsPerSegment = 10
	src, err := NewSimulatedSource(route, params, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewSimulatedSource: %v", err)
	}
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	samples := collectAll(t, src)
	if len(samples) != 21 {
		t.Fatalf("got %d samples, want 21 (origin + 2 segments x 10 steps)", len(samples))
	}
	mid := samples[10]
	if mid.Lat != b.Lat || mid.Lon != b.Lon {
		t.Errorf("segment boundary sample = (%v, %v), want exact Tambaram (%v, %v)", mid.Lat, mid.Lon, b.Lat, b.Lon)
	}
}

func TestSimulated_SkipsStationsWithoutCoordinates(t *testing.T) {
	a := types.NewGeoPoint(13.0732, 80.2609)
	c := types.NewGeoPoint(12.6921, 79.9756)
	route := testRoute(
		station("Chennai Egmore", 0, a),
		station("Ghost Halt", 1, types.GeoPoint{}), // upstream data gap
		station("Chengalpattu Jn", 2, c),
	)

	params := fastParams(500)
	params.StepsPerSegment = 5
	src, err := NewSimulatedSource(route, params, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewSimulatedSource: %v", err)
	}
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	samples := collectAll(t, src)
	// One segment between the two stations that have coordinates.
	if len(samples) != 6 {
		t.Fatalf("got %d samples, want 6", len(samples))
	}
	last := samples[len(samples)-1]
	if last.Lat != c.Lat || last.Lon != c.Lon {
		t.Errorf("final sample = (%v, %v), want (%v, %v)", last.Lat, last.Lon, c.Lat, c.Lon)
	}
}

func TestSimulated_RequiresTwoStationsWithCoordinates(t *testing.T) {
	route := testRoute(
		station("Chennai Egmore", 0, types.NewGeoPoint(13.0732, 80.2609)),
		station("Ghost Halt", 1, types.GeoPoint{}),
	)
	if _, err := NewSimulatedSource(route, fastParams(1), slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("expected error for route with a single located station")
	}
}

func TestSimulated_StopHaltsPlayback(t *testing.T) {
	a := types.NewGeoPoint(13.0732, 80.2609)
	b := types.NewGeoPoint(11.9393, 79.4924)
	route := testRoute(station("Chennai Egmore", 0, a), station("Villupuram Jn", 1, b))

	src, err := NewSimulatedSource(route, fastParams(100), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewSimulatedSource: %v", err)
	}
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Drain a few samples, then stop mid-playback.
	for i := 0; i < 3; i++ {
		<-src.Samples()
	}
	src.Stop()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-src.Samples():
			if !ok {
				return // closed, as expected
			}
		case <-deadline:
			t.Fatal("samples channel not closed after Stop")
		}
	}
}
