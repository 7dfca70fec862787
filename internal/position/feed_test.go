package position

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"trainwatch/internal/types"
)

// feedSink collects callback deliveries from a FeedWatcher subscription.
type feedSink struct {
	samples chan types.PositionSample
	errs    chan *types.SensorError
}

func newFeedSink() *feedSink {
	return &feedSink{
		samples: make(chan types.PositionSample, 16),
		errs:    make(chan *types.SensorError, 16),
	}
}

func (s *feedSink) onSample(sample types.PositionSample) { s.samples <- sample }
func (s *feedSink) onError(serr *types.SensorError)      { s.errs <- serr }

func (s *feedSink) nextSample(t *testing.T) types.PositionSample {
	t.Helper()
	select {
	case sample := <-s.samples:
		return sample
	case <-time.After(time.Second):
		t.Fatal("no sample delivered")
		return types.PositionSample{}
	}
}

func (s *feedSink) nextError(t *testing.T) *types.SensorError {
	t.Helper()
	select {
	case serr := <-s.errs:
		return serr
	case <-time.After(time.Second):
		t.Fatal("no sensor error delivered")
		return nil
	}
}

func TestFeedWatcher_DeliversSamples(t *testing.T) {
	feed := strings.NewReader(
		`{"lat":12.9249,"lon":80.1,"timestamp_ms":1,"accuracy_meters":8}` + "\n" +
			"\n" + // blank lines are skipped
			`{"lat":12.6921,"lon":79.9756,"timestamp_ms":2}` + "\n",
	)
	w := NewFeedWatcher(feed, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sink := newFeedSink()

	handle, err := w.Watch(types.LowAccuracyProfile(), sink.onSample, sink.onError)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer handle.Stop()

	first := sink.nextSample(t)
	if first.Lat != 12.9249 || first.TimestampMs != 1 {
		t.Errorf("first sample = %+v", first)
	}
	second := sink.nextSample(t)
	if second.Lat != 12.6921 {
		t.Errorf("second sample = %+v", second)
	}
}

func TestFeedWatcher_MalformedLineIsReportedNotFatal(t *testing.T) {
	feed := strings.NewReader(
		"not json\n" +
			`{"lat":11.9393,"lon":79.4924,"timestamp_ms":5}` + "\n",
	)
	w := NewFeedWatcher(feed, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sink := newFeedSink()

	handle, err := w.Watch(types.LowAccuracyProfile(), sink.onSample, sink.onError)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer handle.Stop()

	serr := sink.nextError(t)
	if serr.Kind != types.SensorUnknown {
		t.Errorf("error kind = %s, want unknown", serr.Kind)
	}
	if serr.Fatal() {
		t.Error("a malformed line must not be classified fatal")
	}

	// Delivery continues past the bad line.
	sample := sink.nextSample(t)
	if sample.Lat != 11.9393 {
		t.Errorf("sample after bad line = %+v", sample)
	}
}

func TestFeedWatcher_FeedEndReportsUnavailable(t *testing.T) {
	w := NewFeedWatcher(strings.NewReader(""), slog.New(slog.NewTextHandler(io.Discard, nil)))
	sink := newFeedSink()

	handle, err := w.Watch(types.LowAccuracyProfile(), sink.onSample, sink.onError)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer handle.Stop()

	serr := sink.nextError(t)
	if serr.Kind != types.SensorUnavailable {
		t.Errorf("error kind = %s, want unavailable", serr.Kind)
	}
	if !serr.Fatal() {
		t.Error("an exhausted feed must be classified fatal")
	}
}

func TestFeedWatcher_SurvivesAccuracyRestart(t *testing.T) {
	feed := strings.NewReader(
		`{"lat":1,"lon":1,"timestamp_ms":1}` + "\n" +
			`{"lat":2,"lon":2,"timestamp_ms":2}` + "\n" +
			`{"lat":3,"lon":3,"timestamp_ms":3}` + "\n",
	)
	w := NewFeedWatcher(feed, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sink := newFeedSink()

	handle, err := w.Watch(types.LowAccuracyProfile(), sink.onSample, sink.onError)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if got := sink.nextSample(t); got.TimestampMs != 1 {
		t.Fatalf("first sample ts = %d, want 1", got.TimestampMs)
	}
	handle.Stop()

	// The stop/restart cycle an accuracy switch performs resumes the stream
	// where it left off, with no line lost or re-read.
	handle, err = w.Watch(types.HighAccuracyProfile(), sink.onSample, sink.onError)
	if err != nil {
		t.Fatalf("Watch after restart: %v", err)
	}
	defer handle.Stop()

	if got := sink.nextSample(t); got.TimestampMs != 2 {
		t.Errorf("sample after restart ts = %d, want 2", got.TimestampMs)
	}
	if got := sink.nextSample(t); got.TimestampMs != 3 {
		t.Errorf("next sample ts = %d, want 3", got.TimestampMs)
	}
}

func TestFeedWatcher_DrivesLiveSource(t *testing.T) {
	feed := strings.NewReader(
		`{"lat":12.2343,"lon":79.65,"timestamp_ms":1}` + "\n",
	)
	src, err := NewLiveSource(LiveConfig{
		Watcher:              NewFeedWatcher(feed, slog.New(slog.NewTextHandler(io.Discard, nil))),
		Logger:               slog.New(slog.NewTextHandler(io.Discard, nil)),
		HighAccuracyWithinKm: 50,
	})
	if err != nil {
		t.Fatalf("NewLiveSource: %v", err)
	}
	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer src.Stop()

	select {
	case s := <-src.Samples():
		if s.Lat != 12.2343 {
			t.Errorf("sample lat = %v, want 12.2343", s.Lat)
		}
	case <-time.After(time.Second):
		t.Fatal("no sample flowed through the live source")
	}

	// Feed exhaustion surfaces as the fatal unavailable status.
	select {
	case serr := <-src.Errors():
		if serr.Kind != types.SensorUnavailable {
			t.Errorf("error kind = %s, want unavailable", serr.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("feed end not reported through the live source")
	}
}

// Guard against the delivery goroutine racing a concurrent handle stop.
func TestFeedWatcher_ConcurrentStopIsSafe(t *testing.T) {
	feed := strings.NewReader(strings.Repeat(`{"lat":1,"lon":1,"timestamp_ms":1}`+"\n", 64))
	w := NewFeedWatcher(feed, slog.New(slog.NewTextHandler(io.Discard, nil)))
	sink := newFeedSink()

	handle, err := w.Watch(types.LowAccuracyProfile(), sink.onSample, sink.onError)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		handle.Stop()
	}()
	go func() {
		defer wg.Done()
		handle.Stop()
	}()
	wg.Wait()
}
