package position

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"trainwatch/internal/types"
)

// FeedWatcher adapts a stream of newline-delimited JSON position samples
// (stdin, a file, a named pipe) to the SensorWatcher port, so live tracking
// runs from the CLI without a hardware binding. A single goroutine owns the
// reader; watch subscriptions consume from a shared line channel, so the
// accuracy-driven stop/restart cycle neither loses nor re-reads input.
type FeedWatcher struct {
	lines  chan string
	logger *slog.Logger
}

// NewFeedWatcher creates a FeedWatcher over the reader and starts consuming
// it immediately.
func NewFeedWatcher(r io.Reader, logger *slog.Logger) *FeedWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &FeedWatcher{
		lines:  make(chan string),
		logger: logger,
	}
	go w.read(r)
	return w
}

func (w *FeedWatcher) read(r io.Reader) {
	defer close(w.lines)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		w.lines <- line
	}
	if err := scanner.Err(); err != nil {
		w.logger.Warn("position feed read failed", "error", err)
	}
}

// Watch starts a subscription delivering decoded samples through onSample.
// The profile only selects logging detail; a feed has no accuracy to tune,
// but honoring the stop/restart cycle keeps the port contract intact.
func (w *FeedWatcher) Watch(profile types.AccuracyProfile, onSample func(types.PositionSample), onError func(*types.SensorError)) (WatchHandle, error) {
	h := &feedHandle{stop: make(chan struct{})}
	go w.deliver(h.stop, onSample, onError)
	w.logger.Info("position feed watch started", "high_accuracy", profile.HighAccuracy)
	return h, nil
}

func (w *FeedWatcher) deliver(stop <-chan struct{}, onSample func(types.PositionSample), onError func(*types.SensorError)) {
	for {
		select {
		case <-stop:
			return
		case line, ok := <-w.lines:
			if !ok {
				onError(&types.SensorError{
					Kind:    types.SensorUnavailable,
					Message: "position feed ended",
				})
				return
			}
			var sample types.PositionSample
			if err := json.Unmarshal([]byte(line), &sample); err != nil {
				onError(&types.SensorError{
					Kind:    types.SensorUnknown,
					Message: fmt.Sprintf("undecodable position line: %v", err),
				})
				continue
			}
			if sample.TimestampMs == 0 {
				sample.TimestampMs = time.Now().UnixMilli()
			}
			onSample(sample)
		}
	}
}

type feedHandle struct {
	stop chan struct{}
	once sync.Once
}

func (h *feedHandle) Stop() {
	h.once.Do(func() { close(h.stop) })
}
