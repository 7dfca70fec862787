// Package main is the foreground tracker process. It resolves a route for
// the requested train, builds the trip plan, and runs the sampling loop that
// drives the alarm state machine.
//
// With SQS_ALERTS configured, alert messages go to the queue consumed by the
// alert worker, and SQS_CONTROL (if set) feeds dismiss/snooze back into the
// loop. Without queues the tracker runs self-contained: messages are handed
// to the in-process alerting handler and rendered to the log, which is the
// demo/local mode.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"trainwatch/internal/alerting"
	"trainwatch/internal/config"
	"trainwatch/internal/dispatch"
	"trainwatch/internal/engine"
	"trainwatch/internal/position"
	"trainwatch/internal/provider"
	"trainwatch/internal/types"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	trainNumber := flag.String("train", "", "train number (empty uses the demo train)")
	destIndex := flag.Int("dest", -1, "destination station index (-1 means the final stop)")
	speed := flag.Float64("speed", 0, "simulation speed multiplier override")
	sourceMode := flag.String("source", "simulated", "position source: simulated or live")
	feedPath := flag.String("feed", "-", "live mode position feed, NDJSON samples (- means stdin)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("tracker starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	routeProvider, err := newRouteProvider(cfg, logger)
	if err != nil {
		return err
	}

	route, err := routeProvider.FetchRoute(ctx, *trainNumber)
	if err != nil {
		return fmt.Errorf("resolving route: %w", err)
	}

	plan := types.TripPlan{Route: *route, DestinationIndex: *destIndex}
	if plan.DestinationIndex < 0 {
		plan.DestinationIndex = len(route.Stations) - 1
	}
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("building trip plan: %w", err)
	}

	source, mode, err := newPositionSource(cfg, plan, *sourceMode, *feedPath, *speed, logger)
	if err != nil {
		return fmt.Errorf("building position source: %w", err)
	}

	publisher, controls, background, err := wireDispatch(ctx, cfg, logger)
	if err != nil {
		return err
	}

	trip, err := engine.NewTrip(engine.Config{
		Plan:       plan,
		Mode:       mode,
		Thresholds: cfg.Thresholds.Thresholds(),
		Publisher:  publisher,
		Source:     source,
		Controls:   controls,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Trip completion (or failure) winds down the control loop too.
		defer stop()
		return trip.Run(gCtx)
	})
	if background != nil {
		g.Go(func() error { return background(gCtx) })
	}
	return g.Wait()
}

// newPositionSource selects the position source. Simulated walks the route
// at the configured pace; live decodes NDJSON samples from the feed and runs
// them through the adaptive accuracy policy.
func newPositionSource(cfg *config.Config, plan types.TripPlan, mode, feedPath string, speed float64, logger *slog.Logger) (position.Source, types.SourceMode, error) {
	switch mode {
	case "simulated":
		simParams := cfg.Simulation.Params()
		if speed > 0 {
			simParams.SpeedMultiplier = speed
		}
		source, err := position.NewSimulatedSource(plan.Route, simParams, logger)
		if err != nil {
			return nil, "", err
		}
		return source, types.SourceSimulated, nil
	case "live":
		feed, err := openFeed(feedPath)
		if err != nil {
			return nil, "", err
		}
		source, err := position.NewLiveSource(position.LiveConfig{
			Watcher:              position.NewFeedWatcher(feed, logger),
			Logger:               logger,
			HighAccuracyWithinKm: cfg.Sampling.HighAccuracyWithinKm,
		})
		if err != nil {
			return nil, "", err
		}
		return source, types.SourceLive, nil
	default:
		return nil, "", fmt.Errorf("unknown source mode %q", mode)
	}
}

func openFeed(path string) (io.Reader, error) {
	if path == "" || path == "-" {
		return os.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening position feed: %w", err)
	}
	return f, nil
}

// newRouteProvider selects the configured route source.
func newRouteProvider(cfg *config.Config, logger *slog.Logger) (types.RouteProvider, error) {
	switch cfg.Provider.Mode {
	case "http":
		client := provider.NewBaseClient(
			&http.Client{Timeout: cfg.Provider.Timeout},
			"route-provider",
			provider.DefaultRetryPolicy(),
			cfg.Provider.UserAgent,
		)
		return provider.NewHTTPProvider(cfg.Provider.BaseURL, client, logger), nil
	case "demo":
		return provider.NewDemoProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider mode %q", cfg.Provider.Mode)
	}
}

// wireDispatch builds the alert publisher and, when a control queue is
// configured, the control message stream. Returns an optional background
// loop to run alongside the trip.
func wireDispatch(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engine.AlertPublisher, <-chan types.ControlMessage, func(context.Context) error, error) {
	if cfg.AWS.AlertQueueURL == "" {
		logger.Info("no alert queue configured, rendering alerts in process")
		return newLoopbackPublisher(cfg, logger), nil, nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})

	publisher := dispatch.NewPublisher(sqsClient, cfg.AWS.AlertQueueURL, nil, logger)

	if cfg.AWS.ControlQueueURL == "" {
		return publisher, nil, nil, nil
	}

	receiver := dispatch.NewControlReceiver(sqsClient, cfg.AWS.ControlQueueURL, logger)
	controls := make(chan types.ControlMessage)
	loop := func(gCtx context.Context) error {
		err := receiver.Run(gCtx, controls)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return publisher, controls, loop, nil
}

// loopbackPublisher feeds alert messages straight into the in-process
// alerting handler, so a queue-less local run still exercises the full
// pipeline down to rendering.
type loopbackPublisher struct {
	handler *alerting.Handler
	clock   types.Clock
}

func newLoopbackPublisher(cfg *config.Config, logger *slog.Logger) *loopbackPublisher {
	typed := &slogAdapter{logger: logger}
	return &loopbackPublisher{
		handler: alerting.NewHandler(alerting.Config{
			Cache:      noopCache{},
			Renderer:   &logRenderer{logger: logger},
			Thresholds: cfg.Thresholds.Thresholds(),
			Logger:     typed,
		}),
		clock: types.SystemClock{},
	}
}

func (p *loopbackPublisher) CacheRoute(ctx context.Context, route types.CachedRoute) error {
	return p.deliver(ctx, types.MsgCacheRoute, "", types.CacheRoutePayload{Route: route})
}

func (p *loopbackPublisher) PreAlert(ctx context.Context, payload types.PreAlertPayload) error {
	return p.deliver(ctx, types.MsgPreAlert, types.TagPreAlert, payload)
}

func (p *loopbackPublisher) TriggerAlarm(ctx context.Context, payload types.TriggerAlarmPayload) error {
	return p.deliver(ctx, types.MsgTriggerAlarm, types.TagDestinationAlarm, payload)
}

func (p *loopbackPublisher) deliver(ctx context.Context, msgType types.AlertMessageType, tag types.AlertTag, payload any) error {
	msg, err := types.NewAlertMessage(uuid.New().String(), msgType, tag, payload, p.clock.Now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	resp, err := p.handler.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: msg.MessageID, Body: string(body)},
	}})
	if err != nil {
		return err
	}
	if len(resp.BatchItemFailures) > 0 {
		return types.NewAppError(types.ErrCodeInternalDispatch, "in-process alert handling failed", nil)
	}
	return nil
}

// noopCache drops cache writes; a queue-less run has no background context
// to read them.
type noopCache struct{}

func (noopCache) Put(context.Context, types.CachedRoute) error { return nil }
func (noopCache) Get(context.Context) (*types.CachedRoute, error) {
	return nil, types.NewAppError(types.ErrCodeNotFoundRouteCache, "route cache not configured", nil)
}

// logRenderer renders alerts to the structured log.
type logRenderer struct {
	logger *slog.Logger
}

func (r *logRenderer) Render(ctx context.Context, alert types.RenderedAlert) error {
	r.logger.InfoContext(ctx, "ALERT",
		"tag", string(alert.Tag),
		"title", alert.Title,
		"body", alert.Body,
		"sticky", alert.Sticky,
	)
	return nil
}

func (r *logRenderer) Clear(ctx context.Context, tag types.AlertTag) error {
	r.logger.InfoContext(ctx, "alert cleared", "tag", string(tag))
	return nil
}

// slogAdapter wraps *slog.Logger to implement types.Logger. slog satisfies
// Info/Warn/Error but its With returns *slog.Logger, so an adapter is
// necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
