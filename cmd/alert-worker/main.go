// Package main is the entrypoint for the alert worker Lambda function.
//
// The worker consumes the alert queue (CACHE_ROUTE, PRE_ALERT,
// TRIGGER_ALARM), maintains the offline route cache in Postgres, and renders
// notifications with replace-not-stack tag semantics. User actions on
// rendered alerts are relayed back to the tracker through the control queue.
//
// Cold start:
//  1. Initialize structured logger.
//  2. Load configuration and AWS SDK configuration.
//  3. Open the pgx pool and ensure the route_cache table exists.
//  4. Initialize SQS, CloudWatch clients, renderer, and metrics.
//  5. Register the handler and call lambda.Start.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"trainwatch/internal/alerting"
	"trainwatch/internal/config"
	"trainwatch/internal/dispatch"
	"trainwatch/internal/routecache"
	"trainwatch/internal/types"
)

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

// Compile-time assertion that slogAdapter implements types.Logger.
var _ types.Logger = (*slogAdapter)(nil)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	logger.Info("alert worker initializing (cold start)")

	handler, err := buildHandler(context.Background(), logger)
	if err != nil {
		logger.Error("cold start failed", "error", err)
		os.Exit(1)
	}

	lambda.Start(handler.Handle)
}

func buildHandler(ctx context.Context, logger *slog.Logger) (*alerting.Handler, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	typedLogger := &slogAdapter{logger: logger}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg)

	cache, err := openRouteCache(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var renderer types.AlertRenderer
	if cfg.Alerting.NotifyEndpoint != "" {
		renderer = alerting.NewWebhookRenderer(cfg.Alerting.NotifyEndpoint,
			&http.Client{Timeout: cfg.Alerting.NotifyTimeout})
	} else {
		logger.Warn("no notification endpoint configured, alerts stay in memory")
		renderer = alerting.NewMemoryRenderer()
	}

	handler := alerting.NewHandler(alerting.Config{
		Cache:      cache,
		Renderer:   renderer,
		Control:    dispatch.NewControlPublisher(sqsClient, cfg.AWS.ControlQueueURL, nil, logger),
		Metrics:    alerting.NewCloudWatchAlertMetrics(cwClient, cfg.AWS.MetricNamespace, typedLogger),
		Thresholds: cfg.Thresholds.Thresholds(),
		Logger:     typedLogger,
	})

	logger.Info("alert worker initialized",
		"metric_namespace", cfg.AWS.MetricNamespace,
		"control_queue", cfg.AWS.ControlQueueURL,
		"notify_endpoint", cfg.Alerting.NotifyEndpoint,
	)
	return handler, nil
}

// openRouteCache opens the pgx pool and ensures the cache table exists.
func openRouteCache(ctx context.Context, cfg *config.Config) (*routecache.Repository, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening database pool: %w", err)
	}

	repo := routecache.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}
