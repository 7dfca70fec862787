package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"trainwatch/internal/geo"
	"trainwatch/internal/types"
)

// ControlDispatcher sends user actions back to the foreground engine.
// Implemented by dispatch.ControlPublisher.
type ControlDispatcher interface {
	PublishDismiss(ctx context.Context) error
	PublishSnooze(ctx context.Context, d time.Duration) error
}

// User actions relayed from a rendered alert.
const (
	ActionDismiss = "dismiss"
	ActionSnooze  = "snooze"
)

// Config holds Handler dependencies.
type Config struct {
	Cache      types.RouteCache
	Renderer   types.AlertRenderer
	Control    ControlDispatcher
	Metrics    AlertMetrics
	Thresholds types.Thresholds
	Logger     types.Logger
}

// Handler processes alert queue messages in the background context. It has
// no sensing or route-provider access of its own: everything it needs to
// render must arrive in the message or already sit in the route cache.
type Handler struct {
	cache      types.RouteCache
	renderer   types.AlertRenderer
	control    ControlDispatcher
	metrics    AlertMetrics
	thresholds types.Thresholds
	logger     types.Logger
}

// NewHandler creates a Handler from the config.
func NewHandler(cfg Config) *Handler {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Handler{
		cache:      cfg.Cache,
		renderer:   cfg.Renderer,
		control:    cfg.Control,
		metrics:    metrics,
		thresholds: cfg.Thresholds,
		logger:     cfg.Logger,
	}
}

// Handle processes an SQS event containing one or more alert messages.
// Lambda SQS integration uses partial batch responses: messages that fail
// processing are returned in batchItemFailures so SQS retries only them.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process alert message",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processRecord handles a single queue record. A nil return acknowledges
// the message; an error returns it to the queue for retry.
func (h *Handler) processRecord(ctx context.Context, record events.SQSMessage) error {
	var msg types.AlertMessage
	if err := json.Unmarshal([]byte(record.Body), &msg); err != nil {
		h.logger.Error("discarding undecodable alert message",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure, retrying cannot help.
		return nil
	}

	if sentTimestamp, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sentTimestamp); err == nil {
			h.metrics.RecordQueueLag(ctx, time.Since(sentAt))
		}
	}

	logger := h.logger.With(
		"message_id", msg.MessageID,
		"type", string(msg.Type),
		"trace_id", msg.TraceID,
	)

	switch msg.Type {
	case types.MsgCacheRoute:
		return h.handleCacheRoute(ctx, msg, logger)
	case types.MsgPreAlert:
		return h.handlePreAlert(ctx, msg, logger)
	case types.MsgTriggerAlarm:
		return h.handleTriggerAlarm(ctx, msg, logger)
	default:
		logger.Warn("discarding alert message of unknown type")
		return nil
	}
}

// handleCacheRoute overwrites the offline route cache slot. Sent at trip
// start so alarm text can be composed later without the foreground.
func (h *Handler) handleCacheRoute(ctx context.Context, msg types.AlertMessage, logger types.Logger) error {
	payload, err := msg.DecodeCacheRoute()
	if err != nil {
		logger.Error("discarding CACHE_ROUTE with malformed payload", "error", err.Error())
		return nil
	}

	if err := h.cache.Put(ctx, payload.Route); err != nil {
		h.metrics.RecordCacheWrite(ctx, "error")
		return fmt.Errorf("writing route cache: %w", err)
	}

	h.metrics.RecordCacheWrite(ctx, "success")
	logger.Info("route cache updated",
		"train_number", payload.Route.Plan.Route.TrainNumber,
		"stations", len(payload.Route.Plan.Route.Stations),
	)
	return nil
}

// handlePreAlert renders the transient early-warning notification.
func (h *Handler) handlePreAlert(ctx context.Context, msg types.AlertMessage, logger types.Logger) error {
	payload, err := msg.DecodePreAlert()
	if err != nil {
		logger.Error("discarding PRE_ALERT with malformed payload", "error", err.Error())
		return nil
	}

	alert := types.RenderedAlert{
		Tag:   types.TagPreAlert,
		Title: fmt.Sprintf("Approaching %s", payload.PrevStationName),
		Body: fmt.Sprintf("%s from %s. Your stop %s is next.",
			geo.FormatDistance(payload.DistanceToPrevKm),
			payload.PrevStationName,
			payload.DestStationName,
		),
		Sticky: false,
	}
	if err := h.renderer.Render(ctx, alert); err != nil {
		return fmt.Errorf("rendering pre-alert: %w", err)
	}

	h.metrics.RecordAlertRendered(ctx, alert.Tag)
	logger.Info("pre-alert rendered", "prev_station", payload.PrevStationName)
	return nil
}

// handleTriggerAlarm renders the persistent destination alarm. The station
// name normally travels in the payload; the cached route is the fallback
// when it is missing, which is exactly what the cache slot exists for.
func (h *Handler) handleTriggerAlarm(ctx context.Context, msg types.AlertMessage, logger types.Logger) error {
	payload, err := msg.DecodeTriggerAlarm()
	if err != nil {
		logger.Error("discarding TRIGGER_ALARM with malformed payload", "error", err.Error())
		return nil
	}

	stationName := payload.StationName
	if stationName == "" {
		if cached, cacheErr := h.cache.Get(ctx); cacheErr == nil {
			stationName = cached.Plan.Destination().Name
		} else {
			logger.Warn("destination name missing and route cache unavailable", "error", cacheErr.Error())
			stationName = "your destination"
		}
	}

	alert := types.RenderedAlert{
		Tag:    types.TagDestinationAlarm,
		Title:  fmt.Sprintf("Wake up! Arriving at %s", stationName),
		Body:   fmt.Sprintf("You are %s from %s.", geo.FormatDistance(payload.DistanceKm), stationName),
		Sticky: true,
	}
	if err := h.renderer.Render(ctx, alert); err != nil {
		return fmt.Errorf("rendering destination alarm: %w", err)
	}

	// The early warning is superseded once the alarm itself is up.
	if err := h.renderer.Clear(ctx, types.TagPreAlert); err != nil {
		logger.Warn("failed to clear pre-alert", "error", err.Error())
	}

	h.metrics.RecordAlertRendered(ctx, alert.Tag)
	logger.Info("destination alarm rendered", "station", stationName)
	return nil
}

// HandleAction relays a user action on a rendered alert back to the
// foreground engine and clears the alarm notification. Requires a control
// dispatcher; handlers wired without one cannot relay actions.
func (h *Handler) HandleAction(ctx context.Context, action string) error {
	if h.control == nil {
		return types.NewAppError(types.ErrCodeInternalDispatch,
			"no control dispatcher configured for alert actions", nil)
	}
	switch action {
	case ActionDismiss:
		if err := h.control.PublishDismiss(ctx); err != nil {
			return fmt.Errorf("relaying dismiss: %w", err)
		}
	case ActionSnooze:
		if err := h.control.PublishSnooze(ctx, h.thresholds.Snooze); err != nil {
			return fmt.Errorf("relaying snooze: %w", err)
		}
	default:
		return types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("unknown alert action %q", action), nil)
	}

	if err := h.renderer.Clear(ctx, types.TagDestinationAlarm); err != nil {
		h.logger.Warn("failed to clear destination alarm", "action", action, "error", err.Error())
	}
	h.logger.Info("alert action relayed", "action", action)
	return nil
}

// parseMillisTimestamp parses a millisecond-epoch string, as carried in the
// SQS SentTimestamp attribute.
func parseMillisTimestamp(ms string) (time.Time, error) {
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}
