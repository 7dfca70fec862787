// Package dispatch implements the cross-context message protocol transport.
// The foreground engine publishes alert messages (CACHE_ROUTE, PRE_ALERT,
// TRIGGER_ALARM) to the alert queue consumed by the background worker, and
// polls the control queue for the messages traveling the other way
// (DISMISS_ALARM, SNOOZE_ALARM).
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"trainwatch/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// tagAttribute is the SQS message attribute carrying the alert tag, so the
// renderer can apply replace-not-stack semantics without parsing the body.
const tagAttribute = "tag"

// Publisher sends AlertMessages from the foreground to the background
// context. Delivery failures are logged and reported but never retried
// here: the protocol is idempotent-equivalent, so the next CACHE_ROUTE or
// TRIGGER_ALARM dispatch re-establishes consistency on its own.
type Publisher struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

// NewPublisher creates a Publisher targeting the alert queue.
func NewPublisher(client SQSSender, queueURL string, clock types.Clock, logger *slog.Logger) *Publisher {
	if clock == nil {
		clock = types.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:   client,
		queueURL: queueURL,
		clock:    clock,
		logger:   logger,
	}
}

// CacheRoute pushes the full trip plan to the background cache slot. Sent
// proactively at trip start, before any suspension risk, because the
// background context has no sensing or network capability of its own.
func (p *Publisher) CacheRoute(ctx context.Context, route types.CachedRoute) error {
	msg, err := types.NewAlertMessage(uuid.New().String(), types.MsgCacheRoute, "",
		types.CacheRoutePayload{Route: route}, p.clock.Now())
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return p.send(ctx, msg)
}

// PreAlert dispatches the transient early-warning alert.
func (p *Publisher) PreAlert(ctx context.Context, payload types.PreAlertPayload) error {
	msg, err := types.NewAlertMessage(uuid.New().String(), types.MsgPreAlert, types.TagPreAlert,
		payload, p.clock.Now())
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return p.send(ctx, msg)
}

// TriggerAlarm dispatches the persistent destination alarm.
func (p *Publisher) TriggerAlarm(ctx context.Context, payload types.TriggerAlarmPayload) error {
	msg, err := types.NewAlertMessage(uuid.New().String(), types.MsgTriggerAlarm, types.TagDestinationAlarm,
		payload, p.clock.Now())
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return p.send(ctx, msg)
}

// send serializes the envelope and dispatches it to the alert queue.
func (p *Publisher) send(ctx context.Context, msg types.AlertMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("dispatch: marshaling %s message: %w", msg.Type, err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}
	if msg.Tag != "" {
		input.MessageAttributes = map[string]sqsTypes.MessageAttributeValue{
			tagAttribute: {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(msg.Tag)),
			},
		}
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeInternalDispatch,
			fmt.Sprintf("sending %s to alert queue", msg.Type), err)
	}

	p.logger.InfoContext(ctx, "alert message dispatched",
		"message_id", msg.MessageID,
		"type", string(msg.Type),
		"tag", string(msg.Tag),
	)
	return nil
}

// ControlPublisher sends control messages from the background context back
// to the foreground. Used by the background worker when the user acts on a
// rendered alert.
type ControlPublisher struct {
	client   SQSSender
	queueURL string
	clock    types.Clock
	logger   *slog.Logger
}

// NewControlPublisher creates a ControlPublisher targeting the control queue.
func NewControlPublisher(client SQSSender, queueURL string, clock types.Clock, logger *slog.Logger) *ControlPublisher {
	if clock == nil {
		clock = types.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlPublisher{
		client:   client,
		queueURL: queueURL,
		clock:    clock,
		logger:   logger,
	}
}

// PublishDismiss instructs the state machine to dismiss the alarm.
func (p *ControlPublisher) PublishDismiss(ctx context.Context) error {
	return p.send(ctx, types.ControlMessage{
		MessageID: uuid.New().String(),
		Type:      types.MsgDismissAlarm,
		SentAt:    p.clock.Now(),
	})
}

// PublishSnooze instructs the state machine to snooze the alarm.
func (p *ControlPublisher) PublishSnooze(ctx context.Context, d time.Duration) error {
	return p.send(ctx, types.ControlMessage{
		MessageID:  uuid.New().String(),
		Type:       types.MsgSnoozeAlarm,
		SentAt:     p.clock.Now(),
		DurationMs: d.Milliseconds(),
	})
}

func (p *ControlPublisher) send(ctx context.Context, msg types.ControlMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("dispatch: marshaling %s message: %w", msg.Type, err)
	}

	if _, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}); err != nil {
		return types.NewAppError(types.ErrCodeInternalDispatch,
			fmt.Sprintf("sending %s to control queue", msg.Type), err)
	}

	p.logger.InfoContext(ctx, "control message dispatched",
		"message_id", msg.MessageID,
		"type", string(msg.Type),
	)
	return nil
}
