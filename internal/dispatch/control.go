package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"trainwatch/internal/types"
)

// defaultReceiveBackoff is the pause after a failed receive. Without it a
// persistent SQS outage turns the poll loop into a busy loop.
const defaultReceiveBackoff = 2 * time.Second

// SQSReceiver abstracts the SQS receive/delete operations used by the
// foreground control loop.
type SQSReceiver interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// ControlReceiver long-polls the control queue and forwards decoded
// messages to the foreground event loop. Delivery is at-least-once;
// dismiss and snooze are idempotent to apply, so duplicates are harmless.
type ControlReceiver struct {
	client   SQSReceiver
	queueURL string
	logger   *slog.Logger

	// waitTimeSeconds is the SQS long-poll duration per receive call.
	waitTimeSeconds int32
	// backoff is the delay before retrying after a receive error.
	backoff time.Duration
}

// NewControlReceiver creates a ControlReceiver for the control queue.
func NewControlReceiver(client SQSReceiver, queueURL string, logger *slog.Logger) *ControlReceiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlReceiver{
		client:          client,
		queueURL:        queueURL,
		logger:          logger,
		waitTimeSeconds: 10,
		backoff:         defaultReceiveBackoff,
	}
}

// Run polls until the context is canceled, sending decoded control
// messages to out. Undecodable bodies are deleted and skipped; receive
// errors are logged and polling resumes after a short backoff. The out
// channel closes when Run returns.
func (r *ControlReceiver) Run(ctx context.Context, out chan<- types.ControlMessage) error {
	defer close(out)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, err := r.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(r.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     r.waitTimeSeconds,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.ErrorContext(ctx, "control queue receive failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
			continue
		}

		for _, raw := range resp.Messages {
			var msg types.ControlMessage
			if err := json.Unmarshal([]byte(aws.ToString(raw.Body)), &msg); err != nil {
				r.logger.WarnContext(ctx, "discarding undecodable control message",
					"message_id", aws.ToString(raw.MessageId),
					"error", err,
				)
				r.delete(ctx, raw.ReceiptHandle)
				continue
			}

			select {
			case out <- msg:
				r.delete(ctx, raw.ReceiptHandle)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// delete acknowledges a processed message. Failure is logged only; SQS
// will re-deliver and the consumer tolerates duplicates.
func (r *ControlReceiver) delete(ctx context.Context, receiptHandle *string) {
	if _, err := r.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(r.queueURL),
		ReceiptHandle: receiptHandle,
	}); err != nil {
		r.logger.WarnContext(ctx, "failed to delete control message", "error", err)
	}
}
