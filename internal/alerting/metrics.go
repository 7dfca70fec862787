package alerting

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"trainwatch/internal/types"
)

// AlertMetrics records worker telemetry. Implementations must never fail
// message processing: metric errors are logged and swallowed.
type AlertMetrics interface {
	// RecordAlertRendered counts a rendered alert by tag.
	RecordAlertRendered(ctx context.Context, tag types.AlertTag)
	// RecordQueueLag records the delay between message enqueue and
	// processing start.
	RecordQueueLag(ctx context.Context, lag time.Duration)
	// RecordCacheWrite counts a route cache write by outcome.
	RecordCacheWrite(ctx context.Context, result string)
}

// NoopMetrics discards all metrics. Used in tests and local runs.
type NoopMetrics struct{}

func (NoopMetrics) RecordAlertRendered(context.Context, types.AlertTag) {}
func (NoopMetrics) RecordQueueLag(context.Context, time.Duration)       {}
func (NoopMetrics) RecordCacheWrite(context.Context, string)            {}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Metric and dimension names emitted to CloudWatch.
const (
	MetricAlertRendered = "AlertRendered"
	MetricQueueLag      = "AlertQueueLag"
	MetricCacheWrite    = "RouteCacheWrite"

	DimTag    = "Tag"
	DimResult = "Result"
)

// CloudWatchAlertMetrics implements AlertMetrics against AWS CloudWatch.
//
// Metrics emitted:
//   - AlertRendered: Dims {Tag} -- one per rendered notification
//   - AlertQueueLag: no dims -- enqueue-to-processing delay in ms
//   - RouteCacheWrite: Dims {Result} -- cache slot write outcomes
type CloudWatchAlertMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// Compile-time assertion that CloudWatchAlertMetrics implements AlertMetrics.
var _ AlertMetrics = (*CloudWatchAlertMetrics)(nil)

// NewCloudWatchAlertMetrics creates metrics publishing to the given
// CloudWatch namespace.
func NewCloudWatchAlertMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchAlertMetrics {
	return &CloudWatchAlertMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordAlertRendered emits an AlertRendered count with the Tag dimension.
func (m *CloudWatchAlertMetrics) RecordAlertRendered(ctx context.Context, tag types.AlertTag) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricAlertRendered),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimTag), Value: aws.String(string(tag))},
		},
	})
}

// RecordQueueLag emits the enqueue-to-processing delay in milliseconds.
func (m *CloudWatchAlertMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricQueueLag),
		Value:      aws.Float64(float64(lag.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

// RecordCacheWrite emits a RouteCacheWrite count with the Result dimension.
func (m *CloudWatchAlertMetrics) RecordCacheWrite(ctx context.Context, result string) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricCacheWrite),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String(DimResult), Value: aws.String(result)},
		},
	})
}

func (m *CloudWatchAlertMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record metric",
			"metric", aws.ToString(datum.MetricName),
			"error", err.Error(),
		)
	}
}
