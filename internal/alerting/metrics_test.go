package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"trainwatch/internal/types"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func findDimension(datum cwtypes.MetricDatum, name string) string {
	for _, d := range datum.Dimensions {
		if aws.ToString(d.Name) == name {
			return aws.ToString(d.Value)
		}
	}
	return ""
}

func TestCloudWatchAlertMetrics_RecordAlertRendered(t *testing.T) {
	client := &fakeCloudWatch{}
	m := NewCloudWatchAlertMetrics(client, "TrainWatch", newTestLogger())

	m.RecordAlertRendered(context.Background(), types.TagDestinationAlarm)

	if len(client.inputs) != 1 {
		t.Fatalf("put calls = %d, want 1", len(client.inputs))
	}
	input := client.inputs[0]
	if aws.ToString(input.Namespace) != "TrainWatch" {
		t.Errorf("namespace = %s", aws.ToString(input.Namespace))
	}
	datum := input.MetricData[0]
	if aws.ToString(datum.MetricName) != MetricAlertRendered {
		t.Errorf("metric = %s", aws.ToString(datum.MetricName))
	}
	if got := findDimension(datum, DimTag); got != string(types.TagDestinationAlarm) {
		t.Errorf("tag dimension = %s", got)
	}
}

func TestCloudWatchAlertMetrics_RecordQueueLagInMilliseconds(t *testing.T) {
	client := &fakeCloudWatch{}
	m := NewCloudWatchAlertMetrics(client, "TrainWatch", newTestLogger())

	m.RecordQueueLag(context.Background(), 1500*time.Millisecond)

	datum := client.inputs[0].MetricData[0]
	if aws.ToString(datum.MetricName) != MetricQueueLag {
		t.Errorf("metric = %s", aws.ToString(datum.MetricName))
	}
	if aws.ToFloat64(datum.Value) != 1500 {
		t.Errorf("value = %f, want 1500", aws.ToFloat64(datum.Value))
	}
	if datum.Unit != cwtypes.StandardUnitMilliseconds {
		t.Errorf("unit = %s", datum.Unit)
	}
}

func TestCloudWatchAlertMetrics_PutFailureIsSwallowed(t *testing.T) {
	client := &fakeCloudWatch{err: context.DeadlineExceeded}
	m := NewCloudWatchAlertMetrics(client, "TrainWatch", newTestLogger())

	// Must not panic or propagate; metrics never fail message processing.
	m.RecordCacheWrite(context.Background(), "error")
}
