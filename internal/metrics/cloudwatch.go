// Package metrics publishes notifier metrics to CloudWatch.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"sitewatch/internal/types"
)

// Namespace is the CloudWatch namespace for every metric.
const Namespace = "SiteWatch/Notifier"

// Metric and dimension names.
const (
	MetricTargetsProcessed  = "TargetsProcessed"
	MetricTargetsFailed     = "TargetsFailed"
	MetricNotificationsSent = "NotificationsSent"
	MetricRunDuration       = "RunDuration"
	MetricDeliveryAttempt   = "DeliveryAttempt"
	MetricQueueLag          = "EmailQueueLag"

	DimMode   = "Mode"
	DimResult = "Result"
)

// Delivery results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDropped = "dropped"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics emits run and delivery metrics.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics. An empty namespace uses
// Namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if namespace == "" {
		namespace = Namespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

func mode(debug bool) string {
	if debug {
		return "debug"
	}
	return "production"
}

// RecordRun emits the batch counters and duration of s in one call,
// dimensioned by run mode.
func (m *CloudWatchMetrics) RecordRun(ctx context.Context, s *types.RunSummary) error {
	dims := []cwtypes.Dimension{{Name: aws.String(DimMode), Value: aws.String(mode(s.DebugMode))}}
	ts := aws.Time(s.FinishedAt)
	datum := func(name string, v float64, unit cwtypes.StandardUnit) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(v),
			Unit:       unit,
			Dimensions: dims,
			Timestamp:  ts,
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			datum(MetricTargetsProcessed, float64(s.TotalTargets), cwtypes.StandardUnitCount),
			datum(MetricTargetsFailed, float64(s.Failed), cwtypes.StandardUnitCount),
			datum(MetricNotificationsSent, float64(s.NotificationsSent), cwtypes.StandardUnitCount),
			datum(MetricRunDuration, float64(s.FinishedAt.Sub(s.StartedAt).Milliseconds()), cwtypes.StandardUnitMilliseconds),
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		return fmt.Errorf("put run metrics: %w", err)
	}
	return nil
}

// RecordDelivery emits one DeliveryAttempt with the Result dimension.
func (m *CloudWatchMetrics) RecordDelivery(ctx context.Context, result string) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricDeliveryAttempt),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(DimResult), Value: aws.String(result)},
				},
			},
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record delivery metric", "error", err, "result", result)
	}
}

// RecordQueueLag emits the time between enqueue and worker pickup.
func (m *CloudWatchMetrics) RecordQueueLag(ctx context.Context, lag time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(MetricQueueLag),
				Value:      aws.Float64(float64(lag.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record queue lag metric", "error", err, "lag_ms", lag.Milliseconds())
	}
}

// Noop discards everything. Used locally and when metrics are disabled.
type Noop struct{}

func (Noop) RecordRun(context.Context, *types.RunSummary) error { return nil }
func (Noop) RecordDelivery(context.Context, string)             {}
func (Noop) RecordQueueLag(context.Context, time.Duration)      {}
