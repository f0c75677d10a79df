package otel

import (
	"context"
	"fmt"

	config "github.com/apia-framework/a2a/server/config"
	otel "go.opentelemetry.io/otel"
	attribute "go.opentelemetry.io/otel/attribute"
	prometheus "go.opentelemetry.io/otel/exporters/prometheus"
	metric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	resource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
	zap "go.uber.org/zap"
)

// OpenTelemetry defines the operations for telemetry
type OpenTelemetry interface {
	// Task lifecycle metrics
	RecordTaskReceived(ctx context.Context, method string, skillID string)
	RecordTaskCompleted(ctx context.Context, skillID string)
	RecordTaskFailed(ctx context.Context, skillID string, reason string)
	RecordTaskCanceled(ctx context.Context)
	RecordDeadLetter(ctx context.Context, method string)
	RecordStreamingSubscription(ctx context.Context, delta int64)
	RecordRequestDuration(ctx context.Context, method string, durationMs float64)

	// Shutdown the telemetry system
	ShutDown(ctx context.Context) error
}

type OpenTelemetryImpl struct {
	logger        *zap.Logger
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter

	// Metrics
	tasksReceivedCounter     metric.Int64Counter
	tasksCompletedCounter    metric.Int64Counter
	tasksFailedCounter       metric.Int64Counter
	tasksCanceledCounter     metric.Int64Counter
	deadLetterCounter        metric.Int64Counter
	streamingSubsUpDown      metric.Int64UpDownCounter
	requestDurationHistogram metric.Float64Histogram
}

// NewOpenTelemetry creates a new OpenTelemetry implementation with proper dependency injection
func NewOpenTelemetry(cfg *config.Config, logger *zap.Logger) (OpenTelemetry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	o := &OpenTelemetryImpl{
		logger: logger,
	}

	if err := o.initialize(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize opentelemetry: %w", err)
	}

	return o, nil
}

func (o *OpenTelemetryImpl) initialize(cfg *config.Config) error {
	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.AgentName),
		semconv.ServiceVersion(cfg.AgentVersion),
	))
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	o.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(o.meterProvider)
	o.meter = o.meterProvider.Meter("a2a-server")

	if err := o.initializeMetrics(); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return nil
}

func (o *OpenTelemetryImpl) initializeMetrics() error {
	var err error

	o.tasksReceivedCounter, err = o.meter.Int64Counter(
		"a2a_tasks_received_total",
		metric.WithDescription("Total number of task messages received"),
	)
	if err != nil {
		return fmt.Errorf("failed to create tasks received counter: %w", err)
	}

	o.tasksCompletedCounter, err = o.meter.Int64Counter(
		"a2a_tasks_completed_total",
		metric.WithDescription("Total number of tasks completed successfully"),
	)
	if err != nil {
		return fmt.Errorf("failed to create tasks completed counter: %w", err)
	}

	o.tasksFailedCounter, err = o.meter.Int64Counter(
		"a2a_tasks_failed_total",
		metric.WithDescription("Total number of tasks that failed"),
	)
	if err != nil {
		return fmt.Errorf("failed to create tasks failed counter: %w", err)
	}

	o.tasksCanceledCounter, err = o.meter.Int64Counter(
		"a2a_tasks_canceled_total",
		metric.WithDescription("Total number of tasks canceled"),
	)
	if err != nil {
		return fmt.Errorf("failed to create tasks canceled counter: %w", err)
	}

	o.deadLetterCounter, err = o.meter.Int64Counter(
		"a2a_dead_letter_total",
		metric.WithDescription("Total number of requests appended to the dead letter queue"),
	)
	if err != nil {
		return fmt.Errorf("failed to create dead letter counter: %w", err)
	}

	o.streamingSubsUpDown, err = o.meter.Int64UpDownCounter(
		"a2a_streaming_subscriptions",
		metric.WithDescription("Number of live streaming subscriptions"),
	)
	if err != nil {
		return fmt.Errorf("failed to create streaming subscriptions counter: %w", err)
	}

	o.requestDurationHistogram, err = o.meter.Float64Histogram(
		"a2a_request_duration_ms",
		metric.WithDescription("JSON-RPC request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	return nil
}

// RecordTaskReceived records an inbound tasks/send or tasks/sendSubscribe message
func (o *OpenTelemetryImpl) RecordTaskReceived(ctx context.Context, method string, skillID string) {
	o.tasksReceivedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("skill_id", skillID),
	))
}

// RecordTaskCompleted records a successful task completion
func (o *OpenTelemetryImpl) RecordTaskCompleted(ctx context.Context, skillID string) {
	o.tasksCompletedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("skill_id", skillID),
	))
}

// RecordTaskFailed records a handler failure
func (o *OpenTelemetryImpl) RecordTaskFailed(ctx context.Context, skillID string, reason string) {
	o.tasksFailedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("skill_id", skillID),
		attribute.String("reason", reason),
	))
}

// RecordTaskCanceled records a task cancellation
func (o *OpenTelemetryImpl) RecordTaskCanceled(ctx context.Context) {
	o.tasksCanceledCounter.Add(ctx, 1)
}

// RecordDeadLetter records a dead letter queue append
func (o *OpenTelemetryImpl) RecordDeadLetter(ctx context.Context, method string) {
	o.deadLetterCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
	))
}

// RecordStreamingSubscription tracks live subscription count, delta is +1 or -1
func (o *OpenTelemetryImpl) RecordStreamingSubscription(ctx context.Context, delta int64) {
	o.streamingSubsUpDown.Add(ctx, delta)
}

// RecordRequestDuration records how long a JSON-RPC request took to serve
func (o *OpenTelemetryImpl) RecordRequestDuration(ctx context.Context, method string, durationMs float64) {
	o.requestDurationHistogram.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("method", method),
	))
}

// ShutDown gracefully shuts down the telemetry system
func (o *OpenTelemetryImpl) ShutDown(ctx context.Context) error {
	if o.meterProvider != nil {
		return o.meterProvider.Shutdown(ctx)
	}
	return nil
}

// NoopTelemetry is used when telemetry is disabled
type NoopTelemetry struct{}

func (NoopTelemetry) RecordTaskReceived(ctx context.Context, method string, skillID string)  {}
func (NoopTelemetry) RecordTaskCompleted(ctx context.Context, skillID string)                {}
func (NoopTelemetry) RecordTaskFailed(ctx context.Context, skillID string, reason string)    {}
func (NoopTelemetry) RecordTaskCanceled(ctx context.Context)                                 {}
func (NoopTelemetry) RecordDeadLetter(ctx context.Context, method string)                    {}
func (NoopTelemetry) RecordStreamingSubscription(ctx context.Context, delta int64)           {}
func (NoopTelemetry) RecordRequestDuration(ctx context.Context, method string, duration float64) {
}
func (NoopTelemetry) ShutDown(ctx context.Context) error { return nil }
