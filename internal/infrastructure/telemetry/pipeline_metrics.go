// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PipelineMetrics tracks the health of the integration pipeline: outbox
// dispatch outcomes, upstream fetch latency and inbound buffer occupancy.
type PipelineMetrics struct {
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	outboxPublishedTotal    *Counter
	outboxPublishFailed     *Counter
	outboxDeadLetteredTotal *Counter

	// Latency distribution of the bulk stock endpoint
	erpFetchDuration *Histogram

	// Gauge metrics (point-in-time values)
	bufferOccupancy *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// BufferStats exposes occupancy of the inbound buffer for periodic
// collection. This interface keeps the telemetry layer from depending on
// the buffer implementation directly.
type BufferStats interface {
	Len() int
	Cap() int
}

// Fetch outcome labels recorded with erpFetchDuration.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// PipelineMetricsConfig holds configuration for pipeline metrics.
type PipelineMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewPipelineMetrics creates a new PipelineMetrics instance.
func NewPipelineMetrics(cfg PipelineMetricsConfig) (*PipelineMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pm := &PipelineMetrics{
		logger:   logger,
		stopChan: make(chan struct{}),
	}

	var err error

	pm.outboxPublishedTotal, err = NewCounter(
		cfg.Meter,
		"partsbridge_outbox_published_total",
		"Total number of outbox events published to the outbound channel",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	pm.outboxPublishFailed, err = NewCounter(
		cfg.Meter,
		"partsbridge_outbox_publish_failed_total",
		"Total number of failed publish attempts",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	pm.outboxDeadLetteredTotal, err = NewCounter(
		cfg.Meter,
		"partsbridge_outbox_dead_lettered_total",
		"Total number of events moved to the dead-letter state",
		"{events}",
	)
	if err != nil {
		return nil, err
	}

	pm.erpFetchDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "partsbridge_erp_fetch_duration_seconds",
		Description: "Duration of bulk stock fetches against the upstream ERP",
		Unit:        "s",
		Boundaries:  ERPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	pm.bufferOccupancy, err = NewGauge(
		cfg.Meter,
		"partsbridge_buffer_occupancy",
		"Current number of records held in the inbound buffer",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	return pm, nil
}

// RecordPublished records a successful publish of one outbox event.
func (pm *PipelineMetrics) RecordPublished(ctx context.Context, topic string) {
	pm.outboxPublishedTotal.Inc(ctx, AttrTopic.String(topic))
}

// RecordPublishFailed records a failed publish attempt. The event stays in
// the retry pool unless its budget is exhausted.
func (pm *PipelineMetrics) RecordPublishFailed(ctx context.Context, topic string) {
	pm.outboxPublishFailed.Inc(ctx, AttrTopic.String(topic))
}

// RecordDeadLettered records an event exhausting its retry budget.
func (pm *PipelineMetrics) RecordDeadLettered(ctx context.Context, topic string) {
	pm.outboxDeadLetteredTotal.Inc(ctx, AttrTopic.String(topic))
}

// RecordERPFetch records one bulk stock round trip with its outcome.
func (pm *PipelineMetrics) RecordERPFetch(ctx context.Context, elapsed time.Duration, outcome string) {
	pm.erpFetchDuration.RecordDuration(ctx, elapsed, AttrOutcome.String(outcome))
}

// RecordBufferOccupancy records the current inbound buffer fill level.
func (pm *PipelineMetrics) RecordBufferOccupancy(ctx context.Context, length int) {
	pm.bufferOccupancy.Record(ctx, int64(length))
}

// StartPeriodicCollection samples the buffer occupancy gauge every interval
// (default: 15 seconds). Non-blocking; use Stop() to stop collection.
func (pm *PipelineMetrics) StartPeriodicCollection(ctx context.Context, buffer BufferStats, interval time.Duration) {
	pm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 15 * time.Second
		}
		go pm.runPeriodicCollection(ctx, buffer, interval)
	})
}

// runPeriodicCollection runs the collection loop.
func (pm *PipelineMetrics) runPeriodicCollection(ctx context.Context, buffer BufferStats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.RecordBufferOccupancy(ctx, buffer.Len())

	for {
		select {
		case <-pm.stopChan:
			pm.logger.Info("Stopping periodic pipeline metrics collection")
			return
		case <-ctx.Done():
			pm.logger.Info("Context cancelled, stopping periodic pipeline metrics collection")
			return
		case <-ticker.C:
			pm.RecordBufferOccupancy(ctx, buffer.Len())
		}
	}
}

// Stop stops the periodic collection.
func (pm *PipelineMetrics) Stop() {
	pm.stopOnce.Do(func() {
		close(pm.stopChan)
	})
}

// =============================================================================
// Error Types
// =============================================================================

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewPipelineMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
