// Package metrics provides the processing metrics sink and its OpenTelemetry
// implementation.
package metrics

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ibs-source/dispatch/router/golang/internal/log"
)

// Sink records processing lifecycle events per pool. Started/Finished calls
// are paired 1:1 regardless of outcome; the active-worker gauge is derived
// from that pairing.
type Sink interface {
	RecordProcessingStarted(poolCode string)
	RecordProcessingFinished(poolCode string)
	RecordProcessingSuccess(poolCode string, durationMs int64)
	RecordProcessingFailure(poolCode string, durationMs int64, errorType string)
	RecordRateLimitExceeded(poolCode string)
}

// OTelSink implements Sink on OpenTelemetry instruments.
type OTelSink struct {
	startedTotal     metric.Int64Counter
	finishedTotal    metric.Int64Counter
	successTotal     metric.Int64Counter
	failureTotal     metric.Int64Counter
	rateLimitedTotal metric.Int64Counter
	activeWorkers    metric.Int64UpDownCounter
	duration         metric.Float64Histogram

	// Shadow of the active-worker gauge per pool, used to clamp it at zero.
	// A clamp firing means a started/finished pairing bug upstream.
	mu     sync.Mutex
	active map[string]int64

	log *log.Logger
}

// NewOTelSink creates a sink on the global meter provider.
func NewOTelSink(logger *log.Logger) (*OTelSink, error) {
	meter := otel.Meter("dispatch-router")

	s := &OTelSink{
		active: make(map[string]int64),
		log:    logger,
	}

	var err error
	if s.startedTotal, err = meter.Int64Counter(
		"dispatch.processing.started.total",
		metric.WithDescription("Messages whose processing pipeline started"),
	); err != nil {
		return nil, fmt.Errorf("failed to create started counter: %w", err)
	}
	if s.finishedTotal, err = meter.Int64Counter(
		"dispatch.processing.finished.total",
		metric.WithDescription("Messages whose processing pipeline finished"),
	); err != nil {
		return nil, fmt.Errorf("failed to create finished counter: %w", err)
	}
	if s.successTotal, err = meter.Int64Counter(
		"dispatch.processing.success.total",
		metric.WithDescription("Messages mediated successfully"),
	); err != nil {
		return nil, fmt.Errorf("failed to create success counter: %w", err)
	}
	if s.failureTotal, err = meter.Int64Counter(
		"dispatch.processing.failure.total",
		metric.WithDescription("Messages whose mediation failed"),
	); err != nil {
		return nil, fmt.Errorf("failed to create failure counter: %w", err)
	}
	if s.rateLimitedTotal, err = meter.Int64Counter(
		"dispatch.processing.ratelimited.total",
		metric.WithDescription("Messages deferred by the per-key rate limiter"),
	); err != nil {
		return nil, fmt.Errorf("failed to create ratelimited counter: %w", err)
	}
	if s.activeWorkers, err = meter.Int64UpDownCounter(
		"dispatch.workers.active",
		metric.WithDescription("Workers currently inside the processing pipeline"),
	); err != nil {
		return nil, fmt.Errorf("failed to create active workers gauge: %w", err)
	}
	if s.duration, err = meter.Float64Histogram(
		"dispatch.mediation.duration",
		metric.WithDescription("Mediation call duration"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return s, nil
}

func poolAttr(poolCode string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("pool", poolCode))
}

// RecordProcessingStarted increments the started counter and the active gauge.
func (s *OTelSink) RecordProcessingStarted(poolCode string) {
	ctx := context.Background()
	s.startedTotal.Add(ctx, 1, poolAttr(poolCode))

	s.mu.Lock()
	s.active[poolCode]++
	s.mu.Unlock()
	s.activeWorkers.Add(ctx, 1, poolAttr(poolCode))
}

// RecordProcessingFinished increments the finished counter and decrements the
// active gauge, clamping it at zero. A clamp indicates unpaired calls.
func (s *OTelSink) RecordProcessingFinished(poolCode string) {
	ctx := context.Background()
	s.finishedTotal.Add(ctx, 1, poolAttr(poolCode))

	s.mu.Lock()
	clamped := s.active[poolCode] <= 0
	if !clamped {
		s.active[poolCode]--
	}
	s.mu.Unlock()

	if clamped {
		s.log.Warn("active-worker gauge for pool %s would go negative; clamped (started/finished pairing bug)", poolCode)
		return
	}
	s.activeWorkers.Add(ctx, -1, poolAttr(poolCode))
}

// RecordProcessingSuccess records a successful mediation and its duration.
func (s *OTelSink) RecordProcessingSuccess(poolCode string, durationMs int64) {
	ctx := context.Background()
	s.successTotal.Add(ctx, 1, poolAttr(poolCode))
	s.duration.Record(ctx, float64(durationMs), poolAttr(poolCode))
}

// RecordProcessingFailure records a failed mediation, its duration and the
// failure class.
func (s *OTelSink) RecordProcessingFailure(poolCode string, durationMs int64, errorType string) {
	ctx := context.Background()
	s.failureTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pool", poolCode),
		attribute.String("error", errorType),
	))
	s.duration.Record(ctx, float64(durationMs), poolAttr(poolCode))
}

// RecordRateLimitExceeded records a dispatch deferred by the rate limiter.
func (s *OTelSink) RecordRateLimitExceeded(poolCode string) {
	s.rateLimitedTotal.Add(context.Background(), 1, poolAttr(poolCode))
}

// Noop is a Sink that records nothing.
type Noop struct{}

func (Noop) RecordProcessingStarted(string)                {}
func (Noop) RecordProcessingFinished(string)               {}
func (Noop) RecordProcessingSuccess(string, int64)         {}
func (Noop) RecordProcessingFailure(string, int64, string) {}
func (Noop) RecordRateLimitExceeded(string)                {}
