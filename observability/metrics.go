// Package observability provides an OpenTelemetry metrics hook for the
// orchestrator. Register it to automatically track submission rates,
// completion counts, failure rates, retries, cancellations, in-flight
// requests, and request durations.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/johnbchron/openai-orch/hook"
	"github.com/johnbchron/openai-orch/ledger"
)

// meterName is the instrumentation scope name for orchestrator metrics.
const meterName = "github.com/johnbchron/openai-orch/observability"

// Compile-time interface checks.
var (
	_ hook.Hook             = (*Metrics)(nil)
	_ hook.RequestSubmitted = (*Metrics)(nil)
	_ hook.RequestStarted   = (*Metrics)(nil)
	_ hook.RequestCompleted = (*Metrics)(nil)
	_ hook.RequestFailed    = (*Metrics)(nil)
	_ hook.RequestRetrying  = (*Metrics)(nil)
	_ hook.RequestCancelled = (*Metrics)(nil)
)

// Metrics records request lifecycle metrics via OpenTelemetry.
type Metrics struct {
	submitted metric.Int64Counter
	completed metric.Int64Counter
	failed    metric.Int64Counter
	retried   metric.Int64Counter
	cancelled metric.Int64Counter
	inflight  metric.Int64UpDownCounter
	duration  metric.Float64Histogram
}

// NewMetrics creates a Metrics hook using the global OTel MeterProvider.
// With no MeterProvider configured, all instruments are noops.
func NewMetrics() *Metrics {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates a Metrics hook with the provided meter.
// Use this variant to inject a specific MeterProvider for testing.
func NewMetricsWithMeter(meter metric.Meter) *Metrics {
	// Instrument creation errors fall back to noops per the OTel API
	// contract, so they are deliberately ignored.
	m := &Metrics{}
	m.submitted, _ = meter.Int64Counter("orch.request.submitted",
		metric.WithDescription("Total requests submitted"))
	m.completed, _ = meter.Int64Counter("orch.request.completed",
		metric.WithDescription("Total requests settled Succeeded"))
	m.failed, _ = meter.Int64Counter("orch.request.failed",
		metric.WithDescription("Total requests settled Failed"))
	m.retried, _ = meter.Int64Counter("orch.request.retried",
		metric.WithDescription("Total retry attempts scheduled"))
	m.cancelled, _ = meter.Int64Counter("orch.request.cancelled",
		metric.WithDescription("Total requests cancelled"))
	m.inflight, _ = meter.Int64UpDownCounter("orch.request.inflight",
		metric.WithDescription("Requests currently executing an attempt"))
	m.duration, _ = meter.Float64Histogram("orch.request.duration",
		metric.WithDescription("Time from submission to terminal state in seconds"),
		metric.WithUnit("s"))
	return m
}

// Name implements hook.Hook.
func (m *Metrics) Name() string { return "observability-metrics" }

// OnRequestSubmitted implements hook.RequestSubmitted.
func (m *Metrics) OnRequestSubmitted(ctx context.Context, _ ledger.Entry) error {
	m.submitted.Add(ctx, 1)
	return nil
}

// OnRequestStarted implements hook.RequestStarted.
func (m *Metrics) OnRequestStarted(ctx context.Context, _ ledger.Entry) error {
	m.inflight.Add(ctx, 1)
	return nil
}

// OnRequestCompleted implements hook.RequestCompleted.
func (m *Metrics) OnRequestCompleted(ctx context.Context, e ledger.Entry, _ time.Duration) error {
	m.inflight.Add(ctx, -1)
	m.completed.Add(ctx, 1)
	m.recordDuration(ctx, e)
	return nil
}

// OnRequestFailed implements hook.RequestFailed.
func (m *Metrics) OnRequestFailed(ctx context.Context, e ledger.Entry, _ error) error {
	m.inflight.Add(ctx, -1)
	m.failed.Add(ctx, 1)
	m.recordDuration(ctx, e)
	return nil
}

// OnRequestRetrying implements hook.RequestRetrying.
func (m *Metrics) OnRequestRetrying(ctx context.Context, _ ledger.Entry, _ int, _ time.Time) error {
	m.inflight.Add(ctx, -1)
	m.retried.Add(ctx, 1)
	return nil
}

// OnRequestCancelled implements hook.RequestCancelled.
func (m *Metrics) OnRequestCancelled(ctx context.Context, _ ledger.Entry) error {
	m.cancelled.Add(ctx, 1)
	return nil
}

func (m *Metrics) recordDuration(ctx context.Context, e ledger.Entry) {
	if e.CompletedAt == nil {
		return
	}
	m.duration.Record(ctx, e.CompletedAt.Sub(e.CreatedAt).Seconds())
}
