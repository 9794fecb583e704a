package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName identifies lector's meters and tracers.
const InstrumentationName = "github.com/ekisa-team/lector"

// Synthesis and export outcomes.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"

	OutcomeExported  = "exported"
	OutcomeNoContent = "no_content"
	OutcomeError     = "error"
)

// Metrics holds lector's instruments. A nil *Metrics records nothing.
type Metrics struct {
	synthesisCount    metric.Int64Counter
	synthesisDuration metric.Float64Histogram
	inFlight          metric.Int64UpDownCounter
	exportCount       metric.Int64Counter
	evicted           metric.Int64Counter
	deletions         metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(InstrumentationName))
}

// NewMetricsWithMeter creates the instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.synthesisCount, err = meter.Int64Counter("lector.synthesis.count",
		metric.WithDescription("Segment synthesis attempts by status")); err != nil {
		return nil, err
	}
	if m.synthesisDuration, err = meter.Float64Histogram("lector.synthesis.duration",
		metric.WithDescription("Segment synthesis latency"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter("lector.synthesis.in_flight",
		metric.WithDescription("Segments currently being synthesized")); err != nil {
		return nil, err
	}
	if m.exportCount, err = meter.Int64Counter("lector.export.count",
		metric.WithDescription("Export requests by outcome")); err != nil {
		return nil, err
	}
	if m.evicted, err = meter.Int64Counter("lector.cache.evicted",
		metric.WithDescription("Audio files removed by age-based eviction")); err != nil {
		return nil, err
	}
	if m.deletions, err = meter.Int64Counter("lector.cache.deletions",
		metric.WithDescription("Background file deletions by status")); err != nil {
		return nil, err
	}

	return &m, nil
}

// SynthesisStarted increments the in-flight gauge.
func (m *Metrics) SynthesisStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.inFlight.Add(ctx, 1)
}

// SynthesisFinished records one attempt.
func (m *Metrics) SynthesisFinished(ctx context.Context, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.inFlight.Add(ctx, -1)
	m.synthesisCount.Add(ctx, 1, attrs)
	m.synthesisDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// Export records one export request.
func (m *Metrics) Export(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.exportCount.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Evicted records files removed by eviction.
func (m *Metrics) Evicted(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.evicted.Add(ctx, int64(n))
}

// Deleted records a background deletion.
func (m *Metrics) Deleted(ctx context.Context, err error) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusFailed
	}
	m.deletions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
