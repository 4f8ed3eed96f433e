package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys shared by migration metrics and spans
var (
	AttrDoctype = attribute.Key("doctype")
	AttrKind    = attribute.Key("migration.kind")
	AttrStatus  = attribute.Key("status")
	AttrJobType = attribute.Key("job.type")

	AttrHTTPMethod     = attribute.Key("http.method")
	AttrHTTPRoute      = attribute.Key("http.route")
	AttrHTTPStatusCode = attribute.Key("http.status_code")
)

// Histogram bucket boundaries in seconds
var (
	HTTPDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	ItemDurationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
	JobDurationBuckets  = []float64{1, 5, 15, 60, 300, 900, 3600}
)

// Instruments creates instruments on one meter. Creation errors are
// collected and reported by Err, so a set of instruments is declared
// without an error check per instrument.
type Instruments struct {
	meter metric.Meter
	errs  []error
}

// NewInstruments returns a builder for instruments on meter
func NewInstruments(meter metric.Meter) *Instruments {
	return &Instruments{meter: meter}
}

// Counter declares a monotonic int64 counter
func (in *Instruments) Counter(name, description, unit string) *Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	in.track(name, err)
	return &Counter{counter: c}
}

// Gauge declares an int64 up-down counter
func (in *Instruments) Gauge(name, description, unit string) *Gauge {
	g, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(description), metric.WithUnit(unit))
	in.track(name, err)
	return &Gauge{counter: g}
}

// Histogram declares a float64 histogram with explicit bucket boundaries
func (in *Instruments) Histogram(name, description, unit string, buckets []float64) *Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(description), metric.WithUnit(unit)}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	in.track(name, err)
	return &Histogram{histogram: h}
}

// Err returns every creation error joined, or nil
func (in *Instruments) Err() error {
	return errors.Join(in.errs...)
}

func (in *Instruments) track(name string, err error) {
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("instrument %s: %w", name, err))
	}
}

// Counter counts events
type Counter struct {
	counter metric.Int64Counter
}

// Add adds n
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	c.counter.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Inc adds one
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// Gauge tracks a value that moves both ways, such as in-flight requests
type Gauge struct {
	counter metric.Int64UpDownCounter
}

// Add moves the gauge by delta
func (g *Gauge) Add(ctx context.Context, delta int64, attrs ...attribute.KeyValue) {
	g.counter.Add(ctx, delta, metric.WithAttributes(attrs...))
}

// Histogram records a distribution
type Histogram struct {
	histogram metric.Float64Histogram
}

// Record records v
func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	h.histogram.Record(ctx, v, metric.WithAttributes(attrs...))
}

// RecordDuration records d in seconds
func (h *Histogram) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	h.Record(ctx, d.Seconds(), attrs...)
}
