// Package metrics defines the pluggable metrics Provider abstraction the
// teacher uses across its telemetry stack, with Prometheus, OpenTelemetry
// and no-op backends selectable by configuration.
package metrics

import "net/http"

// CommonOpts names and labels shared by every metric kind.
type CommonOpts struct {
	Name string
	Help string
}

type CounterOpts struct{ CommonOpts }
type GaugeOpts struct{ CommonOpts }
type HistogramOpts struct {
	CommonOpts
	Buckets []float64
}

// Counter is a monotonically increasing metric.
type Counter interface {
	Inc()
	Add(delta float64)
}

// Gauge is an arbitrary up/down metric.
type Gauge interface {
	Set(value float64)
	Add(delta float64)
}

// Histogram records a distribution of observed values.
type Histogram interface {
	Observe(value float64)
}

// Timer observes elapsed durations in seconds.
type Timer interface {
	ObserveDuration(seconds float64)
}

// Provider constructs metric instruments and exposes a health check.
type Provider interface {
	NewCounter(opts CounterOpts) Counter
	NewGauge(opts GaugeOpts) Gauge
	NewHistogram(opts HistogramOpts) Histogram
	NewTimer(opts CommonOpts) Timer
	Health() error
}

// HTTPExposable is implemented by providers that can serve their own
// scrape endpoint (Prometheus).
type HTTPExposable interface {
	MetricsHandler() http.Handler
}

// Select returns the Provider named by backend ("prometheus", "otel", or
// anything else for the no-op provider), matching the teacher's
// selectMetricsProvider config-string dispatch.
func Select(backend string) (Provider, error) {
	switch backend {
	case "prometheus":
		return NewPrometheusProvider()
	case "otel":
		return NewOTelProvider()
	default:
		return NewNoopProvider(), nil
	}
}
