package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type prometheusProvider struct {
	registry *prometheus.Registry
}

// NewPrometheusProvider constructs a Provider backed by a dedicated
// Prometheus registry and HTTP handler.
func NewPrometheusProvider() (Provider, error) {
	return &prometheusProvider{registry: prometheus.NewRegistry()}, nil
}

func (p *prometheusProvider) NewCounter(opts CounterOpts) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: opts.Name, Help: opts.Help})
	p.registry.MustRegister(c)
	return promCounter{c}
}

func (p *prometheusProvider) NewGauge(opts GaugeOpts) Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: opts.Name, Help: opts.Help})
	p.registry.MustRegister(g)
	return promGauge{g}
}

func (p *prometheusProvider) NewHistogram(opts HistogramOpts) Histogram {
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: opts.Name, Help: opts.Help, Buckets: buckets})
	p.registry.MustRegister(h)
	return promHistogram{h}
}

func (p *prometheusProvider) NewTimer(opts CommonOpts) Timer {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: opts.Name, Help: opts.Help, Buckets: prometheus.DefBuckets})
	p.registry.MustRegister(h)
	return promHistogram{h}
}

func (p *prometheusProvider) Health() error { return nil }

func (p *prometheusProvider) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

type promCounter struct{ c prometheus.Counter }

func (p promCounter) Inc()          { p.c.Inc() }
func (p promCounter) Add(d float64) { p.c.Add(d) }

type promGauge struct{ g prometheus.Gauge }

func (p promGauge) Set(v float64) { p.g.Set(v) }
func (p promGauge) Add(d float64) { p.g.Add(d) }

type promHistogram struct{ h prometheus.Histogram }

func (p promHistogram) Observe(v float64)         { p.h.Observe(v) }
func (p promHistogram) ObserveDuration(s float64) { p.h.Observe(s) }
