package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type otelProvider struct {
	meter otelmetric.Meter
}

// NewOTelProvider constructs a Provider backed by an OpenTelemetry meter
// sourced from the globally configured MeterProvider, falling back to an
// in-process SDK meter provider if none was configured by the host process.
func NewOTelProvider() (Provider, error) {
	mp := otel.GetMeterProvider()
	if _, ok := mp.(*sdkmetric.MeterProvider); !ok {
		mp = sdkmetric.NewMeterProvider()
	}
	return &otelProvider{meter: mp.Meter("satsim")}, nil
}

func (p *otelProvider) NewCounter(opts CounterOpts) Counter {
	c, _ := p.meter.Float64Counter(opts.Name, otelmetric.WithDescription(opts.Help))
	return otelCounter{ctx: context.Background(), c: c}
}

func (p *otelProvider) NewGauge(opts GaugeOpts) Gauge {
	g, _ := p.meter.Float64UpDownCounter(opts.Name, otelmetric.WithDescription(opts.Help))
	return otelGauge{ctx: context.Background(), g: g}
}

func (p *otelProvider) NewHistogram(opts HistogramOpts) Histogram {
	h, _ := p.meter.Float64Histogram(opts.Name, otelmetric.WithDescription(opts.Help))
	return otelHistogram{ctx: context.Background(), h: h}
}

func (p *otelProvider) NewTimer(opts CommonOpts) Timer {
	h, _ := p.meter.Float64Histogram(opts.Name, otelmetric.WithDescription(opts.Help), otelmetric.WithUnit("s"))
	return otelHistogram{ctx: context.Background(), h: h}
}

func (p *otelProvider) Health() error { return nil }

type otelCounter struct {
	ctx context.Context
	c   otelmetric.Float64Counter
}

func (o otelCounter) Inc()          { o.c.Add(o.ctx, 1) }
func (o otelCounter) Add(d float64) { o.c.Add(o.ctx, d) }

type otelGauge struct {
	ctx context.Context
	g   otelmetric.Float64UpDownCounter
}

func (o otelGauge) Set(v float64) { o.g.Add(o.ctx, v) }
func (o otelGauge) Add(d float64) { o.g.Add(o.ctx, d) }

type otelHistogram struct {
	ctx context.Context
	h   otelmetric.Float64Histogram
}

func (o otelHistogram) Observe(v float64)         { o.h.Record(o.ctx, v) }
func (o otelHistogram) ObserveDuration(s float64) { o.h.Record(o.ctx, s) }
