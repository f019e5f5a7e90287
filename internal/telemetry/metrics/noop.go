package metrics

type noopProvider struct{}

// NewNoopProvider returns a Provider whose instruments discard every
// observation, used when metrics are disabled.
func NewNoopProvider() Provider { return noopProvider{} }

func (noopProvider) NewCounter(CounterOpts) Counter      { return noopInstrument{} }
func (noopProvider) NewGauge(GaugeOpts) Gauge            { return noopInstrument{} }
func (noopProvider) NewHistogram(HistogramOpts) Histogram { return noopInstrument{} }
func (noopProvider) NewTimer(CommonOpts) Timer           { return noopInstrument{} }
func (noopProvider) Health() error                       { return nil }

type noopInstrument struct{}

func (noopInstrument) Inc()                        {}
func (noopInstrument) Add(float64)                 {}
func (noopInstrument) Set(float64)                 {}
func (noopInstrument) Observe(float64)             {}
func (noopInstrument) ObserveDuration(float64)     {}
