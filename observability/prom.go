package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusFactory implements MetricFactory on top of a prometheus.Registerer.
// Dotted metric names are converted to underscore form before registration
// (prepaid.credit.applied becomes prepaid_credit_applied_total for counters).
type PrometheusFactory struct {
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

var _ MetricFactory = (*PrometheusFactory)(nil)

// NewPrometheusFactory creates a PrometheusFactory. A nil registerer defaults
// to prometheus.DefaultRegisterer.
func NewPrometheusFactory(registerer prometheus.Registerer) *PrometheusFactory {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{
		registerer: registerer,
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName(name) + "_total",
	})
	f.registerer.MustRegister(c)
	f.counters[name] = c
	return c
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Buckets: prometheus.ExponentialBuckets(100, 4, 8),
	})
	f.registerer.MustRegister(h)
	f.histograms[name] = h
	return h
}

func promName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}
