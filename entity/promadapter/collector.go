// Package promadapter provides a Prometheus implementation of the
// entity.MetricsCollector interface. Metrics are registered lazily on
// first use, with the label set of a metric fixed by its first
// observation.
package promadapter

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eventfold/entity-sourcing-go/entity"
)

// Collector implements entity.MetricsCollector on a Prometheus
// registerer. The interface maps to Prometheus metric types as:
//   - RecordDuration -> HistogramVec, observed in seconds
//   - IncrementCounter -> CounterVec
//   - RecordValue -> GaugeVec
type Collector struct {
	registerer prometheus.Registerer
	namespace  string

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	labelNames map[string][]string
}

// Option defines a functional option for configuring the Collector.
type Option func(*Collector)

// WithNamespace prefixes all metric names with the given namespace.
func WithNamespace(namespace string) Option {
	return func(c *Collector) {
		c.namespace = namespace
	}
}

// NewCollector creates a collector that registers its metrics with the
// given registerer, typically prometheus.DefaultRegisterer.
func NewCollector(registerer prometheus.Registerer, options ...Option) *Collector {
	c := &Collector{
		registerer: registerer,
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		labelNames: make(map[string][]string),
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// RecordDuration observes a duration in seconds on the metric's histogram.
func (c *Collector) RecordDuration(metricName string, duration time.Duration, labels map[string]string) {
	c.mu.Lock()
	histogram, exists := c.histograms[metricName]
	if !exists {
		histogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.namespace,
			Name:      metricName,
			Help:      "entity repository operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, c.namesFor(metricName, labels))
		c.histograms[metricName] = histogram
		c.registerer.MustRegister(histogram)
	}
	values := c.valuesFor(metricName, labels)
	c.mu.Unlock()

	histogram.WithLabelValues(values...).Observe(duration.Seconds())
}

// IncrementCounter increments the metric's counter by one.
func (c *Collector) IncrementCounter(metricName string, labels map[string]string) {
	c.mu.Lock()
	counter, exists := c.counters[metricName]
	if !exists {
		counter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      metricName,
			Help:      "entity repository operation counter",
		}, c.namesFor(metricName, labels))
		c.counters[metricName] = counter
		c.registerer.MustRegister(counter)
	}
	values := c.valuesFor(metricName, labels)
	c.mu.Unlock()

	counter.WithLabelValues(values...).Inc()
}

// RecordValue sets the metric's gauge to the given value.
func (c *Collector) RecordValue(metricName string, value float64, labels map[string]string) {
	c.mu.Lock()
	gauge, exists := c.gauges[metricName]
	if !exists {
		gauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: c.namespace,
			Name:      metricName,
			Help:      "entity repository current value",
		}, c.namesFor(metricName, labels))
		c.gauges[metricName] = gauge
		c.registerer.MustRegister(gauge)
	}
	values := c.valuesFor(metricName, labels)
	c.mu.Unlock()

	gauge.WithLabelValues(values...).Set(value)
}

// namesFor fixes the label names of a metric on first use, sorted for a
// deterministic order. Callers must hold the mutex.
func (c *Collector) namesFor(metricName string, labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)

	c.labelNames[metricName] = names

	return names
}

// valuesFor maps the labels onto the metric's fixed label names. Labels
// unknown to the metric are dropped, missing ones become empty values.
// Callers must hold the mutex.
func (c *Collector) valuesFor(metricName string, labels map[string]string) []string {
	names := c.labelNames[metricName]

	values := make([]string, len(names))
	for i, name := range names {
		values[i] = labels[name]
	}

	return values
}

var _ entity.MetricsCollector = (*Collector)(nil)
