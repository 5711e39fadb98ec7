package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registryOnce    sync.Once
	defaultRegistry *prometheus.Registry
)

// GetRegistry returns the process-wide registry served at /metrics.
func GetRegistry() *prometheus.Registry {
	registryOnce.Do(func() {
		defaultRegistry = prometheus.NewRegistry()
		defaultRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return defaultRegistry
}

// Shared histogram buckets.
var (
	// CountBuckets suits small integer sizes (batch counts, queue depths).
	CountBuckets = prometheus.ExponentialBuckets(1, 2, 10)
	// DurationBuckets suits operation latencies from 1ms to ~16s.
	DurationBuckets = prometheus.ExponentialBuckets(0.001, 2, 15)
)

// ComponentRegistry namespaces a component's collectors and registers
// them with the shared registry. Re-registering an identical collector
// (as tests constructing a component twice will) yields the existing one
// instead of panicking.
type ComponentRegistry struct {
	namespace string
	subsystem string
}

// NewComponentRegistry creates a registry scope for one component.
func NewComponentRegistry(namespace, subsystem string) *ComponentRegistry {
	return &ComponentRegistry{namespace: namespace, subsystem: subsystem}
}

func register[C prometheus.Collector](c C) C {
	if err := GetRegistry().Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// NewGauge creates and registers a namespaced gauge.
func (r *ComponentRegistry) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(prometheus.NewGauge(opts))
}

// NewGaugeVec creates and registers a namespaced gauge vector.
func (r *ComponentRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(prometheus.NewGaugeVec(opts, labels))
}

// NewCounter creates and registers a namespaced counter.
func (r *ComponentRegistry) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(prometheus.NewCounter(opts))
}

// NewCounterVec creates and registers a namespaced counter vector.
func (r *ComponentRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(prometheus.NewCounterVec(opts, labels))
}

// NewHistogram creates and registers a namespaced histogram.
func (r *ComponentRegistry) NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	opts.Namespace, opts.Subsystem = r.namespace, r.subsystem
	return register(prometheus.NewHistogram(opts))
}
