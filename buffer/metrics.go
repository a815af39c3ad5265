package buffer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/trailmark-labs/ppm/metric"
)

// bufferMetrics holds Prometheus metrics for buffer operations.
type bufferMetrics struct {
	writes    prometheus.Counter
	reads     prometheus.Counter
	overflows prometheus.Counter
	drops     prometheus.Counter

	size        prometheus.Gauge
	utilization prometheus.Gauge
}

// newBufferMetrics creates and registers buffer metrics against registry's
// private Prometheus registry, labeled by prefix so multiple buffers (the
// produce-retry buffer, any future one) don't collide.
func newBufferMetrics(registry *metric.Registry, prefix string) (*bufferMetrics, error) {
	m := &bufferMetrics{
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ppm",
			Subsystem:   "buffer",
			Name:        "writes_total",
			ConstLabels: prometheus.Labels{"buffer": prefix},
			Help:        "Total number of buffer write operations",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ppm",
			Subsystem:   "buffer",
			Name:        "reads_total",
			ConstLabels: prometheus.Labels{"buffer": prefix},
			Help:        "Total number of buffer read operations",
		}),
		overflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ppm",
			Subsystem:   "buffer",
			Name:        "overflows_total",
			ConstLabels: prometheus.Labels{"buffer": prefix},
			Help:        "Total number of buffer overflow events",
		}),
		drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "ppm",
			Subsystem:   "buffer",
			Name:        "drops_total",
			ConstLabels: prometheus.Labels{"buffer": prefix},
			Help:        "Total number of items dropped due to overflow",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ppm",
			Subsystem:   "buffer",
			Name:        "size",
			ConstLabels: prometheus.Labels{"buffer": prefix},
			Help:        "Current number of items in buffer",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "ppm",
			Subsystem:   "buffer",
			Name:        "utilization",
			ConstLabels: prometheus.Labels{"buffer": prefix},
			Help:        "Buffer utilization as a fraction of capacity",
		}),
	}

	reg := registry.PrometheusRegistry()
	for _, c := range []prometheus.Collector{m.writes, m.reads, m.overflows, m.drops, m.size, m.utilization} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *bufferMetrics) recordWrite(size, capacity int) {
	m.writes.Inc()
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}

func (m *bufferMetrics) recordRead(size, capacity int) {
	m.reads.Inc()
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}

func (m *bufferMetrics) recordOverflow() {
	m.overflows.Inc()
}

func (m *bufferMetrics) recordDrop() {
	m.drops.Inc()
}
