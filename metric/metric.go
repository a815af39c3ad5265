// Package metric wires the pipeline's own counters into a Prometheus registry:
// a private prometheus.Registry plus a handful of named vectors constructed
// once at startup and passed down by reference rather than resolved through
// a global.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every metric the pipeline records, mirroring the plain
// Counters struct the engine keeps for itself (the Prometheus copy is for
// live scraping; the plain counters remain the source of truth reported at
// EXITED).
type Registry struct {
	reg *prometheus.Registry

	BSMReceivedTotal      prometheus.Counter
	BSMReceivedBytesTotal prometheus.Counter
	BSMSentTotal          prometheus.Counter
	BSMSentBytesTotal     prometheus.Counter
	BSMFilteredTotal      *prometheus.CounterVec
	BSMFilteredBytesTotal prometheus.Counter
	PartitionEOFTotal     prometheus.Counter
	ProduceErrorsTotal    prometheus.Counter
	FilterEvalSeconds     prometheus.Histogram
	PipelineState         *prometheus.GaugeVec
}

// NewRegistry builds a fresh Registry with all metrics registered against a
// private prometheus.Registry (never the global DefaultRegisterer, so tests
// and multiple pipeline instances in one process never collide).
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		BSMReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ppm", Name: "bsm_received_total", Help: "Total BSMs received from the consumer topic.",
		}),
		BSMReceivedBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ppm", Name: "bsm_received_bytes_total", Help: "Total bytes received from the consumer topic.",
		}),
		BSMSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ppm", Name: "bsm_sent_total", Help: "Total BSMs produced to the output topic.",
		}),
		BSMSentBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ppm", Name: "bsm_sent_bytes_total", Help: "Total bytes produced to the output topic.",
		}),
		BSMFilteredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ppm", Name: "bsm_filtered_total", Help: "Total BSMs suppressed, labelled by reason.",
		}, []string{"reason"}),
		BSMFilteredBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ppm", Name: "bsm_filtered_bytes_total", Help: "Total bytes of suppressed BSMs.",
		}),
		PartitionEOFTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ppm", Name: "partition_eof_total", Help: "Total partition-EOF outcomes observed.",
		}),
		ProduceErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ppm", Name: "produce_errors_total", Help: "Total produce attempts that ultimately failed.",
		}),
		FilterEvalSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ppm", Name: "filter_evaluation_seconds", Help: "Time to evaluate the filter policy for one BSM.",
			Buckets: prometheus.DefBuckets,
		}),
		PipelineState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ppm", Name: "pipeline_state", Help: "1 for the current pipeline state, 0 otherwise.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		r.BSMReceivedTotal, r.BSMReceivedBytesTotal,
		r.BSMSentTotal, r.BSMSentBytesTotal,
		r.BSMFilteredTotal, r.BSMFilteredBytesTotal,
		r.PartitionEOFTotal, r.ProduceErrorsTotal,
		r.FilterEvalSeconds, r.PipelineState,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// PrometheusRegistry exposes the underlying registry for promhttp.HandlerFor.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.reg
}

// stateNames lists every pipeline state so SetState can zero the ones not
// currently active; a GaugeVec left partially set would otherwise still
// report stale states as "1" to a scraper.
var stateNames = []string{
	"init", "configuring", "consumer_wait", "running", "draining", "exited",
}

// SetState marks exactly one pipeline state gauge as active.
func (r *Registry) SetState(current string) {
	for _, name := range stateNames {
		v := 0.0
		if name == current {
			v = 1.0
		}
		r.PipelineState.WithLabelValues(name).Set(v)
	}
}

// RecordFilterEval records how long one filter policy evaluation took.
func (r *Registry) RecordFilterEval(d time.Duration) {
	r.FilterEvalSeconds.Observe(d.Seconds())
}

// RecordFiltered increments the labelled suppression counter and its byte total.
func (r *Registry) RecordFiltered(reason string, bytes int) {
	r.BSMFilteredTotal.WithLabelValues(reason).Inc()
	r.BSMFilteredBytesTotal.Add(float64(bytes))
}
