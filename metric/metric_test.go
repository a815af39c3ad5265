package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistryRegistersEveryMetric(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r)

	// Labelled vectors appear in Gather only once they have a child.
	r.SetState("init")
	r.RecordFiltered("velocity", 0)

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}

	for _, want := range []string{
		"ppm_bsm_received_total",
		"ppm_bsm_received_bytes_total",
		"ppm_bsm_sent_total",
		"ppm_bsm_sent_bytes_total",
		"ppm_bsm_filtered_total",
		"ppm_bsm_filtered_bytes_total",
		"ppm_partition_eof_total",
		"ppm_produce_errors_total",
		"ppm_filter_evaluation_seconds",
		"ppm_pipeline_state",
	} {
		assert.Truef(t, names[want], "expected metric %s to be registered", want)
	}
}

func TestSetStateMarksExactlyOneStateActive(t *testing.T) {
	r := NewRegistry()

	r.SetState("running")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PipelineState.WithLabelValues("running")))
	for _, other := range []string{"init", "configuring", "consumer_wait", "draining", "exited"} {
		assert.Equalf(t, 0.0, testutil.ToFloat64(r.PipelineState.WithLabelValues(other)), "state %s should be inactive", other)
	}

	r.SetState("draining")
	assert.Equal(t, 0.0, testutil.ToFloat64(r.PipelineState.WithLabelValues("running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.PipelineState.WithLabelValues("draining")))
}

func TestRecordFilterEval(t *testing.T) {
	r := NewRegistry()
	r.RecordFilterEval(5 * time.Millisecond)

	metrics, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range metrics {
		if mf.GetName() != "ppm_filter_evaluation_seconds" {
			continue
		}
		found = true
		require.Len(t, mf.GetMetric(), 1)
		assert.Equal(t, uint64(1), mf.GetMetric()[0].GetHistogram().GetSampleCount())
	}
	assert.True(t, found, "expected ppm_filter_evaluation_seconds to be gathered")
}

func TestRecordFiltered(t *testing.T) {
	r := NewRegistry()
	r.RecordFiltered("geofence", 128)
	r.RecordFiltered("geofence", 64)
	r.RecordFiltered("velocity", 32)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.BSMFilteredTotal.WithLabelValues("geofence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.BSMFilteredTotal.WithLabelValues("velocity")))
	assert.Equal(t, 224.0, testutil.ToFloat64(r.BSMFilteredBytesTotal))
}
