package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := Init(reg)
	assert.Same(t, m, Init(reg))
	assert.Same(t, m, Get())

	m.ObserveUpload(ResultOK, 100)
	m.ObserveUpload(ResultQuotaExceeded, 500)
	m.ObserveDelete(ResultWarning)
	m.SetPhaseOne(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues(ResultQuotaExceeded)))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.BytesUploaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreDeleteFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PhaseOne))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveUpload(ResultOK, 1)
	m.ObserveDelete(ResultOK)
	m.SetPhaseOne(true)
}
