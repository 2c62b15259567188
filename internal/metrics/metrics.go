// Package metrics exposes Prometheus collectors for submission traffic.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upload and delete outcomes used as the "result" label.
const (
	ResultOK             = "ok"
	ResultForbidden      = "forbidden"
	ResultDuplicateField = "duplicate_field"
	ResultQuotaExceeded  = "quota_exceeded"
	ResultStoreError     = "store_error"
	ResultInvalid        = "invalid"
	ResultNotFound       = "not_found"
	ResultWarning        = "ok_with_warning"
	ResultError          = "error"
)

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// Metrics holds the portal's Prometheus collectors.
type Metrics struct {
	UploadsTotal        *prometheus.CounterVec // portal_uploads_total{result}
	DeletesTotal        *prometheus.CounterVec // portal_deletes_total{result}
	BytesUploaded       prometheus.Counter     // portal_bytes_uploaded_total
	StoreDeleteFailures prometheus.Counter     // portal_store_delete_failures_total
	OrphansCleaned      prometheus.Counter     // portal_orphans_cleaned_total
	PhaseOne            prometheus.Gauge       // portal_phase_one (1 = submission, 0 = review)
	RequestDuration     *prometheus.HistogramVec
}

// Init registers the collectors with registry (the default registerer when
// nil). Only the first call registers; later calls return the same instance.
func Init(registry prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		f := promauto.With(registry)
		metricsInstance = &Metrics{
			UploadsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Name: "portal_uploads_total",
				Help: "Upload attempts by result",
			}, []string{"result"}),
			DeletesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Name: "portal_deletes_total",
				Help: "File delete attempts by result",
			}, []string{"result"}),
			BytesUploaded: f.NewCounter(prometheus.CounterOpts{
				Name: "portal_bytes_uploaded_total",
				Help: "Bytes accepted into the object store",
			}),
			StoreDeleteFailures: f.NewCounter(prometheus.CounterOpts{
				Name: "portal_store_delete_failures_total",
				Help: "Object deletions that failed after the record was removed",
			}),
			OrphansCleaned: f.NewCounter(prometheus.CounterOpts{
				Name: "portal_orphans_cleaned_total",
				Help: "Objects removed by the storage cleanup orchestrator",
			}),
			PhaseOne: f.NewGauge(prometheus.GaugeOpts{
				Name: "portal_phase_one",
				Help: "1 while the workflow is in the submission phase, 0 during review",
			}),
			RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "portal_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "status"}),
		}
	})
	return metricsInstance
}

// Get returns the initialized metrics, or nil before Init.
func Get() *Metrics {
	return metricsInstance
}

// ObserveUpload counts an upload outcome; bytes are added only on success.
func (m *Metrics) ObserveUpload(result string, bytes int64) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(result).Inc()
	if result == ResultOK && bytes > 0 {
		m.BytesUploaded.Add(float64(bytes))
	}
}

// ObserveDelete counts a delete outcome.
func (m *Metrics) ObserveDelete(result string) {
	if m == nil {
		return
	}
	m.DeletesTotal.WithLabelValues(result).Inc()
	if result == ResultWarning {
		m.StoreDeleteFailures.Inc()
	}
}

// SetPhaseOne records the current workflow phase.
func (m *Metrics) SetPhaseOne(isPhaseOne bool) {
	if m == nil {
		return
	}
	if isPhaseOne {
		m.PhaseOne.Set(1)
	} else {
		m.PhaseOne.Set(0)
	}
}
