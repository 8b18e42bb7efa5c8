package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the segment recorder.
// All methods are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	registry         *prometheus.Registry
	requestsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
	policyFetches    *prometheus.CounterVec
	activePolicies   prometheus.Gauge
	segmentsTotal    *prometheus.CounterVec
	pipelineFailures *prometheus.CounterVec
	segmentsInflight prometheus.Gauge
	uploadDuration   prometheus.Histogram
	uploadBytesTotal prometheus.Counter
	sweptFilesTotal  prometheus.Counter
	storageUsed      prometheus.Gauge
}

// New creates and registers the recorder's collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorder_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorder_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		policyFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_policy_fetches_total",
			Help: "Policy API lookups by result (ok, error)",
		}, []string{"result"}),
		activePolicies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_active_policies",
			Help: "Number of streams that currently hold a recording policy",
		}),
		segmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_segments_total",
			Help: "Finished segment pipelines by outcome",
		}, []string{"outcome"}),
		pipelineFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recorder_pipeline_failures_total",
			Help: "Segment pipelines that failed, by failing stage",
		}, []string{"stage"}),
		segmentsInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_segments_inflight",
			Help: "Segment pipelines currently running",
		}),
		uploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorder_upload_duration_seconds",
			Help:    "Wall time of segment uploads that received a response",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 12),
		}),
		uploadBytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorder_upload_bytes_total",
			Help: "Bytes of segment files uploaded",
		}),
		sweptFilesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorder_swept_files_total",
			Help: "Files removed by the retention sweeper",
		}),
		storageUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recorder_storage_used_percent",
			Help: "Disk usage of the filesystem holding the storage path",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.policyFetches,
		m.activePolicies,
		m.segmentsTotal,
		m.pipelineFailures,
		m.segmentsInflight,
		m.uploadDuration,
		m.uploadBytesTotal,
		m.sweptFilesTotal,
		m.storageUsed,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// ObservePolicyFetch counts one policy API lookup.
func (m *Metrics) ObservePolicyFetch(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.policyFetches.WithLabelValues(result).Inc()
}

// SetActivePolicies sets the active policies gauge.
func (m *Metrics) SetActivePolicies(n int) {
	if m == nil {
		return
	}
	m.activePolicies.Set(float64(n))
}

// SegmentStarted marks a pipeline as in flight.
func (m *Metrics) SegmentStarted() {
	if m == nil {
		return
	}
	m.segmentsInflight.Inc()
}

// SegmentFinished records a pipeline outcome. failedStage is empty unless the
// pipeline failed.
func (m *Metrics) SegmentFinished(outcome, failedStage string) {
	if m == nil {
		return
	}
	m.segmentsInflight.Dec()
	m.segmentsTotal.WithLabelValues(outcome).Inc()
	if failedStage != "" {
		m.pipelineFailures.WithLabelValues(failedStage).Inc()
	}
}

// ObserveUpload records a completed upload.
func (m *Metrics) ObserveUpload(seconds float64, bytes int64) {
	if m == nil {
		return
	}
	m.uploadDuration.Observe(seconds)
	m.uploadBytesTotal.Add(float64(bytes))
}

// AddSweptFiles counts files removed by the retention sweeper.
func (m *Metrics) AddSweptFiles(n int) {
	if m == nil {
		return
	}
	m.sweptFilesTotal.Add(float64(n))
}

// SetStorageUsedPercent sets the storage usage gauge.
func (m *Metrics) SetStorageUsedPercent(p float64) {
	if m == nil {
		return
	}
	m.storageUsed.Set(p)
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active policies).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
