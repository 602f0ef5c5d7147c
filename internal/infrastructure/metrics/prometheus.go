package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exports engine metrics in Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	opRequests   *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	opErrors     *prometheus.CounterVec
	decisions    *prometheus.CounterVec
	cacheHitRate prometheus.Gauge
	cacheKeys    prometheus.Gauge
}

// NewPrometheusExporter creates a new Prometheus exporter.
func NewPrometheusExporter(collector *Collector) *PrometheusExporter {
	return &PrometheusExporter{
		collector: collector,
		opRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "security_operations_total",
				Help: "Total number of security facade operations",
			},
			[]string{"operation"},
		),
		opDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "security_operation_duration_seconds",
				Help:    "Duration of security facade operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		),
		opErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "security_operation_errors_total",
				Help: "Total number of security facade operation errors",
			},
			[]string{"operation"},
		),
		decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "security_authorize_decisions_total",
				Help: "Authorize outcomes partitioned by decision",
			},
			[]string{"decision"},
		),
		cacheHitRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "security_directory_cache_hit_rate",
			Help: "Directory cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "security_directory_cache_keys_current",
			Help: "Current number of keys in the directory cache",
		}),
	}
}

// Update refreshes gauge metrics from the collector. Counters are updated
// inline by the recorder; call this periodically (e.g., every 10 seconds).
func (e *PrometheusExporter) Update() {
	cacheMetrics := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(cacheMetrics.HitRate)
	e.cacheKeys.Set(float64(cacheMetrics.KeysCurrent))
}

// RecordRequest records an operation call in Prometheus.
func (e *PrometheusExporter) RecordRequest(operation string) {
	e.opRequests.WithLabelValues(operation).Inc()
}

// RecordDuration records an operation duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(operation string, durationSeconds float64) {
	e.opDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordError records an operation error in Prometheus.
func (e *PrometheusExporter) RecordError(operation string) {
	e.opErrors.WithLabelValues(operation).Inc()
}

// RecordDecision records an authorize outcome in Prometheus.
func (e *PrometheusExporter) RecordDecision(allowed bool) {
	if allowed {
		e.decisions.WithLabelValues("allowed").Inc()
	} else {
		e.decisions.WithLabelValues("denied").Inc()
	}
}
