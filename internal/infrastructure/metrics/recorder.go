package metrics

import "time"

// Recorder fans operation metrics out to the collector and, when present,
// the Prometheus exporter. The facade calls it around every public
// operation; either field may be nil.
type Recorder struct {
	collector *Collector
	exporter  *PrometheusExporter
}

// NewRecorder creates a recorder over a collector and an optional exporter.
func NewRecorder(collector *Collector, exporter *PrometheusExporter) *Recorder {
	return &Recorder{collector: collector, exporter: exporter}
}

// Observe records one completed operation: a request, its duration, and an
// error if any. Call with the operation start time, typically deferred.
func (r *Recorder) Observe(operation string, start time.Time, err error) {
	if r == nil {
		return
	}

	duration := time.Since(start).Seconds()

	if r.collector != nil {
		r.collector.RecordRequest(operation)
		r.collector.RecordDuration(operation, duration)
		if err != nil {
			r.collector.RecordError(operation)
		}
	}
	if r.exporter != nil {
		r.exporter.RecordRequest(operation)
		r.exporter.RecordDuration(operation, duration)
		if err != nil {
			r.exporter.RecordError(operation)
		}
	}
}

// Decision records an authorize outcome.
func (r *Recorder) Decision(allowed bool) {
	if r == nil {
		return
	}
	if r.collector != nil {
		r.collector.RecordDecision(allowed)
	}
	if r.exporter != nil {
		r.exporter.RecordDecision(allowed)
	}
}
