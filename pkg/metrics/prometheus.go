package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetchesTotal   *prometheus.CounterVec
	approximations *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	lastValue      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		fetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_fetches_total",
				Help: "Total number of upstream fetch attempts by outcome",
			},
			[]string{"indicator", "outcome"},
		),
		approximations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_approximations_total",
				Help: "Total number of responses served from approximated data",
			},
			[]string{"indicator"},
		),
		storeErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_store_errors_total",
				Help: "Total number of time-series store failures",
			},
			[]string{"op"},
		),
		lastValue: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketpulse_last_value",
				Help: "Last classified value for an indicator",
			},
			[]string{"indicator"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordFetch records an upstream fetch attempt and its outcome.
func (r *Recorder) RecordFetch(kind string, outcome string) {
	r.fetchesTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordApproximation records a response served from approximated data.
func (r *Recorder) RecordApproximation(kind string) {
	r.approximations.WithLabelValues(kind).Inc()
}

// RecordStoreError records a time-series store failure.
func (r *Recorder) RecordStoreError(op string) {
	r.storeErrors.WithLabelValues(op).Inc()
}

// RecordLastValue records the last classified value for an indicator.
func (r *Recorder) RecordLastValue(kind string, value float64) {
	r.lastValue.WithLabelValues(kind).Set(value)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
