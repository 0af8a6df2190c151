package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	recordTotal    *prometheus.CounterVec
	recordDuration *prometheus.HistogramVec
	recordInFlight prometheus.Gauge
	eventLag       prometheus.Histogram
	purgedTotal    prometheus.Counter
	purgeRunsTotal *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	serviceLabel := prometheus.Labels{"service": service}

	recordTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snap",
			Subsystem: "worker",
			Name:      "record_total",
			Help:      "Total recorded extraction events by status.",
		},
		[]string{"service", "status"},
	)
	recordDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "snap",
			Subsystem: "worker",
			Name:      "record_duration_seconds",
			Help:      "Extraction event persistence duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	recordInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "snap",
			Subsystem:   "worker",
			Name:        "record_in_flight",
			Help:        "Number of extraction events being persisted.",
			ConstLabels: serviceLabel,
		},
	)
	eventLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "snap",
			Subsystem:   "worker",
			Name:        "event_lag_seconds",
			Help:        "Delay between extraction completion and persistence start.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: serviceLabel,
		},
	)
	purgedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "snap",
			Subsystem:   "retention",
			Name:        "purged_records_total",
			Help:        "Total extraction records removed by the retention sweep.",
			ConstLabels: serviceLabel,
		},
	)
	purgeRunsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snap",
			Subsystem: "retention",
			Name:      "runs_total",
			Help:      "Total retention sweeps by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(recordTotal, recordDuration, recordInFlight, eventLag, purgedTotal, purgeRunsTotal)

	return &WorkerMetrics{
		registry:       registry,
		service:        service,
		recordTotal:    recordTotal,
		recordDuration: recordDuration,
		recordInFlight: recordInFlight,
		eventLag:       eventLag,
		purgedTotal:    purgedTotal,
		purgeRunsTotal: purgeRunsTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRecord() {
	m.recordInFlight.Inc()
}

func (m *WorkerMetrics) FinishRecord(duration time.Duration, err error) {
	m.recordInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.recordTotal.WithLabelValues(m.service, status).Inc()
	m.recordDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveEventLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.eventLag.Observe(lag.Seconds())
}

func (m *WorkerMetrics) RecordPurge(deleted int64, err error) {
	if err != nil {
		m.purgeRunsTotal.WithLabelValues(m.service, "error").Inc()
		return
	}
	m.purgeRunsTotal.WithLabelValues(m.service, "success").Inc()
	if deleted > 0 {
		m.purgedTotal.Add(float64(deleted))
	}
}
