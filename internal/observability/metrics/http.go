package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
	extractionsTotal     *prometheus.CounterVec
	extractionConfidence *prometheus.HistogramVec
	breakerState         *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snap",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "snap",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "snap",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	providerCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snap",
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Total extraction provider calls by outcome.",
		},
		[]string{"service", "provider", "outcome"},
	)
	providerCallDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "snap",
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Extraction provider call duration in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"service", "provider"},
	)
	extractionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "snap",
			Subsystem: "fusion",
			Name:      "extractions_total",
			Help:      "Total fused extractions by merge branch and review gate.",
		},
		[]string{"service", "provider", "needs_review"},
	)
	extractionConfidence := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "snap",
			Subsystem: "fusion",
			Name:      "confidence",
			Help:      "Distribution of merged extraction confidence.",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"service", "provider"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "snap",
			Subsystem: "provider",
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker of an operation is open.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		providerCallsTotal,
		providerCallDuration,
		extractionsTotal,
		extractionConfidence,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		service:              service,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		providerCallsTotal:   providerCallsTotal,
		providerCallDuration: providerCallDuration,
		extractionsTotal:     extractionsTotal,
		extractionConfidence: extractionConfidence,
		breakerState:         breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath folds extraction ids so label cardinality stays bounded.
func normalizePath(path string) string {
	const prefix = "/v1/extractions/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := strings.TrimPrefix(path, prefix)
	switch {
	case rest == "export.xlsx":
		return path
	case strings.HasSuffix(rest, "/review"):
		return prefix + "{id}/review"
	case strings.HasSuffix(rest, "/image"):
		return prefix + "{id}/image"
	default:
		return prefix + "{id}"
	}
}

func (m *HTTPServerMetrics) ObserveProviderCall(provider, outcome string, duration time.Duration) {
	if provider == "" {
		provider = "unknown"
	}
	m.providerCallsTotal.WithLabelValues(m.service, provider, outcome).Inc()
	m.providerCallDuration.WithLabelValues(m.service, provider).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) ObserveExtraction(result domain.FusedResult, needsReview bool) {
	provider := string(result.Provider)
	m.extractionsTotal.WithLabelValues(m.service, provider, strconv.FormatBool(needsReview)).Inc()
	m.extractionConfidence.WithLabelValues(m.service, provider).Observe(result.Confidence)
}

// RecordBreakerState is meant for resilience.Config.OnBreakerStateChange.
func (m *HTTPServerMetrics) RecordBreakerState(operation, state string) {
	open := 0.0
	if state == "open" {
		open = 1
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(open)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
