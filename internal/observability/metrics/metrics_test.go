package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/extract":                    "/v1/extract",
		"/v1/extractions":                "/v1/extractions",
		"/v1/extractions/export.xlsx":    "/v1/extractions/export.xlsx",
		"/v1/extractions/abc-123":        "/v1/extractions/{id}",
		"/v1/extractions/abc-123/review": "/v1/extractions/{id}/review",
		"/v1/extractions/abc-123/image":  "/v1/extractions/{id}/image",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMiddlewareCountsRequestsByNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, id := range []string{"a", "b"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/extractions/"+id, nil))
	}

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/extractions/{id}", "404"))
	if got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
}

func TestProviderAndFusionObservations(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.ObserveProviderCall("openai", "success", 1200*time.Millisecond)
	m.ObserveProviderCall("google", "timeout", 15*time.Second)
	m.ObserveExtraction(domain.FusedResult{Provider: domain.ProviderStructured, StructuredExtraction: domain.StructuredExtraction{Confidence: 62}}, true)
	m.RecordBreakerState("vision.annotate", "open")

	if got := testutil.ToFloat64(m.providerCallsTotal.WithLabelValues("api", "google", "timeout")); got != 1 {
		t.Fatalf("expected one timeout, got %v", got)
	}
	if got := testutil.ToFloat64(m.extractionsTotal.WithLabelValues("api", "openai-style", "true")); got != 1 {
		t.Fatalf("expected one reviewed extraction, got %v", got)
	}
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("api", "vision.annotate")); got != 1 {
		t.Fatalf("expected open breaker gauge, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "snap_provider_calls_total") {
		t.Fatalf("expected provider metrics in exposition")
	}
}

func TestWorkerMetrics(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartRecord()
	m.FinishRecord(10*time.Millisecond, errors.New("db down"))
	m.RecordPurge(4, nil)
	m.RecordPurge(0, errors.New("timeout"))

	if got := testutil.ToFloat64(m.recordTotal.WithLabelValues("worker", "error")); got != 1 {
		t.Fatalf("expected one failed record, got %v", got)
	}
	if got := testutil.ToFloat64(m.recordInFlight); got != 0 {
		t.Fatalf("expected no records in flight, got %v", got)
	}
	if got := testutil.ToFloat64(m.purgedTotal); got != 4 {
		t.Fatalf("expected 4 purged records, got %v", got)
	}
	if got := testutil.ToFloat64(m.purgeRunsTotal.WithLabelValues("worker", "error")); got != 1 {
		t.Fatalf("expected one failed purge, got %v", got)
	}
}
