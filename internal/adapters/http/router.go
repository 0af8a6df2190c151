package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/craigoj/homestead-snap-report-sub000/internal/adapters/http/openapi"
	"github.com/craigoj/homestead-snap-report-sub000/internal/config"
	"github.com/craigoj/homestead-snap-report-sub000/internal/core/ports"
	"github.com/craigoj/homestead-snap-report-sub000/internal/observability/metrics"
)

type Router struct {
	cfg       config.Config
	extractor ports.ItemExtractor
	reader    ports.ExtractionReader
	reviewer  ports.ExtractionReviewer
	exporter  ports.ExtractionExporter
	images    ports.ImageProvider

	metrics   *metrics.HTTPServerMetrics
	validator *openapi.Validator
	mcp       http.Handler
}

type Option func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) Option {
	return func(rt *Router) { rt.metrics = m }
}

func WithRequestValidator(v *openapi.Validator) Option {
	return func(rt *Router) { rt.validator = v }
}

// WithMCPHandler mounts an MCP transport at cfg.MCPPath.
func WithMCPHandler(h http.Handler) Option {
	return func(rt *Router) { rt.mcp = h }
}

func NewRouter(
	cfg config.Config,
	extractor ports.ItemExtractor,
	reader ports.ExtractionReader,
	reviewer ports.ExtractionReviewer,
	exporter ports.ExtractionExporter,
	images ports.ImageProvider,
	opts ...Option,
) *Router {
	rt := &Router{
		cfg:       cfg,
		extractor: extractor,
		reader:    reader,
		reviewer:  reviewer,
		exporter:  exporter,
		images:    images,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", serveContract)
	mux.HandleFunc("POST /v1/extract", rt.extract)
	mux.HandleFunc("GET /v1/extractions", rt.listExtractions)
	mux.HandleFunc("GET /v1/extractions/export.xlsx", rt.exportExtractions)
	mux.HandleFunc("GET /v1/extractions/{id}", rt.getExtraction)
	mux.HandleFunc("POST /v1/extractions/{id}/review", rt.reviewExtraction)
	mux.HandleFunc("GET /v1/extractions/{id}/image", rt.getExtractionImage)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	if rt.mcp != nil && rt.cfg.MCPEnabled {
		mux.Handle(rt.mcpPath(), rt.mcp)
	}

	var handler http.Handler = mux
	if rt.validator != nil {
		handler = openAPIValidationMiddleware(handler, rt.validator)
	}
	handler = backpressureMiddleware(
		handler,
		rt.cfg.APIBackpressureMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
	)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) mcpPath() string {
	path := strings.TrimSpace(rt.cfg.MCPPath)
	if path == "" {
		return "/mcp"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func serveContract(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openapi.Spec())
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
