package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/craigoj/homestead-snap-report-sub000/internal/adapters/http"
	"github.com/craigoj/homestead-snap-report-sub000/internal/adapters/http/openapi"
	mcpadapter "github.com/craigoj/homestead-snap-report-sub000/internal/adapters/mcp"
	"github.com/craigoj/homestead-snap-report-sub000/internal/bootstrap"
	"github.com/craigoj/homestead-snap-report-sub000/internal/config"
	"github.com/craigoj/homestead-snap-report-sub000/internal/observability/logging"
	"github.com/craigoj/homestead-snap-report-sub000/internal/observability/metrics"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewLogger(os.Stdout, "api", cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Metrics: httpMetrics})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	opts := []httpadapter.Option{httpadapter.WithMetrics(httpMetrics)}
	if cfg.OpenAPIValidationEnabled {
		validator, err := openapi.NewValidator(ctx)
		if err != nil {
			slog.Error("openapi_validator_failed", "error", err)
			os.Exit(1)
		}
		opts = append(opts, httpadapter.WithRequestValidator(validator))
	}
	if cfg.MCPEnabled {
		mcpServer := mcpadapter.NewServer(mcpadapter.NewTools(app.Extractor, app.Records), version)
		opts = append(opts, httpadapter.WithMCPHandler(mcpadapter.NewHTTPHandler(mcpServer, cfg.MCPPath)))
	}

	router := httpadapter.NewRouter(cfg, app.Extractor, app.Records, app.Records, app.Records, app.Records, opts...).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort, "structured_provider", cfg.StructuredProvider)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
