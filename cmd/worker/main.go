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

	"github.com/craigoj/homestead-snap-report-sub000/internal/bootstrap"
	"github.com/craigoj/homestead-snap-report-sub000/internal/config"
	"github.com/craigoj/homestead-snap-report-sub000/internal/observability/logging"
	"github.com/craigoj/homestead-snap-report-sub000/internal/observability/metrics"
	"github.com/craigoj/homestead-snap-report-sub000/internal/worker"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewLogger(os.Stdout, "worker", cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if retention := worker.NewRetention(app.Records, workerMetrics, cfg.RetentionDays, cfg.RetentionSchedule); retention != nil {
		if err := retention.Start(ctx); err != nil {
			slog.Error("retention_start_failed", "error", err)
			os.Exit(1)
		}
		defer retention.Stop()
	}

	recorder := worker.NewRecorder(app.Records, workerMetrics, worker.DefaultRecordTimeout)
	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "queue_group", cfg.NATSQueueGroup)
	if err := app.Queue.SubscribeExtractionCompleted(ctx, recorder.Handle); err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
