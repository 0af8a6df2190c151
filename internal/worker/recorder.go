package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
	"github.com/craigoj/homestead-snap-report-sub000/internal/core/ports"
	"github.com/craigoj/homestead-snap-report-sub000/internal/observability/metrics"
)

const DefaultRecordTimeout = 30 * time.Second

// Recorder persists extraction events delivered by the queue.
type Recorder struct {
	records ports.ExtractionRecorder
	metrics *metrics.WorkerMetrics
	timeout time.Duration
	now     func() time.Time
}

// NewRecorder builds a Recorder. m may be nil.
func NewRecorder(records ports.ExtractionRecorder, m *metrics.WorkerMetrics, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = DefaultRecordTimeout
	}
	return &Recorder{
		records: records,
		metrics: m,
		timeout: timeout,
		now:     time.Now,
	}
}

// Handle matches the queue subscriber callback.
func (r *Recorder) Handle(ctx context.Context, event domain.ExtractionCompletedEvent) error {
	start := r.now()
	if r.metrics != nil {
		r.metrics.StartRecord()
		if !event.CompletedAt.IsZero() {
			r.metrics.ObserveEventLag(start.Sub(event.CompletedAt))
		}
	}

	recordCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	err := r.records.Record(recordCtx, event)

	if r.metrics != nil {
		r.metrics.FinishRecord(r.now().Sub(start), err)
	}
	if err != nil {
		slog.Error("record_extraction_failed",
			"extraction_id", event.ExtractionID,
			"request_id", event.RequestID,
			"error", err,
		)
		return err
	}
	slog.Info("extraction_recorded",
		"extraction_id", event.ExtractionID,
		"request_id", event.RequestID,
		"provider", event.Result.Provider,
		"confidence", event.Result.Confidence,
	)
	return nil
}
