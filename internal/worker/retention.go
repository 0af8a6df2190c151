package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/ports"
	"github.com/craigoj/homestead-snap-report-sub000/internal/observability/metrics"
)

const DefaultRetentionSchedule = "@daily"

// Retention deletes records older than the configured age on a cron schedule.
type Retention struct {
	records  ports.ExtractionRecorder
	metrics  *metrics.WorkerMetrics
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
}

// NewRetention returns nil when days is not positive, which disables the sweep.
func NewRetention(records ports.ExtractionRecorder, m *metrics.WorkerMetrics, days int, schedule string) *Retention {
	if days <= 0 {
		return nil
	}
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		schedule = DefaultRetentionSchedule
	}
	return &Retention{
		records:  records,
		metrics:  m,
		maxAge:   time.Duration(days) * 24 * time.Hour,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start schedules the sweep. Runs stop when ctx is cancelled or Stop is called.
func (r *Retention) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.schedule, func() { r.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule retention %q: %w", r.schedule, err)
	}
	r.cron.Start()
	slog.Info("retention_scheduled", "schedule", r.schedule, "max_age", r.maxAge.String())
	return nil
}

func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Retention) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	deleted, err := r.records.PurgeOlderThan(ctx, r.maxAge)
	if r.metrics != nil {
		r.metrics.RecordPurge(deleted, err)
	}
	if err != nil {
		slog.Error("retention_failed", "error", err)
		return
	}
	slog.Info("retention_completed", "deleted", deleted)
}
