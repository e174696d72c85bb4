package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-wms/internal/jobs"
	"github.com/odyssey-erp/odyssey-wms/internal/warehouseorders"
)

// DriftSweeper replays all lines.
type DriftSweeper interface {
	SweepDrift(ctx context.Context, batch int) (warehouseorders.SweepReport, error)
}

// DriftSweepJob handles TaskDriftSweep.
type DriftSweepJob struct {
	Service      DriftSweeper
	Logger       *slog.Logger
	Metrics      *jobmetrics.Metrics
	DefaultBatch int
	clock        func() time.Time
}

// NewDriftSweepJob wires dependencies for the sweep handler.
func NewDriftSweepJob(svc DriftSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics, defaultBatch int) *DriftSweepJob {
	return &DriftSweepJob{
		Service:      svc,
		Logger:       logger,
		Metrics:      metrics,
		DefaultBatch: defaultBatch,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes drift sweep tasks.
func (j *DriftSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("drift sweep: handler not configured")
	}
	var payload DriftSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("drift sweep: bad payload: %w", asynq.SkipRetry)
	}
	if payload.Batch <= 0 {
		payload.Batch = j.DefaultBatch
	}

	m := metricsOrDefault(j.Metrics)
	tracker := m.Track(TaskDriftSweep)
	defer func() { err = tracker.End(err) }()

	logger := loggerOrDefault(j.Logger, TaskDriftSweep).With(slog.Int("batch", payload.Batch))
	started := j.now()
	logger.Info("starting drift sweep")

	report, err := j.Service.SweepDrift(ctx, payload.Batch)
	m.AddSweep(report.Checked, len(report.Repaired))
	if err != nil {
		logger.Error("drift sweep aborted", slog.Int("checked", report.Checked), slog.Any("error", err))
		return err
	}
	if len(report.Repaired) > 0 {
		logger.Warn("drift sweep rewrote lines", slog.Any("lines", report.Repaired))
	}
	logger.Info("completed drift sweep",
		slog.Int("checked", report.Checked),
		slog.Int("repaired", len(report.Repaired)),
		slog.Duration("duration", j.now().Sub(started)),
	)
	return nil
}

func (j *DriftSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
