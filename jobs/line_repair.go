package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-wms/internal/jobs"
	"github.com/odyssey-erp/odyssey-wms/internal/warehouseorders"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// LineRepairer replays the ledger of a single line.
type LineRepairer interface {
	RepairLine(ctx context.Context, lineID string) (warehouseorders.RepairResult, error)
}

// LineRepairJob handles TaskLineRepair.
type LineRepairJob struct {
	Service LineRepairer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLineRepairJob wires dependencies for the repair handler.
func NewLineRepairJob(svc LineRepairer, logger *slog.Logger, metrics *jobmetrics.Metrics) *LineRepairJob {
	return &LineRepairJob{Service: svc, Logger: logger, Metrics: metrics}
}

// Handle processes line repair tasks.
func (j *LineRepairJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Service == nil {
		return errors.New("line repair: handler not configured")
	}
	var payload LineRepairPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.LineID == "" {
		return fmt.Errorf("line repair: bad payload: %w", asynq.SkipRetry)
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskLineRepair)
	defer func() { err = tracker.End(err) }()

	logger := loggerOrDefault(j.Logger, TaskLineRepair).With(slog.String("line_id", payload.LineID))
	result, err := j.Service.RepairLine(ctx, payload.LineID)
	if errors.Is(err, warehouseorders.ErrNotFound) {
		logger.Warn("line vanished before repair")
		return fmt.Errorf("line repair %s: %w", payload.LineID, asynq.SkipRetry)
	}
	if err != nil {
		logger.Error("repair line", slog.Any("error", err))
		return err
	}
	logger.Info("line repair finished", slog.Int("events", result.Events), slog.Bool("drifted", result.Drifted))
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func loggerOrDefault(logger *slog.Logger, job string) *slog.Logger {
	if logger != nil {
		return logger.With(slog.String("job", job))
	}
	return slog.Default().With(slog.String("job", job))
}
