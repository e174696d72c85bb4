package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMaintenance holds low-priority housekeeping tasks.
	QueueMaintenance = "maintenance"

	// TaskLineRepair replays the receiving ledger of one order line.
	TaskLineRepair = "warehouse:line-repair"
	// TaskDriftSweep replays every order line in batches.
	TaskDriftSweep = "warehouse:drift-sweep"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// LineRepairPayload identifies the line to repair.
type LineRepairPayload struct {
	LineID string `json:"line_id"`
}

// DriftSweepPayload sets the page size of a sweep.
type DriftSweepPayload struct {
	Batch int `json:"batch"`
}

// IdempotencyCleanupPayload sets how long keys are kept.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewLineRepairTask builds a repair task. Repairs of the same line within the
// dedupe window collapse into one.
func NewLineRepairTask(lineID string) (*asynq.Task, error) {
	body, err := json.Marshal(LineRepairPayload{LineID: lineID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLineRepair, body,
		asynq.Queue(QueueDefault),
		asynq.TaskID(TaskLineRepair+":"+lineID),
		asynq.Retention(time.Hour),
		asynq.MaxRetry(5),
	), nil
}

// NewDriftSweepTask builds a sweep task.
func NewDriftSweepTask(batch int) (*asynq.Task, error) {
	body, err := json.Marshal(DriftSweepPayload{Batch: batch})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDriftSweep, body, asynq.Queue(QueueMaintenance), asynq.Timeout(time.Hour)), nil
}

// NewIdempotencyCleanupTask builds a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueMaintenance)), nil
}
