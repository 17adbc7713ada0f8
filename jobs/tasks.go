// Package jobs hosts the asynq worker, the scheduler registrations and
// the background sweep handlers.
package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDunningSweep triggers one invoice dunning pass.
	TaskDunningSweep = "dunning:sweep"
	// TaskRecoverySweep triggers one order payment-reminder pass.
	TaskRecoverySweep = "recovery:sweep"
)

// NewDunningSweepTask constructs the dunning sweep task. Sweeps are
// stateless, so the task carries no payload.
func NewDunningSweepTask() *asynq.Task {
	return asynq.NewTask(TaskDunningSweep, nil)
}

// NewRecoverySweepTask constructs the recovery sweep task.
func NewRecoverySweepTask() *asynq.Task {
	return asynq.NewTask(TaskRecoverySweep, nil)
}
