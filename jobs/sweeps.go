package jobs

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mahnwerk/mahnwerk/internal/dunning"
	jobmetrics "github.com/mahnwerk/mahnwerk/internal/jobs"
	"github.com/mahnwerk/mahnwerk/internal/recovery"
)

// DunningSweepJob runs the invoice dunning pass from the queue.
type DunningSweepJob struct {
	Service *dunning.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewDunningSweepJob initialises the dunning sweep handler.
func NewDunningSweepJob(service *dunning.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *DunningSweepJob {
	return &DunningSweepJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one dunning sweep.
func (j *DunningSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track("dunning_sweep")
	summary, err := j.Service.RunSweep(ctx, j.clock())
	if err != nil {
		if j.Logger != nil {
			j.Logger.Error("dunning sweep job failed", slog.Any("error", err))
		}
		return tracker.End(err)
	}
	byLevel := make(map[string]int)
	for _, res := range summary.Results {
		byLevel[strings.ToLower(string(res.Action))]++
	}
	for action, n := range byLevel {
		j.Metrics.AddStagesFired("dunning", action, n)
	}
	return tracker.End(nil)
}

// RecoverySweepJob runs the order payment-reminder pass from the queue.
type RecoverySweepJob struct {
	Service *recovery.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewRecoverySweepJob initialises the recovery sweep handler.
func NewRecoverySweepJob(service *recovery.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecoverySweepJob {
	return &RecoverySweepJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one recovery sweep.
func (j *RecoverySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track("recovery_sweep")
	summary, err := j.Service.RunSweep(ctx, j.clock())
	if err != nil {
		if j.Logger != nil {
			j.Logger.Error("recovery sweep job failed", slog.Any("error", err))
		}
		return tracker.End(err)
	}
	j.Metrics.AddStagesFired("recovery", "reminder", summary.RemindersSent)
	j.Metrics.AddStagesFired("recovery", "cancellation", summary.Cancellations)
	return tracker.End(nil)
}
