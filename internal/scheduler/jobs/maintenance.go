package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/pkg/logger"
)

// CheckpointReportJob logs checkpoint status counts
type CheckpointReportJob struct {
	store    contracts.CheckpointStore
	schedule string
	logger   *logger.Logger
}

// NewCheckpointReportJob creates a new checkpoint report job
func NewCheckpointReportJob(store contracts.CheckpointStore, schedule string, log *logger.Logger) *CheckpointReportJob {
	if log == nil {
		log = logger.Nop()
	}
	return &CheckpointReportJob{
		store:    store,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *CheckpointReportJob) Name() string {
	return "checkpoint_report"
}

// Schedule returns the cron schedule
func (j *CheckpointReportJob) Schedule() string {
	return j.schedule
}

// Run executes the report
func (j *CheckpointReportJob) Run(ctx context.Context) error {
	counts, err := j.store.BatchSummary(ctx)
	if err != nil {
		return fmt.Errorf("checkpoint summary: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"total":   counts.Total(),
		"success": counts[contracts.StatusSuccess],
		"failed":  counts[contracts.StatusFailed],
		"pending": counts[contracts.StatusPending],
	}).Info("Checkpoint status")

	return nil
}
