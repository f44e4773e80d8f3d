package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/internal/pipeline"
	"github.com/wonny/aegis-metrics/pkg/logger"
)

// Runner executes one pipeline run
type Runner interface {
	Run(ctx context.Context, symbols []string, ro pipeline.RunOptions) (*contracts.RunSummary, error)
}

// UniverseLoader resolves the symbol list at run time
type UniverseLoader interface {
	Load(ctx context.Context, src string) ([]string, error)
}

// MetricsJob runs the metrics pipeline over the universe on a schedule.
// The universe is re-read on every run so that list changes need no restart.
// ⭐ SSOT: 지표 계산 스케줄은 이 Job에서만
type MetricsJob struct {
	runner   Runner
	universe UniverseLoader
	source   string
	schedule string
	logger   *logger.Logger

	mu   sync.Mutex
	last *contracts.RunSummary
}

// NewMetricsJob creates a new metrics job
func NewMetricsJob(runner Runner, universe UniverseLoader, source, schedule string, log *logger.Logger) *MetricsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &MetricsJob{
		runner:   runner,
		universe: universe,
		source:   source,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *MetricsJob) Name() string {
	return "metrics_pipeline"
}

// Schedule returns the cron schedule
func (j *MetricsJob) Schedule() string {
	return j.schedule
}

// Run loads the universe and processes every eligible symbol.
// Per-symbol failures are recorded in checkpoints and do not fail the job.
func (j *MetricsJob) Run(ctx context.Context) error {
	j.logger.WithField("universe", j.source).Info("Starting scheduled metrics run")

	symbols, err := j.universe.Load(ctx, j.source)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	summary, err := j.runner.Run(ctx, symbols, pipeline.RunOptions{})
	if err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}
	j.mu.Lock()
	j.last = summary
	j.mu.Unlock()

	if summary.Stopped {
		j.logger.WithField("processed", summary.Processed).Warn("Scheduled metrics run stopped early")
	}
	return nil
}

// LastSummary returns the summary of the most recent completed run, or nil
func (j *MetricsJob) LastSummary() *contracts.RunSummary {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.last
}
