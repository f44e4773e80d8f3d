package scheduler

import (
	"context"
	"time"
)

// Job is a unit of work the scheduler triggers on a cron expression.
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	Name() string

	// Run executes once. ctx is cancelled when the scheduler stops, so a
	// metrics run stops between symbols and leaves the rest pending.
	Run(ctx context.Context) error

	// Schedule is a seconds-first cron expression or descriptor,
	// e.g. "0 30 22 * * 1-5" or "@daily".
	Schedule() string
}

// JobResult is the outcome of one triggered execution, retries included
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Attempts  int           `json:"attempts"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// historyLimit bounds the in-memory results kept per job
const historyLimit = 100

// JobHistory keeps the most recent results of one job, oldest first.
// Callers hold the scheduler lock.
type JobHistory struct {
	Results []JobResult
}

func (h *JobHistory) record(r JobResult) {
	if len(h.Results) == historyLimit {
		copy(h.Results, h.Results[1:])
		h.Results = h.Results[:historyLimit-1]
	}
	h.Results = append(h.Results, r)
}

// Latest returns the most recent result
func (h *JobHistory) Latest() (JobResult, bool) {
	if len(h.Results) == 0 {
		return JobResult{}, false
	}
	return h.Results[len(h.Results)-1], true
}

// JobStats summarises a job's retained history
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// SuccessRate is in [0, 1]; 0 with no runs
func (s JobStats) SuccessRate() float64 {
	if s.TotalRuns == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.TotalRuns)
}

func (h *JobHistory) stats(name, schedule string) JobStats {
	st := JobStats{JobName: name, Schedule: schedule, TotalRuns: len(h.Results)}
	for i := range h.Results {
		r := h.Results[i]
		start := r.StartTime
		st.LastRun = &start
		if r.Success {
			st.SuccessCount++
			st.LastSuccess = &start
		} else {
			st.FailureCount++
			st.LastFailure = &start
			st.LastError = r.Error
		}
	}
	return st
}
