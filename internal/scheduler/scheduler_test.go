package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-metrics/pkg/clock"
)

type stubJob struct {
	name     string
	schedule string
	failures int32 // first N runs fail
	runs     atomic.Int32
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }

func (j *stubJob) Run(ctx context.Context) error {
	n := j.runs.Add(1)
	if n <= j.failures {
		return errors.New("upstream unavailable")
	}
	return nil
}

func newTestScheduler(clk clock.Clock, retries int) *Scheduler {
	return New(nil, WithClock(clk), WithRetry(retries, time.Minute))
}

func TestAddJob(t *testing.T) {
	s := newTestScheduler(clock.NewFake(time.Now()), 0)

	require.NoError(t, s.AddJob(&stubJob{name: "b", schedule: "@daily"}))
	require.NoError(t, s.AddJob(&stubJob{name: "a", schedule: "0 30 22 * * 1-5"}))
	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	err := s.AddJob(&stubJob{name: "a", schedule: "@daily"})
	assert.ErrorContains(t, err, "already exists")

	err = s.AddJob(&stubJob{name: "bad", schedule: "not a schedule"})
	assert.ErrorContains(t, err, "failed to schedule")

	require.NoError(t, s.RemoveJob("b"))
	assert.Equal(t, []string{"a"}, s.GetAllJobs())
	assert.Error(t, s.RemoveJob("b"))
}

func TestRunJob_RetriesThenSucceeds(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 6, 14, 22, 30, 0, 0, time.UTC))
	s := newTestScheduler(clk, 3)
	job := &stubJob{name: "metrics", schedule: "@daily", failures: 2}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob("metrics")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 2*time.Minute, result.Duration)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, clk.Sleeps())

	_, err = s.RunJob("missing")
	assert.Error(t, err)
}

func TestRunJob_ExhaustsRetries(t *testing.T) {
	s := newTestScheduler(clock.NewFake(time.Now()), 1)
	job := &stubJob{name: "metrics", schedule: "@daily", failures: 10}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob("metrics")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, "upstream unavailable", result.Error)

	stats := s.GetJobStats()["metrics"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailureCount)
	assert.NotNil(t, stats.LastFailure)
	assert.Nil(t, stats.LastSuccess)
	assert.Equal(t, "upstream unavailable", stats.LastError)

	history, err := s.GetJobHistory("metrics")
	require.NoError(t, err)
	require.Len(t, history, 1)
	history[0].Success = true
	again, _ := s.GetJobHistory("metrics")
	assert.False(t, again[0].Success, "history is returned by copy")

	sched, err := s.JobSchedule("metrics")
	require.NoError(t, err)
	assert.Equal(t, "@daily", sched)
	_, err = s.JobSchedule("missing")
	assert.Error(t, err)
}

func TestStop_CancelsRetryWait(t *testing.T) {
	s := newTestScheduler(clock.NewFake(time.Now()), 5)
	job := &stubJob{name: "metrics", schedule: "@daily", failures: 10}
	require.NoError(t, s.AddJob(job))

	s.Stop()
	result, err := s.RunJob("metrics")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts, "no retries once stopped")
}

func TestNextRun(t *testing.T) {
	s := newTestScheduler(clock.New(), 0)
	require.NoError(t, s.AddJob(&stubJob{name: "metrics", schedule: "@hourly"}))

	next, err := s.NextRun("metrics")
	require.NoError(t, err)
	assert.True(t, next.IsZero(), "not started")

	s.Start()
	defer s.Stop()
	next, err = s.NextRun("metrics")
	require.NoError(t, err)
	assert.True(t, next.After(time.Now()))
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	_, ok := h.Latest()
	assert.False(t, ok)
	assert.Equal(t, 0.0, h.stats("metrics", "@daily").SuccessRate())

	base := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	for i := 0; i < historyLimit+10; i++ {
		r := JobResult{JobName: "metrics", StartTime: base.Add(time.Duration(i) * time.Hour), Success: i%4 != 0}
		if !r.Success {
			r.Error = fmt.Sprintf("run %d failed", i)
		}
		h.record(r)
	}
	require.Len(t, h.Results, historyLimit)
	assert.Equal(t, base.Add(10*time.Hour), h.Results[0].StartTime, "oldest results are evicted")

	latest, ok := h.Latest()
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Duration(historyLimit+9)*time.Hour), latest.StartTime)

	st := h.stats("metrics", "@daily")
	assert.Equal(t, historyLimit, st.TotalRuns)
	assert.Equal(t, 25, st.FailureCount)
	assert.Equal(t, 75, st.SuccessCount)
	assert.InDelta(t, 0.75, st.SuccessRate(), 1e-9)
	assert.Equal(t, "run 108 failed", st.LastError)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, latest.StartTime, *st.LastRun)
}
