package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/internal/pipeline"
)

type stubRunner struct {
	symbols []string
	summary *contracts.RunSummary
	err     error
}

func (r *stubRunner) Run(ctx context.Context, symbols []string, ro pipeline.RunOptions) (*contracts.RunSummary, error) {
	r.symbols = symbols
	return r.summary, r.err
}

type stubUniverse struct {
	symbols []string
	err     error
}

func (u stubUniverse) Load(ctx context.Context, src string) ([]string, error) {
	return u.symbols, u.err
}

func TestMetricsJob_Run(t *testing.T) {
	runner := &stubRunner{summary: &contracts.RunSummary{Processed: 2, Failed: 1}}
	job := NewMetricsJob(runner, stubUniverse{symbols: []string{"AAPL", "MSFT"}}, "universe.txt", "@daily", nil)

	assert.Equal(t, "metrics_pipeline", job.Name())
	assert.Equal(t, "@daily", job.Schedule())
	assert.Nil(t, job.LastSummary())

	require.NoError(t, job.Run(context.Background()), "symbol failures do not fail the job")
	assert.Equal(t, []string{"AAPL", "MSFT"}, runner.symbols)
	assert.Equal(t, 2, job.LastSummary().Processed)
}

func TestMetricsJob_Errors(t *testing.T) {
	job := NewMetricsJob(&stubRunner{}, stubUniverse{err: errors.New("404")}, "u", "@daily", nil)
	assert.ErrorContains(t, job.Run(context.Background()), "load universe")

	runner := &stubRunner{err: contracts.ErrStoreUnavailable}
	job = NewMetricsJob(runner, stubUniverse{symbols: []string{"A"}}, "u", "@daily", nil)
	assert.ErrorIs(t, job.Run(context.Background()), contracts.ErrStoreUnavailable)
}

type countingStore struct {
	contracts.CheckpointStore
	counts contracts.StatusCounts
	err    error
}

func (s countingStore) BatchSummary(ctx context.Context) (contracts.StatusCounts, error) {
	return s.counts, s.err
}

func TestCheckpointReportJob(t *testing.T) {
	job := NewCheckpointReportJob(countingStore{counts: contracts.StatusCounts{contracts.StatusSuccess: 3}}, "@hourly", nil)
	assert.Equal(t, "checkpoint_report", job.Name())
	assert.NoError(t, job.Run(context.Background()))

	job = NewCheckpointReportJob(countingStore{err: errors.New("closed")}, "@hourly", nil)
	assert.Error(t, job.Run(context.Background()))
}
