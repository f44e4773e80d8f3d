package pipeline

import (
	"sync"

	"github.com/wonny/aegis-metrics/internal/contracts"
)

// tally accumulates per-symbol outcomes from concurrent workers
type tally struct {
	mu         sync.Mutex
	summary    *contracts.RunSummary
	sampleSize int
}

func newTally(runID string, total, sampleSize int) *tally {
	return &tally{
		summary: &contracts.RunSummary{
			RunID:       runID,
			Total:       total,
			ErrorCounts: map[string]int{},
			Failures:    []contracts.FailureSample{},
		},
		sampleSize: sampleSize,
	}
}

func (t *tally) success() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Processed++
	t.summary.Succeeded++
}

func (t *tally) failure(symbol, code, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Processed++
	t.summary.Failed++
	t.summary.ErrorCounts[code]++
	if len(t.summary.Failures) < t.sampleSize {
		t.summary.Failures = append(t.summary.Failures, contracts.FailureSample{
			Symbol:  symbol,
			Code:    code,
			Message: message,
		})
	}
}

func (t *tally) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.summary.Stopped = true
}
