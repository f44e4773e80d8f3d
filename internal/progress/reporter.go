// Package progress derives run progress and ETA from the checkpoint store.
package progress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/pkg/clock"
)

// Sample is a point-in-time progress reading
type Sample struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Pending   int            `json:"pending"`
	Elapsed   time.Duration  `json:"elapsed"`
	ETA       *time.Duration `json:"eta,omitempty"` // nil until this run has a success
	Rate      float64        `json:"rate"`          // successes per minute in this run
}

// Percent returns the share of symbols that reached a decision
func (s Sample) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded+s.Failed) / float64(s.Total) * 100
}

// String renders a one-line human summary
func (s Sample) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s/%s done (%.1f%%), %s ok, %s failed, %s pending",
		humanize.Comma(int64(s.Succeeded+s.Failed)), humanize.Comma(int64(s.Total)), s.Percent(),
		humanize.Comma(int64(s.Succeeded)), humanize.Comma(int64(s.Failed)), humanize.Comma(int64(s.Pending)))

	fmt.Fprintf(&b, ", elapsed %s", s.Elapsed.Round(time.Second))
	if s.ETA != nil {
		fmt.Fprintf(&b, ", eta %s", s.ETA.Round(time.Second))
	} else {
		b.WriteString(", eta unknown")
	}
	return b.String()
}

// Reporter samples progress for a fixed universe.
// The success baseline is read at construction so that earlier runs do not
// inflate the rate.
// ⭐ SSOT: 진행률/ETA 계산은 여기서만
type Reporter struct {
	store    contracts.CheckpointStore
	symbols  []string // nil → whole store
	clock    clock.Clock
	start    time.Time
	baseline int
}

// NewReporter creates a reporter. symbols nil means "every record in the store".
func NewReporter(ctx context.Context, store contracts.CheckpointStore, symbols []string, clk clock.Clock) (*Reporter, error) {
	if clk == nil {
		clk = clock.New()
	}
	r := &Reporter{store: store, symbols: symbols, clock: clk, start: clk.Now()}

	counts, _, err := r.counts(ctx)
	if err != nil {
		return nil, err
	}
	r.baseline = counts[contracts.StatusSuccess]
	return r, nil
}

// Sample reads current counts and estimates the remaining time
func (r *Reporter) Sample(ctx context.Context) (Sample, error) {
	counts, total, err := r.counts(ctx)
	if err != nil {
		return Sample{}, err
	}

	s := Sample{
		Total:     total,
		Succeeded: counts[contracts.StatusSuccess],
		Failed:    counts[contracts.StatusFailed],
		Elapsed:   r.clock.Now().Sub(r.start),
	}
	s.Pending = s.Total - s.Succeeded - s.Failed
	if s.Pending < 0 {
		s.Pending = 0
	}

	done := s.Succeeded - r.baseline
	if done > 0 && s.Elapsed > 0 {
		perSymbol := s.Elapsed / time.Duration(done)
		eta := perSymbol * time.Duration(s.Pending)
		s.ETA = &eta
		s.Rate = float64(done) / s.Elapsed.Minutes()
	}
	return s, nil
}

func (r *Reporter) counts(ctx context.Context) (contracts.StatusCounts, int, error) {
	if r.symbols == nil {
		counts, err := r.store.BatchSummary(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("progress summary: %w", err)
		}
		return counts, counts.Total(), nil
	}

	recs, err := r.store.Lookup(ctx, r.symbols)
	if err != nil {
		return nil, 0, fmt.Errorf("progress lookup: %w", err)
	}
	counts := contracts.StatusCounts{}
	for _, rec := range recs {
		counts[rec.Status]++
	}
	return counts, len(r.symbols), nil
}
