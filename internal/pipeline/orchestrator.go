// Package pipeline runs the resumable, checkpointed batch computation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/internal/metrics"
	"github.com/wonny/aegis-metrics/internal/progress"
	"github.com/wonny/aegis-metrics/internal/quality"
	"github.com/wonny/aegis-metrics/pkg/clock"
	"github.com/wonny/aegis-metrics/pkg/logger"
)

// Orchestrator drives symbols through fetch → validate → compute → upsert → checkpoint.
// A failing symbol is recorded and skipped; it never aborts the run.
// ⭐ SSOT: 배치 오케스트레이션은 이 패키지에서만
type Orchestrator struct {
	source     contracts.SourceAdapter
	sink       contracts.SinkAdapter
	checkpoint contracts.CheckpointStore
	validator  *quality.Validator
	engine     *metrics.Engine
	opts       Options
	clock      clock.Clock
	logger     *logger.Logger
}

// New creates an orchestrator. Invalid options or missing collaborators are an error.
func New(pc PipelineContext) (*Orchestrator, error) {
	if pc.Source == nil || pc.Sink == nil || pc.Checkpoint == nil {
		return nil, errors.New("pipeline: source, sink and checkpoint store are required")
	}
	if err := pc.Options.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline options: %w", err)
	}

	log := pc.Logger
	if log == nil {
		log = logger.Nop()
	}
	clk := pc.Clock
	if clk == nil {
		clk = clock.New()
	}
	validator := pc.Validator
	if validator == nil {
		validator = quality.NewValidator(quality.DefaultConfig(), log)
	}
	engine := pc.Engine
	if engine == nil {
		engine = metrics.NewEngine(metrics.DefaultConfig(), validator, log)
	}

	opts := pc.Options
	if opts.Retry.Clock == nil {
		opts.Retry.Clock = clk
	}

	return &Orchestrator{
		source:     pc.Source,
		sink:       pc.Sink,
		checkpoint: pc.Checkpoint,
		validator:  validator,
		engine:     engine,
		opts:       opts,
		clock:      clk,
		logger:     log.WithField("module", "pipeline"),
	}, nil
}

// Run processes every eligible symbol and returns the run summary.
// Cancelling ctx stops the run between symbols; the symbol in flight still
// reaches a checkpoint decision. Only an unreachable checkpoint store is fatal.
func (o *Orchestrator) Run(ctx context.Context, symbols []string, ro RunOptions) (*contracts.RunSummary, error) {
	start := o.clock.Now()
	runID := uuid.NewString()
	log := o.logger.WithRun(runID)

	symbols = contracts.NormalizeSymbols(symbols)
	t := newTally(runID, len(symbols), o.opts.FailureSampleSize)

	asOf := ro.ComputationDate
	if asOf.IsZero() {
		asOf = start
	}

	// 1. Force → 체크포인트 초기화
	if ro.Force && len(symbols) > 0 {
		n, err := o.checkpoint.Reset(ctx, symbols)
		if err != nil {
			return nil, fmt.Errorf("%w: reset: %v", contracts.ErrStoreUnavailable, err)
		}
		log.WithField("reset", n).Info("Checkpoints reset for forced run")
	}

	// 2. 처리 대상 선별
	records, err := o.checkpoint.Lookup(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup: %v", contracts.ErrStoreUnavailable, err)
	}

	eligible := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		rec, ok := records[sym]
		if ok && !rec.Retryable(o.opts.MaxRetries) {
			continue
		}
		eligible = append(eligible, sym)
	}
	t.summary.Skipped = len(symbols) - len(eligible)

	reporter, err := progress.NewReporter(ctx, o.checkpoint, symbols, o.clock)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrStoreUnavailable, err)
	}

	// 3. 배치 분할 → 워커 배정
	batches := partition(runID, eligible, o.opts.BatchSize)
	assignments := deal(batches, o.opts.Workers)

	log.WithFields(map[string]interface{}{
		"total":            len(symbols),
		"eligible":         len(eligible),
		"skipped":          t.summary.Skipped,
		"batches":          len(batches),
		"workers":          len(assignments),
		"computation_date": asOf.Format("2006-01-02"),
		"force":            ro.Force,
	}).Info("Starting metrics run")

	var g errgroup.Group
	for w, owned := range assignments {
		w, owned := w, owned
		g.Go(func() error {
			o.work(ctx, log.WithField("worker", w), owned, asOf, t, reporter)
			return nil
		})
	}
	_ = g.Wait()

	summary := t.summary
	summary.Elapsed = o.clock.Now().Sub(start)

	fields := map[string]interface{}{
		"processed": summary.Processed,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
		"elapsed":   summary.Elapsed.String(),
		"stopped":   summary.Stopped,
	}
	for _, c := range summary.Categories() {
		fields["err_"+c.Code] = c.Count
	}
	log.WithFields(fields).Info("Metrics run completed")

	return summary, nil
}

// work processes one worker's batches in order
func (o *Orchestrator) work(ctx context.Context, log *logger.Logger, owned []batch, asOf time.Time, t *tally, reporter *progress.Reporter) {
	for bi, b := range owned {
		if bi > 0 && o.opts.BatchPause > 0 {
			if err := o.clock.Sleep(ctx, o.opts.BatchPause); err != nil {
				t.stop()
				return
			}
		}

		for si, sym := range b.Symbols {
			if ctx.Err() != nil {
				t.stop()
				log.WithFields(map[string]interface{}{
					"batch":  b.Index,
					"symbol": sym,
				}).Warn("Stop requested, leaving remaining symbols pending")
				return
			}
			if si > 0 && o.opts.RateLimitDelay > 0 {
				if err := o.clock.Sleep(ctx, o.opts.RateLimitDelay); err != nil {
					t.stop()
					return
				}
			}

			o.process(ctx, log, sym, asOf, t)
		}

		o.logProgress(ctx, log, b, reporter)
	}
}

func (o *Orchestrator) logProgress(ctx context.Context, log *logger.Logger, b batch, reporter *progress.Reporter) {
	sample, err := reporter.Sample(context.WithoutCancel(ctx))
	if err != nil {
		log.WithError(err).Warn("Progress sample failed")
		return
	}

	fields := map[string]interface{}{
		"batch":     b.Index,
		"succeeded": sample.Succeeded,
		"failed":    sample.Failed,
		"pending":   sample.Pending,
		"total":     sample.Total,
		"elapsed":   sample.Elapsed.Round(time.Second).String(),
	}
	if sample.ETA != nil {
		fields["eta"] = sample.ETA.Round(time.Second).String()
	}
	log.WithFields(fields).Info("Batch completed: " + sample.String())
}
