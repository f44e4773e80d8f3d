package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/internal/metrics"
	"github.com/wonny/aegis-metrics/internal/quality"
	"github.com/wonny/aegis-metrics/pkg/clock"
	"github.com/wonny/aegis-metrics/pkg/config"
	"github.com/wonny/aegis-metrics/pkg/logger"
	"github.com/wonny/aegis-metrics/pkg/retry"
)

// PipelineContext bundles every collaborator of a run.
// Constructed once at startup and passed explicitly; nothing is global.
type PipelineContext struct {
	Source     contracts.SourceAdapter
	Sink       contracts.SinkAdapter
	Checkpoint contracts.CheckpointStore
	Validator  *quality.Validator
	Engine     *metrics.Engine
	Options    Options
	Clock      clock.Clock
	Logger     *logger.Logger
}

// Options are the recognised batch options
type Options struct {
	BatchSize         int
	RateLimitDelay    time.Duration // between symbols
	BatchPause        time.Duration // between batches
	MaxRetries        int           // failed records with retry_count >= this are skipped
	Workers           int           // 1..config.MaxWorkers
	LookbackYears     int           // price history fetched per symbol
	SymbolTimeout     time.Duration // bound on one symbol's detached work
	FailureSampleSize int
	Retry             retry.Policy // fetch and sink retries
}

// OptionsFromConfig maps the loaded pipeline config onto run options
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		BatchSize:         cfg.BatchSize,
		RateLimitDelay:    cfg.RateLimitDelay,
		BatchPause:        cfg.BatchPause,
		MaxRetries:        cfg.MaxRetries,
		Workers:           cfg.Workers,
		LookbackYears:     cfg.LookbackYears,
		SymbolTimeout:     cfg.SymbolTimeout,
		FailureSampleSize: cfg.FailureSampleSize,
		Retry: retry.Policy{
			MaxAttempts:  cfg.FetchMaxAttempts,
			InitialDelay: cfg.FetchInitialBackoff,
			MaxDelay:     cfg.FetchMaxBackoff,
		},
	}
}

// Validate rejects options a run cannot honour
func (o Options) Validate() error {
	var errs []error
	if o.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be >= 1, got %d", o.BatchSize))
	}
	if o.Workers < 1 || o.Workers > config.MaxWorkers {
		errs = append(errs, fmt.Errorf("workers must be in [1, %d], got %d", config.MaxWorkers, o.Workers))
	}
	if o.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max_retries must be >= 1, got %d", o.MaxRetries))
	}
	if o.LookbackYears < 1 {
		errs = append(errs, fmt.Errorf("lookback_years must be >= 1, got %d", o.LookbackYears))
	}
	if o.RateLimitDelay < 0 || o.BatchPause < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	return errors.Join(errs...)
}

// RunOptions are per-invocation switches
type RunOptions struct {
	Force           bool      // reset checkpoints first and reprocess everything
	ComputationDate time.Time // zero → today per Clock
}
