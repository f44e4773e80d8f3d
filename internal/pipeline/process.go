package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/pkg/logger"
	"github.com/wonny/aegis-metrics/pkg/retry"
)

// process runs one symbol to a checkpoint decision.
// Work is detached from ctx cancellation and bounded by SymbolTimeout.
func (o *Orchestrator) process(ctx context.Context, log *logger.Logger, symbol string, asOf time.Time, t *tally) {
	workCtx := context.WithoutCancel(ctx)
	if o.opts.SymbolTimeout > 0 {
		var cancel context.CancelFunc
		workCtx, cancel = context.WithTimeout(workCtx, o.opts.SymbolTimeout)
		defer cancel()
	}

	symLog := log.WithSymbol(symbol)
	started := o.clock.Now()

	err := o.compute(workCtx, symLog, symbol, asOf)
	if err == nil {
		if cpErr := o.checkpoint.MarkSuccess(workCtx, symbol); cpErr != nil {
			wrapped := &contracts.CheckpointError{Symbol: symbol, Err: cpErr}
			symLog.WithError(wrapped).Error("Checkpoint write failed after successful upsert")
			t.failure(symbol, contracts.CodeCheckpointError, wrapped.Error())
			return
		}
		t.success()
		symLog.WithField("duration", o.clock.Now().Sub(started).String()).Debug("Symbol succeeded")
		return
	}

	code := contracts.ErrorCode(err)
	if cpErr := o.checkpoint.MarkFailed(workCtx, symbol, code, err.Error()); cpErr != nil {
		symLog.WithError(&contracts.CheckpointError{Symbol: symbol, Err: cpErr}).Error("Checkpoint write failed")
	}
	t.failure(symbol, code, err.Error())

	symLog.WithFields(map[string]interface{}{
		"code":  code,
		"error": err.Error(),
	}).Warn("Symbol failed")
}

// compute fetches, validates, computes and upserts. Panics become internal errors.
func (o *Orchestrator) compute(ctx context.Context, log *logger.Logger, symbol string, asOf time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing %s: %v", symbol, r)
		}
	}()

	end := asOf
	start := end.AddDate(-o.opts.LookbackYears, 0, 0)

	// 1. 가격
	var prices contracts.PriceSeries
	err = o.opts.Retry.Do(ctx, contracts.IsTransient, o.onRetry(log, "fetch_prices"), func(ctx context.Context) error {
		var fetchErr error
		prices, fetchErr = o.source.FetchPrices(ctx, symbol, start, end)
		return fetchErr
	})
	if err != nil {
		return err
	}
	prices.Symbol = symbol

	// 2. 배당 (없으면 빈 시계열)
	var dividends contracts.DividendSeries
	err = o.opts.Retry.Do(ctx, contracts.IsTransient, o.onRetry(log, "fetch_dividends"), func(ctx context.Context) error {
		var fetchErr error
		dividends, fetchErr = o.source.FetchDividends(ctx, symbol)
		return fetchErr
	})
	if contracts.IsNotFound(err) {
		dividends, err = contracts.DividendSeries{Symbol: symbol}, nil
	}
	if err != nil {
		return err
	}

	// 3. 검증
	prices, err = o.validator.Validate(prices)
	if err != nil {
		return err
	}

	// 4. 계산
	snap, err := o.engine.Compute(prices, dividends, asOf)
	if err != nil {
		return err
	}

	// 5. 저장
	return o.opts.Retry.Do(ctx, isSinkError, o.onRetry(log, "upsert"), func(ctx context.Context) error {
		if upErr := o.sink.Upsert(ctx, snap); upErr != nil {
			var se *contracts.SinkError
			if !errors.As(upErr, &se) {
				upErr = &contracts.SinkError{Symbol: symbol, Err: upErr}
			}
			return upErr
		}
		return nil
	})
}

func (o *Orchestrator) onRetry(log *logger.Logger, op string) func(retry.Attempt) {
	return func(a retry.Attempt) {
		log.WithFields(map[string]interface{}{
			"op":      op,
			"attempt": a.Number,
			"delay":   a.Delay.String(),
			"error":   a.Err.Error(),
		}).Warn("Retrying after transient error")
	}
}

func isSinkError(err error) bool {
	var se *contracts.SinkError
	return errors.As(err, &se)
}
