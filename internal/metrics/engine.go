package metrics

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/internal/quality"
	"github.com/wonny/aegis-metrics/pkg/logger"
)

// Engine computes point-in-time metrics from validated series.
// 순수 계산기: 저장/조회 없음, 입력 불변
// ⭐ SSOT: 수익률/변동성/샤프/낙폭/배당 계산은 여기서만
type Engine struct {
	config    Config
	validator *quality.Validator
	logger    *logger.Logger
}

// NewEngine creates a new metrics engine.
// The validator supplies return trimming and dividend filtering.
func NewEngine(config Config, validator *quality.Validator, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	if validator == nil {
		validator = quality.NewValidator(quality.DefaultConfig(), log)
	}
	if config.PeriodsPerYear <= 0 {
		config.PeriodsPerYear = 252
	}
	if len(config.Windows) == 0 {
		config.Windows = DefaultConfig().Windows
	}
	return &Engine{
		config:    config,
		validator: validator,
		logger:    log.WithField("module", "metrics"),
	}
}

// Config returns the engine configuration
func (e *Engine) Config() Config { return e.config }

// =============================================================================
// Single metrics
// =============================================================================

// TotalReturn returns last/first - 1, absent on <2 points or outside [-0.95, 5.0]
func (e *Engine) TotalReturn(series contracts.PriceSeries) *float64 {
	if series.Len() < 2 {
		return nil
	}
	first := series.First().Price
	if first <= 0 {
		return nil
	}
	return inBand(series.Last().Price/first-1, MinReturn, MaxReturn)
}

// AnnualizedReturn returns (1+total)^(1/years) - 1 over the series' own span.
// Absent when the span is zero or total return is absent.
func (e *Engine) AnnualizedReturn(series contracts.PriceSeries) *float64 {
	total := e.TotalReturn(series)
	if total == nil {
		return nil
	}
	years := spanYears(series.First().Date, series.Last().Date)
	if years <= 0 {
		return nil
	}
	base := 1 + *total
	if base <= 0 {
		return nil
	}
	return inBand(math.Pow(base, 1/years)-1, MinReturn, MaxReturn)
}

// Volatility returns stdev(trimmed returns) × sqrt(periods per year).
// Absent with fewer than 2 trimmed returns or outside [0, 2.0].
func (e *Engine) Volatility(series contracts.PriceSeries) *float64 {
	returns := e.trimmedReturns(series)
	if len(returns) < 2 {
		return nil
	}
	vol := StdDev(returns) * math.Sqrt(float64(e.config.PeriodsPerYear))
	return inBand(vol, MinVolatility, MaxVolatility)
}

// Sharpe returns (mean(trimmed returns) - rf/periods) / stdev × sqrt(periods).
// Absent with fewer than 2 trimmed returns, zero deviation or outside [-10, 10].
func (e *Engine) Sharpe(series contracts.PriceSeries) *float64 {
	returns := e.trimmedReturns(series)
	if len(returns) < 2 {
		return nil
	}
	sd := StdDev(returns)
	if sd == 0 || math.IsNaN(sd) {
		return nil
	}
	periods := float64(e.config.PeriodsPerYear)
	excess := Mean(returns) - e.config.RiskFreeRate/periods
	return inBand(excess/sd*math.Sqrt(periods), MinSharpe, MaxSharpe)
}

// MaxDrawdown returns the worst peak-to-trough decline as a non-positive fraction.
// 0 for a monotonically non-decreasing series; absent with <2 points.
func (e *Engine) MaxDrawdown(series contracts.PriceSeries) *float64 {
	if series.Len() < 2 {
		return nil
	}

	peak := series.First().Price
	worst := 0.0
	for _, p := range series.Points {
		if p.Price > peak {
			peak = p.Price
		}
		if peak <= 0 {
			continue
		}
		if dd := p.Price/peak - 1; dd < worst {
			worst = dd
		}
	}
	return inBand(worst, MinDrawdown, MaxDrawdown)
}

// DividendSum sums dividend amounts with from < date <= to.
// A negative or implausibly large sum is logged and reported as 0.
func (e *Engine) DividendSum(symbol string, events []contracts.DividendEvent, from, to time.Time) float64 {
	sum := decimal.Zero
	for _, ev := range events {
		if !ev.Date.After(from) || ev.Date.After(to) {
			continue
		}
		if math.IsNaN(ev.Amount) || math.IsInf(ev.Amount, 0) {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(ev.Amount))
	}

	ceiling := decimal.NewFromFloat(e.config.DividendCeiling)
	if sum.IsNegative() || (e.config.DividendCeiling > 0 && sum.GreaterThan(ceiling)) {
		e.logger.WithFields(map[string]interface{}{
			"symbol": symbol,
			"sum":    sum.String(),
			"from":   from.Format("2006-01-02"),
			"to":     to.Format("2006-01-02"),
		}).Warn("Dividend sum anomaly, reporting zero")
		return 0
	}

	f, _ := sum.Float64()
	return f
}

// =============================================================================
// Helpers
// =============================================================================

func (e *Engine) trimmedReturns(series contracts.PriceSeries) []float64 {
	return e.validator.ValidateReturns(SimpleReturns(series.Points))
}

// spanYears uses 365.25-day years
func spanYears(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24 / 365.25
}
