package metrics

import (
	"math"
	"time"

	"github.com/wonny/aegis-metrics/internal/contracts"
)

// Compute builds a snapshot from a validated price series and a dividend series.
// Windows end at the computation date; each is evaluated independently.
// Returns a *contracts.ComputationError when a mandatory field is absent.
func (e *Engine) Compute(prices contracts.PriceSeries, dividends contracts.DividendSeries, computationDate time.Time) (*contracts.MetricsSnapshot, error) {
	snap := &contracts.MetricsSnapshot{
		Symbol:          prices.Symbol,
		ComputationDate: truncateDay(computationDate),
		Observations:    prices.Len(),
		Windows:         make(map[string]contracts.WindowMetrics, len(e.config.Windows)),
	}

	if prices.Len() == 0 {
		return nil, &contracts.ComputationError{
			Code:    contracts.CodeIncompleteMetrics,
			Missing: []string{"current_price", "total_return"},
		}
	}

	last := prices.Last()
	snap.PriceDate = truncateDay(last.Date)
	if last.Price > 0 {
		snap.CurrentPrice = inBand(last.Price, 0, math.MaxFloat64)
	}

	events := e.validator.ValidateDividends(dividends).Events

	// 1. 전체 구간
	snap.TotalReturn = e.TotalReturn(prices)
	snap.MaxDrawdown = e.MaxDrawdown(prices)

	// 2. 최근 1년 낙폭 (관측치가 충분할 때만)
	if prices.Len() >= e.config.PeriodsPerYear {
		snap.MaxDrawdown12m = e.MaxDrawdown(prices.Tail(e.config.PeriodsPerYear))
	}

	// 3. 윈도우별
	asOf := snap.ComputationDate
	for _, w := range e.config.Windows {
		snap.Windows[w.Name] = e.computeWindow(prices, events, w, asOf)
	}

	// 4. 배당수익률 = 최근 12개월 배당 / 현재가
	yearStart := asOf.AddDate(-1, 0, 0)
	if snap.CurrentPrice != nil && covers(prices, yearStart) {
		divs := e.DividendSum(prices.Symbol, events, yearStart, asOf)
		snap.DividendYield = contracts.Float(divs / *snap.CurrentPrice)
	}

	if err := e.incomplete(snap, e.basicReturn(snap)); err != nil {
		return nil, err
	}

	e.logger.WithFields(map[string]interface{}{
		"symbol":       snap.Symbol,
		"observations": snap.Observations,
		"windows":      countPresent(snap.Windows),
	}).Debug("Metrics computed")

	return snap, nil
}

// computeWindow returns an all-absent WindowMetrics when history does not cover the window
func (e *Engine) computeWindow(prices contracts.PriceSeries, events []contracts.DividendEvent, w Window, asOf time.Time) contracts.WindowMetrics {
	start := w.Start(asOf)
	if !covers(prices, start) {
		return contracts.WindowMetrics{}
	}

	sub := prices.Since(start)
	if sub.Len() < 2 {
		return contracts.WindowMetrics{}
	}

	return contracts.WindowMetrics{
		TotalReturn:      e.TotalReturn(sub),
		AnnualizedReturn: e.AnnualizedReturn(sub),
		Volatility:       e.Volatility(sub),
		Sharpe:           e.Sharpe(sub),
		DividendSum:      contracts.Float(e.DividendSum(prices.Symbol, events, start, asOf)),
	}
}

// basicReturn is the total return of the shortest covered window.
// Series shorter than every window fall back to the whole-series return.
func (e *Engine) basicReturn(snap *contracts.MetricsSnapshot) *float64 {
	shortest := -1
	var basic *float64
	for _, w := range e.config.Windows {
		wm, ok := snap.Windows[w.Name]
		if !ok || !wm.Present() {
			continue
		}
		if shortest < 0 || w.Months < shortest {
			shortest = w.Months
			basic = wm.TotalReturn
		}
	}
	if shortest < 0 {
		return snap.TotalReturn
	}
	return basic
}

// incomplete checks the mandatory field policy
func (e *Engine) incomplete(snap *contracts.MetricsSnapshot, basic *float64) error {
	var missing []string
	if e.config.RequireCurrentPrice && snap.CurrentPrice == nil {
		missing = append(missing, "current_price")
	}
	if e.config.RequireBasicReturn && basic == nil {
		missing = append(missing, "total_return")
	}
	if len(missing) == 0 {
		return nil
	}
	return &contracts.ComputationError{Code: contracts.CodeIncompleteMetrics, Missing: missing}
}

// covers reports whether the series starts no later than start + grace
func covers(prices contracts.PriceSeries, start time.Time) bool {
	return prices.Len() > 0 && !prices.First().Date.After(start.Add(CoverageGrace))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func countPresent(windows map[string]contracts.WindowMetrics) int {
	n := 0
	for _, w := range windows {
		if w.Present() {
			n++
		}
	}
	return n
}
