package metrics

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/internal/quality"
	"github.com/wonny/aegis-metrics/pkg/logger"
)

var day0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func testEngine(t *testing.T) (*Engine, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "debug")
	cfg := DefaultConfig()
	cfg.RiskFreeRate = 0
	return NewEngine(cfg, quality.NewValidator(quality.DefaultConfig(), log), log), &buf
}

func series(prices ...float64) contracts.PriceSeries {
	s := contracts.PriceSeries{Symbol: "TEST"}
	for i, p := range prices {
		s.Points = append(s.Points, contracts.PricePoint{Date: day0.AddDate(0, 0, i), Price: p})
	}
	return s
}

// dailySeries builds one point per calendar day ending at end, alternating +1% / -0.9%
func dailySeries(end time.Time, years int) contracts.PriceSeries {
	start := end.AddDate(-years, 0, 0)
	s := contracts.PriceSeries{Symbol: "TEST"}
	price := 100.0
	for d, i := start, 0; !d.After(end); d, i = d.AddDate(0, 0, 1), i+1 {
		s.Points = append(s.Points, contracts.PricePoint{Date: d, Price: price})
		if i%2 == 0 {
			price *= 1.01
		} else {
			price *= 0.991
		}
	}
	return s
}

func TestParseWindows(t *testing.T) {
	windows, err := ParseWindows([]string{"12m", "24m", "36M", "5y", "10y", "12m"})
	require.NoError(t, err)
	require.Len(t, windows, 5)

	assert.Equal(t, Window{Name: "12m", Months: 12, TradingDays: 252}, windows[0])
	assert.Equal(t, Window{Name: "36m", Months: 36, TradingDays: 756}, windows[2])
	assert.Equal(t, Window{Name: "5y", Months: 60, TradingDays: 1260}, windows[3])
	assert.Equal(t, 2520, windows[4].TradingDays)

	for _, bad := range []string{"", "m", "0y", "-3m", "12d", "abc"} {
		_, err := ParseWindow(bad)
		assert.Error(t, err, bad)
	}

	_, err = ParseWindows(nil)
	assert.Error(t, err)
}

func TestWindow_Start(t *testing.T) {
	w, err := ParseWindow("12m")
	require.NoError(t, err)
	end := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2023, 6, 14, 0, 0, 0, 0, time.UTC), w.Start(end))
}

func TestStats(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-12)
	assert.Equal(t, 0.0, StdDev([]float64{5}))
	assert.InDelta(t, 1.0, StdDev([]float64{1, 2, 3}), 1e-12)

	r := SimpleReturns(series(100, 110, 99).Points)
	require.Len(t, r, 2)
	assert.InDelta(t, 0.1, r[0], 1e-12)
	assert.InDelta(t, -0.1, r[1], 1e-12)
	assert.Nil(t, SimpleReturns(series(100).Points))
}

func TestEngine_TotalReturn(t *testing.T) {
	e, _ := testEngine(t)

	got := e.TotalReturn(series(100, 90, 120))
	require.NotNil(t, got)
	assert.InDelta(t, 0.2, *got, 1e-12)

	assert.Nil(t, e.TotalReturn(series(100)), "single point")
	assert.Nil(t, e.TotalReturn(series(100, 700)), "above band is absent, not truncated")
	assert.Nil(t, e.TotalReturn(series(100, 4)), "below band is absent")

	edge := e.TotalReturn(series(100, 600))
	require.NotNil(t, edge)
	assert.InDelta(t, 5.0, *edge, 1e-12)
}

func TestEngine_AnnualizedReturn(t *testing.T) {
	e, _ := testEngine(t)

	s := contracts.PriceSeries{Symbol: "TEST", Points: []contracts.PricePoint{
		{Date: day0, Price: 100},
		{Date: day0.AddDate(0, 0, 730), Price: 121},
	}}
	got := e.AnnualizedReturn(s)
	require.NotNil(t, got)
	assert.InDelta(t, math.Pow(1.21, 365.25/730)-1, *got, 1e-9)

	same := contracts.PriceSeries{Symbol: "TEST", Points: []contracts.PricePoint{
		{Date: day0, Price: 100}, {Date: day0, Price: 110},
	}}
	assert.Nil(t, e.AnnualizedReturn(same), "zero span")
}

func TestEngine_VolatilityAndSharpe(t *testing.T) {
	e, _ := testEngine(t)
	s := series(100, 110, 99, 108.9) // returns +10%, -10%, +10%

	vol := e.Volatility(s)
	require.NotNil(t, vol)
	assert.InDelta(t, 0.1154700538*math.Sqrt(252), *vol, 1e-6)

	sharpe := e.Sharpe(s)
	require.NotNil(t, sharpe)
	assert.InDelta(t, (0.1/3)/0.1154700538*math.Sqrt(252), *sharpe, 1e-6)

	t.Run("fewer than two returns", func(t *testing.T) {
		assert.Nil(t, e.Volatility(series(100, 101)))
		assert.Nil(t, e.Sharpe(series(100, 101)))
	})

	t.Run("zero deviation", func(t *testing.T) {
		flat := series(100, 100, 100, 100)
		vol := e.Volatility(flat)
		require.NotNil(t, vol)
		assert.Equal(t, 0.0, *vol)
		assert.Nil(t, e.Sharpe(flat))
	})

	t.Run("outlier returns are trimmed", func(t *testing.T) {
		// +150% move is dropped before statistics
		withSpike := series(100, 110, 99, 247.5, 272.25)
		vol := e.Volatility(withSpike)
		require.NotNil(t, vol)
		assert.InDelta(t, StdDev([]float64{0.1, -0.1, 0.1})*math.Sqrt(252), *vol, 1e-6)
	})

	t.Run("volatility above band is absent", func(t *testing.T) {
		assert.Nil(t, e.Volatility(series(100, 180, 100, 180, 100)))
	})
}

func TestEngine_MaxDrawdown(t *testing.T) {
	e, _ := testEngine(t)

	tests := []struct {
		name   string
		series contracts.PriceSeries
		want   *float64
	}{
		{"monotone", series(100, 101, 105, 110), contracts.Float(0)},
		{"halved", series(100, 50), contracts.Float(-0.5)},
		{"peak then trough", series(100, 120, 60, 130, 100), contracts.Float(-0.5)},
		{"single point", series(100), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.MaxDrawdown(tt.series)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-12)
		})
	}
}

func TestEngine_DividendSum(t *testing.T) {
	e, buf := testEngine(t)
	from := day0
	to := day0.AddDate(1, 0, 0)

	events := []contracts.DividendEvent{
		{Date: from, Amount: 9},                  // excluded: from is exclusive
		{Date: from.AddDate(0, 3, 0), Amount: 0.5},
		{Date: from.AddDate(0, 6, 0), Amount: 0.25},
		{Date: to, Amount: 0.25},                 // included: to is inclusive
		{Date: to.AddDate(0, 0, 1), Amount: 9},   // excluded
	}
	assert.InDelta(t, 1.0, e.DividendSum("TEST", events, from, to), 1e-12)
	assert.Equal(t, 0.0, e.DividendSum("TEST", nil, from, to))

	t.Run("negative sum reports zero and logs", func(t *testing.T) {
		buf.Reset()
		neg := []contracts.DividendEvent{{Date: from.AddDate(0, 1, 0), Amount: -5}}
		assert.Equal(t, 0.0, e.DividendSum("TEST", neg, from, to))
		assert.Contains(t, buf.String(), "Dividend sum anomaly")
		assert.Contains(t, buf.String(), "TEST")
	})

	t.Run("above ceiling reports zero", func(t *testing.T) {
		huge := []contracts.DividendEvent{{Date: from.AddDate(0, 1, 0), Amount: 5000}}
		assert.Equal(t, 0.0, e.DividendSum("TEST", huge, from, to))
	})
}

func TestEngine_Compute_WindowCoverage(t *testing.T) {
	e, _ := testEngine(t)
	end := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	prices := dailySeries(end, 3)

	snap, err := e.Compute(prices, contracts.DividendSeries{Symbol: "TEST"}, end.Add(5*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "TEST", snap.Symbol)
	assert.Equal(t, end, snap.ComputationDate, "truncated to day")
	assert.Equal(t, end, snap.PriceDate)
	assert.Equal(t, prices.Len(), snap.Observations)
	require.NotNil(t, snap.CurrentPrice)
	assert.Equal(t, prices.Last().Price, *snap.CurrentPrice)

	for _, name := range []string{"12m", "24m", "36m"} {
		w, ok := snap.Windows[name]
		require.True(t, ok, name)
		assert.True(t, w.Present(), name)
		assert.NotNil(t, w.TotalReturn, name)
		assert.NotNil(t, w.AnnualizedReturn, name)
		assert.NotNil(t, w.Volatility, name)
		assert.NotNil(t, w.Sharpe, name)
		require.NotNil(t, w.DividendSum, name)
		assert.Equal(t, 0.0, *w.DividendSum, name)
	}
	for _, name := range []string{"5y", "10y"} {
		assert.False(t, snap.Windows[name].Present(), name)
	}

	require.NotNil(t, snap.MaxDrawdown12m, "3y of daily points covers 252 observations")
	require.NotNil(t, snap.DividendYield)
	assert.Equal(t, 0.0, *snap.DividendYield)
}

func TestEngine_Compute_TotalReturnIdentity(t *testing.T) {
	e, _ := testEngine(t)
	end := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	prices := dailySeries(end, 2)

	snap, err := e.Compute(prices, contracts.DividendSeries{}, end)
	require.NoError(t, err)

	require.NotNil(t, snap.TotalReturn)
	assert.InDelta(t, prices.Last().Price/prices.First().Price-1, *snap.TotalReturn, 1e-12)

	sub := prices.Since(end.AddDate(0, -12, 0))
	w := snap.Windows["12m"]
	require.NotNil(t, w.TotalReturn)
	assert.InDelta(t, sub.Last().Price/sub.First().Price-1, *w.TotalReturn, 1e-12)
}

func TestEngine_Compute_CoverageGrace(t *testing.T) {
	e, _ := testEngine(t)
	end := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

	// history starts 5 days after the 12m cutoff (e.g. a holiday stretch)
	late := dailySeries(end, 1).Since(end.AddDate(0, -12, 5))
	snap, err := e.Compute(late, contracts.DividendSeries{}, end)
	require.NoError(t, err)
	assert.True(t, snap.Windows["12m"].Present())

	// 10 days late is outside the grace period
	tooLate := dailySeries(end, 1).Since(end.AddDate(0, -12, 10))
	snap, err = e.Compute(tooLate, contracts.DividendSeries{}, end)
	require.NoError(t, err)
	assert.False(t, snap.Windows["12m"].Present())
}

func TestEngine_Compute_DividendYield(t *testing.T) {
	e, _ := testEngine(t)
	end := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	prices := dailySeries(end, 2)
	last := prices.Last().Price

	divs := contracts.DividendSeries{Symbol: "TEST", Events: []contracts.DividendEvent{
		{Date: end.AddDate(0, -18, 0), Amount: 1.0}, // outside 12m
		{Date: end.AddDate(0, -6, 0), Amount: 0.6},
		{Date: end.AddDate(0, -1, 0), Amount: 0.4},
		{Date: end.AddDate(0, -2, 0), Amount: math.NaN()}, // dropped by the validator
	}}

	snap, err := e.Compute(prices, divs, end)
	require.NoError(t, err)
	require.NotNil(t, snap.DividendYield)
	assert.InDelta(t, 1.0/last, *snap.DividendYield, 1e-12)
	assert.InDelta(t, 1.0, *snap.Windows["12m"].DividendSum, 1e-12)
	assert.InDelta(t, 2.0, *snap.Windows["24m"].DividendSum, 1e-12)
}

func TestEngine_Compute_NegativeDividendCorrection(t *testing.T) {
	e, buf := testEngine(t)
	end := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)
	prices := dailySeries(end, 2)

	// +10 then a -15 correction: the raw 12m sum is -5
	divs := contracts.DividendSeries{Symbol: "TEST", Events: []contracts.DividendEvent{
		{Date: end.AddDate(0, -6, 0), Amount: 10},
		{Date: end.AddDate(0, -3, 0), Amount: -15},
		{Date: end.AddDate(0, -18, 0), Amount: 2},
	}}

	snap, err := e.Compute(prices, divs, end)
	require.NoError(t, err)

	require.NotNil(t, snap.Windows["12m"].DividendSum)
	assert.Equal(t, 0.0, *snap.Windows["12m"].DividendSum)
	require.NotNil(t, snap.DividendYield)
	assert.Equal(t, 0.0, *snap.DividendYield)
	assert.Contains(t, buf.String(), "Dividend sum anomaly")
	assert.Contains(t, buf.String(), "-5")

	// 24m still nets to a negative sum
	assert.Equal(t, 0.0, *snap.Windows["24m"].DividendSum)
}

func TestEngine_Compute_BasicReturnUsesShortestWindow(t *testing.T) {
	e, _ := testEngine(t)
	end := time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

	// 11 years of steady growth from 10 to 90: whole-series return is out of band
	start := end.AddDate(-11, 0, 0)
	days := end.Sub(start).Hours() / 24
	prices := contracts.PriceSeries{Symbol: "GROW"}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		elapsed := d.Sub(start).Hours() / 24
		prices.Points = append(prices.Points, contracts.PricePoint{Date: d, Price: 10 * math.Pow(9, elapsed/days)})
	}

	snap, err := e.Compute(prices, contracts.DividendSeries{}, end)
	require.NoError(t, err)

	assert.Nil(t, snap.TotalReturn, "8x over 11y is outside the clamp band")
	sub := prices.Since(end.AddDate(0, -12, 0))
	require.NotNil(t, snap.Windows["12m"].TotalReturn)
	assert.InDelta(t, sub.Last().Price/sub.First().Price-1, *snap.Windows["12m"].TotalReturn, 1e-12)
	assert.Nil(t, snap.Windows["10y"].TotalReturn)

	t.Run("shortest covered window out of band fails", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Windows, _ = ParseWindows([]string{"10y"})
		long := NewEngine(cfg, nil, nil)

		_, err := long.Compute(prices, contracts.DividendSeries{}, end)
		var ce *contracts.ComputationError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, []string{"total_return"}, ce.Missing)
	})
}

func TestEngine_Compute_Incomplete(t *testing.T) {
	e, _ := testEngine(t)

	_, err := e.Compute(series(100, 700), contracts.DividendSeries{}, day0)
	var ce *contracts.ComputationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, contracts.CodeIncompleteMetrics, ce.Code)
	assert.Equal(t, []string{"total_return"}, ce.Missing)
	assert.Equal(t, contracts.CodeIncompleteMetrics, contracts.ErrorCode(err))

	_, err = e.Compute(contracts.PriceSeries{Symbol: "EMPTY"}, contracts.DividendSeries{}, day0)
	require.True(t, errors.As(err, &ce))
	assert.ElementsMatch(t, []string{"current_price", "total_return"}, ce.Missing)

	t.Run("relaxed policy", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.RequireBasicReturn = false
		relaxed := NewEngine(cfg, nil, nil)
		snap, err := relaxed.Compute(series(100, 700), contracts.DividendSeries{}, day0)
		require.NoError(t, err)
		assert.Nil(t, snap.TotalReturn)
		assert.NotNil(t, snap.CurrentPrice)
	})
}

func TestEngine_Compute_DoesNotMutateInput(t *testing.T) {
	e, _ := testEngine(t)
	prices := series(100, 101, 99, 102)
	before := append([]contracts.PricePoint(nil), prices.Points...)

	_, err := e.Compute(prices, contracts.DividendSeries{}, day0)
	require.NoError(t, err)
	assert.Equal(t, before, prices.Points)
}
