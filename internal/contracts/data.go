package contracts

import (
	"sort"
	"strings"
	"time"
)

// PricePoint is one dated observation of a security's (adjusted) price
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// PriceSeries is a per-symbol price history, ascending by date with unique dates
// ⭐ SSOT: Source → Validator → Engine 가격 시계열 전달
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// Len returns the number of observations
func (s PriceSeries) Len() int { return len(s.Points) }

// First returns the oldest point. Callers must check Len() first.
func (s PriceSeries) First() PricePoint { return s.Points[0] }

// Last returns the newest point. Callers must check Len() first.
func (s PriceSeries) Last() PricePoint { return s.Points[len(s.Points)-1] }

// Since returns the sub-series with Date >= from (shares the backing array)
func (s PriceSeries) Since(from time.Time) PriceSeries {
	i := sort.Search(len(s.Points), func(i int) bool {
		return !s.Points[i].Date.Before(from)
	})
	return PriceSeries{Symbol: s.Symbol, Points: s.Points[i:]}
}

// Tail returns the last n points, or the whole series if shorter
func (s PriceSeries) Tail(n int) PriceSeries {
	if n >= len(s.Points) {
		return s
	}
	return PriceSeries{Symbol: s.Symbol, Points: s.Points[len(s.Points)-n:]}
}

// Prices returns the raw price values
func (s PriceSeries) Prices() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Price
	}
	return out
}

// NormalizePoints sorts points ascending and keeps the last value for a repeated date.
// Sources call this before handing a series to the pipeline.
func NormalizePoints(points []PricePoint) []PricePoint {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})

	out := points[:0]
	for _, p := range points {
		if n := len(out); n > 0 && out[n-1].Date.Equal(p.Date) {
			out[n-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// DividendEvent is a cash distribution keyed by ex-date
type DividendEvent struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// DividendSeries is a per-symbol dividend history, ascending by date
type DividendSeries struct {
	Symbol string          `json:"symbol"`
	Events []DividendEvent `json:"events"`
}

// WindowMetrics holds the metrics for one rolling window.
// nil means "undetermined", never zero.
type WindowMetrics struct {
	TotalReturn      *float64 `json:"total_return"`
	AnnualizedReturn *float64 `json:"annualized_return"`
	Volatility       *float64 `json:"volatility"`
	Sharpe           *float64 `json:"sharpe"`
	DividendSum      *float64 `json:"dividend_sum"`
}

// Present reports whether the window produced at least one metric
func (w WindowMetrics) Present() bool {
	return w.TotalReturn != nil || w.AnnualizedReturn != nil || w.Volatility != nil ||
		w.Sharpe != nil || w.DividendSum != nil
}

// MetricsSnapshot is one row per (symbol, computation_date).
// Immutable once built; a later snapshot with a newer date supersedes it.
// ⭐ SSOT: Engine → Sink 지표 스냅샷 전달
type MetricsSnapshot struct {
	Symbol          string                   `json:"symbol"`
	ComputationDate time.Time                `json:"computation_date"`
	PriceDate       time.Time                `json:"price_date"` // date of CurrentPrice
	CurrentPrice    *float64                 `json:"current_price"`
	Observations    int                      `json:"observations"`
	TotalReturn     *float64                 `json:"total_return"` // whole fetched series
	MaxDrawdown     *float64                 `json:"max_drawdown"`
	MaxDrawdown12m  *float64                 `json:"max_drawdown_12m"`
	DividendYield   *float64                 `json:"dividend_yield"`
	Windows         map[string]WindowMetrics `json:"windows"`
}

// Status is the checkpoint state of a symbol
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// ProcessingRecord is the checkpoint row for a symbol
type ProcessingRecord struct {
	Symbol      string     `json:"symbol"`
	Status      Status     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	ErrorCode   string     `json:"error_code,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Retryable reports whether an automatic run may pick this symbol up again
func (r ProcessingRecord) Retryable(maxRetries int) bool {
	switch r.Status {
	case StatusSuccess:
		return false
	case StatusFailed:
		if r.ErrorCode == CodeNoData {
			return false
		}
		return r.RetryCount < maxRetries
	default:
		return true
	}
}

// NormalizeSymbol trims and upper-cases a ticker
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeSymbols normalises, drops blanks and de-duplicates preserving order
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Float returns a pointer to v
func Float(v float64) *float64 { return &v }
