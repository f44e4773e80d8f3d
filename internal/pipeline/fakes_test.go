package pipeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/wonny/aegis-metrics/internal/contracts"
)

var asOf = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

// healthySeries is two years of daily closes ending at asOf
func healthySeries(symbol string) contracts.PriceSeries {
	s := contracts.PriceSeries{Symbol: symbol}
	price := 100.0
	for d, i := asOf.AddDate(-2, 0, 0), 0; !d.After(asOf); d, i = d.AddDate(0, 0, 1), i+1 {
		s.Points = append(s.Points, contracts.PricePoint{Date: d, Price: price})
		if i%2 == 0 {
			price *= 1.01
		} else {
			price *= 0.992
		}
	}
	return s
}

// growthSeries compounds smoothly from 10 to 10*multiple over the given years, ending at asOf
func growthSeries(symbol string, years int, multiple float64) contracts.PriceSeries {
	start := asOf.AddDate(-years, 0, 0)
	span := asOf.Sub(start).Hours()
	s := contracts.PriceSeries{Symbol: symbol}
	for d := start; !d.After(asOf); d = d.AddDate(0, 0, 1) {
		s.Points = append(s.Points, contracts.PricePoint{Date: d, Price: 10 * math.Pow(multiple, d.Sub(start).Hours()/span)})
	}
	return s
}

func seriesOf(symbol string, prices ...float64) contracts.PriceSeries {
	s := contracts.PriceSeries{Symbol: symbol}
	for i, p := range prices {
		s.Points = append(s.Points, contracts.PricePoint{Date: asOf.AddDate(0, 0, i-len(prices)+1), Price: p})
	}
	return s
}

// fakeSource serves canned series; errs queue per-call errors for a symbol
type fakeSource struct {
	mu        sync.Mutex
	prices    map[string]contracts.PriceSeries
	dividends map[string]contracts.DividendSeries
	errs      map[string][]error // consumed one per FetchPrices call
	divErrs   map[string]error
	calls     map[string]int
	onFetch   func(symbol string)
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		prices:    map[string]contracts.PriceSeries{},
		dividends: map[string]contracts.DividendSeries{},
		errs:      map[string][]error{},
		divErrs:   map[string]error{},
		calls:     map[string]int{},
	}
}

func (f *fakeSource) FetchPrices(ctx context.Context, symbol string, start, end time.Time) (contracts.PriceSeries, error) {
	f.mu.Lock()
	f.calls[symbol]++
	hook := f.onFetch
	var err error
	if q := f.errs[symbol]; len(q) > 0 {
		err, f.errs[symbol] = q[0], q[1:]
	}
	s, ok := f.prices[symbol]
	f.mu.Unlock()

	if hook != nil {
		hook(symbol)
	}
	if err != nil {
		return contracts.PriceSeries{}, err
	}
	if !ok {
		return contracts.PriceSeries{}, contracts.NewNotFound(symbol, errors.New("unknown symbol"))
	}
	return s, nil
}

func (f *fakeSource) FetchDividends(ctx context.Context, symbol string) (contracts.DividendSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.divErrs[symbol]; err != nil {
		return contracts.DividendSeries{}, err
	}
	return f.dividends[symbol], nil
}

func (f *fakeSource) Calls(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

// fakeSink keeps snapshots in memory and counts writes
type fakeSink struct {
	mu        sync.Mutex
	snapshots map[string]*contracts.MetricsSnapshot
	writes    map[string]int
	failures  map[string]int // remaining forced failures per symbol
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		snapshots: map[string]*contracts.MetricsSnapshot{},
		writes:    map[string]int{},
		failures:  map[string]int{},
	}
}

func (f *fakeSink) Upsert(ctx context.Context, snap *contracts.MetricsSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[snap.Symbol] > 0 {
		f.failures[snap.Symbol]--
		return errors.New("connection reset")
	}
	f.snapshots[snap.Symbol] = snap
	f.writes[snap.Symbol]++
	return nil
}

func (f *fakeSink) Writes(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes[symbol]
}

func (f *fakeSink) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.snapshots)
}

// flakyStore wraps a real store and fails selected operations
type flakyStore struct {
	contracts.CheckpointStore
	failSuccess bool
	failLookup  bool
}

func (s *flakyStore) MarkSuccess(ctx context.Context, symbol string) error {
	if s.failSuccess {
		return errors.New("database is locked")
	}
	return s.CheckpointStore.MarkSuccess(ctx, symbol)
}

func (s *flakyStore) Lookup(ctx context.Context, symbols []string) (map[string]contracts.ProcessingRecord, error) {
	if s.failLookup {
		return nil, errors.New("connection refused")
	}
	return s.CheckpointStore.Lookup(ctx, symbols)
}
