package contracts

import (
	"context"
	"time"
)

// SourceAdapter fetches raw series from the market data provider.
// Errors should be *FetchError so that the pipeline can classify them.
// ⭐ SSOT: 외부 시세 소스 인터페이스
type SourceAdapter interface {
	FetchPrices(ctx context.Context, symbol string, start, end time.Time) (PriceSeries, error)
	FetchDividends(ctx context.Context, symbol string) (DividendSeries, error)
}

// SinkAdapter persists snapshots.
// Upsert must be idempotent on (symbol, computation_date).
// ⭐ SSOT: 지표 저장 인터페이스
type SinkAdapter interface {
	Upsert(ctx context.Context, snapshot *MetricsSnapshot) error
}

// CheckpointStore is the sole source of truth for per-symbol progress.
// Every method is atomic per symbol.
// ⭐ SSOT: 체크포인트 인터페이스
type CheckpointStore interface {
	GetStatus(ctx context.Context, symbol string) (Status, error)
	Get(ctx context.Context, symbol string) (*ProcessingRecord, error)
	Lookup(ctx context.Context, symbols []string) (map[string]ProcessingRecord, error)
	MarkSuccess(ctx context.Context, symbol string) error
	MarkFailed(ctx context.Context, symbol, code, message string) error
	Reset(ctx context.Context, symbols []string) (int64, error)
	BatchSummary(ctx context.Context) (StatusCounts, error)
}

// StatusCounts aggregates checkpoint rows by status
type StatusCounts map[Status]int

// Total returns the number of records
func (c StatusCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}
