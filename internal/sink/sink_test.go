package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/pkg/config"
	"github.com/wonny/aegis-metrics/pkg/database"
)

var asOf = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC)

type snapshotReader interface {
	contracts.SinkAdapter
	Get(ctx context.Context, symbol string, date time.Time) (*contracts.MetricsSnapshot, error)
	Count(ctx context.Context) (int, error)
}

func snapshot(symbol string, price float64) *contracts.MetricsSnapshot {
	return &contracts.MetricsSnapshot{
		Symbol:          symbol,
		ComputationDate: asOf,
		PriceDate:       asOf.AddDate(0, 0, -1),
		CurrentPrice:    contracts.Float(price),
		Observations:    800,
		TotalReturn:     contracts.Float(0.42),
		MaxDrawdown:     contracts.Float(-0.31),
		MaxDrawdown12m:  contracts.Float(-0.12),
		DividendYield:   contracts.Float(0.015),
		Windows: map[string]contracts.WindowMetrics{
			"12m": {
				TotalReturn:      contracts.Float(0.1),
				AnnualizedReturn: contracts.Float(0.1),
				Volatility:       contracts.Float(0.2),
				Sharpe:           contracts.Float(0.3),
				DividendSum:      contracts.Float(1.5),
			},
			"10y": {}, // absent window keeps its row with NULLs
		},
	}
}

func newSQLiteSink(t *testing.T) *SQLiteSink {
	t.Helper()
	db, err := database.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "sink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteSink(db)
}

func newPostgresSink(t *testing.T) *PostgresSink {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := database.New(ctx, config.DatabaseConfig{URL: url})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	_, err = db.Pool.Exec(ctx, `TRUNCATE pipeline.metric_snapshots CASCADE`)
	require.NoError(t, err)
	return NewPostgresSink(db.Pool)
}

func TestSQLiteSink(t *testing.T) {
	runSinkSuite(t, func(t *testing.T) snapshotReader { return newSQLiteSink(t) })
}

func TestPostgresSink(t *testing.T) {
	runSinkSuite(t, func(t *testing.T) snapshotReader { return newPostgresSink(t) })
}

func runSinkSuite(t *testing.T, newSink func(t *testing.T) snapshotReader) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		s := newSink(t)
		want := snapshot("AAA", 101.5)
		require.NoError(t, s.Upsert(ctx, want))

		got, err := s.Get(ctx, "AAA", asOf)
		require.NoError(t, err)
		require.NotNil(t, got)

		assert.True(t, got.ComputationDate.Equal(asOf))
		assert.True(t, got.PriceDate.Equal(want.PriceDate))
		assert.Equal(t, *want.CurrentPrice, *got.CurrentPrice)
		assert.Equal(t, want.Observations, got.Observations)
		assert.Equal(t, *want.MaxDrawdown12m, *got.MaxDrawdown12m)
		assert.Equal(t, want.Windows["12m"], got.Windows["12m"])

		absent, ok := got.Windows["10y"]
		require.True(t, ok)
		assert.False(t, absent.Present())
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		s := newSink(t)
		require.NoError(t, s.Upsert(ctx, snapshot("AAA", 100)))
		require.NoError(t, s.Upsert(ctx, snapshot("AAA", 100)))

		got, err := s.Get(ctx, "AAA", asOf)
		require.NoError(t, err)
		assert.Equal(t, 100.0, *got.CurrentPrice)
		assert.Len(t, got.Windows, 2)
	})

	t.Run("later write overwrites in place", func(t *testing.T) {
		s := newSink(t)
		require.NoError(t, s.Upsert(ctx, snapshot("AAA", 100)))

		next := snapshot("AAA", 120)
		next.TotalReturn = nil
		delete(next.Windows, "10y")
		require.NoError(t, s.Upsert(ctx, next))

		got, err := s.Get(ctx, "AAA", asOf)
		require.NoError(t, err)
		assert.Equal(t, 120.0, *got.CurrentPrice)
		assert.Nil(t, got.TotalReturn)
		assert.Len(t, got.Windows, 1, "dropped window pruned")
	})

	t.Run("missing snapshot", func(t *testing.T) {
		s := newSink(t)
		got, err := s.Get(ctx, "NONE", asOf)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("count is one per symbol and date", func(t *testing.T) {
		s := newSink(t)
		require.NoError(t, s.Upsert(ctx, snapshot("AAA", 1)))
		require.NoError(t, s.Upsert(ctx, snapshot("AAA", 2)))
		require.NoError(t, s.Upsert(ctx, snapshot("BBB", 3)))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("nil snapshot is a sink error", func(t *testing.T) {
		s := newSink(t)
		err := s.Upsert(ctx, nil)
		var se *contracts.SinkError
		assert.True(t, errors.As(err, &se))
		assert.Equal(t, contracts.CodeSinkError, contracts.ErrorCode(err))
	})
}

func TestSQLiteSink_ClosedDatabase(t *testing.T) {
	s := newSQLiteSink(t)
	require.NoError(t, s.db.Close())

	err := s.Upsert(context.Background(), snapshot("AAA", 1))
	var se *contracts.SinkError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "AAA", se.Symbol)
}
