package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-metrics/internal/contracts"
)

// PostgresSink writes snapshots to pipeline.metric_snapshots / pipeline.window_metrics
// ⭐ SSOT: 지표 스냅샷 저장은 여기서만
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates a new sink
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Upsert writes the snapshot and its windows in one transaction.
// Re-running with the same (symbol, computation_date) overwrites in place.
func (s *PostgresSink) Upsert(ctx context.Context, snap *contracts.MetricsSnapshot) error {
	if snap == nil {
		return sinkError("", errors.New("nil snapshot"))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return sinkError(snap.Symbol, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	snapshotQuery := `
		INSERT INTO pipeline.metric_snapshots (
			symbol, computation_date, price_date, current_price, observations,
			total_return, max_drawdown, max_drawdown_12m, dividend_yield, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (symbol, computation_date) DO UPDATE SET
			price_date = EXCLUDED.price_date,
			current_price = EXCLUDED.current_price,
			observations = EXCLUDED.observations,
			total_return = EXCLUDED.total_return,
			max_drawdown = EXCLUDED.max_drawdown,
			max_drawdown_12m = EXCLUDED.max_drawdown_12m,
			dividend_yield = EXCLUDED.dividend_yield,
			updated_at = NOW()
	`
	_, err = tx.Exec(ctx, snapshotQuery,
		snap.Symbol, snap.ComputationDate, snap.PriceDate, snap.CurrentPrice, snap.Observations,
		snap.TotalReturn, snap.MaxDrawdown, snap.MaxDrawdown12m, snap.DividendYield,
	)
	if err != nil {
		return sinkError(snap.Symbol, fmt.Errorf("upsert snapshot: %w", err))
	}

	windowQuery := `
		INSERT INTO pipeline.window_metrics (
			symbol, computation_date, window_name,
			total_return, annualized_return, volatility, sharpe, dividend_sum
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, computation_date, window_name) DO UPDATE SET
			total_return = EXCLUDED.total_return,
			annualized_return = EXCLUDED.annualized_return,
			volatility = EXCLUDED.volatility,
			sharpe = EXCLUDED.sharpe,
			dividend_sum = EXCLUDED.dividend_sum
	`

	names := windowNames(snap.Windows)
	batch := &pgx.Batch{}
	for _, name := range names {
		w := snap.Windows[name]
		batch.Queue(windowQuery,
			snap.Symbol, snap.ComputationDate, name,
			w.TotalReturn, w.AnnualizedReturn, w.Volatility, w.Sharpe, w.DividendSum,
		)
	}
	// windows dropped from configuration since the last write
	batch.Queue(`
		DELETE FROM pipeline.window_metrics
		WHERE symbol = $1 AND computation_date = $2 AND NOT (window_name = ANY($3))`,
		snap.Symbol, snap.ComputationDate, names,
	)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return sinkError(snap.Symbol, fmt.Errorf("upsert windows: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return sinkError(snap.Symbol, fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Get reads back a snapshot. Returns nil, nil when absent.
func (s *PostgresSink) Get(ctx context.Context, symbol string, date time.Time) (*contracts.MetricsSnapshot, error) {
	snap := &contracts.MetricsSnapshot{Symbol: symbol, Windows: map[string]contracts.WindowMetrics{}}

	err := s.pool.QueryRow(ctx, `
		SELECT computation_date, price_date, current_price, observations,
		       total_return, max_drawdown, max_drawdown_12m, dividend_yield
		FROM pipeline.metric_snapshots
		WHERE symbol = $1 AND computation_date = $2`, symbol, date,
	).Scan(&snap.ComputationDate, &snap.PriceDate, &snap.CurrentPrice, &snap.Observations,
		&snap.TotalReturn, &snap.MaxDrawdown, &snap.MaxDrawdown12m, &snap.DividendYield)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", symbol, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT window_name, total_return, annualized_return, volatility, sharpe, dividend_sum
		FROM pipeline.window_metrics
		WHERE symbol = $1 AND computation_date = $2`, symbol, date)
	if err != nil {
		return nil, fmt.Errorf("get windows %s: %w", symbol, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name string
			w    contracts.WindowMetrics
		)
		if err := rows.Scan(&name, &w.TotalReturn, &w.AnnualizedReturn, &w.Volatility, &w.Sharpe, &w.DividendSum); err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		snap.Windows[name] = w
	}
	return snap, rows.Err()
}

// Count returns the number of stored snapshots
func (s *PostgresSink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pipeline.metric_snapshots`).Scan(&n)
	return n, err
}
