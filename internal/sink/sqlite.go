package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/aegis-metrics/internal/contracts"
)

// SQLiteSink writes snapshots to the embedded database
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink creates a new sink on a database opened by database.OpenSQLite
func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

// Upsert writes the snapshot and its windows in one transaction
func (s *SQLiteSink) Upsert(ctx context.Context, snap *contracts.MetricsSnapshot) error {
	if snap == nil {
		return sinkError("", errors.New("nil snapshot"))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sinkError(snap.Symbol, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	date := snap.ComputationDate.Format(dateLayout)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO metric_snapshots (
			symbol, computation_date, price_date, current_price, observations,
			total_return, max_drawdown, max_drawdown_12m, dividend_yield, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, unixepoch())
		ON CONFLICT (symbol, computation_date) DO UPDATE SET
			price_date = excluded.price_date,
			current_price = excluded.current_price,
			observations = excluded.observations,
			total_return = excluded.total_return,
			max_drawdown = excluded.max_drawdown,
			max_drawdown_12m = excluded.max_drawdown_12m,
			dividend_yield = excluded.dividend_yield,
			updated_at = unixepoch()`,
		snap.Symbol, date, snap.PriceDate.Format(dateLayout), nullable(snap.CurrentPrice), snap.Observations,
		nullable(snap.TotalReturn), nullable(snap.MaxDrawdown), nullable(snap.MaxDrawdown12m), nullable(snap.DividendYield),
	)
	if err != nil {
		return sinkError(snap.Symbol, fmt.Errorf("upsert snapshot: %w", err))
	}

	names := windowNames(snap.Windows)
	for _, name := range names {
		w := snap.Windows[name]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO window_metrics (
				symbol, computation_date, window_name,
				total_return, annualized_return, volatility, sharpe, dividend_sum
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (symbol, computation_date, window_name) DO UPDATE SET
				total_return = excluded.total_return,
				annualized_return = excluded.annualized_return,
				volatility = excluded.volatility,
				sharpe = excluded.sharpe,
				dividend_sum = excluded.dividend_sum`,
			snap.Symbol, date, name,
			nullable(w.TotalReturn), nullable(w.AnnualizedReturn), nullable(w.Volatility), nullable(w.Sharpe), nullable(w.DividendSum),
		)
		if err != nil {
			return sinkError(snap.Symbol, fmt.Errorf("upsert window %s: %w", name, err))
		}
	}

	// windows dropped from configuration since the last write
	del := `DELETE FROM window_metrics WHERE symbol = ? AND computation_date = ?`
	args := []any{snap.Symbol, date}
	if len(names) > 0 {
		del += ` AND window_name NOT IN (` + strings.TrimSuffix(strings.Repeat("?,", len(names)), ",") + `)`
		for _, n := range names {
			args = append(args, n)
		}
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return sinkError(snap.Symbol, fmt.Errorf("prune windows: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return sinkError(snap.Symbol, fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// Get reads back a snapshot. Returns nil, nil when absent.
func (s *SQLiteSink) Get(ctx context.Context, symbol string, date time.Time) (*contracts.MetricsSnapshot, error) {
	day := date.Format(dateLayout)
	snap := &contracts.MetricsSnapshot{Symbol: symbol, Windows: map[string]contracts.WindowMetrics{}}

	var (
		compDate, priceDate                      string
		price, total, mdd, mdd12m, dividendYield sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT computation_date, price_date, current_price, observations,
		       total_return, max_drawdown, max_drawdown_12m, dividend_yield
		FROM metric_snapshots
		WHERE symbol = ? AND computation_date = ?`, symbol, day,
	).Scan(&compDate, &priceDate, &price, &snap.Observations, &total, &mdd, &mdd12m, &dividendYield)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", symbol, err)
	}

	snap.ComputationDate, _ = time.Parse(dateLayout, compDate)
	snap.PriceDate, _ = time.Parse(dateLayout, priceDate)
	snap.CurrentPrice = fromNull(price)
	snap.TotalReturn = fromNull(total)
	snap.MaxDrawdown = fromNull(mdd)
	snap.MaxDrawdown12m = fromNull(mdd12m)
	snap.DividendYield = fromNull(dividendYield)

	rows, err := s.db.QueryContext(ctx, `
		SELECT window_name, total_return, annualized_return, volatility, sharpe, dividend_sum
		FROM window_metrics
		WHERE symbol = ? AND computation_date = ?`, symbol, day)
	if err != nil {
		return nil, fmt.Errorf("get windows %s: %w", symbol, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name                           string
			tr, ar, vol, sharpe, dividends sql.NullFloat64
		)
		if err := rows.Scan(&name, &tr, &ar, &vol, &sharpe, &dividends); err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		snap.Windows[name] = contracts.WindowMetrics{
			TotalReturn:      fromNull(tr),
			AnnualizedReturn: fromNull(ar),
			Volatility:       fromNull(vol),
			Sharpe:           fromNull(sharpe),
			DividendSum:      fromNull(dividends),
		}
	}
	return snap, rows.Err()
}

// Count returns the number of stored snapshots
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metric_snapshots`).Scan(&n)
	return n, err
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
