package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/pkg/clock"
)

// PostgresStore implements contracts.CheckpointStore on pipeline.checkpoints
// ⭐ SSOT: 체크포인트 저장소 (PostgreSQL)
type PostgresStore struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewPostgresStore creates a new checkpoint store
func NewPostgresStore(pool *pgxpool.Pool, clk clock.Clock) *PostgresStore {
	if clk == nil {
		clk = clock.New()
	}
	return &PostgresStore{pool: pool, clock: clk}
}

// GetStatus returns pending when no record exists
func (s *PostgresStore) GetStatus(ctx context.Context, symbol string) (contracts.Status, error) {
	rec, err := s.Get(ctx, symbol)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// Get returns the record for symbol, or a pending record when none exists
func (s *PostgresStore) Get(ctx context.Context, symbol string) (*contracts.ProcessingRecord, error) {
	query := `
		SELECT symbol, status, retry_count, COALESCE(error_code, ''), COALESCE(last_error, ''), processed_at
		FROM pipeline.checkpoints
		WHERE symbol = $1
	`

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, symbol))
	if errors.Is(err, pgx.ErrNoRows) {
		return pendingRecord(symbol), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", symbol, err)
	}
	return rec, nil
}

// Lookup returns the existing records among symbols. Missing symbols are pending.
func (s *PostgresStore) Lookup(ctx context.Context, symbols []string) (map[string]contracts.ProcessingRecord, error) {
	out := make(map[string]contracts.ProcessingRecord, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	query := `
		SELECT symbol, status, retry_count, COALESCE(error_code, ''), COALESCE(last_error, ''), processed_at
		FROM pipeline.checkpoints
		WHERE symbol = ANY($1)
	`

	rows, err := s.pool.Query(ctx, query, symbols)
	if err != nil {
		return nil, fmt.Errorf("lookup checkpoints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out[rec.Symbol] = *rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lookup checkpoints: %w", err)
	}
	return out, nil
}

// MarkSuccess records a terminal success and clears any error
func (s *PostgresStore) MarkSuccess(ctx context.Context, symbol string) error {
	query := `
		INSERT INTO pipeline.checkpoints (symbol, status, retry_count, processed_at, updated_at)
		VALUES ($1, 'success', 0, $2, NOW())
		ON CONFLICT (symbol) DO UPDATE SET
			status = 'success',
			error_code = NULL,
			last_error = NULL,
			processed_at = EXCLUDED.processed_at,
			updated_at = NOW()
	`

	if _, err := s.pool.Exec(ctx, query, symbol, s.clock.Now()); err != nil {
		return fmt.Errorf("mark success %s: %w", symbol, err)
	}
	return nil
}

// MarkFailed increments retry_count atomically. A success row is left untouched.
func (s *PostgresStore) MarkFailed(ctx context.Context, symbol, code, message string) error {
	query := `
		INSERT INTO pipeline.checkpoints (symbol, status, retry_count, error_code, last_error, processed_at, updated_at)
		VALUES ($1, 'failed', 1, $2, $3, $4, NOW())
		ON CONFLICT (symbol) DO UPDATE SET
			status = 'failed',
			retry_count = pipeline.checkpoints.retry_count + 1,
			error_code = EXCLUDED.error_code,
			last_error = EXCLUDED.last_error,
			processed_at = EXCLUDED.processed_at,
			updated_at = NOW()
		WHERE pipeline.checkpoints.status <> 'success'
	`

	if _, err := s.pool.Exec(ctx, query, symbol, code, truncateMessage(message), s.clock.Now()); err != nil {
		return fmt.Errorf("mark failed %s: %w", symbol, err)
	}
	return nil
}

// Reset moves symbols back to pending with a zero retry count.
// An empty list resets every failed record.
func (s *PostgresStore) Reset(ctx context.Context, symbols []string) (int64, error) {
	var (
		query string
		args  []any
	)
	if len(symbols) == 0 {
		query = `
			UPDATE pipeline.checkpoints
			SET status = 'pending', retry_count = 0, error_code = NULL, last_error = NULL, updated_at = NOW()
			WHERE status = 'failed'
		`
	} else {
		query = `
			UPDATE pipeline.checkpoints
			SET status = 'pending', retry_count = 0, error_code = NULL, last_error = NULL, updated_at = NOW()
			WHERE symbol = ANY($1)
		`
		args = append(args, symbols)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset checkpoints: %w", err)
	}
	return tag.RowsAffected(), nil
}

// BatchSummary counts records by status
func (s *PostgresStore) BatchSummary(ctx context.Context) (contracts.StatusCounts, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM pipeline.checkpoints GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("batch summary: %w", err)
	}
	defer rows.Close()

	counts := contracts.StatusCounts{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		counts[contracts.Status(status)] = n
	}
	return counts, rows.Err()
}

func scanRecord(row pgx.Row) (*contracts.ProcessingRecord, error) {
	var (
		rec         contracts.ProcessingRecord
		status      string
		processedAt *time.Time
	)
	if err := row.Scan(&rec.Symbol, &status, &rec.RetryCount, &rec.ErrorCode, &rec.LastError, &processedAt); err != nil {
		return nil, err
	}
	rec.Status = contracts.Status(status)
	rec.ProcessedAt = processedAt
	return &rec, nil
}
