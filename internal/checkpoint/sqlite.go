package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/aegis-metrics/internal/contracts"
	"github.com/wonny/aegis-metrics/pkg/clock"
)

// SQLiteStore implements contracts.CheckpointStore on the embedded database.
// The *sql.DB should come from database.OpenSQLite (single connection).
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock
}

// NewSQLiteStore creates a new checkpoint store
func NewSQLiteStore(db *sql.DB, clk clock.Clock) *SQLiteStore {
	if clk == nil {
		clk = clock.New()
	}
	return &SQLiteStore{db: db, clock: clk}
}

// GetStatus returns pending when no record exists
func (s *SQLiteStore) GetStatus(ctx context.Context, symbol string) (contracts.Status, error) {
	rec, err := s.Get(ctx, symbol)
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// Get returns the record for symbol, or a pending record when none exists
func (s *SQLiteStore) Get(ctx context.Context, symbol string) (*contracts.ProcessingRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, status, retry_count, COALESCE(error_code, ''), COALESCE(last_error, ''), processed_at
		FROM checkpoints
		WHERE symbol = ?`, symbol)

	rec, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return pendingRecord(symbol), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", symbol, err)
	}
	return rec, nil
}

// Lookup returns the existing records among symbols. Missing symbols are pending.
func (s *SQLiteStore) Lookup(ctx context.Context, symbols []string) (map[string]contracts.ProcessingRecord, error) {
	out := make(map[string]contracts.ProcessingRecord, len(symbols))

	for _, chunk := range chunks(symbols, lookupChunk) {
		query := `
			SELECT symbol, status, retry_count, COALESCE(error_code, ''), COALESCE(last_error, ''), processed_at
			FROM checkpoints
			WHERE symbol IN (` + placeholders(len(chunk)) + `)`

		rows, err := s.db.QueryContext(ctx, query, toArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("lookup checkpoints: %w", err)
		}

		for rows.Next() {
			rec, err := scanSQLiteRecord(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan checkpoint: %w", err)
			}
			out[rec.Symbol] = *rec
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("lookup checkpoints: %w", err)
		}
	}
	return out, nil
}

// MarkSuccess records a terminal success and clears any error
func (s *SQLiteStore) MarkSuccess(ctx context.Context, symbol string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (symbol, status, retry_count, processed_at, updated_at)
		VALUES (?, 'success', 0, ?, unixepoch())
		ON CONFLICT (symbol) DO UPDATE SET
			status = 'success',
			error_code = NULL,
			last_error = NULL,
			processed_at = excluded.processed_at,
			updated_at = unixepoch()`,
		symbol, s.clock.Now().Unix())
	if err != nil {
		return fmt.Errorf("mark success %s: %w", symbol, err)
	}
	return nil
}

// MarkFailed increments retry_count atomically. A success row is left untouched.
func (s *SQLiteStore) MarkFailed(ctx context.Context, symbol, code, message string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (symbol, status, retry_count, error_code, last_error, processed_at, updated_at)
		VALUES (?, 'failed', 1, ?, ?, ?, unixepoch())
		ON CONFLICT (symbol) DO UPDATE SET
			status = 'failed',
			retry_count = checkpoints.retry_count + 1,
			error_code = excluded.error_code,
			last_error = excluded.last_error,
			processed_at = excluded.processed_at,
			updated_at = unixepoch()
		WHERE checkpoints.status <> 'success'`,
		symbol, code, truncateMessage(message), s.clock.Now().Unix())
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", symbol, err)
	}
	return nil
}

// Reset moves symbols back to pending with a zero retry count.
// An empty list resets every failed record.
func (s *SQLiteStore) Reset(ctx context.Context, symbols []string) (int64, error) {
	const set = `UPDATE checkpoints
		SET status = 'pending', retry_count = 0, error_code = NULL, last_error = NULL, updated_at = unixepoch()`

	if len(symbols) == 0 {
		res, err := s.db.ExecContext(ctx, set+` WHERE status = 'failed'`)
		if err != nil {
			return 0, fmt.Errorf("reset checkpoints: %w", err)
		}
		return res.RowsAffected()
	}

	var total int64
	for _, chunk := range chunks(symbols, lookupChunk) {
		res, err := s.db.ExecContext(ctx, set+` WHERE symbol IN (`+placeholders(len(chunk))+`)`, toArgs(chunk)...)
		if err != nil {
			return total, fmt.Errorf("reset checkpoints: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("reset checkpoints: %w", err)
		}
		total += n
	}
	return total, nil
}

// BatchSummary counts records by status
func (s *SQLiteStore) BatchSummary(ctx context.Context) (contracts.StatusCounts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM checkpoints GROUP BY status`)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*contracts.ProcessingRecord, error) {
	var (
		rec         contracts.ProcessingRecord
		status      string
		processedAt sql.NullInt64
	)
	if err := row.Scan(&rec.Symbol, &status, &rec.RetryCount, &rec.ErrorCode, &rec.LastError, &processedAt); err != nil {
		return nil, err
	}
	rec.Status = contracts.Status(status)
	if processedAt.Valid {
		t := time.Unix(processedAt.Int64, 0).UTC()
		rec.ProcessedAt = &t
	}
	return &rec, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(symbols []string) []any {
	args := make([]any, len(symbols))
	for i, s := range symbols {
		args[i] = s
	}
	return args
}
