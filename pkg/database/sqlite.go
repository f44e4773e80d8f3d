package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wonny/aegis-metrics/pkg/config"
)

// OpenSQLite opens (or creates) the embedded database and applies SQLiteSchema.
// A single connection serialises all writers; WAL keeps readers unblocked.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if err := MigrateSQLite(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// MigrateSQLite applies SQLiteSchema
func MigrateSQLite(ctx context.Context, db *sql.DB) error {
	for i, stmt := range SQLiteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}

// SQLiteHealthCheck pings the embedded database
func SQLiteHealthCheck(ctx context.Context, db *sql.DB) (*HealthStatus, error) {
	status := &HealthStatus{
		Backend:   config.StoreSQLite,
		Timestamp: time.Now(),
	}

	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		status.Error = err.Error()
		return status, err
	}
	status.ResponseTime = time.Since(start)

	st := db.Stats()
	status.Stats = PoolStats{
		AcquiredConns: int32(st.InUse),
		IdleConns:     int32(st.Idle),
		MaxConns:      int32(st.MaxOpenConnections),
		TotalConns:    int32(st.OpenConnections),
	}
	status.Healthy = true
	return status, nil
}
