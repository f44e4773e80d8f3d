package database

// PostgresSchema is applied in order by DB.Migrate. Every statement is idempotent.
// ⭐ SSOT: 체크포인트/스냅샷 테이블 정의
var PostgresSchema = []string{
	`CREATE SCHEMA IF NOT EXISTS pipeline`,

	`CREATE TABLE IF NOT EXISTS pipeline.checkpoints (
		symbol       TEXT PRIMARY KEY,
		status       TEXT NOT NULL DEFAULT 'pending'
		             CHECK (status IN ('pending', 'success', 'failed')),
		retry_count  INTEGER NOT NULL DEFAULT 0,
		error_code   TEXT,
		last_error   TEXT,
		processed_at TIMESTAMPTZ,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON pipeline.checkpoints (status)`,

	`CREATE TABLE IF NOT EXISTS pipeline.metric_snapshots (
		symbol           TEXT NOT NULL,
		computation_date DATE NOT NULL,
		price_date       DATE NOT NULL,
		current_price    DOUBLE PRECISION,
		observations     INTEGER NOT NULL,
		total_return     DOUBLE PRECISION,
		max_drawdown     DOUBLE PRECISION,
		max_drawdown_12m DOUBLE PRECISION,
		dividend_yield   DOUBLE PRECISION,
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (symbol, computation_date)
	)`,

	`CREATE TABLE IF NOT EXISTS pipeline.window_metrics (
		symbol            TEXT NOT NULL,
		computation_date  DATE NOT NULL,
		window_name       TEXT NOT NULL,
		total_return      DOUBLE PRECISION,
		annualized_return DOUBLE PRECISION,
		volatility        DOUBLE PRECISION,
		sharpe            DOUBLE PRECISION,
		dividend_sum      DOUBLE PRECISION,
		PRIMARY KEY (symbol, computation_date, window_name),
		FOREIGN KEY (symbol, computation_date)
			REFERENCES pipeline.metric_snapshots (symbol, computation_date) ON DELETE CASCADE
	)`,
}

// SQLiteSchema mirrors PostgresSchema for the embedded backend.
// Dates are stored as YYYY-MM-DD text, timestamps as unix seconds.
var SQLiteSchema = []string{
	`CREATE TABLE IF NOT EXISTS checkpoints (
		symbol       TEXT PRIMARY KEY,
		status       TEXT NOT NULL DEFAULT 'pending'
		             CHECK (status IN ('pending', 'success', 'failed')),
		retry_count  INTEGER NOT NULL DEFAULT 0,
		error_code   TEXT,
		last_error   TEXT,
		processed_at INTEGER,
		updated_at   INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	`CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON checkpoints (status)`,

	`CREATE TABLE IF NOT EXISTS metric_snapshots (
		symbol           TEXT NOT NULL,
		computation_date TEXT NOT NULL,
		price_date       TEXT NOT NULL,
		current_price    REAL,
		observations     INTEGER NOT NULL,
		total_return     REAL,
		max_drawdown     REAL,
		max_drawdown_12m REAL,
		dividend_yield   REAL,
		updated_at       INTEGER NOT NULL DEFAULT (unixepoch()),
		PRIMARY KEY (symbol, computation_date)
	)`,

	`CREATE TABLE IF NOT EXISTS window_metrics (
		symbol            TEXT NOT NULL,
		computation_date  TEXT NOT NULL,
		window_name       TEXT NOT NULL,
		total_return      REAL,
		annualized_return REAL,
		volatility        REAL,
		sharpe            REAL,
		dividend_sum      REAL,
		PRIMARY KEY (symbol, computation_date, window_name)
	)`,
}
