package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// WAL for concurrent readers; immediate transactions take the write lock at
	// BEGIN so budget read-modify-write cycles serialize across processes too.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite doesn't handle concurrent writes well
	db.SetMaxIdleConns(1)

	return &DB{db}, nil
}

// Migrate runs database migrations
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationOperationMetrics,
		migrationCostBudgets,
		migrationIndexes,
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// dbTime normalizes timestamps so lexical comparison in SQLite matches
// chronological order.
func dbTime(t time.Time) time.Time {
	return t.UTC()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

const migrationOperationMetrics = `
CREATE TABLE IF NOT EXISTS operation_metrics (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	operation TEXT NOT NULL,
	page_id TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	tokens_used INTEGER NOT NULL DEFAULT 0,
	cost_usd REAL NOT NULL DEFAULT 0,
	cache_hit_rate REAL,
	database_queries INTEGER NOT NULL DEFAULT 0,
	api_calls INTEGER NOT NULL DEFAULT 0,
	success INTEGER NOT NULL,
	error_type TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	memory_mb REAL,
	cpu_percent REAL,
	timestamp DATETIME NOT NULL
);
`

const migrationCostBudgets = `
CREATE TABLE IF NOT EXISTS cost_budgets (
	agent_id TEXT PRIMARY KEY,
	daily_budget_usd REAL NOT NULL,
	monthly_budget_usd REAL NOT NULL,
	alert_threshold REAL NOT NULL DEFAULT 0.8,
	today_spent_usd REAL NOT NULL DEFAULT 0,
	month_spent_usd REAL NOT NULL DEFAULT 0,
	last_daily_reset DATETIME NOT NULL,
	last_monthly_reset DATETIME NOT NULL,
	budget_exceeded INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

const migrationIndexes = `
CREATE INDEX IF NOT EXISTS idx_operation_metrics_agent_id ON operation_metrics(agent_id);
CREATE INDEX IF NOT EXISTS idx_operation_metrics_timestamp ON operation_metrics(timestamp);
CREATE INDEX IF NOT EXISTS idx_operation_metrics_duration ON operation_metrics(duration_ms);
CREATE INDEX IF NOT EXISTS idx_operation_metrics_error_type ON operation_metrics(error_type) WHERE success = 0;
CREATE INDEX IF NOT EXISTS idx_cost_budgets_exceeded ON cost_budgets(budget_exceeded);
`
