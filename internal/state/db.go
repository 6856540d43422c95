package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// DB is the shared connection pool. Report persistence is optional; callers
// must tolerate DB being nil when no database is configured.
var DB *sql.DB

// DBConfig holds Postgres connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// InitDB opens the connection pool and verifies it with a ping.
func InitDB(cfg DBConfig) error {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	pool.SetMaxOpenConns(10)
	pool.SetMaxIdleConns(10)
	pool.SetConnMaxLifetime(5 * time.Minute)

	if err := pool.Ping(); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	DB = pool
	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Connected to PostgreSQL")
	return nil
}

// CloseDB shuts down the pool if one was opened.
func CloseDB() {
	if DB == nil {
		return
	}
	log.Info().Msg("Closing database connection")
	if err := DB.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing database connection")
	}
}

// EnsureSchema applies the DDL for the report store and cycle counter. Safe
// to run on every start.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	const schemaSQL = `
		CREATE TABLE IF NOT EXISTS cycle_reports (
			report_id SERIAL PRIMARY KEY,
			cycle_number INTEGER NOT NULL,
			report_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,

			state_hash VARCHAR(66) NOT NULL,
			health_status VARCHAR(20) NOT NULL,

			action VARCHAR(30) NOT NULL,
			confidence DECIMAL(5, 4) NOT NULL,
			reasoning TEXT,

			executed BOOLEAN NOT NULL,
			tx_hash VARCHAR(66),
			block_number BIGINT,
			gas_used BIGINT,
			error_message TEXT,

			cycle_duration_ms BIGINT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_cycle_reports_timestamp ON cycle_reports(report_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_cycle_reports_cycle ON cycle_reports(cycle_number DESC);

		CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		INSERT INTO cycle_counter (id, current_cycle)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured")
	return nil
}

// TestDBConnection pings the pool with a short timeout. Used by the health
// endpoint.
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
