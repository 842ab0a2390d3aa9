package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "modernc.org/sqlite"             // registers "sqlite"

	"github.com/tokbox/tokbox/internal/config"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DB wraps a *sql.DB with the dialect needed to rewrite placeholders.
// Queries are written with '?' placeholders.
type DB struct {
	*sql.DB
	Driver string
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	var (
		conn *sql.DB
		err  error
	)

	switch cfg.Driver {
	case DriverSQLite:
		conn, err = sql.Open("sqlite", cfg.DSN)
		if err == nil {
			// A single writer avoids SQLITE_BUSY under concurrent requests.
			conn.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		conn, err = sql.Open("pgx", cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{DB: conn, Driver: cfg.Driver}
	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Rebind rewrites '?' placeholders for the active driver.
func (db *DB) Rebind(query string) string {
	if db.Driver != DriverPostgres {
		return query
	}

	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Migrate creates tables and indexes if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	ts := "TIMESTAMP"
	if db.Driver == DriverPostgres {
		ts = "TIMESTAMPTZ"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS analyses (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			user_email TEXT,
			ip_address TEXT,
			mood TEXT NOT NULL DEFAULT '',
			video_url TEXT NOT NULL DEFAULT '',
			video_duration_seconds DOUBLE PRECISION,
			grade TEXT NOT NULL,
			viral_score INTEGER NOT NULL,
			model_used TEXT NOT NULL,
			results TEXT,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_user_created ON analyses(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_ip ON analyses(ip_address)`,
		`CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at)`,
		`CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			plan TEXT NOT NULL DEFAULT 'free',
			updated_at ` + ts + `
		)`,
		`CREATE TABLE IF NOT EXISTS ops_events (
			id TEXT PRIMARY KEY,
			timestamp ` + ts + ` NOT NULL,
			severity TEXT NOT NULL,
			category TEXT NOT NULL,
			message TEXT NOT NULL,
			source TEXT,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ops_events_timestamp ON ops_events(timestamp)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
