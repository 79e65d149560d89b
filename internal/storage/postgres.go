package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/openacoustics/audiomoth-configurator/internal/config"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// SQLStore implements Store interface for PostgreSQL and SQLite
type SQLStore struct {
	db     *sql.DB
	tx     *sql.Tx
	driver string
}

// Open opens and pings the configured database
func Open(cfg *config.DatabaseConfig) (*SQLStore, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewSQLStore(db, cfg.Driver), nil
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string) (*SQLStore, error) {
	return Open(&config.DatabaseConfig{Driver: DriverPostgres, DSN: dsn})
}

// NewSQLStore wraps an open database handle
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLStore) BeginTx(ctx context.Context) (Store, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &SQLStore{db: s.db, tx: tx, driver: s.driver}, nil
}

// Commit commits the transaction
func (s *SQLStore) Commit() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Commit()
}

// Rollback rolls back the transaction
func (s *SQLStore) Rollback() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Rollback()
}

// getDB returns tx if in transaction, otherwise db
func (s *SQLStore) getDB() interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
} {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// rebind rewrites ? placeholders as $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) timestampType() string {
	if s.driver == DriverPostgres {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}

// Migrate creates missing tables
func (s *SQLStore) Migrate(ctx context.Context) error {
	ts := s.timestampType()
	statements := []string{
		`CREATE TABLE IF NOT EXISTS configuration_logs (
			id TEXT PRIMARY KEY,
			created_at ` + ts + ` NOT NULL,
			transfer_id TEXT NOT NULL,
			device_id TEXT NOT NULL,
			firmware_version TEXT NOT NULL,
			firmware_description TEXT NOT NULL,
			layout TEXT NOT NULL,
			state TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			scheduled_at ` + ts + ` NOT NULL,
			sent_at ` + ts + ` NOT NULL,
			packet TEXT NOT NULL,
			settings TEXT,
			operator TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_configuration_logs_device ON configuration_logs (device_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS event_logs (
			id TEXT PRIMARY KEY,
			created_at ` + ts + ` NOT NULL,
			device_id TEXT,
			type TEXT NOT NULL,
			level TEXT NOT NULL,
			code TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			details TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_event_logs_created ON event_logs (created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.getDB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// isUniqueViolation matches the duplicate key errors of both drivers
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}
