// Package store is the relational persistence gateway for categories, notes,
// tags and note-tag links. It runs on SQLite or Postgres through database/sql.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS notes (
		id          TEXT PRIMARY KEY,
		category_id TEXT NOT NULL REFERENCES categories(id),
		title       TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		sort_order  INTEGER NOT NULL DEFAULT 0,
		html        TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_category ON notes(category_id, sort_order)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS note_tags (
		note_id TEXT NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
		tag_id  TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (note_id, tag_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_note_tags_tag ON note_tags(tag_id)`,
}

// IDFunc generates primary keys for categories and tags.
type IDFunc func() string

// UUIDv7 returns time-sortable UUID v7 strings.
func UUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// DB wraps a sql.DB with gateway operations.
type DB struct {
	conn   *sql.DB
	driver string
	newID  IDFunc
}

// Option configures a DB.
type Option func(*DB)

// WithIDFunc overrides the id generator (tests use deterministic ids).
func WithIDFunc(fn IDFunc) Option {
	return func(db *DB) {
		db.newID = fn
	}
}

// Open opens (or creates) the database and applies the schema.
// For SQLite the dsn is a file path; for Postgres it is a connection URL.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	var sqlDriver, source string
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		sqlDriver = "sqlite3"
		source = dsn + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	case DriverPostgres:
		sqlDriver = "pgx"
		source = dsn
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}

	conn, err := sql.Open(sqlDriver, source)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if driver == DriverSQLite {
		// One writer at a time; a batch is a sequential chain of statements anyway.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	db := &DB{conn: conn, driver: driver, newID: UUIDv7}
	for _, opt := range opts {
		opt(db)
	}

	for _, stmt := range schemaStatements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("store: apply schema: %w", err)
		}
	}
	return db, nil
}

// Driver reports which dialect the DB speaks.
func (db *DB) Driver() string {
	return db.driver
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// q rebinds '?' placeholders to '$n' for Postgres.
func (db *DB) q(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	return rebind(query)
}

func rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
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
