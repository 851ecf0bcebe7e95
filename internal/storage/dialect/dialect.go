// Package dialect provides database dialect abstractions for the SQL event store.
package dialect

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Dialect represents a SQL database dialect.
type Dialect interface {
	// Name returns the dialect name ("sqlite" or "postgres").
	Name() string

	// DriverName returns the database/sql driver name to use.
	DriverName() string

	// Rebind converts ? placeholders to the dialect's format.
	Rebind(query string) string

	// TimestampType returns the SQL type for timestamps.
	TimestampType() string

	// BlobType returns the SQL type for raw payload bytes.
	BlobType() string

	// InsertIgnoreClause returns the clause that turns a duplicate-key
	// insert into a no-op.
	InsertIgnoreClause(conflictColumn string) string

	// PragmaStatements returns dialect-specific initialization statements.
	PragmaStatements() []string
}

// DialectType represents supported database types.
type DialectType string

const (
	SQLite   DialectType = "sqlite"
	Postgres DialectType = "postgres"
)

// New creates a new Dialect based on the dialect type.
func New(dialectType DialectType) (Dialect, error) {
	return FromDriverName(string(dialectType))
}

// FromDriverName returns the dialect for a given driver or storage type name.
func FromDriverName(driverName string) (Dialect, error) {
	switch strings.ToLower(driverName) {
	case "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	case "postgres", "postgresql", "pgx":
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driverName)
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string               { return "sqlite" }
func (sqliteDialect) DriverName() string         { return "sqlite" }
func (sqliteDialect) Rebind(query string) string { return sqlx.Rebind(sqlx.QUESTION, query) }
func (sqliteDialect) TimestampType() string      { return "TIMESTAMP" }
func (sqliteDialect) BlobType() string           { return "BLOB" }

func (sqliteDialect) InsertIgnoreClause(conflictColumn string) string {
	return fmt.Sprintf("ON CONFLICT(%s) DO NOTHING", conflictColumn)
}

func (sqliteDialect) PragmaStatements() []string {
	return []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
}

type postgresDialect struct{}

func (postgresDialect) Name() string               { return "postgres" }
func (postgresDialect) DriverName() string         { return "pgx" }
func (postgresDialect) Rebind(query string) string { return sqlx.Rebind(sqlx.DOLLAR, query) }
func (postgresDialect) TimestampType() string      { return "TIMESTAMP WITH TIME ZONE" }
func (postgresDialect) BlobType() string           { return "BYTEA" }

func (postgresDialect) InsertIgnoreClause(conflictColumn string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", conflictColumn)
}

func (postgresDialect) PragmaStatements() []string {
	return nil
}
