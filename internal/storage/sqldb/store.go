package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/storefront-gateway/internal/core/domain"
	"github.com/tjfontaine/storefront-gateway/internal/core/ports"
	"github.com/tjfontaine/storefront-gateway/internal/storage/dialect"
)

// Store is a SQL implementation of ports.WebhookEventStore that supports
// multiple database dialects.
type Store struct {
	db      *sqlx.DB
	dialect dialect.Dialect
}

var _ ports.WebhookEventStore = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if d.Name() == string(dialect.SQLite) {
		// One writer avoids SQLITE_BUSY under concurrent webhook deliveries.
		db.SetMaxOpenConns(1)
	}

	for _, stmt := range d.PragmaStatements() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db, dialect: d}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite opens (and creates) the SQLite database at path.
func NewSQLite(path string) (*Store, error) {
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}
	return New(Config{Driver: "sqlite", DSN: path})
}

// NewPostgres connects to PostgreSQL through the pgx stdlib driver.
func NewPostgres(dsn string) (*Store, error) {
	return New(Config{Driver: "postgres", DSN: dsn})
}

// DB returns the underlying sqlx.DB for advanced operations
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the dialect being used
func (s *Store) Dialect() dialect.Dialect {
	return s.dialect
}

func (s *Store) initSchema() error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS webhook_events (
id TEXT PRIMARY KEY,
provider TEXT NOT NULL,
type TEXT NOT NULL,
payload %s NOT NULL,
request_id TEXT,
received_at %s NOT NULL
)`, s.dialect.BlobType(), s.dialect.TimestampType()),
		`CREATE INDEX IF NOT EXISTS idx_webhook_events_received ON webhook_events(received_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

type eventRow struct {
	ID         string         `db:"id"`
	Provider   string         `db:"provider"`
	Type       string         `db:"type"`
	Payload    []byte         `db:"payload"`
	RequestID  sql.NullString `db:"request_id"`
	ReceivedAt time.Time      `db:"received_at"`
}

func (r *eventRow) toDomain() *domain.WebhookEvent {
	return &domain.WebhookEvent{
		ID:         r.ID,
		Provider:   r.Provider,
		Type:       r.Type,
		Payload:    r.Payload,
		RequestID:  r.RequestID.String,
		ReceivedAt: r.ReceivedAt,
	}
}

// RecordWebhookEvent inserts event unless its id already exists.
func (s *Store) RecordWebhookEvent(ctx context.Context, event *domain.WebhookEvent) (bool, error) {
	if event.ID == "" {
		return false, errors.New("webhook event id is required")
	}
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now().UTC()
	}

	var requestID sql.NullString
	if event.RequestID != "" {
		requestID = sql.NullString{String: event.RequestID, Valid: true}
	}

	query := s.dialect.Rebind(`INSERT INTO webhook_events (id, provider, type, payload, request_id, received_at)
VALUES (?, ?, ?, ?, ?, ?) ` + s.dialect.InsertIgnoreClause("id"))

	res, err := s.db.ExecContext(ctx, query,
		event.ID, event.Provider, event.Type, []byte(event.Payload), requestID, event.ReceivedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	return n == 1, nil
}

// GetWebhookEvent retrieves an event by provider id.
func (s *Store) GetWebhookEvent(ctx context.Context, id string) (*domain.WebhookEvent, error) {
	var row eventRow
	query := s.dialect.Rebind(`SELECT id, provider, type, payload, request_id, received_at
FROM webhook_events WHERE id = ?`)
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ports.ErrEventNotFound
		}
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return row.toDomain(), nil
}

// ListWebhookEvents lists the most recent events first.
func (s *Store) ListWebhookEvents(ctx context.Context, opts ports.ListOptions) ([]*domain.WebhookEvent, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	var rows []eventRow
	query := s.dialect.Rebind(`SELECT id, provider, type, payload, request_id, received_at
FROM webhook_events ORDER BY received_at DESC, id DESC LIMIT ? OFFSET ?`)
	if err := s.db.SelectContext(ctx, &rows, query, limit, opts.Offset); err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}

	events := make([]*domain.WebhookEvent, 0, len(rows))
	for i := range rows {
		events = append(events, rows[i].toDomain())
	}
	return events, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
