package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrRemoteUnavailable indicates the remote store could not be reached.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
)

// RemoteStore is an append-only remote destination for entries.
type RemoteStore interface {
	Insert(ctx context.Context, e Entry) error
	Ping(ctx context.Context) error
	Close() error
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PostgresStore writes entries to a PostgreSQL table. The connection is
// opened and the table created on first use.
type PostgresStore struct {
	dsn    string
	table  string
	logger *zap.Logger

	mu sync.Mutex
	db *sql.DB
}

// NewPostgresStore validates its arguments without connecting.
func NewPostgresStore(dsn, table string, logger *zap.Logger) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: database URL is required", ErrInvalidConfig)
	}
	if table == "" {
		table = "trace_analyses"
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrInvalidConfig, table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{dsn: dsn, table: table, logger: logger}, nil
}

// conn returns the open handle, connecting and creating the schema if there
// is none yet. A failed attempt leaves no handle behind.
func (p *PostgresStore) conn(ctx context.Context) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil {
		return p.db, nil
	}

	db, err := sql.Open("postgres", p.dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrRemoteUnavailable, err)
	}
	if err := p.initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	p.db = db
	p.logger.Info("connected to remote store", zap.String("table", p.table))
	return db, nil
}

func (p *PostgresStore) initSchema(ctx context.Context, db *sql.DB) error {
	table := pq.QuoteIdentifier(p.table)
	index := pq.QuoteIdentifier(p.table + "_created_at_idx")
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL,
		trace TEXT NOT NULL,
		error_type TEXT NOT NULL,
		result JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS %s ON %s (created_at);
	`, table, index, table)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Ping checks connectivity, connecting first if needed.
func (p *PostgresStore) Ping(ctx context.Context) error {
	db, err := p.conn(ctx)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Insert writes one entry. Re-inserting an ID is a no-op so retried writes
// stay idempotent.
func (p *PostgresStore) Insert(ctx context.Context, e Entry) error {
	db, err := p.conn(ctx)
	if err != nil {
		return err
	}
	result, err := json.Marshal(e.Result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	query := fmt.Sprintf(`
	INSERT INTO %s (id, created_at, trace, error_type, result)
	VALUES ($1, $2, $3, $4, $5::jsonb)
	ON CONFLICT (id) DO NOTHING`, pq.QuoteIdentifier(p.table))

	if _, err := db.ExecContext(ctx, query, e.ID, e.Timestamp, e.Trace, e.Result.Error.Kind, string(result)); err != nil {
		return fmt.Errorf("inserting entry: %w", err)
	}
	return nil
}

// Close closes the handle if one is open.
func (p *PostgresStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
