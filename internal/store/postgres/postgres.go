// Package postgres implements store.Source backed by PostgreSQL, along with
// fieldship's own run ledger and change notification plumbing.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"

	"github.com/alfredjeanlab/fieldship/internal/model"
	"github.com/alfredjeanlab/fieldship/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Names owned by fieldship inside the application database.
const (
	tablePrefix     = "fieldship_"
	migrationsTable = "fieldship_schema_migrations"
	triggerName     = "fieldship_notify_change"

	// ChangeChannel is the NOTIFY channel the change trigger publishes on.
	ChangeChannel = "fieldship_changes"
)

// PostgresStore implements store.Source backed by a PostgreSQL database.
type PostgresStore struct {
	db     *sql.DB
	schema string

	mu   sync.Mutex
	keys map[string][]string // entity -> primary key columns
}

// Compile-time check that PostgresStore implements store.Source.
var _ store.Source = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
// schema is the schema whose tables are introspected.
func New(databaseURL, schema string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return newStore(db, schema), nil
}

func newStore(db *sql.DB, schema string) *PostgresStore {
	if schema == "" {
		schema = "public"
	}
	return &PostgresStore{db: db, schema: schema, keys: make(map[string][]string)}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Entities lists the base tables of the schema, excluding fieldship's own.
func (s *PostgresStore) Entities(ctx context.Context) ([]string, error) {
	tables, err := queryTables(ctx, s.db, s.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	entities := tables[:0]
	for _, t := range tables {
		if !strings.HasPrefix(t, tablePrefix) {
			entities = append(entities, t)
		}
	}
	return entities, nil
}

// Attributes lists the columns of entity in declaration order.
func (s *PostgresStore) Attributes(ctx context.Context, entity string) ([]string, error) {
	cols, err := queryColumns(ctx, s.db, s.schema, entity)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", entity, err)
	}
	return cols, nil
}

func (s *PostgresStore) Count(ctx context.Context, entity string) (int, error) {
	n, err := queryCount(ctx, s.db, s.table(entity))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", entity, err)
	}
	return n, nil
}

func (s *PostgresStore) Window(ctx context.Context, entity string, offset, limit int) ([]model.Record, error) {
	keys, err := s.primaryKey(ctx, entity)
	if err != nil {
		return nil, err
	}
	recs, err := queryWindow(ctx, s.db, s.table(entity), keys, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("read %s window [%d,+%d): %w", entity, offset, limit, err)
	}
	return recs, nil
}

// Get fetches one record by the first primary key column. It returns
// store.ErrNotFound when no row matches.
func (s *PostgresStore) Get(ctx context.Context, entity, id string) (model.Record, error) {
	keys, err := s.primaryKey(ctx, entity)
	if err != nil {
		return nil, err
	}
	rec, err := queryRecord(ctx, s.db, s.table(entity), keys[0], id)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", entity, id, err)
	}
	return rec, nil
}

// RecordRun appends a backfill run to the ledger.
func (s *PostgresStore) RecordRun(ctx context.Context, run model.BackfillRun) error {
	if err := queryInsertRun(ctx, s.db, run); err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns ledger rows, newest first. An empty entity lists all.
func (s *PostgresStore) ListRuns(ctx context.Context, entity string, limit int) ([]model.BackfillRun, error) {
	runs, err := queryListRuns(ctx, s.db, entity, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// InstallChangeTrigger attaches the change notification trigger to entity,
// replacing any previous one.
func (s *PostgresStore) InstallChangeTrigger(ctx context.Context, entity string) error {
	keys, err := s.primaryKey(ctx, entity)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := queryInstallTrigger(ctx, tx, s.table(entity), keys[0]); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("install change trigger on %s: %w", entity, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// NewChangeListener opens a dedicated connection listening on ChangeChannel.
// Reconnects are handled by the listener and logged.
func NewChangeListener(databaseURL string, logger *slog.Logger) (*pq.Listener, error) {
	l := pq.NewListener(databaseURL, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("change listener", "event", int(ev), "err", err)
		}
	})
	if err := l.Listen(ChangeChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("listen on %s: %w", ChangeChannel, err)
	}
	return l, nil
}

// primaryKey returns the primary key columns of entity, falling back to
// "id" for tables without one.
func (s *PostgresStore) primaryKey(ctx context.Context, entity string) ([]string, error) {
	s.mu.Lock()
	keys, ok := s.keys[entity]
	s.mu.Unlock()
	if ok {
		return keys, nil
	}

	keys, err := queryPrimaryKey(ctx, s.db, s.schema, entity)
	if err != nil {
		return nil, fmt.Errorf("primary key of %s: %w", entity, err)
	}
	if len(keys) == 0 {
		keys = []string{"id"}
	}

	s.mu.Lock()
	s.keys[entity] = keys
	s.mu.Unlock()
	return keys, nil
}

func (s *PostgresStore) table(entity string) string {
	return pq.QuoteIdentifier(s.schema) + "." + pq.QuoteIdentifier(entity)
}
