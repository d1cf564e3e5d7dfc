// Package sqlite implements the domain store interfaces on SQLite.
//
// All mutating ticket updates go through a CAS on the version column;
// heartbeats use a dedicated path that touches only last_heartbeat and
// worker_id so they can never invalidate a concurrent step commit.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/rowanhq/ticketflow/internal/domain"
)

// Open opens (or creates) the SQLite database at path with WAL journaling
// and a busy timeout suited to concurrent API and worker processes.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// In-memory databases exist per connection; pin the pool to one.
	if strings.Contains(path, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate applies all embedded schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Store bundles the repositories behind a single domain.Store handle.
type Store struct {
	db *sql.DB

	*TicketRepository
	*EventRepository
	*CheckpointRepository
	*ApprovalRepository
}

// Ensure Store implements domain.Store.
var _ domain.Store = (*Store)(nil)

// New creates a Store over an open database.
func New(db *sql.DB) *Store {
	return &Store{
		db:                   db,
		TicketRepository:     NewTicketRepository(db),
		EventRepository:      NewEventRepository(db),
		CheckpointRepository: NewCheckpointRepository(db),
		ApprovalRepository:   NewApprovalRepository(db),
	}
}

// Health verifies the database connection is usable.
func (s *Store) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr("health check", err)
	}
	return nil
}
