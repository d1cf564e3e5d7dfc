// Package testutil provides shared helpers for package tests.
package testutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rowanhq/ticketflow/internal/store/sqlite"
)

// NewTestDB opens a fresh in-memory database with all migrations applied.
// The connection is closed automatically when the test finishes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, sqlite.Migrate(db))
	return db
}

// NewTestStore opens a migrated in-memory database and wraps it in a Store.
func NewTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	return sqlite.New(NewTestDB(t))
}
