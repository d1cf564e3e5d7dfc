package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rowanhq/ticketflow/internal/store/sqlite"
)

func TestOpenAndMigrate(t *testing.T) {
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, sqlite.Migrate(db))

	// Re-applying is a no-op, not an error.
	require.NoError(t, sqlite.Migrate(db))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM tickets`).Scan(&n))
	require.Zero(t, n)

	store := sqlite.New(db)
	require.NoError(t, store.Health(context.Background()))
}
