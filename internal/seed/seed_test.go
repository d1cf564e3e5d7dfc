package seed_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowanhq/ticketflow/internal/seed"
	"github.com/rowanhq/ticketflow/internal/store/sqlite"
	"github.com/rowanhq/ticketflow/internal/testutil"
)

func TestRunSeedsDemoData(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	require.NoError(t, seed.Run(ctx, db))

	counts := map[string]int{}
	for _, table := range []string{"customers", "products", "orders", "order_items", "help_articles"} {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n))
		counts[table] = n
	}
	assert.Equal(t, 5, counts["customers"])
	assert.Equal(t, 10, counts["products"])
	assert.Equal(t, 6, counts["orders"])
	assert.Equal(t, 7, counts["help_articles"])
	assert.Greater(t, counts["order_items"], counts["orders"])

	// The demo order the tools reference resolves through the store.
	commerce := sqlite.NewCommerceRepository(db)
	order, err := commerce.GetOrder(ctx, "ord_12345")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "shipped", order.Status)
	assert.InDelta(t, 195.98, order.Total, 0.001)
	assert.Len(t, order.Items, 2)
	assert.Equal(t, "UPS", order.Carrier)

	cust, err := commerce.FindCustomer(ctx, "john.doe@email.com")
	require.NoError(t, err)
	require.NotNil(t, cust)
	assert.Equal(t, "cust_john_doe", cust.ID)

	articles, err := commerce.SearchHelpArticles(ctx, "billing", "", 5)
	require.NoError(t, err)
	assert.NotEmpty(t, articles)
}

func TestRunIsIdempotent(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	require.NoError(t, seed.Run(ctx, db))
	require.NoError(t, seed.Run(ctx, db))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers").Scan(&n))
	assert.Equal(t, 5, n)
}
