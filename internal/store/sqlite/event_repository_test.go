package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowanhq/ticketflow/internal/domain"
	"github.com/rowanhq/ticketflow/internal/testutil"
)

func TestAppendAndListEvents(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()

	ticket, err := store.CreateTicket(ctx, newTicket("cust_1", "Subject", "Body"))
	require.NoError(t, err)

	require.NoError(t, store.AppendEvent(ctx, &domain.TicketEvent{
		TicketID:  ticket.ID,
		EventType: domain.EventCreated,
		Payload:   map[string]any{"channel": "http"},
	}))
	require.NoError(t, store.AppendEvent(ctx, domain.NewStatusChangeEvent(ticket.ID, domain.StatusPending, domain.StatusProcessing)))
	require.NoError(t, store.AppendEvent(ctx, domain.NewStepCompleteEvent(ticket.ID, "classify", nil)))
	require.NoError(t, store.AppendEvent(ctx, domain.NewRetryEvent(ticket.ID, 2, "llm timeout")))

	events, err := store.ListEvents(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, domain.EventCreated, events[0].EventType)
	assert.Equal(t, domain.EventStatusChange, events[1].EventType)
	assert.Equal(t, "processing", events[1].Payload["new_status"])
	assert.Equal(t, domain.EventStepComplete, events[2].EventType)
	assert.Equal(t, "classify", events[2].StepName)
	assert.Equal(t, domain.EventRetry, events[3].EventType)
	assert.Equal(t, float64(2), events[3].Payload["attempt"])

	for _, e := range events {
		assert.Equal(t, ticket.ID, e.TicketID)
		assert.False(t, e.CreatedAt.IsZero())
	}
}

func TestListEventsEmpty(t *testing.T) {
	store := testutil.NewTestStore(t)
	ctx := context.Background()

	ticket, err := store.CreateTicket(ctx, newTicket("cust_1", "Subject", "Body"))
	require.NoError(t, err)

	events, err := store.ListEvents(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}
