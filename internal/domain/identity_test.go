package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketIDDeterministic(t *testing.T) {
	a := TicketID("cust_john_doe", "Where is my order?", "ord_12345")
	b := TicketID("cust_john_doe", "Where is my order?", "ord_12345")
	assert.Equal(t, a, b)
}

func TestTicketIDVariesWithContent(t *testing.T) {
	base := TicketID("cust_1", "subject", "body")

	assert.NotEqual(t, base, TicketID("cust_2", "subject", "body"))
	assert.NotEqual(t, base, TicketID("cust_1", "other", "body"))
	assert.NotEqual(t, base, TicketID("cust_1", "subject", "other"))
}

func TestTicketIDIsVersion5(t *testing.T) {
	id := TicketID("cust_1", "subject", "body")
	require.Equal(t, uuid.Version(5), id.Version())
}

func TestEmailTicketIDSeparateNamespace(t *testing.T) {
	// Identical content under the two derivations must never collide.
	http := TicketID("a", "b", "c")
	email := EmailTicketID("a", "b", "c")
	assert.NotEqual(t, http, email)
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailedPermanent.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.False(t, StatusAwaitingApproval.Terminal())
}
