package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env := NewEnvelope(uuid.New(), 2)

	body, err := env.Encode()
	require.NoError(t, err)

	decoded, err := DecodeEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, env.TicketID, decoded.TicketID)
	assert.Equal(t, 2, decoded.Attempt)
	assert.WithinDuration(t, env.EnqueuedAt, decoded.EnqueuedAt, time.Second)
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`not json`))
	require.Error(t, err)

	// Valid JSON without a ticket id is also rejected.
	_, err = DecodeEnvelope([]byte(`{"attempt":1}`))
	require.Error(t, err)
}

func receive(t *testing.T, ch <-chan Delivery) Delivery {
	t.Helper()
	select {
	case d, ok := <-ch:
		require.True(t, ok, "delivery channel closed")
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return Delivery{}
	}
}

func TestMemoryPublishConsumeAck(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := NewMemory()
	env := NewEnvelope(uuid.New(), 0)
	require.NoError(t, broker.Publish(ctx, env))

	deliveries, err := broker.Consume(ctx)
	require.NoError(t, err)

	d := receive(t, deliveries)
	assert.Equal(t, env.TicketID, d.Envelope.TicketID)
	require.NoError(t, d.Ack())

	acked := broker.Acked()
	require.Len(t, acked, 1)
	assert.Empty(t, broker.Pending())
	assert.Empty(t, broker.Dead())
}

func TestMemoryNackRequeue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := NewMemory()
	env := NewEnvelope(uuid.New(), 0)
	require.NoError(t, broker.Publish(ctx, env))

	deliveries, err := broker.Consume(ctx)
	require.NoError(t, err)

	d := receive(t, deliveries)
	require.NoError(t, d.Nack(true))

	// The message comes back.
	d = receive(t, deliveries)
	assert.Equal(t, env.TicketID, d.Envelope.TicketID)
	require.NoError(t, d.Ack())
}

func TestMemoryNackDeadLetters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := NewMemory()
	env := NewEnvelope(uuid.New(), 3)
	require.NoError(t, broker.Publish(ctx, env))

	deliveries, err := broker.Consume(ctx)
	require.NoError(t, err)

	d := receive(t, deliveries)
	require.NoError(t, d.Nack(false))

	dead := broker.Dead()
	require.Len(t, dead, 1)
	assert.Equal(t, env.TicketID, dead[0].TicketID)
	assert.Empty(t, broker.Pending())
}

func TestMemoryPublishAfterClose(t *testing.T) {
	broker := NewMemory()
	require.NoError(t, broker.Close())

	err := broker.Publish(context.Background(), NewEnvelope(uuid.New(), 0))
	require.Error(t, err)
	require.Error(t, broker.Health(context.Background()))
}

func TestMemoryConsumeOrdering(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := NewMemory()
	first := NewEnvelope(uuid.New(), 0)
	second := NewEnvelope(uuid.New(), 0)
	require.NoError(t, broker.Publish(ctx, first))
	require.NoError(t, broker.Publish(ctx, second))

	deliveries, err := broker.Consume(ctx)
	require.NoError(t, err)

	d := receive(t, deliveries)
	assert.Equal(t, first.TicketID, d.Envelope.TicketID)
	require.NoError(t, d.Ack())

	d = receive(t, deliveries)
	assert.Equal(t, second.TicketID, d.Envelope.TicketID)
	require.NoError(t, d.Ack())
}
