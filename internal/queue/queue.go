// Package queue defines the ticket delivery contract between ingestion
// and workers, plus its RabbitMQ implementation.
//
// Messages carry only the ticket id and attempt number; the database is
// the source of truth for ticket content. Acks are explicit so that a
// worker crash returns the message to the queue for redelivery.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rowanhq/ticketflow/internal/domain"
)

// Envelope is the wire payload enqueued per processing attempt.
type Envelope struct {
	TicketID   uuid.UUID `json:"ticket_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewEnvelope builds an envelope for the given attempt, stamped now.
func NewEnvelope(ticketID uuid.UUID, attempt int) Envelope {
	return Envelope{TicketID: ticketID, Attempt: attempt, EnqueuedAt: time.Now().UTC()}
}

// Encode serializes the envelope for publishing.
func (e Envelope) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return b, nil
}

// DecodeEnvelope parses a message body. A malformed body is a permanent
// condition; callers should dead-letter it rather than requeue.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if e.TicketID == uuid.Nil {
		return Envelope{}, fmt.Errorf("envelope missing ticket id")
	}
	return e, nil
}

// Delivery is one in-flight message awaiting an explicit ack or nack.
type Delivery struct {
	Envelope Envelope

	// Malformed holds the decode error when the broker could not parse
	// the body; such deliveries must be dead-lettered.
	Malformed error

	ack  func() error
	nack func(requeue bool) error
}

// Ack confirms successful handling; the broker drops the message.
func (d *Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack refuses the message. With requeue the broker redelivers it;
// without, it routes to the dead-letter queue.
func (d *Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// Publisher enqueues ticket processing attempts.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// Consumer streams deliveries until the context is cancelled.
type Consumer interface {
	Consume(ctx context.Context) (<-chan Delivery, error)
}

// Broker is the full queue surface the application wires.
type Broker interface {
	Publisher
	Consumer

	// Health reports whether the broker connection is usable.
	Health(ctx context.Context) error
	Close() error
}

// brokerErr classifies a transport failure as ErrBrokerUnavailable.
func brokerErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrBrokerUnavailable)
}
