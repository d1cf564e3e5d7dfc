package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies entries in the per-ticket audit log.
type EventType string

const (
	EventCreated      EventType = "created"
	EventStatusChange EventType = "status_change"
	EventStepComplete EventType = "step_complete"
	EventError        EventType = "error"
	EventRetry        EventType = "retry"
)

// TicketEvent is one append-only audit record. Events are never mutated
// or deleted; the single leaseholder appends them in causal order.
type TicketEvent struct {
	ID        uuid.UUID
	TicketID  uuid.UUID
	EventType EventType
	StepName  string
	Payload   map[string]any
	CreatedAt time.Time
}

// NewCreatedEvent builds the first event of a ticket's log.
func NewCreatedEvent(ticketID uuid.UUID, payload map[string]any) *TicketEvent {
	return &TicketEvent{
		ID:        uuid.New(),
		TicketID:  ticketID,
		EventType: EventCreated,
		Payload:   payload,
	}
}

// NewStatusChangeEvent builds a status_change event carrying the transition.
func NewStatusChangeEvent(ticketID uuid.UUID, from, to TicketStatus) *TicketEvent {
	return &TicketEvent{
		ID:        uuid.New(),
		TicketID:  ticketID,
		EventType: EventStatusChange,
		Payload:   map[string]any{"old_status": string(from), "new_status": string(to)},
	}
}

// NewStepCompleteEvent builds a step_complete event for a workflow step.
func NewStepCompleteEvent(ticketID uuid.UUID, step string, payload map[string]any) *TicketEvent {
	return &TicketEvent{
		ID:        uuid.New(),
		TicketID:  ticketID,
		EventType: EventStepComplete,
		StepName:  step,
		Payload:   payload,
	}
}

// NewErrorEvent builds an error event recording a workflow failure.
func NewErrorEvent(ticketID uuid.UUID, errMsg string) *TicketEvent {
	return &TicketEvent{
		ID:        uuid.New(),
		TicketID:  ticketID,
		EventType: EventError,
		Payload:   map[string]any{"error": errMsg},
	}
}

// NewRetryEvent builds a retry event recording the failed attempt number.
func NewRetryEvent(ticketID uuid.UUID, attempt int, errMsg string) *TicketEvent {
	return &TicketEvent{
		ID:        uuid.New(),
		TicketID:  ticketID,
		EventType: EventRetry,
		Payload:   map[string]any{"attempt": attempt, "error": errMsg},
	}
}
