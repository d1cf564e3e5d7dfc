// Package domain defines the core entities of the ticket pipeline:
// tickets, their append-only event log, workflow checkpoints, and
// approval requests, along with the store interfaces the rest of the
// system depends on.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TicketStatus is the lifecycle state of a ticket.
type TicketStatus string

const (
	StatusPending           TicketStatus = "pending"
	StatusProcessing        TicketStatus = "processing"
	StatusAwaitingApproval  TicketStatus = "awaiting_approval"
	StatusCompleted         TicketStatus = "completed"
	StatusFailedPermanent   TicketStatus = "failed_permanent"
)

// Terminal reports whether the status is sticky: once a ticket is
// completed or failed_permanent, no further status transition is persisted.
func (s TicketStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailedPermanent
}

// Valid reports whether s is a known ticket status.
func (s TicketStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusAwaitingApproval, StatusCompleted, StatusFailedPermanent:
		return true
	}
	return false
}

// Channel identifies how a ticket entered the system.
type Channel string

const (
	ChannelHTTP  Channel = "http"
	ChannelEmail Channel = "email"
)

// Ticket is a durable unit of customer request flowing through the pipeline.
//
// Version strictly increments on every CAS update and is the basis of the
// optimistic-concurrency protocol. WorkerID and StartedAt are set once the
// ticket has been leased for processing at least once.
type Ticket struct {
	ID            uuid.UUID
	CustomerID    string
	Subject       string
	Body          string
	Channel       Channel
	Metadata      map[string]any
	Status        TicketStatus
	Result        map[string]any
	WorkerID      string
	AttemptCount  int
	Version       int64
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	LastHeartbeat *time.Time
}

// TicketPatch is a partial update applied to a ticket under CAS.
// Nil fields are left untouched.
type TicketPatch struct {
	Status        *TicketStatus
	Result        map[string]any
	WorkerID      *string
	AttemptCount  *int
	StartedAt     *time.Time
	CompletedAt   *time.Time
	LastHeartbeat *time.Time
}

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	Status   TicketStatus // empty = all
	Page     int          // 1-based
	PageSize int
}
