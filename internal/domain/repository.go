package domain

import (
	"context"

	"github.com/google/uuid"
)

// TicketStore is the transactional record of tickets. All mutating
// operations except UpdateHeartbeat are guarded by CAS on version and
// return the post-image on success.
type TicketStore interface {
	// CreateTicket inserts a ticket at version 1 and status pending.
	// Returns ErrAlreadyExists if the identity is already present.
	CreateTicket(ctx context.Context, t *Ticket) (*Ticket, error)

	// GetTicket returns the ticket or ErrTicketNotFound.
	GetTicket(ctx context.Context, id uuid.UUID) (*Ticket, error)

	// ListTickets returns a page of tickets newest-first plus the total count.
	ListTickets(ctx context.Context, filter TicketFilter) ([]*Ticket, int, error)

	// UpdateTicket applies the patch iff version matches expectedVersion,
	// incrementing version by one. Returns ErrVersionConflict on a lost
	// race and ErrTicketNotFound if the ticket is absent.
	UpdateTicket(ctx context.Context, id uuid.UUID, patch TicketPatch, expectedVersion int64) (*Ticket, error)

	// UpdateHeartbeat sets last_heartbeat=now and worker_id without
	// bumping version. It is safe to issue from the processing path
	// concurrently with CAS step commits by the same worker.
	UpdateHeartbeat(ctx context.Context, id uuid.UUID, workerID string) error

	// FindTicketByMessageID resolves an email thread reply to the ticket
	// whose metadata carries the given provider message id. Returns
	// ErrTicketNotFound when no ticket matches.
	FindTicketByMessageID(ctx context.Context, messageID string) (*Ticket, error)

	// CountByStatus returns ticket counts keyed by status.
	CountByStatus(ctx context.Context) (map[TicketStatus]int, error)
}

// EventStore is the append-only audit log. Events are never updated or
// deleted.
type EventStore interface {
	AppendEvent(ctx context.Context, e *TicketEvent) error
	ListEvents(ctx context.Context, ticketID uuid.UUID) ([]*TicketEvent, error)
}

// CheckpointStore persists per-ticket workflow snapshots.
type CheckpointStore interface {
	UpsertCheckpoint(ctx context.Context, ticketID uuid.UUID, state []byte, currentStep string) error
	GetCheckpoint(ctx context.Context, ticketID uuid.UUID) (*WorkflowCheckpoint, error)
	DeleteCheckpoint(ctx context.Context, ticketID uuid.UUID) error
}

// ApprovalStore persists approval requests and their decisions.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, a *ApprovalRequest) (*ApprovalRequest, error)
	GetApproval(ctx context.Context, id uuid.UUID) (*ApprovalRequest, error)
	ListPendingApprovals(ctx context.Context) ([]*ApprovalRequest, error)
	ListApprovalsByTicket(ctx context.Context, ticketID uuid.UUID) ([]*ApprovalRequest, error)

	// DecideApproval records the decision iff the request is still
	// pending (CAS on status). Returns ErrAlreadyDecided when the CAS
	// is lost and ErrApprovalNotFound when the request is absent.
	DecideApproval(ctx context.Context, id uuid.UUID, d ApprovalDecision) (*ApprovalRequest, error)
}

// Store bundles the four persistence surfaces behind one handle.
type Store interface {
	TicketStore
	EventStore
	CheckpointStore
	ApprovalStore
}
