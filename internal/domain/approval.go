package domain

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalStatus is the decision state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalRequest gates a tool invocation on a human decision.
// At most one pending approval exists per ticket at any time, and
// decisions are guarded by a CAS on status = pending.
type ApprovalRequest struct {
	ID             uuid.UUID
	TicketID       uuid.UUID
	ActionType     string
	ActionParams   map[string]any
	Status         ApprovalStatus
	RequestedAt    time.Time
	DecidedAt      *time.Time
	DecidedBy      string
	DecisionReason string
}

// ApprovalDecision is a human decision on a pending approval.
type ApprovalDecision struct {
	Approved  bool
	DecidedBy string
	Reason    string
}
