package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowCheckpoint is a per-ticket snapshot of workflow state, upserted
// after every step. It is deleted on terminal completion and retained
// across awaiting_approval suspension so the ticket can resume.
type WorkflowCheckpoint struct {
	TicketID    uuid.UUID
	State       []byte // serialized workflow.State (JSON)
	CurrentStep string
	UpdatedAt   time.Time
}
