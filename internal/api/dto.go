package api

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rowanhq/ticketflow/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// CreateTicketRequest is the POST /tickets body.
type CreateTicketRequest struct {
	CustomerID string `json:"customer_id" validate:"required,min=1,max=100"`
	Subject    string `json:"subject" validate:"required,min=1,max=500"`
	Body       string `json:"body" validate:"required,min=1,max=10000"`
}

// CreateTicketResponse acknowledges an accepted ticket.
type CreateTicketResponse struct {
	TicketID uuid.UUID           `json:"ticket_id"`
	Status   domain.TicketStatus `json:"status"`
}

// TicketResponse is the full ticket view.
type TicketResponse struct {
	ID           uuid.UUID           `json:"id"`
	CustomerID   string              `json:"customer_id"`
	Subject      string              `json:"subject"`
	Body         string              `json:"body"`
	Channel      domain.Channel      `json:"channel"`
	Metadata     map[string]any      `json:"metadata,omitempty"`
	Status       domain.TicketStatus `json:"status"`
	Result       map[string]any      `json:"result,omitempty"`
	AttemptCount int                 `json:"attempt_count"`
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
}

func toTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           t.ID,
		CustomerID:   t.CustomerID,
		Subject:      t.Subject,
		Body:         t.Body,
		Channel:      t.Channel,
		Metadata:     t.Metadata,
		Status:       t.Status,
		Result:       t.Result,
		AttemptCount: t.AttemptCount,
		CreatedAt:    t.CreatedAt,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
	}
}

// TicketListResponse is a page of tickets.
type TicketListResponse struct {
	Tickets  []TicketResponse `json:"tickets"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// TicketEventResponse is one audit log entry.
type TicketEventResponse struct {
	ID        uuid.UUID        `json:"id"`
	EventType domain.EventType `json:"event_type"`
	StepName  string           `json:"step_name,omitempty"`
	Payload   map[string]any   `json:"payload,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// ApprovalResponse is the full approval request view.
type ApprovalResponse struct {
	ID             uuid.UUID             `json:"id"`
	TicketID       uuid.UUID             `json:"ticket_id"`
	ActionType     string                `json:"action_type"`
	ActionParams   map[string]any        `json:"action_params,omitempty"`
	Status         domain.ApprovalStatus `json:"status"`
	RequestedAt    time.Time             `json:"requested_at"`
	DecidedAt      *time.Time            `json:"decided_at,omitempty"`
	DecidedBy      string                `json:"decided_by,omitempty"`
	DecisionReason string                `json:"decision_reason,omitempty"`
}

func toApprovalResponse(a *domain.ApprovalRequest) ApprovalResponse {
	return ApprovalResponse{
		ID:             a.ID,
		TicketID:       a.TicketID,
		ActionType:     a.ActionType,
		ActionParams:   a.ActionParams,
		Status:         a.Status,
		RequestedAt:    a.RequestedAt,
		DecidedAt:      a.DecidedAt,
		DecidedBy:      a.DecidedBy,
		DecisionReason: a.DecisionReason,
	}
}

// DecideApprovalRequest is the POST /approvals/{id}/decide body.
// Approved is a pointer so an absent field fails validation instead of
// silently rejecting.
type DecideApprovalRequest struct {
	Approved  *bool  `json:"approved" validate:"required"`
	DecidedBy string `json:"decided_by" validate:"required,min=1,max=100"`
	Reason    string `json:"reason" validate:"max=1000"`
}

// DecideApprovalResponse reports the outcome of a decision.
type DecideApprovalResponse struct {
	ApprovalID     uuid.UUID             `json:"approval_id"`
	TicketID       uuid.UUID             `json:"ticket_id"`
	Status         domain.ApprovalStatus `json:"status"`
	ActionExecuted bool                  `json:"action_executed"`
	Message        string                `json:"message"`
}

// DashboardStatsResponse aggregates ticket counts for the dashboard.
type DashboardStatsResponse struct {
	TotalTickets             int `json:"total_tickets"`
	PendingTickets           int `json:"pending_tickets"`
	ProcessingTickets        int `json:"processing_tickets"`
	AwaitingApprovalTickets  int `json:"awaiting_approval_tickets"`
	CompletedTickets         int `json:"completed_tickets"`
	FailedTickets            int `json:"failed_tickets"`
	PendingApprovals         int `json:"pending_approvals"`
}

// HealthResponse reports component health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Queue    string `json:"queue"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
