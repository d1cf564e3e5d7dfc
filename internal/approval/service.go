// Package approval resolves human decisions on gated tool calls and
// settles the paused tickets behind them.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rowanhq/ticketflow/internal/domain"
	"github.com/rowanhq/ticketflow/internal/log"
	"github.com/rowanhq/ticketflow/internal/metrics"
	"github.com/rowanhq/ticketflow/internal/tools"
)

// Service decides approval requests. The decision CAS on the approval
// row is what makes the gated action at-most-once: only the caller that
// wins the pending->decided transition executes the tool.
type Service struct {
	store    domain.Store
	registry *tools.Registry
}

// NewService creates an approval Service executing approved actions
// through the given registry.
func NewService(store domain.Store, registry *tools.Registry) *Service {
	return &Service{store: store, registry: registry}
}

// Outcome reports what a decision did.
type Outcome struct {
	Approval       *domain.ApprovalRequest
	ActionExecuted bool
	Message        string
}

// ListPending returns all undecided approval requests.
func (s *Service) ListPending(ctx context.Context) ([]*domain.ApprovalRequest, error) {
	return s.store.ListPendingApprovals(ctx)
}

// Get returns one approval request or domain.ErrApprovalNotFound.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.ApprovalRequest, error) {
	return s.store.GetApproval(ctx, id)
}

// Decide records a human decision and settles the ticket. An approved
// action is executed exactly once; a tool-level failure is recorded in
// the outcome but still completes the ticket, since the human already
// ruled on it. Returns domain.ErrAlreadyDecided when another decision
// won the race.
func (s *Service) Decide(ctx context.Context, id uuid.UUID, d domain.ApprovalDecision) (*Outcome, error) {
	decided, err := s.store.DecideApproval(ctx, id, d)
	if err != nil {
		return nil, err
	}

	if err := s.store.AppendEvent(ctx, &domain.TicketEvent{
		ID:        uuid.New(),
		TicketID:  decided.TicketID,
		EventType: domain.EventStatusChange,
		StepName:  "approval_decision",
		Payload: map[string]any{
			"approval_id": id.String(),
			"action_type": decided.ActionType,
			"approved":    d.Approved,
			"decided_by":  d.DecidedBy,
			"reason":      d.Reason,
		},
	}); err != nil {
		return nil, err
	}

	ticket, err := s.store.GetTicket(ctx, decided.TicketID)
	if err != nil {
		return nil, err
	}

	out := &Outcome{Approval: decided}
	action := strings.ReplaceAll(decided.ActionType, "_", " ")

	result := ticket.Result
	if result == nil {
		result = map[string]any{}
	}
	result["pending_approval"] = nil

	if d.Approved {
		executed, execErr := s.execute(ctx, decided)
		out.ActionExecuted = executed
		switch {
		case execErr != nil:
			out.Message = fmt.Sprintf("Action approved but execution failed: %v", execErr)
			log.ErrorErr(log.CatApproval, "approved action failed", execErr,
				"approval_id", id, "ticket_id", decided.TicketID, "action_type", decided.ActionType)
		default:
			out.Message = fmt.Sprintf("Action %q approved and executed", decided.ActionType)
			log.Info(log.CatApproval, "approved action executed",
				"approval_id", id, "ticket_id", decided.TicketID, "action_type", decided.ActionType)
		}

		result["final_response"] = fmt.Sprintf(
			"Your %s request has been approved and processed.", action)
		actions, _ := result["actions_taken"].([]any)
		result["actions_taken"] = append(actions, map[string]any{
			"tool":     decided.ActionType,
			"args":     decided.ActionParams,
			"approved": true,
		})
		metrics.ApprovalsDecided.WithLabelValues("approved").Inc()
	} else {
		reason := d.Reason
		if reason == "" {
			reason = "No reason provided"
		}
		result["final_response"] = fmt.Sprintf(
			"Your %s request was reviewed but not approved. Reason: %s", action, reason)
		out.Message = fmt.Sprintf("Action %q rejected", decided.ActionType)
		log.Info(log.CatApproval, "approval rejected",
			"approval_id", id, "ticket_id", decided.TicketID,
			"action_type", decided.ActionType, "reason", d.Reason)
		metrics.ApprovalsDecided.WithLabelValues("rejected").Inc()
	}

	if err := s.completeTicket(ctx, ticket, result); err != nil {
		return nil, err
	}
	return out, nil
}

// execute runs the gated tool. A map-level failure counts as not
// executed; only the success flag in the result marks it done.
func (s *Service) execute(ctx context.Context, a *domain.ApprovalRequest) (bool, error) {
	result, err := s.registry.Execute(ctx, a.ActionType, a.ActionParams)
	if err != nil {
		return false, err
	}
	if ok, _ := result["success"].(bool); !ok {
		msg, _ := result["error"].(string)
		return false, errors.New(msg)
	}
	return true, nil
}

// completeTicket CASes the ticket from awaiting_approval to completed.
// A single retry covers a concurrent version bump; losing twice means
// something else is mutating a paused ticket, which is a bug upstream.
func (s *Service) completeTicket(ctx context.Context, ticket *domain.Ticket, result map[string]any) error {
	now := time.Now()
	status := domain.StatusCompleted
	patch := domain.TicketPatch{
		Status:      &status,
		Result:      result,
		CompletedAt: &now,
	}

	_, err := s.store.UpdateTicket(ctx, ticket.ID, patch, ticket.Version)
	if errors.Is(err, domain.ErrVersionConflict) {
		current, getErr := s.store.GetTicket(ctx, ticket.ID)
		if getErr != nil {
			return getErr
		}
		_, err = s.store.UpdateTicket(ctx, ticket.ID, patch, current.Version)
	}
	if err != nil {
		return err
	}

	if err := s.store.AppendEvent(ctx, domain.NewStatusChangeEvent(
		ticket.ID, domain.StatusAwaitingApproval, domain.StatusCompleted)); err != nil {
		return err
	}
	if err := s.store.DeleteCheckpoint(ctx, ticket.ID); err != nil {
		return err
	}

	metrics.TicketsProcessed.WithLabelValues(string(domain.StatusCompleted)).Inc()
	return nil
}
