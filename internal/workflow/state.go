package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/rowanhq/ticketflow/internal/llm"
)

// Action records one tool invocation taken on behalf of a ticket.
type Action struct {
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args,omitempty"`
	Approved bool           `json:"approved,omitempty"`
}

// PendingApproval marks a gated tool call waiting on a human decision.
type PendingApproval struct {
	Tool       string         `json:"tool"`
	Args       map[string]any `json:"args,omitempty"`
	ToolCallID string         `json:"tool_call_id"`
}

// State is the full workflow snapshot. It round-trips through JSON for
// checkpointing, so every field must serialize cleanly.
type State struct {
	TicketID   string `json:"ticket_id"`
	CustomerID string `json:"customer_id"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`

	// Node is the next node to execute.
	Node string `json:"node"`
	// Done is set by terminal nodes; the drive loop stops on it.
	Done bool `json:"done,omitempty"`

	// Agent conversation.
	Messages   []llm.Message `json:"messages,omitempty"`
	Iterations int           `json:"iterations,omitempty"`

	// Outputs.
	FinalResponse   string           `json:"final_response,omitempty"`
	ActionsTaken    []Action         `json:"actions_taken,omitempty"`
	PendingApproval *PendingApproval `json:"pending_approval,omitempty"`

	// Linear pipeline intermediates.
	Classification  string           `json:"classification,omitempty"`
	Entities        map[string]any   `json:"entities,omitempty"`
	ResearchResults []map[string]any `json:"research_results,omitempty"`
	DraftResponse   string           `json:"draft_response,omitempty"`
	ReviewNotes     string           `json:"review_notes,omitempty"`
}

// Encode serializes the state for checkpointing.
func (s *State) Encode() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workflow state: %w", err)
	}
	return b, nil
}

// DecodeState restores a checkpointed state.
func DecodeState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode workflow state: %w", err)
	}
	return &s, nil
}

// AwaitingApproval reports whether the run paused on a gated action.
func (s *State) AwaitingApproval() bool {
	return s.PendingApproval != nil
}

// Result builds the ticket result document from the state.
func (s *State) Result() map[string]any {
	actions := make([]any, 0, len(s.ActionsTaken))
	for _, a := range s.ActionsTaken {
		entry := map[string]any{"tool": a.Tool}
		if a.Args != nil {
			entry["args"] = a.Args
		}
		if a.Approved {
			entry["approved"] = true
		}
		actions = append(actions, entry)
	}

	result := map[string]any{
		"final_response": s.FinalResponse,
		"actions_taken":  actions,
	}
	if s.PendingApproval != nil {
		result["pending_approval"] = map[string]any{
			"tool":         s.PendingApproval.Tool,
			"args":         s.PendingApproval.Args,
			"tool_call_id": s.PendingApproval.ToolCallID,
		}
	}
	if s.Classification != "" {
		result["classification"] = s.Classification
	}
	if s.Entities != nil {
		result["entities"] = s.Entities
	}
	if s.ReviewNotes != "" {
		result["review_notes"] = s.ReviewNotes
	}
	return result
}
