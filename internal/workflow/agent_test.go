package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowanhq/ticketflow/internal/domain"
	"github.com/rowanhq/ticketflow/internal/llm"
	"github.com/rowanhq/ticketflow/internal/tools"
)

func testTicket() *domain.Ticket {
	return &domain.Ticket{
		ID:         domain.TicketID("cust_john_doe", "Where is my order?", "Order ord_12345 has not arrived."),
		CustomerID: "cust_john_doe",
		Subject:    "Where is my order?",
		Body:       "Order ord_12345 has not arrived.",
	}
}

// stubRegistry returns a registry with one auto tool and one gated tool,
// both canned.
func stubRegistry() *tools.Registry {
	r := tools.NewEmptyRegistry()
	r.Register(tools.Tool{
		Name:        "check_order_status",
		Description: "look up an order",
		Properties:  map[string]any{},
		Run: func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"success": true, "order": map[string]any{"status": "shipped"}}, nil
		},
	})
	r.Register(tools.Tool{
		Name:             "process_refund",
		Description:      "refund an order",
		Properties:       map[string]any{},
		RequiresApproval: true,
		Run: func(_ context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"success": true, "status": "processed"}, nil
		},
	})
	return r
}

func drain(t *testing.T, g Graph, s *State) []string {
	t.Helper()
	var steps []string
	err := Drive(context.Background(), g, s, func(step string, _ *State) error {
		steps = append(steps, step)
		return nil
	})
	require.NoError(t, err)
	return steps
}

func TestAgentDirectAnswer(t *testing.T) {
	client := llm.NewScripted(
		llm.Message{Role: llm.RoleAssistant, Content: "Check our shipping FAQ."},
	)
	g := NewAgentGraph(client, stubRegistry())
	s := g.Initial(testTicket())

	steps := drain(t, g, s)
	assert.Equal(t, []string{NodeAgent, NodeFinalize}, steps)
	assert.True(t, s.Done)
	assert.False(t, s.AwaitingApproval())
	assert.Equal(t, "Check our shipping FAQ.", s.FinalResponse)
	assert.Empty(t, s.ActionsTaken)
}

func TestAgentToolLoop(t *testing.T) {
	client := llm.NewScripted(
		llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "tc_1", Name: "check_order_status", Args: map[string]any{"order_id": "ord_12345"}},
		}},
		llm.Message{Role: llm.RoleAssistant, Content: "Your order shipped and is on the way."},
	)
	g := NewAgentGraph(client, stubRegistry())
	s := g.Initial(testTicket())

	steps := drain(t, g, s)
	assert.Equal(t, []string{NodeAgent, NodeTools, NodeAgent, NodeFinalize}, steps)
	assert.Equal(t, "Your order shipped and is on the way.", s.FinalResponse)

	require.Len(t, s.ActionsTaken, 1)
	assert.Equal(t, "check_order_status", s.ActionsTaken[0].Tool)

	// The tool result went back to the model as a user turn.
	require.Len(t, s.Messages, 4)
	require.Len(t, s.Messages[2].ToolResults, 1)
	assert.Equal(t, "tc_1", s.Messages[2].ToolResults[0].ToolCallID)
	assert.Contains(t, s.Messages[2].ToolResults[0].Content, "shipped")
}

func TestAgentApprovalPause(t *testing.T) {
	client := llm.NewScripted(
		llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "tc_1", Name: "process_refund", Args: map[string]any{
				"order_id": "ord_12345", "amount": 49.99, "reason": "defective",
			}},
		}},
	)
	g := NewAgentGraph(client, stubRegistry())
	s := g.Initial(testTicket())

	steps := drain(t, g, s)
	assert.Equal(t, []string{NodeAgent, NodeAwaitApproval}, steps)
	assert.True(t, s.Done)
	require.True(t, s.AwaitingApproval())
	assert.Equal(t, "process_refund", s.PendingApproval.Tool)
	assert.Equal(t, "tc_1", s.PendingApproval.ToolCallID)
	assert.Contains(t, s.FinalResponse, "requires approval")

	// The gated tool never executed.
	assert.Empty(t, s.ActionsTaken)
	assert.Zero(t, client.Remaining())
}

func TestAgentIterationBound(t *testing.T) {
	// The model keeps asking for the same tool and never answers.
	turns := make([]llm.Message, maxAgentIterations)
	for i := range turns {
		turns[i] = llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "tc", Name: "check_order_status", Args: map[string]any{}},
		}}
	}
	client := llm.NewScripted(turns...)
	g := NewAgentGraph(client, stubRegistry())
	s := g.Initial(testTicket())

	drain(t, g, s)
	assert.True(t, s.Done)
	assert.Equal(t, maxAgentIterations, s.Iterations)
	// No clean answer existed, so the fallback applies.
	assert.Equal(t, agentFallbackResponse, s.FinalResponse)
	assert.Len(t, s.ActionsTaken, maxAgentIterations)
}

func TestAgentResumeFromCheckpoint(t *testing.T) {
	client := llm.NewScripted(
		llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "tc_1", Name: "check_order_status", Args: map[string]any{"order_id": "ord_12345"}},
		}},
	)
	g := NewAgentGraph(client, stubRegistry())
	s := g.Initial(testTicket())

	// Run the first step only, then checkpoint.
	_, err := g.Step(context.Background(), s)
	require.NoError(t, err)
	snapshot, err := s.Encode()
	require.NoError(t, err)

	// A fresh process restores the state and continues where it left off.
	restored, err := DecodeState(snapshot)
	require.NoError(t, err)
	assert.Equal(t, NodeTools, restored.Node)

	resumed := NewAgentGraph(
		llm.NewScripted(llm.Message{Role: llm.RoleAssistant, Content: "On its way."}),
		stubRegistry(),
	)
	steps := drain(t, resumed, restored)
	assert.Equal(t, []string{NodeTools, NodeAgent, NodeFinalize}, steps)
	assert.Equal(t, "On its way.", restored.FinalResponse)
}

func TestAgentStepError(t *testing.T) {
	client := llm.NewScripted() // exhausted immediately
	g := NewAgentGraph(client, stubRegistry())
	s := g.Initial(testTicket())

	_, err := g.Step(context.Background(), s)
	require.Error(t, err)
	assert.False(t, s.Done)
}

func TestStateResult(t *testing.T) {
	s := &State{
		FinalResponse: "done",
		ActionsTaken: []Action{
			{Tool: "check_order_status", Args: map[string]any{"order_id": "ord_1"}},
			{Tool: "process_refund", Approved: true},
		},
		PendingApproval: &PendingApproval{Tool: "process_refund", ToolCallID: "tc_9"},
		Classification:  "billing",
	}

	result := s.Result()
	assert.Equal(t, "done", result["final_response"])
	actions := result["actions_taken"].([]any)
	require.Len(t, actions, 2)
	assert.Equal(t, true, actions[1].(map[string]any)["approved"])
	pending := result["pending_approval"].(map[string]any)
	assert.Equal(t, "process_refund", pending["tool"])
	assert.Equal(t, "billing", result["classification"])
}
