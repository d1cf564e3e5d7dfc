package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rowanhq/ticketflow/internal/domain"
	"github.com/rowanhq/ticketflow/internal/llm"
	"github.com/rowanhq/ticketflow/internal/log"
	"github.com/rowanhq/ticketflow/internal/tools"
)

// Agent node names.
const (
	NodeAgent         = "agent"
	NodeTools         = "tools"
	NodeAwaitApproval = "await_approval"
	NodeFinalize      = "finalize"
)

// maxAgentIterations bounds the reason/act loop so a model that keeps
// calling tools cannot spin forever. On hitting the bound the run is
// finalized with whatever response exists so far.
const maxAgentIterations = 8

const agentSystemPrompt = `You are an intelligent customer support agent. Your job is to help resolve customer support tickets efficiently and professionally.

## Your Tools

### Information Tools (query the database)
1. **query_help_articles** - Search FAQs and help documentation
   - Use category filter: 'account', 'orders', 'shipping', 'billing', 'technical'
   - Use search_term for keyword search
2. **check_order_status** - Look up order details by order ID (e.g., 'ord_12345')
3. **get_customer_history** - View customer info and past interactions by ID or email
4. **lookup_product** - Find product information by product_id or name_search

### Action Tools
5. **reset_password** - Send password reset email to customer
6. **process_refund** - Issue a refund (REQUIRES APPROVAL)
   - Always verify the order exists first using check_order_status
7. **create_bug_report** - Report technical issues to engineering
8. **escalate_to_human** - Transfer to human agent for complex issues

## Guidelines
1. Query first: use tools to gather information before responding
2. Verify orders: always check order status before processing refunds
3. Use help articles: search FAQs before giving generic answers
4. Be specific: include order numbers, tracking info, etc. in responses
5. Know your limits: escalate when uncertain or when the customer requests a human

## Response Format
After gathering information, provide a clear, helpful response with specific
details from your queries, any actions taken, and next steps for the customer.

Remember: you have real access to customer data, orders, and help documentation. Use it to provide personalized, accurate support.`

const agentFallbackResponse = "I apologize, but I was unable to process your request. " +
	"A human agent will review your ticket shortly."

// AgentGraph is the tool-calling agent workflow: the model reasons,
// invokes tools, and loops until it produces a final answer or requests
// an approval-gated action.
type AgentGraph struct {
	client   llm.Client
	registry *tools.Registry
}

// Ensure AgentGraph implements Graph.
var _ Graph = (*AgentGraph)(nil)

// NewAgentGraph creates the agent workflow.
func NewAgentGraph(client llm.Client, registry *tools.Registry) *AgentGraph {
	return &AgentGraph{client: client, registry: registry}
}

// Name implements Graph.
func (g *AgentGraph) Name() string { return "agent" }

// Initial implements Graph.
func (g *AgentGraph) Initial(ticket *domain.Ticket) *State {
	prompt := fmt.Sprintf(`## Support Ticket

**Ticket ID:** %s
**Customer ID:** %s
**Subject:** %s

**Message:**
%s

Please analyze this ticket and help resolve the customer's issue.`,
		ticket.ID, ticket.CustomerID, ticket.Subject, ticket.Body)

	return &State{
		TicketID:   ticket.ID.String(),
		CustomerID: ticket.CustomerID,
		Subject:    ticket.Subject,
		Body:       ticket.Body,
		Node:       NodeAgent,
		Messages:   []llm.Message{llm.UserMessage(prompt)},
	}
}

// Step implements Graph.
func (g *AgentGraph) Step(ctx context.Context, s *State) (string, error) {
	node := s.Node
	switch node {
	case NodeAgent:
		return node, g.agentNode(ctx, s)
	case NodeTools:
		return node, g.toolsNode(ctx, s)
	case NodeAwaitApproval:
		return node, g.awaitApprovalNode(s)
	case NodeFinalize:
		return node, g.finalizeNode(s)
	default:
		return node, fmt.Errorf("unknown agent node %q", node)
	}
}

// agentNode asks the model for its next move.
func (g *AgentGraph) agentNode(ctx context.Context, s *State) error {
	if s.Iterations >= maxAgentIterations {
		log.Warn(log.CatWorkflow, "agent iteration bound reached",
			"ticket_id", s.TicketID, "iterations", s.Iterations)
		s.Node = NodeFinalize
		return nil
	}
	s.Iterations++

	log.Info(log.CatWorkflow, "agent reasoning",
		"ticket_id", s.TicketID, "message_count", len(s.Messages))

	reply, err := g.client.Chat(ctx, agentSystemPrompt, s.Messages, g.registry.Defs())
	if err != nil {
		return err
	}
	s.Messages = append(s.Messages, reply)

	if len(reply.ToolCalls) == 0 {
		s.Node = NodeFinalize
		return nil
	}

	// A single gated call pauses the whole run; the approval service
	// resumes it after the human decision.
	for _, tc := range reply.ToolCalls {
		if g.registry.RequiresApproval(tc.Name) {
			log.Info(log.CatWorkflow, "agent approval required",
				"ticket_id", s.TicketID, "tool", tc.Name)
			s.PendingApproval = &PendingApproval{
				Tool:       tc.Name,
				Args:       tc.Args,
				ToolCallID: tc.ID,
			}
			s.Node = NodeAwaitApproval
			return nil
		}
	}

	s.Node = NodeTools
	return nil
}

// toolsNode executes the tool calls from the last assistant turn.
func (g *AgentGraph) toolsNode(ctx context.Context, s *State) error {
	if len(s.Messages) == 0 {
		return fmt.Errorf("tools node reached with empty conversation")
	}
	last := s.Messages[len(s.Messages)-1]

	var results []llm.ToolResult
	for _, tc := range last.ToolCalls {
		output, err := g.registry.Execute(ctx, tc.Name, tc.Args)
		if err != nil {
			return err
		}
		content, err := encodeToolOutput(output)
		if err != nil {
			return err
		}
		success, _ := output["success"].(bool)
		results = append(results, llm.ToolResult{
			ToolCallID: tc.ID,
			Content:    content,
			IsError:    !success,
		})
		s.ActionsTaken = append(s.ActionsTaken, Action{Tool: tc.Name, Args: tc.Args})
	}

	s.Messages = append(s.Messages, llm.ToolResultsMessage(results...))
	s.Node = NodeAgent
	return nil
}

// awaitApprovalNode parks the run pending a human decision.
func (g *AgentGraph) awaitApprovalNode(s *State) error {
	tool := "action"
	if s.PendingApproval != nil {
		tool = s.PendingApproval.Tool
	}
	s.FinalResponse = fmt.Sprintf(
		"Your request requires approval. A support manager will review and approve the %s shortly.", tool)
	s.Done = true
	return nil
}

// finalizeNode extracts the last plain assistant turn as the response.
func (g *AgentGraph) finalizeNode(s *State) error {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == llm.RoleAssistant && len(m.ToolCalls) == 0 && m.Content != "" {
			s.FinalResponse = m.Content
			s.Done = true
			log.Info(log.CatWorkflow, "agent finalized",
				"ticket_id", s.TicketID, "response_length", len(m.Content))
			return nil
		}
	}

	s.FinalResponse = agentFallbackResponse
	s.Done = true
	return nil
}

// encodeToolOutput renders a tool result for the model.
func encodeToolOutput(output map[string]any) (string, error) {
	b, err := json.Marshal(output)
	if err != nil {
		return "", fmt.Errorf("failed to encode tool output: %w", err)
	}
	return string(b), nil
}
