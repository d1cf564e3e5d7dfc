package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rowanhq/ticketflow/internal/domain"
	"github.com/rowanhq/ticketflow/internal/llm"
	"github.com/rowanhq/ticketflow/internal/log"
)

// Pipeline node names.
const (
	NodeClassify = "classify"
	NodeExtract  = "extract"
	NodeResearch = "research"
	NodeDraft    = "draft"
	NodeReview   = "review"
)

var codeFenceRe = regexp.MustCompile("```(?:json)?\n?")

// PipelineGraph is the linear pre-agent workflow: classify, extract,
// research, draft, review, finalize. It never calls tools and so never
// pauses for approval.
type PipelineGraph struct {
	client   llm.Client
	commerce domain.CommerceStore
}

// Ensure PipelineGraph implements Graph.
var _ Graph = (*PipelineGraph)(nil)

// NewPipelineGraph creates the linear workflow.
func NewPipelineGraph(client llm.Client, commerce domain.CommerceStore) *PipelineGraph {
	return &PipelineGraph{client: client, commerce: commerce}
}

// Name implements Graph.
func (g *PipelineGraph) Name() string { return "pipeline" }

// Initial implements Graph.
func (g *PipelineGraph) Initial(ticket *domain.Ticket) *State {
	return &State{
		TicketID:   ticket.ID.String(),
		CustomerID: ticket.CustomerID,
		Subject:    ticket.Subject,
		Body:       ticket.Body,
		Node:       NodeClassify,
	}
}

// Step implements Graph.
func (g *PipelineGraph) Step(ctx context.Context, s *State) (string, error) {
	node := s.Node
	switch node {
	case NodeClassify:
		return node, g.classifyNode(ctx, s)
	case NodeExtract:
		return node, g.extractNode(ctx, s)
	case NodeResearch:
		return node, g.researchNode(ctx, s)
	case NodeDraft:
		return node, g.draftNode(ctx, s)
	case NodeReview:
		return node, g.reviewNode(ctx, s)
	case NodeFinalize:
		return node, g.finalizeNode(s)
	default:
		return node, fmt.Errorf("unknown pipeline node %q", node)
	}
}

func (g *PipelineGraph) classifyNode(ctx context.Context, s *State) error {
	prompt := fmt.Sprintf(`Classify this customer support ticket into exactly one category.

Categories:
- billing: Payment issues, refunds, subscription problems
- technical: Product bugs, errors, functionality issues
- account: Login problems, password resets, account settings
- general: Questions, feedback, other inquiries

Ticket Subject: %s
Ticket Body: %s

Respond with only the category name (billing, technical, account, or general).`,
		s.Subject, s.Body)

	reply, err := g.client.Complete(ctx, "", prompt)
	if err != nil {
		return err
	}

	classification := strings.ToLower(strings.TrimSpace(reply))
	switch classification {
	case "billing", "technical", "account", "general":
	default:
		classification = "general"
	}

	log.Info(log.CatWorkflow, "ticket classified",
		"ticket_id", s.TicketID, "classification", classification)
	s.Classification = classification
	s.Node = NodeExtract
	return nil
}

func (g *PipelineGraph) extractNode(ctx context.Context, s *State) error {
	prompt := fmt.Sprintf(`Extract key entities from this customer support ticket.

Ticket Subject: %s
Ticket Body: %s

Extract the following if present (respond with JSON):
- order_id: Any order or transaction ID mentioned
- product: Product or service name mentioned
- issue_type: Brief description of the issue type
- urgency: low, medium, or high based on tone and content

Respond with valid JSON only.`, s.Subject, s.Body)

	reply, err := g.client.Complete(ctx, "", prompt)
	if err != nil {
		return err
	}

	content := strings.TrimSpace(reply)
	if strings.HasPrefix(content, "```") {
		content = codeFenceRe.ReplaceAllString(content, "")
		content = strings.ReplaceAll(content, "```", "")
	}

	var entities map[string]any
	if err := json.Unmarshal([]byte(content), &entities); err != nil {
		// Malformed model output degrades to defaults instead of failing
		// the run.
		entities = map[string]any{
			"order_id":   nil,
			"product":    nil,
			"issue_type": "unknown",
			"urgency":    "medium",
		}
	}

	s.Entities = entities
	s.Node = NodeResearch
	return nil
}

func (g *PipelineGraph) researchNode(ctx context.Context, s *State) error {
	var results []map[string]any

	articles, err := g.commerce.SearchHelpArticles(ctx, "", s.Subject, 3)
	if err != nil {
		return err
	}
	for _, a := range articles {
		results = append(results, map[string]any{
			"source":  "knowledge_base",
			"title":   a.Title,
			"content": a.Content,
		})
	}

	history, err := g.commerce.ListCustomerTickets(ctx, s.CustomerID, 5)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		tickets := make([]map[string]any, 0, len(history))
		for _, t := range history {
			tickets = append(tickets, map[string]any{
				"id":      t.ID,
				"subject": t.Subject,
				"status":  string(t.Status),
			})
		}
		results = append(results, map[string]any{
			"source":           "customer_history",
			"previous_tickets": len(history),
			"tickets":          tickets,
		})
	}

	log.Info(log.CatWorkflow, "research complete",
		"ticket_id", s.TicketID, "result_count", len(results))
	s.ResearchResults = results
	s.Node = NodeDraft
	return nil
}

func (g *PipelineGraph) draftNode(ctx context.Context, s *State) error {
	var research strings.Builder
	for _, r := range s.ResearchResults {
		if r["source"] == "knowledge_base" {
			fmt.Fprintf(&research, "- %v: %v\n", r["title"], r["content"])
		}
	}

	entities, err := json.Marshal(s.Entities)
	if err != nil {
		return fmt.Errorf("failed to encode entities: %w", err)
	}

	prompt := fmt.Sprintf(`Write a helpful customer support response for this ticket.

Category: %s
Subject: %s
Body: %s

Extracted Information:
%s

Relevant Knowledge Base Articles:
%s

Write a professional, empathetic response that addresses the customer's concern.
Be specific and actionable. Do not make up information.`,
		s.Classification, s.Subject, s.Body, entities, research.String())

	reply, err := g.client.Complete(ctx, "", prompt)
	if err != nil {
		return err
	}

	s.DraftResponse = strings.TrimSpace(reply)
	s.Node = NodeReview
	return nil
}

func (g *PipelineGraph) reviewNode(ctx context.Context, s *State) error {
	prompt := fmt.Sprintf(`Review this customer support response for quality and policy compliance.

Original Ticket:
Subject: %s
Body: %s

Draft Response:
%s

Check for:
1. Does it address the customer's actual concern?
2. Is the tone professional and empathetic?
3. Are there any promises that shouldn't be made?
4. Is the information accurate based on the context provided?

Provide brief review notes (2-3 sentences) on what's good and any concerns.`,
		s.Subject, s.Body, s.DraftResponse)

	reply, err := g.client.Complete(ctx, "", prompt)
	if err != nil {
		return err
	}

	s.ReviewNotes = strings.TrimSpace(reply)
	s.Node = NodeFinalize
	return nil
}

func (g *PipelineGraph) finalizeNode(s *State) error {
	s.FinalResponse = s.DraftResponse
	s.Done = true
	log.Info(log.CatWorkflow, "pipeline finalized", "ticket_id", s.TicketID)
	return nil
}
