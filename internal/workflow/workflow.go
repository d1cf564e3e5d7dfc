// Package workflow implements the ticket resolution graphs.
//
// A Graph advances one node per Step call; the worker owns the outer
// loop so it can checkpoint, heartbeat, and record an audit event after
// every step. A crashed worker resumes from the last checkpoint without
// repeating completed nodes.
package workflow

import (
	"context"
	"fmt"

	"github.com/rowanhq/ticketflow/internal/domain"
)

// Graph is a step-driven ticket workflow.
type Graph interface {
	// Name identifies the graph in logs and checkpoints.
	Name() string

	// Initial builds the starting state for a ticket.
	Initial(ticket *domain.Ticket) *State

	// Step executes the node named by s.Node, mutates s, and returns
	// the name of the node that ran. Terminal nodes set s.Done.
	Step(ctx context.Context, s *State) (string, error)
}

// Drive runs a graph to completion, invoking observe after each step.
// Kept for direct (non-worker) execution paths such as tests.
func Drive(ctx context.Context, g Graph, s *State, observe func(step string, s *State) error) error {
	for !s.Done {
		if err := ctx.Err(); err != nil {
			return err
		}
		step, err := g.Step(ctx, s)
		if err != nil {
			return fmt.Errorf("workflow %s step %s: %w", g.Name(), step, err)
		}
		if observe != nil {
			if err := observe(step, s); err != nil {
				return err
			}
		}
	}
	return nil
}
