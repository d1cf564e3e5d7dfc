// Package tools implements the actions the agent workflow can take on a
// ticket, from read-only lookups to gated financial operations.
//
// Tool-level failures (missing order, bad arguments) are reported inside
// the result map with success=false so the model can react to them; an
// error return is reserved for infrastructure failures.
package tools

import (
	"context"
	"fmt"

	"github.com/rowanhq/ticketflow/internal/llm"
	"github.com/rowanhq/ticketflow/internal/log"
)

// Handler executes a tool against its arguments.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Tool is one registered action.
type Tool struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string

	// RequiresApproval gates execution behind a human decision.
	RequiresApproval bool

	Run Handler
}

// Registry holds the tool set offered to the agent.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewEmptyRegistry creates a registry with no tools registered.
func NewEmptyRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(t Tool) {
	if _, ok := r.tools[t.Name]; !ok {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Defs returns the tool definitions in registration order.
func (r *Registry) Defs() []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, llm.ToolDef{
			Name:        t.Name,
			Description: t.Description,
			Properties:  t.Properties,
			Required:    t.Required,
		})
	}
	return defs
}

// RequiresApproval reports whether the named tool is approval-gated.
// Unknown tools are treated as gated.
func (r *Registry) RequiresApproval(name string) bool {
	t, ok := r.tools[name]
	if !ok {
		return true
	}
	return t.RequiresApproval
}

// Execute runs the named tool. Unknown tools are an error; tool-level
// failures come back inside the result map.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}

	log.Debug(log.CatTools, "executing tool", "tool", name)
	result, err := t.Run(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return result, nil
}

// stringArg extracts an optional string argument.
func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// floatArg extracts a numeric argument; JSON numbers decode as float64.
func floatArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func failure(msg string) map[string]any {
	return map[string]any{"success": false, "error": msg}
}
