// Package llm abstracts the language model behind a small chat
// interface so workflows can be driven by a scripted client in tests.
//
// Messages are plain JSON-serializable values: workflow checkpoints
// persist the full conversation, so nothing here may hold SDK types.
package llm

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolCall is a model request to invoke a named tool.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult carries a tool's output back to the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is one conversation turn. An assistant turn may carry tool
// calls alongside text; a user turn may carry tool results.
type Message struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// UserMessage builds a plain user turn.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// ToolResultsMessage builds the user turn that answers tool calls.
func ToolResultsMessage(results ...ToolResult) Message {
	return Message{Role: RoleUser, ToolResults: results}
}

// ToolDef describes a tool offered to the model. Properties follow
// JSON Schema; Required lists mandatory property names.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Properties  map[string]any `json:"properties"`
	Required    []string       `json:"required,omitempty"`
}

// Client is the model surface the workflow engine depends on.
type Client interface {
	// Chat sends the conversation with optional tool definitions and
	// returns the assistant's next turn.
	Chat(ctx context.Context, system string, msgs []Message, tools []ToolDef) (Message, error)

	// Complete answers a single prompt with plain text. Used by the
	// linear pipeline workflow, which never calls tools.
	Complete(ctx context.Context, system, prompt string) (string, error)
}
