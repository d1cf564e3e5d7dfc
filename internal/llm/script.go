package llm

import (
	"context"
	"fmt"
	"sync"
)

// Scripted is a Client that replays canned assistant turns in order.
// Tests use it to drive workflows deterministically.
type Scripted struct {
	mu    sync.Mutex
	turns []Message
	next  int

	// Err, when set, is returned by every call instead of a turn.
	Err error

	// ChatCalls records the conversations passed to Chat.
	ChatCalls [][]Message
	// Prompts records the prompts passed to Complete.
	Prompts []string
}

// Ensure Scripted implements Client.
var _ Client = (*Scripted)(nil)

// NewScripted creates a client that replays the given turns.
func NewScripted(turns ...Message) *Scripted {
	return &Scripted{turns: turns}
}

// Chat returns the next scripted turn.
func (s *Scripted) Chat(ctx context.Context, system string, msgs []Message, tools []ToolDef) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ChatCalls = append(s.ChatCalls, append([]Message(nil), msgs...))
	if s.Err != nil {
		return Message{}, s.Err
	}
	if s.next >= len(s.turns) {
		return Message{}, fmt.Errorf("scripted client exhausted after %d turns", len(s.turns))
	}
	turn := s.turns[s.next]
	s.next++
	return turn, nil
}

// Complete returns the next scripted turn's text content.
func (s *Scripted) Complete(ctx context.Context, system, prompt string) (string, error) {
	s.mu.Lock()
	s.Prompts = append(s.Prompts, prompt)
	s.mu.Unlock()

	msg, err := s.Chat(ctx, system, []Message{UserMessage(prompt)}, nil)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// Remaining reports how many scripted turns are unused.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns) - s.next
}
