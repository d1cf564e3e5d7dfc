package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedReplaysTurns(t *testing.T) {
	client := NewScripted(
		Message{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "tc_1", Name: "check_order_status"}}},
		Message{Role: RoleAssistant, Content: "Your order shipped."},
	)
	ctx := context.Background()

	first, err := client.Chat(ctx, "system", []Message{UserMessage("where is my order")}, nil)
	require.NoError(t, err)
	require.Len(t, first.ToolCalls, 1)
	assert.Equal(t, "check_order_status", first.ToolCalls[0].Name)

	second, err := client.Chat(ctx, "system", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Your order shipped.", second.Content)
	assert.Zero(t, client.Remaining())

	_, err = client.Chat(ctx, "system", nil, nil)
	require.Error(t, err)
}

func TestScriptedComplete(t *testing.T) {
	client := NewScripted(Message{Role: RoleAssistant, Content: "billing"})

	got, err := client.Complete(context.Background(), "classify", "I was double charged")
	require.NoError(t, err)
	assert.Equal(t, "billing", got)
	require.Len(t, client.Prompts, 1)
	assert.Equal(t, "I was double charged", client.Prompts[0])
}
