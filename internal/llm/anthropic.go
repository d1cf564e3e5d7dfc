package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"

	"github.com/rowanhq/ticketflow/internal/log"
)

const defaultMaxTokens = 2048

// Anthropic implements Client over the Anthropic Messages API.
//
// Every call runs inside a circuit breaker and an exponential-backoff
// retry loop; a consistently failing upstream trips the breaker so
// workers fail fast and lean on the queue-level retry instead.
type Anthropic struct {
	client     anthropic.Client
	model      anthropic.Model
	timeout    time.Duration
	maxRetries int
	breaker    *gobreaker.CircuitBreaker
}

// Ensure Anthropic implements Client.
var _ Client = (*Anthropic)(nil)

// AnthropicConfig carries the API settings.
type AnthropicConfig struct {
	APIKey     string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// NewAnthropic creates a Client backed by the Anthropic API.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Anthropic{
		client:     anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:      anthropic.Model(cfg.Model),
		timeout:    timeout,
		maxRetries: cfg.MaxRetries,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "anthropic",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn(log.CatLLM, "circuit breaker state change",
					"breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// Chat sends the conversation and returns the assistant's next turn.
func (a *Anthropic) Chat(ctx context.Context, system string, msgs []Message, tools []ToolDef) (Message, error) {
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: defaultMaxTokens,
		Messages:  toParams(msgs),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, tool := range tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.Properties,
					Required:   tool.Required,
				},
			},
		})
	}

	resp, err := a.call(ctx, params)
	if err != nil {
		return Message{}, err
	}
	return fromResponse(resp), nil
}

// Complete answers a single prompt without tools.
func (a *Anthropic) Complete(ctx context.Context, system, prompt string) (string, error) {
	msg, err := a.Chat(ctx, system, []Message{UserMessage(prompt)}, nil)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// call runs one API request through the breaker with retries.
func (a *Anthropic) call(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	operation := func() (*anthropic.Message, error) {
		res, err := a.breaker.Execute(func() (any, error) {
			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			return a.client.Messages.New(callCtx, params)
		})
		if err != nil {
			// A tripped breaker will not recover within this retry
			// loop; surface immediately.
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			log.Warn(log.CatLLM, "model call failed, will retry", "error", err)
			return nil, err
		}
		return res.(*anthropic.Message), nil
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(a.maxRetries+1)),
	)
	if err != nil {
		return nil, fmt.Errorf("anthropic call failed: %w", err)
	}
	return resp, nil
}

// toParams converts conversation messages to SDK params.
func toParams(msgs []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		if m.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}
		for _, tc := range m.ToolCalls {
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Args, tc.Name))
		}
		for _, tr := range m.ToolResults {
			blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}

		if m.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

// fromResponse flattens the SDK response into a Message.
func fromResponse(resp *anthropic.Message) Message {
	msg := Message{Role: RoleAssistant}
	for i, block := range resp.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			if msg.Content != "" {
				msg.Content += "\n"
			}
			msg.Content += v.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			if raw := resp.Content[i].JSON.Input.Raw(); raw != "" {
				_ = json.Unmarshal([]byte(raw), &args)
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   v.ID,
				Name: v.Name,
				Args: args,
			})
		}
	}
	return msg
}
