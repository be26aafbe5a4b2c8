package openrouter

import (
	"context"

	"github.com/hattiebot/toolpilot/internal/core"
)

// ToolDefinition is a function tool for the API (OpenAI-compatible).
type ToolDefinition = core.ToolDefinition

// ToolCall is a single tool call from the model.
type ToolCall = core.ToolCall

// ChatCompletionWithTools sends messages and optional tools; returns content and any tool_calls.
func (c *Client) ChatCompletionWithTools(ctx context.Context, messages []Message, tools []ToolDefinition) (string, []ToolCall, error) {
	body := ChatRequest{
		Model:    c.Model,
		Messages: messages,
		Tools:    tools,
	}
	if len(tools) > 0 {
		body.ToolChoice = "auto"
	}
	return c.complete(ctx, body)
}
