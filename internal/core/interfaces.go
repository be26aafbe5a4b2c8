package core

import (
	"context"
	"encoding/json"
)

// LLMClient abstracts the model provider (OpenRouter or any OpenAI-compatible endpoint).
type LLMClient interface {
	ChatCompletion(ctx context.Context, messages []Message) (string, error)
	ChatCompletionWithTools(ctx context.Context, messages []Message, tools []ToolDefinition) (string, []ToolCall, error)
}

// Connector is a running integration that exposes callable operations against one
// account-linked service. tool is the connector-local operation name.
type Connector interface {
	ID() string
	Invoke(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error)
}
