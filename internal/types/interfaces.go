package types

import (
	"context"
)

// ToolDefinition is a tool as advertised to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall is one tool request taken from a model response. ID echoes the
// provider's tool_use / function-call id.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolExecutor runs one tool call and returns the text handed back to the model.
// A non-nil error is reported to the model as an error payload; it does not end
// the conversation.
type ToolExecutor func(ctx context.Context, call ToolCall) (string, error)

// UsageMetadata is token accounting summed over every round of a call.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates usage across the rounds of one call.
func (u *UsageMetadata) Add(o UsageMetadata) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.TotalTokens += o.TotalTokens
}
