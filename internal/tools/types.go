// Package tools provides the registry of capabilities a research call may
// invoke. The registry is shared across calls, so it is goroutine-safe.
//
//	LLM tool_use → Registry.Executor() → validate input → Tool.Execute()
package tools

import (
	"context"
	"time"

	"researchnerd/internal/schema"
	"researchnerd/internal/types"
)

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines one capability offered to the model.
type Tool struct {
	// Name is the unique identifier the model calls the tool by.
	Name string

	// Description explains what the tool does to the model.
	Description string

	// InputSchema is the JSON Schema advertised to the model.
	InputSchema map[string]any

	// Input validates arguments before Execute runs. Optional.
	Input *schema.Shape

	Execute ExecuteFunc
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Definition returns the wire description of the tool.
func (t *Tool) Definition() types.ToolDefinition {
	in := t.InputSchema
	if in == nil {
		in = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return types.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: in,
	}
}

// Invocation records one tool call made on behalf of the model.
type Invocation struct {
	CallID  string
	Tool    string
	Output  string
	Err     error
	Elapsed time.Duration
}
