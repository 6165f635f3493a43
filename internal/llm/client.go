// Package llm wraps the hosted language-model APIs behind one Client
// interface. A single Invoke may span several HTTP rounds: whenever the model
// asks for a tool, the client runs it through the supplied executor and feeds
// the result back until the model produces a final answer.
package llm

import (
	"context"
	"time"

	"researchnerd/internal/types"
)

// Provider represents an LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// DefaultMaxToolRounds bounds tool round-trips when Request.MaxToolRounds is zero.
const DefaultMaxToolRounds = 8

// Client is one hosted model.
type Client interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
	Provider() Provider
	Model() string
}

// Request is one logical model call.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64

	// Tools offered to the model; Execute must be set when Tools is non-empty.
	Tools         []types.ToolDefinition
	Execute       types.ToolExecutor
	MaxToolRounds int
}

// Response is the final model answer.
type Response struct {
	Text       string
	StopReason string
	Usage      types.UsageMetadata
	Rounds     int // HTTP round-trips, including tool rounds
	ToolCalls  int
	Duration   time.Duration
}

// AnthropicConfig holds configuration for Anthropic client.
type AnthropicConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             RetryPolicy
}

// GeminiConfig holds configuration for Gemini client.
type GeminiConfig struct {
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Retry             RetryPolicy
}

func maxRounds(req Request) int {
	if req.MaxToolRounds > 0 {
		return req.MaxToolRounds
	}
	return DefaultMaxToolRounds
}
