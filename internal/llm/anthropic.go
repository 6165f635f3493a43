package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"researchnerd/internal/logging"
	"researchnerd/internal/tools"
	"researchnerd/internal/types"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient talks to the Anthropic Messages API directly.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryPolicy
}

// DefaultAnthropicConfig returns sensible defaults.
func DefaultAnthropicConfig(apiKey string) AnthropicConfig {
	return AnthropicConfig{
		APIKey:            apiKey,
		BaseURL:           "https://api.anthropic.com/v1",
		Model:             "claude-sonnet-4-5-20250929",
		Timeout:           5 * time.Minute,
		RequestsPerSecond: 2,
		Retry:             ExponentialRetry{MaxRetries: 3, InitialInterval: time.Second, MaxInterval: 30 * time.Second},
	}
}

// NewAnthropicClient creates a new Anthropic client with custom config.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrAPIKeyMissing)
	}
	def := DefaultAnthropicConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retry == nil {
		cfg.Retry = NoRetry{}
	}

	return &AnthropicClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    newLimiter(cfg.RequestsPerSecond),
		retry:      cfg.Retry,
	}, nil
}

// Provider implements Client.
func (c *AnthropicClient) Provider() Provider { return ProviderAnthropic }

// Model implements Client.
func (c *AnthropicClient) Model() string { return c.model }

// Invoke runs the conversation until the model stops asking for tools.
func (c *AnthropicClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	logging.APIDebug("[Anthropic] Invoke: model=%s system_len=%d user_len=%d tools=%d",
		c.model, len(req.System), len(req.User), len(req.Tools))

	body := anthropicRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.User}},
		Temperature: req.Temperature,
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, anthropicTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}

	out := &Response{}
	limit := maxRounds(req)
	for {
		resp, err := c.send(ctx, body)
		if err != nil {
			logging.APIError("[Anthropic] Invoke failed after %v: %v", time.Since(start), err)
			return nil, err
		}
		out.Rounds++
		out.StopReason = resp.StopReason
		out.Usage.Add(types.UsageMetadata{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		})

		if resp.StopReason != "tool_use" {
			out.Text = collectText(resp.Content)
			if out.Text == "" {
				return nil, &RemoteCallError{Provider: ProviderAnthropic, Message: "response contained no text", Err: ErrEmptyResponse}
			}
			out.Duration = time.Since(start)
			logging.API("[Anthropic] Invoke: completed in %v rounds=%d tool_calls=%d response_len=%d",
				out.Duration, out.Rounds, out.ToolCalls, len(out.Text))
			return out, nil
		}

		if req.Execute == nil {
			return nil, &RemoteCallError{Provider: ProviderAnthropic, Message: ErrNoToolExecutor.Error(), Err: ErrNoToolExecutor}
		}
		if out.Rounds > limit {
			return nil, &RemoteCallError{Provider: ProviderAnthropic, Message: fmt.Sprintf("model still requesting tools after %d rounds", limit), Err: ErrToolRoundsExceeded}
		}

		results := c.runTools(ctx, req.Execute, resp.Content)
		out.ToolCalls += len(results)
		body.Messages = append(body.Messages,
			anthropicMessage{Role: "assistant", Content: resp.Content},
			anthropicMessage{Role: "user", Content: results},
		)
	}
}

// runTools executes every tool_use block and returns the matching tool_result blocks.
func (c *AnthropicClient) runTools(ctx context.Context, exec types.ToolExecutor, blocks []anthropicContentBlock) []anthropicContentBlock {
	var results []anthropicContentBlock
	for _, b := range blocks {
		if b.Type != "tool_use" {
			continue
		}
		call := types.ToolCall{ID: b.ID, Name: b.Name, Input: map[string]any{}}
		if len(b.Input) > 0 {
			if err := json.Unmarshal(b.Input, &call.Input); err != nil {
				results = append(results, toolResult(b.ID, "", &tools.ToolExecutionError{Tool: b.Name, Err: fmt.Errorf("invalid input: %w", err)}))
				continue
			}
		}
		logging.APIDebug("[Anthropic] tool_use id=%s name=%s", b.ID, b.Name)
		content, err := exec(ctx, call)
		results = append(results, toolResult(b.ID, content, err))
	}
	return results
}

func toolResult(id, content string, err error) anthropicContentBlock {
	if err != nil {
		return anthropicContentBlock{Type: "tool_result", ToolUseID: id, Content: tools.ErrorPayload(err), IsError: true}
	}
	return anthropicContentBlock{Type: "tool_result", ToolUseID: id, Content: content}
}

// send performs one Messages API round under the rate limiter and retry policy.
func (c *AnthropicClient) send(ctx context.Context, body anthropicRequest) (*anthropicResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var result *anthropicResponse
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return transportError(ProviderAnthropic, err)
		}
		r, err := c.post(ctx, payload)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (c *AnthropicClient) post(ctx context.Context, payload []byte) (*anthropicResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, &RemoteCallError{Provider: ProviderAnthropic, Message: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ProviderAnthropic, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ProviderAnthropic, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		var env anthropicErrorEnvelope
		if json.Unmarshal(data, &env) == nil && env.Error.Message != "" {
			msg = env.Error.Type + ": " + env.Error.Message
		}
		return nil, &RemoteCallError{
			Provider:   ProviderAnthropic,
			StatusCode: resp.StatusCode,
			Message:    msg,
			Transient:  transientStatus(resp.StatusCode),
		}
	}

	var out anthropicResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &RemoteCallError{Provider: ProviderAnthropic, StatusCode: resp.StatusCode, Message: "failed to parse response", Err: err}
	}
	if out.Error != nil {
		return nil, &RemoteCallError{Provider: ProviderAnthropic, StatusCode: resp.StatusCode, Message: out.Error.Message}
	}
	return &out, nil
}

func collectText(blocks []anthropicContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
