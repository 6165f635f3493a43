package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"researchnerd/internal/logging"
	"researchnerd/internal/types"
)

// generator is the slice of genai.Models the client uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements Client on top of the Google GenAI SDK.
type GeminiClient struct {
	models  generator
	model   string
	limiter *rate.Limiter
	retry   RetryPolicy
}

// NewGeminiClient creates a Gemini client backed by the Gemini API.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrAPIKeyMissing)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGeminiClient(client.Models, cfg), nil
}

func newGeminiClient(models generator, cfg GeminiConfig) *GeminiClient {
	if cfg.Retry == nil {
		cfg.Retry = NoRetry{}
	}
	return &GeminiClient{
		models:  models,
		model:   cfg.Model,
		limiter: newLimiter(cfg.RequestsPerSecond),
		retry:   cfg.Retry,
	}
}

// Provider implements Client.
func (c *GeminiClient) Provider() Provider { return ProviderGemini }

// Model implements Client.
func (c *GeminiClient) Model() string { return c.model }

// Invoke implements Client. Function calls are answered in the same turn
// order the model issued them, keyed by call ID when the API supplies one.
func (c *GeminiClient) Invoke(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	logging.APIDebug("[Gemini] Invoke: model=%s system_len=%d user_len=%d tools=%d",
		c.model, len(req.System), len(req.User), len(req.Tools))

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.InputSchema,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	contents := []*genai.Content{genai.NewContentFromText(req.User, genai.RoleUser)}
	out := &Response{}
	limit := maxRounds(req)

	for {
		resp, err := c.generate(ctx, contents, config)
		if err != nil {
			logging.APIError("[Gemini] Invoke failed after %v: %v", time.Since(start), err)
			return nil, err
		}
		out.Rounds++
		if resp.UsageMetadata != nil {
			out.Usage.Add(types.UsageMetadata{
				InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
				OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
			})
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			return nil, &RemoteCallError{Provider: ProviderGemini, Message: "response contained no candidates", Err: ErrEmptyResponse}
		}
		out.StopReason = string(resp.Candidates[0].FinishReason)

		calls := resp.FunctionCalls()
		if len(calls) == 0 {
			out.Text = resp.Text()
			if out.Text == "" {
				return nil, &RemoteCallError{Provider: ProviderGemini, Message: "response contained no text", Err: ErrEmptyResponse}
			}
			out.Duration = time.Since(start)
			logging.API("[Gemini] Invoke: completed in %v rounds=%d tool_calls=%d response_len=%d",
				out.Duration, out.Rounds, out.ToolCalls, len(out.Text))
			return out, nil
		}

		if req.Execute == nil {
			return nil, &RemoteCallError{Provider: ProviderGemini, Message: ErrNoToolExecutor.Error(), Err: ErrNoToolExecutor}
		}
		if out.Rounds > limit {
			return nil, &RemoteCallError{Provider: ProviderGemini, Message: fmt.Sprintf("model still requesting tools after %d rounds", limit), Err: ErrToolRoundsExceeded}
		}

		parts := make([]*genai.Part, 0, len(calls))
		for _, fc := range calls {
			logging.APIDebug("[Gemini] function_call id=%s name=%s", fc.ID, fc.Name)
			call := types.ToolCall{ID: fc.ID, Name: fc.Name, Input: fc.Args}
			if call.Input == nil {
				call.Input = map[string]any{}
			}
			result, err := req.Execute(ctx, call)
			var payload map[string]any
			if err != nil {
				payload = map[string]any{"error": err.Error()}
			} else {
				payload = map[string]any{"output": result}
			}
			part := genai.NewPartFromFunctionResponse(fc.Name, payload)
			part.FunctionResponse.ID = fc.ID
			parts = append(parts, part)
		}
		out.ToolCalls += len(parts)
		contents = append(contents,
			resp.Candidates[0].Content,
			genai.NewContentFromParts(parts, genai.RoleUser),
		)
	}
}

func (c *GeminiClient) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var result *genai.GenerateContentResponse
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return transportError(ProviderGemini, err)
		}
		resp, err := c.models.GenerateContent(ctx, c.model, contents, config)
		if err != nil {
			return geminiError(err)
		}
		result = resp
		return nil
	})
	return result, err
}

// geminiError maps SDK failures onto RemoteCallError.
func geminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &RemoteCallError{
			Provider:   ProviderGemini,
			StatusCode: apiErr.Code,
			Message:    apiErr.Message,
			Transient:  transientStatus(apiErr.Code),
			Err:        err,
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &RemoteCallError{
			Provider:   ProviderGemini,
			StatusCode: apiErrPtr.Code,
			Message:    apiErrPtr.Message,
			Transient:  transientStatus(apiErrPtr.Code),
			Err:        err,
		}
	}
	return transportError(ProviderGemini, err)
}
