package llm

import (
	"context"
	"fmt"

	"researchnerd/internal/config"
	"researchnerd/internal/logging"
)

// RetryFromConfig builds the retry policy described by cfg.
func RetryFromConfig(cfg config.RetryConfig) RetryPolicy {
	if cfg.MaxRetries <= 0 {
		return NoRetry{}
	}
	return ExponentialRetry{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.GetInitialInterval(),
		MaxInterval:     cfg.GetMaxInterval(),
	}
}

// New creates the client for the configured provider.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	retry := RetryFromConfig(cfg.LLM.Retry)
	logging.BootDebug("Creating LLM client: provider=%s model=%s retries=%d",
		cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.Retry.MaxRetries)

	switch Provider(cfg.LLM.Provider) {
	case ProviderAnthropic:
		c, err := NewAnthropicClient(AnthropicConfig{
			APIKey:            cfg.LLM.APIKey,
			BaseURL:           cfg.LLM.BaseURL,
			Model:             cfg.LLM.Model,
			Timeout:           cfg.GetLLMTimeout(),
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
			Retry:             retry,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderGemini:
		c, err := NewGeminiClient(ctx, GeminiConfig{
			APIKey:            cfg.LLM.APIKey,
			Model:             cfg.LLM.Model,
			Timeout:           cfg.GetLLMTimeout(),
			RequestsPerSecond: cfg.LLM.RequestsPerSecond,
			Retry:             retry,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.LLM.Provider)
	}
}
