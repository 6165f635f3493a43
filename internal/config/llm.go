package config

import "time"

// LLMConfig configures the language-model provider.
type LLMConfig struct {
	Provider          string      `yaml:"provider"` // anthropic, gemini
	APIKey            string      `yaml:"api_key"`
	Model             string      `yaml:"model"`
	BaseURL           string      `yaml:"base_url"`
	Timeout           string      `yaml:"timeout"`
	RequestsPerSecond float64     `yaml:"requests_per_second"` // 0 disables client-side limiting
	Retry             RetryConfig `yaml:"retry"`
}

// RetryConfig configures backoff for transient remote failures.
type RetryConfig struct {
	MaxRetries      int    `yaml:"max_retries"` // 0 disables retries
	InitialInterval string `yaml:"initial_interval"`
	MaxInterval     string `yaml:"max_interval"`
}

// StageConfig holds per-stage generation parameters.
type StageConfig struct {
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float64 `yaml:"temperature"`
	MaxToolRounds int     `yaml:"max_tool_rounds,omitempty"`
}

// StagesConfig groups the four workflow stages.
type StagesConfig struct {
	Decompose  StageConfig `yaml:"decompose"`
	Research   StageConfig `yaml:"research"`
	Synthesize StageConfig `yaml:"synthesize"`
	Critique   StageConfig `yaml:"critique"`
}

// DefaultModels maps provider to its default model.
var DefaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-5-20250929",
	"gemini":    "gemini-2.5-flash",
}

// DefaultBaseURLs maps provider to its default API endpoint.
var DefaultBaseURLs = map[string]string{
	"anthropic": "https://api.anthropic.com/v1",
}

// GetInitialInterval returns the first backoff interval.
func (r RetryConfig) GetInitialInterval() time.Duration {
	return parseDuration(r.InitialInterval, time.Second)
}

// GetMaxInterval returns the backoff ceiling.
func (r RetryConfig) GetMaxInterval() time.Duration {
	return parseDuration(r.MaxInterval, 30*time.Second)
}
