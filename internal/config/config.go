package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all researchnerd configuration. It is built once at startup
// and passed down explicitly.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Stages     StagesConfig     `yaml:"stages"`
	Search     SearchConfig     `yaml:"search"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "anthropic",
			Model:             DefaultModels["anthropic"],
			BaseURL:           DefaultBaseURLs["anthropic"],
			Timeout:           "5m",
			RequestsPerSecond: 2,
			Retry: RetryConfig{
				MaxRetries:      3,
				InitialInterval: "1s",
				MaxInterval:     "30s",
			},
		},

		Stages: StagesConfig{
			Decompose:  StageConfig{MaxTokens: 2048, Temperature: 1.0},
			Research:   StageConfig{MaxTokens: 4096, Temperature: 1.0, MaxToolRounds: 8},
			Synthesize: StageConfig{MaxTokens: 4096, Temperature: 0.7},
			Critique:   StageConfig{MaxTokens: 4096, Temperature: 0.3},
		},

		Search: SearchConfig{
			Provider:   "tavily",
			Depth:      "basic",
			MaxResults: 5,
			Timeout:    "30s",
			CacheTTL:   "30m",
			CacheSize:  256,
		},

		Extraction: ExtractionConfig{RepairJSON: true},

		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// DefaultConfigPath returns ~/.researchnerd/config.yaml, or a relative
// fallback when the home directory is unknown.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".researchnerd", "config.yaml")
	}
	return filepath.Join(home, ".researchnerd", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.fillProviderDefaults()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Gemini only wins when no Anthropic key is present.
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && os.Getenv("ANTHROPIC_API_KEY") == "" {
		if c.LLM.Provider != "gemini" {
			c.LLM.Provider = "gemini"
			c.LLM.Model = ""
			c.LLM.BaseURL = ""
		}
		c.LLM.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		if c.LLM.Provider != "anthropic" {
			c.LLM.Provider = "anthropic"
			c.LLM.Model = ""
			c.LLM.BaseURL = ""
		}
		c.LLM.APIKey = key
	}
	if model := os.Getenv("CLAUDE_MODEL"); model != "" && c.LLM.Provider == "anthropic" {
		c.LLM.Model = model
	}

	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		c.Search.APIKey = key
	}

	if path := os.Getenv("RESEARCHNERD_PROMPTS"); path != "" {
		c.Prompts.Path = path
	}
	if level := os.Getenv("RESEARCHNERD_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// fillProviderDefaults fills model and endpoint when a provider switch left them blank.
func (c *Config) fillProviderDefaults() {
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultModels[c.LLM.Provider]
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = DefaultBaseURLs[c.LLM.Provider]
	}
}

// providerKeyEnv maps provider to the environment variable holding its key.
var providerKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// SetProvider switches the LLM provider. Switching clears the model, endpoint
// and key, then refills them from provider defaults and the environment.
func (c *Config) SetProvider(provider string) {
	if provider == "" || provider == c.LLM.Provider {
		return
	}
	c.LLM.Provider = provider
	c.LLM.Model = ""
	c.LLM.BaseURL = ""
	c.LLM.APIKey = ""
	if env, ok := providerKeyEnv[provider]; ok {
		c.LLM.APIKey = os.Getenv(env)
	}
	c.fillProviderDefaults()
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 5*time.Minute)
}

// EffectiveSearchProvider returns the configured search provider, falling back
// to duckduckgo when tavily is selected without a key.
func (c *Config) EffectiveSearchProvider() string {
	if c.Search.Provider == "tavily" && c.Search.APIKey == "" {
		return "duckduckgo"
	}
	return c.Search.Provider
}

// Redacted returns a copy with API keys masked, for display.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.LLM.APIKey = mask(c.LLM.APIKey)
	cp.Search.APIKey = mask(c.Search.APIKey)
	return &cp
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"anthropic", "gemini"}

// ValidSearchProviders lists all supported search backends.
var ValidSearchProviders = []string{"tavily", "duckduckgo"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !slices.Contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set ANTHROPIC_API_KEY or GEMINI_API_KEY)")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM model not configured")
	}
	if !slices.Contains(ValidSearchProviders, c.Search.Provider) {
		return fmt.Errorf("invalid search provider: %s (valid: %v)", c.Search.Provider, ValidSearchProviders)
	}
	if c.Search.MaxResults < 1 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.LLM.Retry.MaxRetries < 0 {
		return fmt.Errorf("llm.retry.max_retries must not be negative")
	}

	stages := map[string]StageConfig{
		"decompose":  c.Stages.Decompose,
		"research":   c.Stages.Research,
		"synthesize": c.Stages.Synthesize,
		"critique":   c.Stages.Critique,
	}
	for name, s := range stages {
		if s.MaxTokens <= 0 {
			return fmt.Errorf("stages.%s.max_tokens must be positive", name)
		}
		if s.Temperature < 0 || s.Temperature > 2 {
			return fmt.Errorf("stages.%s.temperature out of range: %v", name, s.Temperature)
		}
	}
	return nil
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
