package config

import "time"

// SearchConfig configures the web_search tool backend.
type SearchConfig struct {
	Provider   string `yaml:"provider"` // tavily, duckduckgo
	APIKey     string `yaml:"api_key"`
	Depth      string `yaml:"depth"` // tavily search_depth: basic, advanced
	MaxResults int    `yaml:"max_results"`
	Timeout    string `yaml:"timeout"`
	CacheTTL   string `yaml:"cache_ttl"` // "0" disables caching
	CacheSize  int    `yaml:"cache_size"`
}

// ExtractionConfig configures the response extractor.
type ExtractionConfig struct {
	// RepairJSON retries a failed parse after stripping trailing commas and comments.
	RepairJSON bool `yaml:"repair_json"`
}

// PromptsConfig points at an optional prompt override file.
type PromptsConfig struct {
	Path string `yaml:"path"` // empty = built-in prompts
}

// GetTimeout returns the search HTTP timeout.
func (s SearchConfig) GetTimeout() time.Duration {
	return parseDuration(s.Timeout, 30*time.Second)
}

// GetCacheTTL returns the result cache TTL; zero disables the cache.
func (s SearchConfig) GetCacheTTL() time.Duration {
	return parseDuration(s.CacheTTL, 30*time.Minute)
}
