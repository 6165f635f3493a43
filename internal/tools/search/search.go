// Package search backs the web_search tool: provider implementations, a TTL
// result cache, and the tool definition registered with the tool registry.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"researchnerd/internal/config"
	"researchnerd/internal/logging"
	"researchnerd/internal/types"
)

// ErrAPIKeyMissing is returned by providers that need a key and have none.
var ErrAPIKeyMissing = errors.New("search API key is missing")

// Provider runs a web search.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error)
}

// HTTPError is a non-success status from a search backend.
type HTTPError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Provider, e.StatusCode)
}

// New builds the configured provider, wrapped in a cache unless the TTL is zero.
func New(cfg config.SearchConfig) (Provider, error) {
	client := &http.Client{Timeout: cfg.GetTimeout()}

	var p Provider
	switch cfg.Provider {
	case "tavily":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("tavily: %w", ErrAPIKeyMissing)
		}
		p = NewTavily(cfg.APIKey, cfg.Depth, client)
	case "duckduckgo":
		p = NewDuckDuckGo(client)
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Provider)
	}

	if ttl := cfg.GetCacheTTL(); ttl > 0 {
		size := cfg.CacheSize
		if size <= 0 {
			size = 256
		}
		p = NewCached(p, NewCache(size, ttl))
	}

	logging.Search("search provider ready: %s", p.Name())
	return p, nil
}
