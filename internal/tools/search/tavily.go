package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"researchnerd/internal/logging"
	"researchnerd/internal/types"
)

// DefaultTavilyEndpoint is the Tavily search API.
const DefaultTavilyEndpoint = "https://api.tavily.com/search"

// Tavily calls the Tavily search API.
type Tavily struct {
	APIKey   string
	Depth    string // basic or advanced
	Endpoint string

	client  *http.Client
	limiter *rate.Limiter
	// backoff for 429s; replaced in tests
	newBackOff func() backoff.BackOff
}

// NewTavily constructs a Tavily search provider.
func NewTavily(apiKey, depth string, client *http.Client) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Tavily{
		APIKey:   apiKey,
		Depth:    depth,
		Endpoint: DefaultTavilyEndpoint,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(5), 1),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(time.Second),
				backoff.WithMaxInterval(30*time.Second),
			)
		},
	}
}

// Name implements Provider.
func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	Query       string `json:"query"`
	APIKey      string `json:"api_key"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string   `json:"title"`
		URL     string   `json:"url"`
		Content string   `json:"content"`
		Score   *float64 `json:"score"`
	} `json:"results"`
}

// Search posts a query to Tavily, backing off on 429.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, fmt.Errorf("tavily: %w", ErrAPIKeyMissing)
	}

	payload, err := json.Marshal(tavilyRequest{
		Query:       query,
		APIKey:      t.APIKey,
		SearchDepth: t.Depth,
		MaxResults:  maxResults,
	})
	if err != nil {
		return nil, err
	}

	op := func() (*tavilyResponse, error) {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		return t.post(ctx, payload)
	}
	notify := func(err error, next time.Duration) {
		logging.SearchWarn("tavily: %v, retrying in %v", err, next)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(t.newBackOff(), 5), ctx)
	response, err := backoff.RetryNotifyWithData(op, b, notify)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, types.SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content, Score: r.Score})
		if len(results) >= maxResults {
			break
		}
	}
	logging.SearchDebug("tavily: %d results for %q", len(results), query)
	return results, nil
}

func (t *Tavily) post(ctx context.Context, payload []byte) (*tavilyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("tavily: request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &HTTPError{Provider: "tavily", StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, backoff.Permanent(&HTTPError{Provider: "tavily", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))})
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("tavily: decode response: %w", err))
	}
	return &out, nil
}
