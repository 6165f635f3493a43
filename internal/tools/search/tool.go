package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"researchnerd/internal/logging"
	"researchnerd/internal/tools"
	"researchnerd/internal/types"
)

// ToolName is the name the model calls the search tool by.
const ToolName = "web_search"

// maxResultsCap bounds what the model may ask for.
const maxResultsCap = 20

// webSearchArgs documents the tool input for schema generation.
type webSearchArgs struct {
	Query      string `json:"query" jsonschema:"description=The search query"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results to return,minimum=1,maximum=20"`
}

// WebSearchTool returns the web_search tool backed by p. defaultMax applies
// when the model does not pass max_results.
func WebSearchTool(p Provider, defaultMax int) *tools.Tool {
	if defaultMax <= 0 {
		defaultMax = 5
	}
	return &tools.Tool{
		Name:        ToolName,
		Description: "Search the web for current information. Returns a JSON array of results with title, url, snippet and relevance score.",
		InputSchema: tools.MustInputSchemaFor(&webSearchArgs{}),
		Input:       types.SearchInputShape(),
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeWebSearch(ctx, p, defaultMax, args)
		},
	}
}

func executeWebSearch(ctx context.Context, p Provider, defaultMax int, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	maxResults := defaultMax
	switch mr := args["max_results"].(type) {
	case float64:
		if mr > 0 {
			maxResults = int(mr)
		}
	case int:
		if mr > 0 {
			maxResults = mr
		}
	}
	if maxResults > maxResultsCap {
		maxResults = maxResultsCap
	}

	logging.ToolsDebug("web_search: query=%q max_results=%d provider=%s", query, maxResults, p.Name())
	results, err := p.Search(ctx, query, maxResults)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	if results == nil {
		results = []types.SearchResult{}
	}

	data, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("encode results: %w", err)
	}
	logging.Tools("web_search completed: %d results for %q", len(results), query)
	return string(data), nil
}

// Register adds the web_search tool for p to reg.
func Register(reg *tools.Registry, p Provider, defaultMax int) error {
	return reg.Register(WebSearchTool(p, defaultMax))
}
