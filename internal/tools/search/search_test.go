package search

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"researchnerd/internal/config"
	"researchnerd/internal/tools"
	"researchnerd/internal/types"
)

func newTestTavily(t *testing.T, h http.HandlerFunc) *Tavily {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	tv := NewTavily("tvly-test", "", srv.Client())
	tv.Endpoint = srv.URL
	tv.limiter = rate.NewLimiter(rate.Inf, 1)
	tv.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return tv
}

func TestTavily_Search(t *testing.T) {
	var got tavilyRequest
	tv := newTestTavily(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tvly-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"results":[
			{"title":"One","url":"https://one.example","content":"first","score":0.9},
			{"title":"Two","url":"https://two.example","content":"second"},
			{"title":"Three","url":"https://three.example","content":"third"}
		]}`))
	})

	results, err := tv.Search(context.Background(), "golang", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://one.example", results[0].URL)
	assert.Equal(t, "first", results[0].Snippet)
	require.NotNil(t, results[0].Score)
	assert.Equal(t, 0.9, *results[0].Score)
	assert.Nil(t, results[1].Score)

	assert.Equal(t, "golang", got.Query)
	assert.Equal(t, "basic", got.SearchDepth)
	assert.Equal(t, 2, got.MaxResults)
}

func TestTavily_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	tv := newTestTavily(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"title":"t","url":"https://u.example","content":"c"}]}`))
	})

	results, err := tv.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTavily_PermanentFailure(t *testing.T) {
	var calls atomic.Int32
	tv := newTestTavily(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	_, err := tv.Search(context.Background(), "q", 5)
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusUnauthorized, he.StatusCode)
	assert.Equal(t, "bad key", he.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTavily_MissingKey(t *testing.T) {
	tv := NewTavily("", "basic", nil)
	_, err := tv.Search(context.Background(), "q", 5)
	assert.ErrorIs(t, err, ErrAPIKeyMissing)
}

const ddgPage = `<html><body>
<div class="result results_links results_links_deep web-result">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">The <b>Go</b> Docs</a></h2>
  <a class="result__snippet" href="#">Documentation for   the Go language.</a>
</div>
<div class="result result--ad results_links">
  <a class="result__a" href="https://ads.example">Ad</a>
</div>
<div class="result results_links">
  <a class="result__a" href="https://pkg.go.dev/">Packages</a>
  <div class="result__snippet">Find packages.</div>
</div>
<div class="result results_links">
  <a class="result__a" href="https://third.example/">Third</a>
</div>
</body></html>`

func TestParseDuckDuckGoResults(t *testing.T) {
	results, err := parseDuckDuckGoResults(ddgPage, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, types.SearchResult{
		Title:   "The Go Docs",
		URL:     "https://go.dev/doc/",
		Snippet: "Documentation for the Go language.",
	}, results[0])
	assert.Equal(t, "https://pkg.go.dev/", results[1].URL)
	assert.Equal(t, "Find packages.", results[1].Snippet)
}

func TestDuckDuckGo_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "go docs", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(ddgPage))
	}))
	defer srv.Close()

	d := NewDuckDuckGo(srv.Client())
	d.Endpoint = srv.URL + "/html/"
	d.limiter = rate.NewLimiter(rate.Inf, 1)

	results, err := d.Search(context.Background(), "go docs", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestResolveRedirect(t *testing.T) {
	assert.Equal(t, "https://a.example/x?y=1",
		resolveRedirect("//duckduckgo.com/l/?uddg=https%3A%2F%2Fa.example%2Fx%3Fy%3D1&rut=z"))
	assert.Equal(t, "https://plain.example", resolveRedirect("https://plain.example"))
}

func TestCache_TTLAndEviction(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCache(2, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", []types.SearchResult{{Title: "a"}})
	now = now.Add(time.Second)
	c.Set("b", []types.SearchResult{{Title: "b"}})

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got[0].Title)

	now = now.Add(time.Second)
	c.Set("c", nil)
	assert.Equal(t, 2, c.Size())
	_, ok = c.Get("a")
	assert.False(t, ok, "oldest entry evicted")

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("b")
	assert.False(t, ok, "expired")
}

type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) Name() string { return "counting" }

func (p *countingProvider) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return []types.SearchResult{{Title: query, URL: "https://r.example"}}, nil
}

func TestCached(t *testing.T) {
	inner := &countingProvider{}
	p := NewCached(inner, NewCache(10, time.Minute))

	for i := 0; i < 3; i++ {
		_, err := p.Search(context.Background(), "Same Query", 5)
		require.NoError(t, err)
	}
	_, err := p.Search(context.Background(), " same query ", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)

	_, err = p.Search(context.Background(), "same query", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls, "limit is part of the key")

	inner.err = errors.New("down")
	_, err = p.Search(context.Background(), "new", 5)
	assert.Error(t, err)
	_, err = p.Search(context.Background(), "new", 5)
	assert.Error(t, err)
	assert.Equal(t, 4, inner.calls, "errors are not cached")
}

func TestWebSearchTool(t *testing.T) {
	inner := &countingProvider{}
	reg := tools.NewRegistry()
	require.NoError(t, Register(reg, inner, 5))

	defs := reg.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, ToolName, defs[0].Name)
	assert.Equal(t, []any{"query"}, defs[0].InputSchema["required"])

	inv := reg.Call(context.Background(), types.ToolCall{
		ID:    "call-1",
		Name:  ToolName,
		Input: map[string]any{"query": "golang", "max_results": 3.0},
	})
	require.NoError(t, inv.Err)
	assert.Equal(t, "call-1", inv.CallID)

	var results []types.SearchResult
	require.NoError(t, json.Unmarshal([]byte(inv.Output), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "golang", results[0].Title)
}

func TestWebSearchTool_Errors(t *testing.T) {
	inner := &countingProvider{err: errors.New("backend down")}
	reg := tools.NewRegistry()
	require.NoError(t, Register(reg, inner, 5))

	inv := reg.Call(context.Background(), types.ToolCall{Name: ToolName, Input: map[string]any{"query": "x"}})
	var te *tools.ToolExecutionError
	require.ErrorAs(t, inv.Err, &te)
	assert.Equal(t, ToolName, te.Tool)
	assert.Contains(t, inv.Err.Error(), "backend down")
	assert.Empty(t, inv.Output)

	inv = reg.Call(context.Background(), types.ToolCall{Name: ToolName, Input: map[string]any{"query": "x", "max_results": 50.0}})
	require.ErrorAs(t, inv.Err, &te)
	assert.ErrorIs(t, inv.Err, tools.ErrInvalidArgs)

	inv = reg.Call(context.Background(), types.ToolCall{Name: ToolName, Input: map[string]any{}})
	assert.ErrorIs(t, inv.Err, tools.ErrInvalidArgs)
	assert.Equal(t, 1, inner.calls, "rejected input never reaches the provider")
}

func TestNew(t *testing.T) {
	cfg := config.DefaultConfig().Search

	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrAPIKeyMissing)

	cfg.APIKey = "k"
	p, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "tavily+cache", p.Name())

	cfg.Provider = "duckduckgo"
	cfg.CacheTTL = "0"
	p, err = New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "duckduckgo", p.Name())

	cfg.Provider = "bing"
	_, err = New(cfg)
	assert.Error(t, err)
}
