package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"researchnerd/internal/config"
	"researchnerd/internal/extract"
	"researchnerd/internal/llm"
	"researchnerd/internal/prompts"
	"researchnerd/internal/tools"
	"researchnerd/internal/types"
)

// step answers one Invoke call.
type step func(ctx context.Context, req llm.Request) (*llm.Response, error)

// scriptedClient replays steps in order and records every request.
type scriptedClient struct {
	t     *testing.T
	steps []step
	calls []llm.Request
}

func (s *scriptedClient) Invoke(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.calls = append(s.calls, req)
	i := len(s.calls) - 1
	if i >= len(s.steps) {
		s.t.Fatalf("unexpected call %d (user=%q)", i+1, req.User)
	}
	return s.steps[i](ctx, req)
}

func (s *scriptedClient) Provider() llm.Provider { return "fake" }
func (s *scriptedClient) Model() string          { return "fake-model" }

func reply(text string) step {
	return func(context.Context, llm.Request) (*llm.Response, error) {
		return &llm.Response{
			Text:   text,
			Rounds: 1,
			Usage:  types.UsageMetadata{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		}, nil
	}
}

func failWith(err error) step {
	return func(context.Context, llm.Request) (*llm.Response, error) { return nil, err }
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func sourceFor(subtask string) string {
	return "https://example.com/" + strings.ToLower(strings.ReplaceAll(subtask, " ", "-"))
}

func researchReply(t *testing.T, subtask string) step {
	return reply(mustJSON(t, types.ResearchResult{
		Subtask: subtask,
		Findings: []types.Finding{{
			Claim:   subtask + " claim",
			Source:  sourceFor(subtask),
			Details: subtask + " details",
		}},
	}))
}

func synthesisReply(t *testing.T, sources ...string) step {
	return reply("Here is the report:\n```json\n" + mustJSON(t, types.SynthesizedReport{
		Summary:     "summary",
		Sections:    []types.SynthesisSection{{Title: "Overview", Content: "content", Sources: sources}},
		KeyInsights: []string{"insight"},
	}) + "\n```")
}

func critiqueReply(t *testing.T) step {
	return reply(mustJSON(t, types.CriticReview{
		OverallQuality:    "good",
		Issues:            []types.CriticIssue{{Type: "completeness", Description: "thin", Severity: "low"}},
		Suggestions:       []string{"add more"},
		NeedsMoreResearch: false,
	}))
}

type harness struct {
	client *scriptedClient
	coord  *Coordinator
	events []Event
}

func newHarness(t *testing.T, reg *tools.Registry, policy Policy, steps ...step) *harness {
	t.Helper()
	set, err := prompts.Load("", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	h := &harness{client: &scriptedClient{t: t, steps: steps}}
	clock := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	coord, err := New(Config{
		Client:    h.client,
		Tools:     reg,
		Prompts:   set,
		Stages:    config.DefaultConfig().Stages,
		Extractor: extract.Extractor{Repair: true},
		Policy:    policy,
		Observer:  ObserverFunc(func(e Event) { h.events = append(h.events, e) }),
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	require.NoError(t, err)
	h.coord = coord
	return h
}

func (h *harness) users() []string {
	out := make([]string, len(h.client.calls))
	for i, c := range h.client.calls {
		out[i] = c.User
	}
	return out
}

func (h *harness) transitions() []string {
	var out []string
	for _, e := range h.events {
		if e.Kind == EventTransition {
			out = append(out, fmt.Sprintf("%s->%s", e.From, e.Stage))
		}
	}
	return out
}
