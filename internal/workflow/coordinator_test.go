package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"researchnerd/internal/config"
	"researchnerd/internal/extract"
	"researchnerd/internal/llm"
	"researchnerd/internal/prompts"
	"researchnerd/internal/schema"
	"researchnerd/internal/tools"
	"researchnerd/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func TestRun_HappyPathResearchesInOrder(t *testing.T) {
	h := newHarness(t, nil, nil,
		reply(`["A","B","C"]`),
		researchReply(t, "A"),
		researchReply(t, "B"),
		researchReply(t, "C"),
		synthesisReply(t, sourceFor("A"), sourceFor("C")),
		critiqueReply(t),
	)

	res, err := h.coord.Run(context.Background(), "  what is X?  ")
	require.NoError(t, err)

	assert.Equal(t, Done, res.State)
	assert.Equal(t, "what is X?", res.Query)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"A", "B", "C"}, res.Subtasks)

	users := h.users()
	require.Len(t, users, 6)
	assert.Equal(t, "what is X?", users[0])
	assert.Equal(t, []string{"A", "B", "C"}, users[1:4])
	assert.True(t, strings.HasPrefix(users[4], "Here are the research findings to synthesize:"))
	assert.True(t, strings.HasPrefix(users[5], "Here is the research report to review:"))

	require.Len(t, res.Research, 3)
	for i, name := range []string{"A", "B", "C"} {
		assert.Equal(t, name, res.Research[i].Subtask)
		assert.False(t, res.Research[i].Degraded)
	}
	require.NotNil(t, res.Synthesis)
	require.NotNil(t, res.Critique)
	assert.Equal(t, "good", res.Critique.OverallQuality)
	assert.Equal(t, 90, res.Usage.TotalTokens)
	assert.Greater(t, res.Duration.Nanoseconds(), int64(0))

	want := []string{
		"idle->decompose",
		"decompose->research",
		"research->synthesize",
		"synthesize->critique",
		"critique->done",
	}
	assert.Equal(t, want, h.transitions())
	require.Len(t, res.Transitions, len(want))
	assert.Equal(t, "research", res.Transitions[1].To)
	assert.Equal(t, "3 subtasks", res.Transitions[1].Detail)
}

func TestRun_StageParameters(t *testing.T) {
	h := newHarness(t, nil, nil,
		reply(`["A","B"]`),
		researchReply(t, "A"),
		researchReply(t, "B"),
		synthesisReply(t, sourceFor("A")),
		critiqueReply(t),
	)
	_, err := h.coord.Run(context.Background(), "q")
	require.NoError(t, err)

	set := prompts.Default()
	calls := h.client.calls
	assert.Equal(t, 2048, calls[0].MaxTokens)
	assert.InDelta(t, 1.0, calls[0].Temperature, 1e-9)
	assert.Equal(t, set.Get(prompts.Coordinator), calls[0].System)

	assert.Equal(t, 4096, calls[1].MaxTokens)
	assert.Equal(t, 8, calls[1].MaxToolRounds)
	assert.Contains(t, calls[1].System, "web_search")

	assert.InDelta(t, 0.7, calls[3].Temperature, 1e-9)
	assert.InDelta(t, 0.3, calls[4].Temperature, 1e-9)
	assert.Equal(t, set.Get(prompts.Critic), calls[4].System)
}

func TestRun_EmptySubtaskList(t *testing.T) {
	for name, text := range map[string]string{
		"bare array":   `[]`,
		"wrapped":      `{"subtasks": []}`,
		"fenced prose": "No subtasks needed.\n```json\n[]\n```",
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil, nil, reply(text))

			res, err := h.coord.Run(context.Background(), "q")
			require.Error(t, err)

			var se *StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, Decompose, se.Stage)
			assert.Equal(t, "empty subtask list", se.Reason)
			assert.ErrorIs(t, err, ErrNoSubtasks)
			assert.Equal(t, "decompose stage failed: empty subtask list", err.Error())

			assert.Equal(t, Failed, res.State)
			assert.Empty(t, res.Research)
			assert.Len(t, h.client.calls, 1)
		})
	}
}

func TestRun_DecomposeShapes(t *testing.T) {
	t.Run("wrapped object with whitespace", func(t *testing.T) {
		h := newHarness(t, nil, nil,
			reply(`{"subtasks": ["  A ", "B"]}`),
			researchReply(t, "A"),
			researchReply(t, "B"),
			synthesisReply(t, sourceFor("B")),
			critiqueReply(t),
		)
		res, err := h.coord.Run(context.Background(), "q")
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, res.Subtasks)
	})

	rejects := map[string]string{
		"too few":        `["only one"]`,
		"too many":       `["a","b","c","d","e"]`,
		"blank item":     `["a","   "]`,
		"non-string":     `["a", 2]`,
		"object":         `{"tasks": ["a","b"]}`,
		"no json at all": `I could not decide.`,
	}
	for name, text := range rejects {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil, nil, reply(text))
			res, err := h.coord.Run(context.Background(), "q")

			var se *StageError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, Decompose, se.Stage)
			assert.Equal(t, text, se.Raw)
			assert.Equal(t, Failed, res.State)
			assert.NotErrorIs(t, err, ErrNoSubtasks)
		})
	}
}

func TestRun_DecomposeValidationErrorKind(t *testing.T) {
	h := newHarness(t, nil, nil, reply(`["a","b","c","d","e"]`))
	_, err := h.coord.Run(context.Background(), "q")

	var ve *schema.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "SubtaskList", ve.Shape)
}

func TestRun_DecomposeExtractionErrorKind(t *testing.T) {
	h := newHarness(t, nil, nil, reply(`nothing structured here`))
	_, err := h.coord.Run(context.Background(), "q")

	var xe *extract.ExtractionError
	require.ErrorAs(t, err, &xe)
}

func TestRun_DegradedSubtaskContinues(t *testing.T) {
	h := newHarness(t, nil, nil,
		reply(`["A","B","C"]`),
		researchReply(t, "A"),
		reply("Sorry, I could not find anything useful."),
		researchReply(t, "C"),
		synthesisReply(t, sourceFor("A"), sourceFor("C")),
		critiqueReply(t),
	)

	res, err := h.coord.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, 1, res.Degraded())

	b := res.Research[1]
	assert.Equal(t, "B", b.Subtask)
	assert.True(t, b.Degraded)
	assert.NotEmpty(t, b.Error)
	assert.Empty(t, b.Findings)
	assert.Len(t, types.Usable(res.Research), 2)

	synthInput := h.client.calls[4].User
	assert.Contains(t, synthInput, `"degraded": true`)
	assert.Equal(t, 1, strings.Count(synthInput, `"degraded"`))
	assert.Contains(t, synthInput, sourceFor("A"))
}

func TestRun_RemoteFailureDegradesSubtask(t *testing.T) {
	h := newHarness(t, nil, nil,
		reply(`["A","B"]`),
		failWith(&llm.RemoteCallError{Provider: llm.ProviderAnthropic, StatusCode: 500, Message: "boom", Transient: true}),
		researchReply(t, "B"),
		synthesisReply(t, sourceFor("B")),
		critiqueReply(t),
	)

	res, err := h.coord.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, res.Research[0].Degraded)
	assert.Contains(t, res.Research[0].Error, "status 500")
}

func TestRun_InvalidFindingDegrades(t *testing.T) {
	bad := `{"subtask":"A","findings":[{"claim":"c","source":"not a url","details":"d"}]}`
	h := newHarness(t, nil, nil,
		reply(`["A","B"]`),
		reply(bad),
		researchReply(t, "B"),
		synthesisReply(t, sourceFor("B")),
		critiqueReply(t),
	)

	res, err := h.coord.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, res.Research[0].Degraded)
	assert.Contains(t, res.Research[0].Error, "findings[0].source")
}

func TestRun_AllResearchDegradedFails(t *testing.T) {
	h := newHarness(t, nil, nil,
		reply(`["A","B"]`),
		reply("no json"),
		reply("still no json"),
	)

	res, err := h.coord.Run(context.Background(), "q")
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Research, se.Stage)
	assert.ErrorIs(t, err, ErrAllResearchFailed)
	assert.Equal(t, Failed, res.State)
	assert.Len(t, res.Research, 2)
	assert.Nil(t, res.Synthesis)
}

func TestRun_FatalResearchPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy[Research] = Fatal
	h := newHarness(t, nil, policy,
		reply(`["A","B"]`),
		reply("no json"),
	)

	res, err := h.coord.Run(context.Background(), "q")
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Research, se.Stage)
	assert.Empty(t, res.Research)
	assert.Len(t, h.client.calls, 2)
}

func TestRun_ResearchSubtaskIsAuthoritative(t *testing.T) {
	h := newHarness(t, nil, nil,
		reply(`["A","B"]`),
		reply(`{"subtask":"a restated","findings":[{"claim":"c","source":"`+sourceFor("A")+`","details":"d"}],"degraded":true}`),
		researchReply(t, "B"),
		synthesisReply(t, sourceFor("A")),
		critiqueReply(t),
	)

	res, err := h.coord.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "A", res.Research[0].Subtask)
	assert.False(t, res.Research[0].Degraded)
}

func TestRun_CitationOutsideFindingsFails(t *testing.T) {
	h := newHarness(t, nil, nil,
		reply(`["A","B"]`),
		researchReply(t, "A"),
		researchReply(t, "B"),
		synthesisReply(t, sourceFor("A"), "https://invented.example.org/page"),
	)

	res, err := h.coord.Run(context.Background(), "q")
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Synthesize, se.Stage)

	var ve *schema.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "sections[0].sources[1]", ve.Field)

	assert.Equal(t, Failed, res.State)
	assert.Nil(t, res.Synthesis)
	assert.Len(t, res.Research, 2)
}

func TestRun_CitationNormalized(t *testing.T) {
	h := newHarness(t, nil, nil,
		reply(`["A","B"]`),
		researchReply(t, "A"),
		researchReply(t, "B"),
		synthesisReply(t, strings.Replace(sourceFor("A"), "example.com", "EXAMPLE.com", 1)+"/"),
		critiqueReply(t),
	)

	_, err := h.coord.Run(context.Background(), "q")
	require.NoError(t, err)
}

func TestRun_SynthesisWithoutSectionsFails(t *testing.T) {
	h := newHarness(t, nil, nil,
		reply(`["A","B"]`),
		researchReply(t, "A"),
		researchReply(t, "B"),
		reply(`{"summary":"s","sections":[]}`),
	)

	_, err := h.coord.Run(context.Background(), "q")
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Synthesize, se.Stage)
	assert.Contains(t, se.Reason, "sections")
}

func TestRun_CritiqueMissingRequiredField(t *testing.T) {
	h := newHarness(t, nil, nil,
		reply(`["A","B"]`),
		researchReply(t, "A"),
		researchReply(t, "B"),
		synthesisReply(t, sourceFor("A")),
		reply(`{"overall_quality":"good","issues":[],"suggestions":[]}`),
	)

	res, err := h.coord.Run(context.Background(), "q")
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, Critique, se.Stage)
	assert.Contains(t, se.Reason, "needs_more_research")

	assert.Equal(t, Failed, res.State)
	assert.NotNil(t, res.Synthesis, "partial results survive a fatal failure")
	assert.Nil(t, res.Critique)
}

func TestRun_CritiqueSoftFailPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy[Critique] = SoftFail
	h := newHarness(t, nil, policy,
		reply(`["A","B"]`),
		researchReply(t, "A"),
		researchReply(t, "B"),
		synthesisReply(t, sourceFor("A")),
		reply(`not json`),
	)

	res, err := h.coord.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, Done, res.State)
	assert.Nil(t, res.Critique)
	assert.NotNil(t, res.Synthesis)
}

func TestRun_DecomposeRemoteFailure(t *testing.T) {
	remote := &llm.RemoteCallError{Provider: llm.ProviderAnthropic, StatusCode: 401, Message: "invalid x-api-key"}
	h := newHarness(t, nil, nil, failWith(remote))

	res, err := h.coord.Run(context.Background(), "q")
	var rce *llm.RemoteCallError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, 401, rce.StatusCode)
	assert.Equal(t, Failed, res.State)
	assert.Equal(t, "failed", res.Transitions[len(res.Transitions)-1].To)
	assert.Equal(t, res.Error, err.(*StageError).Reason)
}

func TestRun_ToolsOfferedOnlyToResearch(t *testing.T) {
	reg := tools.NewRegistry()
	var queries []string
	require.NoError(t, reg.Register(&tools.Tool{
		Name:        "web_search",
		Description: "search the web",
		Execute: func(_ context.Context, args map[string]any) (string, error) {
			queries = append(queries, args["query"].(string))
			return `[{"title":"t","url":"https://example.com/a","snippet":"s"}]`, nil
		},
	}))

	searchingReply := func(subtask string) step {
		return func(ctx context.Context, req llm.Request) (*llm.Response, error) {
			require.Len(t, req.Tools, 1)
			require.NotNil(t, req.Execute)
			out, err := req.Execute(ctx, types.ToolCall{ID: "1", Name: "web_search", Input: map[string]any{"query": subtask}})
			require.NoError(t, err)
			require.Contains(t, out, "example.com")
			return researchReply(t, subtask)(ctx, req)
		}
	}

	h := newHarness(t, reg, nil,
		reply(`["A","B"]`),
		searchingReply("A"),
		searchingReply("B"),
		synthesisReply(t, sourceFor("A")),
		critiqueReply(t),
	)

	_, err := h.coord.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, queries)

	for i, c := range h.client.calls {
		if i == 1 || i == 2 {
			continue
		}
		assert.Empty(t, c.Tools, "call %d", i)
		assert.Nil(t, c.Execute, "call %d", i)
	}
}

func TestRun_ResearchEvents(t *testing.T) {
	h := newHarness(t, nil, nil,
		reply(`["A","B"]`),
		researchReply(t, "A"),
		reply("garbage"),
		synthesisReply(t, sourceFor("A")),
		critiqueReply(t),
	)
	_, err := h.coord.Run(context.Background(), "q")
	require.NoError(t, err)

	type seen struct {
		Kind     EventKind
		Index    int
		Total    int
		Subtask  string
		Degraded bool
	}
	var got []seen
	for _, e := range h.events {
		if e.Kind == EventTransition {
			continue
		}
		s := seen{Kind: e.Kind, Index: e.Index, Total: e.Total, Subtask: e.Subtask}
		if e.Result != nil {
			s.Degraded = e.Result.Degraded
		}
		got = append(got, s)
	}
	want := []seen{
		{EventResearchStarted, 0, 2, "A", false},
		{EventResearchFinished, 0, 2, "A", false},
		{EventResearchStarted, 1, 2, "B", false},
		{EventResearchFinished, 1, 2, "B", true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("research events mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_EmptyQuery(t *testing.T) {
	h := newHarness(t, nil, nil)
	_, err := h.coord.Run(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Empty(t, h.client.calls)
}

func TestNew_Validation(t *testing.T) {
	set := prompts.Default()
	_, err := New(Config{Prompts: set})
	assert.Error(t, err)

	_, err = New(Config{Client: &scriptedClient{t: t}})
	assert.Error(t, err)

	bad := DefaultPolicy()
	bad[Decompose] = SoftFail
	_, err = New(Config{Client: &scriptedClient{t: t}, Prompts: set, Policy: bad})
	assert.Error(t, err)

	c, err := New(Config{Client: &scriptedClient{t: t}, Prompts: set, Stages: config.DefaultConfig().Stages})
	require.NoError(t, err)
	assert.Equal(t, SoftFail, c.policy.For(Research))
}

func TestStageError(t *testing.T) {
	cause := errors.New("boom")
	se := stageError(Synthesize, "raw", cause)
	assert.Equal(t, "synthesize stage failed: boom", se.Error())
	assert.ErrorIs(t, se, cause)
	assert.Equal(t, "raw", se.Raw)
}

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, Fatal, p.For(Decompose))
	assert.Equal(t, SoftFail, p.For(Research))
	assert.Equal(t, Fatal, p.For(Synthesize))
	assert.Equal(t, Fatal, p.For(Critique))
	assert.NoError(t, p.Validate())

	var nilPolicy Policy
	assert.Equal(t, SoftFail, nilPolicy.For(Research))
	assert.Equal(t, "soft-fail", SoftFail.String())
	assert.Equal(t, "fatal", Fatal.String())
}
