package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"researchnerd/internal/config"
	"researchnerd/internal/llm"
	"researchnerd/internal/logging"
	"researchnerd/internal/schema"
	"researchnerd/internal/types"
)

// call is one remote model call for a stage.
type call struct {
	stage     Stage
	user      string
	withTools bool
}

func (c *Coordinator) stageConfig(s Stage) config.StageConfig {
	switch s {
	case Decompose:
		return c.stages.Decompose
	case Research:
		return c.stages.Research
	case Synthesize:
		return c.stages.Synthesize
	default:
		return c.stages.Critique
	}
}

// invoke performs the remote call and returns the raw model text.
func (c *Coordinator) invoke(ctx context.Context, res *Result, in call) (string, error) {
	system, err := c.prompts.ForStage(string(in.stage))
	if err != nil {
		return "", err
	}
	sc := c.stageConfig(in.stage)
	req := llm.Request{
		System:        system,
		User:          in.user,
		MaxTokens:     sc.MaxTokens,
		Temperature:   sc.Temperature,
		MaxToolRounds: sc.MaxToolRounds,
	}
	if in.withTools && c.tools != nil && c.tools.Len() > 0 {
		req.Tools = c.tools.Definitions()
		req.Execute = c.tools.Executor()
	}

	resp, err := c.client.Invoke(ctx, req)
	if err != nil {
		return "", err
	}
	res.Usage.Add(resp.Usage)
	logging.WorkflowDebug("%s call: rounds=%d tool_calls=%d tokens=%d", in.stage, resp.Rounds, resp.ToolCalls, resp.Usage.TotalTokens)
	return resp.Text, nil
}

// parse extracts the payload from text and narrows it to the stage record T.
func parse[T types.StageOutput](c *Coordinator, text string, prepare func(any) any) (T, error) {
	var zero T
	v, err := c.extractor.Extract(text)
	if err != nil {
		logging.ExtractDebug("extraction failed: %v", err)
		return zero, err
	}
	if prepare != nil {
		v = prepare(v)
	}
	out, err := schema.Narrow[T](v, zero.Shape())
	if err != nil {
		logging.ExtractDebug("validation failed: %v", err)
		return zero, err
	}
	return out, nil
}

func (c *Coordinator) decompose(ctx context.Context, res *Result) ([]string, error) {
	text, err := c.invoke(ctx, res, call{stage: Decompose, user: res.Query})
	if err != nil {
		return nil, stageError(Decompose, "", err)
	}

	empty := false
	list, err := parse[types.SubtaskList](c, text, func(v any) any {
		v = types.UnwrapSubtasks(v)
		arr, ok := v.([]any)
		if !ok {
			return v
		}
		if len(arr) == 0 {
			empty = true
		}
		trimmed := make([]any, len(arr))
		for i, item := range arr {
			if s, ok := item.(string); ok {
				item = strings.TrimSpace(s)
			}
			trimmed[i] = item
		}
		return trimmed
	})
	if empty {
		return nil, stageError(Decompose, text, ErrNoSubtasks)
	}
	if err != nil {
		return nil, stageError(Decompose, text, err)
	}

	logging.Workflow("Decomposed into %d subtasks", len(list))
	return []string(list), nil
}

// researchAll runs every subtask in order. Failures degrade the subtask under
// SoftFail and end the run under Fatal.
func (c *Coordinator) researchAll(ctx context.Context, res *Result) error {
	total := len(res.Subtasks)
	res.Research = make([]types.ResearchResult, 0, total)

	for i, subtask := range res.Subtasks {
		c.emit(Event{Kind: EventResearchStarted, Stage: Research, Index: i, Total: total, Subtask: subtask, At: c.now()})

		rr, err := c.research(ctx, res, subtask)
		if err != nil {
			if c.policy.For(Research) != SoftFail {
				return err
			}
			logging.WorkflowWarn("Subtask %d/%d degraded: %v", i+1, total, err)
			reason := err.Error()
			var se *StageError
			if errors.As(err, &se) {
				reason = se.Reason
			}
			rr = types.ResearchResult{
				Subtask:  subtask,
				Findings: []types.Finding{},
				Degraded: true,
				Error:    reason,
			}
		}
		res.Research = append(res.Research, rr)
		c.emit(Event{Kind: EventResearchFinished, Stage: Research, Index: i, Total: total, Subtask: subtask, Result: &res.Research[len(res.Research)-1], At: c.now()})
	}

	if len(types.Usable(res.Research)) == 0 {
		return stageError(Research, "", ErrAllResearchFailed)
	}
	return nil
}

func (c *Coordinator) research(ctx context.Context, res *Result, subtask string) (types.ResearchResult, error) {
	text, err := c.invoke(ctx, res, call{stage: Research, user: subtask, withTools: true})
	if err != nil {
		return types.ResearchResult{}, stageError(Research, "", err)
	}
	rr, err := parse[types.ResearchResult](c, text, nil)
	if err != nil {
		return types.ResearchResult{}, stageError(Research, text, err)
	}

	if rr.Subtask != subtask {
		logging.WorkflowDebug("Model restated subtask %q as %q", subtask, rr.Subtask)
	}
	rr.Subtask = subtask
	rr.Degraded = false
	rr.Error = ""
	if rr.Findings == nil {
		rr.Findings = []types.Finding{}
	}
	return rr, nil
}

func (c *Coordinator) synthesize(ctx context.Context, res *Result) (*types.SynthesizedReport, error) {
	payload, err := json.MarshalIndent(res.Research, "", "  ")
	if err != nil {
		return nil, stageError(Synthesize, "", fmt.Errorf("failed to encode findings: %w", err))
	}
	user := "Here are the research findings to synthesize:\n\n" + string(payload)

	text, err := c.invoke(ctx, res, call{stage: Synthesize, user: user})
	if err != nil {
		return nil, stageError(Synthesize, "", err)
	}
	report, err := parse[types.SynthesizedReport](c, text, nil)
	if err != nil {
		return nil, stageError(Synthesize, text, err)
	}
	if err := checkCitations(report, res.Research); err != nil {
		return nil, stageError(Synthesize, text, err)
	}
	return &report, nil
}

func (c *Coordinator) critique(ctx context.Context, res *Result) (*types.CriticReview, error) {
	payload, err := json.MarshalIndent(res.Synthesis, "", "  ")
	if err != nil {
		return nil, stageError(Critique, "", fmt.Errorf("failed to encode report: %w", err))
	}
	user := "Here is the research report to review:\n\n" + string(payload)

	text, err := c.invoke(ctx, res, call{stage: Critique, user: user})
	if err != nil {
		return nil, stageError(Critique, "", err)
	}
	review, err := parse[types.CriticReview](c, text, nil)
	if err != nil {
		return nil, stageError(Critique, text, err)
	}
	return &review, nil
}

func transitionRecord(from, to Stage, at time.Time, detail string) types.Transition {
	return types.Transition{From: string(from), To: string(to), At: at, Detail: detail}
}
