package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"researchnerd/internal/config"
	"researchnerd/internal/extract"
	"researchnerd/internal/llm"
	"researchnerd/internal/logging"
	"researchnerd/internal/prompts"
	"researchnerd/internal/tools"
)

// Config wires a Coordinator. Client and Prompts are required.
type Config struct {
	Client    llm.Client
	Tools     *tools.Registry // offered to research calls; nil means no tools
	Prompts   *prompts.Set
	Stages    config.StagesConfig
	Extractor extract.Extractor
	Policy    Policy
	Observer  Observer

	// Now is the clock used for timestamps; defaults to time.Now.
	Now func() time.Time
}

// Coordinator runs research workflows. Each Run is independent and runs on
// the caller's goroutine; remote calls are strictly sequential.
type Coordinator struct {
	client    llm.Client
	tools     *tools.Registry
	prompts   *prompts.Set
	stages    config.StagesConfig
	extractor extract.Extractor
	policy    Policy
	observer  Observer
	now       func() time.Time
}

// New validates cfg and builds a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Client == nil {
		return nil, errors.New("workflow: client is required")
	}
	if cfg.Prompts == nil {
		return nil, errors.New("workflow: prompts are required")
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy()
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		client:    cfg.Client,
		tools:     cfg.Tools,
		prompts:   cfg.Prompts,
		stages:    cfg.Stages,
		extractor: cfg.Extractor,
		policy:    cfg.Policy,
		observer:  cfg.Observer,
		now:       cfg.Now,
	}, nil
}

// Run executes one workflow for query. On a fatal failure it returns the
// partial Result (State == Failed) together with a *StageError.
func (c *Coordinator) Run(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	res := &Result{
		RunID:     uuid.NewString(),
		Query:     query,
		State:     Idle,
		StartedAt: c.now(),
	}
	log := logging.Get(logging.CategoryWorkflow).With("run_id", res.RunID)
	log.Info("Starting research run: %q (provider=%s model=%s)", query, c.client.Provider(), c.client.Model())

	c.transition(res, Decompose, "")
	subtasks, err := c.decompose(ctx, res)
	if err != nil {
		return c.fail(res, err)
	}
	res.Subtasks = subtasks

	c.transition(res, Research, fmt.Sprintf("%d subtasks", len(subtasks)))
	if err := c.researchAll(ctx, res); err != nil {
		return c.fail(res, err)
	}

	c.transition(res, Synthesize, fmt.Sprintf("%d usable, %d degraded", len(res.Research)-res.Degraded(), res.Degraded()))
	report, err := c.synthesize(ctx, res)
	if err != nil {
		return c.fail(res, err)
	}
	res.Synthesis = report

	c.transition(res, Critique, fmt.Sprintf("%d sections", len(report.Sections)))
	review, err := c.critique(ctx, res)
	switch {
	case err == nil:
		res.Critique = review
	case c.policy.For(Critique) == SoftFail:
		log.Warn("Critique failed, finishing without review: %v", err)
	default:
		return c.fail(res, err)
	}

	c.transition(res, Done, "")
	res.Duration = c.now().Sub(res.StartedAt)
	log.Info("Research run complete in %v (tokens=%d)", res.Duration, res.Usage.TotalTokens)
	return res, nil
}

// transition moves res to stage, records it and notifies the observer.
func (c *Coordinator) transition(res *Result, to Stage, detail string) {
	at := c.now()
	from := res.State
	res.Transitions = append(res.Transitions, transitionRecord(from, to, at, detail))
	res.State = to
	logging.WorkflowDebug("Transition %s -> %s %s", from, to, detail)
	c.emit(Event{Kind: EventTransition, Stage: to, From: from, Detail: detail, At: at})
}

func (c *Coordinator) fail(res *Result, err error) (*Result, error) {
	var se *StageError
	if !errors.As(err, &se) {
		se = stageError(res.State, "", err)
	}
	res.Error = se.Reason
	c.transition(res, Failed, se.Error())
	res.Duration = c.now().Sub(res.StartedAt)
	logging.WorkflowError("Run %s failed: %v", res.RunID, se)
	return res, se
}

func (c *Coordinator) emit(e Event) {
	if c.observer != nil {
		c.observer.Observe(e)
	}
}
