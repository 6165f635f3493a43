// Package workflow runs the research pipeline as a fixed sequential state
// machine: decompose, research each subtask, synthesize, critique.
package workflow

import (
	"fmt"
	"time"

	"researchnerd/internal/types"
)

// Stage is a state of the workflow machine.
type Stage string

const (
	Idle       Stage = "idle"
	Decompose  Stage = "decompose"
	Research   Stage = "research"
	Synthesize Stage = "synthesize"
	Critique   Stage = "critique"
	Done       Stage = "done"
	Failed     Stage = "failed"
)

// Stages lists the working stages in execution order.
var Stages = []Stage{Decompose, Research, Synthesize, Critique}

// Isolation says what a stage failure does to the run.
type Isolation int

const (
	// Fatal ends the run in Failed.
	Fatal Isolation = iota
	// SoftFail records the failure and lets the run continue.
	SoftFail
)

func (i Isolation) String() string {
	if i == SoftFail {
		return "soft-fail"
	}
	return "fatal"
}

// Policy maps each stage to its failure isolation. At Research, SoftFail
// applies per subtask. Decompose and Synthesize produce the input of the next
// stage and must stay Fatal.
type Policy map[Stage]Isolation

// DefaultPolicy returns the standard table: research soft-fails per subtask,
// every other stage is fatal.
func DefaultPolicy() Policy {
	return Policy{
		Decompose:  Fatal,
		Research:   SoftFail,
		Synthesize: Fatal,
		Critique:   Fatal,
	}
}

// For returns the isolation for stage; unknown stages are fatal.
func (p Policy) For(s Stage) Isolation {
	if p == nil {
		return DefaultPolicy()[s]
	}
	return p[s]
}

// Validate rejects tables that would let a run continue without its input.
func (p Policy) Validate() error {
	for _, s := range []Stage{Decompose, Synthesize} {
		if p.For(s) != Fatal {
			return fmt.Errorf("stage %s cannot be %s", s, p.For(s))
		}
	}
	return nil
}

// Result is the aggregate of one run. Partial results gathered before a
// failure stay populated.
type Result struct {
	RunID       string                   `json:"run_id"`
	Query       string                   `json:"query"`
	Subtasks    []string                 `json:"subtasks"`
	Research    []types.ResearchResult   `json:"research_results"`
	Synthesis   *types.SynthesizedReport `json:"synthesis,omitempty"`
	Critique    *types.CriticReview      `json:"critique,omitempty"`
	State       Stage                    `json:"state"`
	Error       string                   `json:"error,omitempty"`
	Transitions []types.Transition       `json:"transitions"`
	Usage       types.UsageMetadata      `json:"usage"`
	StartedAt   time.Time                `json:"started_at"`
	Duration    time.Duration            `json:"duration"`
}

// Degraded returns how many research subtasks soft-failed.
func (r *Result) Degraded() int {
	n := 0
	for _, rr := range r.Research {
		if rr.Degraded {
			n++
		}
	}
	return n
}

// EventKind identifies an observer notification.
type EventKind string

const (
	EventTransition       EventKind = "transition"
	EventResearchStarted  EventKind = "research_started"
	EventResearchFinished EventKind = "research_finished"
)

// Event is one progress notification.
type Event struct {
	Kind    EventKind
	Stage   Stage
	From    Stage // transitions only
	Detail  string
	Index   int // research events: zero-based subtask index
	Total   int
	Subtask string
	Result  *types.ResearchResult // research_finished only
	At      time.Time
}

// Observer receives progress events synchronously from the run goroutine.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }
