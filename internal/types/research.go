// Package types holds the records exchanged between workflow stages and the
// shapes each stage's model output must satisfy.
package types

import "time"

// Finding is one sourced claim produced by a research call.
type Finding struct {
	Claim      string   `json:"claim"`
	Source     string   `json:"source"`
	Details    string   `json:"details"`
	Confidence *float64 `json:"confidence,omitempty"` // [0, 1] when present
}

// ResearchResult is the outcome of one research subtask.
type ResearchResult struct {
	Subtask  string    `json:"subtask"`
	Findings []Finding `json:"findings"`

	// Set by the coordinator when the subtask soft-failed.
	Degraded bool   `json:"degraded,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SynthesisSection is one titled part of the synthesized report.
type SynthesisSection struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Sources []string `json:"sources"`
}

// SynthesizedReport is the Synthesize stage output.
type SynthesizedReport struct {
	Summary     string             `json:"summary"`
	Sections    []SynthesisSection `json:"sections"`
	KeyInsights []string           `json:"key_insights"`
}

// CriticIssue is one problem the critic found.
type CriticIssue struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Location    string `json:"location,omitempty"`
}

// CriticReview is the Critique stage output.
type CriticReview struct {
	OverallQuality    string        `json:"overall_quality"`
	Issues            []CriticIssue `json:"issues"`
	Suggestions       []string      `json:"suggestions"`
	NeedsMoreResearch bool          `json:"needs_more_research"`
}

// SearchResult is one web_search hit.
type SearchResult struct {
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Snippet string   `json:"snippet"`
	Score   *float64 `json:"score,omitempty"`
}

// SubtaskList is the Decompose stage output.
type SubtaskList []string

// Sources returns every finding source across results, in order.
func Sources(results []ResearchResult) []string {
	var out []string
	for _, r := range results {
		for _, f := range r.Findings {
			out = append(out, f.Source)
		}
	}
	return out
}

// Usable returns the results that did not degrade.
func Usable(results []ResearchResult) []ResearchResult {
	out := make([]ResearchResult, 0, len(results))
	for _, r := range results {
		if !r.Degraded {
			out = append(out, r)
		}
	}
	return out
}

// Transition records one state change of a workflow run.
type Transition struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	At     time.Time `json:"at"`
	Detail string    `json:"detail,omitempty"`
}
