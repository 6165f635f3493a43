// Package report renders workflow results as Markdown, JSON or styled
// terminal output.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"researchnerd/internal/types"
	"researchnerd/internal/workflow"
)

// Markdown renders res as a Markdown document. Failed runs render whatever
// partial results they carry plus the failure.
func Markdown(res *workflow.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Research: %s\n\n", res.Query)
	if res.State == workflow.Failed {
		fmt.Fprintf(&b, "> **Run failed:** %s\n\n", res.Error)
	}

	if res.Synthesis != nil {
		writeSynthesis(&b, res.Synthesis)
	}

	if len(res.Research) > 0 {
		b.WriteString("## Research Findings\n\n")
		for i, rr := range res.Research {
			writeResearch(&b, i+1, rr)
		}
	} else if len(res.Subtasks) > 0 {
		b.WriteString("## Subtasks\n\n")
		for i, s := range res.Subtasks {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s)
		}
		b.WriteString("\n")
	}

	if res.Critique != nil {
		writeCritique(&b, res.Critique)
	}

	writeFooter(&b, res)
	return b.String()
}

func writeSynthesis(b *strings.Builder, r *types.SynthesizedReport) {
	b.WriteString("## Summary\n\n")
	b.WriteString(strings.TrimSpace(r.Summary))
	b.WriteString("\n\n")

	for _, sec := range r.Sections {
		fmt.Fprintf(b, "### %s\n\n", sec.Title)
		b.WriteString(strings.TrimSpace(sec.Content))
		b.WriteString("\n\n")
		if len(sec.Sources) > 0 {
			b.WriteString("Sources:\n")
			for _, src := range sec.Sources {
				fmt.Fprintf(b, "- <%s>\n", src)
			}
			b.WriteString("\n")
		}
	}

	if len(r.KeyInsights) > 0 {
		b.WriteString("## Key Insights\n\n")
		for _, ins := range r.KeyInsights {
			fmt.Fprintf(b, "- %s\n", ins)
		}
		b.WriteString("\n")
	}
}

func writeResearch(b *strings.Builder, n int, rr types.ResearchResult) {
	if rr.Degraded {
		fmt.Fprintf(b, "### %d. %s *(degraded)*\n\n", n, rr.Subtask)
		fmt.Fprintf(b, "_Research failed: %s_\n\n", rr.Error)
		return
	}
	fmt.Fprintf(b, "### %d. %s\n\n", n, rr.Subtask)
	if len(rr.Findings) == 0 {
		b.WriteString("_No findings._\n\n")
		return
	}
	for _, f := range rr.Findings {
		fmt.Fprintf(b, "- **%s**", f.Claim)
		if f.Confidence != nil {
			fmt.Fprintf(b, " (confidence %.0f%%)", *f.Confidence*100)
		}
		fmt.Fprintf(b, "\n  %s\n  Source: <%s>\n", f.Details, f.Source)
	}
	b.WriteString("\n")
}

func writeCritique(b *strings.Builder, c *types.CriticReview) {
	b.WriteString("## Critical Review\n\n")
	fmt.Fprintf(b, "**Overall quality:** %s\n\n", c.OverallQuality)

	if len(c.Issues) > 0 {
		b.WriteString("| Severity | Type | Issue | Location |\n|---|---|---|---|\n")
		for _, is := range c.Issues {
			fmt.Fprintf(b, "| %s | %s | %s | %s |\n", is.Severity, is.Type, cell(is.Description), cell(is.Location))
		}
		b.WriteString("\n")
	}
	if len(c.Suggestions) > 0 {
		b.WriteString("**Suggestions:**\n\n")
		for _, s := range c.Suggestions {
			fmt.Fprintf(b, "- %s\n", s)
		}
		b.WriteString("\n")
	}
	if c.NeedsMoreResearch {
		b.WriteString("**The reviewer recommends further research.**\n\n")
	} else {
		b.WriteString("The reviewer does not request further research.\n\n")
	}
}

func writeFooter(b *strings.Builder, res *workflow.Result) {
	b.WriteString("---\n\n")
	fmt.Fprintf(b, "_Run %s · %d subtasks", res.RunID, len(res.Subtasks))
	if d := res.Degraded(); d > 0 {
		fmt.Fprintf(b, " (%d degraded)", d)
	}
	fmt.Fprintf(b, " · %d tokens · %s_\n", res.Usage.TotalTokens, res.Duration.Round(time.Millisecond))
}

// cell makes text safe for a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

// WriteJSON writes res as indented JSON.
func WriteJSON(w io.Writer, res *workflow.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
