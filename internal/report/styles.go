package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"researchnerd/internal/workflow"
)

// Semantic colors for status output.
var (
	colorSuccess = lipgloss.Color("#8BC34A")
	colorError   = lipgloss.Color("#e53935")
	colorWarning = lipgloss.Color("#FFC107")
	colorInfo    = lipgloss.Color("#2196F3")
	colorMuted   = lipgloss.Color("#8a93a3")
)

// Styles holds the lipgloss styles used for progress lines.
type Styles struct {
	Stage   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Muted   lipgloss.Style
}

// DefaultStyles returns the status palette.
func DefaultStyles() Styles {
	return Styles{
		Stage:   lipgloss.NewStyle().Foreground(colorInfo).Bold(true),
		Success: lipgloss.NewStyle().Foreground(colorSuccess).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(colorError).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(colorWarning),
		Muted:   lipgloss.NewStyle().Foreground(colorMuted),
	}
}

// Progress prints workflow events as one status line each.
type Progress struct {
	w      io.Writer
	styles Styles
}

// NewProgress returns an observer that writes to w.
func NewProgress(w io.Writer, styles Styles) *Progress {
	return &Progress{w: w, styles: styles}
}

// Observe implements workflow.Observer.
func (p *Progress) Observe(e workflow.Event) {
	switch e.Kind {
	case workflow.EventTransition:
		switch e.Stage {
		case workflow.Done:
			fmt.Fprintln(p.w, p.styles.Success.Render("✓ done"))
		case workflow.Failed:
			fmt.Fprintln(p.w, p.styles.Error.Render("✗ "+e.Detail))
		default:
			line := p.styles.Stage.Render("▸ " + string(e.Stage))
			if e.Detail != "" {
				line += " " + p.styles.Muted.Render("("+e.Detail+")")
			}
			fmt.Fprintln(p.w, line)
		}

	case workflow.EventResearchStarted:
		fmt.Fprintf(p.w, "  %s %s\n", p.styles.Muted.Render(fmt.Sprintf("[%d/%d]", e.Index+1, e.Total)), e.Subtask)

	case workflow.EventResearchFinished:
		if e.Result == nil {
			return
		}
		if e.Result.Degraded {
			fmt.Fprintf(p.w, "        %s\n", p.styles.Warning.Render("degraded: "+e.Result.Error))
			return
		}
		fmt.Fprintf(p.w, "        %s\n", p.styles.Muted.Render(fmt.Sprintf("%d findings", len(e.Result.Findings))))
	}
}
