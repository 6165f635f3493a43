package report

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// RenderOptions selects the glamour style.
type RenderOptions struct {
	Style string // glamour standard style name; empty = auto-detect from the terminal
	Width int    // word wrap; 0 = 100
}

// Render renders Markdown for the terminal.
func Render(markdown string, opts RenderOptions) (string, error) {
	width := opts.Width
	if width <= 0 {
		width = 100
	}
	style := glamour.WithAutoStyle()
	if opts.Style != "" {
		style = glamour.WithStandardStyle(opts.Style)
	}

	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return out, nil
}
