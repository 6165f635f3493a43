package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"researchnerd/internal/config"
	"researchnerd/internal/extract"
	"researchnerd/internal/llm"
	"researchnerd/internal/logging"
	"researchnerd/internal/prompts"
	"researchnerd/internal/report"
	"researchnerd/internal/tools"
	"researchnerd/internal/tools/search"
	"researchnerd/internal/workflow"
)

var (
	outputJSON     bool
	outputPlain    bool
	providerFlag   string
	modelFlag      string
	searchProvider string

	// Overridable in tests.
	newClient         = llm.New
	newSearchProvider = search.New
)

// runCmd runs one research workflow.
var runCmd = &cobra.Command{
	Use:   "run [query]",
	Short: "Research a question and print the report",
	Long: `Runs the full pipeline for the query and prints the report.

Stage progress goes to stderr; the report goes to stdout as rendered
Markdown (default), plain Markdown (--plain) or JSON (--json).

Example:
  researchnerd run "What are the tradeoffs of WebAssembly on the server?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResearch,
}

func init() {
	runCmd.Flags().BoolVar(&outputJSON, "json", false, "Print the result as JSON")
	runCmd.Flags().BoolVar(&outputPlain, "plain", false, "Print plain Markdown without terminal styling")
	runCmd.Flags().StringVar(&providerFlag, "provider", "", "LLM provider override (anthropic, gemini)")
	runCmd.Flags().StringVar(&modelFlag, "model", "", "Model override")
	runCmd.Flags().StringVar(&searchProvider, "search-provider", "", "Search backend override (tavily, duckduckgo)")
}

func runResearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	applyRunFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord, err := buildCoordinator(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if logger != nil {
		logger.Info("starting research", zap.String("query", query), zap.String("provider", cfg.LLM.Provider))
	}
	res, runErr := coord.Run(ctx, query)
	if res != nil {
		if err := writeResult(cmd.OutOrStdout(), res); err != nil {
			logging.Get(logging.CategoryBoot).Warn("failed to write report: %v", err)
		}
	}
	return runErr
}

// applyRunFlags folds command-line overrides into the loaded config.
func applyRunFlags(c *config.Config) {
	if providerFlag != "" {
		c.SetProvider(providerFlag)
	}
	if modelFlag != "" {
		c.LLM.Model = modelFlag
	}
	if searchProvider != "" {
		c.Search.Provider = searchProvider
	}
	if eff := c.EffectiveSearchProvider(); eff != c.Search.Provider {
		logging.Boot("No Tavily API key set, falling back to %s", eff)
		c.Search.Provider = eff
	}
}

// buildCoordinator wires client, search tool, prompts and progress output.
func buildCoordinator(ctx context.Context, c *config.Config, progress io.Writer) (*workflow.Coordinator, error) {
	client, err := newClient(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	provider, err := newSearchProvider(c.Search)
	if err != nil {
		return nil, fmt.Errorf("failed to create search provider: %w", err)
	}
	reg := tools.NewRegistry()
	if err := search.Register(reg, provider, c.Search.MaxResults); err != nil {
		return nil, err
	}

	set, err := prompts.Load(c.Prompts.Path, time.Now())
	if err != nil {
		return nil, err
	}

	return workflow.New(workflow.Config{
		Client:    client,
		Tools:     reg,
		Prompts:   set,
		Stages:    c.Stages,
		Extractor: extract.Extractor{Repair: c.Extraction.RepairJSON},
		Observer:  report.NewProgress(progress, report.DefaultStyles()),
	})
}

func writeResult(w io.Writer, res *workflow.Result) error {
	if outputJSON {
		return report.WriteJSON(w, res)
	}
	md := report.Markdown(res)
	if !outputPlain {
		rendered, err := report.Render(md, report.RenderOptions{})
		if err == nil {
			md = rendered
		} else {
			logging.Get(logging.CategoryBoot).Debug("render failed, printing plain markdown: %v", err)
		}
	}
	_, err := fmt.Fprint(w, md)
	return err
}
