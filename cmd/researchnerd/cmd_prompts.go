package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"researchnerd/internal/config"
	"researchnerd/internal/prompts"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts [stage]",
	Short: "Show the effective system prompts",
	Long: `Prints the system prompt used by each stage after overrides and date
substitution. The argument may be a stage (decompose, research, synthesize,
critique) or a role (coordinator, researcher, synthesizer, critic).`,
	Args: cobra.MaximumNArgs(1),
	RunE: showPrompts,
}

func showPrompts(cmd *cobra.Command, args []string) error {
	c := cfg
	if c == nil {
		c = config.DefaultConfig()
	}
	set, err := prompts.Load(c.Prompts.Path, time.Now())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		role, err := resolveRole(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, set.Get(role))
		return nil
	}

	fmt.Fprintf(out, "# prompts source: %s\n\n", set.Source)
	for _, r := range prompts.Roles {
		fmt.Fprintf(out, "== %s ==\n%s\n\n", r, set.Get(r))
	}
	return nil
}

func resolveRole(name string) (prompts.Role, error) {
	if r, ok := prompts.RoleForStage(name); ok {
		return r, nil
	}
	for _, r := range prompts.Roles {
		if string(r) == name {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown stage or role %q", name)
}
