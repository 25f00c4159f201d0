package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/metalagman/ttdr/internal/logging"
	"github.com/metalagman/ttdr/internal/planner"
	"github.com/spf13/cobra"
)

func planCmd() *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "plan <query>",
		Short: "Generate a report plan as YAML",
		Long:  "Generate the section plan for a query without researching it. The output can be edited and passed to `ttdr run --plan`.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("query is required")
			}
			a, _, _, closeFn, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			plan, err := planner.New(a.LLM, logging.Component("planner")).Generate(cmd.Context(), query)
			if err != nil {
				return err
			}

			if outputPath == "" {
				return planner.WriteYAML(cmd.OutOrStdout(), plan)
			}
			f, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("create plan file: %w", err)
			}
			defer func() { _ = f.Close() }()
			if err := planner.WriteYAML(f, plan); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plan with %d sections written to %s\n", len(plan.Sections), outputPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "write the plan to this file instead of stdout")
	return cmd
}
