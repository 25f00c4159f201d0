package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/metalagman/ttdr/internal/logging"
	"github.com/metalagman/ttdr/internal/model"
	"github.com/metalagman/ttdr/internal/planner"
	"github.com/metalagman/ttdr/internal/report"
	"github.com/metalagman/ttdr/internal/research"
	"github.com/metalagman/ttdr/internal/run"
	"github.com/metalagman/ttdr/internal/tui"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var (
		planFile    string
		outputPath  string
		showTUI     bool
		raw         bool
		style       string
		width       int
		metricsFile string
	)
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "Research a query and write a report",
		Long: "Research a query: plan report sections, iterate search questions with answer synthesis " +
			"and draft denoising, then write report.md and state.json into the run directory.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("query is required")
			}

			req := run.Request{Query: query, OutputPath: outputPath}
			if planFile != "" {
				plan, err := planner.LoadFile(planFile)
				if err != nil {
					return err
				}
				req.Plan = &plan
			}

			if showTUI {
				// Components capture the global logger when they are built.
				closeLog, err := logToFile()
				if err != nil {
					return err
				}
				defer closeLog()
			}

			a, cfg, _, closeFn, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			var res run.Result
			work := func(ctx context.Context) error {
				var err error
				res, err = a.Runner.Run(ctx, req)
				return err
			}
			if showTUI {
				progress := tui.NewProgress(query, cfg.Research.MaxSteps, os.Stdin, cmd.ErrOrStderr())
				req.Observers = []research.Observer{progress}
				err = progress.Run(cmd.Context(), work)
			} else {
				err = work(cmd.Context())
			}

			if metricsFile != "" {
				if werr := a.Metrics.WriteTextfile(metricsFile); werr != nil {
					log.Warn().Err(werr).Msg("failed to write metrics")
				}
			}
			if err != nil {
				return err
			}

			log.Info().
				Str("run_id", res.RunID).
				Str("status", res.Status).
				Str("report", res.ReportPath).
				Str("state", res.StatePath).
				Msg("report written")

			out := res.Report
			if !raw {
				rendered, rerr := report.Render(res.Report, style, width)
				if rerr != nil {
					log.Warn().Err(rerr).Msg("render report failed, printing markdown")
				} else {
					out = rendered
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			if res.Status != string(model.StatusDoneSemantic) && res.Status != string(model.StatusDoneBudget) {
				return fmt.Errorf("run %s finished with status %s", res.RunID, res.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&planFile, "plan", "", "use this YAML plan instead of generating one")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "report path (default: <state-dir>/runs/<run-id>/report.md)")
	cmd.Flags().BoolVar(&showTUI, "tui", false, "show live progress; logs go to <state-dir>/ttdr.log")
	cmd.Flags().BoolVar(&raw, "raw", false, "print the report as markdown without terminal rendering")
	cmd.Flags().StringVar(&style, "style", "", "glamour style for the rendered report (dark, light, notty); empty detects the terminal")
	cmd.Flags().IntVar(&width, "width", 100, "word wrap width for the rendered report")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	return cmd
}

func logToFile() (func(), error) {
	dir, err := resolveStateDir()
	if err != nil {
		return func() {}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return func() {}, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "ttdr.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return func() {}, fmt.Errorf("open log file: %w", err)
	}
	logging.Init(logging.Options{Debug: debug, JSON: true, Out: f})
	return func() { _ = f.Close() }, nil
}
