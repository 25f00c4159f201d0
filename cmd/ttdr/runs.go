package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/metalagman/ttdr/internal/config"
	"github.com/metalagman/ttdr/internal/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#20B9B4")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Bold(true).Width(12)
	statusStyle = map[string]lipgloss.Style{
		"running":       lipgloss.NewStyle().Foreground(lipgloss.Color("#F4D03F")),
		"done_semantic": lipgloss.NewStyle().Foreground(lipgloss.Color("#2CD7C7")),
		"done_budget":   lipgloss.NewStyle().Foreground(lipgloss.Color("#2CD7C7")),
		"failed":        lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C")),
		"interrupted":   lipgloss.NewStyle().Foreground(lipgloss.Color("#E67E22")),
	}
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage ttdr runs",
	}
	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsShowCmd())
	cmd.AddCommand(runsReportCmd())
	cmd.AddCommand(runsPruneCmd())
	cmd.AddCommand(runsPurgeCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, dir, closeFn, err := openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if _, err := run.Reconcile(cmd.Context(), a.DB, dir); err != nil {
				log.Warn().Err(err).Msg("reconcile runs failed")
			}
			records, err := a.Store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRunsTable(records))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most N runs (0 for all)")
	return cmd
}

func renderRunsTable(records []run.Record) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "STATUS", "STEP", "FINDINGS", "REVISIONS", "CREATED", "QUERY").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range records {
		t.Row(
			r.RunID,
			styleStatus(r.Status),
			strconv.Itoa(r.Step),
			strconv.Itoa(r.Findings),
			strconv.Itoa(r.Revisions),
			r.CreatedAt.Local().Format(time.DateTime),
			truncate(r.Query, 60),
		)
	}
	return t.Render()
}

func styleStatus(status string) string {
	if s, ok := statusStyle[status]; ok {
		return s.Render(status)
	}
	return status
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func runsShowCmd() *cobra.Command {
	var showState bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run and its event timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, closeFn, err := openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := a.Store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if showState {
				snap, err := a.Store.LatestSnapshot(cmd.Context(), rec.RunID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}

			events, err := a.Store.Events(cmd.Context(), rec.RunID)
			if err != nil {
				return err
			}
			writeRun(out, rec, events)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showState, "state", false, "print the latest state snapshot as JSON")
	return cmd
}

func writeRun(w io.Writer, rec run.Record, events []run.Event) {
	field := func(label, value string) {
		fmt.Fprintln(w, labelStyle.Render(label)+value)
	}
	field("Run", rec.RunID)
	field("Query", rec.Query)
	field("Status", styleStatus(rec.Status))
	field("Step", strconv.Itoa(rec.Step))
	field("Findings", strconv.Itoa(rec.Findings))
	field("Revisions", strconv.Itoa(rec.Revisions))
	field("Created", rec.CreatedAt.Local().Format(time.RFC3339))
	if rec.FinishedAt != nil {
		field("Finished", rec.FinishedAt.Local().Format(time.RFC3339))
	}
	field("Directory", rec.RunDir)
	if rec.ReportPath != "" {
		field("Report", rec.ReportPath)
	}
	if len(events) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, ev := range events {
		fmt.Fprintf(w, "%3d  %s  %-14s %s\n", ev.Seq, ev.Time.Local().Format(time.TimeOnly), ev.Type, ev.Message)
	}
}

func runsReportCmd() *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Regenerate the report of a run from its latest snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, _, closeFn, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := a.Runner.Rewrite(cmd.Context(), args[0], outputPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report for %s (%s) written to %s\n", res.RunID, res.Status, res.ReportPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "report path (default: the run directory)")
	return cmd
}

func runsPruneCmd() *cobra.Command {
	var keepLast int
	var keepDays int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Prune old runs from disk and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadGlobalConfig()
			if err != nil {
				return err
			}
			a, dir, closeFn, err := openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			policy := config.RetentionPolicy{KeepLast: keepLast, KeepDays: keepDays}
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				policy = cfg.Retention
			}
			if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
				return fmt.Errorf("set --keep-last or --keep-days (or configure retention in .ttdr/config.json)")
			}

			res, err := run.PruneRuns(cmd.Context(), a.DB, dir, policy, dryRun)
			if err != nil {
				return err
			}
			mode := "deleted"
			if dryRun {
				mode = "would delete"
			}
			log.Info().Msgf("%s %d runs (kept %d, skipped %d)", mode, res.Deleted, res.Kept, res.Skipped)
			return nil
		},
	}
	cmd.Flags().IntVar(&keepLast, "keep-last", 0, "keep the newest N runs")
	cmd.Flags().IntVar(&keepDays, "keep-days", 0, "keep runs newer than N days")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be pruned without deleting")
	return cmd
}

func runsPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every finished run and its directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, dir, closeFn, err := openStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := run.Purge(cmd.Context(), a.DB, dir)
			if err != nil {
				return fmt.Errorf("purge failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d runs\n", n)
			return nil
		},
	}
}
