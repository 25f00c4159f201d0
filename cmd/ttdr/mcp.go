package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/metalagman/ttdr/internal/run"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const serverVersion = "0.1.0"

type researchInput struct {
	Query string `json:"query" jsonschema:"the research question to investigate"`
}

type researchOutput struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	ReportPath string `json:"report_path"`
	Report     string `json:"report"`
}

type listRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of runs to return, newest first"`
}

type runSummary struct {
	RunID     string `json:"run_id"`
	Query     string `json:"query"`
	Status    string `json:"status"`
	Step      int    `json:"step"`
	Findings  int    `json:"findings"`
	CreatedAt string `json:"created_at"`
}

type listRunsOutput struct {
	Runs []runSummary `json:"runs"`
}

type getReportInput struct {
	RunID string `json:"run_id" jsonschema:"id of a finished run"`
}

type getReportOutput struct {
	RunID  string `json:"run_id"`
	Report string `json:"report"`
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve ttdr tools over MCP on stdio",
		Long:  "Serve the research, list_runs and get_report tools to an MCP client over stdin/stdout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, _, closeFn, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			server := newMCPServer(a.Runner, a.Store)
			log.Info().Msg("mcp server listening on stdio")
			return server.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}

func newMCPServer(runner *run.Runner, store *run.Store) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "ttdr", Version: serverVersion}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "research",
		Description: "Research a query with iterative search and draft denoising, and return the final report in Markdown.",
	}, researchHandler(runner))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_runs",
		Description: "List recent research runs.",
	}, listRunsHandler(store))
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_report",
		Description: "Return the report of a finished research run.",
	}, getReportHandler(store))
	return server
}

func researchHandler(runner *run.Runner) mcp.ToolHandlerFor[researchInput, researchOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in researchInput) (*mcp.CallToolResult, researchOutput, error) {
		query := strings.TrimSpace(in.Query)
		if query == "" {
			return nil, researchOutput{}, fmt.Errorf("query is required")
		}
		res, err := runner.Run(ctx, run.Request{Query: query})
		if err != nil {
			return nil, researchOutput{}, err
		}
		return nil, researchOutput{
			RunID:      res.RunID,
			Status:     res.Status,
			ReportPath: res.ReportPath,
			Report:     res.Report,
		}, nil
	}
}

func listRunsHandler(store *run.Store) mcp.ToolHandlerFor[listRunsInput, listRunsOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in listRunsInput) (*mcp.CallToolResult, listRunsOutput, error) {
		limit := in.Limit
		if limit <= 0 {
			limit = 20
		}
		records, err := store.ListRuns(ctx, limit)
		if err != nil {
			return nil, listRunsOutput{}, err
		}
		out := listRunsOutput{Runs: make([]runSummary, 0, len(records))}
		for _, r := range records {
			out.Runs = append(out.Runs, runSummary{
				RunID:     r.RunID,
				Query:     r.Query,
				Status:    r.Status,
				Step:      r.Step,
				Findings:  r.Findings,
				CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		return nil, out, nil
	}
}

func getReportHandler(store *run.Store) mcp.ToolHandlerFor[getReportInput, getReportOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in getReportInput) (*mcp.CallToolResult, getReportOutput, error) {
		rec, err := store.GetRun(ctx, strings.TrimSpace(in.RunID))
		if err != nil {
			return nil, getReportOutput{}, err
		}
		if rec.ReportPath == "" {
			return nil, getReportOutput{}, fmt.Errorf("run %s has no report (status %s)", rec.RunID, rec.Status)
		}
		data, err := os.ReadFile(rec.ReportPath)
		if err != nil {
			return nil, getReportOutput{}, fmt.Errorf("read report: %w", err)
		}
		return nil, getReportOutput{RunID: rec.RunID, Report: string(data)}, nil
	}
}
