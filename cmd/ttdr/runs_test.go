package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/metalagman/ttdr/internal/run"
)

func TestRenderRunsTable(t *testing.T) {
	created := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	out := renderRunsTable([]run.Record{
		{RunID: "20250314-090000-abc123", CreatedAt: created, Query: "sodium-ion outlook", Status: "done_budget", Step: 3, Findings: 3, Revisions: 2},
		{RunID: "20250314-080000-def456", CreatedAt: created, Query: strings.Repeat("long query ", 10), Status: "failed"},
	})
	for _, want := range []string{"RUN", "20250314-090000-abc123", "sodium-ion outlook", "done_budget", "failed", "…"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abcdefghij", 5); got != "abcd…" {
		t.Fatalf("truncate = %q", got)
	}
}

func TestWriteRun_IncludesTimeline(t *testing.T) {
	finished := time.Date(2025, 3, 14, 9, 5, 0, 0, time.UTC)
	var buf bytes.Buffer
	writeRun(&buf, run.Record{
		RunID:      "r1",
		Query:      "q",
		Status:     "done_semantic",
		RunDir:     "/tmp/r1",
		ReportPath: "/tmp/r1/report.md",
		FinishedAt: &finished,
	}, []run.Event{
		{Seq: 1, Time: finished, Type: "run_started", Message: "run started"},
		{Seq: 2, Time: finished, Type: "run_finished", Message: "done_semantic"},
	})
	out := buf.String()
	for _, want := range []string{"r1", "/tmp/r1/report.md", "Finished", "run_started", "run_finished"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
