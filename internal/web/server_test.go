package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	internaldb "github.com/metalagman/ttdr/internal/db"
	"github.com/metalagman/ttdr/internal/metrics"
	"github.com/metalagman/ttdr/internal/research"
	"github.com/metalagman/ttdr/internal/run"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *run.Store, *metrics.Metrics) {
	t.Helper()
	db, err := internaldb.Open(filepath.Join(t.TempDir(), "ttdr.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := run.NewStore(db)
	m := metrics.New()
	srv, err := NewServer(store, m.Registry(), zerolog.Nop())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, store, m
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_IndexListsRuns(t *testing.T) {
	ts, store, _ := newTestServer(t)
	require.NoError(t, store.CreateRun(context.Background(), "20250314-090000-abc123", "sodium-ion outlook", t.TempDir()))

	code, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "20250314-090000-abc123")
	assert.Contains(t, body, "sodium-ion outlook")
}

func TestServer_RunPageAndReport(t *testing.T) {
	ts, store, _ := newTestServer(t)
	ctx := context.Background()
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.md")
	require.NoError(t, os.WriteFile(reportPath, []byte("# Sodium\n\nfindings <b>here</b>\n"), 0o644))
	require.NoError(t, store.CreateRun(ctx, "r1", "sodium", dir))
	require.NoError(t, store.FinishRun(ctx, "r1", "done_budget", reportPath))

	code, body := get(t, ts.URL+"/runs/r1")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "done_budget")
	assert.Contains(t, body, "run_finished")
	assert.Contains(t, body, "&lt;b&gt;here&lt;/b&gt;")

	code, body = get(t, ts.URL+"/runs/r1/report.md")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, strings.HasPrefix(body, "# Sodium"))
}

func TestServer_UnknownRun(t *testing.T) {
	ts, _, _ := newTestServer(t)
	code, _ := get(t, ts.URL+"/runs/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_Metrics(t *testing.T) {
	ts, _, m := newTestServer(t)
	m.StepFinished(context.Background(), research.StepEvent{Question: "q", Evolved: true})

	code, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `ttdr_research_steps_total{kind="evolved"} 1`)
}
