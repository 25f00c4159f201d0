// Package run executes research runs: it allocates a run id and directory,
// plans, drives the research loop with persistence, and writes the report.
package run

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/metalagman/ttdr/internal/config"
	"github.com/metalagman/ttdr/internal/llm"
	"github.com/metalagman/ttdr/internal/model"
	"github.com/metalagman/ttdr/internal/planner"
	"github.com/metalagman/ttdr/internal/report"
	"github.com/metalagman/ttdr/internal/research"
	"github.com/rs/zerolog"
)

// Deps are the collaborators of a Runner. Web, Vector and Scorer may be nil.
type Deps struct {
	DB        *sql.DB
	LLM       llm.Completer
	Web       research.WebSearcher
	Vector    research.VectorRetriever
	Scorer    research.Scorer
	Observers []research.Observer
	Logger    zerolog.Logger
}

// Runner executes research runs.
type Runner struct {
	stateDir string
	cfg      config.Config
	db       *sql.DB
	store    *Store
	deps     Deps
	planner  *planner.Planner
	writer   *report.Writer
	logger   zerolog.Logger
	now      func() time.Time
}

// Request describes one run.
type Request struct {
	Query string
	// Plan overrides plan generation when set.
	Plan *model.Plan
	// OutputPath is where report.md is written; defaults to the run dir.
	OutputPath string
	// Observers receive step events of this run only.
	Observers []research.Observer
}

// Result summarizes a completed run.
type Result struct {
	RunID      string
	Status     string
	RunDir     string
	ReportPath string
	StatePath  string
	Report     string
	State      *model.ResearchState
}

// NewRunner constructs a Runner rooted at stateDir (usually .ttdr).
func NewRunner(stateDir string, cfg config.Config, deps Deps) (*Runner, error) {
	if deps.DB == nil {
		return nil, errors.New("run database is required")
	}
	if deps.LLM == nil {
		return nil, research.ErrNoCompleter
	}
	return &Runner{
		stateDir: stateDir,
		cfg:      cfg,
		db:       deps.DB,
		store:    NewStore(deps.DB),
		deps:     deps,
		planner:  planner.New(deps.LLM, deps.Logger),
		writer:   report.NewWriter(deps.LLM, deps.Logger),
		logger:   deps.Logger,
		now:      time.Now,
	}, nil
}

// Store returns the run store.
func (r *Runner) Store() *Store { return r.store }

// Params maps configuration onto loop parameters.
func Params(cfg config.Config) research.Params {
	p := research.Params{
		MaxSteps:                cfg.Research.MaxSteps,
		EvolutionFrequency:      cfg.Research.EvolutionFrequency,
		CandidateCount:          cfg.Research.CandidateCount,
		ContextWindowLimit:      cfg.Research.ContextWindowLimit,
		DenoiseBatchSize:        cfg.Research.DenoiseBatchSize,
		SnippetTruncationLength: cfg.Research.SnippetTruncationLength,
		SearchMaxResults:        cfg.Search.MaxResults,
		SeedDraft:               cfg.Research.SeedDraft,
	}
	if cfg.Vector.Enabled {
		p.VectorTopK = cfg.Vector.TopK
	}
	return p
}

// Run executes one research run to completion.
func (r *Runner) Run(ctx context.Context, req Request) (res Result, err error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Result{}, errors.New("query is required")
	}
	params := Params(r.cfg)
	if err := params.Validate(); err != nil {
		return Result{}, err
	}

	startedAt := r.now()
	defer func() {
		if res.RunID == "" {
			return
		}
		status := res.Status
		if status == "" && err != nil {
			status = StatusFailed
		}
		event := r.logger.Info().
			Str("run_id", res.RunID).
			Str("status", status).
			Dur("duration", time.Since(startedAt))
		if err != nil {
			event = event.Err(err)
		}
		event.Msg("run finished")
	}()

	if _, err := Reconcile(ctx, r.db, r.stateDir); err != nil {
		r.logger.Warn().Err(err).Msg("reconcile runs failed")
	}

	runID, err := newRunID(startedAt)
	if err != nil {
		return Result{}, err
	}
	res.RunID = runID
	res.RunDir = filepath.Join(r.stateDir, "runs", runID)
	if err := os.MkdirAll(res.RunDir, 0o755); err != nil {
		return res, fmt.Errorf("create run dir: %w", err)
	}

	lock, err := AcquireRunLock(r.stateDir, runID)
	if err != nil {
		return res, err
	}
	defer func() { _ = lock.Release() }()

	if err := r.store.CreateRun(ctx, runID, query, res.RunDir); err != nil {
		return res, err
	}
	logger := r.logger.With().Str("run_id", runID).Logger()

	var plan model.Plan
	if req.Plan != nil {
		plan = *req.Plan
	} else {
		plan = r.planner.Plan(ctx, query)
	}
	r.writePlan(res.RunDir, plan, logger)

	sink := r.store.Sink(runID, logger)
	observers := []research.Observer{sink}
	observers = append(observers, r.deps.Observers...)
	observers = append(observers, req.Observers...)
	opts := []research.Option{
		research.WithSnapshotSink(sink),
		research.WithObserver(multiObserver(observers)),
		research.WithLogger(logger),
	}
	if r.deps.Web != nil {
		opts = append(opts, research.WithWebSearcher(r.deps.Web))
	}
	if r.deps.Vector != nil {
		opts = append(opts, research.WithVectorRetriever(r.deps.Vector))
	}
	if r.deps.Scorer != nil {
		opts = append(opts, research.WithScorer(r.deps.Scorer))
	}

	st, err := research.NewController(r.deps.LLM, params, opts...).Run(ctx, query, plan)
	if err != nil {
		r.finish(ctx, runID, StatusFailed, "", logger)
		return res, fmt.Errorf("research: %w", err)
	}

	body := r.writer.Write(ctx, st)
	st.SetReport(body)
	res.Report = report.Document(st, body, r.now())
	res.State = st
	res.Status = string(st.Status())

	res.ReportPath = req.OutputPath
	if res.ReportPath == "" {
		res.ReportPath = filepath.Join(res.RunDir, "report.md")
	}
	res.StatePath = statePath(res.ReportPath)
	if err := writeOutputs(res.ReportPath, res.StatePath, res.Report, st.Snapshot()); err != nil {
		r.finish(ctx, runID, StatusFailed, "", logger)
		return res, err
	}
	if err := sink.SaveSnapshot(ctx, st.Snapshot()); err != nil {
		logger.Warn().Err(err).Msg("final snapshot failed")
	}
	r.finish(ctx, runID, res.Status, res.ReportPath, logger)
	return res, nil
}

// Rewrite regenerates the report of an existing run from its latest
// snapshot. Interrupted and failed runs get a report of whatever they found.
func (r *Runner) Rewrite(ctx context.Context, runID, outputPath string) (Result, error) {
	rec, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return Result{}, err
	}
	snap, err := r.store.LatestSnapshot(ctx, runID)
	if err != nil {
		return Result{}, err
	}
	st, err := model.Restore(snap)
	if err != nil {
		return Result{}, err
	}
	logger := r.logger.With().Str("run_id", runID).Logger()

	body := r.writer.Write(ctx, st)
	st.SetReport(body)
	res := Result{
		RunID:      runID,
		Status:     rec.Status,
		RunDir:     rec.RunDir,
		ReportPath: outputPath,
		Report:     report.Document(st, body, r.now()),
		State:      st,
	}
	if res.ReportPath == "" {
		res.ReportPath = filepath.Join(rec.RunDir, "report.md")
	}
	res.StatePath = statePath(res.ReportPath)
	if err := writeOutputs(res.ReportPath, res.StatePath, res.Report, st.Snapshot()); err != nil {
		return res, err
	}
	if err := r.store.SetReportPath(ctx, runID, res.ReportPath); err != nil {
		return res, err
	}
	if err := r.store.AppendEvent(ctx, runID, "report_rewritten", "report regenerated", map[string]string{"path": res.ReportPath}); err != nil {
		logger.Warn().Err(err).Msg("failed to record report event")
	}
	logger.Info().Str("report", res.ReportPath).Msg("report regenerated")
	return res, nil
}

func (r *Runner) finish(ctx context.Context, runID, status, reportPath string, logger zerolog.Logger) {
	if err := r.store.FinishRun(ctx, runID, status, reportPath); err != nil {
		logger.Warn().Err(err).Msg("failed to record run completion")
	}
}

func (r *Runner) writePlan(runDir string, plan model.Plan, logger zerolog.Logger) {
	f, err := os.Create(filepath.Join(runDir, "plan.yaml"))
	if err != nil {
		logger.Warn().Err(err).Msg("failed to write plan.yaml")
		return
	}
	defer func() { _ = f.Close() }()
	if err := planner.WriteYAML(f, plan); err != nil {
		logger.Warn().Err(err).Msg("failed to write plan.yaml")
	}
}

// statePath places the state snapshot next to the report: report.md gets
// state.json, any other name gets <name>.state.json.
func statePath(reportPath string) string {
	dir, name := filepath.Split(reportPath)
	if name == "report.md" {
		return filepath.Join(dir, "state.json")
	}
	return filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+".state.json")
}

func writeOutputs(reportPath, statePath, doc string, snap model.Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(reportPath), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(reportPath, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(statePath, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

type multiObserver []research.Observer

func (m multiObserver) StepFinished(ctx context.Context, ev research.StepEvent) {
	for _, o := range m {
		o.StepFinished(ctx, ev)
	}
}

func newRunID(now time.Time) (string, error) {
	suffix, err := randomHex(3)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), suffix), nil
}

func randomHex(bytesLen int) (string, error) {
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
