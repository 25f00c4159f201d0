package run

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/metalagman/ttdr/internal/model"
	"github.com/metalagman/ttdr/internal/research"
	"github.com/rs/zerolog"
)

// Run statuses stored beside the research statuses.
const (
	StatusFailed      = "failed"
	StatusInterrupted = "interrupted"
)

// ErrRunNotFound is returned for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// Store persists runs, their snapshots and their event timeline.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store for run persistence.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record is one row of the runs table.
type Record struct {
	RunID      string
	CreatedAt  time.Time
	Query      string
	Status     string
	Step       int
	Findings   int
	Revisions  int
	RunDir     string
	ReportPath string
	FinishedAt *time.Time
}

// Event is one timeline entry.
type Event struct {
	Seq      int
	Time     time.Time
	Type     string
	Message  string
	DataJSON string
}

// CreateRun inserts the run record and a run_started event.
func (s *Store) CreateRun(ctx context.Context, runID, query, runDir string) error {
	createdAt := s.timestamp()
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin create run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(run_id, created_at, query, status, step, findings, revisions, run_dir)
		VALUES(?, ?, ?, ?, 0, 0, 0, ?)`,
		runID, createdAt, query, string(model.StatusRunning), runDir); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}
	if err := s.insertEvent(ctx, tx, runID, "run_started", "run started", ""); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create run: %w", err)
	}
	return nil
}

// SaveSnapshot stores a snapshot and mirrors its counters on the run row in
// one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, runID string, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin save snapshot: %w", err)
	}
	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM snapshots WHERE run_id=?`, runID).Scan(&seq); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("read snapshot seq: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO snapshots(run_id, seq, step, status, taken_at, data_json) VALUES(?, ?, ?, ?, ?, ?)`,
		runID, seq+1, snap.Step, string(snap.Status), snap.TakenAt.UTC().Format(time.RFC3339Nano), string(data)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET step=?, findings=?, revisions=?, status=? WHERE run_id=?`,
		snap.Step, len(snap.History), snap.Revisions, string(snap.Status), runID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// AppendEvent adds one event to the run timeline.
func (s *Store) AppendEvent(ctx context.Context, runID, typ, message string, data any) error {
	var dataJSON string
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode event data: %w", err)
		}
		dataJSON = string(raw)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin append event: %w", err)
	}
	if err := s.insertEvent(ctx, tx, runID, typ, message, dataJSON); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// FinishRun records the final status and report location.
func (s *Store) FinishRun(ctx context.Context, runID, status, reportPath string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin finish run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE runs SET status=?, report_path=?, finished_at=? WHERE run_id=?`,
		status, nullableString(reportPath), s.timestamp(), runID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update run: %w", err)
	}
	if err := s.insertEvent(ctx, tx, runID, "run_finished", "run finished: "+status, ""); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish run: %w", err)
	}
	return nil
}

// SetReportPath records a regenerated report without changing the run status.
func (s *Store) SetReportPath(ctx context.Context, runID, reportPath string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET report_path=? WHERE run_id=?`, nullableString(reportPath), runID)
	if err != nil {
		return fmt.Errorf("update report path: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func (s *Store) insertEvent(ctx context.Context, tx *sql.Tx, runID, typ, message, dataJSON string) error {
	seq, err := nextSeq(ctx, tx, runID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO events(run_id, seq, ts, type, message, data_json) VALUES(?, ?, ?, ?, ?, ?)`,
		runID, seq, s.timestamp(), typ, message, nullableString(dataJSON)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func nextSeq(ctx context.Context, tx *sql.Tx, runID string) (int, error) {
	var seq int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events WHERE run_id=?`, runID)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("read event seq: %w", err)
	}
	return seq + 1, nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// GetRunStatus returns the status for a run id, or empty if missing.
func (s *Store) GetRunStatus(ctx context.Context, runID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id=?`, runID)
	var status string
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("read run status: %w", err)
	}
	return status, nil
}

const recordColumns = `run_id, created_at, query, status, step, findings, revisions, run_dir, report_path, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec                  Record
		createdAt            string
		reportPath, finished sql.NullString
	)
	if err := row.Scan(&rec.RunID, &createdAt, &rec.Query, &rec.Status, &rec.Step, &rec.Findings,
		&rec.Revisions, &rec.RunDir, &reportPath, &finished); err != nil {
		return Record{}, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.ReportPath = reportPath.String
	if finished.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finished.String); err == nil {
			rec.FinishedAt = &t
		}
	}
	return rec, nil
}

// GetRun returns one run record.
func (s *Store) GetRun(ctx context.Context, runID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM runs WHERE run_id=?`, runID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("read run: %w", err)
	}
	return rec, nil
}

// ListRuns returns runs newest first. A non-positive limit returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// LatestSnapshot returns the most recent snapshot of a run.
func (s *Store) LatestSnapshot(ctx context.Context, runID string) (model.Snapshot, error) {
	var data string
	row := s.db.QueryRowContext(ctx, `SELECT data_json FROM snapshots WHERE run_id=? ORDER BY seq DESC LIMIT 1`, runID)
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Snapshot{}, fmt.Errorf("%w: no snapshots for %s", ErrRunNotFound, runID)
		}
		return model.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap model.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Events returns the run timeline in order.
func (s *Store) Events(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, ts, type, message, data_json FROM events WHERE run_id=? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var (
			ev   Event
			ts   string
			data sql.NullString
		)
		if err := rows.Scan(&ev.Seq, &ts, &ev.Type, &ev.Message, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Time, _ = time.Parse(time.RFC3339Nano, ts)
		ev.DataJSON = data.String
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// Sink binds the store to one run. It persists loop snapshots and records
// each finished step as a step_finished event. Write failures are returned
// to the loop, which logs them.
type Sink struct {
	store  *Store
	runID  string
	logger zerolog.Logger
}

// Sink returns the per-run persistence adapter.
func (s *Store) Sink(runID string, logger zerolog.Logger) *Sink {
	return &Sink{store: s, runID: runID, logger: logger}
}

// SaveSnapshot implements research.SnapshotSink.
func (k *Sink) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	return k.store.SaveSnapshot(ctx, k.runID, snap)
}

type stepEventData struct {
	Step       int      `json:"step"`
	Question   string   `json:"question,omitempty"`
	Done       bool     `json:"done,omitempty"`
	Evolved    bool     `json:"evolved"`
	Snippets   int      `json:"snippets"`
	Sources    int      `json:"sources"`
	Fallbacks  []string `json:"fallbacks,omitempty"`
	Status     string   `json:"status"`
	Revisions  int      `json:"revisions"`
	DurationMS int64    `json:"duration_ms"`
}

// StepFinished implements research.Observer.
func (k *Sink) StepFinished(ctx context.Context, ev research.StepEvent) {
	msg := fmt.Sprintf("step %d finished", ev.Step)
	if ev.Done {
		msg = fmt.Sprintf("step %d: research complete", ev.Step)
	}
	data := stepEventData{
		Step:       ev.Step,
		Question:   ev.Question,
		Done:       ev.Done,
		Evolved:    ev.Evolved,
		Snippets:   ev.Snippets,
		Sources:    ev.Sources,
		Fallbacks:  ev.Fallbacks,
		Status:     string(ev.Status),
		Revisions:  ev.Revisions,
		DurationMS: ev.Duration.Milliseconds(),
	}
	if err := k.store.AppendEvent(ctx, k.runID, "step_finished", msg, data); err != nil {
		k.logger.Warn().Err(err).Int("step", ev.Step).Msg("failed to record step event")
	}
}
