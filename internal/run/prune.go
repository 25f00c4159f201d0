package run

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/metalagman/ttdr/internal/config"
	"github.com/metalagman/ttdr/internal/model"
)

// PruneResult summarizes a prune operation.
type PruneResult struct {
	Considered int
	Kept       int
	Deleted    int
	Skipped    int
}

// PruneRuns deletes old run records and their directories. Runs that are
// still executing are always kept.
func PruneRuns(ctx context.Context, db *sql.DB, stateDir string, policy config.RetentionPolicy, dryRun bool) (PruneResult, error) {
	if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
		return PruneResult{}, nil
	}
	cutoff := time.Time{}
	if policy.KeepDays > 0 {
		cutoff = time.Now().UTC().Add(-time.Duration(policy.KeepDays) * 24 * time.Hour)
	}
	rows, err := db.QueryContext(ctx, `SELECT run_id, created_at, status, run_dir FROM runs ORDER BY created_at DESC, run_id DESC`)
	if err != nil {
		return PruneResult{}, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type runRow struct {
		id        string
		createdAt time.Time
		status    string
		runDir    string
		parseErr  error
	}
	var runs []runRow
	for rows.Next() {
		var id, createdAt, status, runDir string
		if err := rows.Scan(&id, &createdAt, &status, &runDir); err != nil {
			return PruneResult{}, fmt.Errorf("scan run: %w", err)
		}
		parsed, parseErr := time.Parse(time.RFC3339Nano, createdAt)
		runs = append(runs, runRow{id: id, createdAt: parsed, status: status, runDir: runDir, parseErr: parseErr})
	}
	if err := rows.Err(); err != nil {
		return PruneResult{}, fmt.Errorf("iterate runs: %w", err)
	}
	_ = rows.Close()

	res := PruneResult{Considered: len(runs)}
	for idx, row := range runs {
		keep := false
		if row.status == string(model.StatusRunning) {
			keep = true
		}
		if !keep && policy.KeepLast > 0 && idx < policy.KeepLast {
			keep = true
		}
		if !keep && policy.KeepDays > 0 {
			if row.parseErr != nil {
				keep = true
			} else if row.createdAt.After(cutoff) {
				keep = true
			}
		}
		if keep {
			res.Kept++
			continue
		}
		if dryRun {
			res.Deleted++
			continue
		}
		targetDir := row.runDir
		if targetDir == "" {
			targetDir = filepath.Join(stateDir, "runs", row.id)
		}
		if err := os.RemoveAll(targetDir); err != nil && !os.IsNotExist(err) {
			res.Skipped++
			continue
		}
		_ = os.Remove(lockPath(stateDir, row.id))
		if _, err := db.ExecContext(ctx, `DELETE FROM runs WHERE run_id=?`, row.id); err != nil {
			return res, fmt.Errorf("delete run %s: %w", row.id, err)
		}
		res.Deleted++
	}
	return res, nil
}

// Purge removes every finished run, its directory and its lock file.
// Runs held by a live process are left alone.
func Purge(ctx context.Context, db *sql.DB, stateDir string) (int, error) {
	if _, err := Reconcile(ctx, db, stateDir); err != nil {
		return 0, err
	}
	rows, err := db.QueryContext(ctx, `SELECT run_id, run_dir FROM runs WHERE status<>?`, string(model.StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("list runs: %w", err)
	}
	type target struct{ id, dir string }
	var targets []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.id, &t.dir); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan run: %w", err)
		}
		targets = append(targets, t)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate runs: %w", err)
	}

	deleted := 0
	for _, t := range targets {
		if t.dir == "" {
			t.dir = filepath.Join(stateDir, "runs", t.id)
		}
		if err := os.RemoveAll(t.dir); err != nil && !os.IsNotExist(err) {
			return deleted, fmt.Errorf("remove run dir %s: %w", t.id, err)
		}
		_ = os.Remove(lockPath(stateDir, t.id))
		if _, err := db.ExecContext(ctx, `DELETE FROM runs WHERE run_id=?`, t.id); err != nil {
			return deleted, fmt.Errorf("delete run %s: %w", t.id, err)
		}
		deleted++
	}
	return deleted, nil
}
