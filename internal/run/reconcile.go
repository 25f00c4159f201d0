package run

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/metalagman/ttdr/internal/model"
	"github.com/rs/zerolog/log"
)

// Reconcile marks runs left in the running state by a dead process as
// interrupted. It returns the affected run ids.
func Reconcile(ctx context.Context, db *sql.DB, stateDir string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT run_id FROM runs WHERE status=?`, string(model.StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("list running runs: %w", err)
	}
	var running []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		running = append(running, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	var stale []string
	for _, id := range running {
		locked, err := IsRunLocked(stateDir, id)
		if err != nil {
			return stale, err
		}
		if locked {
			continue
		}
		if _, err := db.ExecContext(ctx, `UPDATE runs SET status=? WHERE run_id=? AND status=?`,
			StatusInterrupted, id, string(model.StatusRunning)); err != nil {
			return stale, fmt.Errorf("mark run %s interrupted: %w", id, err)
		}
		log.Info().Str("run_id", id).Msg("marked stale run as interrupted")
		stale = append(stale, id)
	}
	return stale, nil
}
