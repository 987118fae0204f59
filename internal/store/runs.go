package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/raysh454/lotsync/internal/model"
)

// SaveRun appends a finished pass to the run history.
func (s *SQLiteStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Summary == "" {
		run.Summary = "{}"
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO scrape_runs
			(id, dealership_id, kind, state, summary, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DealershipID, run.Kind, string(run.State), run.Summary,
		toUnix(run.StartedAt), toUnix(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// ListRuns returns the latest runs of a dealership, newest first. limit <= 0
// means 50.
func (s *SQLiteStore) ListRuns(ctx context.Context, dealershipID string, limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, dealership_id, kind, state, summary, started_at, finished_at
		FROM scrape_runs WHERE dealership_id = ?
		ORDER BY started_at DESC LIMIT ?`, dealershipID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		var (
			r                 model.RunRecord
			state             string
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &r.DealershipID, &r.Kind, &state, &r.Summary, &started, &finished); err != nil {
			return nil, err
		}
		r.State = model.PassState(state)
		r.StartedAt = fromUnix(started)
		r.FinishedAt = fromUnix(finished)
		out = append(out, r)
	}
	return out, rows.Err()
}
