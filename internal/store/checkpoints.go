package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/raysh454/lotsync/internal/model"
)

// LoadCheckpoint returns the dealership's checkpoint or nil when the last
// pass completed.
func (s *SQLiteStore) LoadCheckpoint(ctx context.Context, dealershipID string) (*model.Checkpoint, error) {
	var (
		cp               model.Checkpoint
		started, updated int64
		resumable        int
	)
	err := s.db.QueryRowContext(ctx, `SELECT dealership_id, page, idx, pass_started_at, updated_at,
			resumable, baseline, observed, inserted, updated, unchanged, failed
		FROM checkpoints WHERE dealership_id = ?`, dealershipID).Scan(
		&cp.DealershipID, &cp.Cursor.Page, &cp.Cursor.Index, &started, &updated,
		&resumable, &cp.Baseline, &cp.Observed, &cp.Inserted, &cp.Updated, &cp.Unchanged, &cp.Failed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", dealershipID, err)
	}
	cp.PassStartedAt = fromUnix(started)
	cp.UpdatedAt = fromUnix(updated)
	cp.Resumable = resumable != 0
	return &cp, nil
}

// SaveCheckpoint upserts the dealership's checkpoint.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	if cp.DealershipID == "" {
		return fmt.Errorf("save checkpoint: dealership is required")
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = s.now()
	}
	resumable := 0
	if cp.Resumable {
		resumable = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO checkpoints (dealership_id, page, idx, pass_started_at,
			updated_at, resumable, baseline, observed, inserted, updated, unchanged, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dealership_id) DO UPDATE SET
			page = excluded.page,
			idx = excluded.idx,
			pass_started_at = excluded.pass_started_at,
			updated_at = excluded.updated_at,
			resumable = excluded.resumable,
			baseline = excluded.baseline,
			observed = excluded.observed,
			inserted = excluded.inserted,
			updated = excluded.updated,
			unchanged = excluded.unchanged,
			failed = excluded.failed`,
		cp.DealershipID, cp.Cursor.Page, cp.Cursor.Index, toUnix(cp.PassStartedAt), toUnix(cp.UpdatedAt),
		resumable, cp.Baseline, cp.Observed, cp.Inserted, cp.Updated, cp.Unchanged, cp.Failed,
	)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.DealershipID, err)
	}
	return nil
}

// ClearCheckpoint marks the dealership's pass complete.
func (s *SQLiteStore) ClearCheckpoint(ctx context.Context, dealershipID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE dealership_id = ?`, dealershipID); err != nil {
		return fmt.Errorf("clear checkpoint %s: %w", dealershipID, err)
	}
	return nil
}
