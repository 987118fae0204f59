package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// RecordView stores a shopper view of a vehicle.
func (s *SQLiteStore) RecordView(ctx context.Context, vehicleID, source string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO vehicle_views (id, vehicle_id, source, viewed_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), vehicleID, source, toUnix(s.now()))
	if err != nil {
		return fmt.Errorf("record view %s: %w", vehicleID, err)
	}
	return nil
}

// OpenConversation starts a chat thread about a vehicle and returns its id.
func (s *SQLiteStore) OpenConversation(ctx context.Context, vehicleID, customer string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `INSERT INTO conversations (id, vehicle_id, customer, opened_at) VALUES (?, ?, ?, ?)`,
		id, vehicleID, customer, toUnix(s.now()))
	if err != nil {
		return "", fmt.Errorf("open conversation %s: %w", vehicleID, err)
	}
	return id, nil
}

// Dependents counts the view and conversation rows referencing a vehicle.
func (s *SQLiteStore) Dependents(ctx context.Context, vehicleID string) (views, conversations int, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT
			(SELECT COUNT(*) FROM vehicle_views WHERE vehicle_id = ?),
			(SELECT COUNT(*) FROM conversations WHERE vehicle_id = ?)`,
		vehicleID, vehicleID).Scan(&views, &conversations)
	return views, conversations, err
}
