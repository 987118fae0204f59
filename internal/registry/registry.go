// Package registry keeps the configured dealerships and when each was last
// reconciled.
package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/model"
)

//go:embed schema.sql
var schemaFS embed.FS

var ErrDealershipNotFound = errors.New("dealership not found")

// Registry manages dealership metadata in SQLite. It usually shares the
// inventory store's database.
type Registry struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

// NewRegistry returns a Registry and runs migrations from schema.sql.
func NewRegistry(db *sql.DB, logger logging.Logger) (*Registry, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &Registry{
		db:     db,
		logger: logger.With(logging.Field{Key: "component", Value: "registry"}),
		now:    time.Now,
	}, nil
}

// NormalizeID makes a dealership id safe and simple: lower case, spaces to
// dashes, only [a-z0-9-_.] kept.
func NormalizeID(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, " ", "-")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UpsertDealership creates the dealership or refreshes its name and URL.
// The id is derived from name when empty.
func (r *Registry) UpsertDealership(ctx context.Context, id, name, websiteURL string) (*model.Dealership, error) {
	if id == "" {
		id = name
	}
	id = NormalizeID(id)
	if id == "" {
		return nil, fmt.Errorf("dealership id is required")
	}
	if name == "" {
		name = id
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO dealerships (id, name, website_url, created_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET name = excluded.name, website_url = excluded.website_url`,
		id, name, websiteURL, r.now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert dealership: %w", err)
	}
	return r.GetDealership(ctx, id)
}

// GetDealership returns a dealership by id.
func (r *Registry) GetDealership(ctx context.Context, id string) (*model.Dealership, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, website_url, created_at, last_run_at
         FROM dealerships
         WHERE id = ?
         LIMIT 1`,
		NormalizeID(id),
	)
	d, err := scanDealership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDealershipNotFound
	}
	return d, err
}

// ListDealerships returns all dealerships ordered by id.
func (r *Registry) ListDealerships(ctx context.Context) ([]model.Dealership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, website_url, created_at, last_run_at
         FROM dealerships
         ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Dealership
	for rows.Next() {
		d, err := scanDealership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// MarkRun records when a dealership's pass finished.
func (r *Registry) MarkRun(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE dealerships SET last_run_at = ? WHERE id = ?`, at.Unix(), NormalizeID(id))
	if err != nil {
		return fmt.Errorf("mark run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDealershipNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDealership(row scanner) (*model.Dealership, error) {
	var (
		d       model.Dealership
		created int64
		lastRun sql.NullInt64
	)
	if err := row.Scan(&d.ID, &d.Name, &d.WebsiteURL, &created, &lastRun); err != nil {
		return nil, err
	}
	d.CreatedAt = time.Unix(created, 0).UTC()
	if lastRun.Valid {
		t := time.Unix(lastRun.Int64, 0).UTC()
		d.LastRunAt = &t
	}
	return &d, nil
}
