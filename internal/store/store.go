// Package store persists the canonical inventory, pass checkpoints and run
// history in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/model"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

var (
	ErrNotFound    = errors.New("vehicle not found")
	ErrDuplicateID = errors.New("vehicle id already exists")
)

// VehicleStore is the persistence surface the reconciliation engine uses.
// The engine matches against an in-memory snapshot of ListByDealership, so
// point lookups live in VehicleLookup.
type VehicleStore interface {
	ListByDealership(ctx context.Context, dealershipID string) ([]model.VehicleRecord, error)
	Count(ctx context.Context, dealershipID string) (int, error)
	Insert(ctx context.Context, rec model.VehicleRecord) error
	Update(ctx context.Context, rec model.VehicleRecord) error
	SetLocalImages(ctx context.Context, vehicleID string, urls []string) error
	UpdateEnrichment(ctx context.Context, rec model.VehicleRecord) error
	ListStale(ctx context.Context, dealershipID string, before time.Time) ([]model.VehicleRecord, error)
	DeleteBatch(ctx context.Context, ids []string) (DeleteResult, error)
}

// VehicleLookup serves ad-hoc queries against one dealership's inventory,
// such as the API's vehicle filters.
type VehicleLookup interface {
	FindByURL(ctx context.Context, dealershipID, rawURL string) (*model.VehicleRecord, error)
	FindByVIN(ctx context.Context, dealershipID, vin string) (*model.VehicleRecord, error)
	FindByYearMakeModel(ctx context.Context, dealershipID string, year int, makeName, modelName string) ([]model.VehicleRecord, error)
}

// CheckpointStore keeps the durable cursor of each dealership's pass.
// LoadCheckpoint returns nil, nil when no checkpoint exists.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context, dealershipID string) (*model.Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error
	ClearCheckpoint(ctx context.Context, dealershipID string) error
}

// RunStore records finished passes.
type RunStore interface {
	SaveRun(ctx context.Context, run model.RunRecord) error
	ListRuns(ctx context.Context, dealershipID string, limit int) ([]model.RunRecord, error)
}

// DeleteResult reports a batch delete. Failures are per vehicle.
type DeleteResult struct {
	Deleted []string
	Failed  map[string]error
}

// SQLiteStore implements VehicleStore, VehicleLookup, CheckpointStore and
// RunStore.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(path string, logger logging.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	// foreign_keys is per connection; the DSN pragma applies it to every one.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and applies the schema.
func New(db *sql.DB, logger logging.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := applySchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{
		db:     db,
		logger: logger.With(logging.Field{Key: "component", Value: "store"}),
		now:    time.Now,
	}, nil
}

// DB exposes the underlying handle so the registry can share it.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// applySchema sets pragmas and creates tables.
func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

func toUnix(t time.Time) int64 { return t.UTC().UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }

// rollback is deferred after Begin; it is a no-op once Commit succeeded.
func (s *SQLiteStore) rollback(tx *sql.Tx) {
	if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
		s.logger.Warn("store: tx rollback failed", logging.Field{Key: "error", Value: rerr})
	}
}
