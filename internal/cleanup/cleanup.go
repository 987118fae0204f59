// Package cleanup removes listings that vanished from a dealership's site,
// guarded against partial scrapes.
package cleanup

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/model"
	"github.com/raysh454/lotsync/internal/store"
)

// Store is the part of the vehicle store cleanup needs.
type Store interface {
	ListStale(ctx context.Context, dealershipID string, before time.Time) ([]model.VehicleRecord, error)
	DeleteBatch(ctx context.Context, ids []string) (store.DeleteResult, error)
}

// Options are the two guards. The coverage gate applies only above
// MinExisting records. The delete cap is floor(MaxDeleteFraction*existing)
// but never below one.
type Options struct {
	MinExisting       int     `yaml:"min_existing" json:"min_existing"`
	MinCoverage       float64 `yaml:"min_coverage" json:"min_coverage"`
	MaxDeleteFraction float64 `yaml:"max_delete_fraction" json:"max_delete_fraction"`
}

func DefaultOptions() Options {
	return Options{
		MinExisting:       10,
		MinCoverage:       0.30,
		MaxDeleteFraction: 0.5,
	}
}

// Cleaner deletes stale records after a completed pass.
type Cleaner struct {
	store  Store
	opts   Options
	logger logging.Logger
}

func New(s Store, opts Options, logger logging.Logger) *Cleaner {
	return &Cleaner{
		store:  s,
		opts:   opts,
		logger: logger.With(logging.Field{Key: "component", Value: "cleanup"}),
	}
}

// Run deletes records not scraped since passStartedAt. existing is the
// record count when the pass started and observed the number of listings
// the pass persisted.
func (c *Cleaner) Run(ctx context.Context, dealershipID string, passStartedAt time.Time, existing, observed int) (model.CleanupReport, error) {
	rep := model.CleanupReport{Existing: existing, Observed: observed}
	log := c.logger.With(
		logging.Field{Key: "dealership_id", Value: dealershipID},
		logging.Field{Key: "existing", Value: existing},
		logging.Field{Key: "observed", Value: observed})

	if existing > c.opts.MinExisting && float64(observed) < c.opts.MinCoverage*float64(existing) {
		rep.Status = model.CleanupSkippedCoverage
		rep.Reason = fmt.Sprintf("observed %d of %d existing, below %.0f%% coverage",
			observed, existing, c.opts.MinCoverage*100)
		log.Warn("cleanup skipped: scrape looks partial", logging.Field{Key: "reason", Value: rep.Reason})
		return rep, nil
	}

	stale, err := c.store.ListStale(ctx, dealershipID, passStartedAt)
	if err != nil {
		rep.Status = model.CleanupNotRun
		return rep, fmt.Errorf("list stale: %w", err)
	}
	rep.Stale = len(stale)
	if len(stale) == 0 {
		rep.Status = model.CleanupNoop
		log.Debug("cleanup: nothing stale")
		return rep, nil
	}

	limit := len(stale)
	if c.opts.MaxDeleteFraction < 1 {
		// At least one deletion per pass so a tiny lot can still drain.
		limit = min(limit, max(1, int(math.Floor(c.opts.MaxDeleteFraction*float64(existing)))))
	}
	ids := make([]string, 0, limit)
	for _, r := range stale[:limit] {
		ids = append(ids, r.ID)
	}
	rep.Deferred = len(stale) - limit

	res, err := c.store.DeleteBatch(ctx, ids)
	rep.Deleted = len(res.Deleted)
	rep.Failed = len(res.Failed)
	for id, ferr := range res.Failed {
		log.Warn("stale vehicle not deleted",
			logging.Field{Key: "vehicle_id", Value: id},
			logging.Field{Key: "error", Value: ferr})
	}

	rep.Status = model.CleanupRan
	if rep.Deferred > 0 {
		rep.Status = model.CleanupCapped
		rep.Reason = fmt.Sprintf("%d stale exceed the %.0f%% delete cap; left for the next pass",
			rep.Deferred, c.opts.MaxDeleteFraction*100)
		log.Warn("cleanup capped", logging.Field{Key: "deferred", Value: rep.Deferred})
	}
	if err != nil {
		return rep, fmt.Errorf("delete stale: %w", err)
	}

	log.Info("cleanup finished",
		logging.Field{Key: "status", Value: string(rep.Status)},
		logging.Field{Key: "stale", Value: rep.Stale},
		logging.Field{Key: "deleted", Value: rep.Deleted},
		logging.Field{Key: "failed", Value: rep.Failed})
	return rep, nil
}
