// Package enrich matches secondary marketplace listings to canonical records
// and copies over what only the marketplace knows: its deal rating, its
// asking price and extra photos.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/matcher"
	"github.com/raysh454/lotsync/internal/model"
	"github.com/raysh454/lotsync/internal/source"
	"github.com/raysh454/lotsync/internal/utils"
)

var (
	ErrSourceFailed = errors.New("secondary source failed")
	ErrNotSecondary = errors.New("source is not a secondary source")
)

// Store is the part of the vehicle store enrichment needs.
type Store interface {
	ListByDealership(ctx context.Context, dealershipID string) ([]model.VehicleRecord, error)
	UpdateEnrichment(ctx context.Context, rec model.VehicleRecord) error
}

// Enricher runs cross-source passes.
type Enricher struct {
	store  Store
	scorer *matcher.Scorer
	logger logging.Logger
	now    func() time.Time
}

func New(s Store, scorer *matcher.Scorer, logger logging.Logger) *Enricher {
	return &Enricher{
		store:  s,
		scorer: scorer,
		logger: logger.With(logging.Field{Key: "component", Value: "enrich"}),
		now:    time.Now,
	}
}

// Run drains the secondary adapter and enriches each of the dealership's
// records with its best unused candidate. Each candidate enriches at most
// one record.
func (e *Enricher) Run(ctx context.Context, dealershipID string, a source.Adapter) (*model.EnrichSummary, error) {
	sum := &model.EnrichSummary{DealershipID: dealershipID, Source: a.Source(), StartedAt: e.now().UTC()}
	log := e.logger.With(
		logging.Field{Key: "dealership_id", Value: dealershipID},
		logging.Field{Key: "source", Value: string(a.Source())})

	if !a.Source().Secondary() {
		return nil, fmt.Errorf("%w: %s", ErrNotSecondary, a.Source())
	}

	candidates, bad, err := source.Drain(ctx, a, dealershipID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceFailed, err)
	}
	for _, l := range bad {
		log.Warn("secondary listing skipped",
			logging.Field{Key: "cursor", Value: l.Cursor.String()},
			logging.Field{Key: "error", Value: l.Err})
	}
	sum.Candidates = len(candidates)
	sum.Failed = len(bad)

	records, err := e.store.ListByDealership(ctx, dealershipID)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	used := make(map[int]bool, len(candidates))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		idx, res := e.scorer.Best(rec, candidates, used)
		if idx < 0 {
			sum.Unmatched++
			log.Debug("no cross-source match",
				logging.Field{Key: "vehicle_id", Value: rec.ID},
				logging.Field{Key: "ref", Value: rec.Ref()},
				logging.Field{Key: "rationale", Value: res.Rationale})
			continue
		}
		used[idx] = true

		enriched := Apply(rec, candidates[idx])
		if err := e.store.UpdateEnrichment(ctx, enriched); err != nil {
			sum.Failed++
			log.Warn("enrichment not saved",
				logging.Field{Key: "vehicle_id", Value: rec.ID},
				logging.Field{Key: "error", Value: err})
			continue
		}
		sum.Matched++
		if res.Confidence == model.ConfidenceHigh {
			sum.High++
		} else {
			sum.Medium++
		}
		log.Debug("cross-source match",
			logging.Field{Key: "vehicle_id", Value: rec.ID},
			logging.Field{Key: "ref", Value: rec.Ref()},
			logging.Field{Key: "score", Value: res.Score},
			logging.Field{Key: "confidence", Value: string(res.Confidence)},
			logging.Field{Key: "listing_url", Value: candidates[idx].ListingURL})
	}

	sum.FinishedAt = e.now().UTC()
	log.Info("enrichment finished",
		logging.Field{Key: "candidates", Value: sum.Candidates},
		logging.Field{Key: "matched", Value: sum.Matched},
		logging.Field{Key: "unmatched", Value: sum.Unmatched},
		logging.Field{Key: "failed", Value: sum.Failed})
	return sum, nil
}

// Apply copies the enrichment fields of c onto rec. Primary attributes,
// images included, are left alone; marketplace photos accumulate in
// CrossSourceImages.
func Apply(rec model.VehicleRecord, c model.ScrapedVehicle) model.VehicleRecord {
	out := rec.Clone()
	if c.DealRating != "" {
		out.DealRating = c.DealRating
	}
	if c.Price != nil && *c.Price > 0 {
		out.CrossSourcePrice = model.Ptr(*c.Price)
	}
	if c.ListingURL != "" {
		out.CrossSourceURL = c.ListingURL
	}
	out.CrossSourceImages = ExtraImages(out.Images, slices.Concat(out.CrossSourceImages, c.Images))
	return out
}

// ExtraImages returns the images of extra not already in primary, compared
// without query strings.
func ExtraImages(primary, extra []string) []string {
	seen := make(map[string]bool, len(primary)+len(extra))
	for _, u := range primary {
		seen[utils.ImageKey(u)] = true
	}
	var out []string
	for _, u := range extra {
		k := utils.ImageKey(u)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, u)
	}
	return out
}
