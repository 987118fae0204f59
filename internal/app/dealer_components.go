package app

import (
	"fmt"

	"github.com/raysh454/lotsync/internal/cleanup"
	"github.com/raysh454/lotsync/internal/enrich"
	"github.com/raysh454/lotsync/internal/images"
	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/matcher"
	"github.com/raysh454/lotsync/internal/merge"
	"github.com/raysh454/lotsync/internal/reconcile"
	"github.com/raysh454/lotsync/internal/registry"
	"github.com/raysh454/lotsync/internal/source"
	"github.com/raysh454/lotsync/internal/store"
	"github.com/raysh454/lotsync/internal/webclient"
)

// Services are shared by every dealership.
type Services struct {
	Store    *store.SQLiteStore
	Registry *registry.Registry
	Client   webclient.WebClient
	// Uploader is nil when image hosting is disabled.
	Uploader images.Uploader
}

// DealerComponents are the per-dealership pipeline pieces.
type DealerComponents struct {
	Dealership DealershipConfig
	Engine     *reconcile.Engine
	Enricher   *enrich.Enricher
	Secondary  []source.Adapter
}

// NewDealerComponents builds the engine and enricher of one dealership.
func NewDealerComponents(cfg *Config, d DealershipConfig, svc Services, logger logging.Logger) (*DealerComponents, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger = logger.With(logging.Field{Key: "dealership_id", Value: d.ID})

	primary, err := source.New(d.Primary, svc.Client, logger)
	if err != nil {
		return nil, fmt.Errorf("dealership %s primary source: %w", d.ID, err)
	}

	m := matcher.New(matcher.Options{
		PlaceholderPrefixes: cfg.Matcher.PlaceholderPrefixes,
		MinVINLength:        cfg.Matcher.MinVINLength,
	})
	deps := reconcile.Deps{
		Vehicles:    svc.Store,
		Checkpoints: svc.Store,
		Runs:        svc.Store,
		Adapter:     primary,
		Matcher:     m,
		Merger: merge.New(merge.Options{
			DefaultInteriorColor: cfg.Merge.DefaultInteriorColor,
			IsPlaceholderVIN:     m.IsPlaceholderVIN,
		}),
		Cleaner:  cleanup.New(svc.Store, cfg.Cleanup, logger),
		Uploader: svc.Uploader,
		Logger:   logger,
	}
	eng, err := reconcile.NewEngine(deps, reconcile.Options{Timeout: cfg.PassTimeout})
	if err != nil {
		return nil, err
	}

	comps := &DealerComponents{
		Dealership: d,
		Engine:     eng,
		Enricher:   enrich.New(svc.Store, matcher.NewScorer(cfg.CrossSource), logger),
	}
	for i, spec := range d.Secondary {
		a, err := source.New(spec, svc.Client, logger)
		if err != nil {
			return nil, fmt.Errorf("dealership %s secondary source %d: %w", d.ID, i+1, err)
		}
		comps.Secondary = append(comps.Secondary, a)
	}
	return comps, nil
}
