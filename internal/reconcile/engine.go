// Package reconcile runs crash-resumable inventory passes: every listing of
// a dealership's primary source is matched, merged and persisted, progress
// is checkpointed after each one, and a completed pass ends with guarded
// cleanup.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/raysh454/lotsync/internal/cleanup"
	"github.com/raysh454/lotsync/internal/images"
	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/matcher"
	"github.com/raysh454/lotsync/internal/merge"
	"github.com/raysh454/lotsync/internal/model"
	"github.com/raysh454/lotsync/internal/source"
	"github.com/raysh454/lotsync/internal/store"
	"github.com/raysh454/lotsync/internal/utils"
)

var (
	// ErrAdapterFailed is a retryable pass failure; the checkpoint is kept.
	ErrAdapterFailed = errors.New("source adapter failed")
	// ErrCheckpoint means progress could not be made durable.
	ErrCheckpoint = errors.New("checkpoint store failed")
	// ErrPassInProgress rejects a second concurrent pass for a dealership.
	ErrPassInProgress = errors.New("pass already running for dealership")
)

// Deps are the engine's collaborators. Runs, Cleaner and Uploader are
// optional.
type Deps struct {
	Vehicles    store.VehicleStore
	Checkpoints store.CheckpointStore
	Runs        store.RunStore
	Adapter     source.Adapter
	Matcher     *matcher.Matcher
	Merger      *merge.Engine
	Cleaner     *cleanup.Cleaner
	Uploader    images.Uploader
	Logger      logging.Logger
	Now         func() time.Time
}

// Options tune a pass.
type Options struct {
	// Timeout bounds one invocation. Hitting it ends the invocation without
	// cleanup and the next run starts a fresh pass.
	Timeout time.Duration
}

// Outcome is what happened to one listing.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
)

// Progress is reported after each listing.
type Progress struct {
	DealershipID string       `json:"dealership_id"`
	Cursor       model.Cursor `json:"cursor"`
	Outcome      Outcome      `json:"outcome"`
	Ref          string       `json:"ref,omitempty"`
	Inserted     int          `json:"inserted"`
	Updated      int          `json:"updated"`
	Unchanged    int          `json:"unchanged"`
	Failed       int          `json:"failed"`
}

// ProgressFunc receives progress. It must not block.
type ProgressFunc func(Progress)

// Engine reconciles one primary source into the canonical store.
type Engine struct {
	deps   Deps
	opts   Options
	logger logging.Logger

	mu      sync.Mutex
	running map[string]bool
}

// NewEngine validates deps.
func NewEngine(deps Deps, opts Options) (*Engine, error) {
	switch {
	case deps.Vehicles == nil:
		return nil, errors.New("reconcile: vehicle store is required")
	case deps.Checkpoints == nil:
		return nil, errors.New("reconcile: checkpoint store is required")
	case deps.Adapter == nil:
		return nil, errors.New("reconcile: source adapter is required")
	case deps.Logger == nil:
		return nil, errors.New("reconcile: logger is required")
	}
	if deps.Matcher == nil {
		deps.Matcher = matcher.New(matcher.DefaultOptions())
	}
	if deps.Merger == nil {
		deps.Merger = merge.New(merge.Options{IsPlaceholderVIN: deps.Matcher.IsPlaceholderVIN})
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{
		deps:    deps,
		opts:    opts,
		logger:  deps.Logger.With(logging.Field{Key: "component", Value: "reconcile"}),
		running: map[string]bool{},
	}, nil
}

// Run executes or resumes the dealership's pass.
func (e *Engine) Run(ctx context.Context, dealershipID string) (*model.Summary, error) {
	return e.RunWithProgress(ctx, dealershipID, nil)
}

// RunWithProgress is Run with a per-listing progress callback.
func (e *Engine) RunWithProgress(ctx context.Context, dealershipID string, progress ProgressFunc) (*model.Summary, error) {
	if dealershipID == "" {
		return nil, errors.New("reconcile: dealership id is required")
	}
	if !e.acquire(dealershipID) {
		return nil, fmt.Errorf("%w: %s", ErrPassInProgress, dealershipID)
	}
	defer e.release(dealershipID)

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	p := &pass{
		e:        e,
		id:       dealershipID,
		progress: progress,
		log:      e.logger.With(logging.Field{Key: "dealership_id", Value: dealershipID}),
		sum: &model.Summary{
			DealershipID: dealershipID,
			State:        model.StateIdle,
			StartedAt:    e.deps.Now().UTC(),
		},
	}
	err := p.run(ctx)
	p.finish(ctx, err)
	return p.sum, err
}

func (e *Engine) acquire(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[id] {
		return false
	}
	e.running[id] = true
	return true
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, id)
}

// pass is the state of one invocation.
type pass struct {
	e        *Engine
	id       string
	log      logging.Logger
	progress ProgressFunc

	sum *model.Summary
	cp  model.Checkpoint
	set *matcher.ExistingSet
}

func (p *pass) run(ctx context.Context) error {
	d := p.e.deps

	if err := p.begin(ctx); err != nil {
		return err
	}

	recs, err := d.Vehicles.ListByDealership(ctx, p.id)
	if err != nil {
		p.sum.State = model.StateFailed
		return fmt.Errorf("load inventory: %w", err)
	}
	if p.set, err = matcher.NewExistingSet(p.id, recs); err != nil {
		p.sum.State = model.StateFailed
		return err
	}

	p.sum.State = model.StateScraping
	it, err := d.Adapter.Open(ctx, p.id, p.cp.Cursor)
	if err != nil {
		return p.stop(ctx, err)
	}
	defer it.Close()

	for {
		if err := ctx.Err(); err != nil {
			return p.stop(ctx, err)
		}
		l, ok, err := it.Next(ctx)
		if err != nil {
			return p.stop(ctx, err)
		}
		if !ok {
			break
		}
		if err := p.handle(ctx, l); err != nil {
			return err
		}
	}

	return p.complete(ctx)
}

// begin resumes a resumable checkpoint or starts a fresh pass.
func (p *pass) begin(ctx context.Context) error {
	d := p.e.deps

	cp, err := d.Checkpoints.LoadCheckpoint(ctx, p.id)
	if err != nil {
		p.sum.State = model.StateFailed
		return fmt.Errorf("%w: load: %v", ErrCheckpoint, err)
	}
	if cp != nil && cp.Resumable {
		p.cp = *cp
		p.sum.State = model.StateResuming
		p.sum.Resumed = true
		p.log.Info("resuming pass",
			logging.Field{Key: "cursor", Value: cp.Cursor.String()},
			logging.Field{Key: "pass_started_at", Value: cp.PassStartedAt})
		return nil
	}

	baseline, err := d.Vehicles.Count(ctx, p.id)
	if err != nil {
		p.sum.State = model.StateFailed
		return fmt.Errorf("count inventory: %w", err)
	}
	now := d.Now().UTC()
	p.cp = model.Checkpoint{
		DealershipID:  p.id,
		PassStartedAt: now,
		UpdatedAt:     now,
		Resumable:     true,
		Baseline:      baseline,
	}
	if cp != nil {
		p.log.Info("previous pass timed out; starting fresh", logging.Field{Key: "cursor", Value: cp.Cursor.String()})
	}
	if err := d.Checkpoints.SaveCheckpoint(ctx, p.cp); err != nil {
		p.sum.State = model.StateFailed
		return fmt.Errorf("%w: save: %v", ErrCheckpoint, err)
	}
	p.log.Info("pass started", logging.Field{Key: "baseline", Value: baseline})
	return nil
}

// handle processes one listing and commits the cursor past it.
func (p *pass) handle(ctx context.Context, l source.Listing) error {
	v := l.Vehicle
	v.DealershipID = p.id
	fields := []logging.Field{
		{Key: "cursor", Value: l.Cursor.String()},
		{Key: "vin", Value: v.VIN},
		{Key: "stock_number", Value: v.StockNumber},
		{Key: "url", Value: v.ListingURL},
	}

	var (
		outcome Outcome
		rec     model.VehicleRecord
	)
	if l.Err != nil {
		outcome = OutcomeFailed
		p.log.Warn("listing extraction failed", append(fields, logging.Field{Key: "error", Value: l.Err})...)
	} else {
		var err error
		outcome, rec, err = p.persist(ctx, v, fields)
		if err != nil {
			if ctx.Err() != nil {
				return p.stop(ctx, ctx.Err())
			}
			outcome = OutcomeFailed
			p.log.Warn("listing not persisted", append(fields, logging.Field{Key: "error", Value: err})...)
		}
	}

	switch outcome {
	case OutcomeInserted:
		p.cp.Inserted++
	case OutcomeUpdated:
		p.cp.Updated++
	case OutcomeUnchanged:
		p.cp.Unchanged++
	case OutcomeFailed:
		p.cp.Failed++
	}
	if outcome != OutcomeFailed {
		p.cp.Observed++
	}
	p.cp.Cursor = l.Cursor
	p.cp.UpdatedAt = p.e.deps.Now().UTC()
	if err := p.e.deps.Checkpoints.SaveCheckpoint(ctx, p.cp); err != nil {
		if ctx.Err() != nil {
			return p.stop(ctx, ctx.Err())
		}
		p.sum.State = model.StateFailed
		return fmt.Errorf("%w: save at %s: %v", ErrCheckpoint, l.Cursor, err)
	}

	if outcome != OutcomeFailed {
		p.uploadImages(ctx, rec, fields)
	}
	if p.progress != nil {
		p.progress(Progress{
			DealershipID: p.id,
			Cursor:       l.Cursor,
			Outcome:      outcome,
			Ref:          v.Ref(),
			Inserted:     p.cp.Inserted,
			Updated:      p.cp.Updated,
			Unchanged:    p.cp.Unchanged,
			Failed:       p.cp.Failed,
		})
	}
	return nil
}

// persist matches, merges and writes one listing.
func (p *pass) persist(ctx context.Context, v model.ScrapedVehicle, fields []logging.Field) (Outcome, model.VehicleRecord, error) {
	d := p.e.deps

	res, err := d.Matcher.Match(v, p.set)
	if err != nil {
		return OutcomeFailed, model.VehicleRecord{}, fmt.Errorf("match: %w", err)
	}

	now := d.Now()
	if !res.Matched() {
		rec := d.Merger.Merge(nil, v, now)
		if err := d.Vehicles.Insert(ctx, rec); err != nil {
			return OutcomeFailed, rec, err
		}
		if err := p.set.Put(rec); err != nil {
			return OutcomeFailed, rec, err
		}
		p.log.Debug("vehicle inserted", append(fields,
			logging.Field{Key: "vehicle_id", Value: rec.ID},
			logging.Field{Key: "rationale", Value: res.Rationale})...)
		return OutcomeInserted, rec, nil
	}

	existing, ok := p.set.Get(res.MatchedID)
	if !ok {
		return OutcomeFailed, model.VehicleRecord{}, fmt.Errorf("matched record %s missing from set", res.MatchedID)
	}
	rec := d.Merger.Merge(&existing, v, now)
	changes := merge.Diff(existing, rec)
	if err := d.Vehicles.Update(ctx, rec); err != nil {
		return OutcomeFailed, rec, err
	}
	if err := p.set.Put(rec); err != nil {
		return OutcomeFailed, rec, err
	}

	matchFields := append(fields,
		logging.Field{Key: "vehicle_id", Value: rec.ID},
		logging.Field{Key: "match_type", Value: string(res.Type)},
		logging.Field{Key: "confidence", Value: string(res.Confidence)},
		logging.Field{Key: "anchor", Value: res.Anchor})
	if len(changes) == 0 {
		p.log.Debug("vehicle unchanged", matchFields...)
		return OutcomeUnchanged, rec, nil
	}
	p.log.Info("vehicle updated", append(matchFields, logging.Field{Key: "changes", Value: changes})...)
	return OutcomeUpdated, rec, nil
}

// uploadImages mirrors a record's gallery: dealer images followed by
// marketplace extras. Failures never affect the pass.
func (p *pass) uploadImages(ctx context.Context, rec model.VehicleRecord, fields []logging.Field) {
	d := p.e.deps
	gallery := utils.UnionImages(rec.Images, rec.CrossSourceImages)
	if d.Uploader == nil || len(gallery) == 0 || len(rec.LocalImages) == len(gallery) {
		return
	}
	hosted, err := d.Uploader.Upload(ctx, rec.ID, gallery)
	if err != nil {
		p.log.Warn("image upload failed", append(fields,
			logging.Field{Key: "vehicle_id", Value: rec.ID},
			logging.Field{Key: "error", Value: err})...)
	}
	if len(hosted) == 0 {
		return
	}
	if err := d.Vehicles.SetLocalImages(ctx, rec.ID, hosted); err != nil {
		p.log.Warn("local images not saved", append(fields, logging.Field{Key: "error", Value: err})...)
		return
	}
	rec.LocalImages = hosted
	_ = p.set.Put(rec)
}

// complete ends an exhausted pass: the checkpoint is cleared and cleanup
// runs.
func (p *pass) complete(ctx context.Context) error {
	d := p.e.deps
	if err := d.Checkpoints.ClearCheckpoint(ctx, p.id); err != nil {
		p.sum.State = model.StateFailed
		return fmt.Errorf("%w: clear: %v", ErrCheckpoint, err)
	}

	if d.Cleaner != nil {
		rep, err := d.Cleaner.Run(ctx, p.id, p.cp.PassStartedAt, p.cp.Baseline, p.cp.Observed)
		if err != nil {
			p.log.Error("cleanup failed", logging.Field{Key: "error", Value: err})
		}
		p.sum.Cleanup = &rep
	}
	p.sum.State = model.StateCompleted
	return nil
}

// stop classifies an adapter or context error.
func (p *pass) stop(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, source.ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
		p.cp.Resumable = false
		p.cp.UpdatedAt = p.e.deps.Now().UTC()
		if serr := p.e.deps.Checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), p.cp); serr != nil {
			p.sum.State = model.StateFailed
			return fmt.Errorf("%w: save after timeout: %v", ErrCheckpoint, serr)
		}
		p.sum.State = model.StateInterrupted
		p.sum.Interrupted = true
		p.log.Warn("pass timed out; cleanup skipped", logging.Field{Key: "cursor", Value: p.cp.Cursor.String()})
		return nil

	case errors.Is(err, context.Canceled):
		p.sum.State = model.StateCanceled
		p.log.Info("pass canceled", logging.Field{Key: "cursor", Value: p.cp.Cursor.String()})
		return err

	default:
		p.sum.State = model.StateInterrupted
		p.sum.Interrupted = true
		p.log.Error("source adapter failed; checkpoint kept",
			logging.Field{Key: "cursor", Value: p.cp.Cursor.String()},
			logging.Field{Key: "error", Value: err})
		return fmt.Errorf("%w: %v", ErrAdapterFailed, err)
	}
}

// finish fills the summary and records the run.
func (p *pass) finish(ctx context.Context, runErr error) {
	d := p.e.deps
	ctx = context.WithoutCancel(ctx)

	p.sum.Inserted = p.cp.Inserted
	p.sum.Updated = p.cp.Updated
	p.sum.Unchanged = p.cp.Unchanged
	p.sum.Failed = p.cp.Failed
	p.sum.Total = p.cp.Inserted + p.cp.Updated + p.cp.Unchanged + p.cp.Failed
	p.sum.PassStartedAt = p.cp.PassStartedAt
	if n, err := d.Vehicles.Count(ctx, p.id); err == nil {
		p.sum.Inventory = n
	}
	if runErr != nil {
		p.sum.Error = runErr.Error()
	}
	p.sum.FinishedAt = d.Now().UTC()

	fields := []logging.Field{
		{Key: "state", Value: string(p.sum.State)},
		{Key: "inserted", Value: p.sum.Inserted},
		{Key: "updated", Value: p.sum.Updated},
		{Key: "unchanged", Value: p.sum.Unchanged},
		{Key: "failed", Value: p.sum.Failed},
		{Key: "total", Value: p.sum.Total},
		{Key: "resumed", Value: p.sum.Resumed},
	}
	if p.sum.Cleanup != nil {
		fields = append(fields, logging.Field{Key: "cleanup", Value: string(p.sum.Cleanup.Status)})
	}
	p.log.Info("pass finished", fields...)

	if d.Runs == nil || p.sum.State == model.StateIdle {
		return
	}
	raw, _ := json.Marshal(p.sum)
	run := model.RunRecord{
		DealershipID: p.id,
		Kind:         "reconcile",
		State:        p.sum.State,
		Summary:      string(raw),
		StartedAt:    p.sum.StartedAt,
		FinishedAt:   p.sum.FinishedAt,
	}
	if err := d.Runs.SaveRun(ctx, run); err != nil {
		p.log.Warn("run history not saved", logging.Field{Key: "error", Value: err})
	}
}
