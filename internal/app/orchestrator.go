package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/model"
	"github.com/raysh454/lotsync/internal/reconcile"
)

var (
	ErrUnknownDealership  = errors.New("dealership not configured")
	ErrOrchestratorClosed = errors.New("orchestrator is closed")
)

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress
	Processed int                 `json:"processed,omitempty"`
	Progress  *reconcile.Progress `json:"progress,omitempty"`

	// For results
	Summary *model.Summary `json:"summary,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

const (
	JobTypeReconcile = "reconcile"
	JobTypeEnrich    = "enrich"
)

type Job struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"` // "reconcile" | "enrich"
	DealershipID string        `json:"dealership_id"`
	Status       JobStatus     `json:"status"`
	Error        string        `json:"error,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Events       chan JobEvent `json:"-"`

	// Optional results:
	Summary    *model.Summary         `json:"summary,omitempty"`
	Enrichment []*model.EnrichSummary `json:"enrichment,omitempty"`
}

// Orchestrator runs reconcile and enrich jobs for the configured
// dealerships.
type Orchestrator struct {
	cfg    *Config
	svc    Services
	logger logging.Logger

	compMu sync.Mutex
	comps  map[string]*DealerComponents

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
	closed     bool
	wg         sync.WaitGroup
}

// NewOrchestrator ties together config, shared services and logger.
func NewOrchestrator(cfg *Config, svc Services, logger logging.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Orchestrator{
		cfg:    cfg,
		svc:    svc,
		logger: logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
	}
}

func (o *Orchestrator) ensureJobMaps() {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if o.jobs == nil {
		o.jobs = make(map[string]*Job)
	}
	if o.jobCancels == nil {
		o.jobCancels = make(map[string]context.CancelFunc)
	}
}

func (o *Orchestrator) newJob(typ, dealershipID string) *Job {
	return &Job{
		ID:           uuid.New().String(),
		Type:         typ,
		DealershipID: dealershipID,
		Status:       JobPending,
		StartedAt:    time.Now().UTC(),
		Events:       make(chan JobEvent, 64),
	}
}

func (o *Orchestrator) emitJobEvent(jobID string, ev JobEvent) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	job, ok := o.jobs[jobID]
	if !ok || job == nil || job.Events == nil || !job.EndedAt.IsZero() {
		return
	}

	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

func (o *Orchestrator) setJob(job *Job) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if o.jobs == nil {
		o.jobs = make(map[string]*Job)
	}
	o.jobs[job.ID] = job
}

func (o *Orchestrator) updateJob(jobID string, fn func(*Job)) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if j, ok := o.jobs[jobID]; ok {
		fn(j)
	}
}

// progressCallback forwards reconcile progress as job events.
func (o *Orchestrator) progressCallback(jobID string) reconcile.ProgressFunc {
	return func(p reconcile.Progress) {
		o.emitJobEvent(jobID, JobEvent{
			JobID:     jobID,
			Type:      JobEventProgress,
			Processed: p.Inserted + p.Updated + p.Unchanged + p.Failed,
			Progress:  &p,
		})
	}
}

// components returns the cached pipeline of a configured dealership.
func (o *Orchestrator) components(dealershipID string) (*DealerComponents, error) {
	d, ok := o.cfg.Dealership(dealershipID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDealership, dealershipID)
	}

	o.compMu.Lock()
	defer o.compMu.Unlock()
	if o.comps == nil {
		o.comps = make(map[string]*DealerComponents)
	}
	if c, ok := o.comps[d.ID]; ok {
		return c, nil
	}
	c, err := NewDealerComponents(o.cfg, d, o.svc, o.logger)
	if err != nil {
		return nil, err
	}
	o.comps[d.ID] = c
	return c, nil
}

// Reconcile runs one pass for a dealership and waits for it.
func (o *Orchestrator) Reconcile(ctx context.Context, dealershipID string) (*model.Summary, error) {
	return o.reconcile(ctx, dealershipID, nil)
}

func (o *Orchestrator) reconcile(ctx context.Context, dealershipID string, progress reconcile.ProgressFunc) (*model.Summary, error) {
	comps, err := o.components(dealershipID)
	if err != nil {
		return nil, err
	}
	id := comps.Dealership.ID
	sum, err := comps.Engine.RunWithProgress(ctx, id, progress)
	if sum != nil && sum.State == model.StateCompleted && o.svc.Registry != nil {
		if merr := o.svc.Registry.MarkRun(context.WithoutCancel(ctx), id, sum.FinishedAt); merr != nil {
			o.logger.Warn("mark run failed",
				logging.Field{Key: "dealership_id", Value: id},
				logging.Field{Key: "error", Value: merr.Error()})
		}
	}
	return sum, err
}

// Enrich runs every secondary source of a dealership in order. A failing
// source does not stop the others.
func (o *Orchestrator) Enrich(ctx context.Context, dealershipID string) ([]*model.EnrichSummary, error) {
	comps, err := o.components(dealershipID)
	if err != nil {
		return nil, err
	}
	id := comps.Dealership.ID

	var (
		out  []*model.EnrichSummary
		errs []error
	)
	for _, a := range comps.Secondary {
		sum, err := comps.Enricher.Run(ctx, id, a)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", a.Source(), err))
			continue
		}
		out = append(out, sum)
		o.saveEnrichRun(ctx, sum)
	}
	return out, errors.Join(errs...)
}

func (o *Orchestrator) saveEnrichRun(ctx context.Context, sum *model.EnrichSummary) {
	if o.svc.Store == nil {
		return
	}
	raw, _ := json.Marshal(sum)
	err := o.svc.Store.SaveRun(context.WithoutCancel(ctx), model.RunRecord{
		DealershipID: sum.DealershipID,
		Kind:         JobTypeEnrich,
		State:        model.StateCompleted,
		Summary:      string(raw),
		StartedAt:    sum.StartedAt,
		FinishedAt:   sum.FinishedAt,
	})
	if err != nil {
		o.logger.Warn("enrich run not saved", logging.Field{Key: "error", Value: err.Error()})
	}
}

// RunDealership reconciles a dealership and, when the pass completed,
// enriches it from its secondary sources.
func (o *Orchestrator) RunDealership(ctx context.Context, dealershipID string, progress reconcile.ProgressFunc) (*model.Summary, []*model.EnrichSummary, error) {
	sum, err := o.reconcile(ctx, dealershipID, progress)
	if err != nil || sum == nil || sum.State != model.StateCompleted {
		return sum, nil, err
	}
	enr, err := o.Enrich(ctx, dealershipID)
	if err != nil {
		o.logger.Warn("enrichment failed",
			logging.Field{Key: "dealership_id", Value: sum.DealershipID},
			logging.Field{Key: "error", Value: err.Error()})
	}
	return sum, enr, nil
}

// RunAll runs every given dealership, or every configured one when ids is
// empty, at most MaxParallel at a time. Failures are isolated per
// dealership and joined in the returned error.
func (o *Orchestrator) RunAll(ctx context.Context, ids []string) (map[string]*model.Summary, error) {
	if len(ids) == 0 {
		for _, d := range o.cfg.Dealerships {
			ids = append(ids, d.ID)
		}
	}

	var (
		mu   sync.Mutex
		out  = make(map[string]*model.Summary, len(ids))
		errs []error
	)
	var g errgroup.Group
	limit := o.cfg.MaxParallel
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, id := range ids {
		g.Go(func() error {
			sum, _, err := o.RunDealership(ctx, id, nil)
			mu.Lock()
			defer mu.Unlock()
			if sum != nil {
				out[sum.DealershipID] = sum
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("dealership %s: %w", id, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, errors.Join(errs...)
}

// StartReconcileJob runs RunDealership in the background.
func (o *Orchestrator) StartReconcileJob(ctx context.Context, dealershipID string) (*Job, error) {
	if _, ok := o.cfg.Dealership(dealershipID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDealership, dealershipID)
	}
	return o.startJob(ctx, JobTypeReconcile, dealershipID, func(jobCtx context.Context, job *Job) error {
		sum, enr, err := o.RunDealership(jobCtx, dealershipID, o.progressCallback(job.ID))
		o.updateJob(job.ID, func(j *Job) {
			j.Summary = sum
			j.Enrichment = enr
		})
		return err
	})
}

// StartEnrichJob runs Enrich in the background.
func (o *Orchestrator) StartEnrichJob(ctx context.Context, dealershipID string) (*Job, error) {
	if _, ok := o.cfg.Dealership(dealershipID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDealership, dealershipID)
	}
	return o.startJob(ctx, JobTypeEnrich, dealershipID, func(jobCtx context.Context, job *Job) error {
		enr, err := o.Enrich(jobCtx, dealershipID)
		o.updateJob(job.ID, func(j *Job) { j.Enrichment = enr })
		return err
	})
}

func (o *Orchestrator) startJob(ctx context.Context, typ, dealershipID string, run func(context.Context, *Job) error) (*Job, error) {
	o.ensureJobMaps()

	job := o.newJob(typ, dealershipID)
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	o.jobsMu.Lock()
	if o.closed {
		o.jobsMu.Unlock()
		cancel()
		return nil, ErrOrchestratorClosed
	}
	o.jobs[job.ID] = job
	o.jobCancels[job.ID] = cancel
	o.wg.Add(1)
	o.jobsMu.Unlock()

	// Emit initial pending event
	o.emitJobEvent(job.ID, JobEvent{JobID: job.ID, Type: JobEventStatus, Status: JobPending})

	go func() {
		defer o.wg.Done()
		defer o.finishJob(job.ID)

		o.updateJob(job.ID, func(j *Job) { j.Status = JobRunning })
		o.emitJobEvent(job.ID, JobEvent{JobID: job.ID, Type: JobEventStatus, Status: JobRunning})

		err := run(jobCtx, job)

		var status JobStatus
		switch {
		case jobCtx.Err() != nil:
			status = JobCanceled
			err = jobCtx.Err()
		case err != nil:
			status = JobFailed
		default:
			status = JobDone
		}

		var sum *model.Summary
		o.updateJob(job.ID, func(j *Job) {
			j.Status = status
			if err != nil {
				j.Error = err.Error()
			}
			sum = j.Summary
		})
		ev := JobEvent{JobID: job.ID, Type: JobEventStatus, Status: status, Summary: sum}
		if status == JobDone {
			ev.Type = JobEventResult
		}
		if err != nil {
			ev.Error = err.Error()
			o.logger.Warn("job ended with error",
				logging.Field{Key: "job_id", Value: job.ID},
				logging.Field{Key: "dealership_id", Value: dealershipID},
				logging.Field{Key: "status", Value: string(status)},
				logging.Field{Key: "error", Value: err.Error()})
		}
		o.emitJobEvent(job.ID, ev)
	}()

	return job, nil
}

// finishJob stamps the end time, closes the event stream and schedules the
// job for removal after the retention time.
func (o *Orchestrator) finishJob(jobID string) {
	o.jobsMu.Lock()
	if cancel, ok := o.jobCancels[jobID]; ok {
		cancel()
		delete(o.jobCancels, jobID)
	}
	if j, ok := o.jobs[jobID]; ok {
		j.EndedAt = time.Now().UTC()
		// Close events channel so websocket loop can terminate cleanly
		if j.Events != nil {
			close(j.Events)
		}
	}
	o.jobsMu.Unlock()

	if ttl := o.cfg.JobRetentionTime; ttl > 0 {
		time.AfterFunc(ttl, func() {
			o.jobsMu.Lock()
			delete(o.jobs, jobID)
			o.jobsMu.Unlock()
		})
	}
}

func (o *Orchestrator) CancelJob(jobID string) {
	o.jobsMu.Lock()
	cancel := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

// ListJobs returns retained jobs, newest first.
func (o *Orchestrator) ListJobs() []Job {
	o.jobsMu.Lock()
	out := make([]Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		out = append(out, *j)
	}
	o.jobsMu.Unlock()
	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.After(out[b].StartedAt) })
	return out
}

// SubscribeJobEvents returns the job's event stream. It is closed when the
// job ends; ok is false for unknown or finished jobs.
func (o *Orchestrator) SubscribeJobEvents(jobID string) (<-chan JobEvent, bool) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok || j.Events == nil || !j.EndedAt.IsZero() {
		return nil, false
	}
	return j.Events, true
}

// Dealerships lists the registry's dealerships.
func (o *Orchestrator) Dealerships(ctx context.Context) ([]model.Dealership, error) {
	if o.svc.Registry == nil {
		return nil, errors.New("registry not configured")
	}
	return o.svc.Registry.ListDealerships(ctx)
}

// Close cancels running jobs and waits for them. It is idempotent.
func (o *Orchestrator) Close() {
	o.jobsMu.Lock()
	if o.closed {
		o.jobsMu.Unlock()
		return
	}
	o.closed = true
	for _, cancel := range o.jobCancels {
		cancel()
	}
	o.jobsMu.Unlock()
	o.wg.Wait()
}
