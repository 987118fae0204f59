package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/raysh454/lotsync/internal/reconcile"
	"github.com/raysh454/lotsync/internal/registry"
	"github.com/raysh454/lotsync/internal/source"
	"github.com/raysh454/lotsync/internal/testutil"
)

const dealerPages = `[
  [
    {"year": 2021, "make": "Honda", "model": "Civic", "price": 21000, "odometer": 30000,
     "vin": "2HGFC2F59MH000001", "stock_number": "H1", "listing_url": "https://lot.example/vdp/h1",
     "images": ["https://lot.example/img/h1-1.jpg"]},
    {"year": 2019, "make": "Toyota", "model": "Camry", "price": 18000, "odometer": 60000,
     "vin": "4T1B11HK1KU000002", "stock_number": "T2", "listing_url": "https://lot.example/vdp/t2"}
  ],
  [
    {"year": 2020, "make": "Ford", "model": "F-150", "price": 35000, "odometer": 40000,
     "vin": "1FTEW1EP5LF000003", "stock_number": "F3", "listing_url": "https://lot.example/vdp/f3"}
  ]
]`

const marketplacePages = `[
  [
    {"year": 2021, "make": "Honda", "model": "Civic", "price": 21400, "odometer": 30200,
     "listing_url": "https://market.example/l/1", "deal_rating": "Great Deal",
     "images": ["https://lot.example/img/h1-1.jpg?w=320", "https://market.example/p/1.jpg"]}
  ]
]`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

// newTestOrchestrator creates an Orchestrator over a TempDir store with one
// dealership "d1" backed by static files.
func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	dir := t.TempDir()
	logger := &testutil.DummyLogger{}
	st := testutil.OpenStore(t)
	reg, err := registry.NewRegistry(st.DB(), logger)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	if _, err := reg.UpsertDealership(context.Background(), "d1", "Dealer One", ""); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.StorageRoot = dir
	cfg.JobRetentionTime = 5 * time.Second
	cfg.Dealerships = []DealershipConfig{{
		ID:   "d1",
		Name: "Dealer One",
		Primary: source.Spec{
			Kind: source.KindStatic,
			File: writeFile(t, dir, "d1.json", dealerPages),
		},
		Secondary: []source.Spec{{
			Kind: source.KindStatic,
			File: writeFile(t, dir, "d1-market.json", marketplacePages),
		}},
	}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	orch := NewOrchestrator(cfg, Services{Store: st, Registry: reg, Client: &testutil.DummyWebClient{}}, logger)
	t.Cleanup(func() { orch.Close() })
	return orch
}

func drain(job *Job) {
	for range job.Events {
	}
}

// ─── Construction ──────────────────────────────────────────────────────

func TestNewOrchestrator_DefaultConfig(t *testing.T) {
	t.Parallel()
	o := NewOrchestrator(nil, Services{}, &testutil.DummyLogger{})
	if o.cfg == nil {
		t.Fatal("expected default config when nil passed")
	}
}

// ─── Job management ────────────────────────────────────────────────────

func TestGetJob_ReturnsNilForUnknown(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)

	if j := o.GetJob("nonexistent"); j != nil {
		t.Errorf("expected nil for unknown job, got %+v", j)
	}
}

func TestListJobs_EmptyInitially(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)

	if jobs := o.ListJobs(); len(jobs) != 0 {
		t.Errorf("expected 0 jobs, got %d", len(jobs))
	}
}

func TestCancelJob_NoOpForUnknown(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)
	// Should not panic
	o.CancelJob("does-not-exist")
}

// ─── Reconcile job lifecycle ───────────────────────────────────────────

func TestStartReconcileJob_RunsPassThenEnrichment(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)
	ctx := context.Background()

	job, err := o.StartReconcileJob(ctx, "d1")
	if err != nil {
		t.Fatalf("StartReconcileJob: %v", err)
	}
	if job.ID == "" || job.Type != JobTypeReconcile {
		t.Fatalf("unexpected job %+v", job)
	}

	var sawProgress, sawResult bool
	for ev := range job.Events {
		switch ev.Type {
		case JobEventProgress:
			sawProgress = true
		case JobEventResult:
			sawResult = ev.Summary != nil
		}
	}
	if !sawProgress || !sawResult {
		t.Errorf("progress=%v result=%v", sawProgress, sawResult)
	}

	final := o.GetJob(job.ID)
	if final == nil {
		t.Fatal("job not found after completion")
	}
	if final.Status != JobDone {
		t.Fatalf("expected status 'done', got %q (err: %s)", final.Status, final.Error)
	}
	if final.Summary == nil || final.Summary.Inserted != 3 || final.Summary.Total != 3 {
		t.Fatalf("summary = %+v", final.Summary)
	}
	if len(final.Enrichment) != 1 || final.Enrichment[0].Matched != 1 {
		t.Fatalf("enrichment = %+v", final.Enrichment)
	}

	d, err := o.svc.Registry.GetDealership(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if d.LastRunAt == nil {
		t.Error("expected last run to be recorded")
	}

	runs, err := o.svc.Store.ListRuns(ctx, "d1", 0)
	if err != nil || len(runs) != 2 {
		t.Errorf("runs = %d, %v; want reconcile and enrich", len(runs), err)
	}
}

func TestStartReconcileJob_UnknownDealership(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)

	_, err := o.StartReconcileJob(context.Background(), "nope")
	if !errors.Is(err, ErrUnknownDealership) {
		t.Fatalf("err = %v", err)
	}
}

func TestStartReconcileJob_RejectsWhenClosed(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)
	o.Close()

	if _, err := o.StartReconcileJob(context.Background(), "d1"); !errors.Is(err, ErrOrchestratorClosed) {
		t.Fatalf("expected ErrOrchestratorClosed, got %v", err)
	}
}

func TestStartReconcileJob_CancelJob(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)

	job, err := o.StartReconcileJob(context.Background(), "d1")
	if err != nil {
		t.Fatalf("StartReconcileJob: %v", err)
	}
	o.CancelJob(job.ID)
	drain(job)

	final := o.GetJob(job.ID)
	if final == nil {
		t.Fatal("job not found after cancel")
	}
	// May be done or canceled depending on timing
	if final.Status != JobCanceled && final.Status != JobDone {
		t.Errorf("expected done or canceled, got %q", final.Status)
	}
}

func TestStartReconcileJob_AppearsInListJobs(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)

	job, err := o.StartReconcileJob(context.Background(), "d1")
	if err != nil {
		t.Fatalf("StartReconcileJob: %v", err)
	}

	found := false
	for _, j := range o.ListJobs() {
		if j.ID == job.ID {
			found = true
		}
	}
	if !found {
		t.Error("started job not found in ListJobs")
	}
	drain(job)
}

func TestFinishedJobsExpire(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)
	o.cfg.JobRetentionTime = 20 * time.Millisecond

	job, err := o.StartEnrichJob(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	drain(job)

	deadline := time.Now().Add(2 * time.Second)
	for o.GetJob(job.ID) != nil {
		if time.Now().After(deadline) {
			t.Fatal("finished job was not removed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// ─── Enrich job ────────────────────────────────────────────────────────

func TestStartEnrichJob_WithoutInventoryMatchesNothing(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)

	job, err := o.StartEnrichJob(context.Background(), "d1")
	if err != nil {
		t.Fatal(err)
	}
	drain(job)

	final := o.GetJob(job.ID)
	if final.Status != JobDone {
		t.Fatalf("status = %q (%s)", final.Status, final.Error)
	}
	if len(final.Enrichment) != 1 || final.Enrichment[0].Candidates != 1 || final.Enrichment[0].Matched != 0 {
		t.Fatalf("enrichment = %+v", final.Enrichment)
	}
}

// ─── RunAll ────────────────────────────────────────────────────────────

func TestRunAll_IsolatesDealershipFailures(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)
	o.cfg.Dealerships = append(o.cfg.Dealerships, DealershipConfig{
		ID:      "broken",
		Primary: source.Spec{Kind: source.KindStatic, File: filepath.Join(t.TempDir(), "missing.json")},
	})

	sums, err := o.RunAll(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error for the broken dealership")
	}
	if sums["d1"] == nil || sums["d1"].Inserted != 3 {
		t.Fatalf("healthy dealership summary = %+v", sums["d1"])
	}
	if _, ok := sums["broken"]; ok {
		t.Error("broken dealership should have no summary")
	}
}

func TestReconcile_IsIdempotentAcrossRuns(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)
	ctx := context.Background()

	if _, err := o.Reconcile(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	sum, err := o.Reconcile(ctx, "D1")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Inserted != 0 || sum.Unchanged != 3 {
		t.Fatalf("second run summary = %+v", sum)
	}
}

func TestRunDealership_IsIdempotentWithEnrichment(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)
	ctx := context.Background()

	for run := 1; run <= 2; run++ {
		sum, enr, err := o.RunDealership(ctx, "d1", nil)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if len(enr) != 1 || enr[0].Matched != 1 {
			t.Fatalf("run %d enrichment = %+v", run, enr)
		}
		if run == 2 && (sum.Updated != 0 || sum.Unchanged != 3) {
			t.Fatalf("second run summary = %+v", sum)
		}
	}

	civic, err := o.svc.Store.FindByVIN(ctx, "d1", "2HGFC2F59MH000001")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(civic.Images, []string{"https://lot.example/img/h1-1.jpg"}) {
		t.Errorf("dealer images = %v", civic.Images)
	}
	if !reflect.DeepEqual(civic.CrossSourceImages, []string{"https://market.example/p/1.jpg"}) {
		t.Errorf("cross-source images = %v", civic.CrossSourceImages)
	}
	if civic.DealRating != "Great Deal" {
		t.Errorf("deal rating = %q", civic.DealRating)
	}
}

// ─── Progress callback ─────────────────────────────────────────────────

func TestProgressCallback_EmitsProgressEvents(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)
	o.ensureJobMaps()

	job := o.newJob(JobTypeReconcile, "d1")
	o.setJob(job)

	cb := o.progressCallback(job.ID)
	cb(reconcile.Progress{DealershipID: "d1", Inserted: 1, Failed: 1})

	select {
	case ev := <-job.Events:
		if ev.Type != JobEventProgress {
			t.Errorf("expected progress event, got %q", ev.Type)
		}
		if ev.Processed != 2 || ev.Progress == nil || ev.Progress.Inserted != 1 {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timed out waiting for progress event")
	}
}

// ─── Close ─────────────────────────────────────────────────────────────

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()
	o := newTestOrchestrator(t)
	o.Close()
	o.Close()
}
