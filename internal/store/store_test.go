package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/raysh454/lotsync/internal/model"
	"github.com/raysh454/lotsync/internal/store"
	"github.com/raysh454/lotsync/internal/testutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func vehicle(id, dealer string, mut func(*model.VehicleRecord)) model.VehicleRecord {
	r := model.VehicleRecord{
		ID:           id,
		DealershipID: dealer,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
	r.Year, r.Make, r.Model = 2021, "Honda", "Civic"
	if mut != nil {
		mut(&r)
	}
	return r
}

func mustInsert(t *testing.T, s *store.SQLiteStore, recs ...model.VehicleRecord) {
	t.Helper()
	for _, r := range recs {
		if err := s.Insert(context.Background(), r); err != nil {
			t.Fatalf("Insert %s: %v", r.ID, err)
		}
	}
}

// ─── Insert / read round-trip ──────────────────────────────────────────

func TestInsert_RoundTripsAllFields(t *testing.T) {
	t.Parallel()
	s := testutil.OpenStore(t)
	ctx := context.Background()

	scraped := t0.Add(time.Hour)
	in := vehicle("v1", "d1", func(r *model.VehicleRecord) {
		r.Trim = "EX"
		r.Price = model.Ptr(21500.0)
		r.Odometer = model.Ptr(18000)
		r.Images = []string{"https://d.example/1.jpg", "https://d.example/2.jpg"}
		r.Badges = []string{"One Owner"}
		r.TechSpecs = map[string]string{"Engine": "2.0L"}
		r.VIN = "2HGFC2F59MH500001"
		r.StockNumber = "S100"
		r.DealerVDPURL = "https://dealer.example/vdp/s100"
		r.LastScrapedAt = &scraped
		r.CrossSourcePrice = model.Ptr(21900.0)
	})
	mustInsert(t, s, in)

	got, err := s.Get(ctx, "v1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Trim != "EX" || *got.Price != 21500 || *got.Odometer != 18000 {
		t.Errorf("scalar fields lost: %+v", got.Attributes)
	}
	if len(got.Images) != 2 || got.Badges[0] != "One Owner" || got.TechSpecs["Engine"] != "2.0L" {
		t.Errorf("list fields lost: %+v", got.Attributes)
	}
	if !got.LastScrapedAt.Equal(scraped) || !got.CreatedAt.Equal(t0) {
		t.Errorf("timestamps lost: scraped=%v created=%v", got.LastScrapedAt, got.CreatedAt)
	}
	if got.CrossSourcePrice == nil || *got.CrossSourcePrice != 21900 {
		t.Errorf("cross source price lost: %v", got.CrossSourcePrice)
	}
}

func TestInsert_NilPriceStaysNil(t *testing.T) {
	t.Parallel()
	s := testutil.OpenStore(t)
	mustInsert(t, s, vehicle("v1", "d1", nil))

	got, err := s.Get(context.Background(), "v1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Price != nil || got.Odometer != nil || got.LastScrapedAt != nil {
		t.Errorf("expected unobserved fields to stay nil, got %+v", got)
	}
}

func TestInsert_DuplicateID(t *testing.T) {
	t.Parallel()
	s := testutil.OpenStore(t)
	mustInsert(t, s, vehicle("v1", "d1", nil))

	err := s.Insert(context.Background(), vehicle("v1", "d1", nil))
	if !errors.Is(err, store.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

// ─── Lookups ───────────────────────────────────────────────────────────

func TestFindByURL_NormalizedAndPrefix(t *testing.T) {
	t.Parallel()
	s := testutil.OpenStore(t)
	ctx := context.Background()
	mustInsert(t, s,
		vehicle("v1", "d1", func(r *model.VehicleRecord) { r.DealerVDPURL = "https://www.dealer.example/vdp/123" }),
		vehicle("v2", "d2", func(r *model.VehicleRecord) { r.DealerVDPURL = "https://dealer.example/vdp/999" }),
	)

	cases := []struct {
		url    string
		wantID string
	}{
		{"http://dealer.example/VDP/123/?utm=x#photos", "v1"},
		{"https://dealer.example/vdp/123/2021-honda-civic", "v1"},
		{"https://dealer.example/vdp/1234", ""},
		{"https://dealer.example/vdp/999", ""}, // other dealership
	}
	for _, tc := range cases {
		got, err := s.FindByURL(ctx, "d1", tc.url)
		if tc.wantID == "" {
			if !errors.Is(err, store.ErrNotFound) {
				t.Errorf("FindByURL(%q): expected ErrNotFound, got %v, %v", tc.url, got, err)
			}
			continue
		}
		if err != nil || got.ID != tc.wantID {
			t.Errorf("FindByURL(%q) = %v, %v; want %s", tc.url, got, err, tc.wantID)
		}
	}
}

func TestFindByVIN_CaseInsensitive(t *testing.T) {
	t.Parallel()
	s := testutil.OpenStore(t)
	mustInsert(t, s, vehicle("v1", "d1", func(r *model.VehicleRecord) { r.VIN = "1HGCM82633A004352" }))

	got, err := s.FindByVIN(context.Background(), "d1", "1hgcm82633a004352")
	if err != nil || got.ID != "v1" {
		t.Fatalf("FindByVIN = %v, %v", got, err)
	}
	if _, err := s.FindByVIN(context.Background(), "d2", "1HGCM82633A004352"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("VIN lookup leaked across dealerships: %v", err)
	}
}

func TestFindByYearMakeModel_OldestFirst(t *testing.T) {
	t.Parallel()
	s := testutil.OpenStore(t)
	mustInsert(t, s,
		vehicle("late", "d1", func(r *model.VehicleRecord) { r.CreatedAt = t0.Add(time.Hour) }),
		vehicle("early", "d1", func(r *model.VehicleRecord) { r.Make = " honda " }),
		vehicle("other", "d1", func(r *model.VehicleRecord) { r.Model = "Accord" }),
	)

	got, err := s.FindByYearMakeModel(context.Background(), "d1", 2021, "HONDA", "civic")
	if err != nil {
		t.Fatalf("FindByYearMakeModel: %v", err)
	}
	if len(got) != 2 || got[0].ID != "early" || got[1].ID != "late" {
		t.Errorf("unexpected result order: %v", ids(got))
	}
}

func ids(recs []model.VehicleRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

// ─── Writes ────────────────────────────────────────────────────────────

func TestUpdate_LeavesEnrichmentAndLocalImages(t *testing.T) {
	t.Parallel()
	s := testutil.OpenStore(t)
	ctx := context.Background()
	mustInsert(t, s, vehicle("v1", "d1", func(r *model.VehicleRecord) { r.DealRating = "Great Deal" }))
	if err := s.SetLocalImages(ctx, "v1", []string{"/images/ab/abc"}); err != nil {
		t.Fatalf("SetLocalImages: %v", err)
	}

	upd := vehicle("v1", "d1", func(r *model.VehicleRecord) {
		r.Price = model.Ptr(19999.0)
		r.DealRating = "overwritten?"
	})
	if err := s.Update(ctx, upd); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Get(ctx, "v1")
	if *got.Price != 19999 {
		t.Errorf("price not updated: %v", got.Price)
	}
	if got.DealRating != "Great Deal" || len(got.LocalImages) != 1 {
		t.Errorf("update touched enrichment or local images: %+v", got)
	}
}

func TestUpdate_MissingRecord(t *testing.T) {
	t.Parallel()
	s := testutil.OpenStore(t)
	if err := s.Update(context.Background(), vehicle("nope", "d1", nil)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateEnrichment(t *testing.T) {
	t.Parallel()
	s := testutil.OpenStore(t)
	ctx := context.Background()
	mustInsert(t, s, vehicle("v1", "d1", func(r *model.VehicleRecord) {
		r.Price = model.Ptr(20000.0)
		r.Images = []string{"https://d.example/1.jpg"}
	}))

	rec, _ := s.Get(ctx, "v1")
	rec.DealRating = "Good Deal"
	rec.CrossSourcePrice = model.Ptr(20400.0)
	rec.CrossSourceURL = "https://market.example/l/1"
	rec.CrossSourceImages = []string{"https://market.example/1.jpg"}
	rec.Images = []string{"https://market.example/1.jpg"} // not an enrichment field
	rec.Price = model.Ptr(1.0)                            // nor this
	if err := s.UpdateEnrichment(ctx, *rec); err != nil {
		t.Fatalf("UpdateEnrichment: %v", err)
	}

	got, _ := s.Get(ctx, "v1")
	if got.DealRating != "Good Deal" || *got.CrossSourcePrice != 20400 || len(got.CrossSourceImages) != 1 {
		t.Errorf("enrichment not stored: %+v", got)
	}
	if *got.Price != 20000 {
		t.Errorf("enrichment overwrote primary price: %v", *got.Price)
	}
	if len(got.Images) != 1 || got.Images[0] != "https://d.example/1.jpg" {
		t.Errorf("enrichment overwrote primary images: %v", got.Images)
	}
}

// ─── Stale listing and deletion ────────────────────────────────────────

func TestListStale_NeverScrapedFirstThenOldest(t *testing.T) {
	t.Parallel()
	s := testutil.OpenStore(t)
	at := func(d time.Duration) *time.Time { v := t0.Add(d); return &v }
	mustInsert(t, s,
		vehicle("fresh", "d1", func(r *model.VehicleRecord) { r.LastScrapedAt = at(2 * time.Hour) }),
		vehicle("old", "d1", func(r *model.VehicleRecord) { r.LastScrapedAt = at(-48 * time.Hour) }),
		vehicle("older", "d1", func(r *model.VehicleRecord) { r.LastScrapedAt = at(-72 * time.Hour) }),
		vehicle("never", "d1", nil),
	)

	got, err := s.ListStale(context.Background(), "d1", t0)
	if err != nil {
		t.Fatalf("ListStale: %v", err)
	}
	want := []string{"never", "older", "old"}
	if fmt.Sprint(ids(got)) != fmt.Sprint(want) {
		t.Errorf("ListStale = %v, want %v", ids(got), want)
	}
}

func TestDeleteBatch_RemovesDependentsFirst(t *testing.T) {
	t.Parallel()
	s := testutil.OpenStore(t)
	ctx := context.Background()
	mustInsert(t, s, vehicle("v1", "d1", nil), vehicle("v2", "d1", nil))

	if err := s.RecordView(ctx, "v1", "vdp"); err != nil {
		t.Fatalf("RecordView: %v", err)
	}
	if _, err := s.OpenConversation(ctx, "v1", "shopper@example.com"); err != nil {
		t.Fatalf("OpenConversation: %v", err)
	}

	res, err := s.DeleteBatch(ctx, []string{"v1", "missing", "v2"})
	if err != nil {
		t.Fatalf("DeleteBatch: %v", err)
	}
	if len(res.Deleted) != 2 {
		t.Errorf("expected 2 deleted, got %v", res.Deleted)
	}
	if !errors.Is(res.Failed["missing"], store.ErrNotFound) {
		t.Errorf("expected per-id ErrNotFound for missing, got %v", res.Failed)
	}

	views, convs, err := s.Dependents(ctx, "v1")
	if err != nil || views != 0 || convs != 0 {
		t.Errorf("dependents left behind: views=%d conversations=%d err=%v", views, convs, err)
	}
	if n, _ := s.Count(ctx, "d1"); n != 0 {
		t.Errorf("expected empty inventory, got %d", n)
	}
}

func TestDependents_BlockPlainDelete(t *testing.T) {
	t.Parallel()
	s := testutil.OpenStore(t)
	ctx := context.Background()
	mustInsert(t, s, vehicle("v1", "d1", nil))
	if err := s.RecordView(ctx, "v1", "vdp"); err != nil {
		t.Fatalf("RecordView: %v", err)
	}

	if _, err := s.DB().ExecContext(ctx, `DELETE FROM vehicles WHERE id = 'v1'`); err == nil {
		t.Fatal("expected foreign key violation deleting a viewed vehicle directly")
	}
}

// ─── Checkpoints ───────────────────────────────────────────────────────

func TestCheckpoint_SaveLoadClear(t *testing.T) {
	t.Parallel()
	s := testutil.OpenStore(t)
	ctx := context.Background()

	if cp, err := s.LoadCheckpoint(ctx, "d1"); err != nil || cp != nil {
		t.Fatalf("expected no checkpoint, got %v, %v", cp, err)
	}

	in := model.Checkpoint{
		DealershipID:  "d1",
		Cursor:        model.Cursor{Page: 3, Index: 2},
		PassStartedAt: t0,
		Resumable:     true,
		Baseline:      40,
		Observed:      12,
		Inserted:      2,
		Updated:       7,
		Unchanged:     3,
		Failed:        1,
	}
	if err := s.SaveCheckpoint(ctx, in); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	in.Cursor.Index = 3
	in.Observed = 13
	if err := s.SaveCheckpoint(ctx, in); err != nil {
		t.Fatalf("SaveCheckpoint (upsert): %v", err)
	}

	got, err := s.LoadCheckpoint(ctx, "d1")
	if err != nil || got == nil {
		t.Fatalf("LoadCheckpoint: %v, %v", got, err)
	}
	if got.Cursor != (model.Cursor{Page: 3, Index: 3}) || got.Observed != 13 || !got.Resumable ||
		got.Baseline != 40 || !got.PassStartedAt.Equal(t0) {
		t.Errorf("checkpoint mismatch: %+v", got)
	}

	if err := s.ClearCheckpoint(ctx, "d1"); err != nil {
		t.Fatalf("ClearCheckpoint: %v", err)
	}
	if cp, _ := s.LoadCheckpoint(ctx, "d1"); cp != nil {
		t.Errorf("checkpoint survived clear: %+v", cp)
	}
}

// ─── Runs ──────────────────────────────────────────────────────────────

func TestRuns_NewestFirst(t *testing.T) {
	t.Parallel()
	s := testutil.OpenStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		run := model.RunRecord{
			DealershipID: "d1",
			Kind:         "reconcile",
			State:        model.StateCompleted,
			StartedAt:    t0.Add(time.Duration(i) * time.Hour),
			FinishedAt:   t0.Add(time.Duration(i)*time.Hour + time.Minute),
		}
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx, "d1", 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Errorf("expected 2 newest runs first, got %+v", runs)
	}
	if runs[0].ID == "" || runs[0].Summary != "{}" {
		t.Errorf("expected generated id and empty summary, got %+v", runs[0])
	}
}
