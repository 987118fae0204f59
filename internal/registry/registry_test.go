package registry_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/raysh454/lotsync/internal/registry"
	"github.com/raysh454/lotsync/internal/testutil"
)

func openTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	reg, err := registry.NewRegistry(db, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func TestRegistry_UpsertListGet(t *testing.T) {
	t.Parallel()
	reg := openTestRegistry(t)
	ctx := context.Background()

	d, err := reg.UpsertDealership(ctx, "", "Main Street Motors", "https://mainstreet.example")
	if err != nil {
		t.Fatalf("UpsertDealership: %v", err)
	}
	if d.ID != "main-street-motors" {
		t.Fatalf("unexpected derived id: %s", d.ID)
	}

	if _, err := reg.UpsertDealership(ctx, "main-street-motors", "Main St. Motors", "https://mainstreet.example"); err != nil {
		t.Fatalf("second UpsertDealership: %v", err)
	}
	if _, err := reg.UpsertDealership(ctx, "Airport Auto", "", ""); err != nil {
		t.Fatalf("UpsertDealership: %v", err)
	}

	list, err := reg.ListDealerships(ctx)
	if err != nil {
		t.Fatalf("ListDealerships: %v", err)
	}
	if len(list) != 2 || list[0].ID != "airport-auto" || list[1].Name != "Main St. Motors" {
		t.Fatalf("unexpected dealerships: %+v", list)
	}

	got, err := reg.GetDealership(ctx, "Main-Street-Motors")
	if err != nil || got.WebsiteURL != "https://mainstreet.example" {
		t.Fatalf("GetDealership = %+v, %v", got, err)
	}
}

func TestRegistry_NotFound(t *testing.T) {
	t.Parallel()
	reg := openTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.GetDealership(ctx, "ghost"); !errors.Is(err, registry.ErrDealershipNotFound) {
		t.Fatalf("expected ErrDealershipNotFound, got %v", err)
	}
	if err := reg.MarkRun(ctx, "ghost", time.Now()); !errors.Is(err, registry.ErrDealershipNotFound) {
		t.Fatalf("expected ErrDealershipNotFound from MarkRun, got %v", err)
	}
}

func TestRegistry_MarkRun(t *testing.T) {
	t.Parallel()
	reg := openTestRegistry(t)
	ctx := context.Background()
	if _, err := reg.UpsertDealership(ctx, "d1", "D1", ""); err != nil {
		t.Fatalf("UpsertDealership: %v", err)
	}

	at := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	if err := reg.MarkRun(ctx, "d1", at); err != nil {
		t.Fatalf("MarkRun: %v", err)
	}
	d, _ := reg.GetDealership(ctx, "d1")
	if d.LastRunAt == nil || !d.LastRunAt.Equal(at) {
		t.Fatalf("last run not recorded: %v", d.LastRunAt)
	}
}

func TestNormalizeID(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"  Main Street Motors ": "main-street-motors",
		"lot#7/east":            "lot7east",
		"a_b.c":                 "a_b.c",
	}
	for in, want := range cases {
		if got := registry.NormalizeID(in); got != want {
			t.Errorf("NormalizeID(%q) = %q, want %q", in, got, want)
		}
	}
}
