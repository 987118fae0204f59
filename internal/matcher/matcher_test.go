package matcher_test

import (
	"errors"
	"testing"
	"time"

	"github.com/raysh454/lotsync/internal/matcher"
	"github.com/raysh454/lotsync/internal/model"
)

const dealer = "dealer-1"

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(id string, mut func(*model.VehicleRecord)) model.VehicleRecord {
	r := model.VehicleRecord{
		ID:           id,
		DealershipID: dealer,
		Attributes:   model.Attributes{Year: 2020, Make: "Ford", Model: "F-150"},
		CreatedAt:    t0,
	}
	if mut != nil {
		mut(&r)
	}
	return r
}

func mustSet(t *testing.T, recs ...model.VehicleRecord) *matcher.ExistingSet {
	t.Helper()
	set, err := matcher.NewExistingSet(dealer, recs)
	if err != nil {
		t.Fatalf("NewExistingSet: %v", err)
	}
	return set
}

func candidate(mut func(*model.ScrapedVehicle)) model.ScrapedVehicle {
	c := model.ScrapedVehicle{
		Source:       model.SourceDealerSite,
		DealershipID: dealer,
		Attributes:   model.Attributes{Year: 2020, Make: "Ford", Model: "F-150"},
	}
	if mut != nil {
		mut(&c)
	}
	return c
}

// ─── Anchors ───────────────────────────────────────────────────────────

func TestMatch_URLAnchorOutranksVIN(t *testing.T) {
	t.Parallel()
	a := rec("A", func(r *model.VehicleRecord) {
		r.VIN = "1FTFW1E50LFA00001"
		r.DealerVDPURL = "https://dealer.com/vdp/a"
	})
	b := rec("B", func(r *model.VehicleRecord) {
		r.VIN = "1FTFW1E50LFA00002"
		r.DealerVDPURL = "https://dealer.com/vdp/b"
	})
	m := matcher.New(matcher.DefaultOptions())

	res, err := m.Match(candidate(func(c *model.ScrapedVehicle) {
		c.VIN = "1ftfw1e50lfa00001"
		c.ListingURL = "https://www.dealer.com/VDP/b/?ref=srp#top"
	}), mustSet(t, a, b))
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.MatchedID != "B" {
		t.Fatalf("expected URL anchor to select B, got %q (%s)", res.MatchedID, res.Rationale)
	}
	if res.Type != model.MatchIdentityAnchor || res.Confidence != model.ConfidenceHigh || res.Anchor != "url" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestMatch_URLPrefixAtPathBoundary(t *testing.T) {
	t.Parallel()
	a := rec("A", func(r *model.VehicleRecord) { r.DealerVDPURL = "https://dealer.com/vdp/123" })
	m := matcher.New(matcher.Options{})
	set := mustSet(t, a)

	res, _ := m.Match(candidate(func(c *model.ScrapedVehicle) {
		c.ListingURL = "https://dealer.com/vdp/123/photos"
	}), set)
	if res.MatchedID != "A" {
		t.Errorf("expected prefix match, got %+v", res)
	}

	res, _ = m.Match(candidate(func(c *model.ScrapedVehicle) {
		c.ListingURL = "https://dealer.com/vdp/1234"
	}), set)
	if res.Matched() {
		t.Errorf("1234 must not match 123: %+v", res)
	}
}

func TestMatch_VINCaseInsensitive(t *testing.T) {
	t.Parallel()
	a := rec("A", func(r *model.VehicleRecord) { r.VIN = "1HGCM82633A004352" })
	m := matcher.New(matcher.DefaultOptions())

	res, err := m.Match(candidate(func(c *model.ScrapedVehicle) { c.VIN = " 1hgcm82633a004352" }), mustSet(t, a))
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.MatchedID != "A" || res.Anchor != "vin" || res.Confidence != model.ConfidenceHigh {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestMatch_PlaceholderVINNeverAnchors(t *testing.T) {
	t.Parallel()
	a := rec("A", func(r *model.VehicleRecord) {
		r.VIN = "NOVIN-12345678"
		r.DealerVDPURL = "https://dealer.com/vdp/a"
	})
	m := matcher.New(matcher.DefaultOptions())

	res, err := m.Match(candidate(func(c *model.ScrapedVehicle) {
		c.VIN = "NOVIN-12345678"
		c.ListingURL = "https://dealer.com/vdp/other"
	}), mustSet(t, a))
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.Matched() {
		t.Errorf("placeholder VINs must not match: %+v", res)
	}
}

func TestIsPlaceholderVIN(t *testing.T) {
	t.Parallel()
	m := matcher.New(matcher.DefaultOptions())
	cases := map[string]bool{
		"":                  true,
		"ABC123":            true,
		"NOVIN000000000001": true,
		"tmp-1234567890123": true,
		"00000000000000000": true,
		"XXXXXXXXXXXXXXXXX": true,
		"1HGCM82633A004352": false,
	}
	for vin, want := range cases {
		if got := m.IsPlaceholderVIN(vin); got != want {
			t.Errorf("IsPlaceholderVIN(%q) = %v, want %v", vin, got, want)
		}
	}
}

func TestIsPlaceholderVIN_ZeroValueMatcher(t *testing.T) {
	t.Parallel()
	var m matcher.Matcher
	if !m.IsPlaceholderVIN("") || !m.IsPlaceholderVIN("   ") {
		t.Error("blank VIN must be a placeholder")
	}
	if m.IsPlaceholderVIN("1HGCM82633A004352") {
		t.Error("real VIN reported as placeholder")
	}
}

// ─── Attribute fallback ────────────────────────────────────────────────

func TestMatch_AttributeFallbackSkipsAnchoredRecords(t *testing.T) {
	t.Parallel()
	anchored := rec("A", func(r *model.VehicleRecord) { r.VIN = "1FTFW1E50LFA00001" })
	withURL := rec("B", func(r *model.VehicleRecord) { r.DealerVDPURL = "https://dealer.com/vdp/b" })
	m := matcher.New(matcher.DefaultOptions())

	res, err := m.Match(candidate(nil), mustSet(t, anchored, withURL))
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.Matched() {
		t.Errorf("unanchored candidate must not merge into anchored record: %+v", res)
	}
}

func TestMatch_AnchoredCandidateNeverFallsBack(t *testing.T) {
	t.Parallel()
	bare := rec("A", nil)
	m := matcher.New(matcher.DefaultOptions())

	res, _ := m.Match(candidate(func(c *model.ScrapedVehicle) {
		c.ListingURL = "https://dealer.com/vdp/new"
	}), mustSet(t, bare))
	if res.Matched() {
		t.Errorf("candidate with URL must not use year/make/model fallback: %+v", res)
	}
}

// Two different unanchored vehicles with the same year/make/model are merged
// into the earliest record. This documents current behavior, which may hide
// distinct vehicles; revisit if dealers report missing inventory.
func TestMatch_AttributeFallbackMergesIdenticalUnanchoredVehicles(t *testing.T) {
	t.Parallel()
	older := rec("OLD", func(r *model.VehicleRecord) { r.CreatedAt = t0.Add(-time.Hour) })
	newer := rec("NEW", nil)
	m := matcher.New(matcher.DefaultOptions())

	res, err := m.Match(candidate(func(c *model.ScrapedVehicle) {
		c.Make = "FORD"
		c.Model = "f-150"
		c.VIN = "UNKNOWN"
	}), mustSet(t, newer, older))
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if res.MatchedID != "OLD" {
		t.Fatalf("expected earliest record, got %+v", res)
	}
	if res.Type != model.MatchAttributeScore || res.Confidence != model.ConfidenceLow {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestMatch_NoMatchIsNotAnError(t *testing.T) {
	t.Parallel()
	m := matcher.New(matcher.DefaultOptions())
	res, err := m.Match(candidate(func(c *model.ScrapedVehicle) { c.VIN = "1HGCM82633A004352" }), mustSet(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Matched() || res.Type != model.MatchNone || res.Confidence != model.ConfidenceNone {
		t.Errorf("unexpected result: %+v", res)
	}
}

// ─── Malformed input ───────────────────────────────────────────────────

func TestMatch_MalformedSet(t *testing.T) {
	t.Parallel()
	m := matcher.New(matcher.DefaultOptions())

	if _, err := m.Match(candidate(nil), nil); !errors.Is(err, matcher.ErrMalformedSet) {
		t.Errorf("nil set: expected ErrMalformedSet, got %v", err)
	}
	if _, err := matcher.NewExistingSet("", nil); !errors.Is(err, matcher.ErrMalformedSet) {
		t.Errorf("empty scope: expected ErrMalformedSet, got %v", err)
	}
	foreign := rec("X", func(r *model.VehicleRecord) { r.DealershipID = "other" })
	if _, err := matcher.NewExistingSet(dealer, []model.VehicleRecord{foreign}); !errors.Is(err, matcher.ErrMalformedSet) {
		t.Errorf("foreign record: expected ErrMalformedSet, got %v", err)
	}
	c := candidate(func(c *model.ScrapedVehicle) { c.DealershipID = "other" })
	if _, err := m.Match(c, mustSet(t)); !errors.Is(err, matcher.ErrMalformedSet) {
		t.Errorf("foreign candidate: expected ErrMalformedSet, got %v", err)
	}
}

func TestExistingSet_PutMakesInsertVisible(t *testing.T) {
	t.Parallel()
	m := matcher.New(matcher.DefaultOptions())
	set := mustSet(t)
	c := candidate(func(c *model.ScrapedVehicle) { c.ListingURL = "https://dealer.com/vdp/1" })

	if res, _ := m.Match(c, set); res.Matched() {
		t.Fatalf("empty set matched: %+v", res)
	}
	if err := set.Put(rec("N", func(r *model.VehicleRecord) { r.DealerVDPURL = c.ListingURL })); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if res, _ := m.Match(c, set); res.MatchedID != "N" {
		t.Fatalf("expected inserted record to match, got %+v", res)
	}

	set.Remove("N")
	if set.Len() != 0 {
		t.Errorf("expected empty set after Remove, got %d", set.Len())
	}
}
