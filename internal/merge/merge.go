// Package merge combines a scraped listing with its canonical record without
// ever regressing a known-good value. Merge is pure: persistence is the
// caller's job.
package merge

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/lotsync/internal/model"
)

// Options configure insert defaults.
type Options struct {
	// DefaultInteriorColor fills the interior color of new records when the
	// source did not expose one.
	DefaultInteriorColor string
	// IsPlaceholderVIN guards against replacing a real VIN with a sentinel.
	// Nil treats every non-empty VIN as real.
	IsPlaceholderVIN func(string) bool
	// NewID generates record ids. Nil uses uuid.
	NewID func() string
}

// Engine applies the merge rules.
type Engine struct {
	opts Options
}

// New returns an Engine.
func New(opts Options) *Engine {
	if opts.DefaultInteriorColor == "" {
		opts.DefaultInteriorColor = "Other"
	}
	if opts.IsPlaceholderVIN == nil {
		opts.IsPlaceholderVIN = func(string) bool { return false }
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	return &Engine{opts: opts}
}

// Merge returns the record to persist for candidate c. A nil existing record
// produces a new record; otherwise existing is updated field by field and
// left untouched itself.
func (e *Engine) Merge(existing *model.VehicleRecord, c model.ScrapedVehicle, now time.Time) model.VehicleRecord {
	now = now.UTC()
	if existing == nil {
		return e.insert(c, now)
	}

	out := existing.Clone()
	a := &out.Attributes
	ca := c.Attributes

	if ca.Year > 0 {
		a.Year = ca.Year
	}
	setString(&a.Make, ca.Make)
	setString(&a.Model, ca.Model)
	setString(&a.Trim, ca.Trim)
	setString(&a.BodyType, ca.BodyType)
	setString(&a.ExteriorColor, ca.ExteriorColor)
	setString(&a.InteriorColor, ca.InteriorColor)
	setString(&a.Transmission, ca.Transmission)
	setString(&a.Drivetrain, ca.Drivetrain)
	setString(&a.FuelType, ca.FuelType)
	setString(&a.Description, ca.Description)
	setString(&a.VDPContent, ca.VDPContent)

	if ca.Price != nil && *ca.Price > 0 {
		a.Price = model.Ptr(*ca.Price)
	}
	if ca.Odometer != nil && *ca.Odometer > 0 {
		a.Odometer = model.Ptr(*ca.Odometer)
	}

	setList(&a.Images, ca.Images)
	setList(&a.Badges, ca.Badges)
	setList(&a.CarfaxBadges, ca.CarfaxBadges)
	setList(&a.Highlights, ca.Highlights)
	if len(ca.TechSpecs) > 0 {
		a.TechSpecs = copyMap(ca.TechSpecs)
	}

	// Identity anchors are never cleared, and a real VIN is never traded for
	// a placeholder.
	if vin := strings.TrimSpace(c.VIN); vin != "" {
		if !e.opts.IsPlaceholderVIN(vin) || e.opts.IsPlaceholderVIN(out.VIN) {
			out.VIN = vin
		}
	}
	setString(&out.StockNumber, c.StockNumber)
	setString(&out.DealerVDPURL, c.ListingURL)

	ts := now
	out.LastScrapedAt = &ts
	return out
}

func (e *Engine) insert(c model.ScrapedVehicle, now time.Time) model.VehicleRecord {
	ts := now
	rec := model.VehicleRecord{
		ID:            e.opts.NewID(),
		DealershipID:  c.DealershipID,
		VIN:           strings.TrimSpace(c.VIN),
		StockNumber:   strings.TrimSpace(c.StockNumber),
		DealerVDPURL:  strings.TrimSpace(c.ListingURL),
		LastScrapedAt: &ts,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	snapshot := model.VehicleRecord{Attributes: c.Attributes}
	rec.Attributes = snapshot.Clone().Attributes
	if rec.Price != nil && *rec.Price <= 0 {
		rec.Price = nil
	}
	if rec.Odometer != nil && *rec.Odometer <= 0 {
		rec.Odometer = nil
	}
	if strings.TrimSpace(rec.InteriorColor) == "" {
		rec.InteriorColor = e.opts.DefaultInteriorColor
	}
	return rec
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = append([]string(nil), v...)
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
