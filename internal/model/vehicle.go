package model

import "time"

// Source identifies where a listing was scraped from.
type Source string

const (
	SourceDealerSite  Source = "dealer_site"
	SourceMarketplace Source = "marketplace"
	SourceClassifieds Source = "classifieds"
)

// Secondary reports whether listings from s are only used for enrichment.
func (s Source) Secondary() bool {
	return s == SourceMarketplace || s == SourceClassifieds
}

// Attributes are the descriptive fields shared by scraped listings and
// canonical records. Empty strings, nil slices and nil pointers mean the
// value was not observed.
type Attributes struct {
	Year          int               `json:"year,omitempty"`
	Make          string            `json:"make,omitempty"`
	Model         string            `json:"model,omitempty"`
	Trim          string            `json:"trim,omitempty"`
	BodyType      string            `json:"body_type,omitempty"`
	ExteriorColor string            `json:"exterior_color,omitempty"`
	InteriorColor string            `json:"interior_color,omitempty"`
	Transmission  string            `json:"transmission,omitempty"`
	Drivetrain    string            `json:"drivetrain,omitempty"`
	FuelType      string            `json:"fuel_type,omitempty"`
	Price         *float64          `json:"price,omitempty"`
	Odometer      *int              `json:"odometer,omitempty"`
	Images        []string          `json:"images,omitempty"`
	Badges        []string          `json:"badges,omitempty"`
	CarfaxBadges  []string          `json:"carfax_badges,omitempty"`
	Description   string            `json:"description,omitempty"`
	VDPContent    string            `json:"vdp_content,omitempty"`
	Highlights    []string          `json:"highlights,omitempty"`
	TechSpecs     map[string]string `json:"tech_specs,omitempty"`
}

// ScrapedVehicle is one listing as produced by a source adapter. It is never
// persisted directly.
type ScrapedVehicle struct {
	Source       Source `json:"source"`
	DealershipID string `json:"dealership_id"`
	Attributes

	VIN         string `json:"vin,omitempty"`
	StockNumber string `json:"stock_number,omitempty"`
	// ListingURL is the dealer detail page URL for primary listings and the
	// listing page on the secondary site otherwise.
	ListingURL string `json:"listing_url,omitempty"`
	DealRating string `json:"deal_rating,omitempty"`
}

// Ref returns the best available human reference for log lines.
func (v ScrapedVehicle) Ref() string {
	switch {
	case v.VIN != "":
		return v.VIN
	case v.StockNumber != "":
		return v.StockNumber
	default:
		return v.ListingURL
	}
}

// VehicleRecord is the canonical, persisted vehicle.
type VehicleRecord struct {
	ID           string `json:"id"`
	DealershipID string `json:"dealership_id"`
	Attributes

	VIN          string `json:"vin,omitempty"`
	StockNumber  string `json:"stock_number,omitempty"`
	DealerVDPURL string `json:"dealer_vdp_url,omitempty"`

	LocalImages   []string   `json:"local_images,omitempty"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`

	// Enrichment-only fields written by the cross-source pass.
	DealRating       string   `json:"deal_rating,omitempty"`
	CrossSourcePrice *float64 `json:"cross_source_price,omitempty"`
	CrossSourceURL   string   `json:"cross_source_url,omitempty"`
	// CrossSourceImages are marketplace photos missing from Images.
	CrossSourceImages []string `json:"cross_source_images,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate slices and maps freely.
func (r VehicleRecord) Clone() VehicleRecord {
	out := r
	out.Price = clonePtr(r.Price)
	out.Odometer = clonePtr(r.Odometer)
	out.CrossSourcePrice = clonePtr(r.CrossSourcePrice)
	out.LastScrapedAt = clonePtr(r.LastScrapedAt)
	out.Images = cloneSlice(r.Images)
	out.Badges = cloneSlice(r.Badges)
	out.CarfaxBadges = cloneSlice(r.CarfaxBadges)
	out.Highlights = cloneSlice(r.Highlights)
	out.LocalImages = cloneSlice(r.LocalImages)
	out.CrossSourceImages = cloneSlice(r.CrossSourceImages)
	if r.TechSpecs != nil {
		out.TechSpecs = make(map[string]string, len(r.TechSpecs))
		for k, v := range r.TechSpecs {
			out.TechSpecs[k] = v
		}
	}
	return out
}

// Ref returns the best available human reference for log lines.
func (r VehicleRecord) Ref() string {
	switch {
	case r.VIN != "":
		return r.VIN
	case r.StockNumber != "":
		return r.StockNumber
	default:
		return r.DealerVDPURL
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneSlice(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
