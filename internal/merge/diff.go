package merge

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/raysh454/lotsync/internal/model"
)

// FieldChange is one audited difference between two versions of a record.
type FieldChange struct {
	Field  string `json:"field"`
	Before string `json:"before"`
	After  string `json:"after"`
	// EditDistance is the Levenshtein distance for long text fields.
	EditDistance int `json:"edit_distance,omitempty"`
}

// Diff reports the fields that differ between before and after. Bookkeeping
// timestamps are ignored, so an empty result means the merge was a no-op.
func Diff(before, after model.VehicleRecord) []FieldChange {
	var changes []FieldChange
	str := func(field, b, a string) {
		if b != a {
			changes = append(changes, FieldChange{Field: field, Before: b, After: a})
		}
	}
	text := func(field, b, a string) {
		if b == a {
			return
		}
		changes = append(changes, FieldChange{
			Field:        field,
			Before:       abbreviate(b),
			After:        abbreviate(a),
			EditDistance: levenshtein(b, a),
		})
	}

	str("year", itoa(before.Year), itoa(after.Year))
	str("make", before.Make, after.Make)
	str("model", before.Model, after.Model)
	str("trim", before.Trim, after.Trim)
	str("body_type", before.BodyType, after.BodyType)
	str("exterior_color", before.ExteriorColor, after.ExteriorColor)
	str("interior_color", before.InteriorColor, after.InteriorColor)
	str("transmission", before.Transmission, after.Transmission)
	str("drivetrain", before.Drivetrain, after.Drivetrain)
	str("fuel_type", before.FuelType, after.FuelType)
	str("price", floatPtr(before.Price), floatPtr(after.Price))
	str("odometer", intPtr(before.Odometer), intPtr(after.Odometer))
	str("images", strings.Join(before.Images, ","), strings.Join(after.Images, ","))
	str("badges", strings.Join(before.Badges, ","), strings.Join(after.Badges, ","))
	str("carfax_badges", strings.Join(before.CarfaxBadges, ","), strings.Join(after.CarfaxBadges, ","))
	str("highlights", strings.Join(before.Highlights, "|"), strings.Join(after.Highlights, "|"))
	str("tech_specs", specs(before.TechSpecs), specs(after.TechSpecs))
	text("description", before.Description, after.Description)
	text("vdp_content", before.VDPContent, after.VDPContent)
	str("vin", before.VIN, after.VIN)
	str("stock_number", before.StockNumber, after.StockNumber)
	str("dealer_vdp_url", before.DealerVDPURL, after.DealerVDPURL)
	str("local_images", strings.Join(before.LocalImages, ","), strings.Join(after.LocalImages, ","))
	str("deal_rating", before.DealRating, after.DealRating)
	str("cross_source_price", floatPtr(before.CrossSourcePrice), floatPtr(after.CrossSourcePrice))
	str("cross_source_url", before.CrossSourceURL, after.CrossSourceURL)
	str("cross_source_images", strings.Join(before.CrossSourceImages, ","), strings.Join(after.CrossSourceImages, ","))
	return changes
}

func levenshtein(a, b string) int {
	dmp := diffmatchpatch.New()
	return dmp.DiffLevenshtein(dmp.DiffMain(a, b, false))
}

// abbreviate keeps the first 80 runes of s.
func abbreviate(s string) string {
	const max = 80
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + "…"
		}
		n++
	}
	return s
}

func itoa(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func floatPtr(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}

func intPtr(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func specs(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, m[k])
	}
	return strings.Join(parts, ";")
}
