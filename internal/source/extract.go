package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/raysh454/lotsync/internal/model"
)

var errNoIdentity = errors.New("listing has no url, vin or year/make/model")

// vehicleTypes are the schema.org types read as inventory.
var vehicleTypes = map[string]bool{
	"vehicle":      true,
	"car":          true,
	"motorvehicle": true,
	"motorcycle":   true,
}

// extracted is one vehicle object or one unreadable block, in document
// order.
type extracted struct {
	vehicle model.ScrapedVehicle
	err     error
}

// extractListings reads schema.org vehicles from the page's JSON-LD blocks.
// A block that is not valid JSON yields a single failed entry so later
// listings keep their positions.
func extractListings(body []byte, pageURL string) ([]extracted, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, _ := url.Parse(pageURL)

	var out []extracted
	doc.Find(`script[type="application/ld+json"]`).Each(func(i int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			out = append(out, extracted{err: fmt.Errorf("json-ld block %d: %w", i, err)})
			return
		}
		for _, obj := range flattenGraph(v) {
			if !isVehicle(obj) {
				continue
			}
			sv := toVehicle(obj, base)
			var verr error
			if sv.ListingURL == "" && sv.VIN == "" && (sv.Year == 0 || sv.Make == "" || sv.Model == "") {
				verr = errNoIdentity
			}
			out = append(out, extracted{vehicle: sv, err: verr})
		}
	})
	return out, nil
}

// flattenGraph returns the objects of a JSON-LD value: a single object, an
// array, an @graph, or an ItemList of them.
func flattenGraph(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, e := range t {
			out = append(out, flattenGraph(e)...)
		}
		return out
	case map[string]any:
		if g, ok := t["@graph"]; ok {
			return flattenGraph(g)
		}
		if items, ok := t["itemListElement"]; ok {
			var out []map[string]any
			for _, e := range asSlice(items) {
				if m, ok := e.(map[string]any); ok {
					if inner, ok := m["item"]; ok {
						out = append(out, flattenGraph(inner)...)
						continue
					}
					out = append(out, m)
				}
			}
			return out
		}
		return []map[string]any{t}
	}
	return nil
}

func isVehicle(obj map[string]any) bool {
	for _, t := range asSlice(obj["@type"]) {
		if s, ok := t.(string); ok && vehicleTypes[strings.ToLower(s)] {
			return true
		}
	}
	return false
}

func toVehicle(obj map[string]any, base *url.URL) model.ScrapedVehicle {
	var sv model.ScrapedVehicle
	sv.ListingURL = resolve(base, str(obj["url"]))
	sv.VIN = strings.TrimSpace(str(obj["vehicleIdentificationNumber"]))
	sv.StockNumber = firstNonEmpty(str(obj["sku"]), str(obj["stockNumber"]))

	a := &sv.Attributes
	a.Year = year(firstNonEmpty(str(obj["vehicleModelDate"]), str(obj["modelDate"]), str(obj["productionDate"])))
	a.Make = firstNonEmpty(name(obj["brand"]), name(obj["manufacturer"]))
	a.Model = name(obj["model"])
	a.Trim = str(obj["vehicleConfiguration"])
	a.BodyType = name(obj["bodyType"])
	a.ExteriorColor = str(obj["color"])
	a.InteriorColor = str(obj["vehicleInteriorColor"])
	a.Transmission = name(obj["vehicleTransmission"])
	a.Drivetrain = name(obj["driveWheelConfiguration"])
	a.FuelType = name(obj["fuelType"])
	a.Description = str(obj["description"])

	if odo, ok := number(obj["mileageFromOdometer"]); ok && odo > 0 {
		a.Odometer = model.Ptr(int(odo))
	}
	for _, o := range asSlice(obj["offers"]) {
		if p, ok := number(o); ok && p > 0 {
			a.Price = model.Ptr(p)
			break
		}
	}
	for _, img := range asSlice(obj["image"]) {
		if u := resolve(base, name(img)); u != "" {
			a.Images = append(a.Images, u)
		}
	}

	for _, p := range asSlice(obj["additionalProperty"]) {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		key, val := strings.ToLower(str(m["name"])), str(m["value"])
		if key == "" || val == "" {
			continue
		}
		switch key {
		case "deal_rating", "dealrating":
			sv.DealRating = val
		case "badge":
			a.Badges = append(a.Badges, val)
		case "carfax", "carfax_badge":
			a.CarfaxBadges = append(a.CarfaxBadges, val)
		case "highlight":
			a.Highlights = append(a.Highlights, val)
		case "vdp_content":
			a.VDPContent = val
		default:
			if a.TechSpecs == nil {
				a.TechSpecs = map[string]string{}
			}
			a.TechSpecs[str(m["name"])] = val
		}
	}
	return sv
}

func asSlice(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}

// name reads a plain string or the name/url of a nested object.
func name(v any) string {
	if m, ok := v.(map[string]any); ok {
		return firstNonEmpty(str(m["name"]), str(m["url"]), str(m["contentUrl"]))
	}
	return str(v)
}

// number reads a number, a numeric string, or the value/price of a nested
// QuantitativeValue or Offer.
func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		clean := strings.NewReplacer(",", "", "$", "", " ", "").Replace(t)
		f, err := strconv.ParseFloat(clean, 64)
		return f, err == nil
	case map[string]any:
		for _, k := range []string{"value", "price"} {
			if f, ok := number(t[k]); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func year(s string) int {
	if len(s) < 4 {
		return 0
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil || y < 1900 {
		return 0
	}
	return y
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
