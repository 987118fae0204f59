// Package matcher decides whether a scraped listing is a vehicle the
// dealership already has. Identity anchors (detail page URL, then real VIN)
// are tried before a year/make/model fallback that only ever pairs records
// lacking both anchors. A miss is a normal outcome, not an error.
package matcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raysh454/lotsync/internal/model"
	"github.com/raysh454/lotsync/internal/utils"
)

// ErrMalformedSet is returned when the existing set violates its contract.
var ErrMalformedSet = errors.New("malformed existing set")

// Options configure placeholder VIN detection.
type Options struct {
	// PlaceholderPrefixes are sentinel prefixes sources use when no VIN was
	// scraped. Compared case-insensitively.
	PlaceholderPrefixes []string
	// MinVINLength is the shortest value treated as a real VIN.
	MinVINLength int
}

// DefaultOptions returns the placeholder rules used in production.
func DefaultOptions() Options {
	return Options{
		PlaceholderPrefixes: []string{"NOVIN", "NO-VIN", "TEMP", "TMP-", "PENDING", "UNKNOWN", "STK-"},
		MinVINLength:        11,
	}
}

// Matcher resolves candidates against an ExistingSet.
type Matcher struct {
	opts Options
}

// New returns a Matcher. Zero-valued options fall back to DefaultOptions.
func New(opts Options) *Matcher {
	def := DefaultOptions()
	if opts.PlaceholderPrefixes == nil {
		opts.PlaceholderPrefixes = def.PlaceholderPrefixes
	}
	if opts.MinVINLength <= 0 {
		opts.MinVINLength = def.MinVINLength
	}
	return &Matcher{opts: opts}
}

// IsPlaceholderVIN reports whether vin is missing or a sentinel.
func (m *Matcher) IsPlaceholderVIN(vin string) bool {
	v := strings.ToUpper(strings.TrimSpace(vin))
	if v == "" || len(v) < m.opts.MinVINLength {
		return true
	}
	for _, p := range m.opts.PlaceholderPrefixes {
		if p != "" && strings.HasPrefix(v, strings.ToUpper(p)) {
			return true
		}
	}
	// 00000000000000000, XXXXXXXXXXXXXXXXX
	return strings.Count(v, v[:1]) == len(v)
}

// Match returns the existing record c represents, if any.
func (m *Matcher) Match(c model.ScrapedVehicle, set *ExistingSet) (model.MatchResult, error) {
	if set == nil {
		return model.MatchResult{}, fmt.Errorf("%w: nil set", ErrMalformedSet)
	}
	if set.dealershipID == "" {
		return model.MatchResult{}, fmt.Errorf("%w: empty dealership scope", ErrMalformedSet)
	}
	if c.DealershipID != "" && c.DealershipID != set.dealershipID {
		return model.MatchResult{}, fmt.Errorf("%w: candidate dealership %q outside scope %q",
			ErrMalformedSet, c.DealershipID, set.dealershipID)
	}

	urlKey := utils.ListingKey(c.ListingURL)
	if urlKey != "" {
		if e, ok := set.findByURL(urlKey); ok {
			return model.MatchResult{
				MatchedID:  e.rec.ID,
				Type:       model.MatchIdentityAnchor,
				Confidence: model.ConfidenceHigh,
				Anchor:     "url",
				Rationale:  fmt.Sprintf("listing url %s matches %s", urlKey, e.urlKey),
			}, nil
		}
	}

	realVIN := !m.IsPlaceholderVIN(c.VIN)
	if realVIN {
		for _, e := range set.entries {
			if m.IsPlaceholderVIN(e.rec.VIN) {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(e.rec.VIN), strings.TrimSpace(c.VIN)) {
				return model.MatchResult{
					MatchedID:  e.rec.ID,
					Type:       model.MatchIdentityAnchor,
					Confidence: model.ConfidenceHigh,
					Anchor:     "vin",
					Rationale:  "vin " + strings.ToUpper(c.VIN) + " matches",
				}, nil
			}
		}
	}

	if urlKey != "" || realVIN {
		return model.NoMatch("anchored candidate has no counterpart"), nil
	}
	if c.Year <= 0 || strings.TrimSpace(c.Make) == "" || strings.TrimSpace(c.Model) == "" {
		return model.NoMatch("no anchors and incomplete year/make/model"), nil
	}

	// Entries are in creation order, so the first hit is the earliest record.
	for _, e := range set.entries {
		if e.urlKey != "" || !m.IsPlaceholderVIN(e.rec.VIN) {
			continue
		}
		if e.rec.Year == c.Year && utils.FoldEqual(e.rec.Make, c.Make) && utils.FoldEqual(e.rec.Model, c.Model) {
			return model.MatchResult{
				MatchedID:  e.rec.ID,
				Type:       model.MatchAttributeScore,
				Confidence: model.ConfidenceLow,
				Anchor:     "year_make_model",
				Rationale:  fmt.Sprintf("unanchored %d %s %s matches unanchored record", c.Year, c.Make, c.Model),
			}, nil
		}
	}
	return model.NoMatch("no unanchored record with same year/make/model"), nil
}

// findByURL prefers an exact key over a path-prefix hit.
func (s *ExistingSet) findByURL(key string) (entry, bool) {
	for _, e := range s.entries {
		if e.urlKey == key {
			return e, true
		}
	}
	for _, e := range s.entries {
		if utils.SameListing(e.urlKey, key) {
			return e, true
		}
	}
	return entry{}, false
}
