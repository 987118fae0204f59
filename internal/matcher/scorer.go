package matcher

import (
	"fmt"
	"math"
	"strings"

	"github.com/raysh454/lotsync/internal/model"
	"github.com/raysh454/lotsync/internal/utils"
)

// Tier awards Points when two readings differ by at most Within.
type Tier struct {
	Within float64 `yaml:"within"`
	Points int     `yaml:"points"`
}

// ScoreWeights configure cross-source scoring. Make, model and year are
// required; odometer (km) and price tiers are checked in order and a
// reading outside every tier disqualifies the pair.
type ScoreWeights struct {
	Make          int    `yaml:"make"`
	Model         int    `yaml:"model"`
	Year          int    `yaml:"year"`
	OdometerTiers []Tier `yaml:"odometer_tiers"`
	PriceTiers    []Tier `yaml:"price_tiers"`
	MinScore      int    `yaml:"min_score"`
	HighScore     int    `yaml:"high_score"`
}

// DefaultWeights returns the production scoring table.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		Make:  25,
		Model: 25,
		Year:  25,
		OdometerTiers: []Tier{
			{Within: 1000, Points: 15},
			{Within: 5000, Points: 10},
			{Within: 10000, Points: 5},
		},
		PriceTiers: []Tier{
			{Within: 1000, Points: 10},
			{Within: 3000, Points: 5},
		},
		MinScore:  60,
		HighScore: 75,
	}
}

// Scorer matches secondary-source listings, which never share detail page
// URLs with the dealer site, against canonical records.
type Scorer struct {
	w ScoreWeights
}

// NewScorer returns a Scorer using w.
func NewScorer(w ScoreWeights) *Scorer {
	return &Scorer{w: w}
}

// Weights returns the scorer's table.
func (s *Scorer) Weights() ScoreWeights { return s.w }

// Score rates how likely c describes rec. ok is false when a required field
// differs or a known reading falls outside every tier.
func (s *Scorer) Score(rec model.VehicleRecord, c model.ScrapedVehicle) (score int, ok bool, reason string) {
	if rec.Year <= 0 || rec.Year != c.Year {
		return 0, false, fmt.Sprintf("year %d != %d", c.Year, rec.Year)
	}
	if mk := utils.Token(rec.Make); mk == "" || mk != utils.Token(c.Make) {
		return 0, false, fmt.Sprintf("make %q != %q", c.Make, rec.Make)
	}
	if md := utils.Token(rec.Model); md == "" || md != utils.Token(c.Model) {
		return 0, false, fmt.Sprintf("model %q != %q", c.Model, rec.Model)
	}
	score = s.w.Make + s.w.Model + s.w.Year
	parts := []string{fmt.Sprintf("ymm=%d", score)}

	if rec.Odometer != nil && c.Odometer != nil && *rec.Odometer > 0 && *c.Odometer > 0 {
		pts, hit := tierPoints(s.w.OdometerTiers, math.Abs(float64(*rec.Odometer-*c.Odometer)))
		if !hit {
			return 0, false, fmt.Sprintf("odometer %d too far from %d", *c.Odometer, *rec.Odometer)
		}
		score += pts
		parts = append(parts, fmt.Sprintf("odometer=+%d", pts))
	}
	if rec.Price != nil && c.Price != nil && *rec.Price > 0 && *c.Price > 0 {
		pts, hit := tierPoints(s.w.PriceTiers, math.Abs(*rec.Price-*c.Price))
		if !hit {
			return 0, false, fmt.Sprintf("price %.0f too far from %.0f", *c.Price, *rec.Price)
		}
		score += pts
		parts = append(parts, fmt.Sprintf("price=+%d", pts))
	}
	return score, true, strings.Join(parts, " ")
}

// Classify maps a score to a confidence; accepted is false below MinScore.
func (s *Scorer) Classify(score int) (model.Confidence, bool) {
	switch {
	case score >= s.w.HighScore:
		return model.ConfidenceHigh, true
	case score >= s.w.MinScore:
		return model.ConfidenceMedium, true
	default:
		return model.ConfidenceNone, false
	}
}

// Best picks the highest scoring candidate not yet in used. It returns -1
// when nothing clears MinScore. Ties keep the earlier candidate.
func (s *Scorer) Best(rec model.VehicleRecord, candidates []model.ScrapedVehicle, used map[int]bool) (int, model.MatchResult) {
	best, bestScore, bestReason := -1, -1, ""
	for i, c := range candidates {
		if used[i] {
			continue
		}
		score, ok, reason := s.Score(rec, c)
		if !ok {
			continue
		}
		if score > bestScore {
			best, bestScore, bestReason = i, score, reason
		}
	}
	if best < 0 {
		return -1, model.NoMatch("no candidate shares year/make/model within tolerances")
	}
	conf, accepted := s.Classify(bestScore)
	if !accepted {
		return -1, model.MatchResult{
			Type:       model.MatchNone,
			Confidence: model.ConfidenceNone,
			Score:      bestScore,
			Rationale:  fmt.Sprintf("best score %d below %d (%s)", bestScore, s.w.MinScore, bestReason),
		}
	}
	return best, model.MatchResult{
		MatchedID:  rec.ID,
		Type:       model.MatchAttributeScore,
		Confidence: conf,
		Score:      bestScore,
		Rationale:  bestReason,
	}
}

func tierPoints(tiers []Tier, delta float64) (int, bool) {
	for _, t := range tiers {
		if delta <= t.Within {
			return t.Points, true
		}
	}
	return 0, false
}
