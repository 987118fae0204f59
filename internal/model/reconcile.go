package model

import (
	"fmt"
	"time"
)

// Cursor is a position in a source adapter's ordered output. The zero value
// is the beginning of the source.
type Cursor struct {
	Page  int `json:"page"`
	Index int `json:"index"`
}

func (c Cursor) String() string { return fmt.Sprintf("%d:%d", c.Page, c.Index) }

// IsZero reports whether c points at the start of the source.
func (c Cursor) IsZero() bool { return c.Page == 0 && c.Index == 0 }

// Checkpoint is the durable progress marker of a dealership's pass.
type Checkpoint struct {
	DealershipID  string    `json:"dealership_id"`
	Cursor        Cursor    `json:"cursor"`
	PassStartedAt time.Time `json:"pass_started_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Resumable     bool      `json:"resumable"`

	// Baseline is the record count at pass start; cleanup gates use it.
	Baseline int `json:"baseline"`

	// Running counts carried across resumes.
	Observed  int `json:"observed"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
}

// MatchType tells how a match was established.
type MatchType string

const (
	MatchIdentityAnchor MatchType = "identity-anchor"
	MatchAttributeScore MatchType = "attribute-score"
	MatchNone           MatchType = "none"
)

// Confidence grades a match.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// MatchResult is the matcher's verdict for one candidate. It is used for
// logging and counting only.
type MatchResult struct {
	MatchedID  string     `json:"matched_id,omitempty"`
	Type       MatchType  `json:"type"`
	Confidence Confidence `json:"confidence"`
	Anchor     string     `json:"anchor,omitempty"`
	Score      int        `json:"score,omitempty"`
	Rationale  string     `json:"rationale,omitempty"`
}

// Matched reports whether an existing record was selected.
func (m MatchResult) Matched() bool { return m.MatchedID != "" }

// NoMatch is the result for a candidate with no counterpart.
func NoMatch(rationale string) MatchResult {
	return MatchResult{Type: MatchNone, Confidence: ConfidenceNone, Rationale: rationale}
}

// PassState is a dealership pass's lifecycle state.
type PassState string

const (
	StateIdle        PassState = "idle"
	StateResuming    PassState = "resuming"
	StateScraping    PassState = "scraping"
	StateCompleted   PassState = "completed"
	StateInterrupted PassState = "interrupted"
	StateFailed      PassState = "failed"
	StateCanceled    PassState = "canceled"
)

// CleanupStatus reports what the guarded cleanup did.
type CleanupStatus string

const (
	CleanupRan             CleanupStatus = "ran"
	CleanupNoop            CleanupStatus = "noop"
	CleanupSkippedCoverage CleanupStatus = "skipped_coverage"
	CleanupCapped          CleanupStatus = "capped"
	CleanupNotRun          CleanupStatus = "not_run"
)

// CleanupReport is the outcome of one cleanup run.
type CleanupReport struct {
	Status   CleanupStatus `json:"status"`
	Existing int           `json:"existing"`
	Observed int           `json:"observed"`
	Stale    int           `json:"stale"`
	Deleted  int           `json:"deleted"`
	Failed   int           `json:"failed"`
	Deferred int           `json:"deferred"`
	Reason   string        `json:"reason,omitempty"`
}

// Summary is returned by a reconciliation pass.
type Summary struct {
	DealershipID  string         `json:"dealership_id"`
	State         PassState      `json:"state"`
	Inserted      int            `json:"inserted"`
	Updated       int            `json:"updated"`
	Unchanged     int            `json:"unchanged"`
	Failed        int            `json:"failed"`
	Total         int            `json:"total"`
	Inventory     int            `json:"inventory"`
	Resumed       bool           `json:"resumed"`
	Interrupted   bool           `json:"interrupted"`
	Cleanup       *CleanupReport `json:"cleanup,omitempty"`
	PassStartedAt time.Time      `json:"pass_started_at"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	Error         string         `json:"error,omitempty"`
}

// EnrichSummary is returned by a cross-source enrichment pass.
type EnrichSummary struct {
	DealershipID string    `json:"dealership_id"`
	Source       Source    `json:"source"`
	Candidates   int       `json:"candidates"`
	Matched      int       `json:"matched"`
	High         int       `json:"high"`
	Medium       int       `json:"medium"`
	Unmatched    int       `json:"unmatched"`
	Failed       int       `json:"failed"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Dealership is a configured rooftop whose inventory is reconciled.
type Dealership struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	WebsiteURL string     `json:"website_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
}

// RunRecord is one persisted pass in the run history.
type RunRecord struct {
	ID           string    `json:"id"`
	DealershipID string    `json:"dealership_id"`
	Kind         string    `json:"kind"`
	State        PassState `json:"state"`
	Summary      string    `json:"summary"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}
