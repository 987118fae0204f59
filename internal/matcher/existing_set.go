package matcher

import (
	"fmt"
	"sort"

	"github.com/raysh454/lotsync/internal/model"
	"github.com/raysh454/lotsync/internal/utils"
)

type entry struct {
	rec    model.VehicleRecord
	urlKey string
}

// ExistingSet is one dealership's canonical records as seen by the matcher.
// The orchestrator keeps it current with Put after every persisted write so a
// vehicle inserted mid-pass is visible to the next candidate.
type ExistingSet struct {
	dealershipID string
	entries      []entry
	byID         map[string]int
}

// NewExistingSet builds a set scoped to dealershipID. Every record must belong
// to that dealership.
func NewExistingSet(dealershipID string, records []model.VehicleRecord) (*ExistingSet, error) {
	if dealershipID == "" {
		return nil, fmt.Errorf("%w: empty dealership scope", ErrMalformedSet)
	}
	s := &ExistingSet{
		dealershipID: dealershipID,
		entries:      make([]entry, 0, len(records)),
		byID:         make(map[string]int, len(records)),
	}
	sorted := append([]model.VehicleRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	for _, rec := range sorted {
		if err := s.Put(rec); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DealershipID returns the set's scope.
func (s *ExistingSet) DealershipID() string { return s.dealershipID }

// Len returns the number of records in the set.
func (s *ExistingSet) Len() int { return len(s.entries) }

// Get returns a copy of the record with the given id.
func (s *ExistingSet) Get(id string) (model.VehicleRecord, bool) {
	i, ok := s.byID[id]
	if !ok {
		return model.VehicleRecord{}, false
	}
	return s.entries[i].rec.Clone(), true
}

// Put inserts or replaces a record. New records are appended, keeping
// creation order for earliest-wins tie breaks.
func (s *ExistingSet) Put(rec model.VehicleRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: record without id", ErrMalformedSet)
	}
	if rec.DealershipID != s.dealershipID {
		return fmt.Errorf("%w: record %s belongs to dealership %q, set is scoped to %q",
			ErrMalformedSet, rec.ID, rec.DealershipID, s.dealershipID)
	}
	e := entry{rec: rec.Clone(), urlKey: utils.ListingKey(rec.DealerVDPURL)}
	if i, ok := s.byID[rec.ID]; ok {
		s.entries[i] = e
		return nil
	}
	s.byID[rec.ID] = len(s.entries)
	s.entries = append(s.entries, e)
	return nil
}

// Remove drops a record from the set.
func (s *ExistingSet) Remove(id string) {
	i, ok := s.byID[id]
	if !ok {
		return
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	delete(s.byID, id)
	for j := i; j < len(s.entries); j++ {
		s.byID[s.entries[j].rec.ID] = j
	}
}

// Records returns copies of all records in creation order.
func (s *ExistingSet) Records() []model.VehicleRecord {
	out := make([]model.VehicleRecord, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.rec.Clone())
	}
	return out
}
