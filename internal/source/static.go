package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/raysh454/lotsync/internal/model"
)

// Static serves fixed pages of listings. It backs replays of captured
// inventories and tests.
type Static struct {
	source model.Source
	pages  [][]model.ScrapedVehicle
	// Broken marks positions (page 1-based, index 0-based) whose listing
	// fails extraction.
	Broken map[model.Cursor]error
}

// NewStatic returns an adapter over pages.
func NewStatic(src model.Source, pages ...[]model.ScrapedVehicle) *Static {
	return &Static{source: src, pages: pages, Broken: map[model.Cursor]error{}}
}

// LoadStaticFile reads a JSON file holding an array of pages, each an array
// of listings.
func LoadStaticFile(path string, src model.Source) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read static source: %w", err)
	}
	var pages [][]model.ScrapedVehicle
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("decode static source %s: %w", path, err)
	}
	return NewStatic(src, pages...), nil
}

func (s *Static) Source() model.Source { return s.source }

// Open positions the iterator at from.
func (s *Static) Open(ctx context.Context, dealershipID string, from model.Cursor) (Iterator, error) {
	page := from.Page
	if page < 1 {
		page = 1
	}
	return &staticIterator{s: s, dealershipID: dealershipID, page: page, index: from.Index}, nil
}

type staticIterator struct {
	s            *Static
	dealershipID string
	page, index  int
}

func (it *staticIterator) Next(ctx context.Context) (Listing, bool, error) {
	if err := ctx.Err(); err != nil {
		return Listing{}, false, err
	}
	for it.page <= len(it.s.pages) && it.index >= len(it.s.pages[it.page-1]) {
		it.page++
		it.index = 0
	}
	if it.page > len(it.s.pages) {
		return Listing{}, false, nil
	}

	pos := model.Cursor{Page: it.page, Index: it.index}
	v := it.s.pages[it.page-1][it.index]
	it.index++

	v.DealershipID = it.dealershipID
	if v.Source == "" {
		v.Source = it.s.source
	}
	l := Listing{Vehicle: v, Cursor: model.Cursor{Page: it.page, Index: it.index}}
	if err, broken := it.s.Broken[pos]; broken {
		l.Err = err
	}
	return l, true, nil
}

func (it *staticIterator) Close() error { return nil }
