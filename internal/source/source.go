// Package source turns an inventory source into an ordered, resumable stream
// of scraped listings.
package source

import (
	"context"
	"errors"

	"github.com/raysh454/lotsync/internal/model"
)

var (
	// ErrTimeout ends an invocation early. The pass is not resumed from it.
	ErrTimeout = errors.New("source timed out")
	// ErrUnknownKind is returned for an unsupported adapter kind.
	ErrUnknownKind = errors.New("unknown source kind")
)

// Listing is one item of an adapter's output. Cursor is the position just
// past this listing, so reopening the adapter at it yields the next one.
// A non-nil Err marks a listing that could not be extracted.
type Listing struct {
	Vehicle model.ScrapedVehicle
	Cursor  model.Cursor
	Err     error
}

// Adapter produces the listings of one source for a dealership in a stable
// order.
type Adapter interface {
	Source() model.Source
	Open(ctx context.Context, dealershipID string, from model.Cursor) (Iterator, error)
}

// Iterator walks an adapter's output. ok is false once the source is
// exhausted. A returned error is an adapter failure; per-listing problems
// are reported through Listing.Err instead.
type Iterator interface {
	Next(ctx context.Context) (l Listing, ok bool, err error)
	Close() error
}

// Drain reads the whole source from the start. Listings that failed to
// extract are returned separately.
func Drain(ctx context.Context, a Adapter, dealershipID string) (good []model.ScrapedVehicle, bad []Listing, err error) {
	it, err := a.Open(ctx, dealershipID, model.Cursor{})
	if err != nil {
		return nil, nil, err
	}
	defer it.Close()

	for {
		l, ok, err := it.Next(ctx)
		if err != nil {
			return good, bad, err
		}
		if !ok {
			return good, bad, nil
		}
		if l.Err != nil {
			bad = append(bad, l)
			continue
		}
		good = append(good, l.Vehicle)
	}
}
