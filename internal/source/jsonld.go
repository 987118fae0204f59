package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/model"
	"github.com/raysh454/lotsync/internal/webclient"
)

// JSONLDConfig describes a paged inventory site.
type JSONLDConfig struct {
	// InventoryURL contains a {page} placeholder, e.g.
	// "https://dealer.example/inventory?page={page}".
	InventoryURL string
	FirstPage    int
	// MaxPages bounds a pass; 0 means until an empty page.
	MaxPages int
	// RPS limits page fetches per second; 0 means unlimited.
	RPS          float64
	WaitSelector string
	Source       model.Source
}

// JSONLD reads schema.org vehicles embedded in inventory pages.
type JSONLD struct {
	client  webclient.WebClient
	cfg     JSONLDConfig
	limiter *rate.Limiter
	logger  logging.Logger
}

// NewJSONLD validates cfg and returns the adapter.
func NewJSONLD(client webclient.WebClient, cfg JSONLDConfig, logger logging.Logger) (*JSONLD, error) {
	if client == nil {
		return nil, errors.New("jsonld source: webclient is nil")
	}
	if !strings.Contains(cfg.InventoryURL, "{page}") {
		return nil, fmt.Errorf("jsonld source: inventory url %q has no {page} placeholder", cfg.InventoryURL)
	}
	if cfg.FirstPage <= 0 {
		cfg.FirstPage = 1
	}
	if cfg.Source == "" {
		cfg.Source = model.SourceDealerSite
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	return &JSONLD{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger: logger.With(
			logging.Field{Key: "component", Value: "source"},
			logging.Field{Key: "source", Value: string(cfg.Source)}),
	}, nil
}

func (j *JSONLD) Source() model.Source { return j.cfg.Source }

// PageURL renders the inventory URL of a page.
func (j *JSONLD) PageURL(page int) string {
	return strings.ReplaceAll(j.cfg.InventoryURL, "{page}", strconv.Itoa(page))
}

// Open starts at from. Cursor pages count from 1 regardless of the site's
// own first page number.
func (j *JSONLD) Open(ctx context.Context, dealershipID string, from model.Cursor) (Iterator, error) {
	page := from.Page
	if page < 1 {
		page = 1
	}
	return &jsonldIterator{a: j, dealershipID: dealershipID, page: page, skip: from.Index}, nil
}

type jsonldIterator struct {
	a            *JSONLD
	dealershipID string

	page    int // cursor page of buf
	skip    int // entries of page already consumed before Open
	buf     []extracted
	pos     int
	fetched bool
	done    bool
}

func (it *jsonldIterator) Next(ctx context.Context) (Listing, bool, error) {
	for {
		if it.done {
			return Listing{}, false, nil
		}
		if it.fetched && it.pos < len(it.buf) {
			e := it.buf[it.pos]
			it.pos++
			v := e.vehicle
			v.DealershipID = it.dealershipID
			v.Source = it.a.cfg.Source
			return Listing{Vehicle: v, Cursor: model.Cursor{Page: it.page, Index: it.pos}, Err: e.err}, true, nil
		}
		if it.fetched {
			it.page++
			it.skip = 0
			it.fetched = false
		}
		if err := it.fetch(ctx); err != nil {
			return Listing{}, false, err
		}
	}
}

func (it *jsonldIterator) fetch(ctx context.Context) error {
	a := it.a
	if a.cfg.MaxPages > 0 && it.page > a.cfg.MaxPages {
		it.done = true
		return nil
	}
	pageURL := a.PageURL(a.cfg.FirstPage + it.page - 1)

	if err := a.limiter.Wait(ctx); err != nil {
		return classify(ctx, err)
	}
	req := &webclient.Request{Method: http.MethodGet, URL: pageURL}
	if a.cfg.WaitSelector != "" {
		req.Options = map[string]string{"wait_selector": a.cfg.WaitSelector}
	}
	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return classify(ctx, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound && it.page > 1:
		it.done = true
		return nil
	case !resp.OK():
		return fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	entries, err := extractListings(resp.Body, pageURL)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	a.logger.Debug("inventory page fetched",
		logging.Field{Key: "dealership_id", Value: it.dealershipID},
		logging.Field{Key: "page", Value: it.page},
		logging.Field{Key: "url", Value: pageURL},
		logging.Field{Key: "listings", Value: len(entries)})

	if len(entries) == 0 {
		it.done = true
		return nil
	}
	it.buf = entries
	it.pos = min(it.skip, len(entries))
	it.fetched = true
	return nil
}

func (it *jsonldIterator) Close() error { return nil }

// classify maps a fetch error to cancellation, timeout or adapter failure.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "would exceed context deadline") {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("fetch inventory page: %w", err)
}
