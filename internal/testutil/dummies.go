// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/raysh454/lotsync/internal/logging"
	"github.com/raysh454/lotsync/internal/model"
	"github.com/raysh454/lotsync/internal/source"
	"github.com/raysh454/lotsync/internal/store"
	"github.com/raysh454/lotsync/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// WarnCount returns how many warnings were logged.
func (l *DummyLogger) WarnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Warns)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// It returns Bodies[url] when set and "ok:<url>" otherwise, with status 200.
// Set FailURLs[url] = true to force an error for a specific URL.
type DummyWebClient struct {
	ResponseDelay time.Duration
	Bodies        map[string][]byte
	FailURLs      map[string]bool
	mu            sync.Mutex
	Requests      []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs != nil && d.FailURLs[req.URL] {
		return nil, errors.New("dummy fetch fail for " + req.URL)
	}

	body := []byte("ok:" + req.URL)
	if b, ok := d.Bodies[req.URL]; ok {
		body = b
	}
	return &webclient.Response{
		Request:    req,
		Body:       body,
		StatusCode: 200,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: "GET", URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

// RequestCount returns how many requests were made.
func (d *DummyWebClient) RequestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Requests)
}

// ─── Store ─────────────────────────────────────────────────────────────

// OpenStore opens a SQLite store in a temp dir and closes it on cleanup.
func OpenStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "lotsync.db"), &DummyLogger{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ErrInjected is returned by the flaky doubles.
var ErrInjected = errors.New("injected failure")

// FlakyStore wraps a VehicleStore and fails chosen writes.
type FlakyStore struct {
	store.VehicleStore
	// FailRefs fails Insert and Update of records whose VIN, stock number or
	// VDP URL is a key.
	FailRefs map[string]bool
	// FailDeletes fails deletion of these ids.
	FailDeletes map[string]bool
}

func (f *FlakyStore) failing(rec model.VehicleRecord) bool {
	for _, k := range []string{rec.VIN, rec.StockNumber, rec.DealerVDPURL} {
		if k != "" && f.FailRefs[k] {
			return true
		}
	}
	return false
}

func (f *FlakyStore) Insert(ctx context.Context, rec model.VehicleRecord) error {
	if f.failing(rec) {
		return ErrInjected
	}
	return f.VehicleStore.Insert(ctx, rec)
}

func (f *FlakyStore) Update(ctx context.Context, rec model.VehicleRecord) error {
	if f.failing(rec) {
		return ErrInjected
	}
	return f.VehicleStore.Update(ctx, rec)
}

func (f *FlakyStore) DeleteBatch(ctx context.Context, ids []string) (store.DeleteResult, error) {
	var pass []string
	failed := map[string]error{}
	for _, id := range ids {
		if f.FailDeletes[id] {
			failed[id] = ErrInjected
			continue
		}
		pass = append(pass, id)
	}
	res, err := f.VehicleStore.DeleteBatch(ctx, pass)
	if res.Failed == nil {
		res.Failed = map[string]error{}
	}
	for id, e := range failed {
		res.Failed[id] = e
	}
	return res, err
}

// FlakyCheckpoints wraps a CheckpointStore. After FailAfter successful
// saves every further save fails; a negative FailAfter never fails.
type FlakyCheckpoints struct {
	store.CheckpointStore
	FailAfter int

	mu    sync.Mutex
	saves int
}

func (f *FlakyCheckpoints) SaveCheckpoint(ctx context.Context, cp model.Checkpoint) error {
	f.mu.Lock()
	n := f.saves
	f.saves++
	f.mu.Unlock()
	if f.FailAfter >= 0 && n >= f.FailAfter {
		return ErrInjected
	}
	return f.CheckpointStore.SaveCheckpoint(ctx, cp)
}

// ─── Source ────────────────────────────────────────────────────────────

// FaultyAdapter wraps an adapter and ends each iteration with Err after
// FailAfter listings. A negative FailAfter never fails.
type FaultyAdapter struct {
	source.Adapter
	FailAfter int
	Err       error
}

func (f *FaultyAdapter) Open(ctx context.Context, dealershipID string, from model.Cursor) (source.Iterator, error) {
	it, err := f.Adapter.Open(ctx, dealershipID, from)
	if err != nil {
		return nil, err
	}
	return &faultyIterator{Iterator: it, left: f.FailAfter, err: f.Err}, nil
}

type faultyIterator struct {
	source.Iterator
	left int
	err  error
}

func (it *faultyIterator) Next(ctx context.Context) (source.Listing, bool, error) {
	if it.left == 0 {
		return source.Listing{}, false, it.err
	}
	it.left--
	return it.Iterator.Next(ctx)
}

// ─── Images ────────────────────────────────────────────────────────────

// RecordingUploader implements images.Uploader. It returns one hosted URL
// per source URL, or Err when set.
type RecordingUploader struct {
	Err   error
	mu    sync.Mutex
	Calls map[string][]string
}

func (u *RecordingUploader) Upload(_ context.Context, vehicleID string, urls []string) ([]string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.Calls == nil {
		u.Calls = map[string][]string{}
	}
	u.Calls[vehicleID] = append([]string(nil), urls...)
	if u.Err != nil {
		return nil, u.Err
	}
	out := make([]string, len(urls))
	for i := range urls {
		out[i] = "/images/" + vehicleID + "/" + string(rune('a'+i))
	}
	return out, nil
}

// CallCount returns how many vehicles were uploaded.
func (u *RecordingUploader) CallCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.Calls)
}
