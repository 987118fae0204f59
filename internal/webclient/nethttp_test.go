package webclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/lotsync/internal/testutil"
	"github.com/raysh454/lotsync/internal/webclient"
)

func newClient(t *testing.T, ts *httptest.Server, cfg webclient.Config) *webclient.NetHTTPClient {
	t.Helper()
	var hc *http.Client
	if ts != nil {
		hc = ts.Client()
	}
	client, err := webclient.NewNetHTTPClient(cfg, &testutil.DummyLogger{}, hc)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// ─── Do: real HTTP round-trip via httptest ──────────────────────────────

func TestNetHTTPClient_Do_GET_ReturnsBody(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom", "hello")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "response body")
	}))
	defer ts.Close()

	client := newClient(t, ts, webclient.Config{})
	resp, err := client.Do(context.Background(), &webclient.Request{Method: "GET", URL: ts.URL + "/test"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !resp.OK() {
		t.Errorf("expected 2xx, got %d", resp.StatusCode)
	}
	if string(resp.Body) != "response body" {
		t.Errorf("expected 'response body', got %q", resp.Body)
	}
	if resp.Headers.Get("X-Custom") != "hello" {
		t.Errorf("expected X-Custom header 'hello', got %q", resp.Headers.Get("X-Custom"))
	}
}

func TestNetHTTPClient_Do_SetsUserAgentAndForwardsHeaders(t *testing.T) {
	t.Parallel()
	var gotUA, gotAccept string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
	}))
	defer ts.Close()

	client := newClient(t, ts, webclient.Config{UserAgent: "lotsync-test"})
	_, err := client.Do(context.Background(), &webclient.Request{
		URL:     ts.URL,
		Headers: http.Header{"Accept": []string{"text/html"}},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotUA != "lotsync-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotAccept != "text/html" {
		t.Errorf("Accept = %q", gotAccept)
	}
}

func TestNetHTTPClient_Do_PropagatesStatusCode(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	resp, err := newClient(t, ts, webclient.Config{}).Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable || resp.OK() {
		t.Errorf("expected 503 not OK, got %d", resp.StatusCode)
	}
}

func TestNetHTTPClient_Do_NilRequest_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := newClient(t, nil, webclient.Config{}).Do(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil request")
	}
}

func TestNetHTTPClient_Do_ContextCanceled_ReturnsError(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := newClient(t, ts, webclient.Config{}).Get(ctx, ts.URL)
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if !strings.Contains(err.Error(), "http do") {
		t.Errorf("unexpected error: %v", err)
	}
}
