// Package webclient fetches inventory pages and images for source adapters
// and the image uploader.
package webclient

import (
	"context"
	"net/http"
	"time"
)

// WebClient performs HTTP-like requests. Backends may render pages in a
// browser before returning the body.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)
	Get(ctx context.Context, url string) (*Response, error)
	Close() error
}

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
	// Options carries backend-specific switches, e.g. "wait_selector" for chromedp.
	Options map[string]string
}

type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r != nil && r.StatusCode >= 200 && r.StatusCode < 300 }
