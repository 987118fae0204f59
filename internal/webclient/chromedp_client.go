package webclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/lotsync/internal/logging"
)

// ChromeDPClient renders pages in headless Chrome. Dealer sites that build
// their inventory grid client-side need it. Only GET is supported.
type ChromeDPClient struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
	idleAfter   time.Duration
	timeout     time.Duration
	logger      logging.Logger

	startOnce sync.Once
	startErr  error
}

// NewChromedpClient starts a browser allocator. The browser process itself is
// launched lazily on the first request.
func NewChromedpClient(cfg Config, logger logging.Logger) (*ChromeDPClient, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.Headless != nil && !*cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	idle := cfg.IdleAfter
	if idle <= 0 {
		idle = 2 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	return &ChromeDPClient{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
		idleAfter:   idle,
		timeout:     timeout,
		logger:      logger.With(logging.Field{Key: "backend", Value: "chromedp"}),
	}, nil
}

// waitNetworkIdle returns a channel closed once no request has been in
// flight for idleAfter.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) <-chan struct{} {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timer *time.Timer
	var timerMutex sync.Mutex
	var once sync.Once

	startTimer := func() {
		timerMutex.Lock()
		defer timerMutex.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) <= 0 {
				once.Do(func() { close(idleChan) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&activeReqs, -1) <= 0 {
				startTimer()
			}
		}
	})
	// A page served from cache may never emit network events.
	startTimer()

	return idleChan
}

// Do navigates to req.URL, waits for the network to go idle and returns the
// rendered document.
func (cdc *ChromeDPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if m := strings.ToUpper(req.Method); m != "" && m != http.MethodGet {
		return nil, fmt.Errorf("chromedp backend supports GET only, got %s", m)
	}

	// Launch the browser once so every request shares it as a new tab.
	cdc.startOnce.Do(func() { cdc.startErr = chromedp.Run(cdc.browserCtx) })
	if cdc.startErr != nil {
		return nil, fmt.Errorf("chromedp start browser: %w", cdc.startErr)
	}

	tabCtx, cancelTab := chromedp.NewContext(cdc.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, cdc.timeout)
	defer cancelTimeout()

	// Tie the tab to the caller's context as well.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var status int64
	chromedp.ListenTarget(tabCtx, func(ev any) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument && atomic.LoadInt64(&status) == 0 {
			atomic.StoreInt64(&status, e.Response.Status)
		}
	})
	idle := waitNetworkIdle(tabCtx, cdc.idleAfter)

	actions := []chromedp.Action{network.Enable(), chromedp.Navigate(req.URL)}
	if sel := req.Options["wait_selector"]; sel != "" {
		actions = append(actions, chromedp.WaitReady(sel))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		cdc.logger.Warn("chromedp navigate failed",
			logging.Field{Key: "url", Value: req.URL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("chromedp navigate: %w", err)
	}

	select {
	case <-idle:
	case <-tabCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("chromedp wait idle: %w", tabCtx.Err())
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html)); err != nil {
		return nil, fmt.Errorf("chromedp read html: %w", err)
	}

	code := int(atomic.LoadInt64(&status))
	if code == 0 {
		code = http.StatusOK
	}
	return &Response{
		Request:    req,
		Headers:    http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte(html),
		StatusCode: code,
		FetchedAt:  time.Now(),
	}, nil
}

func (cdc *ChromeDPClient) Get(ctx context.Context, url string) (*Response, error) {
	return cdc.Do(ctx, &Request{Method: http.MethodGet, URL: url})
}

func (cdc *ChromeDPClient) Close() error {
	cdc.cancel()
	cdc.allocCancel()
	return nil
}
