package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// PageRenderer returns the HTML of a page after client-side rendering
type PageRenderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
	Close()
}

// ChromeRenderer renders pages in tabs of one lazily started headless browser
type ChromeRenderer struct {
	userAgent string
	wait      time.Duration
	logger    arbor.ILogger

	mu              sync.Mutex
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
}

func NewChromeRenderer(userAgent string, wait time.Duration, logger arbor.ILogger) *ChromeRenderer {
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return &ChromeRenderer{userAgent: userAgent, wait: wait, logger: logger}
}

// Render opens pageURL in a new tab, waits for scripts to settle and returns the outer HTML
func (r *ChromeRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	browserCtx, err := r.browser()
	if err != nil {
		return "", err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()

	// Tie the tab to the caller's deadline and cancellation
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		tabCtx, cancelDeadline = context.WithDeadline(tabCtx, deadline)
		defer cancelDeadline()
	}

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(r.wait),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("render %s: %w", pageURL, err)
	}
	return html, nil
}

// Close shuts the browser down
func (r *ChromeRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCancel != nil {
		r.browserCancel()
		r.allocatorCancel()
		r.browserCtx, r.browserCancel, r.allocatorCancel = nil, nil, nil
	}
}

func (r *ChromeRenderer) browser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCtx != nil {
		return r.browserCtx, nil
	}

	start := time.Now()
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if r.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.userAgent))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	// Starts the browser process
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	r.browserCtx, r.browserCancel, r.allocatorCancel = browserCtx, browserCancel, allocatorCancel
	r.logger.Debug().Dur("startup_time", time.Since(start)).Msg("Headless browser started")
	return browserCtx, nil
}
