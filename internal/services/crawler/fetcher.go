package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/models"
)

const defaultMaxBodySize = 10 * 1024 * 1024

// FetchService downloads product pages and extracts candidate records from them
type FetchService struct {
	client   *http.Client
	limiter  *RateLimiter
	retry    *RetryPolicy
	renderer PageRenderer // nil unless JavaScript rendering is enabled
	config   common.CrawlerConfig
	logger   arbor.ILogger
}

// FetchOption customises a FetchService
type FetchOption func(*FetchService)

// WithRenderer renders pages in a browser instead of plain HTTP
func WithRenderer(renderer PageRenderer) FetchOption {
	return func(f *FetchService) { f.renderer = renderer }
}

// WithRetryPolicy replaces the default retry policy
func WithRetryPolicy(policy *RetryPolicy) FetchOption {
	return func(f *FetchService) { f.retry = policy }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) FetchOption {
	return func(f *FetchService) { f.client = client }
}

// NewFetchService creates a fetch service. A chromedp renderer is attached when
// enable_javascript is set and no renderer option was supplied.
func NewFetchService(config common.CrawlerConfig, limiter *RateLimiter, logger arbor.ILogger, opts ...FetchOption) *FetchService {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = defaultMaxBodySize
	}
	if limiter == nil {
		limiter = NewRateLimiter(config.RequestDelay)
	}
	f := &FetchService{
		client:  &http.Client{Timeout: config.RequestTimeout},
		limiter: limiter,
		retry:   NewRetryPolicy(config.MaxAttempts),
		config:  config,
		logger:  logger,
	}
	for _, o := range opts {
		o(f)
	}
	if f.renderer == nil && config.EnableJavaScript {
		f.renderer = NewChromeRenderer(config.UserAgent, config.JavaScriptWaitTime, logger)
	}
	return f
}

// Fetch downloads pageURL and returns its products. A page without products yields an empty slice.
func (f *FetchService) Fetch(ctx context.Context, pageURL string) ([]models.CandidateRecord, error) {
	html, err := f.download(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}

	products := ExtractProducts(doc, pageURL)
	f.logger.Debug().
		Str("url", pageURL).
		Int("html_length", len(html)).
		Int("products", len(products)).
		Msg("Page fetched")
	return products, nil
}

// Close releases the browser when one was started
func (f *FetchService) Close() {
	if f.renderer != nil {
		f.renderer.Close()
	}
}

func (f *FetchService) download(ctx context.Context, pageURL string) (string, error) {
	if err := f.limiter.Wait(ctx, pageURL); err != nil {
		return "", &FetchError{URL: pageURL, Err: err}
	}

	if f.renderer != nil {
		html, err := f.renderer.Render(ctx, pageURL)
		if err != nil {
			return "", &FetchError{URL: pageURL, Err: err}
		}
		return html, nil
	}

	var body []byte
	status, err := f.retry.Do(ctx, f.logger, func(attempt int) (int, error) {
		var status int
		var err error
		body, status, err = f.get(ctx, pageURL)
		return status, err
	})
	if err != nil {
		return "", &FetchError{URL: pageURL, StatusCode: status, Err: err}
	}
	return string(body), nil
}

func (f *FetchService) get(ctx context.Context, pageURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, 0, err
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, int64(f.config.MaxBodySize)+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}
	if n > int64(f.config.MaxBodySize) {
		return nil, resp.StatusCode, errors.New("response body exceeds max_body_size")
	}
	return buf.Bytes(), resp.StatusCode, nil
}
