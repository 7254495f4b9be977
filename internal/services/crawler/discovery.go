package crawler

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
)

const defaultMaxURLs = 100

// sitemapDocument matches both <urlset> and <sitemapindex> roots
type sitemapDocument struct {
	XMLName  xml.Name
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// DiscoveryService lists candidate page URLs for a start URL from its sitemap and its own links
type DiscoveryService struct {
	client  *http.Client
	limiter *RateLimiter
	config  common.CrawlerConfig
	logger  arbor.ILogger
}

// NewDiscoveryService creates a discovery service. A nil client uses a default client with the configured timeout.
func NewDiscoveryService(config common.CrawlerConfig, client *http.Client, limiter *RateLimiter, logger arbor.ILogger) *DiscoveryService {
	if client == nil {
		client = &http.Client{Timeout: config.RequestTimeout}
	}
	if limiter == nil {
		limiter = NewRateLimiter(config.RequestDelay)
	}
	if config.MaxURLs <= 0 {
		config.MaxURLs = defaultMaxURLs
	}
	return &DiscoveryService{
		client:  client,
		limiter: limiter,
		config:  config,
		logger:  logger,
	}
}

// Discover returns the start URL followed by sitemap entries and page links, capped at max_urls.
// The start page must be reachable; a missing sitemap is not an error.
func (d *DiscoveryService) Discover(ctx context.Context, startURL string) ([]string, error) {
	start, err := url.Parse(startURL)
	if err != nil || (start.Scheme != "http" && start.Scheme != "https") || start.Host == "" {
		return nil, fmt.Errorf("%w: invalid start URL %q", ErrDiscovery, startURL)
	}

	begin := time.Now()
	collected := newURLSet(d.config.MaxURLs)
	collected.add(start.String())

	links, err := d.pageLinks(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}

	origin := &url.URL{Scheme: start.Scheme, Host: start.Host}
	sitemapURLs, err := d.sitemap(ctx, origin.String()+"/sitemap.xml", 1)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrDiscovery, ctx.Err())
		}
		d.logger.Debug().Err(err).Str("start_url", startURL).Msg("Sitemap unavailable, using page links only")
	}

	for _, u := range sitemapURLs {
		collected.add(u)
	}
	for _, u := range links {
		collected.add(u)
	}

	d.logger.Info().
		Str("start_url", startURL).
		Int("sitemap_urls", len(sitemapURLs)).
		Int("page_links", len(links)).
		Int("discovered", len(collected.items)).
		Dur("elapsed", time.Since(begin)).
		Msg("Discovery complete")

	return collected.items, nil
}

func (d *DiscoveryService) pageLinks(ctx context.Context, start *url.URL) ([]string, error) {
	body, err := d.get(ctx, start.String())
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse start page: %w", err)
	}
	return ExtractLinks(doc, start), nil
}

// sitemap reads a urlset, following a sitemap index down depth more levels
func (d *DiscoveryService) sitemap(ctx context.Context, sitemapURL string, depth int) ([]string, error) {
	body, err := d.get(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var doc sitemapDocument
	if err := xml.NewDecoder(body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap %s: %w", sitemapURL, err)
	}

	var out []string
	for _, u := range doc.URLs {
		if loc := strings.TrimSpace(u.Loc); loc != "" {
			out = append(out, loc)
		}
	}
	if depth <= 0 {
		return out, nil
	}

	for _, child := range doc.Sitemaps {
		loc := strings.TrimSpace(child.Loc)
		if loc == "" || len(out) >= d.config.MaxURLs {
			continue
		}
		nested, err := d.sitemap(ctx, loc, depth-1)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			d.logger.Debug().Err(err).Str("sitemap", loc).Msg("Skipping nested sitemap")
			continue
		}
		out = append(out, nested...)
	}
	return out, nil
}

func (d *DiscoveryService) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if err := d.limiter.Wait(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if d.config.UserAgent != "" {
		req.Header.Set("User-Agent", d.config.UserAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	return resp.Body, nil
}

// urlSet keeps insertion order and stops accepting entries at its cap
type urlSet struct {
	limit int
	seen  map[string]bool
	items []string
}

func newURLSet(limit int) *urlSet {
	return &urlSet{limit: limit, seen: make(map[string]bool)}
}

func (s *urlSet) add(u string) {
	if len(s.items) >= s.limit || s.seen[u] {
		return
	}
	s.seen[u] = true
	s.items = append(s.items, u)
}
