package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
)

func testCrawlerConfig() common.CrawlerConfig {
	return common.CrawlerConfig{
		UserAgent:      "covera-test",
		RequestTimeout: 5 * time.Second,
		MaxURLs:        100,
		MaxAttempts:    3,
	}
}

func TestDiscover_SitemapAndLinks(t *testing.T) {
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "covera-test", r.Header.Get("User-Agent"))
		fmt.Fprint(w, `<html><body>
			<a href="/p/phone">Phone</a>
			<a href="/p/phone#reviews">Phone reviews</a>
			<a href="mailto:shop@example.ae">Mail</a>
			<a href="javascript:void(0)">JS</a>
			<a href="/static/logo.png">Logo</a>
			<a href="https://other.ae/p/tv">External</a>
		</body></html>`)
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%s/products.xml</loc></sitemap>
</sitemapindex>`, srv.URL)
	})
	mux.HandleFunc("/products.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%[1]s/p/laptop</loc></url>
  <url><loc>%[1]s/p/phone</loc></url>
</urlset>`, srv.URL)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	d := NewDiscoveryService(testCrawlerConfig(), srv.Client(), nil, arbor.NewLogger())
	urls, err := d.Discover(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	assert.Equal(t, []string{
		srv.URL + "/",
		srv.URL + "/p/laptop",
		srv.URL + "/p/phone",
		"https://other.ae/p/tv",
	}, urls)
}

func TestDiscover_MissingSitemapIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<a href="/p/1">1</a><a href="/p/2">2</a>`)
	}))
	defer srv.Close()

	d := NewDiscoveryService(testCrawlerConfig(), srv.Client(), nil, arbor.NewLogger())
	urls, err := d.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL, srv.URL + "/p/1", srv.URL + "/p/2"}, urls)
}

func TestDiscover_CapsAtMaxURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			http.NotFound(w, r)
			return
		}
		for i := 0; i < 20; i++ {
			fmt.Fprintf(w, `<a href="/p/%d">%d</a>`, i, i)
		}
	}))
	defer srv.Close()

	cfg := testCrawlerConfig()
	cfg.MaxURLs = 5
	d := NewDiscoveryService(cfg, srv.Client(), nil, arbor.NewLogger())
	urls, err := d.Discover(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, urls, 5)
}

func TestDiscover_StartPageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDiscoveryService(testCrawlerConfig(), srv.Client(), nil, arbor.NewLogger())
	_, err := d.Discover(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrDiscovery)
}

func TestDiscover_InvalidStartURL(t *testing.T) {
	d := NewDiscoveryService(testCrawlerConfig(), nil, nil, arbor.NewLogger())
	for _, raw := range []string{"", "ftp://example.ae", "not a url", "https://"} {
		_, err := d.Discover(context.Background(), raw)
		assert.ErrorIs(t, err, ErrDiscovery, raw)
	}
}
