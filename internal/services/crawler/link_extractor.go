package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var skippedSchemes = []string{"javascript:", "mailto:", "tel:", "sms:", "ftp:", "data:"}

// assetExtensions are never product pages
var assetExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".ico",
	".css", ".js", ".pdf", ".zip", ".mp4", ".woff", ".woff2",
}

// ExtractLinks returns the absolute, de-duplicated page links of a document in document order.
// Fragments are stripped and links to assets are dropped.
func ExtractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string

	add := func(href string) {
		resolved := resolveLink(href, base)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(href)
	})
	doc.Find(`link[rel="canonical"][href], link[rel="next"][href]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(href)
	})

	return links
}

func shouldSkipLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(href, scheme) {
			return true
		}
	}
	return false
}

// resolveLink resolves href against base and returns "" for anything that is not an http(s) page
func resolveLink(href string, base *url.URL) string {
	if shouldSkipLink(href) {
		return ""
	}

	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	var resolved *url.URL
	if base != nil {
		resolved = base.ResolveReference(ref)
	} else if ref.IsAbs() {
		resolved = ref
	} else {
		return ""
	}

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""

	path := strings.ToLower(resolved.Path)
	for _, ext := range assetExtensions {
		if strings.HasSuffix(path, ext) {
			return ""
		}
	}
	return resolved.String()
}
