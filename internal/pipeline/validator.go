package pipeline

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/models"
)

const (
	defaultBrand    = "Unknown"
	defaultCategory = "N/A"
)

// AllowedCurrencies are the only currencies a validated record can carry
var AllowedCurrencies = map[string]bool{"AED": true, "TND": true}

var currencyAliases = map[string]string{
	"AED": "AED", "D": "AED", "د.إ": "AED", "د.إ.‏": "AED", "د": "AED", "DH": "AED", "DHM": "AED",
	"TND": "TND", "DT": "TND", "د.ت": "TND", "ت": "TND", "DIN": "TND",
}

var placeholderURLs = map[string]bool{"unknown url": true, "unknown": true}

// NormalizeCurrency maps a raw currency label to AED or TND
func NormalizeCurrency(raw string) (string, bool) {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	if cleaned == "" {
		return "", false
	}
	currency, ok := currencyAliases[cleaned]
	return currency, ok
}

// ParsePrice accepts a positive number, or a string from which only digits and
// '.' are kept before parsing ("1,299.00" -> 1299)
func ParsePrice(value interface{}) (float64, bool) {
	var price float64
	switch v := value.(type) {
	case nil:
		return 0, false
	case float64:
		price = v
	case float32:
		price = float64(v)
	case int:
		price = float64(v)
	case int64:
		price = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return parsePriceString(v.String())
		}
		price = f
	case string:
		return parsePriceString(v)
	default:
		return 0, false
	}
	return price, price > 0
}

func parsePriceString(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	price, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

// NormalizeURL trims an address and requires an http or https scheme
func NormalizeURL(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || placeholderURLs[strings.ToLower(trimmed)] {
		return "", false
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		return "", false
	}
	return trimmed, true
}

// CanonicalURL is scheme://host/path with the host lowercased, "www." and the
// trailing slash removed, and query and fragment dropped
func CanonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	host := common.NormalizeHost(u.Host)
	return strings.TrimRight(u.Scheme+"://"+host+u.EscapedPath(), "/")
}

// Validate turns a candidate into a validated record or returns a *ValidationError.
// A missing product URL falls back to the page URL.
func Validate(candidate models.CandidateRecord) (*models.ValidatedRecord, error) {
	name := strings.TrimSpace(candidate.Name)
	if name == "" {
		return nil, invalid("name", "missing product name")
	}

	rawURL := candidate.URL
	if strings.TrimSpace(rawURL) == "" {
		rawURL = candidate.PageURL
	}
	productURL, ok := NormalizeURL(rawURL)
	if !ok {
		return nil, invalid("url", "unusable address %q", rawURL)
	}
	canonical := CanonicalURL(productURL)

	price, ok := ParsePrice(candidate.Price)
	if !ok {
		return nil, invalid("price", "not a positive price: %v", candidate.Price)
	}

	currency, ok := NormalizeCurrency(candidate.Currency)
	if !ok || !AllowedCurrencies[currency] {
		return nil, invalid("currency", "unsupported currency %q", candidate.Currency)
	}

	brand := strings.TrimSpace(candidate.Brand)
	if brand == "" {
		brand = defaultBrand
	}
	category := strings.TrimSpace(candidate.Category)
	if category == "" {
		category = defaultCategory
	}

	domain := common.DomainOf(canonical)

	return &models.ValidatedRecord{
		Name:         name,
		Brand:        brand,
		Price:        price,
		Currency:     currency,
		Description:  strings.TrimSpace(candidate.Description),
		URL:          canonical,
		ImageURL:     strings.TrimSpace(candidate.ImageURL),
		Category:     category,
		SKU:          strings.TrimSpace(candidate.SKU),
		SourceDomain: domain,
		Market:       common.MarketForCountry(common.CountryForDomain(domain)),
	}, nil
}
