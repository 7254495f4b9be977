package common

import (
	"net/url"
	"strings"
)

// Known retailer domains and their country
var domainCountries = map[string]string{
	"jumbo.ae":           "AE",
	"noon.com":           "AE",
	"sharafdg.com":       "AE",
	"amazon.ae":          "AE",
	"virginmegastore.ae": "AE",
	"emaxme.com":         "AE",
	"jumia.com.tn":       "TN",
	"tunisianet.com.tn":  "TN",
	"mytek.tn":           "TN",
}

var partnerNameOverrides = map[string]string{
	"virginmegastore": "Virginmegastore.Ae",
}

const (
	MarketUAE     = "UAE"
	MarketTunisia = "Tunisia"
)

// NormalizeHost lowercases a host and strips a leading "www."
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}

// DomainOf returns the normalized host of a URL, or "" when it cannot be parsed
func DomainOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return NormalizeHost(u.Hostname())
}

// TopLevelLabel returns the last label of a domain ("ae" for "noon.ae")
func TopLevelLabel(domain string) string {
	domain = strings.TrimSuffix(domain, ".")
	if i := strings.LastIndex(domain, "."); i >= 0 {
		return domain[i+1:]
	}
	return domain
}

// SameTopLevel reports whether two URLs share the last label of their www-stripped host
func SameTopLevel(rawURL, startURL string) bool {
	host := DomainOf(rawURL)
	start := DomainOf(startURL)
	if host == "" || start == "" {
		return false
	}
	return TopLevelLabel(host) == TopLevelLabel(start)
}

// CountryForDomain maps a retailer domain to AE or TN
func CountryForDomain(domain string) string {
	domain = NormalizeHost(domain)
	if country, ok := domainCountries[domain]; ok {
		return country
	}
	if strings.HasSuffix(domain, ".tn") {
		return "TN"
	}
	return "AE"
}

// MarketForCountry returns the pricing market for a country code
func MarketForCountry(country string) string {
	if strings.EqualFold(country, "TN") {
		return MarketTunisia
	}
	return MarketUAE
}

// PartnerNameForDomain title-cases the first label of a domain
func PartnerNameForDomain(domain string) string {
	first := NormalizeHost(domain)
	if i := strings.Index(first, "."); i >= 0 {
		first = first[:i]
	}
	if name, ok := partnerNameOverrides[first]; ok {
		return name
	}
	if first == "" {
		return ""
	}
	return strings.ToUpper(first[:1]) + first[1:]
}
