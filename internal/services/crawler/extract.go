package crawler

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/covera/internal/models"
)

// ExtractProducts returns the products described by a page. JSON-LD wins; OpenGraph
// product tags and schema.org microdata are used only when the page has no JSON-LD products.
func ExtractProducts(doc *goquery.Document, pageURL string) []models.CandidateRecord {
	base, _ := url.Parse(pageURL)

	products := extractJSONLD(doc)
	if len(products) == 0 {
		products = extractMicrodata(doc)
	}
	if len(products) == 0 {
		if p, ok := extractOpenGraph(doc); ok {
			products = []models.CandidateRecord{p}
		}
	}

	for i := range products {
		p := &products[i]
		p.PageURL = pageURL
		p.URL = absolute(p.URL, base)
		p.ImageURL = absolute(p.ImageURL, base)
		p.Description = descriptionToMarkdown(p.Description, base)
	}
	return products
}

func extractJSONLD(doc *goquery.Document) []models.CandidateRecord {
	var out []models.CandidateRecord
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data interface{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &data); err != nil {
			return
		}
		walkJSONLD(data, &out)
	})
	return out
}

// walkJSONLD collects Product nodes from arrays, @graph containers and ItemLists
func walkJSONLD(node interface{}, out *[]models.CandidateRecord) {
	switch v := node.(type) {
	case []interface{}:
		for _, item := range v {
			walkJSONLD(item, out)
		}
	case map[string]interface{}:
		if graph, ok := v["@graph"]; ok {
			walkJSONLD(graph, out)
		}
		switch {
		case hasType(v, "Product"):
			if p, ok := productFromJSONLD(v); ok {
				*out = append(*out, p)
			}
		case hasType(v, "ItemList"):
			elements, _ := v["itemListElement"].([]interface{})
			for _, el := range elements {
				entry, ok := el.(map[string]interface{})
				if !ok {
					continue
				}
				if item, ok := entry["item"]; ok {
					walkJSONLD(item, out)
				} else {
					walkJSONLD(entry, out)
				}
			}
		}
	}
}

func hasType(node map[string]interface{}, want string) bool {
	switch t := node["@type"].(type) {
	case string:
		return strings.EqualFold(t, want)
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok && strings.EqualFold(s, want) {
				return true
			}
		}
	}
	return false
}

func productFromJSONLD(node map[string]interface{}) (models.CandidateRecord, bool) {
	p := models.CandidateRecord{
		Name:        stringField(node["name"]),
		Brand:       nameOrString(node["brand"]),
		Description: stringField(node["description"]),
		URL:         stringField(node["url"]),
		ImageURL:    imageField(node["image"]),
		Category:    nameOrString(node["category"]),
		SKU:         stringField(node["sku"]),
	}
	if p.Name == "" {
		return p, false
	}
	p.Price, p.Currency = offerPrice(node["offers"])
	return p, true
}

// offerPrice reads the first priced offer; offers may be an object, an array or an AggregateOffer
func offerPrice(offers interface{}) (interface{}, string) {
	switch v := offers.(type) {
	case []interface{}:
		for _, item := range v {
			if price, currency := offerPrice(item); price != nil {
				return price, currency
			}
		}
	case map[string]interface{}:
		currency := stringField(v["priceCurrency"])
		for _, key := range []string{"price", "lowPrice"} {
			if price, ok := v[key]; ok && price != nil {
				return price, currency
			}
		}
		if spec, ok := v["priceSpecification"].(map[string]interface{}); ok {
			if price, ok := spec["price"]; ok {
				if c := stringField(spec["priceCurrency"]); c != "" {
					currency = c
				}
				return price, currency
			}
		}
	}
	return nil, ""
}

func extractMicrodata(doc *goquery.Document) []models.CandidateRecord {
	var out []models.CandidateRecord
	doc.Find(`[itemscope][itemtype*="schema.org/Product"]`).Each(func(_ int, s *goquery.Selection) {
		p := models.CandidateRecord{
			Name:        itemprop(s, "name"),
			Brand:       itemprop(s, "brand"),
			Description: itemprop(s, "description"),
			URL:         itemprop(s, "url"),
			ImageURL:    itemprop(s, "image"),
			Category:    itemprop(s, "category"),
			SKU:         itemprop(s, "sku"),
			Currency:    itemprop(s, "priceCurrency"),
		}
		if price := itemprop(s, "price"); price != "" {
			p.Price = price
		}
		if p.Name != "" {
			out = append(out, p)
		}
	})
	return out
}

func itemprop(s *goquery.Selection, name string) string {
	el := s.Find(fmt.Sprintf(`[itemprop="%s"]`, name)).First()
	if el.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"content", "href", "src"} {
		if v, ok := el.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(el.Text())
}

func extractOpenGraph(doc *goquery.Document) (models.CandidateRecord, bool) {
	meta := func(property string) string {
		v, _ := doc.Find(fmt.Sprintf(`meta[property="%s"]`, property)).First().Attr("content")
		return strings.TrimSpace(v)
	}

	amount := meta("product:price:amount")
	if amount == "" {
		amount = meta("og:price:amount")
	}
	if amount == "" && !strings.EqualFold(meta("og:type"), "product") {
		return models.CandidateRecord{}, false
	}

	p := models.CandidateRecord{
		Name:        meta("og:title"),
		Brand:       meta("product:brand"),
		Description: meta("og:description"),
		URL:         meta("og:url"),
		ImageURL:    meta("og:image"),
		Currency:    meta("product:price:currency"),
	}
	if p.Currency == "" {
		p.Currency = meta("og:price:currency")
	}
	if amount != "" {
		p.Price = amount
	}
	return p, p.Name != ""
}

func stringField(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%v", t)
	}
	return ""
}

// nameOrString handles values that are either a plain string or an object with a name
func nameOrString(v interface{}) string {
	if m, ok := v.(map[string]interface{}); ok {
		return stringField(m["name"])
	}
	if arr, ok := v.([]interface{}); ok && len(arr) > 0 {
		return nameOrString(arr[0])
	}
	return stringField(v)
}

func imageField(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []interface{}:
		if len(t) > 0 {
			return imageField(t[0])
		}
	case map[string]interface{}:
		return stringField(t["url"])
	}
	return ""
}

func absolute(raw string, base *url.URL) string {
	if raw == "" || base == nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}

// descriptionToMarkdown converts HTML descriptions to markdown and leaves plain text alone
func descriptionToMarkdown(description string, base *url.URL) string {
	if !strings.Contains(description, "<") {
		return description
	}
	domain := ""
	if base != nil {
		domain = base.Scheme + "://" + base.Host
	}
	converted, err := md.NewConverter(domain, true, nil).ConvertString(description)
	if err != nil {
		return description
	}
	return strings.TrimSpace(converted)
}
