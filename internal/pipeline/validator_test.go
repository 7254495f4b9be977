package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/covera/internal/models"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   interface{}
		want float64
		ok   bool
	}{
		{"1,299.00", 1299.0, true},
		{"AED 49.50", 49.5, true},
		{"Free", 0, false},
		{"", 0, false},
		{"0.00", 0, false},
		{float64(12.5), 12.5, true},
		{42, 42, true},
		{-3, 0, false},
		{nil, 0, false},
		{[]string{"1"}, 0, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.in), func(t *testing.T) {
			got, ok := ParsePrice(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.0001)
			}
		})
	}
}

func TestNormalizeCurrency(t *testing.T) {
	for raw, want := range map[string]string{
		"aed": "AED", " DH ": "AED", "د.إ": "AED", "dt": "TND", "DIN": "TND", "د.ت": "TND",
	} {
		got, ok := NormalizeCurrency(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	_, ok := NormalizeCurrency("USD")
	assert.False(t, ok)
	_, ok = NormalizeCurrency("")
	assert.False(t, ok)
}

func TestCanonicalURL_SharedIdentity(t *testing.T) {
	a := CanonicalURL("http://x.com/a")
	assert.Equal(t, a, CanonicalURL("http://x.com/a/"))
	assert.Equal(t, a, CanonicalURL("http://www.x.com/a"))
	assert.Equal(t, a, CanonicalURL("http://WWW.X.com/a?ref=home#top"))
	assert.NotEqual(t, a, CanonicalURL("http://x.com/b"))
}

func TestNormalizeURL(t *testing.T) {
	for _, bad := range []string{"", "Unknown URL", "unknown", "/relative/path", "ftp://x.com/a"} {
		_, ok := NormalizeURL(bad)
		assert.False(t, ok, bad)
	}
	got, ok := NormalizeURL("  https://x.com/a ")
	assert.True(t, ok)
	assert.Equal(t, "https://x.com/a", got)
}

func TestValidate_Normalizes(t *testing.T) {
	rec, err := Validate(models.CandidateRecord{
		Name:     "  Galaxy S24  ",
		Price:    "1,299.00",
		Currency: "aed",
		URL:      "https://www.noon.com/galaxy-s24/",
	})
	require.NoError(t, err)

	assert.Equal(t, "Galaxy S24", rec.Name)
	assert.Equal(t, 1299.0, rec.Price)
	assert.Equal(t, "AED", rec.Currency)
	assert.Equal(t, "https://noon.com/galaxy-s24", rec.URL)
	assert.Equal(t, "Unknown", rec.Brand)
	assert.Equal(t, "N/A", rec.Category)
	assert.Equal(t, "noon.com", rec.SourceDomain)
	assert.Equal(t, "UAE", rec.Market)
}

func TestValidate_FallsBackToPageURL(t *testing.T) {
	rec, err := Validate(models.CandidateRecord{
		Name: "Lave-linge", Price: 899.0, Currency: "DT", PageURL: "https://mytek.tn/lave-linge",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://mytek.tn/lave-linge", rec.URL)
	assert.Equal(t, "TND", rec.Currency)
	assert.Equal(t, "Tunisia", rec.Market)
}

func TestValidate_Rejects(t *testing.T) {
	base := models.CandidateRecord{Name: "Item", Price: "10", Currency: "AED", URL: "https://x.ae/item"}

	tests := []struct {
		name   string
		mutate func(*models.CandidateRecord)
		field  string
	}{
		{"missing name", func(c *models.CandidateRecord) { c.Name = "  " }, "name"},
		{"free price", func(c *models.CandidateRecord) { c.Price = "Free" }, "price"},
		{"empty price", func(c *models.CandidateRecord) { c.Price = "" }, "price"},
		{"unsupported currency", func(c *models.CandidateRecord) { c.Currency = "USD" }, "currency"},
		{"placeholder url", func(c *models.CandidateRecord) { c.URL = "Unknown URL" }, "url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := base
			tt.mutate(&candidate)

			rec, err := Validate(candidate)
			assert.Nil(t, rec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRecord))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestSeenSet_TenAddressesTwoColliding(t *testing.T) {
	raw := []string{
		"http://x.com/a", "http://x.com/a/", "http://x.com/b", "http://x.com/c", "http://x.com/d",
		"http://x.com/e", "http://x.com/f", "http://x.com/g", "http://x.com/h", "http://x.com/i",
	}

	seen := NewSeenSet()
	unique := 0
	for _, u := range raw {
		if seen.Add(CanonicalURL(u)) {
			unique++
		}
	}

	assert.Equal(t, 9, unique)
	assert.Equal(t, 9, seen.Len())
}

func TestCategoryTable_Matches(t *testing.T) {
	table := DefaultCategoryTable()

	assert.True(t, table.Matches("Anything", "", nil))
	assert.True(t, table.Matches("Samsung 55\" QLED TV", "", []string{"ELECTRONIC_PRODUCTS"}))
	assert.True(t, table.Matches("Bosch Serie 4", "Washing Machine", []string{"HOME_APPLIANCES"}))
	assert.False(t, table.Matches("Bosch Serie 4", "Washing Machine", []string{"ELECTRONIC_PRODUCTS"}))
	assert.False(t, table.Matches("Laptop", "", []string{"NOT_A_CATEGORY"}))
	assert.True(t, table.Matches("Laptop", "", []string{"NOT_A_CATEGORY", "ELECTRONIC_PRODUCTS"}))
}

func TestCategoryTable_Definitions(t *testing.T) {
	table := DefaultCategoryTable()
	defs := table.Definitions()

	require.Len(t, defs, 14)
	assert.Equal(t, "ELECTRONIC_PRODUCTS", defs[0].Key)
	assert.True(t, table.Has("OPULENCIA_PREMIUM"))
	assert.Equal(t, []string{"Electronics", "Micromobility"},
		table.DisplayNames([]string{"ELECTRONIC_PRODUCTS", "UNKNOWN", "MICRO_MOBILITY_ESSENTIAL"}))
}
