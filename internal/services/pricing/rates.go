package pricing

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Bucket is an upper price limit and its label. A zero limit means unbounded.
type Bucket struct {
	Limit float64 `yaml:"limit"`
	Label string  `yaml:"label"`
}

// AssurmaxTerms are the pack terms for the UAE
type AssurmaxTerms struct {
	PackCap     float64 `yaml:"pack_cap"`
	PremiumRate float64 `yaml:"premium_rate"`
	MaxProducts int     `yaml:"max_products"`
	Currency    string  `yaml:"currency"`
}

// RateTable holds every figure the pricer uses
type RateTable struct {
	Rates             map[string]map[string]float64 `yaml:"rates"`
	UAEDefaultBuckets []Bucket                      `yaml:"uae_default_buckets"`
	UAEBuckets        map[string][]Bucket           `yaml:"uae_buckets"`
	TunisiaBuckets    map[string][]Bucket           `yaml:"tunisia_buckets"`
	TunisiaDefault    []Bucket                      `yaml:"tunisia_default_buckets"`
	TwoYearFactor     float64                       `yaml:"two_year_factor"`
	MonthlyLoading    float64                       `yaml:"monthly_loading"`
	Assurmax          AssurmaxTerms                 `yaml:"assurmax"`
}

func band(l, m, h float64) map[string]float64 {
	return map[string]float64{"L": l, "M": m, "H": h}
}

// DefaultRateTable returns the built-in UAE and Tunisia tables
func DefaultRateTable() *RateTable {
	return &RateTable{
		Rates: map[string]map[string]float64{
			"ELECTRONIC_PRODUCTS":        band(0.08, 0.095, 0.11),
			"MOBILE_PERSONAL":            band(0.08, 0.095, 0.11),
			"COMPUTING_GAMING":           band(0.07, 0.085, 0.10),
			"HOME_AV":                    band(0.06, 0.075, 0.09),
			"GARDEN_DIY_ESSENTIAL":       band(0.07, 0.085, 0.10),
			"SPORT_OUTDOOR_ESSENTIAL":    band(0.08, 0.095, 0.11),
			"BABY_EQUIPMENT_ESSENTIAL":   band(0.07, 0.085, 0.10),
			"HOME_APPLIANCES":            band(0.05, 0.06, 0.07),
			"HEALTH_WELLNESS_ESSENTIAL":  band(0.07, 0.085, 0.10),
			"MICRO_MOBILITY_ESSENTIAL":   band(0.09, 0.11, 0.13),
			"BAGS_LUGGAGE_ESSENTIAL":     band(0.06, 0.075, 0.09),
			"LIVING_FURNITURE_ESSENTIAL": band(0.06, 0.075, 0.09),
			"OPTICAL_HEARING_ESSENTIAL":  band(0.07, 0.085, 0.10),
			"PERSONAL_CARE_DEVICES":      band(0.07, 0.085, 0.10),
			"SOUND_MUSIC_ESSENTIAL":      band(0.08, 0.095, 0.11),
			"OPULENCIA_PREMIUM":          band(0.10, 0.12, 0.15),
			"TEXTILE_FOOTWEAR_ZARA":      band(0.05, 0.06, 0.07),
			"SPECIALTY":                  band(0.09, 0.11, 0.13),

			"ELECTRONIC_PRODUCTS_TN": band(0.08, 0.095, 0.11),
			"GARDEN_DIY_TN":          band(0.07, 0.085, 0.10),
			"SPORT_OUTDOOR_TN":       band(0.08, 0.095, 0.11),
			"BABY_EQUIPMENT_TN":      band(0.07, 0.085, 0.10),
			"HOME_APPLIANCES_TN":     band(0.05, 0.06, 0.07),
			"HEALTH_WELLNESS_TN":     band(0.07, 0.085, 0.10),
			"FURNITURE_TN":           band(0.06, 0.075, 0.09),
		},
		UAEDefaultBuckets: []Bucket{{2000, "L"}, {6000, "M"}, {0, "H"}},
		UAEBuckets: map[string][]Bucket{
			"HOME_APPLIANCES":   {{2000, "L"}, {6000, "M"}, {11000, "H"}},
			"OPULENCIA_PREMIUM": {{3000, "M"}, {10000, "M"}, {50000, "H"}, {300000, "XH"}},
		},
		TunisiaBuckets: map[string][]Bucket{
			"ELECTRONIC_PRODUCTS_TN": {{1500, "L"}, {4000, "M"}, {8000, "H"}},
			"BABY_EQUIPMENT_TN":      {{400, "L"}, {1200, "M"}, {3000, "H"}},
			"FURNITURE_TN":           {{800, "L"}, {2000, "M"}, {5000, "H"}},
			"GARDEN_DIY_TN":          {{500, "L"}, {1500, "M"}, {3500, "H"}},
			"HEALTH_WELLNESS_TN":     {{300, "L"}, {900, "M"}, {2000, "H"}},
			"HOME_APPLIANCES_TN":     {{2000, "L"}, {4500, "M"}, {7500, "H"}},
			"SPORT_OUTDOOR_TN":       {{400, "L"}, {1200, "M"}, {3000, "H"}},
		},
		TunisiaDefault: []Bucket{{400, "L"}, {1200, "M"}, {0, "H"}},
		TwoYearFactor:  1.35,
		MonthlyLoading: 1.05,
		Assurmax: AssurmaxTerms{
			PackCap:     5000,
			PremiumRate: 0.11,
			MaxProducts: 3,
			Currency:    "AED",
		},
	}
}

// LoadRateTable reads a YAML override on top of the defaults, or returns the defaults when path is empty.
// Top level keys present in the file replace the default value for that key.
func LoadRateTable(path string) (*RateTable, error) {
	table := DefaultRateTable()
	if path == "" {
		return table, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rates file %s: %w", path, err)
	}
	var overlay RateTable
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse rates file %s: %w", path, err)
	}
	table.merge(&overlay)
	if err := table.check(); err != nil {
		return nil, fmt.Errorf("rates file %s: %w", path, err)
	}
	return table, nil
}

func (t *RateTable) merge(o *RateTable) {
	if len(o.Rates) > 0 {
		t.Rates = o.Rates
	}
	if len(o.UAEDefaultBuckets) > 0 {
		t.UAEDefaultBuckets = o.UAEDefaultBuckets
	}
	if o.UAEBuckets != nil {
		t.UAEBuckets = o.UAEBuckets
	}
	if o.TunisiaBuckets != nil {
		t.TunisiaBuckets = o.TunisiaBuckets
	}
	if len(o.TunisiaDefault) > 0 {
		t.TunisiaDefault = o.TunisiaDefault
	}
	if o.TwoYearFactor != 0 {
		t.TwoYearFactor = o.TwoYearFactor
	}
	if o.MonthlyLoading != 0 {
		t.MonthlyLoading = o.MonthlyLoading
	}
	if o.Assurmax.PackCap != 0 {
		t.Assurmax = o.Assurmax
	}
}

func (t *RateTable) check() error {
	if len(t.Rates) == 0 {
		return fmt.Errorf("no rates defined")
	}
	for profile, rates := range t.Rates {
		for label, rate := range rates {
			if rate <= 0 || rate >= 1 {
				return fmt.Errorf("rate %s/%s must be between 0 and 1", profile, label)
			}
		}
	}
	if t.TwoYearFactor <= 0 || t.MonthlyLoading <= 0 {
		return fmt.Errorf("two_year_factor and monthly_loading must be positive")
	}
	return nil
}

// Profiles returns the known risk profile codes, sorted
func (t *RateTable) Profiles() []string {
	out := make([]string, 0, len(t.Rates))
	for profile := range t.Rates {
		out = append(out, profile)
	}
	sort.Strings(out)
	return out
}

// bucketFor picks the first bucket whose limit covers value. Above every limit
// the UAE tables fall back to "H" and the Tunisian ones to their last label.
func bucketFor(buckets []Bucket, value float64, overflow string) string {
	for _, b := range buckets {
		if b.Limit == 0 || value <= b.Limit {
			return b.Label
		}
	}
	if overflow != "" {
		return overflow
	}
	return buckets[len(buckets)-1].Label
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
