package pipeline

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/covera/internal/models"
)

var defaultCategories = []models.CategoryDefinition{
	{Key: "ELECTRONIC_PRODUCTS", DisplayName: "Electronics", Keywords: []string{
		"electronic", "smartphone", "laptop", "tablet", "tv", "television", "smartwatch", "gaming", "console",
		"camera", "audio", "headphone", "speaker", "earphone", "mobile", "computer", "monitor", "ipad", "macbook"}},
	{Key: "HOME_APPLIANCES", DisplayName: "Home Appliances", Keywords: []string{
		"appliance", "refrigerator", "washing machine", "dishwasher", "oven", "microwave", "air conditioner",
		"vacuum", "dryer"}},
	{Key: "BABY_EQUIPMENT_ESSENTIAL", DisplayName: "Baby Products", Keywords: []string{
		"baby", "stroller", "car seat", "crib", "monitor", "carrier", "high chair", "bassinet"}},
	{Key: "BAGS_LUGGAGE_ESSENTIAL", DisplayName: "Bags & Luggage", Keywords: []string{
		"bag", "luggage", "backpack", "suitcase", "briefcase", "handbag", "wallet", "purse"}},
	{Key: "GARDEN_DIY_ESSENTIAL", DisplayName: "Garden & DIY", Keywords: []string{
		"garden", "lawn", "mower", "chainsaw", "drill", "tool", "grill", "outdoor furniture"}},
	{Key: "HEALTH_WELLNESS_ESSENTIAL", DisplayName: "Health & Wellness", Keywords: []string{
		"health", "wellness", "blood pressure", "thermometer", "scale", "fitness tracker", "massage"}},
	{Key: "LIVING_FURNITURE_ESSENTIAL", DisplayName: "Living & Furniture", Keywords: []string{
		"furniture", "couch", "sofa", "table", "chair", "bed", "desk", "wardrobe", "cabinet"}},
	{Key: "MICRO_MOBILITY_ESSENTIAL", DisplayName: "Micromobility", Keywords: []string{
		"bike", "bicycle", "scooter", "electric bike", "e-bike", "skateboard", "hoverboard"}},
	{Key: "OPTICAL_HEARING_ESSENTIAL", DisplayName: "Optical & Hearing", Keywords: []string{
		"glasses", "sunglasses", "hearing aid", "contact lens", "optical"}},
	{Key: "PERSONAL_CARE_DEVICES", DisplayName: "Personal Care", Keywords: []string{
		"hair dryer", "shaver", "electric toothbrush", "straightener", "curling iron", "epilator"}},
	{Key: "OPULENCIA_PREMIUM", DisplayName: "Premium & Luxury", Keywords: []string{
		"luxury", "designer", "premium", "rolex", "gucci", "louis vuitton", "hermès", "chanel", "jewelry", "watch"}},
	{Key: "SOUND_MUSIC_ESSENTIAL", DisplayName: "Sound & Music", Keywords: []string{
		"guitar", "piano", "keyboard", "amplifier", "music", "instrument", "drum", "violin"}},
	{Key: "SPORT_OUTDOOR_ESSENTIAL", DisplayName: "Sport & Outdoor", Keywords: []string{
		"sport", "outdoor", "camping", "tent", "fishing", "golf", "yoga", "exercise", "gym",
		"fitness equipment", "treadmill"}},
	{Key: "TEXTILE_FOOTWEAR_ZARA", DisplayName: "Textile & Footwear", Keywords: []string{
		"clothes", "shoes", "boots", "sneakers", "jacket", "coat", "dress", "shirt", "pants", "footwear"}},
}

// CategoryTable maps category filter keys to keyword lists
type CategoryTable struct {
	definitions []models.CategoryDefinition
	byKey       map[string]models.CategoryDefinition
}

// NewCategoryTable builds a table from definitions, keeping their order
func NewCategoryTable(definitions []models.CategoryDefinition) *CategoryTable {
	t := &CategoryTable{byKey: make(map[string]models.CategoryDefinition, len(definitions))}
	for _, def := range definitions {
		keywords := make([]string, 0, len(def.Keywords))
		for _, kw := range def.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				keywords = append(keywords, kw)
			}
		}
		def.Keywords = keywords
		if _, dup := t.byKey[def.Key]; !dup {
			t.definitions = append(t.definitions, def)
		}
		t.byKey[def.Key] = def
	}
	return t
}

// DefaultCategoryTable returns the built-in fourteen category table
func DefaultCategoryTable() *CategoryTable {
	return NewCategoryTable(defaultCategories)
}

type categoryFile struct {
	Categories []models.CategoryDefinition `yaml:"categories"`
}

// LoadCategoryTable reads a YAML override, or returns the default table when path is empty
func LoadCategoryTable(path string) (*CategoryTable, error) {
	if path == "" {
		return DefaultCategoryTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read category file %s: %w", path, err)
	}

	var file categoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse category file %s: %w", path, err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("category file %s defines no categories", path)
	}
	for i, def := range file.Categories {
		if def.Key == "" || len(def.Keywords) == 0 {
			return nil, fmt.Errorf("category file %s: entry %d needs a key and keywords", path, i)
		}
	}

	return NewCategoryTable(file.Categories), nil
}

// Definitions returns the table entries in order
func (t *CategoryTable) Definitions() []models.CategoryDefinition {
	out := make([]models.CategoryDefinition, len(t.definitions))
	for i, def := range t.definitions {
		def.Keywords = append([]string(nil), def.Keywords...)
		out[i] = def
	}
	return out
}

// Has reports whether key is a known category
func (t *CategoryTable) Has(key string) bool {
	_, ok := t.byKey[key]
	return ok
}

// DisplayNames returns the display names of the known keys in selected
func (t *CategoryTable) DisplayNames(selected []string) []string {
	names := make([]string, 0, len(selected))
	for _, key := range selected {
		if def, ok := t.byKey[key]; ok {
			names = append(names, def.DisplayName)
		}
	}
	return names
}

// Matches reports whether a product passes the category filter. An empty
// selection accepts everything and unknown keys are ignored.
func (t *CategoryTable) Matches(name, category string, selected []string) bool {
	if len(selected) == 0 {
		return true
	}

	text := strings.ToLower(name + " " + category)
	for _, key := range selected {
		def, ok := t.byKey[key]
		if !ok {
			continue
		}
		for _, kw := range def.Keywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
	}
	return false
}
