package classify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/models"
)

// profileRule maps keywords to a UAE risk profile. Rules are tried in order.
type profileRule struct {
	profile  string
	category string
	keywords []string
}

var profileRules = []profileRule{
	{"MOBILE_PERSONAL", "Smartphone", []string{"smartphone", "iphone", "mobile phone", "galaxy s", "pixel", "smartwatch", "earbuds", "airpods"}},
	{"COMPUTING_GAMING", "Computing", []string{"laptop", "notebook", "macbook", "computer", "desktop", "monitor", "tablet", "ipad", "console", "playstation", "xbox", "nintendo", "gaming"}},
	{"HOME_AV", "TV & Home AV", []string{"tv", "television", "soundbar", "projector", "home theater", "home theatre", "receiver"}},
	{"ELECTRONIC_PRODUCTS", "Electronics", []string{"electronic", "camera", "headphone", "headphones", "speaker", "drone", "printer", "router"}},
	{"HOME_APPLIANCES", "Home Appliances", []string{"refrigerator", "fridge", "washing machine", "washer", "lave-linge", "dishwasher", "oven", "microwave", "air conditioner", "vacuum", "dryer", "cooker", "blender", "air fryer", "kettle", "coffee machine"}},
	{"PERSONAL_CARE_DEVICES", "Personal Care", []string{"hair dryer", "shaver", "trimmer", "electric toothbrush", "straightener", "curling iron", "epilator"}},
	{"MICRO_MOBILITY_ESSENTIAL", "Micromobility", []string{"e-bike", "electric bike", "scooter", "hoverboard", "bicycle", "bike", "skateboard"}},
	{"SPORT_OUTDOOR_ESSENTIAL", "Sport & Outdoor", []string{"treadmill", "tent", "camping", "golf", "fishing", "yoga", "fitness equipment", "exercise bike", "dumbbell"}},
	{"GARDEN_DIY_ESSENTIAL", "Garden & DIY", []string{"drill", "lawn", "mower", "chainsaw", "grill", "barbecue", "power tool", "saw"}},
	{"BABY_EQUIPMENT_ESSENTIAL", "Baby", []string{"stroller", "pram", "car seat", "crib", "high chair", "bassinet", "baby monitor"}},
	{"HEALTH_WELLNESS_ESSENTIAL", "Health & Wellness", []string{"blood pressure", "thermometer", "massage", "massager", "fitness tracker", "scale"}},
	{"OPTICAL_HEARING_ESSENTIAL", "Optical & Hearing", []string{"glasses", "sunglasses", "hearing aid", "optical"}},
	{"SOUND_MUSIC_ESSENTIAL", "Sound & Music", []string{"guitar", "piano", "keyboard", "amplifier", "drum", "violin", "instrument"}},
	{"BAGS_LUGGAGE_ESSENTIAL", "Bags & Luggage", []string{"luggage", "suitcase", "backpack", "briefcase", "handbag"}},
	{"LIVING_FURNITURE_ESSENTIAL", "Furniture", []string{"sofa", "couch", "wardrobe", "mattress", "bed", "desk", "armchair", "cabinet", "furniture"}},
	{"TEXTILE_FOOTWEAR_ZARA", "Textile & Footwear", []string{"shoes", "sneakers", "boots", "jacket", "coat", "dress", "shirt", "jeans"}},
}

var luxuryBrands = []string{
	"rolex", "cartier", "gucci", "prada", "louis vuitton", "hermes", "hermès", "chanel", "dior", "omega", "tag heuer", "bulgari", "montblanc",
}

// LuxuryThreshold is the price from which luxury brands are priced as OPULENCIA_PREMIUM
const LuxuryThreshold = 3000.0

var exclusionKeywords = []string{
	"refurbished", "renewed", "used", "second hand", "pre-owned", "rental", "gift card", "voucher", "subscription", "warranty extension",
}

// tunisiaProfiles maps UAE profiles to the profiles offered in Tunisia
var tunisiaProfiles = map[string]string{
	"ELECTRONIC_PRODUCTS":        "ELECTRONIC_PRODUCTS_TN",
	"MOBILE_PERSONAL":            "ELECTRONIC_PRODUCTS_TN",
	"COMPUTING_GAMING":           "ELECTRONIC_PRODUCTS_TN",
	"HOME_AV":                    "ELECTRONIC_PRODUCTS_TN",
	"HOME_APPLIANCES":            "HOME_APPLIANCES_TN",
	"GARDEN_DIY_ESSENTIAL":       "GARDEN_DIY_TN",
	"SPORT_OUTDOOR_ESSENTIAL":    "SPORT_OUTDOOR_TN",
	"BABY_EQUIPMENT_ESSENTIAL":   "BABY_EQUIPMENT_TN",
	"HEALTH_WELLNESS_ESSENTIAL":  "HEALTH_WELLNESS_TN",
	"LIVING_FURNITURE_ESSENTIAL": "FURNITURE_TN",
}

var standardModules = []string{"Accidental damage", "Breakdown", "Theft"}

var standardExclusions = []string{"Wear and tear", "Cosmetic damage", "Intentional damage", "Loss"}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// RuleClassifier decides eligibility from keyword tables without any remote call
type RuleClassifier struct {
	logger arbor.ILogger
}

func NewRuleClassifier(logger arbor.ILogger) *RuleClassifier {
	return &RuleClassifier{logger: logger}
}

// Classify never fails except on a cancelled context
func (c *RuleClassifier) Classify(ctx context.Context, record models.ValidatedRecord) (*models.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := normalize(record.Name + " " + record.Category + " " + record.Description)

	if kw, ok := firstMatch(text, exclusionKeywords); ok {
		return &models.Classification{
			Eligible: false,
			Reason:   fmt.Sprintf("Excluded product type: %s", kw),
		}, nil
	}

	profile, category := c.Profile(record)
	if profile == "" {
		return &models.Classification{
			Eligible: false,
			Reason:   "No matching coverage category",
		}, nil
	}

	if record.Market == common.MarketTunisia {
		tn, ok := tunisiaProfiles[profile]
		if !ok {
			return &models.Classification{
				Eligible: false,
				Reason:   fmt.Sprintf("%s is not covered in Tunisia", category),
				Category: category,
			}, nil
		}
		profile = tn
	}

	return &models.Classification{
		Eligible:        true,
		Reason:          "Product is covered",
		RiskProfile:     profile,
		Category:        category,
		CoverageModules: append([]string(nil), standardModules...),
		Exclusions:      append([]string(nil), standardExclusions...),
	}, nil
}

// Profile returns the UAE risk profile and category label for a record, or "" when nothing matches
func (c *RuleClassifier) Profile(record models.ValidatedRecord) (string, string) {
	if record.Price >= LuxuryThreshold {
		brandText := normalize(record.Brand + " " + record.Name)
		if _, ok := firstMatch(brandText, luxuryBrands); ok {
			return "OPULENCIA_PREMIUM", "Premium & Luxury"
		}
	}

	text := normalize(record.Name + " " + record.Category)
	for _, rule := range profileRules {
		if _, ok := firstMatch(text, rule.keywords); ok {
			return rule.profile, rule.category
		}
	}

	// The description is a weaker signal, used only when name and category say nothing
	desc := normalize(record.Description)
	for _, rule := range profileRules {
		if _, ok := firstMatch(desc, rule.keywords); ok {
			return rule.profile, rule.category
		}
	}
	return "", ""
}

// normalize lowercases and pads with spaces so keywords match on word boundaries
func normalize(s string) string {
	return " " + strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(s), " ")) + " "
}

func firstMatch(text string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if strings.Contains(text, normalize(kw)) {
			return kw, true
		}
	}
	return "", false
}
