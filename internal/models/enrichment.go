package models

// Classification is the eligibility decision for one product
type Classification struct {
	Eligible        bool     `json:"eligible"`
	Reason          string   `json:"reason" validate:"required"`
	RiskProfile     string   `json:"risk_profile" validate:"required_if=Eligible true"`
	Category        string   `json:"category,omitempty"`
	CoverageModules []string `json:"coverage_modules,omitempty"`
	Exclusions      []string `json:"exclusions,omitempty"`
}

// PricingPlan selects the premium computation
type PricingPlan string

const (
	PricingPlanStandard PricingPlan = "STANDARD"
	PricingPlanAssurmax PricingPlan = "ASSURMAX"
)

// PricingRequest is the input to a premium computation
type PricingRequest struct {
	RiskProfile  string      `json:"risk_profile"`
	Category     string      `json:"category,omitempty"`
	ProductValue float64     `json:"product_value" validate:"gt=0"`
	Market       string      `json:"market" validate:"required"`
	Plan         PricingPlan `json:"plan"`
}

// Money is an amount in a currency
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// AssurmaxOffer is the pack offer for low value UAE electronics
type AssurmaxOffer struct {
	Monthly     Money   `json:"monthly"`
	Annual      Money   `json:"annual"`
	TwoYear     Money   `json:"two_year"`
	PackCap     float64 `json:"pack_cap"`
	MaxProducts int     `json:"max_products"`
}

// Premiums are the priced figures for an eligible product
type Premiums struct {
	RiskProfile string         `json:"risk_profile"`
	Bucket      string         `json:"bucket"`
	Rate        float64        `json:"rate"`
	Monthly     Money          `json:"monthly"`
	TwelveMonth Money          `json:"twelve_month"`
	TwentyFour  Money          `json:"twenty_four_month"`
	Assurmax    *AssurmaxOffer `json:"assurmax,omitempty"`
}

// Enrichment is the classification and pricing outcome folded into a result
type Enrichment struct {
	Eligible        bool      `json:"eligible"`
	Reason          string    `json:"reason"`
	RiskProfile     string    `json:"risk_profile,omitempty"`
	Category        string    `json:"category,omitempty"`
	Market          string    `json:"market"`
	CoverageModules []string  `json:"coverage_modules,omitempty"`
	Exclusions      []string  `json:"exclusions,omitempty"`
	Premiums        *Premiums `json:"premiums,omitempty"`
	Failed          bool      `json:"failed,omitempty"` // Set when classification or pricing errored
}
