package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/models"
	"github.com/ternarybob/covera/internal/services/llm"
)

const maxDescriptionRunes = 1000

const systemInstruction = `You are an insurance underwriting assistant for consumer product protection plans in the UAE and Tunisia.
Decide whether a retail product is eligible for coverage and assign it exactly one risk profile code.
Products that are refurbished, used, rented, gift cards, vouchers or subscriptions are never eligible.
Luxury branded items priced at 3000 or more use OPULENCIA_PREMIUM.`

// decision is the JSON object the model must return
type decision struct {
	Eligible        bool     `json:"eligible"`
	Reason          string   `json:"reason" validate:"required"`
	RiskProfile     string   `json:"risk_profile"`
	Category        string   `json:"category" validate:"omitempty,max=80"`
	CoverageModules []string `json:"coverage_modules" validate:"omitempty,dive,required"`
	Exclusions      []string `json:"exclusions" validate:"omitempty,dive,required"`
}

// LLMClassifier asks a language model for the eligibility decision and
// falls back to the rule tables for a missing or unknown risk profile
type LLMClassifier struct {
	provider llm.Provider
	rules    *RuleClassifier
	profiles []string
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewLLMClassifier creates a classifier. profiles lists the risk profile codes the pricer accepts.
func NewLLMClassifier(provider llm.Provider, rules *RuleClassifier, profiles []string, logger arbor.ILogger) *LLMClassifier {
	return &LLMClassifier{
		provider: provider,
		rules:    rules,
		profiles: profiles,
		validate: validator.New(),
		logger:   logger,
	}
}

func (c *LLMClassifier) Classify(ctx context.Context, record models.ValidatedRecord) (*models.Classification, error) {
	resp, err := c.provider.GenerateContent(ctx, &llm.ContentRequest{
		SystemInstruction: systemInstruction,
		Prompt:            c.prompt(record),
		JSONOutput:        true,
	})
	if err != nil {
		return nil, err
	}

	raw, err := llm.ExtractJSONObject(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("unparseable %s response: %w", resp.Provider, err)
	}

	var d decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, fmt.Errorf("unparseable %s response: %w", resp.Provider, err)
	}
	if err := c.validate.Struct(d); err != nil {
		return nil, fmt.Errorf("invalid %s decision: %w", resp.Provider, err)
	}

	result := &models.Classification{
		Eligible:        d.Eligible,
		Reason:          d.Reason,
		RiskProfile:     strings.ToUpper(strings.TrimSpace(d.RiskProfile)),
		Category:        d.Category,
		CoverageModules: d.CoverageModules,
		Exclusions:      d.Exclusions,
	}

	if result.Eligible && !c.usableProfile(record, result.RiskProfile) {
		fallback, err := c.rules.Classify(ctx, record)
		if err != nil {
			return nil, err
		}
		c.logger.Debug().
			Str("product", record.Name).
			Str("model_profile", d.RiskProfile).
			Str("rule_profile", fallback.RiskProfile).
			Msg("Model risk profile unusable, using rule tables")
		if !fallback.Eligible {
			return fallback, nil
		}
		result.RiskProfile = fallback.RiskProfile
		if result.Category == "" {
			result.Category = fallback.Category
		}
	}

	if err := c.validate.Struct(result); err != nil {
		return nil, fmt.Errorf("invalid classification: %w", err)
	}
	return result, nil
}

// usableProfile reports whether the pricer knows profile for the record's market
func (c *LLMClassifier) usableProfile(record models.ValidatedRecord, profile string) bool {
	if !slices.Contains(c.profiles, profile) {
		return false
	}
	return (record.Market == common.MarketTunisia) == strings.HasSuffix(profile, "_TN")
}

func (c *LLMClassifier) prompt(record models.ValidatedRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PRODUCT\n- Name: %s\n- Brand: %s\n- Category: %s\n- Price: %.2f %s\n- Market: %s\n",
		record.Name, record.Brand, record.Category, record.Price, record.Currency, record.Market)
	if record.Description != "" {
		desc := record.Description
		if runes := []rune(desc); len(runes) > maxDescriptionRunes {
			desc = string(runes[:maxDescriptionRunes])
		}
		fmt.Fprintf(&b, "- Description: %s\n", desc)
	}
	fmt.Fprintf(&b, "\nALLOWED RISK PROFILES: %s\n", strings.Join(c.profiles, ", "))
	b.WriteString(`
Return JSON:
{"eligible": true|false, "reason": "...", "risk_profile": "CODE", "category": "1-3 words",
 "coverage_modules": ["..."], "exclusions": ["..."]}`)
	return b.String()
}
