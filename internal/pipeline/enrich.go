package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/interfaces"
	"github.com/ternarybob/covera/internal/models"
)

// AssurmaxValueLimit is the highest product value offered the ASSURMAX pack
const AssurmaxValueLimit = 5000.0

var assurmaxKeywords = []string{
	"ELECTRONIC", "SMARTPHONE", "LAPTOP", "TABLET", "TV", "TELEVISION", "SMARTWATCH", "GAMING", "CONSOLE",
}

// Enricher folds classification and pricing into an enrichment result
type Enricher struct {
	classifier interfaces.Classifier
	pricer     interfaces.Pricer
	logger     arbor.ILogger
}

func NewEnricher(classifier interfaces.Classifier, pricer interfaces.Pricer, logger arbor.ILogger) *Enricher {
	return &Enricher{
		classifier: classifier,
		pricer:     pricer,
		logger:     logger,
	}
}

// Enrich classifies a record and prices it when eligible. Collaborator failures
// degrade the result to ineligible with Failed set; the only error returned is
// ErrStopped, when ctx was cancelled.
func (e *Enricher) Enrich(ctx context.Context, record models.ValidatedRecord) (models.Enrichment, error) {
	result := models.Enrichment{Market: record.Market, Category: record.Category}

	if ctx.Err() != nil {
		return result, ErrStopped
	}

	classification, err := e.classifier.Classify(ctx, record)
	if err != nil {
		if ctx.Err() != nil {
			return result, ErrStopped
		}
		e.logger.Warn().Err(err).Str("product", record.Name).Msg("Classification failed, marking ineligible")
		result.Reason = fmt.Sprintf("Classification failed: %v", err)
		result.Failed = true
		return result, nil
	}

	result.Eligible = classification.Eligible
	result.Reason = classification.Reason
	result.RiskProfile = classification.RiskProfile
	result.CoverageModules = classification.CoverageModules
	result.Exclusions = classification.Exclusions
	if classification.Category != "" {
		result.Category = classification.Category
	}

	if !result.Eligible {
		return result, nil
	}

	if ctx.Err() != nil {
		return result, ErrStopped
	}

	premiums, err := e.pricer.Price(ctx, models.PricingRequest{
		RiskProfile:  result.RiskProfile,
		Category:     result.Category,
		ProductValue: record.Price,
		Market:       record.Market,
		Plan:         models.PricingPlanStandard,
	})
	if err != nil {
		if ctx.Err() != nil {
			return result, ErrStopped
		}
		e.logger.Warn().Err(err).Str("product", record.Name).Msg("Pricing failed, marking ineligible")
		result.Eligible = false
		result.Reason = fmt.Sprintf("Pricing failed: %v", err)
		result.Failed = true
		return result, nil
	}
	result.Premiums = premiums

	if qualifiesForAssurmax(record, result) {
		pack, err := e.pricer.Price(ctx, models.PricingRequest{
			RiskProfile:  result.RiskProfile,
			Category:     result.Category,
			ProductValue: record.Price,
			Market:       record.Market,
			Plan:         models.PricingPlanAssurmax,
		})
		switch {
		case err == nil && pack.Assurmax != nil:
			result.Premiums.Assurmax = pack.Assurmax
		case ctx.Err() != nil:
			return result, ErrStopped
		case err != nil:
			// The standard offer stands on its own
			e.logger.Debug().Err(err).Str("product", record.Name).Msg("ASSURMAX pricing unavailable")
		}
	}

	return result, nil
}

func qualifiesForAssurmax(record models.ValidatedRecord, result models.Enrichment) bool {
	if record.Market != common.MarketUAE || record.Price > AssurmaxValueLimit {
		return false
	}
	profile := strings.ToUpper(result.RiskProfile)
	category := strings.ToUpper(result.Category)
	for _, kw := range assurmaxKeywords {
		if strings.Contains(profile, kw) || strings.Contains(category, kw) {
			return true
		}
	}
	return false
}
