package pricing

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/models"
)

// Service computes STANDARD and ASSURMAX premiums from a rate table
type Service struct {
	table    *RateTable
	validate *validator.Validate
	logger   arbor.ILogger
}

func NewService(table *RateTable, logger arbor.ILogger) *Service {
	if table == nil {
		table = DefaultRateTable()
	}
	return &Service{
		table:    table,
		validate: validator.New(),
		logger:   logger,
	}
}

// Profiles returns the risk profile codes this pricer accepts
func (s *Service) Profiles() []string {
	return s.table.Profiles()
}

// Price computes premiums for one product
func (s *Service) Price(ctx context.Context, req models.PricingRequest) (*models.Premiums, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid pricing request: %w", err)
	}

	switch req.Plan {
	case models.PricingPlanAssurmax:
		return s.assurmax(req)
	case models.PricingPlanStandard, "":
		return s.standard(req)
	default:
		return nil, fmt.Errorf("invalid plan %q", req.Plan)
	}
}

func (s *Service) standard(req models.PricingRequest) (*models.Premiums, error) {
	if req.RiskProfile == "" {
		return nil, fmt.Errorf("risk_profile is required for STANDARD pricing")
	}

	tunisia := isTunisia(req.Market)
	var bucket, currency string
	if tunisia {
		buckets, ok := s.table.TunisiaBuckets[req.RiskProfile]
		if !ok {
			buckets = s.table.TunisiaDefault
		}
		bucket = bucketFor(buckets, req.ProductValue, "")
		currency = "TND"
	} else {
		buckets, ok := s.table.UAEBuckets[req.RiskProfile]
		if !ok {
			buckets = s.table.UAEDefaultBuckets
		}
		bucket = bucketFor(buckets, req.ProductValue, "H")
		currency = "AED"
	}

	rate, ok := s.table.Rates[req.RiskProfile][bucket]
	if !ok {
		return nil, fmt.Errorf("no rate for risk profile %s in bucket %s", req.RiskProfile, bucket)
	}

	annual := round2(req.ProductValue * rate)
	return &models.Premiums{
		RiskProfile: req.RiskProfile,
		Bucket:      bucket,
		Rate:        rate,
		Monthly:     models.Money{Amount: round2(annual * s.table.MonthlyLoading / 12), Currency: currency},
		TwelveMonth: models.Money{Amount: annual, Currency: currency},
		TwentyFour:  models.Money{Amount: round2(annual * s.table.TwoYearFactor), Currency: currency},
	}, nil
}

func (s *Service) assurmax(req models.PricingRequest) (*models.Premiums, error) {
	terms := s.table.Assurmax
	if !isUAE(req.Market) {
		return nil, fmt.Errorf("ASSURMAX is only available for the UAE market")
	}
	if req.ProductValue > terms.PackCap {
		return nil, fmt.Errorf("product value %.2f %s exceeds the ASSURMAX pack cap %.0f", req.ProductValue, terms.Currency, terms.PackCap)
	}

	annual := round2(terms.PackCap * terms.PremiumRate)
	return &models.Premiums{
		RiskProfile: req.RiskProfile,
		Rate:        terms.PremiumRate,
		Assurmax: &models.AssurmaxOffer{
			Monthly:     models.Money{Amount: round2(annual * s.table.MonthlyLoading / 12), Currency: terms.Currency},
			Annual:      models.Money{Amount: annual, Currency: terms.Currency},
			TwoYear:     models.Money{Amount: round2(annual * 2), Currency: terms.Currency},
			PackCap:     terms.PackCap,
			MaxProducts: terms.MaxProducts,
		},
	}, nil
}

func isUAE(market string) bool {
	return strings.EqualFold(market, common.MarketUAE) || strings.EqualFold(market, "AE")
}

func isTunisia(market string) bool {
	m := strings.ToLower(market)
	return m == "tn" || strings.Contains(m, "tunisia")
}
