package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/models"
)

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, r models.ValidatedRecord) (*models.Classification, error) {
	args := m.Called(ctx, r)
	if c, ok := args.Get(0).(*models.Classification); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockPricer struct {
	mock.Mock
}

func (m *mockPricer) Price(ctx context.Context, req models.PricingRequest) (*models.Premiums, error) {
	args := m.Called(ctx, req)
	if p, ok := args.Get(0).(*models.Premiums); ok {
		return p, args.Error(1)
	}
	return nil, args.Error(1)
}

func planIs(plan models.PricingPlan) interface{} {
	return mock.MatchedBy(func(req models.PricingRequest) bool { return req.Plan == plan })
}

var phone = models.ValidatedRecord{
	Name: "iPhone 15", Price: 3499, Currency: "AED", Category: "Mobiles", Market: "UAE", URL: "https://noon.com/iphone-15",
}

func TestEnrich_EligibleWithAssurmax(t *testing.T) {
	classifier := &mockClassifier{}
	pricer := &mockPricer{}

	classifier.On("Classify", mock.Anything, phone).Return(&models.Classification{
		Eligible: true, Reason: "Product is covered", RiskProfile: "ELECTRONIC_PRODUCTS",
	}, nil)
	pricer.On("Price", mock.Anything, planIs(models.PricingPlanStandard)).Return(&models.Premiums{
		RiskProfile: "ELECTRONIC_PRODUCTS", TwelveMonth: models.Money{Amount: 332.41, Currency: "AED"},
	}, nil)
	pricer.On("Price", mock.Anything, planIs(models.PricingPlanAssurmax)).Return(&models.Premiums{
		Assurmax: &models.AssurmaxOffer{PackCap: 5000, MaxProducts: 3},
	}, nil)

	result, err := NewEnricher(classifier, pricer, arbor.NewLogger()).Enrich(context.Background(), phone)
	require.NoError(t, err)

	assert.True(t, result.Eligible)
	assert.False(t, result.Failed)
	require.NotNil(t, result.Premiums)
	assert.Equal(t, 332.41, result.Premiums.TwelveMonth.Amount)
	require.NotNil(t, result.Premiums.Assurmax)
	assert.Equal(t, 3, result.Premiums.Assurmax.MaxProducts)
	classifier.AssertExpectations(t)
	pricer.AssertExpectations(t)
}

func TestEnrich_IneligibleSkipsPricing(t *testing.T) {
	classifier := &mockClassifier{}
	pricer := &mockPricer{}
	classifier.On("Classify", mock.Anything, phone).Return(&models.Classification{
		Eligible: false, Reason: "Refurbished products are excluded",
	}, nil)

	result, err := NewEnricher(classifier, pricer, arbor.NewLogger()).Enrich(context.Background(), phone)
	require.NoError(t, err)

	assert.False(t, result.Eligible)
	assert.False(t, result.Failed)
	assert.Equal(t, "Refurbished products are excluded", result.Reason)
	pricer.AssertNotCalled(t, "Price", mock.Anything, mock.Anything)
}

func TestEnrich_ClassificationFailureDegrades(t *testing.T) {
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, phone).Return(nil, errors.New("model unavailable"))

	result, err := NewEnricher(classifier, &mockPricer{}, arbor.NewLogger()).Enrich(context.Background(), phone)
	require.NoError(t, err)

	assert.False(t, result.Eligible)
	assert.True(t, result.Failed)
	assert.Contains(t, result.Reason, "Classification failed: model unavailable")
	assert.Equal(t, "UAE", result.Market)
}

func TestEnrich_PricingFailureDegrades(t *testing.T) {
	classifier := &mockClassifier{}
	pricer := &mockPricer{}
	classifier.On("Classify", mock.Anything, phone).Return(&models.Classification{
		Eligible: true, Reason: "Product is covered", RiskProfile: "UNKNOWN_PROFILE",
	}, nil)
	pricer.On("Price", mock.Anything, planIs(models.PricingPlanStandard)).Return(nil, errors.New("unknown risk profile"))

	result, err := NewEnricher(classifier, pricer, arbor.NewLogger()).Enrich(context.Background(), phone)
	require.NoError(t, err)

	assert.False(t, result.Eligible)
	assert.True(t, result.Failed)
	assert.Equal(t, "Pricing failed: unknown risk profile", result.Reason)
	assert.Nil(t, result.Premiums)
}

func TestEnrich_NoAssurmaxAboveLimit(t *testing.T) {
	tv := phone
	tv.Name = "OLED TV 77"
	tv.Price = 12999

	classifier := &mockClassifier{}
	pricer := &mockPricer{}
	classifier.On("Classify", mock.Anything, tv).Return(&models.Classification{
		Eligible: true, Reason: "Product is covered", RiskProfile: "HOME_AV",
	}, nil)
	pricer.On("Price", mock.Anything, planIs(models.PricingPlanStandard)).Return(&models.Premiums{}, nil)

	result, err := NewEnricher(classifier, pricer, arbor.NewLogger()).Enrich(context.Background(), tv)
	require.NoError(t, err)

	assert.True(t, result.Eligible)
	assert.Nil(t, result.Premiums.Assurmax)
	pricer.AssertNumberOfCalls(t, "Price", 1)
}

func TestEnrich_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEnricher(&mockClassifier{}, &mockPricer{}, arbor.NewLogger()).Enrich(ctx, phone)
	assert.ErrorIs(t, err, ErrStopped)
}
