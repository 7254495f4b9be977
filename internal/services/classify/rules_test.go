package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/covera/internal/common"
	"github.com/ternarybob/covera/internal/models"
)

func uae(name string, price float64) models.ValidatedRecord {
	return models.ValidatedRecord{Name: name, Price: price, Currency: "AED", Market: common.MarketUAE, Category: "Unknown"}
}

func TestRuleClassifier_Profiles(t *testing.T) {
	c := NewRuleClassifier(arbor.NewLogger())

	tests := []struct {
		name    string
		record  models.ValidatedRecord
		profile string
	}{
		{"smartphone", uae("Apple iPhone 15 Pro 256GB", 4299), "MOBILE_PERSONAL"},
		{"laptop", uae("Lenovo IdeaPad Laptop 15", 2499), "COMPUTING_GAMING"},
		{"tv", uae("Samsung 55\" QLED TV", 2999), "HOME_AV"},
		{"appliance", uae("Bosch Washing Machine 8kg", 1899), "HOME_APPLIANCES"},
		{"e-bike", uae("Fiido E-Bike X", 3500), "MICRO_MOBILITY_ESSENTIAL"},
		{"luxury", models.ValidatedRecord{Name: "Submariner Date", Brand: "Rolex", Price: 45000, Market: common.MarketUAE}, "OPULENCIA_PREMIUM"},
		{"cheap branded", models.ValidatedRecord{Name: "Gucci mini handbag", Brand: "Gucci", Price: 900, Market: common.MarketUAE}, "BAGS_LUGGAGE_ESSENTIAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(context.Background(), tt.record)
			require.NoError(t, err)
			assert.True(t, got.Eligible, got.Reason)
			assert.Equal(t, tt.profile, got.RiskProfile)
			assert.NotEmpty(t, got.CoverageModules)
		})
	}
}

func TestRuleClassifier_WordBoundaries(t *testing.T) {
	c := NewRuleClassifier(arbor.NewLogger())
	// "tv" must not match inside other words
	got, err := c.Classify(context.Background(), uae("Gift wrap for festive season", 20))
	require.NoError(t, err)
	assert.False(t, got.Eligible)
	assert.Equal(t, "No matching coverage category", got.Reason)
}

func TestRuleClassifier_Exclusions(t *testing.T) {
	c := NewRuleClassifier(arbor.NewLogger())
	for _, name := range []string{"Refurbished iPhone 13", "PlayStation Gift Card 100 AED", "Laptop rental monthly"} {
		got, err := c.Classify(context.Background(), uae(name, 500))
		require.NoError(t, err)
		assert.False(t, got.Eligible, name)
		assert.Contains(t, got.Reason, "Excluded")
	}
}

func TestRuleClassifier_Tunisia(t *testing.T) {
	c := NewRuleClassifier(arbor.NewLogger())

	got, err := c.Classify(context.Background(), models.ValidatedRecord{
		Name: "Lave-linge Condor 8kg", Price: 1299, Currency: "TND", Market: common.MarketTunisia,
	})
	require.NoError(t, err)
	assert.True(t, got.Eligible)
	assert.Equal(t, "HOME_APPLIANCES_TN", got.RiskProfile)

	got, err = c.Classify(context.Background(), models.ValidatedRecord{
		Name: "Guitare acoustique guitar", Price: 600, Currency: "TND", Market: common.MarketTunisia,
	})
	require.NoError(t, err)
	assert.False(t, got.Eligible)
	assert.Contains(t, got.Reason, "not covered in Tunisia")
}

func TestRuleClassifier_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRuleClassifier(arbor.NewLogger()).Classify(ctx, uae("iPhone", 1000))
	assert.ErrorIs(t, err, context.Canceled)
}
