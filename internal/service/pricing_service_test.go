package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPricing_AreaTimesRate(t *testing.T) {
	p := NewPricingService(PricingConfig{
		Default:  PriceRate{RatePerKm2: 15, MinimumMonthly: 5},
		Currency: "gbp",
	})

	assert.Equal(t, 90.0, p.MonthlyPrice(6, testCategoryID, 1))
}

func TestPricing_MinimumFloor(t *testing.T) {
	p := NewPricingService(PricingConfig{
		Default: PriceRate{RatePerKm2: 15, MinimumMonthly: 5},
	})

	// A sliver of remaining area must not produce a near-zero charge.
	assert.Equal(t, 5.0, p.MonthlyPrice(0.01, testCategoryID, 1))
	assert.Equal(t, 5.0, p.MonthlyPrice(0, testCategoryID, 1))
}

func TestPricing_RoundsToMinorUnitPrecision(t *testing.T) {
	p := NewPricingService(PricingConfig{
		Default: PriceRate{RatePerKm2: 0.1, MinimumMonthly: 0},
	})

	assert.Equal(t, 0.33, p.MonthlyPrice(3.333, testCategoryID, 1))
	assert.Equal(t, int64(33), p.MinorUnits(p.MonthlyPrice(3.333, testCategoryID, 1)))
}

func TestPricing_PerTierOverride(t *testing.T) {
	p := NewPricingService(PricingConfig{
		Default: PriceRate{RatePerKm2: 15, MinimumMonthly: 5},
		Overrides: map[string]PriceRate{
			testCategoryID + ":2": {RatePerKm2: 30, MinimumMonthly: 10},
		},
	})

	assert.Equal(t, 90.0, p.MonthlyPrice(6, testCategoryID, 1))
	assert.Equal(t, 180.0, p.MonthlyPrice(6, testCategoryID, 2))
	assert.Equal(t, 10.0, p.MonthlyPrice(0.01, testCategoryID, 2))
}

func TestPricing_TotalPriceNoDiscount(t *testing.T) {
	p := NewPricingService(PricingConfig{
		Default: PriceRate{RatePerKm2: 15, MinimumMonthly: 5},
	})

	monthly := p.MonthlyPrice(6, testCategoryID, 1)
	assert.Equal(t, 540.0, p.TotalPrice(monthly, 6))
	assert.Equal(t, monthly, p.TotalPrice(monthly, 0))
}

func TestPricing_DefaultCurrency(t *testing.T) {
	p := NewPricingService(PricingConfig{})
	assert.Equal(t, "gbp", p.Currency())
}
