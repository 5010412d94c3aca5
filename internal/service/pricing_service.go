package service

import (
	"fmt"
	"math"
)

// PriceRate is one rate card entry: a per-km² monthly rate with a floor.
type PriceRate struct {
	RatePerKm2     float64
	MinimumMonthly float64
}

// PricingConfig holds the global rate card plus optional per-(category, slot)
// overrides. Overrides exist so tiers can later be priced differently without
// changing the formula shape.
type PricingConfig struct {
	Default   PriceRate
	Currency  string
	Overrides map[string]PriceRate // key: "{categoryID}:{slot}"
}

// PricingService prices sponsored placements by remaining area.
type PricingService struct {
	config PricingConfig
}

// NewPricingService creates a new PricingService.
func NewPricingService(config PricingConfig) *PricingService {
	if config.Currency == "" {
		config.Currency = "gbp"
	}
	return &PricingService{config: config}
}

// Currency returns the ISO currency code prices are denominated in.
func (s *PricingService) Currency() string {
	return s.config.Currency
}

// MonthlyPrice returns max(minimum, areaKm2 * rate) in major units, rounded
// to minor-unit precision. The floor keeps slivers of remaining area from
// producing near-zero recurring charges.
func (s *PricingService) MonthlyPrice(areaKm2 float64, categoryID string, slot int) float64 {
	rate := s.rateFor(categoryID, slot)
	price := areaKm2 * rate.RatePerKm2
	if price < rate.MinimumMonthly {
		price = rate.MinimumMonthly
	}
	return math.Round(price*100) / 100
}

// TotalPrice is monthly * months with no commitment discount.
func (s *PricingService) TotalPrice(monthly float64, months int) float64 {
	if months < 1 {
		months = 1
	}
	return math.Round(monthly*float64(months)*100) / 100
}

// MinorUnits converts a major-unit amount to the currency's minor units.
func (s *PricingService) MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func (s *PricingService) rateFor(categoryID string, slot int) PriceRate {
	if r, ok := s.config.Overrides[fmt.Sprintf("%s:%d", categoryID, slot)]; ok {
		return r
	}
	return s.config.Default
}
