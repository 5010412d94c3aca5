package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/shinelocal/spotlight/internal/domain"
	"github.com/shinelocal/spotlight/internal/geo"
	"github.com/shinelocal/spotlight/internal/repository"
)

// Availability is the resolved purchasable remainder of an area for one
// (category, slot) tuple.
type Availability struct {
	GeoJSON string  `json:"geojson"`
	AreaKm2 float64 `json:"area_km2"`
	SoldOut bool    `json:"sold_out"`
}

// AvailabilityService is the single authoritative computation of "what can
// still be bought". Every pricing and checkout decision goes through here;
// nothing else re-derives availability.
type AvailabilityService struct {
	sponsorships repository.SponsorshipRepository
	areas        repository.AreaRepository
	logger       *zap.Logger
}

// NewAvailabilityService creates a new AvailabilityService.
func NewAvailabilityService(
	sponsorships repository.SponsorshipRepository,
	areas repository.AreaRepository,
	logger *zap.Logger,
) *AvailabilityService {
	return &AvailabilityService{
		sponsorships: sponsorships,
		areas:        areas,
		logger:       logger,
	}
}

// Remaining computes the area's geometry minus the union of all active-like
// competitor claims for (category, slot). excludeBusinessID removes one
// business from the blocker set, used when previewing an upgrade for the
// current owner.
//
// The failure mode is closed: any internal error short of "area does not
// exist" resolves to sold out rather than to an over-grant.
func (s *AvailabilityService) Remaining(ctx context.Context, areaID, categoryID string, slot int, excludeBusinessID string) (*Availability, error) {
	geoJSON, areaKm2, err := s.sponsorships.RemainingArea(ctx, areaID, categoryID, slot, excludeBusinessID)
	if err != nil {
		if errors.Is(err, domain.ErrAreaNotFound) {
			return nil, err
		}
		s.logger.Warn("remaining-area computation failed, resolving as sold out",
			zap.String("area_id", areaID),
			zap.String("category_id", categoryID),
			zap.Int("slot", slot),
			zap.Error(err))
		return &Availability{SoldOut: true}, nil
	}

	if geoJSON == "" || areaKm2 <= geo.EpsilonKm2 {
		return &Availability{SoldOut: true}, nil
	}
	return &Availability{GeoJSON: geoJSON, AreaKm2: areaKm2, SoldOut: false}, nil
}
