package repository

import (
	"context"

	"github.com/shinelocal/spotlight/internal/domain"
)

// SponsorshipRepository is the sponsorship ledger: the single source of truth
// for who owns which geometry in which (area, category, slot).
type SponsorshipRepository interface {
	// Upsert writes a sponsorship keyed by its Stripe subscription ID.
	// The write is atomic with the overlap check: it returns
	// domain.ErrOverlapConflict when the geometry would intersect another
	// active-like claim in the same (area, category, slot), and
	// domain.ErrDuplicateSponsorship when the business already holds a
	// different active-like row there. Re-upserting the same subscription ID
	// updates in place (idempotent webhook re-processing).
	Upsert(ctx context.Context, s *domain.Sponsorship) error

	// GetByStripeSubscriptionID retrieves a sponsorship by its external
	// subscription ID.
	GetByStripeSubscriptionID(ctx context.Context, subID string) (*domain.Sponsorship, error)

	// GetActiveLike retrieves the active-like sponsorship held by a business
	// for (area, category, slot), if any.
	GetActiveLike(ctx context.Context, businessID, areaID, categoryID string, slot int) (*domain.Sponsorship, error)

	// ListBlocking lists all active-like sponsorships for (area, category,
	// slot), optionally excluding one business.
	ListBlocking(ctx context.Context, areaID, categoryID string, slot int, excludeBusinessID string) ([]*domain.Sponsorship, error)

	// RemainingArea computes the still-purchasable sub-geometry of the area
	// for (category, slot): the area geometry minus the union of all
	// active-like competitor claims. Returns the remaining MultiPolygon as
	// GeoJSON (empty string when nothing remains) and its spherical area in
	// km². This is the authoritative server-side computation.
	RemainingArea(ctx context.Context, areaID, categoryID string, slot int, excludeBusinessID string) (geojson string, areaKm2 float64, err error)

	// ListByArea lists all active-like sponsorships of an area across
	// categories and slots, newest first.
	ListByArea(ctx context.Context, areaID string) ([]*domain.Sponsorship, error)

	// Update persists mutated fields of an existing sponsorship by ID.
	Update(ctx context.Context, s *domain.Sponsorship) error

	// GetStripeCustomerID returns the stored billing customer for a business,
	// empty when none has been created yet.
	GetStripeCustomerID(ctx context.Context, businessID string) (string, error)

	// SaveStripeCustomerID stores the billing customer for a business.
	SaveStripeCustomerID(ctx context.Context, businessID, customerID string) error
}
