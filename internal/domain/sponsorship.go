package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SponsorshipStatus represents the lifecycle status of a sponsorship (matches DB ENUM)
type SponsorshipStatus string

const (
	// StatusProvisional means a checkout session exists but billing has not confirmed yet.
	StatusProvisional SponsorshipStatus = "provisional"
	StatusActive      SponsorshipStatus = "active"
	StatusTrialing    SponsorshipStatus = "trialing"
	StatusPastDue     SponsorshipStatus = "past_due"
	StatusUnpaid      SponsorshipStatus = "unpaid"
	StatusIncomplete  SponsorshipStatus = "incomplete"
	StatusPaused      SponsorshipStatus = "paused"
	// StatusCanceling means cancellation is scheduled at period end; the
	// geometry stays reserved until the paid period actually ends.
	StatusCanceling SponsorshipStatus = "canceling"
	StatusCanceled  SponsorshipStatus = "canceled"
)

// ActiveLikeStatuses are the statuses that count as a live claim on geometry
// and block competitors in the same (area, category, slot).
var ActiveLikeStatuses = []SponsorshipStatus{
	StatusProvisional,
	StatusActive,
	StatusTrialing,
	StatusPastDue,
	StatusUnpaid,
	StatusIncomplete,
	StatusPaused,
	StatusCanceling,
}

// IsActiveLike reports whether the status counts as a live, geometry-blocking claim.
func (s SponsorshipStatus) IsActiveLike() bool {
	for _, st := range ActiveLikeStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// StatusFromBilling maps a billing provider's subscription status onto the
// ledger's status set. Cancel-at-period-end on a live subscription reads as
// canceling. Unknown statuses map to provisional so an unrecognized but live
// subscription still blocks its geometry.
func StatusFromBilling(status string, cancelAtPeriodEnd bool) SponsorshipStatus {
	switch status {
	case "active":
		if cancelAtPeriodEnd {
			return StatusCanceling
		}
		return StatusActive
	case "trialing":
		return StatusTrialing
	case "past_due":
		return StatusPastDue
	case "unpaid":
		return StatusUnpaid
	case "incomplete":
		return StatusIncomplete
	case "paused":
		return StatusPaused
	case "canceled", "incomplete_expired":
		return StatusCanceled
	default:
		return StatusProvisional
	}
}

// Sponsorship is a billed claim on a sub-geometry of a service area, scoped to
// a category and placement slot. The owned geometry may be smaller than the
// full area when competitors already hold part of it.
type Sponsorship struct {
	ID         string            `json:"id"`
	BusinessID string            `json:"business_id"`
	AreaID     string            `json:"area_id"`
	CategoryID string            `json:"category_id"`
	Slot       int               `json:"slot"`
	Status     SponsorshipStatus `json:"status"`

	// GeoJSON is the owned MultiPolygon, SRID 4326.
	GeoJSON string  `json:"geojson"`
	AreaKm2 float64 `json:"area_km2"`

	MonthlyPrice float64 `json:"monthly_price"`
	Currency     string  `json:"currency"`

	StripeSubscriptionID string     `json:"stripe_subscription_id,omitempty"`
	StripeCustomerID     string     `json:"stripe_customer_id,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `json:"cancel_at_period_end"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSponsorship creates a sponsorship in the provisional state.
func NewSponsorship(businessID, areaID, categoryID string, slot int, geojson string, areaKm2, monthlyPrice float64, currency string) (*Sponsorship, error) {
	if businessID == "" {
		return nil, errors.New("business_id is required")
	}
	if areaID == "" {
		return nil, errors.New("area_id is required")
	}
	if categoryID == "" {
		return nil, errors.New("category_id is required")
	}
	if slot < 1 {
		return nil, errors.New("slot must be >= 1")
	}
	if geojson == "" {
		return nil, errors.New("geometry is required")
	}
	if areaKm2 <= 0 {
		return nil, errors.New("area must be positive")
	}
	if currency == "" {
		currency = "gbp"
	}

	now := time.Now().UTC()
	return &Sponsorship{
		ID:           uuid.New().String(),
		BusinessID:   businessID,
		AreaID:       areaID,
		CategoryID:   categoryID,
		Slot:         slot,
		Status:       StatusProvisional,
		GeoJSON:      geojson,
		AreaKm2:      areaKm2,
		MonthlyPrice: monthlyPrice,
		Currency:     currency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Confirm applies a confirmed billing status to a provisional or already
// active-like sponsorship. Canceled is terminal and cannot be confirmed over.
func (s *Sponsorship) Confirm(status SponsorshipStatus) error {
	if s.Status == StatusCanceled {
		return ErrSponsorshipCanceled
	}
	if !status.IsActiveLike() {
		return ErrInvalidStatusTransition
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel marks the sponsorship canceled and releases its geometry claim.
// Safe to call repeatedly; cancellation is terminal either way.
func (s *Sponsorship) Cancel() {
	s.Status = StatusCanceled
	s.UpdatedAt = time.Now().UTC()
}

// ScheduleCancel schedules cancellation at the end of the current billing
// period. The geometry stays in the blocking set until then.
func (s *Sponsorship) ScheduleCancel() error {
	if !s.Status.IsActiveLike() {
		return ErrInvalidStatusTransition
	}
	s.Status = StatusCanceling
	s.CancelAtPeriodEnd = true
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Reactivate undoes a scheduled cancellation before the period ends.
func (s *Sponsorship) Reactivate() error {
	if s.Status != StatusCanceling {
		return ErrInvalidStatusTransition
	}
	s.Status = StatusActive
	s.CancelAtPeriodEnd = false
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Expired reports whether a period-end cancellation has become effective.
func (s *Sponsorship) Expired(now time.Time) bool {
	return s.Status == StatusCanceling && s.CurrentPeriodEnd != nil && now.After(*s.CurrentPeriodEnd)
}

// IsBlocking reports whether this sponsorship currently blocks competitors.
func (s *Sponsorship) IsBlocking() bool {
	return s.Status.IsActiveLike()
}
