package dto

import (
	"time"

	"github.com/shinelocal/spotlight/internal/domain"
)

// CheckoutRequest starts a sponsored-placement purchase.
type CheckoutRequest struct {
	BusinessID string `json:"business_id" binding:"required"`
	AreaID     string `json:"area_id" binding:"required"`
	CategoryID string `json:"category_id" binding:"required"`
	Slot       int    `json:"slot"`
}

// CheckoutResponse carries the billing provider's redirect URL.
type CheckoutResponse struct {
	OK  bool   `json:"ok"`
	URL string `json:"url"`
}

// PreviewRequest asks what is still purchasable and what it would cost.
type PreviewRequest struct {
	AreaID     string `json:"area_id" binding:"required"`
	CategoryID string `json:"category_id" binding:"required"`
	Slot       int    `json:"slot"`
	// ExcludeBusinessID removes one business's own claims from the blocking
	// set, used when previewing a top-up for the current owner.
	ExcludeBusinessID string `json:"exclude_business_id,omitempty"`
}

// PreviewResponse is the availability + price preview. Read-only.
type PreviewResponse struct {
	OK           bool    `json:"ok"`
	GeoJSON      string  `json:"geojson,omitempty"`
	AreaKm2      float64 `json:"area_km2"`
	MonthlyPrice float64 `json:"monthly_price"`
	Currency     string  `json:"currency"`
	SoldOut      bool    `json:"sold_out"`
}

// CancelAction toggles cancel-at-period-end on a sponsorship.
type CancelAction string

const (
	CancelActionCancel     CancelAction = "cancel"
	CancelActionReactivate CancelAction = "reactivate"
)

// CancelRequest schedules or undoes a period-end cancellation.
type CancelRequest struct {
	BusinessID string       `json:"business_id" binding:"required"`
	AreaID     string       `json:"area_id" binding:"required"`
	CategoryID string       `json:"category_id" binding:"required"`
	Slot       int          `json:"slot"`
	Action     CancelAction `json:"action" binding:"required"`
}

// SponsorshipView is the public shape of a sponsorship on listing endpoints.
type SponsorshipView struct {
	ID                string  `json:"id"`
	BusinessID        string  `json:"business_id"`
	CategoryID        string  `json:"category_id"`
	Slot              int     `json:"slot"`
	Status            string  `json:"status"`
	AreaKm2           float64 `json:"area_km2"`
	MonthlyPrice      float64 `json:"monthly_price"`
	Currency          string  `json:"currency"`
	CancelAtPeriodEnd bool    `json:"cancel_at_period_end"`
	CurrentPeriodEnd  string  `json:"current_period_end,omitempty"`
}

// NewSponsorshipView maps a sponsorship onto its public listing shape. The
// owned geometry is deliberately omitted; directory pages fetch it through
// the preview endpoint when they need to draw it.
func NewSponsorshipView(sp *domain.Sponsorship) SponsorshipView {
	view := SponsorshipView{
		ID:                sp.ID,
		BusinessID:        sp.BusinessID,
		CategoryID:        sp.CategoryID,
		Slot:              sp.Slot,
		Status:            string(sp.Status),
		AreaKm2:           sp.AreaKm2,
		MonthlyPrice:      sp.MonthlyPrice,
		Currency:          sp.Currency,
		CancelAtPeriodEnd: sp.CancelAtPeriodEnd,
	}
	if sp.CurrentPeriodEnd != nil {
		view.CurrentPeriodEnd = sp.CurrentPeriodEnd.UTC().Format(time.RFC3339)
	}
	return view
}
