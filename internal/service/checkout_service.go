package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shinelocal/spotlight/internal/domain"
	"github.com/shinelocal/spotlight/internal/dto"
	"github.com/shinelocal/spotlight/internal/gateway"
	"github.com/shinelocal/spotlight/internal/metrics"
	"github.com/shinelocal/spotlight/internal/repository"
	"github.com/shinelocal/spotlight/pkg/telemetry"
)

// CheckoutServiceConfig holds checkout orchestration settings.
type CheckoutServiceConfig struct {
	LockTTL    time.Duration
	SuccessURL string
	CancelURL  string
}

// CheckoutService orchestrates a sponsored-placement purchase: conflict
// checks, advisory lock, availability, pricing, then a hosted billing
// session. It never writes the ledger — only the reconciler does that, once
// the billing provider confirms the subscription.
type CheckoutService struct {
	availability *AvailabilityService
	pricing      *PricingService
	sponsorships repository.SponsorshipRepository
	areas        repository.AreaRepository
	locks        repository.LockRepository
	billing      gateway.BillingGateway
	config       CheckoutServiceConfig
	logger       *zap.Logger
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(
	availability *AvailabilityService,
	pricing *PricingService,
	sponsorships repository.SponsorshipRepository,
	areas repository.AreaRepository,
	locks repository.LockRepository,
	billing gateway.BillingGateway,
	config CheckoutServiceConfig,
	logger *zap.Logger,
) *CheckoutService {
	if config.LockTTL <= 0 {
		config.LockTTL = 10 * time.Minute
	}
	return &CheckoutService{
		availability: availability,
		pricing:      pricing,
		sponsorships: sponsorships,
		areas:        areas,
		locks:        locks,
		billing:      billing,
		config:       config,
		logger:       logger,
	}
}

// CreateCheckout runs the purchase flow and returns the hosted checkout URL.
// Conflict outcomes come back as domain errors: ErrAlreadySponsored,
// ErrLockHeld (carrying the competing holder), ErrNoRemainingArea.
func (s *CheckoutService) CreateCheckout(ctx context.Context, req *dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	ctx, span := telemetry.StartSpan(ctx, "checkout.create")
	defer span.End()
	slot := req.Slot
	if slot == 0 {
		slot = domain.SlotFeatured
	}

	// An existing active-like claim by the same business is a conflict, not
	// an upgrade; top-ups go through the preview + cancel/rebuy flow.
	existing, err := s.sponsorships.GetActiveLike(ctx, req.BusinessID, req.AreaID, req.CategoryID, slot)
	if err != nil && !errors.Is(err, domain.ErrSponsorshipNotFound) {
		return nil, fmt.Errorf("failed to check existing sponsorship: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrAlreadySponsored
	}

	lock, err := s.locks.Acquire(ctx, req.AreaID, req.CategoryID, slot, req.BusinessID, s.config.LockTTL)
	if err != nil {
		return nil, err
	}
	if metrics.LocksHeld != nil {
		metrics.LocksHeld.Inc(ctx)
	}

	avail, err := s.availability.Remaining(ctx, req.AreaID, req.CategoryID, slot, req.BusinessID)
	if err != nil {
		s.releaseLock(ctx, lock.ID)
		return nil, err
	}
	if avail.SoldOut {
		s.releaseLock(ctx, lock.ID)
		return nil, domain.ErrNoRemainingArea
	}

	monthly := s.pricing.MonthlyPrice(avail.AreaKm2, req.CategoryID, slot)
	if metrics.RemainingAreaKm2 != nil {
		metrics.RemainingAreaKm2.Record(ctx, avail.AreaKm2)
	}
	if metrics.MonthlyPriceAmount != nil {
		metrics.MonthlyPriceAmount.Record(ctx, monthly)
	}

	customerID, err := s.resolveCustomer(ctx, req.BusinessID)
	if err != nil {
		s.releaseLock(ctx, lock.ID)
		return nil, err
	}

	area, err := s.areas.GetByID(ctx, req.AreaID)
	if err != nil {
		s.releaseLock(ctx, lock.ID)
		return nil, err
	}

	checkoutCtx := dto.CheckoutContext{
		BusinessID:  req.BusinessID,
		AreaID:      req.AreaID,
		CategoryID:  req.CategoryID,
		Slot:        slot,
		LockID:      lock.ID,
		AreaKm2Hint: avail.AreaKm2,
	}

	session, err := s.billing.CreateCheckoutSession(ctx, &gateway.CheckoutSessionRequest{
		CustomerID:  customerID,
		ProductName: fmt.Sprintf("Sponsored placement: %s", area.Name),
		AmountMinor: s.pricing.MinorUnits(monthly),
		Currency:    s.pricing.Currency(),
		SuccessURL:  s.config.SuccessURL,
		CancelURL:   s.config.CancelURL,
		Metadata:    checkoutCtx.ToMetadata(),
	})
	if err != nil {
		s.releaseLock(ctx, lock.ID)
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.Info("checkout session created",
		zap.String("business_id", req.BusinessID),
		zap.String("area_id", req.AreaID),
		zap.String("category_id", req.CategoryID),
		zap.Int("slot", slot),
		zap.Float64("area_km2", avail.AreaKm2),
		zap.Float64("monthly_price", monthly),
		zap.String("session_id", session.SessionID))

	return &dto.CheckoutResponse{OK: true, URL: session.URL}, nil
}

// Preview resolves availability and price without touching locks or ledger.
func (s *CheckoutService) Preview(ctx context.Context, req *dto.PreviewRequest) (*dto.PreviewResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	slot := req.Slot
	if slot == 0 {
		slot = domain.SlotFeatured
	}

	avail, err := s.availability.Remaining(ctx, req.AreaID, req.CategoryID, slot, req.ExcludeBusinessID)
	if err != nil {
		return nil, err
	}
	if avail.SoldOut {
		return &dto.PreviewResponse{OK: true, SoldOut: true, Currency: s.pricing.Currency()}, nil
	}
	return &dto.PreviewResponse{
		OK:           true,
		GeoJSON:      avail.GeoJSON,
		AreaKm2:      avail.AreaKm2,
		MonthlyPrice: s.pricing.MonthlyPrice(avail.AreaKm2, req.CategoryID, slot),
		Currency:     s.pricing.Currency(),
	}, nil
}

// Cancel toggles cancel-at-period-end on the business's sponsorship and
// mirrors the flag to the billing provider.
func (s *CheckoutService) Cancel(ctx context.Context, req *dto.CancelRequest) (*domain.Sponsorship, error) {
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}
	slot := req.Slot
	if slot == 0 {
		slot = domain.SlotFeatured
	}

	sp, err := s.sponsorships.GetActiveLike(ctx, req.BusinessID, req.AreaID, req.CategoryID, slot)
	if err != nil {
		return nil, err
	}

	cancel := req.Action == dto.CancelActionCancel
	switch req.Action {
	case dto.CancelActionCancel:
		if err := sp.ScheduleCancel(); err != nil {
			return nil, err
		}
	case dto.CancelActionReactivate:
		if err := sp.Reactivate(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported cancel action: %s", req.Action)
	}

	sub, err := s.billing.SetCancelAtPeriodEnd(ctx, sp.StripeSubscriptionID, cancel)
	if err != nil {
		return nil, fmt.Errorf("failed to update billing subscription: %w", err)
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		end := sub.CurrentPeriodEnd
		sp.CurrentPeriodEnd = &end
	}

	if err := s.sponsorships.Update(ctx, sp); err != nil {
		return nil, fmt.Errorf("failed to update sponsorship: %w", err)
	}
	return sp, nil
}

// ListForArea returns the active-like sponsorships of an area for directory
// pages. Read-only.
func (s *CheckoutService) ListForArea(ctx context.Context, areaID string) ([]*domain.Sponsorship, error) {
	if _, err := s.areas.GetByID(ctx, areaID); err != nil {
		return nil, err
	}
	return s.sponsorships.ListByArea(ctx, areaID)
}

func (s *CheckoutService) resolveCustomer(ctx context.Context, businessID string) (string, error) {
	stored, err := s.sponsorships.GetStripeCustomerID(ctx, businessID)
	if err != nil {
		return "", fmt.Errorf("failed to load billing customer: %w", err)
	}
	customerID, err := s.billing.EnsureCustomer(ctx, businessID, stored)
	if err != nil {
		return "", fmt.Errorf("failed to resolve billing customer: %w", err)
	}
	if customerID != stored {
		if err := s.sponsorships.SaveStripeCustomerID(ctx, businessID, customerID); err != nil {
			return "", fmt.Errorf("failed to persist billing customer: %w", err)
		}
	}
	return customerID, nil
}

func (s *CheckoutService) releaseLock(ctx context.Context, lockID string) {
	if err := s.locks.Release(ctx, lockID); err != nil {
		s.logger.Warn("failed to release checkout lock", zap.String("lock_id", lockID), zap.Error(err))
		return
	}
	if metrics.LocksHeld != nil {
		metrics.LocksHeld.Dec(ctx)
	}
}
