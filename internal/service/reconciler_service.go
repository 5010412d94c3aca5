package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"github.com/shinelocal/spotlight/internal/domain"
	"github.com/shinelocal/spotlight/internal/dto"
	"github.com/shinelocal/spotlight/internal/events"
	"github.com/shinelocal/spotlight/internal/gateway"
	"github.com/shinelocal/spotlight/internal/metrics"
	"github.com/shinelocal/spotlight/internal/repository"
	"github.com/shinelocal/spotlight/pkg/retry"
	"github.com/shinelocal/spotlight/pkg/telemetry"
)

// Reconciliation outcome actions.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeCanceled  = "canceled"
	OutcomeSkipped   = "skipped"
	OutcomeIgnored   = "ignored"
	OutcomeRecorded  = "recorded"
)

// Reconciliation outcome reasons.
const (
	ReasonNoRemaining         = "no_remaining"
	ReasonDBWriteFailed       = "db_write_failed"
	ReasonMissingMetadata     = "missing_metadata"
	ReasonAreaNotFound        = "area_not_found"
	ReasonSubscriptionDeleted = "subscription_deleted"
	ReasonBillingCanceled     = "billing_canceled"
	ReasonUnknownSubscription = "unknown_subscription"
	ReasonUnhandledEvent      = "unhandled_event"
)

// ReconcileOutcome is the structured result of handling one billing event.
type ReconcileOutcome struct {
	EventType      string `json:"event_type"`
	Action         string `json:"action"`
	Reason         string `json:"reason,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	SponsorshipID  string `json:"sponsorship_id,omitempty"`
}

// ReconcilerService drives the sponsorship ledger from billing webhook
// events. It is the only writer of confirmed ledger state: checkout never
// writes rows, and a subscription only claims geometry here, after the
// billing provider has spoken.
//
// Every path re-checks availability against *current* state and trusts the
// database constraint as the final arbiter; a rejected write cancels the
// subscription rather than ever double-selling area.
type ReconcilerService struct {
	availability *AvailabilityService
	pricing      *PricingService
	sponsorships repository.SponsorshipRepository
	invoices     repository.InvoiceRepository
	locks        repository.LockRepository
	billing      gateway.BillingGateway
	publisher    events.Publisher
	logger       *zap.Logger
}

// NewReconcilerService creates a new ReconcilerService.
func NewReconcilerService(
	availability *AvailabilityService,
	pricing *PricingService,
	sponsorships repository.SponsorshipRepository,
	invoices repository.InvoiceRepository,
	locks repository.LockRepository,
	billing gateway.BillingGateway,
	publisher events.Publisher,
	logger *zap.Logger,
) *ReconcilerService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &ReconcilerService{
		availability: availability,
		pricing:      pricing,
		sponsorships: sponsorships,
		invoices:     invoices,
		locks:        locks,
		billing:      billing,
		publisher:    publisher,
		logger:       logger,
	}
}

// HandleEvent routes one verified billing event. A non-nil error means the
// event could not be processed and should be redelivered; every business
// outcome, including conflicts and cancellations, returns nil.
func (s *ReconcilerService) HandleEvent(ctx context.Context, event stripe.Event) (*ReconcileOutcome, error) {
	eventType := string(event.Type)
	ctx, span := telemetry.StartSpan(ctx, "reconcile."+eventType)
	defer span.End()

	var outcome *ReconcileOutcome
	var err error

	switch eventType {
	case "checkout.session.completed":
		outcome, err = s.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		outcome, err = s.handleSubscriptionEvent(ctx, event)
	case "customer.subscription.deleted":
		outcome, err = s.handleSubscriptionDeleted(ctx, event)
	case "invoice.finalized", "invoice.paid", "invoice.payment_failed", "invoice.voided":
		outcome, err = s.handleInvoiceEvent(ctx, event)
	default:
		outcome = &ReconcileOutcome{EventType: eventType, Action: OutcomeIgnored, Reason: ReasonUnhandledEvent}
	}
	if err != nil {
		return nil, err
	}
	outcome.EventType = eventType

	s.publishOutcome(ctx, outcome)
	metrics.RecordOutcome(ctx, outcome.Action, outcome.Reason)

	s.logger.Info("billing event reconciled",
		zap.String("event_type", outcome.EventType),
		zap.String("action", outcome.Action),
		zap.String("reason", outcome.Reason),
		zap.String("subscription_id", outcome.SubscriptionID))

	return outcome, nil
}

// handleCheckoutCompleted resolves the completed session's subscription and
// runs it through the confirmation path. When the subscription cannot be
// fetched the session's own metadata still carries the full checkout context,
// so a provisional claim is written instead of dropping the event.
func (s *ReconcilerService) handleCheckoutCompleted(ctx context.Context, event stripe.Event) (*ReconcileOutcome, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("failed to parse checkout session: %w", err)
	}
	if session.Mode != stripe.CheckoutSessionModeSubscription || session.Subscription == nil {
		return &ReconcileOutcome{Action: OutcomeIgnored, Reason: ReasonUnknownSubscription}, nil
	}
	subID := session.Subscription.ID

	sub, err := s.billing.GetSubscription(ctx, subID)
	if err != nil {
		s.logger.Warn("failed to fetch subscription for completed session, falling back to session metadata",
			zap.String("subscription_id", subID), zap.Error(err))
		sub = &gateway.Subscription{
			ID:       subID,
			Status:   "incomplete",
			Metadata: session.Metadata,
		}
		if session.Customer != nil {
			sub.CustomerID = session.Customer.ID
		}
	}
	return s.reconcileSubscription(ctx, sub)
}

func (s *ReconcilerService) handleSubscriptionEvent(ctx context.Context, event stripe.Event) (*ReconcileOutcome, error) {
	sub, err := parseSubscription(event.Data.Raw)
	if err != nil {
		return nil, err
	}
	return s.reconcileSubscription(ctx, sub)
}

func (s *ReconcilerService) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) (*ReconcileOutcome, error) {
	sub, err := parseSubscription(event.Data.Raw)
	if err != nil {
		return nil, err
	}

	defer s.releaseLock(ctx, dto.ParseCheckoutContext(sub.Metadata).LockID)

	existing, err := s.sponsorships.GetByStripeSubscriptionID(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, domain.ErrSponsorshipNotFound) {
			return &ReconcileOutcome{Action: OutcomeIgnored, Reason: ReasonUnknownSubscription, SubscriptionID: sub.ID}, nil
		}
		return nil, err
	}

	existing.Cancel()
	if err := s.sponsorships.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to cancel sponsorship: %w", err)
	}
	return &ReconcileOutcome{
		Action:         OutcomeCanceled,
		Reason:         ReasonSubscriptionDeleted,
		SubscriptionID: sub.ID,
		SponsorshipID:  existing.ID,
	}, nil
}

// reconcileSubscription is the confirmation path shared by completed sessions
// and subscription lifecycle events.
func (s *ReconcilerService) reconcileSubscription(ctx context.Context, sub *gateway.Subscription) (*ReconcileOutcome, error) {
	existing, err := s.sponsorships.GetByStripeSubscriptionID(ctx, sub.ID)
	if err != nil && !errors.Is(err, domain.ErrSponsorshipNotFound) {
		return nil, err
	}

	checkoutCtx := dto.ParseCheckoutContext(sub.Metadata)
	if checkoutCtx.Incomplete() && existing != nil {
		checkoutCtx.BusinessID = existing.BusinessID
		checkoutCtx.AreaID = existing.AreaID
		checkoutCtx.CategoryID = existing.CategoryID
		checkoutCtx.Slot = existing.Slot
	}
	if checkoutCtx.Incomplete() {
		// A row with a missing area or slot cannot be constrained against
		// overlap. Skip rather than write something unenforceable.
		return &ReconcileOutcome{Action: OutcomeSkipped, Reason: ReasonMissingMetadata, SubscriptionID: sub.ID}, nil
	}

	defer s.releaseLock(ctx, checkoutCtx.LockID)

	status := domain.StatusFromBilling(sub.Status, sub.CancelAtPeriodEnd)
	if status == domain.StatusCanceled {
		return s.cancelExisting(ctx, existing, sub.ID, ReasonBillingCanceled)
	}

	if existing != nil {
		return s.refreshExisting(ctx, existing, sub, status)
	}
	return s.confirmNew(ctx, checkoutCtx, sub, status)
}

// refreshExisting syncs billing state onto a known row without touching its
// geometry: a replayed or repeated event must never re-grab area.
func (s *ReconcilerService) refreshExisting(ctx context.Context, existing *domain.Sponsorship, sub *gateway.Subscription, status domain.SponsorshipStatus) (*ReconcileOutcome, error) {
	if err := existing.Confirm(status); err != nil {
		// Terminal row; a late-arriving update must not resurrect it.
		return &ReconcileOutcome{Action: OutcomeIgnored, Reason: ReasonBillingCanceled, SubscriptionID: sub.ID, SponsorshipID: existing.ID}, nil
	}
	existing.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if !sub.CurrentPeriodEnd.IsZero() {
		end := sub.CurrentPeriodEnd
		existing.CurrentPeriodEnd = &end
	}
	if sub.CustomerID != "" {
		existing.StripeCustomerID = sub.CustomerID
	}
	if err := s.sponsorships.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update sponsorship: %w", err)
	}
	return &ReconcileOutcome{Action: OutcomeConfirmed, SubscriptionID: sub.ID, SponsorshipID: existing.ID}, nil
}

// confirmNew claims geometry for a subscription seen for the first time. The
// availability check runs against current state, not the checkout-time
// preview: the world may have changed while the customer was paying, and this
// is the primary defense against two concurrent buyers both completing
// payment for overlapping space. The ledger constraint is the second.
func (s *ReconcilerService) confirmNew(ctx context.Context, checkoutCtx dto.CheckoutContext, sub *gateway.Subscription, status domain.SponsorshipStatus) (*ReconcileOutcome, error) {
	avail, err := s.availability.Remaining(ctx, checkoutCtx.AreaID, checkoutCtx.CategoryID, checkoutCtx.Slot, checkoutCtx.BusinessID)
	if err != nil {
		if errors.Is(err, domain.ErrAreaNotFound) {
			s.cancelBilling(ctx, sub.ID)
			return &ReconcileOutcome{Action: OutcomeCanceled, Reason: ReasonAreaNotFound, SubscriptionID: sub.ID}, nil
		}
		return nil, err
	}
	if avail.SoldOut {
		s.cancelBilling(ctx, sub.ID)
		return &ReconcileOutcome{Action: OutcomeCanceled, Reason: ReasonNoRemaining, SubscriptionID: sub.ID}, nil
	}

	monthly := s.pricing.MonthlyPrice(avail.AreaKm2, checkoutCtx.CategoryID, checkoutCtx.Slot)
	sp, err := domain.NewSponsorship(
		checkoutCtx.BusinessID,
		checkoutCtx.AreaID,
		checkoutCtx.CategoryID,
		checkoutCtx.Slot,
		avail.GeoJSON,
		avail.AreaKm2,
		monthly,
		s.pricing.Currency(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build sponsorship: %w", err)
	}
	sp.StripeSubscriptionID = sub.ID
	sp.StripeCustomerID = sub.CustomerID
	sp.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	if !sub.CurrentPeriodEnd.IsZero() {
		end := sub.CurrentPeriodEnd
		sp.CurrentPeriodEnd = &end
	}
	if err := sp.Confirm(status); err != nil {
		return nil, err
	}

	if err := s.sponsorships.Upsert(ctx, sp); err != nil {
		if errors.Is(err, domain.ErrOverlapConflict) || errors.Is(err, domain.ErrDuplicateSponsorship) {
			// The constraint is the last line of defense against
			// double-selling; losing the race means this buyer is refunded
			// by cancellation, not granted overlapping area.
			s.cancelBilling(ctx, sub.ID)
			return &ReconcileOutcome{Action: OutcomeCanceled, Reason: ReasonDBWriteFailed, SubscriptionID: sub.ID}, nil
		}
		return nil, fmt.Errorf("failed to write sponsorship: %w", err)
	}

	return &ReconcileOutcome{Action: OutcomeConfirmed, SubscriptionID: sub.ID, SponsorshipID: sp.ID}, nil
}

// handleInvoiceEvent upserts the billing-cycle record. An invoice arriving
// before its subscription's confirmation event is healed by fetching the
// subscription and running the confirmation path first.
func (s *ReconcilerService) handleInvoiceEvent(ctx context.Context, event stripe.Event) (*ReconcileOutcome, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse invoice: %w", err)
	}

	subID := invoiceSubscriptionID(&inv)
	if subID == "" {
		return &ReconcileOutcome{Action: OutcomeSkipped, Reason: ReasonUnknownSubscription}, nil
	}

	sp, err := s.sponsorships.GetByStripeSubscriptionID(ctx, subID)
	if errors.Is(err, domain.ErrSponsorshipNotFound) {
		sp, err = s.healMissingSponsorship(ctx, subID)
	}
	if err != nil {
		return nil, err
	}
	if sp == nil {
		return &ReconcileOutcome{Action: OutcomeSkipped, Reason: ReasonUnknownSubscription, SubscriptionID: subID}, nil
	}

	record := domain.NewInvoice(sp.ID, sp.BusinessID, inv.ID, float64(inv.AmountDue)/100, string(inv.Currency), invoiceStatusFor(event.Type))
	record.HostedInvoiceURL = inv.HostedInvoiceURL
	record.InvoicePDF = inv.InvoicePDF
	if inv.PeriodStart > 0 {
		start := time.Unix(inv.PeriodStart, 0).UTC()
		record.PeriodStart = &start
	}
	if inv.PeriodEnd > 0 {
		end := time.Unix(inv.PeriodEnd, 0).UTC()
		record.PeriodEnd = &end
	}
	if err := s.invoices.UpsertByStripeInvoiceID(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record invoice: %w", err)
	}

	// A failed payment demotes the claim without releasing it; the provider
	// retries the charge and a later paid invoice restores it.
	if record.Status == domain.InvoiceStatusPaymentFailed && sp.Status.IsActiveLike() {
		if err := sp.Confirm(domain.StatusPastDue); err == nil {
			if err := s.sponsorships.Update(ctx, sp); err != nil {
				s.logger.Warn("failed to mark sponsorship past due", zap.String("sponsorship_id", sp.ID), zap.Error(err))
			}
		}
	}

	return &ReconcileOutcome{Action: OutcomeRecorded, SubscriptionID: subID, SponsorshipID: sp.ID}, nil
}

// healMissingSponsorship runs the subscription confirmation path for an
// out-of-order invoice, then re-reads the ledger. Returns nil when the
// subscription still cannot be resolved into a row.
func (s *ReconcilerService) healMissingSponsorship(ctx context.Context, subID string) (*domain.Sponsorship, error) {
	sub, err := s.billing.GetSubscription(ctx, subID)
	if err != nil {
		s.logger.Warn("failed to fetch subscription for orphan invoice",
			zap.String("subscription_id", subID), zap.Error(err))
		return nil, nil
	}
	if _, err := s.reconcileSubscription(ctx, sub); err != nil {
		return nil, err
	}
	sp, err := s.sponsorships.GetByStripeSubscriptionID(ctx, subID)
	if errors.Is(err, domain.ErrSponsorshipNotFound) {
		return nil, nil
	}
	return sp, err
}

func (s *ReconcilerService) cancelExisting(ctx context.Context, existing *domain.Sponsorship, subID, reason string) (*ReconcileOutcome, error) {
	if existing == nil {
		return &ReconcileOutcome{Action: OutcomeIgnored, Reason: ReasonUnknownSubscription, SubscriptionID: subID}, nil
	}
	existing.Cancel()
	if err := s.sponsorships.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to cancel sponsorship: %w", err)
	}
	return &ReconcileOutcome{Action: OutcomeCanceled, Reason: reason, SubscriptionID: subID, SponsorshipID: existing.ID}, nil
}

// cancelBilling cancels the provider subscription best-effort. A failure here
// is logged and left for the provider's own retry/dunning flow; it must not
// fail webhook handling.
// cancelBilling cancels a subscription that lost its claim. The cancel is
// retried with backoff: leaving a paying subscription behind with no ledger
// row is worse than a slow webhook response.
func (s *ReconcilerService) cancelBilling(ctx context.Context, subID string) {
	result := retry.Do(ctx, &retry.Config{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}, func(ctx context.Context) error {
		return s.billing.CancelSubscription(ctx, subID)
	})
	if result.Err != nil {
		s.logger.Error("failed to cancel billing subscription",
			zap.String("subscription_id", subID),
			zap.Int("attempts", result.Attempts),
			zap.Error(result.Err))
	}
}

func (s *ReconcilerService) releaseLock(ctx context.Context, lockID string) {
	if lockID == "" {
		return
	}
	if err := s.locks.Release(ctx, lockID); err != nil {
		s.logger.Warn("failed to release checkout lock", zap.String("lock_id", lockID), zap.Error(err))
		return
	}
	if metrics.LocksHeld != nil {
		metrics.LocksHeld.Dec(ctx)
	}
}

func (s *ReconcilerService) publishOutcome(ctx context.Context, outcome *ReconcileOutcome) {
	err := s.publisher.PublishOutcome(ctx, &events.OutcomeEvent{
		EventType:      outcome.EventType,
		Action:         outcome.Action,
		Reason:         outcome.Reason,
		SponsorshipID:  outcome.SponsorshipID,
		SubscriptionID: outcome.SubscriptionID,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("failed to publish outcome event", zap.Error(err))
	}
}

func parseSubscription(raw json.RawMessage) (*gateway.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse subscription: %w", err)
	}
	out := &gateway.Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0).UTC()
	}
	return out, nil
}

func invoiceSubscriptionID(inv *stripe.Invoice) string {
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
		return inv.Parent.SubscriptionDetails.Subscription.ID
	}
	return ""
}

func invoiceStatusFor(eventType stripe.EventType) domain.InvoiceStatus {
	switch string(eventType) {
	case "invoice.finalized":
		return domain.InvoiceStatusFinalized
	case "invoice.paid":
		return domain.InvoiceStatusPaid
	case "invoice.payment_failed":
		return domain.InvoiceStatusPaymentFailed
	case "invoice.voided":
		return domain.InvoiceStatusVoided
	default:
		return domain.InvoiceStatusDraft
	}
}
