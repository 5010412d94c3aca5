package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinelocal/spotlight/internal/domain"
	"github.com/shinelocal/spotlight/internal/dto"
)

func subscriptionEvent(t *testing.T, eventType, subID, customerID, status string, meta map[string]string) stripe.Event {
	t.Helper()
	payload := map[string]any{
		"id":                   subID,
		"status":               status,
		"cancel_at_period_end": false,
		"customer":             map[string]any{"id": customerID},
		"metadata":             meta,
		"items": map[string]any{
			"data": []any{
				map[string]any{"current_period_end": time.Now().Add(30 * 24 * time.Hour).Unix()},
			},
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return stripe.Event{Type: stripe.EventType(eventType), Data: &stripe.EventData{Raw: raw}}
}

func invoiceEvent(t *testing.T, eventType, invoiceID, subID string, amountDue int64) stripe.Event {
	t.Helper()
	payload := map[string]any{
		"id":                 invoiceID,
		"amount_due":         amountDue,
		"currency":           "gbp",
		"period_start":       time.Now().Unix(),
		"period_end":         time.Now().Add(30 * 24 * time.Hour).Unix(),
		"hosted_invoice_url": "https://invoices.test/" + invoiceID,
		"parent": map[string]any{
			"subscription_details": map[string]any{
				"subscription": map[string]any{"id": subID},
			},
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return stripe.Event{Type: stripe.EventType(eventType), Data: &stripe.EventData{Raw: raw}}
}

func checkoutContextMeta(businessID, lockID string) map[string]string {
	ctx := dto.CheckoutContext{
		BusinessID: businessID,
		AreaID:     testAreaID,
		CategoryID: testCategoryID,
		Slot:       1,
		LockID:     lockID,
	}
	return ctx.ToMetadata()
}

func TestReconciler_SubscriptionCreated_ConfirmsClaim(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()

	lock, err := st.locks.Acquire(ctx, testAreaID, testCategoryID, 1, "biz-x", time.Minute)
	require.NoError(t, err)

	event := subscriptionEvent(t, "customer.subscription.created", "sub_x", "cus_x", "active",
		checkoutContextMeta("biz-x", lock.ID))

	outcome, err := st.reconciler.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome.Action)

	sp, err := st.sponsorships.GetByStripeSubscriptionID(ctx, "sub_x")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, sp.Status)
	assert.Equal(t, "biz-x", sp.BusinessID)
	assert.Equal(t, "cus_x", sp.StripeCustomerID)
	assert.InDelta(t, 123.6, sp.AreaKm2, 2.0)
	assert.Equal(t, st.pricing.MonthlyPrice(sp.AreaKm2, testCategoryID, 1), sp.MonthlyPrice)
	require.NotNil(t, sp.CurrentPeriodEnd)

	// Lock released after the outcome was resolved.
	_, err = st.locks.Acquire(ctx, testAreaID, testCategoryID, 1, "biz-other", time.Minute)
	assert.NoError(t, err)
}

func TestReconciler_LosingWriter_CanceledOnSoldOut(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()

	// First buyer already holds the whole area.
	st.seedActive(t, "biz-x", "sub_x", squareGeoJSON(0, 0, 0.1), 123.6)
	st.billing.PutSubscription(newBillingSubscription("sub_y", "cus_y", "active", nil))

	event := subscriptionEvent(t, "customer.subscription.created", "sub_y", "cus_y", "active",
		checkoutContextMeta("biz-y", ""))

	outcome, err := st.reconciler.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCanceled, outcome.Action)
	assert.Equal(t, ReasonNoRemaining, outcome.Reason)

	// The losing subscription was canceled upstream and no row was written.
	sub, err := st.billing.GetSubscription(ctx, "sub_y")
	require.NoError(t, err)
	assert.Equal(t, "canceled", sub.Status)

	_, err = st.sponsorships.GetByStripeSubscriptionID(ctx, "sub_y")
	assert.ErrorIs(t, err, domain.ErrSponsorshipNotFound)
}

func TestReconciler_DuplicateBusiness_CanceledOnConstraint(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()

	st.seedActive(t, "biz-x", "sub_x1", squareGeoJSON(0, 0, 0.05), 30.9)
	st.billing.PutSubscription(newBillingSubscription("sub_x2", "cus_x", "active", nil))

	event := subscriptionEvent(t, "customer.subscription.created", "sub_x2", "cus_x", "active",
		checkoutContextMeta("biz-x", ""))

	outcome, err := st.reconciler.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCanceled, outcome.Action)
	assert.Equal(t, ReasonDBWriteFailed, outcome.Reason)

	sub, err := st.billing.GetSubscription(ctx, "sub_x2")
	require.NoError(t, err)
	assert.Equal(t, "canceled", sub.Status)
}

func TestReconciler_Replay_IsIdempotent(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()

	event := subscriptionEvent(t, "customer.subscription.created", "sub_x", "cus_x", "active",
		checkoutContextMeta("biz-x", ""))

	_, err := st.reconciler.HandleEvent(ctx, event)
	require.NoError(t, err)
	first, err := st.sponsorships.GetByStripeSubscriptionID(ctx, "sub_x")
	require.NoError(t, err)

	outcome, err := st.reconciler.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome.Action)

	second, err := st.sponsorships.GetByStripeSubscriptionID(ctx, "sub_x")
	require.NoError(t, err)

	// Replays never re-grab geometry or change the price.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.GeoJSON, second.GeoJSON)
	assert.Equal(t, first.AreaKm2, second.AreaKm2)
	assert.Equal(t, first.MonthlyPrice, second.MonthlyPrice)
}

func TestReconciler_MissingMetadata_Skipped(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()

	event := subscriptionEvent(t, "customer.subscription.created", "sub_x", "cus_x", "active",
		map[string]string{dto.MetaBusinessID: "biz-x"})

	outcome, err := st.reconciler.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome.Action)
	assert.Equal(t, ReasonMissingMetadata, outcome.Reason)

	_, err = st.sponsorships.GetByStripeSubscriptionID(ctx, "sub_x")
	assert.ErrorIs(t, err, domain.ErrSponsorshipNotFound)
}

func TestReconciler_LateUpdate_DoesNotResurrectCanceledRow(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()

	sp := st.seedActive(t, "biz-x", "sub_x", squareGeoJSON(0, 0, 0.1), 123.6)
	sp.Cancel()
	require.NoError(t, st.sponsorships.Update(ctx, sp))

	event := subscriptionEvent(t, "customer.subscription.updated", "sub_x", "cus_x", "active", nil)
	outcome, err := st.reconciler.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome.Action)

	got, err := st.sponsorships.GetByStripeSubscriptionID(ctx, "sub_x")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, got.Status)
}

func TestReconciler_SubscriptionDeleted_FreesGeometry(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()

	st.seedActive(t, "biz-x", "sub_x", squareGeoJSON(0, 0, 0.1), 123.6)

	event := subscriptionEvent(t, "customer.subscription.deleted", "sub_x", "cus_x", "canceled", nil)
	outcome, err := st.reconciler.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCanceled, outcome.Action)
	assert.Equal(t, ReasonSubscriptionDeleted, outcome.Reason)

	avail, err := st.availability.Remaining(ctx, testAreaID, testCategoryID, 1, "")
	require.NoError(t, err)
	assert.False(t, avail.SoldOut)
}

func TestReconciler_SubscriptionDeleted_UnknownIsIgnored(t *testing.T) {
	st := newTestStack(t)

	event := subscriptionEvent(t, "customer.subscription.deleted", "sub_ghost", "cus_x", "canceled", nil)
	outcome, err := st.reconciler.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome.Action)
}

func TestReconciler_CheckoutCompleted_ConfirmsViaSubscriptionFetch(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()

	st.billing.PutSubscription(newBillingSubscription("sub_x", "cus_x", "active",
		checkoutContextMeta("biz-x", "")))

	payload := map[string]any{
		"id":           "cs_1",
		"mode":         "subscription",
		"subscription": map[string]any{"id": "sub_x"},
		"customer":     map[string]any{"id": "cus_x"},
		"metadata":     checkoutContextMeta("biz-x", ""),
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	event := stripe.Event{Type: "checkout.session.completed", Data: &stripe.EventData{Raw: raw}}

	outcome, err := st.reconciler.HandleEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, outcome.Action)

	sp, err := st.sponsorships.GetByStripeSubscriptionID(ctx, "sub_x")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, sp.Status)
}

func TestReconciler_InvoiceBeforeSubscription_Heals(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()

	// The subscription exists at the provider but its confirmation event has
	// not arrived yet.
	st.billing.PutSubscription(newBillingSubscription("sub_x", "cus_x", "active",
		checkoutContextMeta("biz-x", "")))

	outcome, err := st.reconciler.HandleEvent(ctx, invoiceEvent(t, "invoice.paid", "in_1", "sub_x", 9000))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecorded, outcome.Action)

	sp, err := st.sponsorships.GetByStripeSubscriptionID(ctx, "sub_x")
	require.NoError(t, err)

	invoices, err := st.invoices.ListBySponsorshipID(ctx, sp.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, domain.InvoiceStatusPaid, invoices[0].Status)
	assert.Equal(t, 90.0, invoices[0].AmountDue)
}

func TestReconciler_InvoiceReplay_UpsertsOnce(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()

	sp := st.seedActive(t, "biz-x", "sub_x", squareGeoJSON(0, 0, 0.1), 123.6)

	_, err := st.reconciler.HandleEvent(ctx, invoiceEvent(t, "invoice.finalized", "in_1", "sub_x", 9000))
	require.NoError(t, err)
	_, err = st.reconciler.HandleEvent(ctx, invoiceEvent(t, "invoice.paid", "in_1", "sub_x", 9000))
	require.NoError(t, err)

	invoices, err := st.invoices.ListBySponsorshipID(ctx, sp.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, domain.InvoiceStatusPaid, invoices[0].Status)
}

func TestReconciler_InvoicePaymentFailed_MarksPastDue(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()

	st.seedActive(t, "biz-x", "sub_x", squareGeoJSON(0, 0, 0.1), 123.6)

	outcome, err := st.reconciler.HandleEvent(ctx, invoiceEvent(t, "invoice.payment_failed", "in_1", "sub_x", 9000))
	require.NoError(t, err)
	assert.Equal(t, OutcomeRecorded, outcome.Action)

	sp, err := st.sponsorships.GetByStripeSubscriptionID(ctx, "sub_x")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPastDue, sp.Status)

	// Past due still blocks the geometry.
	avail, err := st.availability.Remaining(ctx, testAreaID, testCategoryID, 1, "")
	require.NoError(t, err)
	assert.True(t, avail.SoldOut)
}

func TestReconciler_PublishesOutcomes(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()

	event := subscriptionEvent(t, "customer.subscription.created", "sub_x", "cus_x", "active",
		checkoutContextMeta("biz-x", ""))
	_, err := st.reconciler.HandleEvent(ctx, event)
	require.NoError(t, err)

	published := st.published.Events()
	require.Len(t, published, 1)
	assert.Equal(t, "customer.subscription.created", published[0].EventType)
	assert.Equal(t, OutcomeConfirmed, published[0].Action)
	assert.Equal(t, "sub_x", published[0].SubscriptionID)
}

func TestReconciler_UnhandledEventIgnored(t *testing.T) {
	st := newTestStack(t)

	event := stripe.Event{Type: "customer.created", Data: &stripe.EventData{Raw: []byte(`{}`)}}
	outcome, err := st.reconciler.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome.Action)
	assert.Equal(t, ReasonUnhandledEvent, outcome.Reason)
}
