package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinelocal/spotlight/internal/domain"
	"github.com/shinelocal/spotlight/internal/dto"
)

// webhookBody builds a provider event payload the way Stripe delivers it:
// the object under data.object, the event type at the top level.
func webhookBody(t *testing.T, eventType string, object map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":   "evt_test",
		"type": eventType,
		"data": map[string]any{"object": object},
	})
	require.NoError(t, err)
	return body
}

func subscriptionObject(subID, customerID, status string, meta map[string]string) map[string]any {
	return map[string]any{
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
}

func postWebhook(srv *testServer, body []byte) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, "/stripe-webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", "t=1,v1=test")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestWebhook_SubscriptionCreated_ConfirmsClaim(t *testing.T) {
	srv := newTestServer(t)

	meta := dto.CheckoutContext{
		BusinessID: "biz-1",
		AreaID:     testAreaID,
		CategoryID: testCategoryID,
		Slot:       1,
	}.ToMetadata()
	body := webhookBody(t, "customer.subscription.created",
		subscriptionObject("sub_1", "cus_1", "active", meta))

	w := postWebhook(srv, body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sp, err := srv.sponsorships.GetByStripeSubscriptionID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, sp.Status)
	assert.Equal(t, "biz-1", sp.BusinessID)
}

func TestWebhook_MalformedPayload(t *testing.T) {
	srv := newTestServer(t)

	w := postWebhook(srv, []byte("not json"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	// Nothing was written.
	_, err := srv.sponsorships.GetByStripeSubscriptionID(context.Background(), "sub_1")
	assert.Error(t, err)
}

func TestWebhook_UnhandledEventType(t *testing.T) {
	srv := newTestServer(t)

	body := webhookBody(t, "charge.refunded", map[string]any{"id": "ch_1"})
	w := postWebhook(srv, body)

	// Unknown event types are acknowledged so the provider stops retrying.
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_ReplayIsIdempotent(t *testing.T) {
	srv := newTestServer(t)

	meta := dto.CheckoutContext{
		BusinessID: "biz-1",
		AreaID:     testAreaID,
		CategoryID: testCategoryID,
		Slot:       1,
	}.ToMetadata()
	body := webhookBody(t, "customer.subscription.created",
		subscriptionObject("sub_1", "cus_1", "active", meta))

	require.Equal(t, http.StatusOK, postWebhook(srv, body).Code)
	first, err := srv.sponsorships.GetByStripeSubscriptionID(context.Background(), "sub_1")
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, postWebhook(srv, body).Code)
	second, err := srv.sponsorships.GetByStripeSubscriptionID(context.Background(), "sub_1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.GeoJSON, second.GeoJSON)
	assert.Equal(t, first.MonthlyPrice, second.MonthlyPrice)
}

func TestWebhook_SubscriptionDeleted_FreesGeometry(t *testing.T) {
	srv := newTestServer(t)
	seedActive(t, srv, "biz-1", "sub_1", squareGeoJSON(0, 0, 0.1), 123.6)

	body := webhookBody(t, "customer.subscription.deleted",
		subscriptionObject("sub_1", "cus_1", "canceled", nil))
	require.Equal(t, http.StatusOK, postWebhook(srv, body).Code)

	sp, err := srv.sponsorships.GetByStripeSubscriptionID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, sp.Status)
}
