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
	"github.com/shinelocal/spotlight/pkg/response"
)

func doJSON(t *testing.T, srv *testServer, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func seedActive(t *testing.T, srv *testServer, businessID, subID, geojson string, areaKm2 float64) *domain.Sponsorship {
	t.Helper()
	sp, err := domain.NewSponsorship(businessID, testAreaID, testCategoryID, 1, geojson, areaKm2, 90, "gbp")
	require.NoError(t, err)
	sp.StripeSubscriptionID = subID
	require.NoError(t, sp.Confirm(domain.StatusActive))
	require.NoError(t, srv.sponsorships.Upsert(context.Background(), sp))
	return sp
}

func TestCreateCheckout(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/sponsored-checkout", dto.CheckoutRequest{
		BusinessID: "biz-1",
		AreaID:     testAreaID,
		CategoryID: testCategoryID,
		Slot:       1,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, data["url"])
}

func TestCreateCheckout_MissingFields(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/sponsored-checkout", map[string]interface{}{
		"business_id": "biz-1",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateCheckout_AlreadySponsored(t *testing.T) {
	srv := newTestServer(t)
	seedActive(t, srv, "biz-1", "sub_1", squareGeoJSON(0, 0, 0.02), 6)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/sponsored-checkout", dto.CheckoutRequest{
		BusinessID: "biz-1",
		AreaID:     testAreaID,
		CategoryID: testCategoryID,
		Slot:       1,
	})

	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	resp := decodeEnvelope(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeAlreadySponsored, resp.Error.Code)
}

func TestCreateCheckout_NoRemaining(t *testing.T) {
	srv := newTestServer(t)
	// The whole area is claimed by another business.
	seedActive(t, srv, "biz-owner", "sub_owner", squareGeoJSON(0, 0, 0.1), 123.6)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/sponsored-checkout", dto.CheckoutRequest{
		BusinessID: "biz-2",
		AreaID:     testAreaID,
		CategoryID: testCategoryID,
		Slot:       1,
	})

	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	resp := decodeEnvelope(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNoRemaining, resp.Error.Code)
}

func TestCreateCheckout_SlotTaken(t *testing.T) {
	srv := newTestServer(t)
	_, err := srv.locks.Acquire(context.Background(), testAreaID, testCategoryID, 1, "biz-first", time.Minute)
	require.NoError(t, err)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/sponsored-checkout", dto.CheckoutRequest{
		BusinessID: "biz-second",
		AreaID:     testAreaID,
		CategoryID: testCategoryID,
		Slot:       1,
	})

	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	resp := decodeEnvelope(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeSlotTaken, resp.Error.Code)
	// The holder is surfaced so the caller can distinguish its own retry.
	assert.Equal(t, "biz-first", resp.Error.Details)
}

func TestCreateCheckout_UnknownArea(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/sponsored-checkout", dto.CheckoutRequest{
		BusinessID: "biz-1",
		AreaID:     "area-nowhere",
		CategoryID: testCategoryID,
		Slot:       1,
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPreview(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/sponsored-preview", dto.PreviewRequest{
		AreaID:     testAreaID,
		CategoryID: testCategoryID,
		Slot:       1,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeEnvelope(t, w)
	data := resp.Data.(map[string]interface{})
	assert.InDelta(t, 123.6, data["area_km2"].(float64), 2.0)
	assert.False(t, data["sold_out"].(bool))
	assert.Equal(t, "gbp", data["currency"])
}

func TestPreview_SoldOut(t *testing.T) {
	srv := newTestServer(t)
	seedActive(t, srv, "biz-owner", "sub_owner", squareGeoJSON(0, 0, 0.1), 123.6)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/sponsored-preview", dto.PreviewRequest{
		AreaID:     testAreaID,
		CategoryID: testCategoryID,
		Slot:       1,
	})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeEnvelope(t, w)
	data := resp.Data.(map[string]interface{})
	assert.True(t, data["sold_out"].(bool))
}

func TestCancelSubscription(t *testing.T) {
	srv := newTestServer(t)
	sp := seedActive(t, srv, "biz-1", "sub_1", squareGeoJSON(0, 0, 0.05), 30)
	srv.billing.PutSubscription(newTestSub("sub_1", "cus_1", "active"))

	w := doJSON(t, srv, http.MethodPost, "/api/v1/subscription-cancel", dto.CancelRequest{
		BusinessID: "biz-1",
		AreaID:     testAreaID,
		CategoryID: testCategoryID,
		Slot:       1,
		Action:     dto.CancelActionCancel,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeEnvelope(t, w)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, sp.ID, data["id"])
	assert.True(t, data["cancel_at_period_end"].(bool))
}

func TestCancelSubscription_NotFound(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/subscription-cancel", dto.CancelRequest{
		BusinessID: "biz-ghost",
		AreaID:     testAreaID,
		CategoryID: testCategoryID,
		Slot:       1,
		Action:     dto.CancelActionCancel,
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelSubscription_BadAction(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/subscription-cancel", map[string]interface{}{
		"business_id": "biz-1",
		"area_id":     testAreaID,
		"category_id": testCategoryID,
		"slot":        1,
		"action":      "pause",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAreaSponsorships(t *testing.T) {
	srv := newTestServer(t)
	seedActive(t, srv, "biz-1", "sub_1", squareGeoJSON(0, 0, 0.04), 20)
	seedActive(t, srv, "biz-2", "sub_2", squareGeoJSON(0.05, 0.05, 0.04), 20)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/areas/"+testAreaID+"/sponsorships", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeEnvelope(t, w)
	list := resp.Data.([]interface{})
	require.Len(t, list, 2)
	first := list[0].(map[string]interface{})
	// Geometry stays off the listing payload.
	assert.NotContains(t, first, "geojson")
	assert.NotEmpty(t, first["business_id"])
}

func TestListAreaSponsorships_UnknownArea(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/areas/area-nowhere/sponsorships", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req, _ = http.NewRequest(http.MethodGet, "/ready", nil)
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
