package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shinelocal/spotlight/internal/domain"
	"github.com/shinelocal/spotlight/internal/events"
	"github.com/shinelocal/spotlight/internal/gateway"
	"github.com/shinelocal/spotlight/internal/repository"
)

// squareGeoJSON returns a lon/lat axis-aligned square polygon.
func squareGeoJSON(lon, lat, size float64) string {
	return fmt.Sprintf(
		`{"type":"Polygon","coordinates":[[[%[1]f,%[2]f],[%[3]f,%[2]f],[%[3]f,%[4]f],[%[1]f,%[4]f],[%[1]f,%[2]f]]]}`,
		lon, lat, lon+size, lat+size,
	)
}

const (
	testAreaID     = "area-cambridge"
	testCategoryID = "cat-cleaning"
)

type testStack struct {
	checkout     *CheckoutService
	reconciler   *ReconcilerService
	availability *AvailabilityService
	pricing      *PricingService
	sponsorships *repository.MemorySponsorshipRepository
	invoices     *repository.MemoryInvoiceRepository
	areas        *repository.MemoryAreaRepository
	locks        *repository.MemoryLockRepository
	billing      *gateway.MockGateway
	published    *events.CapturePublisher
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	logger := zap.NewNop()

	areas := repository.NewMemoryAreaRepository()
	areas.Put(&domain.Area{
		ID:      testAreaID,
		Name:    "Cambridge",
		GeoJSON: squareGeoJSON(0, 0, 0.1),
	})

	sponsorships := repository.NewMemorySponsorshipRepository(areas)
	invoices := repository.NewMemoryInvoiceRepository()
	locks := repository.NewMemoryLockRepository()
	billing := gateway.NewMockGateway()
	published := events.NewCapturePublisher()

	pricing := NewPricingService(PricingConfig{
		Default:  PriceRate{RatePerKm2: 15, MinimumMonthly: 5},
		Currency: "gbp",
	})
	availability := NewAvailabilityService(sponsorships, areas, logger)

	checkout := NewCheckoutService(availability, pricing, sponsorships, areas, locks, billing, CheckoutServiceConfig{
		LockTTL:    time.Minute,
		SuccessURL: "https://example.test/success",
		CancelURL:  "https://example.test/cancel",
	}, logger)

	reconciler := NewReconcilerService(availability, pricing, sponsorships, invoices, locks, billing, published, logger)

	st := &testStack{
		checkout:     checkout,
		reconciler:   reconciler,
		availability: availability,
		pricing:      pricing,
		sponsorships: sponsorships,
		invoices:     invoices,
		areas:        areas,
		locks:        locks,
		billing:      billing,
		published:    published,
	}
	return st
}

// newBillingSubscription builds a gateway subscription for seeding the mock.
func newBillingSubscription(id, customerID, status string, meta map[string]string) *gateway.Subscription {
	return &gateway.Subscription{
		ID:               id,
		CustomerID:       customerID,
		Status:           status,
		CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour).UTC(),
		Metadata:         meta,
	}
}

// seedActive writes a confirmed sponsorship straight into the ledger.
func (st *testStack) seedActive(t *testing.T, businessID, subID, geojson string, areaKm2 float64) *domain.Sponsorship {
	t.Helper()
	sp, err := domain.NewSponsorship(businessID, testAreaID, testCategoryID, 1, geojson, areaKm2, 90, "gbp")
	if err != nil {
		t.Fatalf("failed to build sponsorship: %v", err)
	}
	sp.StripeSubscriptionID = subID
	if err := sp.Confirm(domain.StatusActive); err != nil {
		t.Fatalf("failed to confirm sponsorship: %v", err)
	}
	if err := st.sponsorships.Upsert(context.Background(), sp); err != nil {
		t.Fatalf("failed to seed sponsorship: %v", err)
	}
	return sp
}
