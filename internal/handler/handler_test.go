package handler

import (
	"fmt"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shinelocal/spotlight/internal/domain"
	"github.com/shinelocal/spotlight/internal/events"
	"github.com/shinelocal/spotlight/internal/gateway"
	"github.com/shinelocal/spotlight/internal/repository"
	"github.com/shinelocal/spotlight/internal/service"
)

const (
	testAreaID     = "area-cambridge"
	testCategoryID = "cat-cleaning"
)

func squareGeoJSON(lon, lat, size float64) string {
	return fmt.Sprintf(
		`{"type":"Polygon","coordinates":[[[%[1]f,%[2]f],[%[3]f,%[2]f],[%[3]f,%[4]f],[%[1]f,%[4]f],[%[1]f,%[2]f]]]}`,
		lon, lat, lon+size, lat+size,
	)
}

func newTestSub(id, customerID, status string) *gateway.Subscription {
	return &gateway.Subscription{
		ID:               id,
		CustomerID:       customerID,
		Status:           status,
		CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour).UTC(),
	}
}

type testServer struct {
	router       *gin.Engine
	sponsorships *repository.MemorySponsorshipRepository
	locks        *repository.MemoryLockRepository
	billing      *gateway.MockGateway
	reconciler   *service.ReconcilerService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
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

	pricing := service.NewPricingService(service.PricingConfig{
		Default:  service.PriceRate{RatePerKm2: 15, MinimumMonthly: 5},
		Currency: "gbp",
	})
	availability := service.NewAvailabilityService(sponsorships, areas, logger)
	checkout := service.NewCheckoutService(availability, pricing, sponsorships, areas, locks, billing, service.CheckoutServiceConfig{
		LockTTL:    time.Minute,
		SuccessURL: "https://example.test/success",
		CancelURL:  "https://example.test/cancel",
	}, logger)
	reconciler := service.NewReconcilerService(availability, pricing, sponsorships, invoices, locks, billing, published, logger)

	sponsorHandler := NewSponsorHandler(checkout, logger)
	webhookHandler := NewWebhookHandler(reconciler, billing, logger)
	healthHandler := NewHealthHandler(nil, nil)

	router := gin.New()
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.POST("/stripe-webhook", webhookHandler.HandleBillingWebhook)
	v1 := router.Group("/api/v1")
	{
		v1.POST("/sponsored-checkout", sponsorHandler.CreateCheckout)
		v1.POST("/sponsored-preview", sponsorHandler.Preview)
		v1.POST("/subscription-cancel", sponsorHandler.CancelSubscription)
		v1.GET("/areas/:id/sponsorships", sponsorHandler.ListAreaSponsorships)
	}

	return &testServer{
		router:       router,
		sponsorships: sponsorships,
		locks:        locks,
		billing:      billing,
		reconciler:   reconciler,
	}
}
