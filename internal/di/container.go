package di

import (
	"go.uber.org/zap"

	"github.com/shinelocal/spotlight/internal/events"
	"github.com/shinelocal/spotlight/internal/gateway"
	"github.com/shinelocal/spotlight/internal/handler"
	"github.com/shinelocal/spotlight/internal/repository"
	"github.com/shinelocal/spotlight/internal/service"
	"github.com/shinelocal/spotlight/pkg/database"
	"github.com/shinelocal/spotlight/pkg/redis"
)

// Container holds all dependencies for the sponsorship service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Gateways
	BillingGateway gateway.BillingGateway

	// Repositories
	SponsorshipRepo repository.SponsorshipRepository
	AreaRepo        repository.AreaRepository
	InvoiceRepo     repository.InvoiceRepository
	LockRepo        repository.LockRepository

	// Services
	PricingService      *service.PricingService
	AvailabilityService *service.AvailabilityService
	CheckoutService     *service.CheckoutService
	ReconcilerService   *service.ReconcilerService

	// Handlers
	HealthHandler  *handler.HealthHandler
	SponsorHandler *handler.SponsorHandler
	WebhookHandler *handler.WebhookHandler
}

// ContainerConfig contains the pre-built pieces the container wires together
type ContainerConfig struct {
	DB              *database.PostgresDB
	Redis           *redis.Client
	SponsorshipRepo repository.SponsorshipRepository
	AreaRepo        repository.AreaRepository
	InvoiceRepo     repository.InvoiceRepository
	LockRepo        repository.LockRepository
	BillingGateway  gateway.BillingGateway
	Publisher       events.Publisher
	PricingConfig   service.PricingConfig
	CheckoutConfig  service.CheckoutServiceConfig
	Logger          *zap.Logger
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:              cfg.DB,
		Redis:           cfg.Redis,
		BillingGateway:  cfg.BillingGateway,
		SponsorshipRepo: cfg.SponsorshipRepo,
		AreaRepo:        cfg.AreaRepo,
		InvoiceRepo:     cfg.InvoiceRepo,
		LockRepo:        cfg.LockRepo,
	}

	c.HealthHandler = handler.NewHealthHandler(dbPinger(cfg.DB), redisPinger(cfg.Redis))

	c.PricingService = service.NewPricingService(cfg.PricingConfig)
	c.AvailabilityService = service.NewAvailabilityService(c.SponsorshipRepo, c.AreaRepo, cfg.Logger)

	c.CheckoutService = service.NewCheckoutService(
		c.AvailabilityService,
		c.PricingService,
		c.SponsorshipRepo,
		c.AreaRepo,
		c.LockRepo,
		c.BillingGateway,
		cfg.CheckoutConfig,
		cfg.Logger,
	)

	c.ReconcilerService = service.NewReconcilerService(
		c.AvailabilityService,
		c.PricingService,
		c.SponsorshipRepo,
		c.InvoiceRepo,
		c.LockRepo,
		c.BillingGateway,
		cfg.Publisher,
		cfg.Logger,
	)

	c.SponsorHandler = handler.NewSponsorHandler(c.CheckoutService, cfg.Logger)
	c.WebhookHandler = handler.NewWebhookHandler(c.ReconcilerService, c.BillingGateway, cfg.Logger)

	return c
}

// The service can run entirely in memory (mock billing, no Postgres/Redis);
// a nil backend must reach the health handler as a nil interface.

func dbPinger(db *database.PostgresDB) handler.Pinger {
	if db == nil {
		return nil
	}
	return db
}

func redisPinger(c *redis.Client) handler.Pinger {
	if c == nil {
		return nil
	}
	return c
}
