package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shinelocal/spotlight/internal/di"
	"github.com/shinelocal/spotlight/internal/events"
	"github.com/shinelocal/spotlight/internal/gateway"
	"github.com/shinelocal/spotlight/internal/metrics"
	"github.com/shinelocal/spotlight/internal/repository"
	"github.com/shinelocal/spotlight/internal/service"
	"github.com/shinelocal/spotlight/pkg/config"
	"github.com/shinelocal/spotlight/pkg/database"
	"github.com/shinelocal/spotlight/pkg/logger"
	"github.com/shinelocal/spotlight/pkg/middleware"
	pkgredis "github.com/shinelocal/spotlight/pkg/redis"
	"github.com/shinelocal/spotlight/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if _, err := logger.Init(cfg.App.Environment); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting sponsorship service...")

	ctx := context.Background()

	// Telemetry
	telCfg := &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}
	if _, err := telemetry.Init(ctx, telCfg); err != nil {
		appLog.Warn(fmt.Sprintf("Tracing init failed: %v", err))
	}
	if err := telemetry.InitMeter(ctx, telCfg); err != nil {
		appLog.Warn(fmt.Sprintf("Metrics exporter init failed: %v", err))
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Metrics init failed: %v", err))
	}

	// Database
	var db *database.PostgresDB
	db, err = database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
		ServiceName:     cfg.OTel.ServiceName,
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Database connection failed: %v", err))
		db = nil
	} else {
		defer db.Close()
		appLog.Info("Database connected")
	}

	// Redis
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Redis connection failed: %v", err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		appLog.Info("Redis connected")
	}

	// Billing gateway
	billing, err := gateway.NewBillingGateway(cfg.Billing.GatewayType, &gateway.StripeGatewayConfig{
		SecretKey:     cfg.Billing.StripeSecretKey,
		WebhookSecret: cfg.Billing.WebhookSecret,
		Environment:   cfg.App.Environment,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to create billing gateway: %v", err))
	}
	appLog.Info(fmt.Sprintf("Using %s billing gateway", billing.Name()))

	// Repositories: Postgres + Redis when available, in-memory otherwise.
	var (
		sponsorshipRepo repository.SponsorshipRepository
		areaRepo        repository.AreaRepository
		invoiceRepo     repository.InvoiceRepository
		lockRepo        repository.LockRepository
	)
	if db != nil {
		sponsorshipRepo = repository.NewPostgresSponsorshipRepository(db)
		areaRepo = repository.NewPostgresAreaRepository(db)
		invoiceRepo = repository.NewPostgresInvoiceRepository(db)
	} else {
		memAreas := repository.NewMemoryAreaRepository()
		sponsorshipRepo = repository.NewMemorySponsorshipRepository(memAreas)
		areaRepo = memAreas
		invoiceRepo = repository.NewMemoryInvoiceRepository()
		appLog.Warn("Using in-memory repositories (data will not persist)")
	}
	if redisClient != nil {
		redisLocks := repository.NewRedisLockRepository(redisClient)
		if err := redisLocks.LoadScripts(ctx); err != nil {
			appLog.Warn(fmt.Sprintf("Failed to preload lock scripts: %v", err))
		}
		lockRepo = redisLocks
	} else {
		lockRepo = repository.NewMemoryLockRepository()
		appLog.Warn("Using in-memory checkout locks (single instance only)")
	}

	// Outcome events
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Kafka.Enabled {
		kp, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.ClientID, appLog)
		if err != nil {
			appLog.Warn(fmt.Sprintf("Kafka publisher init failed: %v", err))
		} else {
			defer kp.Close()
			publisher = kp
		}
	}

	container := di.NewContainer(&di.ContainerConfig{
		DB:              db,
		Redis:           redisClient,
		SponsorshipRepo: sponsorshipRepo,
		AreaRepo:        areaRepo,
		InvoiceRepo:     invoiceRepo,
		LockRepo:        lockRepo,
		BillingGateway:  billing,
		Publisher:       publisher,
		PricingConfig: service.PricingConfig{
			Default: service.PriceRate{
				RatePerKm2:     cfg.Pricing.RatePerKm2,
				MinimumMonthly: cfg.Pricing.MinimumMonthly,
			},
			Currency: cfg.Pricing.Currency,
		},
		CheckoutConfig: service.CheckoutServiceConfig{
			LockTTL:    cfg.Checkout.LockTTL,
			SuccessURL: cfg.Billing.SuccessURL,
			CancelURL:  cfg.Billing.CancelURL,
		},
		Logger: appLog,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.OTel.Enabled {
		router.Use(telemetry.TracingMiddleware(cfg.OTel.ServiceName))
	}
	router.Use(metrics.RequestMetrics())

	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// Raw provider webhook, outside the versioned API.
	router.POST("/stripe-webhook", container.WebhookHandler.HandleBillingWebhook)

	v1 := router.Group("/api/v1")
	{
		if redisClient != nil {
			idemCfg := middleware.DefaultIdempotencyConfig(redisClient.Client())
			v1.POST("/sponsored-checkout", middleware.Idempotency(idemCfg), container.SponsorHandler.CreateCheckout)
		} else {
			v1.POST("/sponsored-checkout", container.SponsorHandler.CreateCheckout)
		}
		v1.POST("/sponsored-preview", container.SponsorHandler.Preview)
		v1.POST("/subscription-cancel", container.SponsorHandler.CancelSubscription)
		v1.GET("/areas/:id/sponsorships", container.SponsorHandler.ListAreaSponsorships)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info(fmt.Sprintf("Sponsorship service listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	if err := telemetry.ShutdownMeter(shutdownCtx); err != nil {
		appLog.Warn(fmt.Sprintf("Metrics shutdown failed: %v", err))
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn(fmt.Sprintf("Tracing shutdown failed: %v", err))
	}

	appLog.Info("Server exited gracefully")
}
