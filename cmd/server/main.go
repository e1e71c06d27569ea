package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appintegration "github.com/carelink/backend/internal/application/integration"
	apporder "github.com/carelink/backend/internal/application/order"
	apppartner "github.com/carelink/backend/internal/application/partner"
	"github.com/carelink/backend/internal/domain/shared"
	"github.com/carelink/backend/internal/infrastructure/auth"
	"github.com/carelink/backend/internal/infrastructure/cache"
	"github.com/carelink/backend/internal/infrastructure/config"
	"github.com/carelink/backend/internal/infrastructure/event"
	"github.com/carelink/backend/internal/infrastructure/gateway"
	"github.com/carelink/backend/internal/infrastructure/logger"
	"github.com/carelink/backend/internal/infrastructure/persistence"
	"github.com/carelink/backend/internal/infrastructure/scheduler"
	"github.com/carelink/backend/internal/infrastructure/transform"
	"github.com/carelink/backend/internal/infrastructure/webhook"
	"github.com/carelink/backend/internal/interfaces/http/handler"
	"github.com/carelink/backend/internal/interfaces/http/middleware"
	"github.com/carelink/backend/internal/interfaces/http/router"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting CareLink Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database connection and schema
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := db.Migrate(); err != nil {
		log.Fatal("Failed to migrate database schema", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Initialize repositories
	partnerRepo := persistence.NewGormPartnerRepository(db.DB)
	serviceRepo := persistence.NewGormServiceRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	deliveryRecordRepo := persistence.NewGormDeliveryRecordRepository(db.DB)
	syncStateRepo := persistence.NewGormSyncStateRepository(db.DB)

	// Idempotency store for inbound event deduplication. Redis when
	// configured, otherwise a process-local store.
	var idempotencyStore shared.IdempotencyStore
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		idempotencyStore = cache.NewRedisIdempotencyStore(client)
		log.Info("Redis idempotency store connected",
			zap.String("addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)),
		)
	} else {
		idempotencyStore = cache.NewInMemoryIdempotencyStore(time.Minute)
		log.Info("Using in-memory idempotency store")
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	// Initialize event bus
	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Initialize application services
	orderService := apporder.NewService(orderRepo, partnerRepo, eventBus, log)
	registryService := apppartner.NewRegistryService(partnerRepo, serviceRepo, eventBus, log)

	// Webhook dispatcher delivers order events to subscribed partners
	dispatcher, err := webhook.NewDispatcher(webhook.Config{
		Workers:        cfg.Dispatcher.Workers,
		QueueSize:      cfg.Dispatcher.QueueSize,
		AttemptTimeout: cfg.Dispatcher.AttemptTimeout,
		HistorySize:    cfg.Dispatcher.HistorySize,
	}, deliveryRecordRepo, orderService, log)
	if err != nil {
		log.Fatal("Invalid dispatcher configuration", zap.Error(err))
	}
	if err := dispatcher.Start(context.Background()); err != nil {
		log.Fatal("Failed to start webhook dispatcher", zap.Error(err))
	}
	defer func() {
		if err := dispatcher.Stop(context.Background()); err != nil {
			log.Error("Error stopping webhook dispatcher", zap.Error(err))
		}
	}()
	log.Info("Webhook dispatcher started",
		zap.Int("workers", cfg.Dispatcher.Workers),
		zap.Int("queue_size", cfg.Dispatcher.QueueSize),
	)

	// Order events fan out to partner webhooks
	dispatchHandler := appintegration.NewWebhookDispatchHandler(partnerRepo, dispatcher, log)
	eventBus.Subscribe(dispatchHandler)

	// Field transformer applies per-partner mapping rules
	transformer := transform.NewFieldTransformer()

	// Inbound webhooks from partners
	inboundService := appintegration.NewInboundWebhookService(partnerRepo, transformer, orderService, idempotencyStore, log)
	inboundService.SetEventTTL(cfg.Event.IdempotencyTTL)

	// Sync scheduler runs periodic pull/push cycles against partner systems
	partnerGateway := gateway.NewHTTPGateway(gateway.Config{}, gateway.EnvCredentialResolver{}, log)
	syncExecutor := appintegration.NewSyncExecutor(partnerGateway, transformer, orderRepo, orderService, log)
	syncScheduler, err := scheduler.NewSyncScheduler(scheduler.Config{
		Enabled:       cfg.Sync.Enabled,
		CycleTimeout:  cfg.Sync.CycleTimeout,
		RefreshPeriod: cfg.Sync.RefreshPeriod,
	}, partnerRepo, syncStateRepo, syncExecutor, log)
	if err != nil {
		log.Fatal("Invalid sync scheduler configuration", zap.Error(err))
	}
	if err := syncScheduler.Start(context.Background()); err != nil {
		log.Fatal("Failed to start sync scheduler", zap.Error(err))
	}
	defer func() {
		if err := syncScheduler.Stop(context.Background()); err != nil {
			log.Error("Error stopping sync scheduler", zap.Error(err))
		}
	}()

	statusService := appintegration.NewStatusService(partnerRepo, syncStateRepo, deliveryRecordRepo, syncScheduler, log)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	basePath := r.BasePath()

	// Middleware stack. Inbound partner webhooks skip bearer auth; they
	// authenticate by payload signature instead.
	engine.Use(middleware.RequestID())
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(log))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.Auth(middleware.AuthConfig{
		Verifier: auth.NewVerifier(cfg.JWT),
		SkipPaths: []string{
			basePath + "/health",
			basePath + "/ready",
		},
		SkipPathSuffixes: []string{
			"/webhooks/inbound",
		},
	}))

	// Register route groups
	r.Register(handler.NewSystemHandler(db, version)).
		Register(handler.NewPartnerHandler(registryService)).
		Register(handler.NewOrderHandler(orderService)).
		Register(handler.NewIntegrationHandler(inboundService, statusService))
	r.Setup()

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
