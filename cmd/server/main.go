package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	campaignapp "github.com/giveflow/backend/internal/application/campaign"
	complianceapp "github.com/giveflow/backend/internal/application/compliance"
	donationapp "github.com/giveflow/backend/internal/application/donation"
	ledgerapp "github.com/giveflow/backend/internal/application/ledger"
	recurringapp "github.com/giveflow/backend/internal/application/recurring"
	webhookapp "github.com/giveflow/backend/internal/application/webhook"
	"github.com/giveflow/backend/internal/domain/payment"
	"github.com/giveflow/backend/internal/domain/shared"
	"github.com/giveflow/backend/internal/infrastructure/cache"
	"github.com/giveflow/backend/internal/infrastructure/config"
	"github.com/giveflow/backend/internal/infrastructure/event"
	"github.com/giveflow/backend/internal/infrastructure/logger"
	"github.com/giveflow/backend/internal/infrastructure/persistence"
	"github.com/giveflow/backend/internal/infrastructure/provider"
	"github.com/giveflow/backend/internal/infrastructure/scheduler"
	"github.com/giveflow/backend/internal/interfaces/http/handler"
	"github.com/giveflow/backend/internal/interfaces/http/middleware"
	"github.com/giveflow/backend/internal/interfaces/http/router"
)

// recoveryBatchLimit bounds the restart re-scan of unprocessed webhook events
const recoveryBatchLimit = 500

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting GiveFlow payment engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected")

	// Repositories
	campaignRepo := persistence.NewGormCampaignRepository(db.DB)
	contributionRepo := persistence.NewGormContributionRepository(db.DB)
	transactionRepo := persistence.NewGormTransactionRepository(db.DB)
	webhookEventRepo := persistence.NewGormWebhookEventRepository(db.DB)
	entryRepo := persistence.NewGormEntryRepository(db.DB)
	scheduleRepo := persistence.NewGormScheduleRepository(db.DB)
	recordRepo := persistence.NewGormRecordRepository(db.DB)

	// Fast dedup and balance cache: Redis when configured, in-process otherwise
	var dedupStore shared.IdempotencyStore
	var eventDedupStore shared.IdempotencyStore
	var balanceCache ledgerapp.BalanceCache
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		dedupStore = cache.NewRedisIdempotencyStore(redisClient, "webhook")
		eventDedupStore = cache.NewRedisIdempotencyStore(redisClient, "event")
		balanceCache = cache.NewRedisBalanceCache(redisClient, cfg.Event.DedupTTL)
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
	} else {
		dedupStore = cache.NewInMemoryIdempotencyStore()
		eventDedupStore = cache.NewInMemoryIdempotencyStore()
		balanceCache = cache.NewInMemoryBalanceCache()
	}
	defer func() {
		_ = dedupStore.Close()
		_ = eventDedupStore.Close()
	}()

	// Provider adapters, one per payment rail
	cardAdapter, err := provider.NewCardAdapter(cfg.Provider.Card)
	if err != nil {
		log.Fatal("Failed to create card adapter", zap.Error(err))
	}
	bankAdapter, err := provider.NewBankAdapter(cfg.Provider.Bank, cfg.Provider.CallTimeout)
	if err != nil {
		log.Fatal("Failed to create bank adapter", zap.Error(err))
	}
	cryptoAdapter, err := provider.NewCryptoAdapter(cfg.Provider.Crypto, cfg.Provider.CallTimeout)
	if err != nil {
		log.Fatal("Failed to create crypto adapter", zap.Error(err))
	}
	adapters := []payment.ProviderAdapter{cardAdapter, bankAdapter, cryptoAdapter}

	// Event bus
	eventBus := event.NewInMemoryEventBus(log)
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Application services
	ledgerService := ledgerapp.NewLedgerService(ledgerapp.LedgerServiceConfig{
		EntryRepo:      entryRepo,
		Cache:          balanceCache,
		EventPublisher: eventBus,
		Logger:         log,
	})
	contributionService := donationapp.NewContributionService(donationapp.ContributionServiceConfig{
		Adapters:         adapters,
		CampaignRepo:     campaignRepo,
		ContributionRepo: contributionRepo,
		TransactionRepo:  transactionRepo,
		LedgerService:    ledgerService,
		EventPublisher:   eventBus,
		Logger:           log,
	})
	campaignService := campaignapp.NewCampaignService(campaignapp.CampaignServiceConfig{
		CampaignRepo:    campaignRepo,
		TransactionRepo: transactionRepo,
		LedgerService:   ledgerService,
		Refunder:        contributionService,
		EventPublisher:  eventBus,
		Logger:          log,
	})
	ingestionService := webhookapp.NewIngestionService(webhookapp.IngestionServiceConfig{
		Adapters:         adapters,
		FastDedup:        dedupStore,
		DedupTTL:         cfg.Event.DedupTTL,
		WebhookRepo:      webhookEventRepo,
		TransactionRepo:  transactionRepo,
		ContributionRepo: contributionRepo,
		LedgerService:    ledgerService,
		EventPublisher:   eventBus,
		Logger:           log,
	})
	schedulerService := recurringapp.NewSchedulerService(recurringapp.SchedulerServiceConfig{
		ScheduleRepo:     scheduleRepo,
		ContributionRepo: contributionRepo,
		CampaignRepo:     campaignRepo,
		Submitter:        contributionService,
		EventPublisher:   eventBus,
		BatchSize:        cfg.Scheduler.BatchSize,
		Logger:           log,
	})
	generatorService := complianceapp.NewGeneratorService(complianceapp.GeneratorServiceConfig{
		RecordRepo: recordRepo,
		EntryRepo:  entryRepo,
		Logger:     log,
	})

	// Compliance records are generated off ledger appends; the idempotent
	// wrapper absorbs redelivered events before they reach the generator
	generatorHandler := event.NewIdempotentHandler(
		generatorService,
		eventDedupStore,
		shared.IdempotencyConfig{TTL: cfg.Event.DedupTTL, Enabled: true},
		log,
	)
	eventBus.Subscribe(generatorHandler)
	log.Info("Event handlers registered",
		zap.Strings("compliance_generator_events", generatorHandler.EventTypes()))

	// Heal webhook events persisted but not processed before the last stop
	if recovered, err := ingestionService.RecoverUnprocessed(context.Background(), recoveryBatchLimit); err != nil {
		log.Error("Webhook recovery scan failed", zap.Error(err))
	} else if recovered > 0 {
		log.Info("Recovered webhook events", zap.Int("count", recovered))
	}

	// Recurring donation scheduler
	if cfg.Scheduler.Enabled {
		recurringScheduler := scheduler.NewRecurringScheduler(cfg.Scheduler, schedulerService, campaignService, log)
		if err := recurringScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start recurring scheduler", zap.Error(err))
		}
		defer func() {
			if err := recurringScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping recurring scheduler", zap.Error(err))
			}
		}()
		log.Info("Recurring scheduler started",
			zap.Duration("tick_interval", cfg.Scheduler.TickInterval),
			zap.Bool("sweep_enabled", cfg.Scheduler.SweepEnabled))
	}

	// Reconciliation poller for transactions stuck in flight
	if cfg.Reconciliation.Enabled {
		poller := scheduler.NewReconciliationPoller(cfg.Reconciliation, transactionRepo, adapters, ingestionService, log)
		if err := poller.Start(context.Background()); err != nil {
			log.Fatal("Failed to start reconciliation poller", zap.Error(err))
		}
		defer func() {
			if err := poller.Stop(context.Background()); err != nil {
				log.Error("Error stopping reconciliation poller", zap.Error(err))
			}
		}()
		log.Info("Reconciliation poller started",
			zap.Duration("poll_interval", cfg.Reconciliation.PollInterval),
			zap.Duration("stuck_threshold", cfg.Reconciliation.StuckThreshold))
	}

	// HTTP handlers
	campaignHandler := handler.NewCampaignHandler(campaignService, contributionService)
	contributionHandler := handler.NewContributionHandler(contributionService, ledgerService)
	webhookHandler := handler.NewWebhookHandler(ingestionService)
	scheduleHandler := handler.NewScheduleHandler(schedulerService)
	complianceHandler := handler.NewComplianceHandler(generatorService)
	systemHandler := handler.NewSystemHandler()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()
	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORS())
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	engine.GET("/health", healthHandler(db))

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	campaignRoutes := router.NewDomainGroup("campaigns", "/campaigns")
	campaignRoutes.POST("", campaignHandler.Create)
	campaignRoutes.GET("", campaignHandler.List)
	campaignRoutes.GET("/:id", campaignHandler.Get)
	campaignRoutes.POST("/:id/activate", campaignHandler.Activate)
	campaignRoutes.GET("/:id/contributions", campaignHandler.ListContributions)

	contributionRoutes := router.NewDomainGroup("contributions", "/contributions")
	contributionRoutes.POST("", contributionHandler.Submit)
	contributionRoutes.GET("/:id", contributionHandler.Get)

	transactionRoutes := router.NewDomainGroup("transactions", "/transactions")
	transactionRoutes.POST("/:id/refund", contributionHandler.Refund)
	transactionRoutes.GET("/:id/ledger", contributionHandler.LedgerEntries)

	donorRoutes := router.NewDomainGroup("donors", "/donors")
	donorRoutes.GET("/:id/balance", contributionHandler.DonorBalance)
	donorRoutes.GET("/:id/schedules", scheduleHandler.ListByDonor)
	donorRoutes.GET("/:id/statements/:year", complianceHandler.AnnualStatement)

	scheduleRoutes := router.NewDomainGroup("schedules", "/schedules")
	scheduleRoutes.POST("", scheduleHandler.Create)
	scheduleRoutes.GET("/:id", scheduleHandler.Get)
	scheduleRoutes.POST("/:id/pause", scheduleHandler.Pause)
	scheduleRoutes.POST("/:id/resume", scheduleHandler.Resume)
	scheduleRoutes.POST("/:id/cancel", scheduleHandler.Cancel)

	complianceRoutes := router.NewDomainGroup("compliance", "/compliance")
	complianceRoutes.GET("/records", complianceHandler.Export)

	webhookRoutes := router.NewDomainGroup("webhooks", "/webhooks")
	webhookRoutes.POST("/:provider", webhookHandler.Receive)

	statsRoutes := router.NewDomainGroup("stats", "/stats")
	statsRoutes.GET("", campaignHandler.Stats)

	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	r.Register(campaignRoutes).
		Register(contributionRoutes).
		Register(transactionRoutes).
		Register(donorRoutes).
		Register(scheduleRoutes).
		Register(complianceRoutes).
		Register(webhookRoutes).
		Register(statsRoutes).
		Register(systemRoutes)
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

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

// healthHandler reports process and database liveness
func healthHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
