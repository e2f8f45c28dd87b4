package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	appledger "github.com/mxi/presale/internal/application/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/mxi/presale/internal/infrastructure/auth"
	"github.com/mxi/presale/internal/infrastructure/cache"
	"github.com/mxi/presale/internal/infrastructure/config"
	"github.com/mxi/presale/internal/infrastructure/event"
	"github.com/mxi/presale/internal/infrastructure/gateway"
	"github.com/mxi/presale/internal/infrastructure/logger"
	"github.com/mxi/presale/internal/infrastructure/migration"
	"github.com/mxi/presale/internal/infrastructure/notify"
	"github.com/mxi/presale/internal/infrastructure/persistence"
	"github.com/mxi/presale/internal/infrastructure/scheduler"
	"github.com/mxi/presale/internal/infrastructure/storage"
	"github.com/mxi/presale/internal/infrastructure/telemetry"
	"github.com/mxi/presale/internal/interfaces/http/handler"
	"github.com/mxi/presale/internal/interfaces/http/middleware"
	"github.com/mxi/presale/internal/interfaces/http/router"
	"github.com/mxi/presale/migrations"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: cfg.App.Name,
		Env:     cfg.App.Env,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		MetricsInterval:   cfg.Telemetry.MetricsInterval,
		LogsEnabled:       cfg.Telemetry.LogsEnabled,
	}

	// Export logs over OTLP when enabled
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetryCfg)
	if err != nil {
		log.Fatal("Failed to initialize log exporter", zap.Error(err))
	}
	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	log = logProvider.Bridge(log, telemetryCfg.ServiceName, level)

	log.Info("Starting server",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("port", cfg.App.Port),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetryCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter", zap.Error(err))
	}
	meter := meterProvider.Meter(telemetryCfg.ServiceName)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsRunning() && cfg.Profiling.SpanProfiles {
		tracerProvider.EnableSpanProfiles()
	}

	if cfg.Database.MigrateOnStart {
		if err := migrateOnStart(&cfg.Database, log); err != nil {
			log.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	// Initialize database
	gormLogger := logger.NewGormLogger(
		log,
		logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithParameterizedQueries(!cfg.Telemetry.DBLogFullSQL),
	)
	var instrumentation *telemetry.DBInstrumentation
	if cfg.Telemetry.Enabled {
		instrumentation = &telemetry.DBInstrumentation{
			Tracing:            cfg.Telemetry.DBTraceEnabled,
			IncludeVariables:   cfg.Telemetry.DBLogFullSQL,
			SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
		}
	}
	db, err := persistence.NewDatabase(&cfg.Database, persistence.Options{
		Logger:          gormLogger,
		Instrumentation: instrumentation,
		Meter:           meter,
		ZapLogger:       log,
		PrepareStmt:     true,
	})
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()
	log.Info("Database connected",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("database", cfg.Database.DBName),
	)

	// Redis backs the token blacklist and event idempotency; both fall back
	// to process memory when redis is optional and unreachable
	redisClient, err := cache.Connect(ctx, cache.RedisOptions{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Required: cfg.Redis.Required,
	}, log)
	if err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// Ledger metrics
	ledgerMetrics, err := telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{
		Meter:            meter,
		Logger:           log,
		SnapshotProvider: persistence.NewLedgerSnapshots(db.DB),
	})
	if err != nil {
		log.Fatal("Failed to initialize ledger metrics", zap.Error(err))
	}
	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	ledgerMetrics.StartPeriodicCollection(metricsCtx, cfg.Scheduler.MetricsInterval)

	// Ledger services share one transaction scope; every mutation records
	// its events in the outbox inside the same transaction
	serializer := event.NewLedgerEventSerializer()
	ledgerCfg := ledgerConfig(cfg.Ledger, cfg.Gateway.Timeout)
	deps := appledger.Deps{
		Scope:   persistence.NewGormTransactionScope(db.DB, serializer),
		Config:  ledgerCfg,
		Metrics: ledgerMetrics,
		Logger:  log,
	}

	gatewayClient, err := gateway.NewClient(gateway.Config{
		BaseURL:     cfg.Gateway.BaseURL,
		APIKey:      cfg.Gateway.APIKey,
		IPNSecret:   cfg.Gateway.IPNSecret,
		CallbackURL: cfg.Gateway.CallbackURL,
		SuccessURL:  cfg.Gateway.SuccessURL,
		CancelURL:   cfg.Gateway.CancelURL,
		Timeout:     cfg.Gateway.Timeout,
		MaxRetries:  cfg.Gateway.MaxRetries,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize payment gateway client", zap.Error(err))
	}
	ipnVerifier, err := gateway.NewIPNVerifier(cfg.Gateway.IPNSecret)
	if err != nil {
		log.Fatal("Failed to initialize IPN verifier", zap.Error(err))
	}

	var uploader appledger.ProofUploader
	if cfg.Storage.Enabled {
		proofStore, err := storage.NewS3ProofStore(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize proof storage", zap.Error(err))
		}
		if err := proofStore.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to prepare proof bucket", zap.Error(err))
		}
		uploader = proofStore
		log.Info("Proof storage enabled", zap.String("bucket", proofStore.Bucket()))
	}

	commissionService := appledger.NewCommissionService(deps)
	creditingService := appledger.NewCreditingService(deps, commissionService)
	accountService := appledger.NewAccountService(deps)
	reconciliationService := appledger.NewReconciliationService(deps, gatewayClient, creditingService)
	verificationService := appledger.NewVerificationService(deps, creditingService, uploader)
	vestingService := appledger.NewVestingService(deps)
	withdrawalService := appledger.NewWithdrawalService(deps)
	yieldService := appledger.NewYieldService(deps)

	// Event bus fed by the outbox processor
	eventBus := event.NewInMemoryEventBus(log)

	var idempotencyStore shared.IdempotencyStore
	if redisClient != nil {
		idempotencyStore = cache.NewIdempotencyStore(redisClient)
	} else {
		idempotencyStore = cache.NewInMemoryIdempotencyStore(time.Minute)
	}
	creditedHandler := event.NewIdempotentHandler(
		appledger.NewPaymentCreditedHandler(commissionService, log),
		idempotencyStore,
		shared.IdempotencyConfig{TTL: cfg.Event.IdempotencyTTL, Enabled: true},
		log,
	)
	eventBus.Subscribe(creditedHandler, creditedHandler.EventTypes()...)

	notifier, closeNotifier := newNotifier(cfg.Kafka, log)
	defer closeNotifier()
	noticeHandler := appledger.NewChangeNoticeHandler(notifier, log)
	eventBus.Subscribe(noticeHandler, noticeHandler.EventTypes()...)

	outboxProcessor := event.NewOutboxProcessor(
		event.NewGormOutboxRepository(db.DB),
		eventBus,
		serializer,
		event.OutboxProcessorConfig{
			BatchSize:        cfg.Event.BatchSize,
			CleanupRetention: cfg.Event.CleanupRetention,
		},
		log,
	)

	// Background jobs
	jobScheduler, err := scheduler.NewScheduler(scheduler.Config{
		Enabled:           cfg.Scheduler.Enabled,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        cfg.Scheduler.JobTimeout,
	}, log)
	if err != nil {
		log.Fatal("Failed to create scheduler", zap.Error(err))
	}
	jobs := []scheduler.Job{
		scheduler.VestingSweepJob(vestingService, cfg.Scheduler.VestingInterval, cfg.Scheduler.VestingBatchSize, log),
		scheduler.ReconcileStaleJob(reconciliationService, cfg.Scheduler.ReconcileInterval,
			cfg.Ledger.StaleAfter, cfg.Scheduler.ReconcileBatchSize, log),
	}
	if cfg.Event.ProcessorEnabled {
		jobs = append(jobs, scheduler.OutboxDeliveryJob(outboxProcessor, cfg.Event.PollInterval))
	}
	if cfg.Event.CleanupEnabled {
		jobs = append(jobs, scheduler.OutboxCleanupJob(outboxProcessor, 24*time.Hour, log))
	}
	for _, job := range jobs {
		if err := jobScheduler.Register(job); err != nil {
			log.Fatal("Failed to register job", zap.String("job", job.Name), zap.Error(err))
		}
	}
	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	if err := jobScheduler.Start(schedulerCtx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Authentication
	jwtService := auth.NewJWTService(cfg.JWT)
	tokenBlacklist := auth.NewTokenBlacklist(redisClient)
	capabilities := auth.NewCapabilityIssuer(cfg.JWT.AdminCapabilityTTL, nil)

	var rateLimiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
	}

	// HTTP layer
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := router.NewEngine(router.EngineOptions{
		ServiceName:      telemetryCfg.ServiceName,
		Production:       cfg.App.Env == "production",
		HTTP:             cfg.HTTP,
		TracingEnabled:   tracerProvider.IsEnabled(),
		ProfilingEnabled: profiler.IsRunning(),
		Meter:            meter,
		Logger:           log,
	})

	handlers := router.Handlers{
		System:        handler.NewSystemHandler(cfg.App.Name, version, healthChecks(db, redisClient)),
		Accounts:      handler.NewAccountHandler(accountService),
		Payments:      handler.NewPaymentHandler(reconciliationService),
		Webhooks:      handler.NewWebhookHandler(ipnVerifier, reconciliationService),
		Verifications: handler.NewVerificationHandler(verificationService),
		Yield:         handler.NewYieldHandler(yieldService),
		Withdrawals:   handler.NewWithdrawalHandler(withdrawalService, vestingService, commissionService),
		Admin: handler.NewAdminHandler(handler.AdminHandlerConfig{
			Accounts:      accountService,
			Payments:      reconciliationService,
			Verifications: verificationService,
			Vesting:       vestingService,
			Commissions:   commissionService,
			Sessions:      tokenBlacklist,
			SessionTTL:    cfg.JWT.AccessTokenExpiration,
			Jobs:          jobScheduler,
		}),
	}
	router.RegisterLedgerRoutes(engine, handlers, router.RoutesConfig{
		JWT: middleware.JWTMiddlewareConfig{
			JWTService:     jwtService,
			TokenBlacklist: tokenBlacklist,
			Logger:         log,
		},
		Capability:  capabilities,
		RateLimiter: rateLimiter,
	})

	// Create HTTP server
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
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownGracePeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := jobScheduler.Stop(shutdownCtx); err != nil {
		log.Error("Scheduler did not stop cleanly", zap.Error(err))
	}
	ledgerMetrics.Stop()
	if rateLimiter != nil {
		rateLimiter.Stop()
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Failed to stop profiler", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush traces", zap.Error(err))
	}
	if err := logProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush logs", zap.Error(err))
	}

	log.Info("Server exited")
}

// migrateOnStart applies pending embedded migrations over a dedicated
// connection; the migrator closes it when done.
func migrateOnStart(cfg *config.DatabaseConfig, log *zap.Logger) error {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, migration.Source{FS: migrations.FS}, log)
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()
	return m.Up()
}

// newNotifier publishes change notices to Kafka when configured and to the
// log otherwise.
func newNotifier(cfg config.KafkaConfig, log *zap.Logger) (appledger.ChangeNotifier, func()) {
	if !cfg.Enabled {
		return notify.NewLogNotifier(log), func() {}
	}
	publisher, err := notify.NewKafkaPublisher(notify.KafkaConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		WriteTimeout: cfg.WriteTimeout,
	}, log)
	if err != nil {
		log.Fatal("Failed to create kafka publisher", zap.Error(err))
	}
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			log.Warn("Failed to close kafka publisher", zap.Error(err))
		}
	}
}

func healthChecks(db *persistence.Database, redisClient *redis.Client) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": db.Ping,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
