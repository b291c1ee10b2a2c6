package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	dunningapp "github.com/erp/settlement/internal/application/dunning"
	settlementapp "github.com/erp/settlement/internal/application/settlement"
	"github.com/erp/settlement/internal/domain/dunning"
	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/auth"
	"github.com/erp/settlement/internal/infrastructure/cache"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/erp/settlement/internal/infrastructure/event"
	"github.com/erp/settlement/internal/infrastructure/export"
	"github.com/erp/settlement/internal/infrastructure/feeconfig"
	"github.com/erp/settlement/internal/infrastructure/logger"
	"github.com/erp/settlement/internal/infrastructure/metrics"
	"github.com/erp/settlement/internal/infrastructure/payout"
	"github.com/erp/settlement/internal/infrastructure/persistence"
	"github.com/erp/settlement/internal/infrastructure/storage"
	"github.com/erp/settlement/internal/infrastructure/telemetry"
	"github.com/erp/settlement/internal/interfaces/http/handler"
	"github.com/erp/settlement/internal/interfaces/http/middleware"
	"github.com/erp/settlement/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Settlement Engine API
//	@version		1.0
//	@description	Partner settlements, payouts and account dunning

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log, err := logger.New(logCfg)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx := context.Background()

	// OpenTelemetry logs bridge; the logger is rebuilt with the extra core
	logProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log provider", zap.Error(err))
	}
	if logProvider.IsEnabled() {
		log = telemetry.Bridge(log, telemetry.NewZapOTELCore(cfg.Telemetry.ServiceName, logProvider, logger.ParseLevel(cfg.Log.Level)))
	}
	defer shutdownWithTimeout(log, "log provider", logProvider.Shutdown)

	log.Info("Starting settlement engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer shutdownWithTimeout(log, "tracer provider", tracerProvider.Shutdown)

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer shutdownWithTimeout(log, "meter provider", meterProvider.Shutdown)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServerAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
		ProfileTypes:    cfg.Telemetry.ProfilingTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() && tracerProvider.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	// Prometheus collectors for the business metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Init(registry)

	// Database
	gormOpts := []logger.GormLoggerOption{logger.WithSQL(cfg.Telemetry.DBLogFullSQL)}
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		gormOpts = append(gormOpts, logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	}
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), gormOpts...)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		dbTracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	}
	if err := telemetry.NewDBTracingPlugin(dbTracing, log).Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Account locker: Redis when configured, otherwise in-process
	var redisClient *redis.Client
	lockerFactory := cache.NewLockerFactory(cfg.Redis, cfg.Dunning, cache.WithLogger(log))
	locker, closeLocker, err := lockerFactory.CreateLocker(ctx)
	if err != nil {
		log.Fatal("Failed to create account locker", zap.Error(err))
	}
	defer func() {
		if err := closeLocker(); err != nil {
			log.Error("Error closing account locker", zap.Error(err))
		}
	}()
	if rl, ok := locker.(*cache.RedisAccountLocker); ok {
		redisClient = rl.Client()
	}

	// Repositories
	settlementRepo := persistence.NewGormSettlementRepository(db.DB)
	payoutRepo := persistence.NewGormPayoutRepository(db.DB)
	feeRepo := persistence.NewGormFeeScheduleRepository(db.DB)
	invoiceStore := persistence.NewGormInvoiceStore(db.DB)
	dunningLogRepo := persistence.NewGormDunningLogRepository(db.DB)
	overrideRepo := persistence.NewGormOverrideRepository(db.DB)

	var fees settlement.FeeScheduleProvider = feeRepo
	if cfg.Settlement.FeeSource == "file" {
		fileFees, err := feeconfig.LoadFile(cfg.Settlement.FeeFile)
		if err != nil {
			log.Fatal("Failed to load fee file", zap.String("path", cfg.Settlement.FeeFile), zap.Error(err))
		}
		fees = fileFees
		log.Info("Fee schedules loaded from file",
			zap.String("path", cfg.Settlement.FeeFile),
			zap.Int("partners", fileFees.Partners()),
		)
	}

	provider, err := payout.NewHTTPProvider(payout.ProviderConfig{
		BaseURL: cfg.Payout.ProviderURL,
		APIKey:  cfg.Payout.APIKey,
		Timeout: cfg.Payout.Timeout,
	}, log)
	if err != nil {
		log.Fatal("Failed to create payout provider client", zap.Error(err))
	}

	// Event bus; handlers run off the request path
	eventBus := event.NewInMemoryEventBus(log, event.WithAsyncDispatch())
	eventBus.Subscribe(event.NewMetricsHandler(log))

	renderer := export.NewRenderer()
	if cfg.Storage.Enabled {
		archive, err := storage.NewS3StatementArchive(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create statement archive", zap.Error(err))
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to prepare statement bucket", zap.String("bucket", archive.Bucket()), zap.Error(err))
		}
		archiveHandler := settlementapp.NewStatementArchiveHandler(settlementRepo, payoutRepo, renderer, archive, log)
		eventBus.Subscribe(archiveHandler)
		log.Info("Statement archiving enabled",
			zap.String("bucket", archive.Bucket()),
			zap.Strings("events", archiveHandler.EventTypes()),
		)
	}

	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Application services
	clock := shared.SystemClock{}
	settlementService := settlementapp.NewSettlementService(
		settlementRepo, payoutRepo, fees,
		persistence.NewGormSettlementTransactionScope(db.DB),
		eventBus, clock,
		settlementapp.SettlementConfig{CreateEmpty: cfg.Settlement.CreateEmpty},
		log,
	)
	payoutService := settlementapp.NewPayoutService(
		settlementRepo, payoutRepo, feeRepo, provider,
		persistence.NewGormSettlementTransactionScope(db.DB),
		eventBus, clock,
		settlementapp.PayoutConfig{
			Timeout:           cfg.Payout.Timeout,
			ReconcileAttempts: cfg.Payout.ReconcileAttempts,
			ReconcileInterval: cfg.Payout.ReconcileInterval,
		},
		log,
	)

	policy, err := dunning.NewPolicy(cfg.Dunning.GraceDays, cfg.Dunning.BlockDays, cfg.Dunning.ExtraThresholds...)
	if err != nil {
		log.Fatal("Invalid dunning policy", zap.Error(err))
	}
	dunningService, err := dunningapp.NewDunningService(
		invoiceStore, dunningLogRepo, overrideRepo, locker,
		persistence.NewGormDunningTransactionScope(db.DB),
		eventBus, clock,
		dunningapp.Config{Policy: policy, MaxParallel: cfg.Dunning.MaxParallel},
		log,
	)
	if err != nil {
		log.Fatal("Failed to create dunning service", zap.Error(err))
	}

	// HTTP
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
	engine.Use(logger.GinMiddleware(log, "/health", "/metrics"))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{middleware.RequestIDHeader, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		Enabled:       cfg.Telemetry.MetricsEnabled,
		Logger:        log,
	}))

	checks := []handler.HealthCheck{{
		Name:  "database",
		Check: func(ctx context.Context) error { return db.DB.WithContext(ctx).Exec("SELECT 1").Error },
	}}
	if redisClient != nil {
		checks = append(checks, handler.HealthCheck{
			Name:     "redis",
			Check:    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
			Optional: true,
		})
	}
	healthHandler := handler.NewHealthHandler(cfg.App.Name, version, checks...)
	engine.GET("/health", healthHandler.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	r := router.NewRouter(engine)
	if cfg.JWT.Enabled {
		r.Use(middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
			Validator: auth.NewJWTService(cfg.JWT),
			Logger:    log,
		}))
	} else {
		log.Warn("JWT authentication disabled; every API caller is trusted")
	}
	r.Use(
		middleware.TracingAttributeInjector(),
		middleware.ProfilingWithConfig(middleware.ProfilingConfig{Enabled: cfg.Telemetry.ProfilingEnabled}),
	)
	if cfg.Dunning.EnforceOnRequest {
		r.Use(middleware.AccessGuard(middleware.AccessGuardConfig{
			Resolver:          dunningService,
			BlockedReadRoutes: middleware.DefaultBlockedReadRoutes(r.APIPrefix()),
			Logger:            log,
		}))
	}

	groups := []*router.DomainGroup{
		handler.NewSettlementHandler(settlementService, renderer).Routes(),
		handler.NewPayoutHandler(payoutService).Routes(),
		handler.NewDunningHandler(dunningService).Routes(),
		router.NewDomainGroup("system", "/system").GET("/info", healthHandler.Info),
	}
	for _, group := range groups {
		r.Register(group)
		log.Debug("Routes registered", zap.String("group", group.Name()), zap.Int("routes", len(group.Routes())))
	}
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
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// shutdownWithTimeout stops a telemetry provider, logging but not failing on error
func shutdownWithTimeout(log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Error("Error shutting down "+name, zap.Error(err))
	}
}
