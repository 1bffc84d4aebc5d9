package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/sellersync/internal/application/finance"
	"github.com/erp/sellersync/internal/application/fulfillment"
	"github.com/erp/sellersync/internal/application/inventory"
	"github.com/erp/sellersync/internal/application/ordersync"
	"github.com/erp/sellersync/internal/application/profit"
	"github.com/erp/sellersync/internal/application/returns"
	"github.com/erp/sellersync/internal/application/syncjobs"
	"github.com/erp/sellersync/internal/domain/job"
	"github.com/erp/sellersync/internal/domain/marketplace"
	"github.com/erp/sellersync/internal/infrastructure/analytics"
	"github.com/erp/sellersync/internal/infrastructure/cache"
	"github.com/erp/sellersync/internal/infrastructure/config"
	"github.com/erp/sellersync/internal/infrastructure/logger"
	"github.com/erp/sellersync/internal/infrastructure/messaging"
	"github.com/erp/sellersync/internal/infrastructure/persistence"
	"github.com/erp/sellersync/internal/infrastructure/scheduler"
	"github.com/erp/sellersync/internal/infrastructure/spapi"
	"github.com/erp/sellersync/internal/infrastructure/storage"
	"github.com/erp/sellersync/internal/infrastructure/telemetry"
	"github.com/erp/sellersync/internal/interfaces/http/handler"
	"github.com/erp/sellersync/internal/interfaces/http/middleware"
	"github.com/erp/sellersync/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	serviceVersion = "1.0.0"
	maxBodyBytes   = 1 << 20
)

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
		_ = log.Sync()
	}()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing and the log bridge. Both are inert unless enabled.
	tp, err := telemetry.NewTracerProvider(rootCtx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	lp, err := telemetry.NewLoggerProvider(rootCtx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = lp.Bridge(log)

	log.Info("Starting seller sync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	db, err := persistence.NewDatabase(&cfg.Database, log, cfg.Log.Level)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	dbSystem := "postgresql"
	if cfg.Database.Driver == "sqlite" {
		dbSystem = "sqlite"
	}
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:  tp.IsEnabled() && cfg.Telemetry.DBTracing,
		DBSystem: dbSystem,
	}, log); err != nil {
		log.Warn("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Telemetry. A disabled provider hands out no-op meters.
	mp, err := telemetry.NewMeterProvider(rootCtx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	meter := mp.Meter("sellersync")
	metrics, err := telemetry.NewSyncMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		if err := telemetry.RegisterPoolMetrics(meter, sqlDB); err != nil {
			log.Warn("Failed to register pool metrics", zap.Error(err))
		}
	}

	// Repositories
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	returnRepo := persistence.NewGormReturnRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	syncLogRepo := persistence.NewGormSyncLogRepository(db.DB)
	shipmentRepo := persistence.NewGormShipmentRepository(db.DB)
	fbaInventoryRepo := persistence.NewGormFbaInventoryRepository(db.DB)
	dailyProfitRepo := persistence.NewGormDailyProfitRepository(db.DB)
	jobRepo := persistence.NewGormJobRepository(db.DB)
	ledger := persistence.NewGormLedger(db.DB)

	// Raw report archive
	var archive marketplace.ReportArchive = marketplace.NopArchive{}
	if cfg.Storage.Enabled && cfg.Report.ArchiveRaw {
		s3Archive, err := storage.NewS3ReportArchive(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to initialize report archive", zap.Error(err))
		}
		if err := s3Archive.EnsureBucket(rootCtx); err != nil {
			log.Warn("Report archive bucket unavailable", zap.Error(err))
		}
		archive = s3Archive
		log.Info("Raw reports are archived", zap.String("bucket", s3Archive.Bucket()))
	}

	// Analytics export
	profitOpts := []profit.Option{profit.WithRecorder(metrics)}
	var exporter *analytics.ClickHouseExporter
	if cfg.Analytics.Enabled {
		exporter, err = analytics.NewClickHouseExporter(cfg.Analytics, log)
		if err != nil {
			log.Fatal("Failed to connect to ClickHouse", zap.Error(err))
		}
		defer func() {
			_ = exporter.Close()
		}()
		if err := exporter.EnsureTable(rootCtx); err != nil {
			log.Fatal("Failed to create analytics table", zap.Error(err))
		}
		profitOpts = append(profitOpts, profit.WithExporter(exporter))
	}
	profitService := profit.NewService(dailyProfitRepo, syncLogRepo, log, profitOpts...)

	defaultWarehouse, err := parseWarehouseID(cfg.Fulfillment.DefaultWarehouseID)
	if err != nil {
		log.Fatal("Invalid default warehouse id", zap.Error(err))
	}
	reconciliation := fulfillment.NewReconciliationService(shipmentRepo, productRepo, ledger, defaultWarehouse, log)

	// Vendor-backed syncs. Without credentials the service still serves
	// what is already stored and the sync endpoints answer 503.
	executors := syncjobs.Executors{
		Profit:            profitService,
		ShipmentRetention: cfg.Fulfillment.Retention,
		Logger:            log,
	}
	var (
		historical handler.HistoricalRunner
		snapshots  handler.InventorySnapshots
	)
	client, err := spapi.NewClient(vendorConfig(cfg.Vendor),
		spapi.WithLogger(log),
		spapi.WithRequestObserver(metrics),
	)
	switch {
	case errors.Is(err, marketplace.ErrNotConfigured):
		log.Warn("Vendor credentials missing; sync jobs are disabled", zap.Error(err))
	case err != nil:
		log.Fatal("Failed to create vendor client", zap.Error(err))
	default:
		reports := spapi.NewReportLifecycle(client,
			spapi.WithPollInterval(cfg.Report.PollInterval),
			spapi.WithMaxPollAttempts(cfg.Report.MaxPollAttempts),
			spapi.WithLifecycleLogger(log),
		)

		ingestor := ordersync.NewIngestor(orderRepo, productRepo, log)
		orders := ordersync.NewOrchestrator(reports, ingestor, syncLogRepo, ordersync.Config{
			ReportTypes:         append([]string{marketplace.ReportTypeOrdersByOrderDate}, cfg.Report.FallbackTypes...),
			InterBatchDelay:     cfg.Sync.InterBatchDelay,
			IncrementalLookback: cfg.Sync.IncrementalLookback,
		}, log,
			ordersync.WithArchive(archive),
			ordersync.WithRecorder(metrics),
		)
		finances := finance.NewReconciler(client, orderRepo, returnRepo, syncLogRepo, finance.Config{
			WindowDays:          cfg.Sync.WindowDays,
			FlushEveryKeys:      cfg.Sync.FlushEveryKeys,
			RateLimitWait:       cfg.Sync.RateLimitWait,
			MaxRateLimitRetries: cfg.Sync.MaxRateLimitRetries,
		}, log, finance.WithRecorder(metrics))
		shipments := fulfillment.NewShipmentSync(client, shipmentRepo, syncLogRepo, cfg.Fulfillment.ShipmentLookback, log,
			fulfillment.WithShipmentRecorder(metrics),
		)
		inventorySync := inventory.NewSync(client, fbaInventoryRepo, productRepo, syncLogRepo, log,
			inventory.WithRecorder(metrics),
		)
		returnsSync := returns.NewSync(reports, returnRepo, orderRepo, productRepo, syncLogRepo, log,
			returns.WithArchive(archive),
			returns.WithRecorder(metrics),
		)

		executors.Orders = orders
		executors.Finances = finances
		executors.Shipments = shipments
		executors.Inventory = inventorySync
		executors.Returns = returnsSync
		historical = orders
		snapshots = inventorySync
	}

	// Job queue
	lockFactory := cache.NewRunLockFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	)
	locker, err := lockFactory.CreateLock()
	if err != nil {
		log.Fatal("Failed to create run lock", zap.Error(err))
	}
	defer func() {
		_ = locker.Close()
	}()

	transport, err := newTransport(cfg, log)
	if err != nil {
		log.Fatal("Failed to create job transport", zap.Error(err))
	}
	queue := scheduler.NewQueue(scheduler.Config{
		Workers:       cfg.Scheduler.Workers,
		MaxAttempts:   cfg.Scheduler.RetryAttempts,
		RetryDelay:    cfg.Scheduler.RetryDelay,
		MaxRetryDelay: cfg.Scheduler.MaxRetryDelay,
		JobTimeout:    cfg.Scheduler.JobTimeout,
		PollInterval:  cfg.Scheduler.PollInterval,
		RunLockTTL:    cfg.Scheduler.RunLockTTL,
	}, jobRepo, transport, locker, log)
	executors.Register(queue)

	if cfg.Scheduler.Enabled {
		if err := queue.Start(rootCtx); err != nil {
			log.Fatal("Failed to start job queue", zap.Error(err))
		}
	}

	var cron *scheduler.CronTrigger
	if cfg.Scheduler.Enabled && cfg.Cron.Enabled {
		cron, err = newCronTrigger(queue, &executors, cfg.Cron, log)
		if err != nil {
			log.Fatal("Failed to configure cron triggers", zap.Error(err))
		}
		cron.Start()
		if cfg.Cron.HistoricalOnBoot && executors.Orders != nil {
			req := ordersync.Request{TotalDays: cfg.Sync.TotalDays, BatchSizeDays: cfg.Sync.BatchSizeDays}
			if _, err := cron.TriggerNow(rootCtx, job.TypeOrdersHistorical, req); err != nil {
				log.Warn("Failed to queue boot historical sync", zap.Error(err))
			}
		}
	}

	// HTTP
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}
	engine.Use(
		logger.Recovery(log),
		logger.GinMiddleware(log),
	)
	engine.Use(middleware.Tracing(tp.IsEnabled(), cfg.Telemetry.ServiceName)...)
	engine.Use(
		middleware.HTTPMetrics(mp),
		middleware.BodyLimit(maxBodyBytes),
	)

	var schedules handler.ScheduleLister
	if cron != nil {
		schedules = cron
	}
	routes := router.Build(engine, router.Handlers{
		Sync: handler.NewSyncHandler(historical, queue, syncLogRepo, cfg.HTTP.SyncWallClock,
			handler.WithRunLocker(locker),
			handler.WithSyncLogger(log),
		),
		Jobs:   handler.NewJobHandler(queue, schedules),
		Fba:    handler.NewFbaHandler(reconciliation, snapshots),
		Profit: handler.NewProfitHandler(profitService, queue, exporter != nil),
		Health: handler.NewHealthHandler(db, cfg.App.Name, serviceVersion),
	})
	for _, rt := range routes.Routes() {
		log.Debug("Route registered", zap.String("method", rt.Method), zap.String("path", rt.Path))
	}

	// A synchronous historical run may hold the response for the whole
	// wall clock.
	writeTimeout := cfg.HTTP.WriteTimeout
	if floor := cfg.HTTP.SyncWallClock + 30*time.Second; writeTimeout > 0 && writeTimeout < floor {
		writeTimeout = floor
	}
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if cron != nil {
		if err := cron.Stop(ctx); err != nil {
			log.Warn("Cron triggers did not stop cleanly", zap.Error(err))
		}
	}
	if cfg.Scheduler.Enabled {
		if err := queue.Stop(ctx); err != nil {
			log.Warn("Job queue did not stop cleanly", zap.Error(err))
		}
	}
	if err := transport.Close(); err != nil {
		log.Warn("Error closing job transport", zap.Error(err))
	}
	if err := mp.Shutdown(ctx); err != nil {
		log.Warn("Error shutting down telemetry", zap.Error(err))
	}
	if err := tp.Shutdown(ctx); err != nil {
		log.Warn("Error shutting down tracing", zap.Error(err))
	}
	if err := lp.Shutdown(ctx); err != nil {
		log.Warn("Error shutting down log export", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func vendorConfig(v config.VendorConfig) *spapi.Config {
	if !v.Configured() {
		return nil
	}
	return &spapi.Config{
		Endpoint:          v.Endpoint,
		TokenURL:          v.TokenURL,
		ClientID:          v.ClientID,
		ClientSecret:      v.ClientSecret,
		RefreshToken:      v.RefreshToken,
		MarketplaceID:     v.MarketplaceID,
		TimeoutSeconds:    v.TimeoutSeconds,
		RequestsPerSecond: v.RequestsPerSecond,
		Burst:             v.Burst,
	}
}

func parseWarehouseID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

func newTransport(cfg *config.Config, log *zap.Logger) (scheduler.Transport, error) {
	if cfg.Scheduler.Transport == "amqp" {
		return messaging.NewAMQPTransport(cfg.AMQP, log)
	}
	return scheduler.NewChannelTransport(cfg.Scheduler.QueueSize), nil
}

// newCronTrigger registers a trigger for every configured expression whose
// job type has an executor.
func newCronTrigger(queue *scheduler.Queue, e *syncjobs.Executors, cfg config.CronConfig, log *zap.Logger) (*scheduler.CronTrigger, error) {
	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, err
	}
	cron := scheduler.NewCronTrigger(queue, loc, log)

	entries := []struct {
		enabled bool
		spec    string
		jobType job.Type
		payload any
	}{
		{e.Orders != nil, cfg.OrdersSync, job.TypeOrdersIncremental, syncjobs.IncrementalPayload{}},
		{e.Finances != nil, cfg.FinancesSync, job.TypeFinancialEvents, syncjobs.FinancesPayload{}},
		{e.Shipments != nil, cfg.ShipmentsSync, job.TypeFbaShipments, nil},
		{e.Shipments != nil, cfg.ShipmentsPurge, job.TypeFbaShipmentsPurge, syncjobs.PurgePayload{}},
		{e.Inventory != nil, cfg.InventorySync, job.TypeFbaInventory, nil},
		{e.Returns != nil, cfg.ReturnsSync, job.TypeReturns, syncjobs.ReturnsPayload{}},
		{e.Profit != nil, cfg.ProfitRebuild, job.TypeProfitRebuild, syncjobs.DaysPayload{}},
		{e.Profit != nil, cfg.ProfitExport, job.TypeProfitExport, syncjobs.DaysPayload{}},
	}
	for _, entry := range entries {
		if !entry.enabled {
			continue
		}
		if err := cron.Add(entry.spec, entry.jobType, entry.payload); err != nil {
			return nil, err
		}
	}
	return cron, nil
}
