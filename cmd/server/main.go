package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	catalogapp "github.com/partsbridge/backend/internal/application/catalog"
	inventoryapp "github.com/partsbridge/backend/internal/application/inventory"
	"github.com/partsbridge/backend/internal/infrastructure/buffer"
	"github.com/partsbridge/backend/internal/infrastructure/cache"
	"github.com/partsbridge/backend/internal/infrastructure/config"
	"github.com/partsbridge/backend/internal/infrastructure/erp"
	"github.com/partsbridge/backend/internal/infrastructure/event"
	"github.com/partsbridge/backend/internal/infrastructure/logger"
	"github.com/partsbridge/backend/internal/infrastructure/persistence"
	"github.com/partsbridge/backend/internal/infrastructure/storage"
	"github.com/partsbridge/backend/internal/infrastructure/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

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
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	// OTEL logs bridge: when enabled, log entries go to both the configured
	// output and the collector
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize OTEL logger provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down OTEL logger provider", zap.Error(err))
		}
	}()
	if loggerProvider.IsEnabled() {
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: loggerProvider,
			Level:          zapcore.InfoLevel,
		})
		log = telemetry.NewBridgedLogger(log.Core(), otelCore,
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
	}

	log.Info("Starting PartsBridge integration core",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
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
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

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
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	pipelineMetrics, err := telemetry.NewPipelineMetrics(telemetry.PipelineMetricsConfig{
		Meter:  meterProvider.Meter("partsbridge/pipeline"),
		Logger: log,
	})
	if err != nil {
		log.Fatal("Failed to initialize pipeline metrics", zap.Error(err))
	}
	defer pipelineMetrics.Stop()

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:             cfg.Telemetry.ProfilingEnabled,
		ServerAddress:       cfg.Telemetry.ProfilingEndpoint,
		ApplicationName:     cfg.Telemetry.ServiceName,
		ProfileCPU:          true,
		ProfileAllocObjects: true,
		ProfileAllocSpace:   true,
		ProfileInuseObjects: true,
		ProfileInuseSpace:   true,
		ProfileGoroutines:   true,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() && tracerProvider.IsEnabled() {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to enable span profiles", zap.Error(err))
		}
	}

	// Database with the zap-backed gorm logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if tracerProvider.IsEnabled() {
		if err := db.EnableTracing(); err != nil {
			log.Warn("Failed to enable database tracing", zap.Error(err))
		}
	}
	log.Info("Database connected")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))

	// Repositories
	stockRepo := persistence.NewGormStockRepository(db.DB)
	warehouseRepo := persistence.NewGormWarehouseRepository(db.DB)
	offsetRepo := persistence.NewGormInventoryOffsetRepository(db.DB)
	mappingRepo := persistence.NewGormProductMappingRepository(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)
	scope := persistence.NewGormTransactionScope(db.DB)

	// Application services
	erpClient := erp.NewHTTPBulkStockClient(&cfg.ERP, log)
	erpClient.SetMetrics(pipelineMetrics)
	refreshService := inventoryapp.NewRefreshService(
		scope, offsetRepo, warehouseRepo, mappingRepo, erpClient,
		cfg.Inventory.StalenessTTL, log,
	)
	availabilityService := inventoryapp.NewAvailabilityService(stockRepo, warehouseRepo)
	mappingService := catalogapp.NewMappingService(mappingRepo, log)

	// Outbox dispatcher with optional dead-letter archive
	var archiver event.DeadLetterArchiver
	if cfg.Archive.Enabled {
		s3Archiver, err := storage.NewS3DeadLetterArchiver(&cfg.Archive, log)
		if err != nil {
			log.Fatal("Failed to initialize dead-letter archiver", zap.Error(err))
		}
		if err := s3Archiver.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to ensure dead-letter bucket", zap.Error(err))
		}
		archiver = s3Archiver
		log.Info("Dead-letter archive enabled", zap.String("bucket", cfg.Archive.Bucket))
	}

	publisher := event.NewRedisStreamPublisher(redisClient, cfg.Event.OutboundStreamPrefix)

	if cfg.Event.DispatcherEnabled {
		dispatcher := event.NewDispatcher(outboxRepo, publisher, archiver, event.DispatcherConfig{
			BatchSize:    cfg.Event.BatchSize,
			PollInterval: cfg.Event.PollInterval,
			ClaimLease:   cfg.Event.ClaimLease,
		}, log)
		dispatcher.SetMetrics(pipelineMetrics)
		if err := dispatcher.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox dispatcher", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := dispatcher.Stop(stopCtx); err != nil {
				log.Error("Error stopping dispatcher", zap.Error(err))
			}
		}()
		log.Info("Outbox dispatcher started",
			zap.Int("batch_size", cfg.Event.BatchSize),
			zap.Duration("poll_interval", cfg.Event.PollInterval),
		)
	}

	// Inbound pipeline: Redis stream -> listener -> bounded buffer -> worker
	inbound := buffer.NewEventBuffer(cfg.Buffer.Capacity, buffer.OverflowPolicy(cfg.Buffer.OverflowPolicy))
	if meterProvider.IsEnabled() {
		pipelineMetrics.StartPeriodicCollection(ctx, inbound, 0)
	}
	idempotencyStore := cache.NewRedisIdempotencyStoreWithClient(redisClient, "")

	hostname, _ := os.Hostname()
	listener := buffer.NewStreamListener(redisClient, inbound, idempotencyStore, buffer.ListenerConfig{
		Stream:        cfg.Buffer.Stream,
		ConsumerGroup: cfg.Buffer.ConsumerGroup,
		ConsumerName:  hostname,
		DedupTTL:      cfg.Buffer.DedupTTL,
	}, log)
	if err := listener.Start(ctx); err != nil {
		log.Fatal("Failed to start stream listener", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := listener.Stop(stopCtx); err != nil {
			log.Error("Error stopping stream listener", zap.Error(err))
		}
	}()
	log.Info("Inbound listener started",
		zap.String("stream", cfg.Buffer.Stream),
		zap.String("group", cfg.Buffer.ConsumerGroup),
		zap.Int("buffer_capacity", cfg.Buffer.Capacity),
		zap.String("overflow_policy", cfg.Buffer.OverflowPolicy),
	)

	worker := newInboundWorker(inbound, scope, refreshService, availabilityService, mappingService, log)
	worker.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := worker.Stop(stopCtx); err != nil {
			log.Error("Error stopping inbound worker", zap.Error(err))
		}
	}()

	log.Info("PartsBridge integration core running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")
}
