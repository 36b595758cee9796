package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/qrtrail/qrtrail/config"
	"github.com/qrtrail/qrtrail/internal/app/catalog"
	appmodel "github.com/qrtrail/qrtrail/internal/app/model"
	apprepository "github.com/qrtrail/qrtrail/internal/app/repository"
	appserver "github.com/qrtrail/qrtrail/internal/app/server"
	appservice "github.com/qrtrail/qrtrail/internal/app/service"
	"github.com/qrtrail/qrtrail/internal/infra/logger"
	infraNATS "github.com/qrtrail/qrtrail/internal/infra/nats"
	infraPostgres "github.com/qrtrail/qrtrail/internal/infra/postgres"
	infraPrometheus "github.com/qrtrail/qrtrail/internal/infra/prometheus"
	infraRedis "github.com/qrtrail/qrtrail/internal/infra/redis"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const statsRefreshInterval = 30 * time.Second

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
		zap.String("catalog_base_url", cfg.Catalog.BaseURL),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.Code{}, &appmodel.Scan{}); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	codeRepo := apprepository.NewCodeRepository(gormDB)
	scanRepo := apprepository.NewScanRepository(gormDB)

	// Scan recording: JetStream pipeline when NATS is configured, otherwise
	// direct database writes.
	var recorder appservice.ScanRecorder = appservice.NewDirectRecorder(scanRepo)
	if cfg.NATS.Enabled {
		natsConn, js, err := infraNATS.Connect(cfg.NATS)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer natsConn.Drain()
		log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

		consumer := appservice.NewScanConsumer(js, log, scanRepo)
		if err := consumer.Start(); err != nil {
			log.Fatal("Failed to start scan consumer", zap.Error(err))
		}
		recorder = appservice.NewScanPublisher(js)
	} else {
		log.Info("NATS disabled, recording scans directly to Postgres")
	}

	metrics := infraPrometheus.NewMetrics(prometheus.DefaultRegisterer)

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	statsWorker := appservice.NewStatsWorker(log, codeRepo, scanRepo, metrics, statsRefreshInterval)
	statsWorker.Start()
	defer statsWorker.Stop()

	filter := appservice.NewReferenceFilter(0, 0)
	seeded, err := filter.SeedFromRepository(ctx, codeRepo)
	if err != nil {
		log.Fatal("Failed to seed reference filter", zap.Error(err))
	}
	log.Info("Reference filter seeded", zap.Int("references", seeded))

	cacheTTL, err := time.ParseDuration(cfg.Catalog.CacheTTL)
	if err != nil {
		cacheTTL = 0 // NewCached falls back to its default
	}
	productCatalog := catalog.NewCached(
		catalog.NewHTTPClient(cfg.Catalog.BaseURL),
		redisClient,
		cacheTTL,
		log,
	)

	resolver := appservice.NewResolver(appservice.ResolverDeps{
		Logger:      log,
		Codes:       codeRepo,
		Catalog:     productCatalog,
		Recorder:    recorder,
		Filter:      filter,
		Metrics:     metrics,
		NotFoundURL: cfg.Catalog.NotFoundURL,
		FallbackURL: cfg.Catalog.FallbackURL,
	})

	codeService := appservice.NewCodeService(codeRepo, scanRepo, filter)

	server := appserver.New(appserver.Dependencies{
		Logger:      log,
		Redis:       redisClient,
		Resolver:    resolver,
		CodeService: codeService,
		Codes:       codeRepo,
		Scans:       scanRepo,
		NotFoundURL: cfg.Catalog.NotFoundURL,
	})

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := server.Listen(fmt.Sprintf(":%d", port)); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
