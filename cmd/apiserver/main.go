// API server entry point for the VinSight valuation platform.  Wires the
// full infrastructure stack (Postgres, Redis, Kafka, MinIO, Prometheus) into
// the application services and serves the REST API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vinsight/vinsight/internal/application/reporting"
	appvaluation "github.com/vinsight/vinsight/internal/application/valuation"
	"github.com/vinsight/vinsight/internal/config"
	"github.com/vinsight/vinsight/internal/infrastructure/database/postgres"
	"github.com/vinsight/vinsight/internal/infrastructure/database/postgres/repositories"
	"github.com/vinsight/vinsight/internal/infrastructure/database/redis"
	"github.com/vinsight/vinsight/internal/infrastructure/messaging/kafka"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/prometheus"
	"github.com/vinsight/vinsight/internal/infrastructure/storage/minio"
	httpserver "github.com/vinsight/vinsight/internal/interfaces/http"
	"github.com/vinsight/vinsight/internal/interfaces/http/handlers"
	"github.com/vinsight/vinsight/internal/interfaces/http/middleware"
)

// Build-time variables injected via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("apiserver")

	logger.Info("starting VinSight API server",
		logging.String("version", Version),
		logging.String("commit", GitCommit),
		logging.Int("port", cfg.Server.Port),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", logging.Err(err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, logger logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics.
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "vinsight",
		Subsystem:            "apiserver",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	metrics := prometheus.NewAppMetrics(collector)

	// PostgreSQL.
	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()

	db, err := postgres.NewConnection(initCtx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.MigrationPath != "" {
		if err := db.RunMigrations(cfg.Database.MigrationPath); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	// Redis.
	redisClient, err := redis.NewClient(initCtx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	cache := redis.NewCache(redisClient, logger,
		redis.WithDefaultTTL(cfg.Redis.DefaultTTL))

	// Kafka producer, plus topic bootstrap when enabled.
	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    cfg.Kafka.Brokers,
		Acks:       "all",
		MaxRetries: cfg.Kafka.ProducerRetries,
		BatchSize:  cfg.Kafka.BatchSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()

	if cfg.Kafka.AutoCreateTopics {
		tm, err := kafka.NewTopicManager(cfg.Kafka.Brokers, logger)
		if err != nil {
			return fmt.Errorf("kafka topic manager: %w", err)
		}
		topics := kafka.DefaultTopics(cfg.Kafka.NumPartitions, cfg.Kafka.ReplicationFactor)
		if err := tm.EnsureTopics(initCtx, topics); err != nil {
			tm.Close()
			return fmt.Errorf("kafka topics: %w", err)
		}
		tm.Close()
	}

	// MinIO.
	objClient, err := minio.NewClient(initCtx, cfg.MinIO, logger)
	if err != nil {
		return fmt.Errorf("minio: %w", err)
	}
	artifacts := minio.NewArtifactStore(objClient, logger)

	// Repositories and application services.
	pool := db.Pool()
	valuationRepo := repositories.NewValuationRepository(pool, logger)
	listingRepo := repositories.NewListingRepository(pool, logger)
	auditRepo := repositories.NewAuditRepository(pool, logger)
	aggregator := appvaluation.NewAggregatorFromConfig(cfg.Valuation)

	valuations := appvaluation.NewService(
		valuationRepo, listingRepo, auditRepo, aggregator,
		cache, producer, metrics, cfg.Valuation.ReportCacheTTL, logger)

	reports, err := reporting.NewService(valuations, artifacts, metrics, logger)
	if err != nil {
		return fmt.Errorf("reporting service: %w", err)
	}

	// HTTP layer.
	health := handlers.NewHealthHandler(Version,
		handlers.CheckerFunc{ComponentName: "postgres", Fn: db.HealthCheck},
		handlers.CheckerFunc{ComponentName: "redis", Fn: redisClient.HealthCheck},
		handlers.CheckerFunc{ComponentName: "minio", Fn: objClient.HealthCheck},
	)

	rateLimiter := middleware.NewClientRateLimiter(
		cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst, 5*time.Minute)
	defer rateLimiter.Stop()

	router := httpserver.NewRouter(httpserver.RouterConfig{
		ValuationHandler: handlers.NewValuationHandler(valuations, logger),
		ReportHandler:    handlers.NewReportHandler(reports, logger),
		HealthHandler:    health,
		Server:           cfg.Server,
		Metrics:          metrics,
		Logger:           logger,
		RateLimiter:      rateLimiter,
	})
	srv := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", logging.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	if err := srv.Stop(context.Background()); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// loadConfig reads configuration from file, falling back to environment
// variables when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}
