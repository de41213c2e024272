// Background worker entry point.  Consumes valuation.requested events,
// computes reports through the application service, and publishes completion
// events.  A Redis lock keyed by valuation ID keeps concurrent workers from
// computing the same report twice.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appvaluation "github.com/vinsight/vinsight/internal/application/valuation"
	"github.com/vinsight/vinsight/internal/config"
	domain "github.com/vinsight/vinsight/internal/domain/valuation"
	"github.com/vinsight/vinsight/internal/infrastructure/database/postgres"
	"github.com/vinsight/vinsight/internal/infrastructure/database/postgres/repositories"
	"github.com/vinsight/vinsight/internal/infrastructure/database/redis"
	"github.com/vinsight/vinsight/internal/infrastructure/messaging/kafka"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/prometheus"
)

// Build-time variables injected via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultHealthAddr = ":8081"

	// processTimeout bounds a single valuation computation.
	processTimeout = 2 * time.Minute
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	healthAddr := flag.String("health-addr", defaultHealthAddr, "address for the health and metrics endpoint")
	concurrency := flag.Int("concurrency", 0, "number of consumer group members (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *concurrency > 0 {
		cfg.Worker.Concurrency = *concurrency
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("worker")

	logger.Info("starting VinSight worker",
		logging.String("version", Version),
		logging.Int("concurrency", cfg.Worker.Concurrency),
	)

	if err := run(cfg, logger, *healthAddr); err != nil {
		logger.Error("worker exited with error", logging.Err(err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(cfg *config.Config, logger logging.Logger, healthAddr string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "vinsight",
		Subsystem:            "worker",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	metrics := prometheus.NewAppMetrics(collector)

	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()

	db, err := postgres.NewConnection(initCtx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := redis.NewClient(initCtx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	cache := redis.NewCache(redisClient, logger,
		redis.WithDefaultTTL(cfg.Redis.DefaultTTL))
	locks := redis.NewLockFactory(redisClient, logger)

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

	pool := db.Pool()
	valuations := appvaluation.NewService(
		repositories.NewValuationRepository(pool, logger),
		repositories.NewListingRepository(pool, logger),
		repositories.NewAuditRepository(pool, logger),
		appvaluation.NewAggregatorFromConfig(cfg.Valuation),
		cache, producer, metrics, cfg.Valuation.ReportCacheTTL, logger)

	proc := &processor{
		valuations: valuations,
		locks:      locks,
		metrics:    metrics,
		logger:     logger,
	}

	// One consumer per concurrency slot; each joins the same consumer group
	// so partitions are balanced across them.
	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	consumers := make([]*kafka.Consumer, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		c, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:         cfg.Kafka.Brokers,
			GroupID:         cfg.Kafka.GroupID,
			Topics:          []string{kafka.TopicValuationRequested},
			AutoOffsetReset: cfg.Kafka.AutoOffsetReset,
			Retry: kafka.RetryConfig{
				MaxRetries:      cfg.Worker.MaxRetries,
				RetryBackoff:    cfg.Worker.RetryBackoff,
				DeadLetterTopic: kafka.TopicDeadLetter,
			},
		}, logger)
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		c.UseMetrics(metrics)
		c.Subscribe(kafka.TopicValuationRequested, proc.handleValuationRequested)
		consumers = append(consumers, c)
	}

	for _, c := range consumers {
		if err := c.Start(ctx); err != nil {
			return fmt.Errorf("consumer start: %w", err)
		}
	}

	healthSrv := newHealthServer(healthAddr, metrics, db, redisClient)
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", logging.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", logging.String("signal", sig.String()))

	for _, c := range consumers {
		if err := c.Close(); err != nil {
			logger.Error("consumer close error", logging.Err(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", logging.Err(err))
	}
	return nil
}

// processor holds the collaborators a message handler needs.
type processor struct {
	valuations appvaluation.Service
	locks      *redis.LockFactory
	metrics    *prometheus.AppMetrics
	logger     logging.Logger
}

// handleValuationRequested computes the report for one queued valuation.
// Returning an error triggers the consumer's retry and dead-letter path.
func (p *processor) handleValuationRequested(ctx context.Context, msg *kafka.Message) error {
	env, err := kafka.DecodeEnvelope(msg)
	if err != nil {
		return err
	}
	var ev domain.ValuationRequestedEvent
	if err := env.DecodePayload(&ev); err != nil {
		return err
	}

	log := p.logger.With(logging.String("valuation_id", string(ev.ValuationID)))

	// Serialize per valuation so a replayed or duplicated event does not
	// race an in-flight computation.
	mutex := p.locks.NewMutex("valuation:"+string(ev.ValuationID),
		redis.WithLockTTL(processTimeout))
	acquired, err := mutex.TryLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		log.Info("valuation already being processed, skipping")
		return nil
	}
	defer func() {
		if err := mutex.Unlock(context.Background()); err != nil {
			log.Warn("failed to release valuation lock", logging.Err(err))
		}
	}()

	procCtx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	start := time.Now()
	dto, err := p.valuations.Process(procCtx, ev.ValuationID, ev.RawListings)
	if err != nil {
		log.Error("valuation processing failed", logging.Err(err))
		return err
	}

	log.Info("valuation processed",
		logging.String("status", dto.Status),
		logging.Duration("elapsed", time.Since(start)))
	return nil
}

// newHealthServer exposes liveness, readiness, and metrics on a side port so
// orchestrators can probe the worker without touching Kafka.
func newHealthServer(addr string, metrics *prometheus.AppMetrics, db *postgres.Connection, rc *redis.Client) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"up"}`)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := db.HealthCheck(ctx); err != nil {
			http.Error(w, `{"status":"down","component":"postgres"}`, http.StatusServiceUnavailable)
			return
		}
		if err := rc.HealthCheck(ctx); err != nil {
			http.Error(w, `{"status":"down","component":"redis"}`, http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"status":"up"}`)
	})
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{Addr: addr, Handler: mux}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}
