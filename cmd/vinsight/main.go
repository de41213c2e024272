// CLI client entry point.  Runs the valuation pipeline in-process against
// the configured infrastructure; the backend is wired lazily so help and
// version output never require a live database.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vinsight/vinsight/internal/application/reporting"
	appvaluation "github.com/vinsight/vinsight/internal/application/valuation"
	"github.com/vinsight/vinsight/internal/config"
	domain "github.com/vinsight/vinsight/internal/domain/valuation"
	"github.com/vinsight/vinsight/internal/infrastructure/database/postgres"
	"github.com/vinsight/vinsight/internal/infrastructure/database/postgres/repositories"
	"github.com/vinsight/vinsight/internal/infrastructure/database/redis"
	"github.com/vinsight/vinsight/internal/infrastructure/messaging/kafka"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/logging"
	"github.com/vinsight/vinsight/internal/infrastructure/monitoring/prometheus"
	"github.com/vinsight/vinsight/internal/infrastructure/storage/minio"
	"github.com/vinsight/vinsight/internal/interfaces/cli"
	"github.com/vinsight/vinsight/pkg/types/common"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	opts := &cli.RootOptions{}
	backend := &lazyBackend{opts: opts}
	defer backend.Close()

	root := cli.NewRootCommand(opts)
	cli.RegisterCommands(root, opts, cli.CommandDependencies{
		Valuations: &lazyValuations{b: backend},
		Reports:    &lazyReports{b: backend},
		Logger:     logging.NewNopLogger(),
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		backend.Close()
		os.Exit(1)
	}
}

// lazyBackend builds the service stack on first use and reuses it for the
// rest of the invocation.
type lazyBackend struct {
	opts *cli.RootOptions

	once sync.Once
	err  error

	db          *postgres.Connection
	redisClient *redis.Client
	producer    *kafka.Producer

	valuations appvaluation.Service
	reports    reporting.Service
}

func (b *lazyBackend) init(ctx context.Context) error {
	b.once.Do(func() { b.err = b.build(ctx) })
	return b.err
}

func (b *lazyBackend) build(ctx context.Context) error {
	cfg, err := loadConfig(b.opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	level := cfg.Log.Level
	if b.opts.LogLevel != "" {
		level = b.opts.LogLevel
	}
	if b.opts.Verbose {
		level = "debug"
	}
	logger, err := logging.NewLogger(logging.LogConfig{
		Level:            level,
		Format:           "text",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	db, err := postgres.NewConnection(initCtx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	b.db = db

	redisClient, err := redis.NewClient(initCtx, cfg.Redis, logger)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	b.redisClient = redisClient
	cache := redis.NewCache(redisClient, logger,
		redis.WithDefaultTTL(cfg.Redis.DefaultTTL))

	// The writer connects lazily, so a missing broker only surfaces when an
	// async request actually publishes.
	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:    cfg.Kafka.Brokers,
		Acks:       "all",
		MaxRetries: cfg.Kafka.ProducerRetries,
	}, logger)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	b.producer = producer

	metrics := prometheus.NewNopAppMetrics()
	pool := db.Pool()
	b.valuations = appvaluation.NewService(
		repositories.NewValuationRepository(pool, logger),
		repositories.NewListingRepository(pool, logger),
		repositories.NewAuditRepository(pool, logger),
		appvaluation.NewAggregatorFromConfig(cfg.Valuation),
		cache, producer, metrics, cfg.Valuation.ReportCacheTTL, logger)

	// Object storage is optional for the CLI; report store and url fail
	// with a clear error when it is unreachable.
	var store minio.ArtifactStore
	if objClient, err := minio.NewClient(initCtx, cfg.MinIO, logger); err == nil {
		store = minio.NewArtifactStore(objClient, logger)
	} else {
		logger.Warn("object storage unavailable, report store disabled", logging.Err(err))
	}

	reports, err := reporting.NewService(b.valuations, store, metrics, logger)
	if err != nil {
		return fmt.Errorf("reporting service: %w", err)
	}
	b.reports = reports
	return nil
}

func (b *lazyBackend) Close() {
	if b.producer != nil {
		b.producer.Close()
		b.producer = nil
	}
	if b.redisClient != nil {
		b.redisClient.Close()
		b.redisClient = nil
	}
	if b.db != nil {
		b.db.Close()
		b.db = nil
	}
}

// lazyValuations defers backend construction to the first service call.
type lazyValuations struct {
	b *lazyBackend
}

func (s *lazyValuations) Evaluate(ctx context.Context, input *appvaluation.EvaluateInput) (*appvaluation.ValuationDTO, error) {
	if err := s.b.init(ctx); err != nil {
		return nil, err
	}
	return s.b.valuations.Evaluate(ctx, input)
}

func (s *lazyValuations) Request(ctx context.Context, input *appvaluation.EvaluateInput) (*appvaluation.ValuationDTO, error) {
	if err := s.b.init(ctx); err != nil {
		return nil, err
	}
	return s.b.valuations.Request(ctx, input)
}

func (s *lazyValuations) Process(ctx context.Context, id common.ID, raws []domain.RawListing) (*appvaluation.ValuationDTO, error) {
	if err := s.b.init(ctx); err != nil {
		return nil, err
	}
	return s.b.valuations.Process(ctx, id, raws)
}

func (s *lazyValuations) GetByID(ctx context.Context, id string) (*appvaluation.ValuationDTO, error) {
	if err := s.b.init(ctx); err != nil {
		return nil, err
	}
	return s.b.valuations.GetByID(ctx, id)
}

func (s *lazyValuations) List(ctx context.Context, input *appvaluation.ListInput) (*common.PageResponse[*appvaluation.ValuationDTO], error) {
	if err := s.b.init(ctx); err != nil {
		return nil, err
	}
	return s.b.valuations.List(ctx, input)
}

func (s *lazyValuations) ListByVIN(ctx context.Context, vin string, page common.Pagination) (*common.PageResponse[*appvaluation.ValuationDTO], error) {
	if err := s.b.init(ctx); err != nil {
		return nil, err
	}
	return s.b.valuations.ListByVIN(ctx, vin, page)
}

func (s *lazyValuations) IngestListings(ctx context.Context, valuationID string, raws []domain.RawListing) (int, error) {
	if err := s.b.init(ctx); err != nil {
		return 0, err
	}
	return s.b.valuations.IngestListings(ctx, valuationID, raws)
}

// lazyReports defers backend construction to the first service call.
type lazyReports struct {
	b *lazyBackend
}

func (s *lazyReports) Render(ctx context.Context, valuationID string, format reporting.Format) ([]byte, string, error) {
	if err := s.b.init(ctx); err != nil {
		return nil, "", err
	}
	return s.b.reports.Render(ctx, valuationID, format)
}

func (s *lazyReports) RenderAndStore(ctx context.Context, valuationID string, format reporting.Format) (*reporting.StoredReport, error) {
	if err := s.b.init(ctx); err != nil {
		return nil, err
	}
	return s.b.reports.RenderAndStore(ctx, valuationID, format)
}

func (s *lazyReports) DownloadURL(ctx context.Context, valuationID string, format reporting.Format) (string, error) {
	if err := s.b.init(ctx); err != nil {
		return "", err
	}
	return s.b.reports.DownloadURL(ctx, valuationID, format)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}
