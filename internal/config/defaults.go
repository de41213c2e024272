// Package config provides configuration loading, defaults, and validation for
// the VinSight valuation platform.
package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultServerMode = "debug"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "vinsight"
	DefaultDBMaxConns = 25

	DefaultRedisAddr = "localhost:6379"
	DefaultRedisDB   = 0

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "vinsight-workers"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "vinsight-reports"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultWorkerConcurrency = 8

	DefaultPriceSanityMin     = 1000
	DefaultPriceSanityMax     = 200000
	DefaultOutlierSigma       = 2.0
	DefaultMinListingsOutlier = 3
	DefaultFullSampleSize     = 8
	DefaultMileageRate        = 0.10
	DefaultExpectedMilesYear  = 12000
	DefaultDepreciationYear   = 0.15
	DefaultDepreciationFloor  = 0.70
	DefaultFallbackMaxConf    = 50
	DefaultRangeSpreadPct     = 0.10
	DefaultTrustWeight        = 0.70
)

// ─────────────────────────────────────────────────────────────────────────────
// ApplyDefaults fills zero-value fields in cfg with well-known defaults.
// It must be called after unmarshalling raw config data and before Validate()
// so that optional-but-defaulted fields are never seen as missing.
// ─────────────────────────────────────────────────────────────────────────────

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.RateLimitRPS == 0 {
		cfg.Server.RateLimitRPS = 50
	}
	if cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = 100
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = 10 * time.Minute
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "vinsight"
	}
	// DB is an int; 0 is a valid explicit value so we cannot distinguish "not
	// set" from "set to 0".  We leave it as-is (0 is also the default).

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}
	if cfg.MinIO.PresignExpiry == 0 {
		cfg.MinIO.PresignExpiry = 1 * time.Hour
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 3
	}
	if cfg.Worker.RetryBackoff == 0 {
		cfg.Worker.RetryBackoff = 2 * time.Second
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Valuation ─────────────────────────────────────────────────────────────
	if cfg.Valuation.PriceSanityMin == 0 {
		cfg.Valuation.PriceSanityMin = DefaultPriceSanityMin
	}
	if cfg.Valuation.PriceSanityMax == 0 {
		cfg.Valuation.PriceSanityMax = DefaultPriceSanityMax
	}
	if cfg.Valuation.OutlierSigma == 0 {
		cfg.Valuation.OutlierSigma = DefaultOutlierSigma
	}
	if cfg.Valuation.MinListingsOutlier == 0 {
		cfg.Valuation.MinListingsOutlier = DefaultMinListingsOutlier
	}
	if cfg.Valuation.FullSampleSize == 0 {
		cfg.Valuation.FullSampleSize = DefaultFullSampleSize
	}
	if cfg.Valuation.MileageRatePerMile == 0 {
		cfg.Valuation.MileageRatePerMile = DefaultMileageRate
	}
	if cfg.Valuation.ExpectedMilesYear == 0 {
		cfg.Valuation.ExpectedMilesYear = DefaultExpectedMilesYear
	}
	if cfg.Valuation.ConditionExcellent == 0 {
		cfg.Valuation.ConditionExcellent = 0.05
	}
	if cfg.Valuation.ConditionFair == 0 {
		cfg.Valuation.ConditionFair = -0.08
	}
	if cfg.Valuation.ConditionPoor == 0 {
		cfg.Valuation.ConditionPoor = -0.15
	}
	if cfg.Valuation.DepreciationPerYear == 0 {
		cfg.Valuation.DepreciationPerYear = DefaultDepreciationYear
	}
	if cfg.Valuation.DepreciationFloor == 0 {
		cfg.Valuation.DepreciationFloor = DefaultDepreciationFloor
	}
	if cfg.Valuation.FallbackMaxConf == 0 {
		cfg.Valuation.FallbackMaxConf = DefaultFallbackMaxConf
	}
	if cfg.Valuation.RangeSpreadPct == 0 {
		cfg.Valuation.RangeSpreadPct = DefaultRangeSpreadPct
	}
	if cfg.Valuation.ReportCacheTTL == 0 {
		cfg.Valuation.ReportCacheTTL = 30 * time.Minute
	}
	if cfg.Valuation.DefaultTrust == 0 {
		cfg.Valuation.DefaultTrust = DefaultTrustWeight
	}
	if cfg.Valuation.SourceTrust == nil {
		cfg.Valuation.SourceTrust = map[string]float64{
			"cargurus":   1.0,
			"carmax":     0.95,
			"craigslist": 0.70,
		}
	}
}
