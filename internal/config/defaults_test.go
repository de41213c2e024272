package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_NilSafe(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestApplyDefaults_FillsZeroValues(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultServerMode, cfg.Server.Mode)
	assert.Equal(t, DefaultDBHost, cfg.Database.Host)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, "earliest", cfg.Kafka.AutoOffsetReset)
	assert.Equal(t, DefaultMinIOBucket, cfg.MinIO.Bucket)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
	assert.Equal(t, 30*time.Minute, cfg.Valuation.ReportCacheTTL)
	assert.InDelta(t, DefaultTrustWeight, cfg.Valuation.DefaultTrust, 0.001)
	assert.InDelta(t, 0.05, cfg.Valuation.ConditionExcellent, 0.001)
	assert.InDelta(t, -0.15, cfg.Valuation.ConditionPoor, 0.001)
}

func TestApplyDefaults_ExplicitValuesWin(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9000
	cfg.Database.Host = "db.internal"
	cfg.Valuation.SourceTrust = map[string]float64{"autotrader": 0.85}
	ApplyDefaults(cfg)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.InDelta(t, 0.85, cfg.Valuation.SourceTrust["autotrader"], 0.001)
	_, hasDefault := cfg.Valuation.SourceTrust["cargurus"]
	assert.False(t, hasDefault, "explicit trust table must not be merged with defaults")
}
