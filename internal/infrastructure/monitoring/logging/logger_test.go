package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewLoggerFromCore(core), logs
}

func TestFieldConstructors(t *testing.T) {
	assert.Equal(t, Field{Key: "k", Value: "v"}, String("k", "v"))
	assert.Equal(t, Field{Key: "n", Value: 42}, Int("n", 42))
	assert.Equal(t, Field{Key: "n", Value: int64(42)}, Int64("n", 42))
	assert.Equal(t, Field{Key: "f", Value: 1.5}, Float64("f", 1.5))
	assert.Equal(t, Field{Key: "b", Value: true}, Bool("b", true))
	assert.Equal(t, Field{Key: "d", Value: time.Second}, Duration("d", time.Second))
}

func TestErrField(t *testing.T) {
	assert.Equal(t, "boom", Err(errors.New("boom")).Value)
	assert.Equal(t, "<nil>", Err(nil).Value)
	assert.Equal(t, "error", Err(nil).Key)
}

func TestZapLoggerLevels(t *testing.T) {
	log, logs := newObservedLogger(zapcore.DebugLevel)

	log.Debug("d")
	log.Info("i", String("key", "val"))
	log.Warn("w")
	log.Error("e", Err(errors.New("boom")))

	require.Equal(t, 4, logs.Len())
	entries := logs.All()
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "i", entries[1].Message)
	assert.Equal(t, "val", entries[1].ContextMap()["key"])
	assert.Equal(t, "boom", entries[3].ContextMap()["error"])
}

func TestZapLoggerLevelFiltering(t *testing.T) {
	log, logs := newObservedLogger(zapcore.WarnLevel)

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "shown", logs.All()[0].Message)
}

func TestWithAttachesFields(t *testing.T) {
	log, logs := newObservedLogger(zapcore.InfoLevel)

	child := log.With(String("vin", "1HGCM82633A004352"))
	child.Info("valuation started")
	log.Info("no extra fields")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "1HGCM82633A004352", logs.All()[0].ContextMap()["vin"])
	assert.NotContains(t, logs.All()[1].ContextMap(), "vin")
}

func TestNamed(t *testing.T) {
	log, logs := newObservedLogger(zapcore.InfoLevel)
	log.Named("pipeline").Info("msg")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "pipeline", logs.All()[0].LoggerName)
}

func TestNewLoggerDefaults(t *testing.T) {
	log, err := NewLogger(LogConfig{})
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestNewLoggerTextFormat(t *testing.T) {
	log, err := NewLogger(LogConfig{Level: "debug", Format: "text"})
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	assert.NotPanics(t, func() {
		log.Debug("x")
		log.Info("x")
		log.Warn("x")
		log.Error("x")
		log.With(String("a", "b")).Named("c").Info("x")
	})
}

func TestDefaultLogger(t *testing.T) {
	orig := Default()
	t.Cleanup(func() { SetDefault(orig) })

	log, _ := newObservedLogger(zapcore.InfoLevel)
	SetDefault(log)
	assert.Equal(t, log, Default())

	// nil must not clobber the default
	SetDefault(nil)
	assert.Equal(t, log, Default())
}
