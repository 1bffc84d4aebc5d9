package telemetry

import (
	"context"
	"testing"

	"github.com/erp/sellersync/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerProvider_Disabled(t *testing.T) {
	lp, err := NewLoggerProvider(context.Background(), config.TelemetryConfig{Enabled: true}, zap.NewNop())
	require.NoError(t, err)

	base := zap.NewNop()
	assert.Same(t, base, lp.Bridge(base))
	assert.NoError(t, lp.Shutdown(context.Background()))
}

func TestLoggerProvider_BridgeKeepsBaseOutput(t *testing.T) {
	lp := &LoggerProvider{provider: sdklog.NewLoggerProvider(), logger: zap.NewNop(), serviceName: "sellersync"}
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	core, logs := observer.New(zapcore.InfoLevel)
	bridged := lp.Bridge(zap.New(core))
	bridged.Debug("dropped")
	bridged.Info("batch flushed", zap.Int("batch", 2))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "batch flushed", logs.All()[0].Message)
	assert.True(t, bridged.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, bridged.Core().Enabled(zapcore.DebugLevel))
}

func TestLevelFilterCore(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	filtered := &levelFilterCore{Core: core, minLevel: zapcore.WarnLevel}

	l := zap.New(filtered).With(zap.String("run_id", "r-1"))
	l.Info("skipped")
	l.Warn("kept")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "kept", entry.Message)
	assert.Equal(t, "r-1", entry.ContextMap()["run_id"])
	assert.False(t, filtered.Enabled(zapcore.InfoLevel))
}
