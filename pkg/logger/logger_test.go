package logger

import (
	"context"
	"testing"

	"kickback-engine/pkg/config"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewInstallsGlobal(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	cfg := &config.Config{AppEnv: "production", AppName: "kickback-engine"}
	log := New(ConfigParams{Cfg: cfg})
	require.NotNil(t, log)
	require.Same(t, log, zap.L())
}

func TestNewHonoursLogLevel(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	log := New(ConfigParams{Cfg: &config.Config{AppEnv: "development", LogLevel: "warn"}})
	require.False(t, log.Core().Enabled(zap.InfoLevel))
	require.True(t, log.Core().Enabled(zap.WarnLevel))

	log = New(ConfigParams{Cfg: &config.Config{AppEnv: "development", LogLevel: "nonsense"}})
	require.True(t, log.Core().Enabled(zap.DebugLevel))
}

func TestFromContextAddsTraceFields(t *testing.T) {
	prev := zap.L()
	t.Cleanup(func() { zap.ReplaceGlobals(prev) })

	core, logs := observer.New(zap.InfoLevel)
	zap.ReplaceGlobals(zap.New(core))

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	FromContext(ctx).Info("traced")
	FromContext(context.Background()).Info("plain")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, sc.TraceID().String(), entries[0].ContextMap()["trace_id"])
	require.NotContains(t, entries[1].ContextMap(), "trace_id")
}
