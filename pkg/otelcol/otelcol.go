package otelcol

import (
	"context"
	"time"

	"kickback-engine/pkg/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol",
	fx.Provide(NewTracerProvider),
)

func defaultTraceProviderOption(cfg *config.Config) []sdktrace.TracerProviderOption {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		res = resource.Default()
	}
	return []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}
}

func ProvideTrace(exporter sdktrace.SpanExporter, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	opts = append(opts, sdktrace.WithBatcher(exporter))
	return sdktrace.NewTracerProvider(opts...)
}

// NewTracerProvider installs a batching OTLP/HTTP provider as the global
// tracer provider when OTEL.ADDR is set. Without it the global no-op
// provider is returned.
func NewTracerProvider(lc fx.Lifecycle, cfg *config.Config) (trace.TracerProvider, error) {
	if cfg.Otel.Addr == "" {
		zap.L().Info("[Otel] tracing disabled, OTEL.ADDR not set")
		return otel.GetTracerProvider(), nil
	}

	exporter, err := newHTTPExporter(cfg.Otel.Addr)
	if err != nil {
		return nil, err
	}

	tp := ProvideTrace(exporter, defaultTraceProviderOption(cfg)...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	zap.L().Info("[Otel] tracing enabled", zap.String("endpoint", cfg.Otel.Addr))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}

func newHTTPExporter(endpoint string) (*otlptrace.Exporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	)
	return otlptrace.New(ctx, client)
}
