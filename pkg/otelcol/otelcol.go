package otelcol

import (
	"context"
	"strings"

	"license-authority/pkg/config"
	"license-authority/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol",
	fx.Provide(
		NewResource,
		NewTracerProvider,
		NewMeterProvider,
	),
	// Install the global providers even when nothing else asks for them.
	fx.Invoke(func(trace.TracerProvider, metric.MeterProvider) {}),
)

func NewResource(cfg *config.Config) (*resource.Resource, error) {
	return resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.AppName),
		semconv.ServiceVersion(cfg.AppVersion),
		semconv.DeploymentEnvironment(cfg.AppEnv),
	))
}

func ProvideTrace(exporter sdktrace.SpanExporter, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	if len(opts) == 0 {
		opts = []sdktrace.TracerProviderOption{sdktrace.WithResource(resource.Default())}
	}

	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	return sdktrace.NewTracerProvider(opts...)
}

func ProvideMetric(reader sdkmetric.Reader, opts ...sdkmetric.Option) *sdkmetric.MeterProvider {
	if len(opts) == 0 {
		opts = []sdkmetric.Option{sdkmetric.WithResource(resource.Default())}
	}

	opts = append(opts, sdkmetric.WithReader(reader))

	return sdkmetric.NewMeterProvider(opts...)
}

// NewTracerProvider installs the global tracer provider. Spans are exported
// over OTLP when OTEL.ADDR is set, otherwise they are only sampled locally.
func NewTracerProvider(lc fx.Lifecycle, cfg *config.Config, res *resource.Resource) (trace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	if cfg.Otel.Addr != "" {
		var err error
		switch strings.ToLower(cfg.Otel.Protocol) {
		case "http":
			exporter, err = exporters.ProvideHttp(cfg)
		default:
			exporter, err = exporters.ProvideGrpc(cfg)
		}
		if err != nil {
			zap.L().Error("failed to create trace exporter", zap.Error(err))
			return nil, err
		}
		zap.L().Info("trace exporter configured", zap.String("addr", cfg.Otel.Addr), zap.String("protocol", cfg.Otel.Protocol))
	}

	tp := ProvideTrace(exporter, sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}

// NewMeterProvider installs the global meter provider backed by the
// Prometheus exporter, so otel instruments show up on /metrics.
func NewMeterProvider(lc fx.Lifecycle, res *resource.Resource) (metric.MeterProvider, error) {
	exporter, err := otelprom.New()
	if err != nil {
		zap.L().Error("failed to create prometheus exporter", zap.Error(err))
		return nil, err
	}

	mp := ProvideMetric(exporter, sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return mp.Shutdown(ctx)
		},
	})
	return mp, nil
}
