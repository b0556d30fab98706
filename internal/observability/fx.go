package observability

import (
	"github.com/smallbiznis/milkbill/internal/observability/logger"
	"github.com/smallbiznis/milkbill/internal/observability/metrics"
	"github.com/smallbiznis/milkbill/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(LoadConfig),
	logging,
	traces,
	meters,
)

var logging = fx.Provide(
	func(cfg Config) logger.Config {
		return logger.Config{
			ServiceName:         cfg.ServiceName,
			Environment:         cfg.Environment,
			Version:             cfg.Version,
			Level:               cfg.LogLevel,
			Format:              cfg.LogFormat,
			IncludeStackOnError: cfg.Debug(),
		}
	},
	logger.New,
)

// The tracer provider has no direct consumer; spans go through otel.Tracer.
var traces = fx.Options(
	fx.Provide(
		func(cfg Config) tracing.Config {
			return tracing.Config{
				Enabled:          cfg.OtelEnabled,
				ServiceName:      cfg.ServiceName,
				ServiceVersion:   cfg.Version,
				Environment:      cfg.Environment,
				ExporterEndpoint: cfg.OtelExporterEndpoint,
				ExporterProtocol: cfg.OtelExporterProtocol,
				SamplingRatio:    cfg.OtelSamplingRatio,
			}
		},
		tracing.NewProvider,
	),
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

var meters = fx.Provide(
	func(cfg Config) metrics.Config {
		return metrics.Config{
			Enabled:          cfg.OtelEnabled,
			ExporterEndpoint: cfg.OtelExporterEndpoint,
			ExporterProtocol: cfg.OtelExporterProtocol,
			ServiceName:      cfg.ServiceName,
			Environment:      cfg.Environment,
		}
	},
	metrics.NewProvider,
	metrics.New,
	metrics.NewHTTPMetrics,
	metrics.SchedulerWithConfig,
)
