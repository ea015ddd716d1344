package observability

import (
	"github.com/smallbiznis/pantry/internal/observability/logger"
	"github.com/smallbiznis/pantry/internal/observability/metrics"
	"github.com/smallbiznis/pantry/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.loggerConfig,
		logger.New,
		Config.tracingConfig,
		tracing.NewProvider,
		Config.metricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// the tracer provider installs itself globally; nothing else asks for it
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
	fx.Invoke(func(cfg metrics.Config) { metrics.JobsWithConfig(cfg) }),
)

func (c Config) loggerConfig() logger.Config {
	debug := c.Debug()
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               debug,
		IncludeCaller:       true,
		IncludeStackOnError: debug,
	}
}

func (c Config) tracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

// metricsConfig shares the tracing exporter settings.
func (c Config) metricsConfig() metrics.Config {
	t := c.tracingConfig()
	return metrics.Config{
		Enabled:          t.Enabled,
		ExporterEndpoint: t.ExporterEndpoint,
		ExporterProtocol: t.ExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}
