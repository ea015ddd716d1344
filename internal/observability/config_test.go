package observability

import (
	"testing"

	"github.com/smallbiznis/pantry/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigFromServiceConfig(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:     "pantry-kitchen",
		Environment: "production",
		AppVersion:  "1.2.0",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "INFO",
			LogFormat:     "logfmt",
			OtlpEndpoint:  "collector:4317",
			OtlpProtocol:  "grpc",
			SamplingRatio: 0.5,
		},
	})

	assert.Equal(t, "pantry-kitchen", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "1.2.0", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 0.5, cfg.OtelSamplingRatio)
	assert.False(t, cfg.OtelEnabled)
	assert.False(t, cfg.Debug())
}

func TestLoadConfigDefaultsAndDebug(t *testing.T) {
	cfg := LoadConfig(config.Config{
		Environment: "local",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "debug",
			LogFormat:     "console",
			OtelEnabled:   true,
			SamplingRatio: 3,
		},
	})

	assert.Equal(t, "pantry", cfg.ServiceName)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, 1.0, cfg.OtelSamplingRatio)
	// no endpoint, no exporter
	assert.False(t, cfg.OtelEnabled)
	assert.True(t, cfg.Debug())
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "yes")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "HTTP")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")

	cfg := LoadConfig(config.Load())

	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.Equal(t, "collector:4318", cfg.OtelExporterEndpoint)
	assert.True(t, cfg.Debug())
}

func TestDerivedConfigsShareExporter(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:     "pantry-order",
		Environment: "development",
		Telemetry: config.TelemetryConfig{
			OtelEnabled:   true,
			OtlpEndpoint:  "collector:4317",
			OtlpProtocol:  "grpc",
			SamplingRatio: 0.25,
		},
	})

	log := cfg.loggerConfig()
	assert.Equal(t, "pantry-order", log.ServiceName)
	assert.True(t, log.Debug)
	assert.True(t, log.IncludeStackOnError)

	tr := cfg.tracingConfig()
	m := cfg.metricsConfig()
	assert.True(t, tr.Enabled)
	assert.Equal(t, 0.25, tr.SamplingRatio)
	assert.Equal(t, tr.Enabled, m.Enabled)
	assert.Equal(t, tr.ExporterEndpoint, m.ExporterEndpoint)
	assert.Equal(t, "grpc", m.ExporterProtocol)
}
