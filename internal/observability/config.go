package observability

import (
	"strings"

	"github.com/smallbiznis/pantry/internal/config"
)

const defaultServiceName = "pantry"

// Config is the resolved telemetry identity and exporter settings of one
// running service.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	t := cfg.Telemetry

	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = defaultServiceName
	}
	format := t.LogFormat
	if format != "console" {
		format = "json"
	}
	ratio := t.SamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 1
	}

	return Config{
		ServiceName:          name,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             strings.ToLower(strings.TrimSpace(t.LogLevel)),
		LogFormat:            format,
		OtelEnabled:          t.OtelEnabled && t.OtlpEndpoint != "",
		OtelExporterEndpoint: t.OtlpEndpoint,
		OtelExporterProtocol: t.OtlpProtocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug turns on verbose logging and stack traces.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
