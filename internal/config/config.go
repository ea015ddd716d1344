package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Services ServiceURLs
	Outbox   OutboxConfig
	Stock    StockConfig

	RedisAddr     string
	RedisPassword string

	KafkaBrokers     []string
	KafkaOutboxTopic string

	CORSAllowOrigins []string

	// Menus that cannot be ordered without a flavor preference.
	FlavorRequiredMenus []string
}

// ServiceURLs are the base URLs of the collaborating services.
type ServiceURLs struct {
	Menu      string
	Kitchen   string
	Order     string
	Inventory string
}

type OutboxConfig struct {
	RelayInterval time.Duration
	BatchSize     int
	MaxRetries    int
	Timeout       time.Duration
}

// TelemetryConfig feeds the logger, tracer and meter providers.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtlpEndpoint  string
	OtlpProtocol  string
	SamplingRatio float64
}

type StockConfig struct {
	SweepInterval time.Duration
	SweepGrace    time.Duration
	MaxAttempts   int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		// empty name and address are filled in by the app that runs
		AppName:     strings.TrimSpace(getenv("APP_SERVICE", "")),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", getenv("DEPLOYMENT_ENV", "development")),
		HTTPAddr:    strings.TrimSpace(getenv("HTTP_ADDR", "")),

		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtlpEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OtlpProtocol:  strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.25),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "postgres"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "pantry.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Services: ServiceURLs{
			Menu:      trimURL(getenv("MENU_SERVICE_URL", "http://menu_service:8001")),
			Kitchen:   trimURL(getenv("KITCHEN_SERVICE_URL", "http://kitchen_service:8003")),
			Order:     trimURL(getenv("ORDER_SERVICE_URL", "http://order_service:8002")),
			Inventory: trimURL(getenv("INVENTORY_SERVICE_URL", "http://inventory_service:8006")),
		},
		Outbox: OutboxConfig{
			RelayInterval: getenvDuration("OUTBOX_RELAY_INTERVAL", 5*time.Second),
			BatchSize:     getenvInt("OUTBOX_BATCH_SIZE", 50),
			MaxRetries:    getenvInt("OUTBOX_MAX_RETRIES", 3),
			Timeout:       getenvDuration("OUTBOX_DELIVERY_TIMEOUT", 5*time.Second),
		},
		Stock: StockConfig{
			SweepInterval: getenvDuration("STOCK_SWEEP_INTERVAL", 15*time.Second),
			SweepGrace:    getenvDuration("STOCK_SWEEP_GRACE", 10*time.Second),
			MaxAttempts:   getenvInt("STOCK_MAX_ATTEMPTS", 5),
		},

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		KafkaBrokers:     parseList(getenv("KAFKA_BROKERS", "")),
		KafkaOutboxTopic: getenv("KAFKA_OUTBOX_TOPIC", "pantry.outbox"),

		CORSAllowOrigins:    parseList(getenv("CORS_ALLOW_ORIGINS", "*")),
		FlavorRequiredMenus: parseList(getenv("FLAVOR_REQUIRED_MENUS", "Caffe Latte,Cappuccino,Milkshake,Squash")),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func trimURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go durations ("5s") or bare seconds ("5").
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
