package config

import (
	"fmt"
	"os"
	"time"
)

const (
	ServiceName    = "allocation-service"
	ServiceVersion = "0.1.0"
)

const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

const (
	EventBackendLog   = "log"
	EventBackendRedis = "redis"
	EventBackendKafka = "kafka"
)

// Config holds environment-specific configuration
type Config struct {
	HTTPAddr string
	GRPCAddr string

	DBDriver string
	DBDSN    string

	RedisAddr    string
	EventBackend string
	KafkaBroker  string

	SMTPAddr   string
	NotifyFrom string
	NotifyTo   string

	OtelEndpoint       string
	LogLevel           string
	EventRetryInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults and
// rejecting combinations the server cannot start with.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:     getEnv("GRPC_ADDR", ":50051"),
		DBDriver:     getEnv("DB_DRIVER", DriverMemory),
		DBDSN:        os.Getenv("DB_DSN"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		EventBackend: getEnv("EVENT_BACKEND", EventBackendLog),
		KafkaBroker:  os.Getenv("KAFKA_BROKER"),
		SMTPAddr:     os.Getenv("SMTP_ADDR"),
		NotifyFrom:   getEnv("NOTIFY_FROM", "allocations@example.com"),
		NotifyTo:     getEnv("NOTIFY_TO", "stock@made.com"),
		OtelEndpoint: os.Getenv("OTEL_ENDPOINT"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
	}

	interval, err := time.ParseDuration(getEnv("EVENT_RETRY_INTERVAL", "100ms"))
	if err != nil {
		return nil, fmt.Errorf("EVENT_RETRY_INTERVAL: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("EVENT_RETRY_INTERVAL must be positive, got %s", interval)
	}
	cfg.EventRetryInterval = interval

	switch cfg.DBDriver {
	case DriverMemory:
	case DriverMySQL, DriverPostgres, DriverSQLite:
		if cfg.DBDSN == "" {
			return nil, fmt.Errorf("DB_DSN environment variable is required for driver %s", cfg.DBDriver)
		}
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}

	switch cfg.EventBackend {
	case EventBackendLog:
	case EventBackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR environment variable is required for the redis event backend")
		}
	case EventBackendKafka:
		if cfg.KafkaBroker == "" {
			return nil, fmt.Errorf("KAFKA_BROKER environment variable is required for the kafka event backend")
		}
	default:
		return nil, fmt.Errorf("unknown EVENT_BACKEND %q", cfg.EventBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
