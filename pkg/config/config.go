package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tair/heat-service/pkg/database"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds the heat service configuration
type Config struct {
	ServiceName string
	Version     string
	Environment string
	LogLevel    string

	HTTPPort string
	GRPCPort string

	StoreDriver   string
	Database      database.Config
	TxMaxAttempts int

	OperationTimeout    time.Duration
	TrendingPageSize    int
	TrendingMaxPageSize int

	JWTSecret string
	JWTIssuer string

	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	TrendingCacheTTL time.Duration

	RateLimitRequests int
	RateLimitWindow   time.Duration

	KafkaBrokers       []string
	ActivityTopic      string
	CatalogTopic       string
	CatalogGroupID     string
	JaegerEndpoint     string
	BreakerMaxFailures int
	BreakerCooldown    time.Duration
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Load reads the configuration from environment variables
func Load() *Config {
	return &Config{
		ServiceName: getEnv("OTEL_SERVICE_NAME", "heat-service"),
		Version:     getEnv("SERVICE_VERSION", "1.0.0"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		HTTPPort: getEnv("HTTP_PORT", "8084"),
		GRPCPort: getEnv("GRPC_PORT", "9094"),

		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		Database: database.Config{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "heatdb"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		TxMaxAttempts: getEnvInt("TX_MAX_ATTEMPTS", 5),

		OperationTimeout:    getEnvDuration("OPERATION_TIMEOUT", 5*time.Second),
		TrendingPageSize:    getEnvInt("TRENDING_PAGE_SIZE", 12),
		TrendingMaxPageSize: getEnvInt("TRENDING_MAX_PAGE_SIZE", 100),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		TrendingCacheTTL: getEnvDuration("TRENDING_CACHE_TTL", 15*time.Second),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		KafkaBrokers:       getEnvList("KAFKA_BROKERS"),
		ActivityTopic:      getEnv("KAFKA_ACTIVITY_TOPIC", "favorite-activity"),
		CatalogTopic:       getEnv("KAFKA_CATALOG_TOPIC", "catalog-items"),
		CatalogGroupID:     getEnv("KAFKA_CATALOG_GROUP", "heat-service-catalog"),
		JaegerEndpoint:     getEnv("JAEGER_ENDPOINT", ""),
		BreakerMaxFailures: getEnvInt("BREAKER_MAX_FAILURES", 5),
		BreakerCooldown:    getEnvDuration("BREAKER_COOLDOWN", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
