package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the engine
type Config struct {
	Environment string
	LogLevel    string

	MarketDataDB MarketDataDBConfig
	RulesDB      RulesDBConfig
	Redis        RedisConfig
	Executor     ExecutorConfig
	Scanner      ScannerConfig
}

// MarketDataDBConfig holds the read-only ClickHouse market data store
// configuration
type MarketDataDBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
}

// RulesDBConfig holds the Postgres rule persistence configuration
type RulesDBConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the rule cache configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// ExecutorConfig holds query execution tuning
type ExecutorConfig struct {
	MaxConcurrent    int
	AcquireTimeout   time.Duration
	QueryTimeout     time.Duration
	MaxRetries       int
	RetryDelay       time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// ScannerConfig holds scan orchestration tuning. DefaultSymbols
// scopes scans whose execution context names no symbols; empty means
// scan the whole universe.
type ScannerConfig struct {
	WorkerCount        int
	RuleReloadInterval time.Duration
	DefaultTimeout     time.Duration
	DefaultSymbols     []string
}

// Load loads configuration from environment variables, reading a .env
// file first if one exists
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		MarketDataDB: MarketDataDBConfig{
			Host:            getEnv("MARKET_DB_HOST", "localhost"),
			Port:            getEnvAsInt("MARKET_DB_PORT", 9000),
			User:            getEnv("MARKET_DB_USER", "default"),
			Password:        getEnv("MARKET_DB_PASSWORD", ""),
			Database:        getEnv("MARKET_DB_NAME", "market"),
			MaxConnections:  getEnvAsInt("MARKET_DB_MAX_CONNECTIONS", 10),
			MaxIdleConns:    getEnvAsInt("MARKET_DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("MARKET_DB_CONN_MAX_LIFETIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("MARKET_DB_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:     getEnvAsDuration("MARKET_DB_READ_TIMEOUT", 10*time.Second),
		},
		RulesDB: RulesDBConfig{
			Host:            getEnv("RULES_DB_HOST", "localhost"),
			Port:            getEnvAsInt("RULES_DB_PORT", 5432),
			User:            getEnv("RULES_DB_USER", "postgres"),
			Password:        getEnv("RULES_DB_PASSWORD", "postgres"),
			Database:        getEnv("RULES_DB_NAME", "signal_engine"),
			SSLMode:         getEnv("RULES_DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("RULES_DB_MAX_CONNECTIONS", 10),
			MaxIdleConns:    getEnvAsInt("RULES_DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("RULES_DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Executor: ExecutorConfig{
			MaxConcurrent:    getEnvAsInt("EXECUTOR_MAX_CONCURRENT", 10),
			AcquireTimeout:   getEnvAsDuration("EXECUTOR_ACQUIRE_TIMEOUT", 2*time.Second),
			QueryTimeout:     getEnvAsDuration("EXECUTOR_QUERY_TIMEOUT", 5*time.Second),
			MaxRetries:       getEnvAsInt("EXECUTOR_MAX_RETRIES", 3),
			RetryDelay:       getEnvAsDuration("EXECUTOR_RETRY_DELAY", 100*time.Millisecond),
			BreakerThreshold: getEnvAsInt("EXECUTOR_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  getEnvAsDuration("EXECUTOR_BREAKER_COOLDOWN", 30*time.Second),
		},
		Scanner: ScannerConfig{
			WorkerCount:        getEnvAsInt("SCANNER_WORKER_COUNT", 4),
			RuleReloadInterval: getEnvAsDuration("SCANNER_RULE_RELOAD_INTERVAL", 30*time.Second),
			DefaultTimeout:     getEnvAsDuration("SCANNER_DEFAULT_TIMEOUT", 5*time.Second),
			DefaultSymbols:     getEnvAsStringSlice("SCANNER_SYMBOLS", nil),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MarketDataDB.Host == "" {
		return fmt.Errorf("MARKET_DB_HOST is required")
	}
	if c.MarketDataDB.MaxConnections <= 0 {
		return fmt.Errorf("MARKET_DB_MAX_CONNECTIONS must be positive")
	}
	if c.RulesDB.Host == "" {
		return fmt.Errorf("RULES_DB_HOST is required")
	}
	if c.Executor.MaxConcurrent <= 0 {
		return fmt.Errorf("EXECUTOR_MAX_CONCURRENT must be positive")
	}
	if c.Scanner.WorkerCount <= 0 {
		return fmt.Errorf("SCANNER_WORKER_COUNT must be positive")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
