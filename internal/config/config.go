// Package config loads middleware configuration from a .env file and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all middleware configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Chain    ChainConfig
	Queues   QueuesConfig
	Stream   StreamConfig
	Reaper   ReaperConfig
	Bank     BankConfig
	Logging  LoggingConfig
}

// ServerConfig holds ops HTTP server configuration.
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig groups the storage backends.
type DatabaseConfig struct {
	Postgres   PostgresConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
}

// PostgresConfig holds Postgres connection configuration.
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
	MigrationsPath string
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
	TTL            time.Duration
}

// ClickHouseConfig holds the movement-archive connection configuration.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
	Enabled  bool
	// MigrationsPath holds the archive schema files applied at startup.
	MigrationsPath string
}

// ChainConfig holds chain-facing configuration.
type ChainConfig struct {
	// NodeURL is the base URL of the signing/query sidecar the chain
	// client and block source talk to.
	NodeURL string
	Denom   string
	// MemberAddress is this member's on-chain account. Inbound transfers
	// to it that the middleware did not originate become fiat deposits.
	MemberAddress string
	// RegistrationAttribute is the on-chain attribute name that marks an
	// address as a registered customer.
	RegistrationAttribute string
	// TimeoutBlocks is added to the current height to produce the
	// timeout height attached to broadcasts.
	TimeoutBlocks int64
	// TimeoutRefresh bounds how stale the cached timeout height may get.
	TimeoutRefresh time.Duration
}

// QueuesConfig holds actor queue tuning shared by all request kinds.
type QueuesConfig struct {
	Workers      int
	PollingDelay time.Duration
	BatchSize    int
}

// StreamConfig holds event stream pipeline configuration.
type StreamConfig struct {
	// EpochHeight initializes the bookmark when no row exists yet.
	EpochHeight     int64
	BackfillWorkers int
	ChunkSize       int64
	// FetchRPS throttles historical block fetches against the node.
	FetchRPS          int
	StalenessInterval time.Duration
}

// ReaperConfig holds expired-event reaper configuration.
type ReaperConfig struct {
	Interval time.Duration
	// Timeout is how long a tx status record may stay PENDING before
	// the reaper resolves it by querying the chain directly.
	Timeout time.Duration
}

// BankConfig holds bank middleware client configuration.
type BankConfig struct {
	URL string
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string
}

// Load reads configuration from a .env file (optional) and the
// environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "digital_currency"),
				User:           getEnv("POSTGRES_USER", "middleware"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
				MigrationsPath: getEnv("POSTGRES_MIGRATIONS_PATH", "migrations"),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
				TTL:            getEnvAsDuration("REDIS_TTL", 5*time.Minute),
			},
			ClickHouse: ClickHouseConfig{
				Host:           getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:           getEnv("CLICKHOUSE_PORT", "9000"),
				Database:       getEnv("CLICKHOUSE_DB", "digital_currency"),
				User:           getEnv("CLICKHOUSE_USER", "default"),
				Password:       getEnv("CLICKHOUSE_PASSWORD", ""),
				Enabled:        getEnvAsBool("CLICKHOUSE_ENABLED", false),
				MigrationsPath: getEnv("CLICKHOUSE_MIGRATIONS_PATH", "migrations/clickhouse"),
			},
		},
		Chain: ChainConfig{
			NodeURL:               getEnv("CHAIN_NODE_URL", "http://localhost:9090"),
			Denom:                 getEnv("CHAIN_DENOM", "centiusdx"),
			MemberAddress:         getEnv("CHAIN_MEMBER_ADDRESS", ""),
			RegistrationAttribute: getEnv("CHAIN_REGISTRATION_ATTRIBUTE", "dcc.kyc"),
			TimeoutBlocks:         int64(getEnvAsInt("CHAIN_TIMEOUT_BLOCKS", 60)),
			TimeoutRefresh:        getEnvAsDuration("CHAIN_TIMEOUT_REFRESH", 60*time.Second),
		},
		Queues: QueuesConfig{
			Workers:      getEnvAsInt("QUEUE_WORKERS", 5),
			PollingDelay: getEnvAsDuration("QUEUE_POLLING_DELAY", 5*time.Second),
			BatchSize:    getEnvAsInt("QUEUE_BATCH_SIZE", 25),
		},
		Stream: StreamConfig{
			EpochHeight:       int64(getEnvAsInt("STREAM_EPOCH_HEIGHT", 1)),
			BackfillWorkers:   getEnvAsInt("STREAM_BACKFILL_WORKERS", 4),
			ChunkSize:         int64(getEnvAsInt("STREAM_CHUNK_SIZE", 20)),
			FetchRPS:          getEnvAsInt("STREAM_FETCH_RPS", 10),
			StalenessInterval: getEnvAsDuration("STREAM_STALENESS_INTERVAL", 30*time.Second),
		},
		Reaper: ReaperConfig{
			Interval: getEnvAsDuration("REAPER_INTERVAL", 30*time.Second),
			Timeout:  getEnvAsDuration("REAPER_TIMEOUT", 30*time.Second),
		},
		Bank: BankConfig{
			URL: getEnv("BANK_MIDDLEWARE_URL", "http://localhost:9000"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if cfg.Queues.Workers <= 0 {
		return nil, fmt.Errorf("QUEUE_WORKERS must be positive, got %d", cfg.Queues.Workers)
	}
	if cfg.Stream.ChunkSize <= 0 {
		return nil, fmt.Errorf("STREAM_CHUNK_SIZE must be positive, got %d", cfg.Stream.ChunkSize)
	}
	if cfg.Stream.EpochHeight < 1 {
		return nil, fmt.Errorf("STREAM_EPOCH_HEIGHT must be at least 1, got %d", cfg.Stream.EpochHeight)
	}

	return cfg, nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
