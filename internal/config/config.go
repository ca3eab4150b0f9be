// Package config provides configuration management for the splits indexer.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Chain    ChainConfig
	IPFS     IPFSConfig
	Queue    QueueConfig
	API      APIConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds the optional ClickHouse audit sink configuration.
// The sink is disabled when Host is empty.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration for the job queue
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ChainConfig holds blockchain RPC and contract configuration
type ChainConfig struct {
	RPCURL          string
	DripsContract   string
	RepoDriver      string
	CallTimeout     time.Duration
	RequestsPerSec  int
	PollInterval    time.Duration
	ConfirmationLag uint64
}

// IPFSConfig holds content-addressed store configuration
type IPFSConfig struct {
	GatewayURL     string
	FetchTimeout   time.Duration
	RequestsPerSec int
	MaxDocumentKiB int
}

// QueueConfig holds job queue configuration
type QueueConfig struct {
	Workers      int
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	PollInterval time.Duration
}

// APIConfig holds the read-only projection API configuration
type APIConfig struct {
	Host string
	Port string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "splits_indexer"),
				User:           getEnv("POSTGRES_USER", "indexer"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "splits_indexer"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Chain: ChainConfig{
			RPCURL:          getEnv("CHAIN_RPC_URL", ""),
			DripsContract:   getEnv("DRIPS_CONTRACT_ADDRESS", ""),
			RepoDriver:      getEnv("REPO_DRIVER_ADDRESS", ""),
			CallTimeout:     getEnvAsDuration("CHAIN_CALL_TIMEOUT", 10*time.Second),
			RequestsPerSec:  getEnvAsInt("CHAIN_REQUESTS_PER_SEC", 20),
			PollInterval:    getEnvAsDuration("CHAIN_POLL_INTERVAL", 5*time.Second),
			ConfirmationLag: uint64(getEnvAsInt("CHAIN_CONFIRMATION_LAG", 1)),
		},
		IPFS: IPFSConfig{
			GatewayURL:     getEnv("IPFS_GATEWAY_URL", "https://ipfs.io/ipfs/"),
			FetchTimeout:   getEnvAsDuration("IPFS_FETCH_TIMEOUT", 30*time.Second),
			RequestsPerSec: getEnvAsInt("IPFS_REQUESTS_PER_SEC", 10),
			MaxDocumentKiB: getEnvAsInt("IPFS_MAX_DOCUMENT_KIB", 512),
		},
		Queue: QueueConfig{
			Workers:      getEnvAsInt("QUEUE_WORKERS", 8),
			MaxAttempts:  getEnvAsInt("QUEUE_MAX_ATTEMPTS", 10),
			InitialDelay: getEnvAsDuration("QUEUE_INITIAL_DELAY", 5*time.Second),
			MaxDelay:     getEnvAsDuration("QUEUE_MAX_DELAY", 10*time.Minute),
			PollInterval: getEnvAsDuration("QUEUE_POLL_INTERVAL", time.Second),
		},
		API: APIConfig{
			Host: getEnv("API_HOST", "0.0.0.0"),
			Port: getEnv("API_PORT", "8080"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for required values
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("CHAIN_RPC_URL is required")
	}
	if c.Chain.DripsContract == "" {
		return fmt.Errorf("DRIPS_CONTRACT_ADDRESS is required")
	}
	if c.Chain.RepoDriver == "" {
		return fmt.Errorf("REPO_DRIVER_ADDRESS is required")
	}
	if c.Database.Postgres.MaxConnections <= 0 {
		return fmt.Errorf("POSTGRES_MAX_CONNECTIONS must be positive")
	}
	if c.Queue.Workers <= 0 {
		return fmt.Errorf("QUEUE_WORKERS must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration retrieves an environment variable as a duration
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
