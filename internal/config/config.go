// Package config loads the deployment tool configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Configuration errors
var (
	ErrMissingRPC        = errors.New("network RPC endpoint is not configured (set SEPOLIA_RPC_URL)")
	ErrMissingPrivateKey = errors.New("signing key is not configured (set PRIVATE_KEY or use --prompt-key)")
	ErrInvalidChainID    = errors.New("chain ID must be positive")
	ErrInvalidDepth      = errors.New("block confirmations must be at least 1")
)

// Config holds all configuration for the deployment tool
type Config struct {
	Network       NetworkConfig
	Signer        SignerConfig
	Confirmations ConfirmationConfig
	Verification  VerificationConfig
	Artifacts     ArtifactsConfig
	Storage       StorageConfig
	Logging       LoggingConfig
	Metrics       MetricsConfig
	Server        ServerConfig
}

// NetworkConfig holds the EVM network connection settings
type NetworkConfig struct {
	Name    string
	RPCURL  string
	ChainID int64
}

// SignerConfig holds the deployer account settings
type SignerConfig struct {
	PrivateKey string
}

// ConfirmationConfig controls how long to wait for block confirmations
type ConfirmationConfig struct {
	Blocks       uint64
	PollInterval time.Duration
	Timeout      time.Duration // 0 means wait forever
}

// VerificationConfig holds the explorer verification settings
type VerificationConfig struct {
	APIKey       string
	APIURL       string
	BrowserURL   string
	RateLimit    float64 // requests per second
	PollInterval time.Duration
	MaxAttempts  int
}

// Enabled reports whether a verification credential is configured.
func (v VerificationConfig) Enabled() bool {
	return v.APIKey != ""
}

// ArtifactsConfig points at the compiled contract project
type ArtifactsConfig struct {
	Dir      string
	Contract string
}

// StorageConfig holds deployment history storage configuration
type StorageConfig struct {
	Type     string // "sqlite", "postgres" or "none"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled  bool
	Textfile string // written after a deploy run when set
}

// ServerConfig holds the history API listener settings
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
	APIKey       string
	RateLimit    RateLimitConfig
}

// RateLimitConfig limits history API requests per client
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first; variables already set in the process win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	depth, err := parseEnvInt("BLOCK_CONFIRMATIONS", 6)
	if err != nil {
		return nil, err
	}
	if depth < 1 {
		return nil, fmt.Errorf("%w: BLOCK_CONFIRMATIONS=%d", ErrInvalidDepth, depth)
	}
	pollMS, err := parseEnvInt("CONFIRMATION_POLL_INTERVAL_MS", 1000)
	if err != nil {
		return nil, err
	}
	timeoutSeconds, err := parseEnvInt("CONFIRMATION_TIMEOUT_SECONDS", 600)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Network: NetworkConfig{
			Name:    getEnv("NETWORK", "sepolia"),
			RPCURL:  getEnv("SEPOLIA_RPC_URL", getEnv("RPC_URL", "")),
			ChainID: getEnvInt64("CHAIN_ID", 11155111),
		},
		Signer: SignerConfig{
			PrivateKey: getEnv("PRIVATE_KEY", ""),
		},
		Confirmations: ConfirmationConfig{
			Blocks:       uint64(depth),
			PollInterval: time.Duration(pollMS) * time.Millisecond,
			Timeout:      time.Duration(timeoutSeconds) * time.Second,
		},
		Verification: VerificationConfig{
			APIKey:       getEnv("ETHERSCAN_API_KEY", ""),
			APIURL:       getEnv("ETHERSCAN_API_URL", "https://api.etherscan.io/v2/api"),
			BrowserURL:   getEnv("ETHERSCAN_BROWSER_URL", "https://sepolia.etherscan.io"),
			RateLimit:    getEnvFloat("ETHERSCAN_RATE_LIMIT", 5),
			PollInterval: time.Duration(getEnvInt("ETHERSCAN_POLL_INTERVAL_MS", 3000)) * time.Millisecond,
			MaxAttempts:  getEnvInt("ETHERSCAN_MAX_ATTEMPTS", 20),
		},
		Artifacts: ArtifactsConfig{
			Dir:      getEnv("ARTIFACTS_DIR", "."),
			Contract: getEnv("CONTRACT_NAME", "CrowdFunding"),
		},
		Storage: StorageConfig{
			Type: getEnv("STORAGE_TYPE", "sqlite"),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/deployments.db"),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Metrics: MetricsConfig{
			Enabled:  getEnvBool("METRICS_ENABLED", false),
			Textfile: getEnv("METRICS_TEXTFILE", ""),
		},
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 8080),
			Host:         getEnv("HOST", "0.0.0.0"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			APIKey:       getEnv("SERVER_API_KEY", ""),
			RateLimit: RateLimitConfig{
				Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
				RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 120),
				BurstSize:      getEnvInt("RATE_LIMIT_BURST", 20),
			},
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && cfg.Storage.Type == "sqlite" {
		cfg.Storage.Type = "postgres"
	}

	// A textfile target implies metrics collection
	if cfg.Metrics.Textfile != "" {
		cfg.Metrics.Enabled = true
	}

	return cfg, nil
}

// Validate checks the settings every network command depends on.
// The signing key is checked separately by ValidateSigner because
// read-only commands (wait, verify) do not need it.
func (c *Config) Validate() error {
	if c.Network.RPCURL == "" {
		return ErrMissingRPC
	}
	if c.Network.ChainID <= 0 {
		return ErrInvalidChainID
	}
	if c.Confirmations.Blocks < 1 {
		return ErrInvalidDepth
	}
	if c.Confirmations.PollInterval <= 0 {
		return fmt.Errorf("confirmation poll interval must be positive, got %s", c.Confirmations.PollInterval)
	}
	if c.Confirmations.Timeout < 0 {
		return fmt.Errorf("confirmation timeout must not be negative, got %s", c.Confirmations.Timeout)
	}
	switch c.Storage.Type {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}
	return nil
}

// ValidateSigner checks that a signing key is available.
func (c *Config) ValidateSigner() error {
	if c.Signer.PrivateKey == "" {
		return ErrMissingPrivateKey
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// parseEnvInt is getEnvInt for settings where a typo must not silently
// become the default.
func parseEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return i, nil
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}
