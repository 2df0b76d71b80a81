package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Network selectors recognized by the service.
const (
	NetworkMainnet = "mainnet"
	NetworkTestnet = "testnet"
)

// Default Esplora API endpoints per network.
const (
	mainnetEsploraURL = "https://blockstream.info/api"
	testnetEsploraURL = "https://blockstream.info/testnet/api"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Watched address configuration
	BTCAddress            string
	Network               string // "mainnet" or "testnet"
	RequiredConfirmations int

	// Esplora configuration
	EsploraURL     string // empty means use the per-network default
	RequestTimeout time.Duration

	// Polling configuration
	PollInterval time.Duration

	// Ledger storage configuration.
	// DatabaseURL selects the Postgres store when set; otherwise the
	// ledger is persisted to the JSON state file at LedgerPath.
	LedgerPath  string
	DatabaseURL string

	// NATS configuration (optional; empty disables deposit events and SSE)
	NATSURL string
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":3000")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Watched address configuration
	cfg.BTCAddress = os.Getenv("BTC_ADDRESS")
	if cfg.BTCAddress == "" {
		errs = append(errs, fmt.Errorf("BTC_ADDRESS is required"))
	}

	cfg.Network = getEnvOrDefault("NETWORK", NetworkTestnet)

	confirmations, err := parseInt("CONFIRMATIONS", 1)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RequiredConfirmations = confirmations
	}

	// Esplora configuration
	cfg.EsploraURL = os.Getenv("ESPLORA_URL")

	requestTimeout, err := parseDuration("REQUEST_TIMEOUT", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RequestTimeout = requestTimeout
	}

	// Polling configuration
	pollInterval, err := parseDuration("POLL_INTERVAL", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PollInterval = pollInterval
	}

	// Ledger storage configuration
	cfg.LedgerPath = getEnvOrDefault("LEDGER_PATH", "db.json")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	// NATS configuration
	cfg.NATSURL = os.Getenv("NATS_URL")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.BTCAddress == "" {
		errs = append(errs, fmt.Errorf("BTCAddress is required"))
	}

	if c.Network != NetworkMainnet && c.Network != NetworkTestnet {
		errs = append(errs, fmt.Errorf("Network must be %q or %q, got %q",
			NetworkMainnet, NetworkTestnet, c.Network))
	}

	// Decode the watched address against the selected network's chain
	// params so a mainnet address on testnet (or garbage) fails at startup
	// rather than silently matching nothing.
	if c.BTCAddress != "" && (c.Network == NetworkMainnet || c.Network == NetworkTestnet) {
		if _, err := btcutil.DecodeAddress(c.BTCAddress, c.ChainParams()); err != nil {
			errs = append(errs, fmt.Errorf("BTC_ADDRESS %q is not a valid %s address: %w",
				c.BTCAddress, c.Network, err))
		}
	}

	if c.RequiredConfirmations < 0 {
		errs = append(errs, fmt.Errorf("CONFIRMATIONS must be non-negative, got %d",
			c.RequiredConfirmations))
	}

	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL must be at least 1 second, got %v",
			c.PollInterval))
	}

	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be positive, got %v",
			c.RequestTimeout))
	}

	if c.DatabaseURL == "" && c.LedgerPath == "" {
		errs = append(errs, fmt.Errorf("LEDGER_PATH is required when DATABASE_URL is not set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// ChainParams returns the btcd chain parameters for the configured network.
func (c *Config) ChainParams() *chaincfg.Params {
	if c.Network == NetworkMainnet {
		return &chaincfg.MainNetParams
	}
	return &chaincfg.TestNet3Params
}

// EsploraBaseURL returns the configured Esplora endpoint, falling back to
// the Blockstream public instance for the selected network.
func (c *Config) EsploraBaseURL() string {
	if c.EsploraURL != "" {
		return c.EsploraURL
	}
	if c.Network == NetworkMainnet {
		return mainnetEsploraURL
	}
	return testnetEsploraURL
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
