package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Solana configuration
	SolanaRPCURL string

	// Polling configuration
	PollInterval      time.Duration
	PollPageLimit     int
	MaxWatchedAddrs   int
	LedgerDetailRate  float64 // detail lookups per second against the RPC endpoint
	LedgerDetailBurst int

	// WebSocket heartbeat configuration
	HeartbeatInterval time.Duration
	HeartbeatGrace    time.Duration

	// Delivery classification thresholds. These are heuristics on the
	// instruction count of an activity record, not ground truth; keep them
	// tunable per deployment.
	BundleThreshold   int
	PriorityThreshold int
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	// Polling configuration
	pollInterval, err := parseDuration("POLL_INTERVAL", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.PollInterval = pollInterval
	}

	cfg.PollPageLimit, err = parseInt("POLL_PAGE_LIMIT", 10)
	if err != nil {
		errs = append(errs, err)
	}

	cfg.MaxWatchedAddrs, err = parseInt("MAX_WATCHED_ADDRESSES", 5)
	if err != nil {
		errs = append(errs, err)
	}

	cfg.LedgerDetailRate, err = parseFloat("LEDGER_DETAIL_RATE", 2.0)
	if err != nil {
		errs = append(errs, err)
	}

	cfg.LedgerDetailBurst, err = parseInt("LEDGER_DETAIL_BURST", 1)
	if err != nil {
		errs = append(errs, err)
	}

	// Heartbeat configuration
	heartbeat, err := parseDuration("HEARTBEAT_INTERVAL", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HeartbeatInterval = heartbeat
	}

	grace, err := parseDuration("HEARTBEAT_GRACE", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HeartbeatGrace = grace
	}

	// Classification thresholds
	cfg.BundleThreshold, err = parseInt("BUNDLE_THRESHOLD", 5)
	if err != nil {
		errs = append(errs, err)
	}

	cfg.PriorityThreshold, err = parseInt("PRIORITY_THRESHOLD", 3)
	if err != nil {
		errs = append(errs, err)
	}

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

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("PollInterval must be at least 1 second"))
	}

	if c.PollPageLimit < 1 {
		errs = append(errs, fmt.Errorf("PollPageLimit must be at least 1"))
	}

	if c.MaxWatchedAddrs < 1 {
		errs = append(errs, fmt.Errorf("MaxWatchedAddrs must be at least 1"))
	}

	if c.LedgerDetailRate <= 0 {
		errs = append(errs, fmt.Errorf("LedgerDetailRate must be positive"))
	}

	if c.HeartbeatInterval < time.Second {
		errs = append(errs, fmt.Errorf("HeartbeatInterval must be at least 1 second"))
	}

	if c.HeartbeatGrace <= 0 {
		errs = append(errs, fmt.Errorf("HeartbeatGrace must be positive"))
	}

	if c.PriorityThreshold < 1 {
		errs = append(errs, fmt.Errorf("PriorityThreshold must be at least 1"))
	}

	if c.BundleThreshold <= c.PriorityThreshold {
		errs = append(errs, fmt.Errorf("BundleThreshold (%d) must be greater than PriorityThreshold (%d)",
			c.BundleThreshold, c.PriorityThreshold))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
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

// parseFloat parses a float from an environment variable or uses a default.
func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}
