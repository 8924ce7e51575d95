package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Forge modes.
const (
	ForgeModeLocal  = "local"
	ForgeModeRemote = "remote"
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

	// Tezos configuration
	TezosNodeURL     string
	TezosNetwork     string // metrics label and journal network column
	TezosForgeMode   string // local or remote
	TezosSecretKey   string // signing key of the worker; empty on the server
	TezosNodeTimeout time.Duration

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// SubmitTimeout bounds one submit workflow end to end.
	SubmitTimeout time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error listing every missing or invalid setting.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs *multierror.Error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = multierror.Append(errs, errors.New("DATABASE_URL is required"))
	}

	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	cfg.TezosNodeURL = os.Getenv("TEZOS_NODE_URL")
	if cfg.TezosNodeURL == "" {
		errs = multierror.Append(errs, errors.New("TEZOS_NODE_URL is required"))
	} else if u, err := url.Parse(cfg.TezosNodeURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = multierror.Append(errs, fmt.Errorf("TEZOS_NODE_URL: invalid url %q", cfg.TezosNodeURL))
	}
	cfg.TezosNetwork = getEnvOrDefault("TEZOS_NETWORK", "mainnet")
	cfg.TezosForgeMode = getEnvOrDefault("TEZOS_FORGE_MODE", ForgeModeLocal)
	if cfg.TezosForgeMode != ForgeModeLocal && cfg.TezosForgeMode != ForgeModeRemote {
		errs = multierror.Append(errs, fmt.Errorf("TEZOS_FORGE_MODE must be %q or %q, got %q",
			ForgeModeLocal, ForgeModeRemote, cfg.TezosForgeMode))
	}
	cfg.TezosSecretKey = os.Getenv("TEZOS_SECRET_KEY")

	nodeTimeout, err := parseDuration("TEZOS_NODE_TIMEOUT", "30s")
	if err != nil {
		errs = multierror.Append(errs, err)
	} else {
		cfg.TezosNodeTimeout = nodeTimeout
	}

	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "tzwriter-submissions")

	submitTimeout, err := parseDuration("SUBMIT_TIMEOUT", "2m")
	if err != nil {
		errs = multierror.Append(errs, err)
	} else {
		cfg.SubmitTimeout = submitTimeout
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
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
	var errs *multierror.Error

	if c.DatabaseURL == "" {
		errs = multierror.Append(errs, errors.New("DatabaseURL is required"))
	}
	if c.TezosNodeURL == "" {
		errs = multierror.Append(errs, errors.New("TezosNodeURL is required"))
	}
	if c.TezosForgeMode != ForgeModeLocal && c.TezosForgeMode != ForgeModeRemote {
		errs = multierror.Append(errs, fmt.Errorf("TezosForgeMode %q is not supported", c.TezosForgeMode))
	}
	if c.TemporalHost == "" {
		errs = multierror.Append(errs, errors.New("TemporalHost is required"))
	}
	if c.TemporalNamespace == "" {
		errs = multierror.Append(errs, errors.New("TemporalNamespace is required"))
	}
	if c.TemporalTaskQueue == "" {
		errs = multierror.Append(errs, errors.New("TemporalTaskQueue is required"))
	}
	if c.SubmitTimeout < time.Second {
		errs = multierror.Append(errs, errors.New("SubmitTimeout must be at least 1 second"))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
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
