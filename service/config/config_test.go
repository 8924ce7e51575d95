package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("TEZOS_NODE_URL", "https://mainnet.example.org")
}

func TestLoad_ValidConfig(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, "https://mainnet.example.org", cfg.TezosNodeURL)
	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)    // Default
	assert.Equal(t, "mainnet", cfg.TezosNetwork)
	assert.Equal(t, ForgeModeLocal, cfg.TezosForgeMode)
	assert.Equal(t, 30*time.Second, cfg.TezosNodeTimeout)
	assert.Equal(t, "tzwriter-submissions", cfg.TemporalTaskQueue)
	assert.Equal(t, 2*time.Minute, cfg.SubmitTimeout)
	assert.Empty(t, cfg.TezosSecretKey)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_CollectsAllErrors(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TEZOS_NODE_URL", "")
	t.Setenv("TEZOS_FORGE_MODE", "psychic")
	t.Setenv("SUBMIT_TIMEOUT", "soon")

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "TEZOS_NODE_URL is required")
	assert.Contains(t, err.Error(), "TEZOS_FORGE_MODE")
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_InvalidNodeURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TEZOS_NODE_URL", "localhost")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid url")
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TEZOS_NETWORK", "ghostnet")
	t.Setenv("TEZOS_FORGE_MODE", "remote")
	t.Setenv("TEZOS_SECRET_KEY", "edsk-secret")
	t.Setenv("TEMPORAL_TASK_QUEUE", "custom-queue")
	t.Setenv("SUBMIT_TIMEOUT", "45s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "ghostnet", cfg.TezosNetwork)
	assert.Equal(t, ForgeModeRemote, cfg.TezosForgeMode)
	assert.Equal(t, "edsk-secret", cfg.TezosSecretKey)
	assert.Equal(t, "custom-queue", cfg.TemporalTaskQueue)
	assert.Equal(t, 45*time.Second, cfg.SubmitTimeout)
}

func TestValidate(t *testing.T) {
	valid := Config{
		DatabaseURL:       "postgres://localhost/test",
		TezosNodeURL:      "https://node",
		TezosForgeMode:    ForgeModeLocal,
		TemporalHost:      "localhost:7233",
		TemporalNamespace: "default",
		TemporalTaskQueue: "q",
		SubmitTimeout:     time.Minute,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"missing database", func(c *Config) { c.DatabaseURL = "" }, "DatabaseURL is required"},
		{"missing node", func(c *Config) { c.TezosNodeURL = "" }, "TezosNodeURL is required"},
		{"bad forge mode", func(c *Config) { c.TezosForgeMode = "" }, "TezosForgeMode"},
		{"missing task queue", func(c *Config) { c.TemporalTaskQueue = "" }, "TemporalTaskQueue is required"},
		{"short timeout", func(c *Config) { c.SubmitTimeout = time.Millisecond }, "SubmitTimeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
