package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	// An explicitly named missing file is an error with viper.
	if err != nil {
		cfg, err = Load("")
	}
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.True(t, cfg.RateLimiter.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "./predictions.db", cfg.Storage.PredictionsPath)
	assert.Zero(t, cfg.Simulation.Seed)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9100
logging:
  level: debug
storage:
  predictions_path: /tmp/demo.db
simulation:
  seed: 42
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/demo.db", cfg.Storage.PredictionsPath)
	assert.Equal(t, int64(42), cfg.Simulation.Seed)
	// Untouched sections keep defaults.
	assert.True(t, cfg.Metrics.Enabled)
}

func TestValidate_Rejections(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:      ServerConfig{Port: 8000},
			RateLimiter: RateLimiterConfig{Enabled: true, RequestsPerSecond: 100, BurstSize: 10},
			Metrics:     MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
			Logging:     LoggingConfig{Level: "info", Format: "json"},
			Storage:     StorageConfig{PredictionsPath: "./p.db"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad server port", func(c *Config) { c.Server.Port = 0 }},
		{"bad rate limit rps", func(c *Config) { c.RateLimiter.RequestsPerSecond = -1 }},
		{"bad burst", func(c *Config) { c.RateLimiter.BurstSize = 0 }},
		{"bad metrics port", func(c *Config) { c.Metrics.Port = 70000 }},
		{"missing predictions path", func(c *Config) { c.Storage.PredictionsPath = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, base().Validate())
}
