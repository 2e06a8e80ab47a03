package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	originalDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.Paths.BaseDir)
	assert.Equal(t, "./data/ledger.db", cfg.Paths.DBPath)

	assert.Equal(t, 6000*time.Second, cfg.Assistant.CLITimeout)
	assert.Equal(t, 18000*time.Second, cfg.Assistant.SessionLimit)
	assert.Equal(t, int64(52428800), cfg.Assistant.MaxOutputSize)
	assert.Equal(t, "claude", cfg.Assistant.BinaryPath)

	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 1*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 300*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Retry.ExponentialBase)
	assert.Equal(t, 3600*time.Second, cfg.Retry.DefaultUnbanWait)
	assert.Equal(t, 1.5, cfg.Retry.RateLimitBackoffMultiplier)

	assert.Equal(t, 5*time.Minute, cfg.RateLimit.ProbeFloor)
	assert.Equal(t, 1*time.Minute, cfg.RateLimit.ProbeCeiling)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.ShrinkWindow)

	assert.Equal(t, 5.0, cfg.Resources.MinDiskSpaceGB)
	assert.Equal(t, int64(50), cfg.Resources.MaxLogSizeMB)
	assert.Equal(t, 7, cfg.Resources.MaxLogFiles)

	assert.Equal(t, 2, cfg.Worker.NumWorkers)
	assert.Equal(t, 30*time.Second, cfg.Worker.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, cfg.Worker.HealthCheckInterval)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 50, cfg.Server.RequestsPerSecond)

	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := tmpDir + "/config.yaml"

	configContent := `
paths:
  basedir: "/var/lib/taskqueue"

assistant:
  clitimeout: 45m
  binarypath: "/usr/local/bin/claude"

worker:
  numworkers: 8

redis:
  enabled: true
  addr: "custom-redis:6380"

loglevel: "warn"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	originalDir, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/taskqueue", cfg.Paths.BaseDir)
	assert.Equal(t, 45*time.Minute, cfg.Assistant.CLITimeout)
	assert.Equal(t, "/usr/local/bin/claude", cfg.Assistant.BinaryPath)
	assert.Equal(t, 8, cfg.Worker.NumWorkers)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "custom-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestRetryConfig_MatchesBackoffDefaults(t *testing.T) {
	cfg := RetryConfig{
		MaxRetries:                 5,
		BaseDelay:                  1 * time.Second,
		MaxDelay:                   300 * time.Second,
		ExponentialBase:            2.0,
		DefaultUnbanWait:           3600 * time.Second,
		RateLimitBackoffMultiplier: 1.5,
	}

	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 2.0, cfg.ExponentialBase)
	assert.Equal(t, 1.5, cfg.RateLimitBackoffMultiplier)
}

func TestWorkerConfig_Fields(t *testing.T) {
	cfg := WorkerConfig{
		NumWorkers:          3,
		HeartbeatInterval:   5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		ShutdownTimeout:     30 * time.Second,
	}

	assert.Equal(t, 3, cfg.NumWorkers)
	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
}
