package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Fetch defaults
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 3, cfg.Fetch.RetryAttempts)
	assert.Equal(t, 600*time.Millisecond, cfg.Fetch.RetryDelay)

	// Scheduler defaults
	assert.Equal(t, 1500*time.Millisecond, cfg.Scheduler.PollInterval)
	assert.Equal(t, 15, cfg.Scheduler.ErrorThreshold)

	// Download defaults
	assert.Equal(t, 3, cfg.Download.RetryAttempts)
	assert.Equal(t, 1, cfg.Download.Workers)

	// Buffer defaults
	assert.Equal(t, 5, cfg.Buffer.TargetDepth)
	assert.Equal(t, 10, cfg.Buffer.MaxDepth())

	// Player defaults
	assert.Equal(t, []string{"-"}, cfg.Player.Args)
	assert.Equal(t, 5*time.Second, cfg.Player.ShutdownGrace)

	// Coordinator defaults
	assert.Equal(t, 10, cfg.Coordinator.MaxConcurrentStreams)
	assert.Equal(t, "@every 30s", cfg.Coordinator.HousekeepingCron)

	// API defaults
	assert.False(t, cfg.API.Enabled)
	assert.Equal(t, 8099, cfg.API.Port)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
fetch:
  timeout: 5s
  retry_attempts: 5

buffer:
  target_depth: 8

player:
  binary_path: "/usr/bin/mpv"
  args: ["--no-terminal", "-"]

logging:
  level: "debug"
  format: "text"
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 5, cfg.Fetch.RetryAttempts)
	assert.Equal(t, 8, cfg.Buffer.TargetDepth)
	assert.Equal(t, 16, cfg.Buffer.MaxDepth())
	assert.Equal(t, "/usr/bin/mpv", cfg.Player.BinaryPath)
	assert.Equal(t, []string{"--no-terminal", "-"}, cfg.Player.Args)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("TARDSPLAYAD_BUFFER_TARGET_DEPTH", "12")
	t.Setenv("TARDSPLAYAD_PLAYER_BINARY_PATH", "/opt/bin/vlc")
	t.Setenv("TARDSPLAYAD_LOGGING_LEVEL", "warn")
	t.Setenv("TARDSPLAYAD_COORDINATOR_MAX_CONCURRENT_STREAMS", "4")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 12, cfg.Buffer.TargetDepth)
	assert.Equal(t, "/opt/bin/vlc", cfg.Player.BinaryPath)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 4, cfg.Coordinator.MaxConcurrentStreams)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
buffer:
  target_depth: 5
player:
  binary_path: "/usr/bin/mpv"
`
	err := os.WriteFile(configPath, []byte(configContent), 0o600)
	require.NoError(t, err)

	t.Setenv("TARDSPLAYAD_BUFFER_TARGET_DEPTH", "20")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Buffer.TargetDepth)
	assert.Equal(t, "/usr/bin/mpv", cfg.Player.BinaryPath)
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := &Config{
		Fetch:     FetchConfig{RetryAttempts: 3},
		Scheduler: SchedulerConfig{ErrorThreshold: 15},
		Download:  DownloadConfig{Workers: 1},
		Buffer:    BufferConfig{TargetDepth: 5},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}

	err := cfg.Validate()
	assert.NoError(t, err)
}

func TestValidate_InvalidBufferDepth(t *testing.T) {
	cfg := &Config{
		Fetch:     FetchConfig{RetryAttempts: 3},
		Scheduler: SchedulerConfig{ErrorThreshold: 15},
		Download:  DownloadConfig{Workers: 1},
		Buffer:    BufferConfig{TargetDepth: 0},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "buffer.target_depth")
}

func TestValidate_InvalidFetchRetryAttempts(t *testing.T) {
	cfg := &Config{
		Fetch:     FetchConfig{RetryAttempts: 0},
		Scheduler: SchedulerConfig{ErrorThreshold: 15},
		Download:  DownloadConfig{Workers: 1},
		Buffer:    BufferConfig{TargetDepth: 5},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fetch.retry_attempts")
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := &Config{
		Fetch:     FetchConfig{RetryAttempts: 3},
		Scheduler: SchedulerConfig{ErrorThreshold: 15},
		Download:  DownloadConfig{Workers: 1},
		Buffer:    BufferConfig{TargetDepth: 5},
		Logging:   LoggingConfig{Level: "invalid", Format: "json"},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := &Config{
		Fetch:     FetchConfig{RetryAttempts: 3},
		Scheduler: SchedulerConfig{ErrorThreshold: 15},
		Download:  DownloadConfig{Workers: 1},
		Buffer:    BufferConfig{TargetDepth: 5},
		Logging:   LoggingConfig{Level: "info", Format: "xml"},
	}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "logging.format")
}

func TestValidate_InvalidAPIPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"zero port", 0},
		{"negative port", -1},
		{"port too high", 70000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Fetch:     FetchConfig{RetryAttempts: 3},
				Scheduler: SchedulerConfig{ErrorThreshold: 15},
				Download:  DownloadConfig{Workers: 1},
				Buffer:    BufferConfig{TargetDepth: 5},
				Logging:   LoggingConfig{Level: "info", Format: "json"},
				API:       APIConfig{Enabled: true, Port: tt.port},
			}
			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "api.port")
		})
	}
}

func TestValidate_DisabledAPIIgnoresPort(t *testing.T) {
	cfg := &Config{
		Fetch:     FetchConfig{RetryAttempts: 3},
		Scheduler: SchedulerConfig{ErrorThreshold: 15},
		Download:  DownloadConfig{Workers: 1},
		Buffer:    BufferConfig{TargetDepth: 5},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
		API:       APIConfig{Enabled: false, Port: -1},
	}

	err := cfg.Validate()
	assert.NoError(t, err)
}

func TestAPIConfig_Address(t *testing.T) {
	cfg := APIConfig{Host: "127.0.0.1", Port: 8099}
	assert.Equal(t, "127.0.0.1:8099", cfg.Address())
}

func TestBufferConfig_MaxDepth(t *testing.T) {
	tests := []struct {
		target   int
		expected int
	}{
		{5, 10},
		{1, 2},
		{20, 40},
	}

	for _, tt := range tests {
		cfg := BufferConfig{TargetDepth: tt.target}
		assert.Equal(t, tt.expected, cfg.MaxDepth())
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	invalidContent := `
buffer:
  target_depth: "not a number"
  invalid yaml structure
`
	err := os.WriteFile(configPath, []byte(invalidContent), 0o600)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.Error(t, err)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}
