// Package config provides configuration management for tardsplayad using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values for the ingestion and dispatch engine:
// fetch retry policy, scheduler poll cadence, the bounded segment buffer's
// target depth, and the player transport's shutdown grace periods.
const (
	defaultFetchTimeout       = 3 * time.Second
	defaultFetchRetryAttempts = 3
	defaultFetchRetryDelay    = 600 * time.Millisecond

	defaultSchedulerPollInterval   = 1500 * time.Millisecond
	defaultSchedulerErrorSleep     = 2 * time.Second
	defaultSchedulerErrorThreshold = 15
	defaultSeenURLCapacity         = 10

	defaultDownloadRetryAttempts = 3
	defaultDownloadRetryDelay    = 300 * time.Millisecond
	defaultDownloaderWorkers     = 1

	defaultTargetDepth = 5

	defaultPlayerWriteChunkSize   = 32 * 1024
	defaultPlayerShutdownGrace    = 5 * time.Second
	defaultPlayerInterruptGrace   = 500 * time.Millisecond
	defaultPlayerDiagnosticPeriod = 10 * time.Second

	defaultCoordinatorMaxConcurrentStreams = 10
	defaultCoordinatorHousekeepingCron     = "@every 30s"

	defaultAPIPort = 8099
)

// Config holds all configuration for the application.
type Config struct {
	Fetch       FetchConfig       `mapstructure:"fetch"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Download    DownloadConfig    `mapstructure:"download"`
	Buffer      BufferConfig      `mapstructure:"buffer"`
	Player      PlayerConfig      `mapstructure:"player"`
	Resolve     ResolveConfig     `mapstructure:"resolve"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	API         APIConfig         `mapstructure:"api"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// FetchConfig holds the HTTP fetcher's retry and transport tunables.
type FetchConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	RetryAttempts      int           `mapstructure:"retry_attempts"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	UserAgent          string        `mapstructure:"user_agent"`
}

// SchedulerConfig holds the segment scheduler's polling tunables.
type SchedulerConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	ErrorSleep     time.Duration `mapstructure:"error_sleep"`
	ErrorThreshold int           `mapstructure:"error_threshold"`
	SeenURLCap     int           `mapstructure:"seen_url_capacity"`
}

// DownloadConfig holds the segment downloader's retry tunables.
type DownloadConfig struct {
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	Workers       int           `mapstructure:"workers"`
}

// BufferConfig holds the bounded segment buffer's depth tunable.
type BufferConfig struct {
	TargetDepth int `mapstructure:"target_depth"`
}

// MaxDepth returns the buffer's hard capacity, always twice TargetDepth.
func (b BufferConfig) MaxDepth() int {
	return b.TargetDepth * 2
}

// PlayerConfig holds the player transport's process and pipe tunables.
type PlayerConfig struct {
	BinaryPath         string        `mapstructure:"binary_path"`
	Args               []string      `mapstructure:"args"`
	WriteChunkSize     ByteSize      `mapstructure:"write_chunk_size"`
	ShutdownGrace      time.Duration `mapstructure:"shutdown_grace"`
	InterruptGrace     time.Duration `mapstructure:"interrupt_grace"`
	DiagnosticsEnabled bool          `mapstructure:"diagnostics_enabled"`
	DiagnosticPeriod   time.Duration `mapstructure:"diagnostic_period"`
}

// ResolveConfig holds the default ResolvePlaylist collaborator's settings.
// A real provider integration can ignore this and supply its own
// resolve.Resolver; MasterURLTemplate backs the built-in
// resolve.TemplateResolver, substituting the literal placeholder
// "{channel}".
type ResolveConfig struct {
	MasterURLTemplate string `mapstructure:"master_url_template"`
}

// CoordinatorConfig holds the multi-stream coordinator's tunables.
type CoordinatorConfig struct {
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams"`
	HousekeepingCron     string `mapstructure:"housekeeping_cron"`
}

// APIConfig holds the optional local control-plane HTTP surface's settings.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// Address returns the control-plane listen address in host:port form.
func (a APIConfig) Address() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with TARDSPLAYAD_ and use underscores for nesting.
// Example: TARDSPLAYAD_BUFFER_TARGET_DEPTH=8.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tardsplayad")
		v.AddConfigPath("$HOME/.tardsplayad")
	}

	// Environment variable settings
	v.SetEnvPrefix("TARDSPLAYAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Fetch defaults
	v.SetDefault("fetch.timeout", defaultFetchTimeout)
	v.SetDefault("fetch.retry_attempts", defaultFetchRetryAttempts)
	v.SetDefault("fetch.retry_delay", defaultFetchRetryDelay)
	v.SetDefault("fetch.insecure_skip_verify", false)
	v.SetDefault("fetch.user_agent", "tardsplayad/1.0")

	// Scheduler defaults
	v.SetDefault("scheduler.poll_interval", defaultSchedulerPollInterval)
	v.SetDefault("scheduler.error_sleep", defaultSchedulerErrorSleep)
	v.SetDefault("scheduler.error_threshold", defaultSchedulerErrorThreshold)
	v.SetDefault("scheduler.seen_url_capacity", defaultSeenURLCapacity)

	// Download defaults
	v.SetDefault("download.retry_attempts", defaultDownloadRetryAttempts)
	v.SetDefault("download.retry_delay", defaultDownloadRetryDelay)
	v.SetDefault("download.workers", defaultDownloaderWorkers)

	// Buffer defaults
	v.SetDefault("buffer.target_depth", defaultTargetDepth)

	// Player defaults
	v.SetDefault("player.binary_path", "")
	v.SetDefault("player.args", []string{"-"})
	v.SetDefault("player.write_chunk_size", int64(defaultPlayerWriteChunkSize))
	v.SetDefault("player.shutdown_grace", defaultPlayerShutdownGrace)
	v.SetDefault("player.interrupt_grace", defaultPlayerInterruptGrace)
	v.SetDefault("player.diagnostics_enabled", false)
	v.SetDefault("player.diagnostic_period", defaultPlayerDiagnosticPeriod)

	// Resolve defaults
	v.SetDefault("resolve.master_url_template", "")

	// Coordinator defaults
	v.SetDefault("coordinator.max_concurrent_streams", defaultCoordinatorMaxConcurrentStreams)
	v.SetDefault("coordinator.housekeeping_cron", defaultCoordinatorHousekeepingCron)

	// API defaults
	v.SetDefault("api.enabled", false)
	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", defaultAPIPort)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Fetch validation
	if c.Fetch.RetryAttempts < 1 {
		return fmt.Errorf("fetch.retry_attempts must be at least 1")
	}

	// Scheduler validation
	if c.Scheduler.ErrorThreshold < 1 {
		return fmt.Errorf("scheduler.error_threshold must be at least 1")
	}

	// Download validation
	if c.Download.Workers < 1 {
		return fmt.Errorf("download.workers must be at least 1")
	}

	// Buffer validation: a smaller initial fill can't absorb live-edge
	// jitter, and max_depth = 2x needs headroom above it.
	if c.Buffer.TargetDepth < 5 {
		return fmt.Errorf("buffer.target_depth must be at least 5")
	}

	// Logging validation
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// API validation
	const maxPort = 65535
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > maxPort) {
		return fmt.Errorf("api.port must be between 1 and %d", maxPort)
	}

	return nil
}
